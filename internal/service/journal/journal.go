package journal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/oshokin/node-updater/internal/logger"
)

// LineStream is a live, unbounded, append-only sequence of log lines.
// The stream never ends on its own; Close is the only way to stop
// consumption. Consumers must drain Lines until it is closed.
type LineStream interface {
	Lines() <-chan string
	Close() error
}

// Subscriber opens live log streams for named service units.
type Subscriber interface {
	Subscribe(ctx context.Context, unit string) (LineStream, error)
}

// maxLineSize bounds a single journal line; longer lines are split by the scanner.
const maxLineSize = 256 * 1024

// Journald tails journalctl output for a unit, starting from now rather
// than from historical entries.
type Journald struct{}

// Subscribe spawns journalctl in follow mode and streams its stdout lines.
func (Journald) Subscribe(ctx context.Context, unit string) (LineStream, error) {
	command := exec.CommandContext(ctx,
		"journalctl", "-f", "-u", unit+".service", "-n", "0", "--no-pager")

	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open journalctl pipe: %w", err)
	}

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("start journalctl: %w", err)
	}

	stream := &journalStream{
		command: command,
		lines:   make(chan string),
	}

	go stream.pump(ctx, stdout)

	return stream, nil
}

// journalStream adapts a running journalctl process to a LineStream.
type journalStream struct {
	// command is the journalctl follower process.
	command *exec.Cmd
	// lines carries scanned output; closed when the process exits.
	lines chan string
	// closeOnce guards process termination.
	closeOnce sync.Once
	// closeErr records the termination error, if any.
	closeErr error
}

// Lines returns the channel of journal lines.
func (s *journalStream) Lines() <-chan string {
	return s.lines
}

// Close terminates the journalctl process, which ends the stream. The pump
// goroutine closes the lines channel once the pipe drains.
func (s *journalStream) Close() error {
	s.closeOnce.Do(func() {
		if s.command.Process != nil {
			s.closeErr = s.command.Process.Kill()
		}
	})

	return s.closeErr
}

// pump copies lines from the process pipe into the channel until the pipe
// closes, then reaps the process.
func (s *journalStream) pump(ctx context.Context, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	for scanner.Scan() {
		s.lines <- scanner.Text()
	}

	if err := scanner.Err(); err != nil {
		logger.DebugKV(ctx, "Journal stream ended", "error", err)
	}

	close(s.lines)

	// Kill on Close leaves a zombie until reaped.
	_ = s.command.Wait()
}

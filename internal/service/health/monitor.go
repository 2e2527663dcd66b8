package health

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/oshokin/node-updater/internal/logger"
	"github.com/oshokin/node-updater/internal/service/journal"
)

// Result is the verdict of a post-restart observation.
type Result int

const (
	// Timeout means no positive liveness signal appeared within the window.
	Timeout Result = iota
	// Live means the service produced traffic after the restart.
	Live
)

// String returns a human-readable name for the result.
func (r Result) String() string {
	if r == Live {
		return "live"
	}

	return "timeout"
}

// Observer verifies a restarted service is processing traffic again.
type Observer interface {
	Observe(ctx context.Context, unit string) (Result, error)
}

const (
	// suffixThousand scales values reported with a K suffix.
	suffixThousand = 1e3
	// suffixMillion scales values reported with an M suffix.
	suffixMillion = 1e6
	// defaultJoinGrace bounds how long teardown waits for the reader task.
	defaultJoinGrace = time.Second
)

// Options configure a Monitor.
type Options struct {
	// Pattern extracts the traffic counter from a log line. It must capture
	// the numeric value in group 1 and an optional unit suffix in group 2.
	Pattern *regexp.Regexp
	// Timeout bounds the whole observation.
	Timeout time.Duration
	// PollInterval is how often the shared counter is checked.
	PollInterval time.Duration
	// JoinGrace bounds how long teardown waits for the reader to exit.
	JoinGrace time.Duration
}

// Monitor tails a service's live log stream after a restart and decides
// whether the service came back up, based on a numeric traffic counter the
// service prints. One background reader consumes the stream for the lifetime
// of the observation; the polling caller only ever sees the latest scaled
// value through a single atomic slot.
type Monitor struct {
	// subscriber opens the live log stream.
	subscriber journal.Subscriber
	// opts hold the observation policy.
	opts Options
}

// NewMonitor creates a Monitor observing through the given subscriber.
func NewMonitor(subscriber journal.Subscriber, opts Options) *Monitor {
	if opts.JoinGrace <= 0 {
		opts.JoinGrace = defaultJoinGrace
	}

	return &Monitor{
		subscriber: subscriber,
		opts:       opts,
	}
}

// lastValue is a last-write-wins slot shared between the reader task and the
// polling loop. Only "has it ever been observed above zero" matters, so the
// newest sample always replaces the previous one.
type lastValue struct {
	bits atomic.Uint64
}

// store records a sample.
func (v *lastValue) store(sample float64) {
	v.bits.Store(math.Float64bits(sample))
}

// load returns the most recent sample.
func (v *lastValue) load() float64 {
	return math.Float64frombits(v.bits.Load())
}

// Observe watches the unit's log stream until the traffic counter turns
// positive (Live) or the timeout expires (Timeout). The returned error is
// non-nil only when the stream cannot be opened or the context is canceled;
// a quiet service is a Timeout verdict, not an error.
func (m *Monitor) Observe(ctx context.Context, unit string) (Result, error) {
	stream, err := m.subscriber.Subscribe(ctx, unit)
	if err != nil {
		return Timeout, fmt.Errorf("subscribe to %s logs: %w", unit, err)
	}

	logger.InfoKV(ctx, "Watching service logs for traffic",
		"unit", unit,
		"timeout", m.opts.Timeout.String(),
		"poll_interval", m.opts.PollInterval.String())

	var (
		latest lastValue
		reader conc.WaitGroup
	)

	reader.Go(func() {
		m.consume(ctx, stream, &latest)
	})

	verdict := m.poll(ctx, &latest)

	// Closing the subscription is what unblocks the reader.
	if closeErr := stream.Close(); closeErr != nil {
		logger.WarnKV(ctx, "Closing log stream failed", "error", closeErr)
	}

	m.join(ctx, &reader)

	if ctx.Err() != nil {
		return Timeout, fmt.Errorf("observation canceled: %w", ctx.Err())
	}

	return verdict, nil
}

// poll checks the shared counter at the configured interval and decides the verdict.
func (m *Monitor) poll(ctx context.Context, latest *lastValue) Result {
	var (
		deadline = time.Now().Add(m.opts.Timeout)
		ticker   = time.NewTicker(m.opts.PollInterval)
	)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Timeout
		case <-ticker.C:
			if latest.load() > 0 {
				return Live
			}

			if time.Now().After(deadline) {
				return Timeout
			}
		}
	}
}

// consume reads the stream line by line until it closes, publishing every
// extracted counter sample into the shared slot.
func (m *Monitor) consume(ctx context.Context, stream journal.LineStream, latest *lastValue) {
	for line := range stream.Lines() {
		sample, ok := m.extract(line)
		if !ok {
			continue
		}

		latest.store(sample)
		logger.DebugKV(ctx, "Liveness sample", "value", sample)
	}
}

// extract applies the pattern to a line and scales the captured value by its
// unit suffix (K and M; anything else the pattern lets through stays
// unscaled). Malformed numeric text skips the line.
func (m *Monitor) extract(line string) (float64, bool) {
	match := m.opts.Pattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	switch match[2] {
	case "K":
		value *= suffixThousand
	case "M":
		value *= suffixMillion
	}

	return value, true
}

// join waits for the reader task, but only up to the grace period. A reader
// stuck on a stream that refuses to die must not keep the caller hostage.
func (m *Monitor) join(ctx context.Context, reader *conc.WaitGroup) {
	done := make(chan struct{})

	go func() {
		defer close(done)

		reader.Wait()
	}()

	select {
	case <-done:
	case <-time.After(m.opts.JoinGrace):
		logger.Warn(ctx, "Log reader did not stop within the grace period, abandoning it")
	}
}

package sysctl

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/node-updater/internal/logger"
)

// Controller manages the lifecycle of the supervised OS service.
// Every operation either fully succeeds or returns an error; there are no
// partial states to inspect.
type Controller interface {
	Stop(ctx context.Context, unit string) error
	Start(ctx context.Context, unit string) error
	ReloadManagerConfig(ctx context.Context) error
}

// Systemd drives the service through systemctl, the same way an operator
// would from a shell.
type Systemd struct{}

// Stop halts the named unit.
func (s Systemd) Stop(ctx context.Context, unit string) error {
	logger.InfoKV(ctx, "Stopping service", "unit", unit)

	return s.run(ctx, "stop", unit)
}

// Start launches the named unit.
func (s Systemd) Start(ctx context.Context, unit string) error {
	logger.InfoKV(ctx, "Starting service", "unit", unit)

	return s.run(ctx, "start", unit)
}

// ReloadManagerConfig re-reads unit definitions after a binary swap.
func (s Systemd) ReloadManagerConfig(ctx context.Context) error {
	logger.Info(ctx, "Reloading service manager configuration")

	return s.run(ctx, "daemon-reload")
}

// run executes systemctl with the given arguments, capturing stderr for the error.
func (Systemd) run(ctx context.Context, args ...string) error {
	command := exec.CommandContext(ctx, "systemctl", args...)

	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("systemctl %s: %s: %w", strings.Join(args, " "), detail, err)
		}

		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}

	return nil
}

package updater

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/node-updater/internal/logger"
)

const (
	// MarkerFilename marks that an update run is in progress to prevent
	// overlapping runs from a scheduler firing too eagerly.
	MarkerFilename = "node-updater-update-marker.bin"

	// markerLifetime is the period after which a marker is considered stale.
	// It exceeds the worst-case run (download plus the full health window),
	// so a fresh marker always belongs to a live run.
	markerLifetime = 30 * time.Minute

	// baseUpdaterExecutable is the updater's own binary name, used when
	// cleaning up a crashed run's leftovers.
	baseUpdaterExecutable = "node-updater"
)

// IsRunActive checks presence of the run marker and attempts recovery when
// it looks stale: any leftover updater process is killed and the marker
// removed, so one crashed run cannot block updates forever.
func IsRunActive(ctx context.Context) bool {
	logger.Info(ctx, "Checking for the presence of an update marker")

	fileInfo, err := os.Stat(MarkerFilename)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The update marker is too old, attempting cleanup")

		if err = terminateProcessByName(updaterExecutable()); err != nil {
			return true
		}

		if err = os.Remove(MarkerFilename); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Update marker not found, continuing")
		return false
	}

	logger.Infof(ctx, "Unable to read update marker: %v", err)

	return false
}

// terminateProcessByName tries to kill processes with the provided executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}

// getExecutableExtension returns ".exe" on Windows and "" elsewhere.
func getExecutableExtension() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return ".exe"
	}

	return ""
}

func updaterExecutable() string {
	return baseUpdaterExecutable + getExecutableExtension()
}

package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/node-updater/internal/config"
	"github.com/oshokin/node-updater/internal/domain/release"
	"github.com/oshokin/node-updater/internal/logger"
	"github.com/oshokin/node-updater/internal/repository/state"
	"github.com/oshokin/node-updater/internal/service/alert"
	"github.com/oshokin/node-updater/internal/service/artifact"
	"github.com/oshokin/node-updater/internal/service/backup"
	"github.com/oshokin/node-updater/internal/service/health"
	"github.com/oshokin/node-updater/internal/service/journal"
	"github.com/oshokin/node-updater/internal/service/source"
	"github.com/oshokin/node-updater/internal/service/sysctl"
)

var (
	// ErrAlreadyRunning is returned when another run holds the update marker.
	ErrAlreadyRunning = errors.New("another update run is already in progress")
	// errDowngradeRejected is returned when the candidate orders before the installed release.
	errDowngradeRejected = errors.New("candidate release is older than the installed one")
	// errHealthTimeout is returned when the restarted service shows no traffic in time.
	errHealthTimeout = errors.New("no liveness signal within the health timeout")
)

// installedBinaryMode marks the swapped-in binary executable.
const installedBinaryMode os.FileMode = 0o755

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// IncludePrerelease allows installing pre-release tags regardless of
	// the configured default.
	IncludePrerelease bool
	// SkipBackup disables the data snapshot for this run.
	SkipBackup bool
}

// attempt tracks the ephemeral state of a single orchestration run. It is
// never persisted; only the final release identifier is, and only on a
// completed install.
type attempt struct {
	// candidate is the release under consideration.
	candidate string
	// installed is the release recorded before this run.
	installed string
	// artifactPath is where the downloaded binary landed.
	artifactPath string
	// disrupted is set once the service was stopped, i.e. from here on a
	// failure may leave the service degraded or down.
	disrupted bool
}

// runner holds the collaborators and mutable state for a single update
// execution. It is intentionally unexported; call Run(ctx, Options) from
// callers. Tests construct it directly with fakes.
type runner struct {
	cfg         *config.Config
	comparator  *release.Comparator
	store       state.Store
	source      source.Source
	fetcher     artifact.Fetcher
	controller  sysctl.Controller
	monitor     health.Observer
	snapshotter backup.Snapshotter // nil when backups are disabled
	notifier    alert.Notifier
	attempt     attempt
}

// Run executes one update-and-verify transaction and is the public entry
// point for the CLI. It returns nil for clean runs (updated, up to date, or
// nothing eligible) and an error for every aborted run, so the process exit
// code distinguishes failure from no-op.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "node-updater")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cfg.LogFile != "" {
		logger.SetLogger(logger.NewWithFileSink(nil, logger.FileSink{Path: cfg.LogFile}))
	}

	if opts.IncludePrerelease {
		cfg.IncludePrerelease = true
	}

	if opts.SkipBackup {
		cfg.BackupEnabled = false
	}

	if IsRunActive(ctx) {
		return ErrAlreadyRunning
	}

	marker, err := os.Create(MarkerFilename)
	if err != nil {
		return fmt.Errorf("create update marker: %w", err)
	}

	if err = marker.Close(); err != nil {
		return fmt.Errorf("close update marker: %w", err)
	}

	defer func() {
		if removeErr := os.Remove(MarkerFilename); removeErr != nil {
			logger.WarnKV(ctx, "Removing update marker failed", "error", removeErr)
		}
	}()

	r := newRunner(cfg)

	outcome, err := r.run(ctx)
	r.report(ctx, outcome, err)

	return err
}

// newRunner wires the production collaborators from configuration.
func newRunner(cfg *config.Config) *runner {
	// The pattern was validated when the configuration loaded.
	pattern := regexp.MustCompile(cfg.LivenessPattern)

	r := &runner{
		cfg:        cfg,
		comparator: release.NewComparator(cfg.ReleasePrefix),
		store:      state.NewFileStore(cfg.StateFile),
		source:     source.NewGitHub(cfg.Repo, source.WithTimeout(cfg.HTTPTimeout)),
		fetcher:    artifact.NewHTTPFetcher(cfg.Repo, cfg.DownloadDir),
		controller: sysctl.Systemd{},
		monitor: health.NewMonitor(journal.Journald{}, health.Options{
			Pattern:      pattern,
			Timeout:      cfg.HealthTimeout,
			PollInterval: cfg.HealthPollInterval,
		}),
		notifier: alert.Nop{},
	}

	if cfg.WebhookURL != "" {
		r.notifier = alert.NewDiscord(cfg.WebhookURL)
	}

	if cfg.BackupEnabled && cfg.DataDir != "" {
		r.snapshotter = backup.NewTarSnapshotter(cfg.DataDir, cfg.BackupDir)
	}

	return r
}

// run performs the ordered update transaction. State is persisted only after
// the binary swap and restart completed; every earlier abort leaves the
// recorded release untouched.
//
//nolint:cyclop // The step sequence reads best as one linear function.
func (r *runner) run(ctx context.Context) (Outcome, error) {
	latest, err := r.source.LatestRelease(ctx, r.cfg.IncludePrerelease)
	if errors.Is(err, source.ErrNoEligibleRelease) {
		logger.Info(ctx, "No eligible release published, nothing to do")
		return OutcomeNoEligibleRelease, nil
	}

	if err != nil {
		return OutcomeUnknown, fmt.Errorf("query release source: %w", err)
	}

	r.attempt.candidate = latest.TagName

	r.attempt.installed, err = r.store.Load(ctx)
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("read install state: %w", err)
	}

	ordering, err := r.comparator.Compare(r.attempt.candidate, r.attempt.installed)
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("compare releases: %w", err)
	}

	switch ordering {
	case release.Same:
		logger.InfoKV(ctx, "Already up to date", "release", r.attempt.installed)
		return OutcomeUpToDate, nil
	case release.Older:
		return OutcomeDowngradeRejected, fmt.Errorf("%w: candidate %s, installed %s",
			errDowngradeRejected, r.attempt.candidate, r.attempt.installed)
	case release.Newer, release.Incomparable:
		// Incomparable never reaches here; Compare returns it with an error.
	}

	logger.InfoKV(ctx, "New release detected",
		"candidate", r.attempt.candidate,
		"installed", installedOrNone(r.attempt.installed))

	r.snapshotData(ctx)

	r.attempt.artifactPath, err = r.fetcher.Fetch(ctx, r.attempt.candidate, r.cfg.BinaryName)
	if err != nil {
		return OutcomeFetchFailed, fmt.Errorf("fetch artifact: %w", err)
	}

	if err = r.controller.Stop(ctx, r.cfg.ServiceName); err != nil {
		// The downloaded artifact stays on disk so the next run resumes cheaply.
		return OutcomeStopFailed, fmt.Errorf("stop service: %w", err)
	}

	r.attempt.disrupted = true

	if err = r.swapBinary(ctx); err != nil {
		return OutcomeUnknown, err
	}

	if err = r.controller.ReloadManagerConfig(ctx); err != nil {
		return OutcomeStartFailed, fmt.Errorf("reload service manager: %w", err)
	}

	if err = r.controller.Start(ctx, r.cfg.ServiceName); err != nil {
		return OutcomeStartFailed, fmt.Errorf("start service: %w", err)
	}

	verdict, err := r.monitor.Observe(ctx, r.cfg.ServiceName)
	if err != nil {
		logger.ErrorKV(ctx, "Health observation failed, treating as timeout", "error", err)

		verdict = health.Timeout
	}

	// The swap and restart completed, so the recorded release advances even
	// when liveness confirmation failed: state tracks what is installed,
	// not what is confirmed healthy.
	if saveErr := r.store.Save(ctx, r.attempt.candidate); saveErr != nil {
		return OutcomeUnknown, fmt.Errorf("persist installed release: %w", saveErr)
	}

	if verdict == health.Live {
		logger.InfoKV(ctx, "Service is live after update", "release", r.attempt.candidate)
		return OutcomeSuccess, nil
	}

	return OutcomeHealthTimeout, fmt.Errorf("%w: service %s, release %s",
		errHealthTimeout, r.cfg.ServiceName, r.attempt.candidate)
}

// snapshotData archives the data directory when configured. Backup is a
// safety net, not a precondition: failures are logged and the run proceeds.
func (r *runner) snapshotData(ctx context.Context) {
	if r.snapshotter == nil {
		return
	}

	path, err := r.snapshotter.Snapshot(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Data backup failed, continuing with the update", "error", err)
		return
	}

	logger.InfoKV(ctx, "Data backup written", "path", path)
}

// swapBinary atomically replaces the installed binary with the downloaded
// artifact and marks it executable. The artifact vanishing between fetch and
// install is an environment failure nothing downstream can recover from, so
// the whole process aborts immediately.
func (r *runner) swapBinary(ctx context.Context) error {
	target := filepath.Join(r.cfg.BinaryDir, r.cfg.BinaryName)

	logger.InfoKV(ctx, "Installing new binary", "artifact", r.attempt.artifactPath, "target", target)

	input, err := os.Open(filepath.Clean(r.attempt.artifactPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.FatalKV(ctx, "Downloaded artifact disappeared before installation",
				"path", r.attempt.artifactPath)
		}

		return fmt.Errorf("open artifact: %w", err)
	}

	defer func() {
		_ = input.Close()
	}()

	// First install: the apply below swaps by rename, so the target must exist.
	if _, statErr := os.Stat(target); errors.Is(statErr, os.ErrNotExist) {
		placeholder, createErr := os.Create(filepath.Clean(target))
		if createErr != nil {
			return fmt.Errorf("create target binary: %w", createErr)
		}

		if createErr = placeholder.Close(); createErr != nil {
			return fmt.Errorf("close target binary: %w", createErr)
		}
	}

	applyOptions := goupdate.Options{
		TargetPath: target,
		TargetMode: installedBinaryMode,
	}

	if err = goupdate.Apply(input, applyOptions); err != nil {
		return fmt.Errorf("apply binary update: %w", err)
	}

	// The content now lives at the target; drop the download like a rename would.
	if err = os.Remove(r.attempt.artifactPath); err != nil {
		logger.WarnKV(ctx, "Removing applied artifact failed", "error", err)
	}

	return nil
}

// report produces the single terminal log line for the run and delivers the
// matching alert. Failures during or after service disruption are critical:
// the service may be down and nothing remediates it automatically.
func (r *runner) report(ctx context.Context, outcome Outcome, err error) {
	message := fmt.Sprintf("update run finished: %s (candidate: %s, installed: %s)",
		outcome, installedOrNone(r.attempt.candidate), installedOrNone(r.attempt.installed))
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}

	switch {
	case outcome == OutcomeSuccess:
		logger.Info(ctx, message)
		r.notify(ctx, alert.SeverityInfo, message)
	case outcome.clean():
		logger.Info(ctx, message)
	case outcome == OutcomeStopFailed || outcome == OutcomeStartFailed ||
		outcome == OutcomeHealthTimeout || r.attempt.disrupted:
		logger.Error(ctx, message)
		r.notify(ctx, alert.SeverityCritical, message)
	default:
		logger.Error(ctx, message)
		r.notify(ctx, alert.SeverityError, message)
	}
}

// notify delivers an alert, logging delivery failures instead of failing the run.
func (r *runner) notify(ctx context.Context, severity alert.Severity, message string) {
	if err := r.notifier.Notify(ctx, severity, message); err != nil {
		logger.WarnKV(ctx, "Alert delivery failed", "error", err)
	}
}

// installedOrNone renders an empty identifier as "none" for log readability.
func installedOrNone(identifier string) string {
	if identifier == "" {
		return "none"
	}

	return identifier
}

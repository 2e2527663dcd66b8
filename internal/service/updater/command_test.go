package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/node-updater/internal/config"
	"github.com/oshokin/node-updater/internal/domain/release"
	"github.com/oshokin/node-updater/internal/repository/state"
	"github.com/oshokin/node-updater/internal/service/alert"
	"github.com/oshokin/node-updater/internal/service/health"
	"github.com/oshokin/node-updater/internal/service/source"
)

// fakeSource serves a scripted latest release.
type fakeSource struct {
	release *source.Release
	err     error
	calls   int
}

func (s *fakeSource) LatestRelease(_ context.Context, _ bool) (*source.Release, error) {
	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	return s.release, nil
}

// fakeFetcher writes a real artifact file so the swap path operates on disk.
type fakeFetcher struct {
	dir   string
	body  []byte
	err   error
	calls int
	path  string
}

func (f *fakeFetcher) Fetch(_ context.Context, releaseID, _ string) (string, error) {
	f.calls++

	if f.err != nil {
		return "", f.err
	}

	f.path = filepath.Join(f.dir, releaseID)
	if err := os.WriteFile(f.path, f.body, 0o644); err != nil {
		return "", err
	}

	return f.path, nil
}

// fakeController records lifecycle calls and fails on demand.
type fakeController struct {
	stopErr   error
	startErr  error
	reloadErr error
	stops     int
	starts    int
	reloads   int
}

func (c *fakeController) Stop(_ context.Context, _ string) error {
	c.stops++

	return c.stopErr
}

func (c *fakeController) Start(_ context.Context, _ string) error {
	c.starts++

	return c.startErr
}

func (c *fakeController) ReloadManagerConfig(_ context.Context) error {
	c.reloads++

	return c.reloadErr
}

// fakeMonitor returns a scripted verdict.
type fakeMonitor struct {
	result health.Result
	err    error
	calls  int
}

func (m *fakeMonitor) Observe(_ context.Context, _ string) (health.Result, error) {
	m.calls++

	return m.result, m.err
}

// fakeNotifier records delivered alerts.
type fakeNotifier struct {
	severities []alert.Severity
	messages   []string
}

func (n *fakeNotifier) Notify(_ context.Context, severity alert.Severity, message string) error {
	n.severities = append(n.severities, severity)
	n.messages = append(n.messages, message)

	return nil
}

// fakeSnapshotter fails on demand to exercise the best-effort path.
type fakeSnapshotter struct {
	err   error
	calls int
}

func (s *fakeSnapshotter) Snapshot(_ context.Context) (string, error) {
	s.calls++

	if s.err != nil {
		return "", s.err
	}

	return "backup.tar.gz", nil
}

// testHarness bundles a runner with its fakes and on-disk fixtures.
type testHarness struct {
	runner     *runner
	source     *fakeSource
	fetcher    *fakeFetcher
	controller *fakeController
	monitor    *fakeMonitor
	notifier   *fakeNotifier
	statePath  string
	binaryPath string
}

// newHarness builds a runner around fakes, a real file-backed state store,
// and a real binary target in a temp directory.
func newHarness(t *testing.T, installed, candidate string) *testHarness {
	t.Helper()

	dir := t.TempDir()

	h := &testHarness{
		source:     &fakeSource{release: &source.Release{TagName: candidate}},
		fetcher:    &fakeFetcher{dir: dir, body: []byte("new-binary-" + candidate)},
		controller: &fakeController{},
		monitor:    &fakeMonitor{result: health.Live},
		notifier:   &fakeNotifier{},
		statePath:  filepath.Join(dir, "last_release.txt"),
		binaryPath: filepath.Join(dir, "nym-node"),
	}

	store := state.NewFileStore(h.statePath)
	if installed != "" {
		require.NoError(t, store.Save(context.Background(), installed))
		require.NoError(t, os.WriteFile(h.binaryPath, []byte("old-binary"), 0o755))
	}

	cfg := &config.Config{
		Repo:        "nymtech/nym",
		ServiceName: "nym-node",
		BinaryName:  "nym-node",
		BinaryDir:   dir,
		DownloadDir: dir,
		StateFile:   h.statePath,
	}
	require.NoError(t, config.Validate(cfg))

	h.runner = &runner{
		cfg:        cfg,
		comparator: release.NewComparator(cfg.ReleasePrefix),
		store:      store,
		source:     h.source,
		fetcher:    h.fetcher,
		controller: h.controller,
		monitor:    h.monitor,
		notifier:   h.notifier,
	}

	return h
}

// loadState reads the persisted release identifier.
func (h *testHarness) loadState(t *testing.T) string {
	t.Helper()

	got, err := state.NewFileStore(h.statePath).Load(context.Background())
	require.NoError(t, err)

	return got
}

// TestRun_FirstInstallSucceeds covers an empty baseline: the candidate is
// fetched, installed, restarted, verified live, and recorded.
func TestRun_FirstInstallSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", "v1.2")

	outcome, err := h.runner.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome)

	require.Equal(t, "v1.2", h.loadState(t))
	require.Equal(t, 1, h.controller.stops)
	require.Equal(t, 1, h.controller.reloads)
	require.Equal(t, 1, h.controller.starts)
	require.Equal(t, 1, h.monitor.calls)

	// The binary was swapped in and marked executable.
	contents, err := os.ReadFile(h.binaryPath)
	require.NoError(t, err)
	require.Equal(t, []byte("new-binary-v1.2"), contents)

	info, err := os.Stat(h.binaryPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// The applied artifact was cleaned up.
	require.NoFileExists(t, h.fetcher.path)

	// A success alert was delivered.
	h.runner.report(context.Background(), outcome, err)
	require.Equal(t, []alert.Severity{alert.SeverityInfo}, h.notifier.severities)
}

// TestRun_DowngradeRejected refuses an older candidate without touching
// anything: no fetch, no stop, no start, state unchanged.
func TestRun_DowngradeRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v2.3", "v2.1")

	outcome, err := h.runner.run(context.Background())
	require.ErrorIs(t, err, errDowngradeRejected)
	require.Equal(t, OutcomeDowngradeRejected, outcome)

	require.Equal(t, "v2.3", h.loadState(t))
	require.Zero(t, h.fetcher.calls)
	require.Zero(t, h.controller.stops)
	require.Zero(t, h.controller.starts)
}

// TestRun_StartFailedKeepsState aborts after a failed start with the
// recorded release unchanged.
func TestRun_StartFailedKeepsState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.0", "v1.1")
	h.controller.startErr = errors.New("unit failed to start")

	outcome, err := h.runner.run(context.Background())
	require.Error(t, err)
	require.Equal(t, OutcomeStartFailed, outcome)
	require.Equal(t, "v1.0", h.loadState(t))
	require.Zero(t, h.monitor.calls)

	// A post-disruption failure is a critical alert.
	h.runner.report(context.Background(), outcome, err)
	require.Equal(t, []alert.Severity{alert.SeverityCritical}, h.notifier.severities)
}

// TestRun_UpToDateIsIdempotent does nothing when the candidate matches the
// recorded release, no matter how often it runs.
func TestRun_UpToDateIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.2", "v1.2")

	for range 3 {
		outcome, err := h.runner.run(context.Background())
		require.NoError(t, err)
		require.Equal(t, OutcomeUpToDate, outcome)
	}

	require.Equal(t, "v1.2", h.loadState(t))
	require.Zero(t, h.fetcher.calls)
	require.Zero(t, h.controller.stops)
}

// TestRun_NoEligibleRelease terminates cleanly when the source offers nothing.
func TestRun_NoEligibleRelease(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.0", "ignored")
	h.source.release = nil
	h.source.err = source.ErrNoEligibleRelease

	outcome, err := h.runner.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeNoEligibleRelease, outcome)
	require.Equal(t, "v1.0", h.loadState(t))
}

// TestRun_FetchFailedBeforeDisruption aborts without stopping the service.
func TestRun_FetchFailedBeforeDisruption(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.0", "v1.1")
	h.fetcher.err = errors.New("connection reset")

	outcome, err := h.runner.run(context.Background())
	require.Error(t, err)
	require.Equal(t, OutcomeFetchFailed, outcome)
	require.Equal(t, "v1.0", h.loadState(t))
	require.Zero(t, h.controller.stops)
}

// TestRun_StopFailedKeepsArtifact aborts with the artifact retained on disk
// for the next run to resume.
func TestRun_StopFailedKeepsArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.0", "v1.1")
	h.controller.stopErr = errors.New("stop timed out")

	outcome, err := h.runner.run(context.Background())
	require.Error(t, err)
	require.Equal(t, OutcomeStopFailed, outcome)
	require.Equal(t, "v1.0", h.loadState(t))
	require.FileExists(t, h.fetcher.path)

	// The old binary was not touched.
	contents, err := os.ReadFile(h.binaryPath)
	require.NoError(t, err)
	require.Equal(t, []byte("old-binary"), contents)
}

// TestRun_HealthTimeoutStillPersists records the candidate even when the
// liveness confirmation fails: the swap and restart did complete, and state
// tracks what is installed rather than what is confirmed healthy.
func TestRun_HealthTimeoutStillPersists(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.0", "v1.1")
	h.monitor.result = health.Timeout

	outcome, err := h.runner.run(context.Background())
	require.ErrorIs(t, err, errHealthTimeout)
	require.Equal(t, OutcomeHealthTimeout, outcome)
	require.Equal(t, "v1.1", h.loadState(t))

	h.runner.report(context.Background(), outcome, err)
	require.Equal(t, []alert.Severity{alert.SeverityCritical}, h.notifier.severities)
}

// TestRun_BackupFailureIsNonFatal proceeds with the update when the snapshot fails.
func TestRun_BackupFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.0", "v1.1")

	snapshotter := &fakeSnapshotter{err: errors.New("disk full")}
	h.runner.snapshotter = snapshotter

	outcome, err := h.runner.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, outcome)
	require.Equal(t, 1, snapshotter.calls)
	require.Equal(t, "v1.1", h.loadState(t))
}

// TestRun_UnparseableCandidateAborts surfaces the version parse failure
// without side effects.
func TestRun_UnparseableCandidateAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "v1.0", "nightly-build")

	outcome, err := h.runner.run(context.Background())
	require.ErrorIs(t, err, release.ErrUnparseable)
	require.Equal(t, OutcomeUnknown, outcome)
	require.Equal(t, "v1.0", h.loadState(t))
	require.Zero(t, h.fetcher.calls)
	require.Zero(t, h.controller.stops)
}

// TestOutcome_CleanClassification pins which outcomes exit zero.
func TestOutcome_CleanClassification(t *testing.T) {
	t.Parallel()

	require.True(t, OutcomeSuccess.clean())
	require.True(t, OutcomeUpToDate.clean())
	require.True(t, OutcomeNoEligibleRelease.clean())
	require.False(t, OutcomeDowngradeRejected.clean())
	require.False(t, OutcomeFetchFailed.clean())
	require.False(t, OutcomeStopFailed.clean())
	require.False(t, OutcomeStartFailed.clean())
	require.False(t, OutcomeHealthTimeout.clean())
	require.False(t, OutcomeUnknown.clean())
}

// TestIsRunActive_FreshMarkerBlocks refuses overlapping runs while a fresh
// marker exists.
func TestIsRunActive_FreshMarkerBlocks(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.False(t, IsRunActive(context.Background()))

	require.NoError(t, os.WriteFile(MarkerFilename, nil, 0o600))
	require.True(t, IsRunActive(context.Background()))
}

// TestIsRunActive_StaleMarkerRecovered cleans up a marker older than its
// lifetime and lets the run proceed.
func TestIsRunActive_StaleMarkerRecovered(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(MarkerFilename, nil, 0o600))

	stale := time.Now().Add(-2 * markerLifetime)
	require.NoError(t, os.Chtimes(MarkerFilename, stale, stale))

	require.False(t, IsRunActive(context.Background()))
	require.NoFileExists(t, MarkerFilename)
}

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v5"

	"github.com/oshokin/node-updater/internal/logger"
)

// Fetcher retrieves a named artifact of a release into local storage and
// returns its path.
type Fetcher interface {
	Fetch(ctx context.Context, releaseID, artifactName string) (string, error)
}

// ErrFetchFailed is returned when the artifact cannot be downloaded.
var ErrFetchFailed = errors.New("artifact download failed")

const (
	// defaultBaseURL hosts GitHub release downloads.
	defaultBaseURL = "https://github.com"
	// defaultMaxTries bounds download attempts within one run.
	defaultMaxTries = 5
	// artifactFileMode is used for freshly created downloads; the file is
	// marked executable only when installed.
	artifactFileMode os.FileMode = 0o644
)

// HTTPFetcher downloads release artifacts over HTTP. Interrupted downloads
// are resumed with Range requests, and transient failures are retried with
// exponential backoff, picking up from the bytes already on disk.
type HTTPFetcher struct {
	// repo is the tracked repository in "owner/name" form.
	repo string
	// baseURL is the download host, overridable for tests.
	baseURL string
	// downloadDir is where artifacts are stored, named after the release.
	downloadDir string
	// client performs the HTTP requests. No global timeout is set because
	// large binaries legitimately take a while; cancellation comes from ctx.
	client *http.Client
	// maxTries bounds retry attempts per Fetch call.
	maxTries uint
}

// FetcherOption customizes the HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithBaseURL points the fetcher at a different download host.
func WithBaseURL(baseURL string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.baseURL = baseURL
	}
}

// WithMaxTries overrides how many download attempts are made before giving up.
func WithMaxTries(tries uint) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxTries = tries
	}
}

// NewHTTPFetcher creates a fetcher storing artifacts under downloadDir.
func NewHTTPFetcher(repo, downloadDir string, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		repo:        repo,
		baseURL:     defaultBaseURL,
		downloadDir: downloadDir,
		client:      &http.Client{},
		maxTries:    defaultMaxTries,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch downloads the named artifact of the given release. The local file is
// named after the release identifier so that a retry of the same release
// resumes instead of starting over.
func (f *HTTPFetcher) Fetch(ctx context.Context, releaseID, artifactName string) (string, error) {
	var (
		url    = fmt.Sprintf("%s/%s/releases/download/%s/%s", f.baseURL, f.repo, releaseID, artifactName)
		target = filepath.Join(f.downloadDir, releaseID)
	)

	logger.InfoKV(ctx, "Downloading artifact", "url", url, "target", target)

	operation := func() (string, error) {
		if err := f.download(ctx, url, target); err != nil {
			return "", err
		}

		return target, nil
	}

	path, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(f.maxTries))
	if err != nil {
		return "", err
	}

	return path, nil
}

// download performs one attempt, resuming from the bytes already present.
func (f *HTTPFetcher) download(ctx context.Context, url, target string) error {
	var offset int64
	if info, err := os.Stat(target); err == nil {
		offset = info.Size()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	if offset > 0 {
		request.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	response, err := f.client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	var output *os.File

	switch response.StatusCode {
	case http.StatusOK:
		// Full body; any partial file on disk is stale.
		output, err = os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, artifactFileMode)
	case http.StatusPartialContent:
		output, err = os.OpenFile(filepath.Clean(target), os.O_APPEND|os.O_WRONLY, artifactFileMode)
	case http.StatusRequestedRangeNotSatisfiable:
		// Everything is already on disk.
		return nil
	default:
		failure := fmt.Errorf("%w: %s from %s", ErrFetchFailed, response.Status, url)
		if response.StatusCode >= http.StatusInternalServerError {
			return failure
		}

		return backoff.Permanent(failure)
	}

	if err != nil {
		return backoff.Permanent(fmt.Errorf("open %s: %w", target, err))
	}

	defer func() {
		_ = output.Close()
	}()

	written, err := io.Copy(output, response.Body)
	if err != nil {
		// Keep the partial bytes; the next attempt resumes from here.
		return fmt.Errorf("%w: copy after %d bytes: %w", ErrFetchFailed, written, err)
	}

	return nil
}

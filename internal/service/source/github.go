package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/oshokin/node-updater/internal/logger"
)

// Release describes a published release of the tracked repository.
type Release struct {
	// TagName is the opaque release identifier, e.g. "v1.2".
	TagName string `json:"tag_name"`
	// Prerelease marks releases not yet considered stable.
	Prerelease bool `json:"prerelease"`
	// Draft marks unpublished releases; they are never eligible.
	Draft bool `json:"draft"`
}

// Source yields the latest published release of a single repository.
type Source interface {
	LatestRelease(ctx context.Context, includePrerelease bool) (*Release, error)
}

var (
	// ErrNoEligibleRelease is returned when the repository publishes nothing
	// matching the stability filter. It is a clean no-op, not a failure.
	ErrNoEligibleRelease = errors.New("no eligible release published")
	// ErrUnexpectedStatus is returned on non-2xx API responses.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

const (
	// defaultBaseURL is the public GitHub API endpoint.
	defaultBaseURL = "https://api.github.com"
	// listPageSize caps how many releases are scanned for a pre-release candidate.
	listPageSize = 20
)

// GitHub implements Source against the GitHub releases API.
type GitHub struct {
	// repo is the tracked repository in "owner/name" form.
	repo string
	// baseURL is the API endpoint, overridable for tests.
	baseURL string
	// token optionally authenticates requests to raise rate limits.
	token string
	// client performs the HTTP requests.
	client *http.Client
}

// Option customizes the GitHub source.
type Option func(*GitHub)

// WithBaseURL points the source at a different API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(g *GitHub) {
		g.baseURL = baseURL
	}
}

// WithToken authenticates API requests with a personal access token.
func WithToken(token string) Option {
	return func(g *GitHub) {
		g.token = token
	}
}

// WithTimeout bounds each API request.
func WithTimeout(timeout time.Duration) Option {
	return func(g *GitHub) {
		g.client.Timeout = timeout
	}
}

// NewGitHub creates a release source for the given "owner/name" repository.
func NewGitHub(repo string, opts ...Option) *GitHub {
	g := &GitHub{
		repo:    repo,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// LatestRelease returns the newest published release. With
// includePrerelease=false only stable releases qualify; the API's "latest"
// endpoint already excludes pre-releases and drafts. With
// includePrerelease=true the most recent non-draft release wins, stable or not.
func (g *GitHub) LatestRelease(ctx context.Context, includePrerelease bool) (*Release, error) {
	if !includePrerelease {
		return g.latestStable(ctx)
	}

	return g.latestAny(ctx)
}

// latestStable queries the dedicated "latest release" endpoint.
func (g *GitHub) latestStable(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", g.baseURL, g.repo)

	var release Release
	if err := g.getJSON(ctx, url, &release); err != nil {
		return nil, err
	}

	if release.TagName == "" {
		return nil, ErrNoEligibleRelease
	}

	return &release, nil
}

// latestAny scans the most recent releases and returns the first published one.
func (g *GitHub) latestAny(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases?per_page=%d", g.baseURL, g.repo, listPageSize)

	var releases []Release
	if err := g.getJSON(ctx, url, &releases); err != nil {
		return nil, err
	}

	// The API returns releases newest first.
	for i := range releases {
		if releases[i].Draft || releases[i].TagName == "" {
			continue
		}

		return &releases[i], nil
	}

	return nil, ErrNoEligibleRelease
}

// getJSON performs a GET request and decodes the JSON response body into out.
func (g *GitHub) getJSON(ctx context.Context, url string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	request.Header.Set("Accept", "application/vnd.github+json")

	if g.token != "" {
		request.Header.Set("Authorization", "Bearer "+g.token)
	}

	logger.DebugKV(ctx, "Querying release source", "url", url)

	response, err := g.client.Do(request)
	if err != nil {
		return fmt.Errorf("query %s: %w", url, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode == http.StatusNotFound {
		return ErrNoEligibleRelease
	}

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s from %s", ErrUnexpectedStatus, response.Status, url)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}

	return nil
}

package artifact

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFetch_FullDownload stores the artifact under the release identifier.
func TestFetch_FullDownload(t *testing.T) {
	t.Parallel()

	body := []byte("binary-contents")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/nymtech/nym/releases/download/v1.2/nym-node", r.URL.Path)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	dir := t.TempDir()
	f := NewHTTPFetcher("nymtech/nym", dir, WithBaseURL(server.URL))

	path, err := f.Fetch(context.Background(), "v1.2", "nym-node")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "v1.2"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

// TestFetch_ResumesPartialFile sends a Range request for existing bytes and
// appends the remainder on 206.
func TestFetch_ResumesPartialFile(t *testing.T) {
	t.Parallel()

	full := []byte("0123456789")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		require.True(t, strings.HasPrefix(rangeHeader, "bytes="))

		offset, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-"))
		require.NoError(t, err)

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(full)-1, len(full)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(full[offset:])
	}))
	defer server.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "v1.2")
	require.NoError(t, os.WriteFile(target, full[:4], 0o644))

	f := NewHTTPFetcher("nymtech/nym", dir, WithBaseURL(server.URL))

	path, err := f.Fetch(context.Background(), "v1.2", "nym-node")
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, full, got)
}

// TestFetch_NotFoundIsPermanent fails immediately on 404 without retrying.
func TestFetch_NotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTTPFetcher("nymtech/nym", t.TempDir(), WithBaseURL(server.URL))

	_, err := f.Fetch(context.Background(), "v9.9", "nym-node")
	require.ErrorIs(t, err, ErrFetchFailed)
	require.Equal(t, 1, calls)
}

// TestFetch_RetriesServerErrors keeps trying on 5xx and succeeds once the
// server recovers.
func TestFetch_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewHTTPFetcher("nymtech/nym", t.TempDir(), WithBaseURL(server.URL))

	path, err := f.Fetch(context.Background(), "v1.3", "nym-node")
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), got)
	require.Equal(t, 3, calls)
}

package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oshokin/node-updater/internal/config"
)

// Store defines persistence for the last installed release identifier.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, release string) error
}

// FileStore persists the identifier as a single line of text on disk.
// A missing file means no release was ever installed and is not an error.
type FileStore struct {
	// path is the filesystem location of the state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// NewFileStore creates a store that reads/writes the identifier at the provided path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: filepath.Clean(path),
	}
}

// Load reads the last installed release identifier from disk.
func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("read state file: %w", err)
	}

	return strings.TrimSpace(string(contents)), nil
}

// Save durably records the release identifier, replacing any previous value.
func (s *FileStore) Save(_ context.Context, release string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, []byte(release+"\n"), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

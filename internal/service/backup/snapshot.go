package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/node-updater/internal/logger"
)

// Snapshotter produces archival copies of the service data directory before
// an update mutates anything. Snapshots are a safety net, not a precondition;
// callers treat failures as non-fatal.
type Snapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

// timestampLayout names snapshots by creation time.
const timestampLayout = "20060102-150405"

// TarSnapshotter writes a gzip-compressed tar archive of the data directory.
type TarSnapshotter struct {
	// dataDir is the directory to archive.
	dataDir string
	// backupDir is where archives are written.
	backupDir string
	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewTarSnapshotter creates a snapshotter archiving dataDir into backupDir.
func NewTarSnapshotter(dataDir, backupDir string) *TarSnapshotter {
	return &TarSnapshotter{
		dataDir:   dataDir,
		backupDir: backupDir,
		now:       time.Now,
	}
}

// Snapshot archives the data directory and returns the archive path.
func (s *TarSnapshotter) Snapshot(ctx context.Context) (string, error) {
	name := fmt.Sprintf("%s-%s.tar.gz", filepath.Base(s.dataDir), s.now().UTC().Format(timestampLayout))
	target := filepath.Join(s.backupDir, name)

	logger.InfoKV(ctx, "Snapshotting data directory", "data_dir", s.dataDir, "target", target)

	output, err := os.Create(filepath.Clean(target))
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}

	defer func() {
		_ = output.Close()
	}()

	compressor := gzip.NewWriter(output)
	archive := tar.NewWriter(compressor)

	if err := s.archiveTree(ctx, archive); err != nil {
		return "", err
	}

	if err := archive.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}

	if err := compressor.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}

	return target, nil
}

// archiveTree walks the data directory and writes every directory and
// regular file into the archive with paths relative to the data directory.
func (s *TarSnapshotter) archiveTree(ctx context.Context, archive *tar.Writer) error {
	return filepath.WalkDir(s.dataDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		relative, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}

		if relative == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		// Sockets, devices, and other irregular files are skipped.
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("build header for %s: %w", path, err)
		}

		header.Name = filepath.ToSlash(relative)

		if err := archive.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %s: %w", path, err)
		}

		if info.IsDir() {
			return nil
		}

		return s.archiveFile(archive, path)
	})
}

// archiveFile copies one regular file's contents into the archive.
func (s *TarSnapshotter) archiveFile(archive *tar.Writer, path string) error {
	input, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = input.Close()
	}()

	if _, err := io.Copy(archive, input); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}

	return nil
}

// Package storage owns the mirror's output directory.
//
// All paths handed to a Store are slash-separated and relative to the
// output root, as produced by the path resolver. Files are written through
// a temporary file and renamed into place, so a reader never sees a
// half-written artifact and a canceled run leaves whole files only.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0750
	filePerm = 0644
)

var (
	// ErrParentMissing is returned when the output directory's parent does
	// not exist.
	ErrParentMissing = errors.New("parent of output directory does not exist")

	// ErrNotDirectory is returned when the output path exists but is a file.
	ErrNotDirectory = errors.New("output path is not a directory")

	// ErrUnsafeOutput is returned when clearing the output path would wipe
	// the filesystem root or the user's home directory.
	ErrUnsafeOutput = errors.New("refusing to clear output directory")

	// ErrOutsideRoot is returned for a relative path that escapes the root.
	ErrOutsideRoot = errors.New("path escapes output directory")
)

// Store reads and writes mirror files under a root directory.
// Store is safe for concurrent use as long as distinct goroutines write
// distinct paths.
type Store struct {
	root string
}

// New creates a Store rooted at root. Call Prepare before writing.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the output directory.
func (s *Store) Root() string {
	return s.root
}

// Prepare makes the output directory ready for a fresh mirror. The parent
// directory must already exist. An existing output directory is emptied;
// a missing one is created.
func (s *Store) Prepare() error {
	abs, err := filepath.Abs(s.root)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if err := checkSafe(abs); err != nil {
		return err
	}

	parent := filepath.Dir(abs)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrParentMissing, parent)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.Mkdir(abs, dirPerm); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat output directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("failed to read output directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(abs, e.Name())); err != nil {
			return fmt.Errorf("failed to clear output directory: %w", err)
		}
	}
	return nil
}

// checkSafe rejects output directories whose clearing would be disastrous.
func checkSafe(abs string) error {
	if filepath.Dir(abs) == abs {
		return fmt.Errorf("%w: %s is a filesystem root", ErrUnsafeOutput, abs)
	}
	if home, err := os.UserHomeDir(); err == nil && filepath.Clean(home) == abs {
		return fmt.Errorf("%w: %s is the home directory", ErrUnsafeOutput, abs)
	}
	return nil
}

// Path returns the OS path of a root-relative path.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Write stores data at rel, creating parent directories as needed.
func (s *Store) Write(rel string, data []byte) error {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	dst := filepath.Join(s.root, local)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(dir, ".sitemirror-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // removed by rename on success

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", rel, err)
	}
	return nil
}

// Read returns the contents of rel.
func (s *Store) Read(rel string) ([]byte, error) {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return os.ReadFile(filepath.Join(s.root, local))
}

// Exists reports whether rel is an existing regular file.
func (s *Store) Exists(rel string) bool {
	info, err := os.Stat(s.Path(rel))
	return err == nil && info.Mode().IsRegular()
}

package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// StagingRoot is the directory (relative to the base dir) holding per-request staging areas.
const StagingRoot = "staging"

// ErrOutsideBase is returned when a relative path escapes the storage root.
var ErrOutsideBase = errors.New("path escapes storage base directory")

// LocalStorage persists files on disk under a base directory. Paths handed in
// and out are relative to that base and use forward slashes.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

// BaseDir returns the absolute storage root.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// NewStagingArea creates an empty staging directory and returns its relative path.
func (s *LocalStorage) NewStagingArea() (string, error) {
	rel := filepath.ToSlash(filepath.Join(StagingRoot, uuid.NewString()))
	path, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return rel, nil
}

// Write stores bytes at the relative path, creating parent directories.
func (s *LocalStorage) Write(rel string, data []byte) error {
	path, err := s.prepare(rel)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// MoveIn moves an external file (e.g. an upload temp file) to the relative path.
func (s *LocalStorage) MoveIn(src, rel string) error {
	path, err := s.prepare(rel)
	if err != nil {
		return err
	}
	return moveFile(src, path)
}

// Promote renames a stored file to a new relative path, replacing any previous file there.
func (s *LocalStorage) Promote(fromRel, toRel string) error {
	from, err := s.resolve(fromRel)
	if err != nil {
		return err
	}
	to, err := s.prepare(toRel)
	if err != nil {
		return err
	}
	return moveFile(from, to)
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(rel string) (*os.File, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rel, err)
	}
	return file, nil
}

// RemoveAll deletes a relative file or directory tree if present.
func (s *LocalStorage) RemoveAll(rel string) error {
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if path == s.baseDir {
		return ErrOutsideBase
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

// CleanupOlderThan removes entries directly under dir whose modification time is
// older than ttl and returns the removed relative paths.
func (s *LocalStorage) CleanupOlderThan(dir string, ttl time.Duration) ([]string, error) {
	root, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return deleted, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return deleted, fmt.Errorf("cleanup %s: %w", entry.Name(), err)
		}
		deleted = append(deleted, filepath.ToSlash(filepath.Join(dir, entry.Name())))
	}
	return deleted, nil
}

// Path exposes the absolute path for a relative one.
func (s *LocalStorage) Path(rel string) (string, error) {
	return s.resolve(rel)
}

// RemoveFile deletes an arbitrary file path, ignoring files that are already gone.
func RemoveFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStorage) prepare(rel string) (string, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare directory for %s: %w", rel, err)
	}
	return path, nil
}

func (s *LocalStorage) resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", ErrOutsideBase
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(rel))
	if path != s.baseDir && !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", ErrOutsideBase
	}
	return path, nil
}

// moveFile renames src to dst, falling back to copy+unlink across devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("move %s: %w", filepath.Base(src), err)
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return RemoveFile(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck
		return fmt.Errorf("copy file: %w", err)
	}
	return out.Close()
}

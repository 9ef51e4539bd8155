package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage persists uploaded files on disk under a base directory. Keys
// are relative paths of the form <project_id>/<folder_path>/<stored_name>;
// folder paths have already passed sanitization by the time they reach here.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./storage"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveStream copies from reader into the target file under the base dir.
func (s *LocalStorage) SaveStream(key string, r io.Reader) (int64, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create stored file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	written, err := io.Copy(file, r)
	if err != nil {
		return 0, fmt.Errorf("write stored file: %w", err)
	}
	return written, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(key string) (*os.File, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file. A missing file is not an error so repeated
// deletes stay idempotent.
func (s *LocalStorage) Delete(key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// DeleteTree removes a whole key prefix, such as a project's directory.
// Missing trees are ignored.
func (s *LocalStorage) DeleteTree(prefix string) error {
	if err := os.RemoveAll(s.resolve(prefix)); err != nil {
		return fmt.Errorf("delete stored tree: %w", err)
	}
	return nil
}

// Path exposes the resolved on-disk path (useful for debugging).
func (s *LocalStorage) Path(key string) string {
	return s.resolve(key)
}

// resolve always anchors the key under the base directory. Keys are built
// from trusted components, but absolute inputs are never honoured.
func (s *LocalStorage) resolve(key string) string {
	return filepath.Join(s.baseDir, filepath.Clean("/"+key))
}

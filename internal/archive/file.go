package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore archives documents under a local directory tree. Keys map to
// relative paths; writes go through a temp file and rename so readers
// never observe a partial document.
type FileStore struct {
	root   string
	prefix string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the root directory if needed.
func NewFileStore(dir, prefix string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive: file backend requires a directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("archive: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", abs, err)
	}
	return &FileStore{root: abs, prefix: prefix}, nil
}

// Put implements Store.
func (f *FileStore) Put(_ context.Context, key, _ string, body []byte) error {
	rel, err := f.relPath(key)
	if err != nil {
		return err
	}
	dst := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("archive: create parent of %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".archive-*")
	if err != nil {
		return fmt.Errorf("archive: temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("archive: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("archive: rename %s: %w", key, err)
	}
	return nil
}

// relPath validates a key and converts it to a platform path under root.
func (f *FileStore) relPath(key string) (string, error) {
	full := path.Join(f.prefix, key)
	clean := path.Clean(full)
	if clean == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("archive: invalid key %q", key)
	}
	return filepath.FromSlash(clean), nil
}

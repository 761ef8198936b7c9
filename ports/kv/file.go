package kv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one file per key inside a directory. It backs the
// settings cache (key "settings.cache" becomes a plain JSON file in the
// actor's working directory, inspectable and editable by hand).
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir}
}

func (f *FileStore) path(key string) string {
	// Keys are file names; path separators are not allowed through.
	key = strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(f.dir, key)
}

func (f *FileStore) Put(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path(key))
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)

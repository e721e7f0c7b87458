package session

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"medicore-client/internal/model"
)

// Cache persists the last-known user record across restarts so the first
// render can be optimistic. It holds exactly one key. A corrupt or
// unreadable entry reads as absent, never as an error: the cache only ever
// seeds state that the next session check overwrites anyway.
type Cache interface {
	Read(ctx context.Context) (*model.User, error)
	Write(ctx context.Context, u *model.User) error
	Clear(ctx context.Context) error
}

// FileCache stores the user record as a JSON file, the closest local
// analog to a browser's persistent storage.
type FileCache struct {
	path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

func (c *FileCache) Read(ctx context.Context) (*model.User, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(b, &u); err != nil || u.ID == "" {
		// corrupt entry, treat as absent
		return nil, nil
	}
	return &u, nil
}

func (c *FileCache) Write(ctx context.Context, u *model.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o600)
}

func (c *FileCache) Clear(ctx context.Context) error {
	err := os.Remove(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

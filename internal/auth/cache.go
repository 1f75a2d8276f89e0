package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// cacheFile is the persisted token cache: one record per token kind.
// The websocket URL travels with the streaming token since both come
// from the same exchange.
type cacheFile struct {
	Access       *Token `json:"access,omitempty"`
	Streaming    *Token `json:"streaming,omitempty"`
	WebsocketURL string `json:"websocket_url,omitempty"`
}

// Cache persists tokens across process restarts.
type Cache struct {
	path string
}

func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Load reads the cache file. A missing file is not an error; it simply
// yields an empty cache.
func (c *Cache) Load() (cacheFile, error) {
	var cf cacheFile
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cf, nil
		}
		return cf, fmt.Errorf("reading token cache: %w", err)
	}
	if err := json.Unmarshal(data, &cf); err != nil {
		return cacheFile{}, fmt.Errorf("decoding token cache: %w", err)
	}
	return cf, nil
}

// Save rewrites the cache file atomically (write to temp, rename).
func (c *Cache) Save(cf cacheFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token cache: %w", err)
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating token cache directory: %w", err)
		}
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("writing token cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming token cache: %w", err)
	}
	return nil
}

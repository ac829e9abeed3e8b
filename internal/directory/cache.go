package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache persists the last successfully fetched campaign list to a JSON file
// at an explicit path, so the client can keep showing campaigns when the
// directory server is unreachable. It deliberately takes a configured path
// instead of reading any ambient location.
type Cache struct {
	path string
}

type cacheFile struct {
	SavedAt   time.Time  `json:"savedAt"`
	Campaigns []Campaign `json:"campaigns"`
}

// NewCache creates a cache at the given file path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Save writes the campaign list, replacing any previous contents atomically.
func (c *Cache) Save(campaigns []Campaign) error {
	data, err := json.Marshal(cacheFile{SavedAt: time.Now().UTC(), Campaigns: campaigns})
	if err != nil {
		return fmt.Errorf("directory: encode cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("directory: cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("directory: write cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("directory: replace cache: %w", err)
	}
	return nil
}

// Load reads the cached campaign list. A missing cache is an error; callers
// treat it as "no degrade path available".
func (c *Cache) Load() ([]Campaign, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("directory: read cache: %w", err)
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("directory: decode cache: %w", err)
	}
	return f.Campaigns, nil
}

package colors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/harrisonrobin/agmd/pkg/config"
)

const (
	cacheFile = "file_colors.json"

	// NoFileColor is Google's graphite, used for todos without a source file.
	NoFileColor = "8"

	// Calendar event colors run from 1 (lavender) to 11 (tomato).
	firstColor = 1
	lastColor  = 11
)

type FileState struct {
	ColorID  string    `json:"color_id"`
	LastUsed time.Time `json:"last_used"`
}

// ColorCache hands out one event color per source file. When every color is
// taken the least recently used file gives its color up.
type ColorCache struct {
	Path  string                `json:"-"`
	Files map[string]*FileState `json:"files"`
	dirty bool
	now   func() time.Time
}

func NewColorCache() (*ColorCache, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	return NewColorCacheAt(filepath.Join(dir, cacheFile))
}

// NewColorCacheAt loads the cache stored at path, if any.
func NewColorCacheAt(path string) (*ColorCache, error) {
	c := &ColorCache{
		Path:  path,
		Files: make(map[string]*FileState),
		now:   time.Now,
	}
	if _, err := os.Stat(path); err == nil {
		if err := c.Load(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *ColorCache) Load() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&c.Files); err != nil {
		return errors.Wrapf(err, "failed to decode color cache %s", c.Path)
	}
	return nil
}

func (c *ColorCache) Save() error {
	if !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return errors.Wrap(err, "failed to create color cache directory")
	}
	f, err := os.Create(c.Path)
	if err != nil {
		return errors.Wrap(err, "failed to create color cache file")
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(c.Files); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ColorID returns the color of file and marks it as recently used.
func (c *ColorCache) ColorID(file string) string {
	if file == "" {
		return NoFileColor
	}
	if state, ok := c.Files[file]; ok {
		state.LastUsed = c.now()
		c.dirty = true
		return state.ColorID
	}
	return c.assign(file)
}

func (c *ColorCache) assign(file string) string {
	used := make(map[string]bool)
	for _, s := range c.Files {
		used[s.ColorID] = true
	}

	id := ""
	for i := firstColor; i <= lastColor; i++ {
		if candidate := strconv.Itoa(i); !used[candidate] {
			id = candidate
			break
		}
	}
	if id == "" {
		var oldest string
		for f, s := range c.Files {
			if oldest == "" || s.LastUsed.Before(c.Files[oldest].LastUsed) {
				oldest = f
			}
		}
		id = c.Files[oldest].ColorID
		delete(c.Files, oldest)
	}

	c.Files[file] = &FileState{ColorID: id, LastUsed: c.now()}
	c.dirty = true
	return id
}

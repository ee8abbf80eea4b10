package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/harrisonrobin/agmd/pkg/config"
)

const indexFile = "events.json"

// EventIndex maps todo IDs to the calendar events mirroring them.
type EventIndex struct {
	Mappings map[string]string `json:"mappings"`
	Path     string            `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

func NewEventIndex() (*EventIndex, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	return NewEventIndexAt(filepath.Join(dir, indexFile))
}

// NewEventIndexAt loads the index stored at path, if any.
func NewEventIndexAt(path string) (*EventIndex, error) {
	idx := &EventIndex{
		Mappings: make(map[string]string),
		Path:     path,
	}
	if _, err := os.Stat(path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *EventIndex) Load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&idx.Mappings); err != nil {
		return errors.Wrapf(err, "failed to decode event index %s", idx.Path)
	}
	return nil
}

func (idx *EventIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(idx.Path), 0700); err != nil {
		return err
	}
	f, err := os.Create(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(idx.Mappings); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *EventIndex) Get(todoID string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[todoID]
}

func (idx *EventIndex) Set(todoID, eventID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[todoID] != eventID {
		idx.Mappings[todoID] = eventID
		idx.dirty = true
	}
}

func (idx *EventIndex) Remove(todoID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[todoID]; exists {
		delete(idx.Mappings, todoID)
		idx.dirty = true
	}
}

// IDs returns the indexed todo IDs in sorted order.
func (idx *EventIndex) IDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]string, 0, len(idx.Mappings))
	for id := range idx.Mappings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Package sessioncache remembers the operator's active period selection
// across session restarts.
package sessioncache

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/andreddluiz/shiftflow/internal/yamlio"
)

// Selection is the operator's working period. An empty field means not
// selected yet.
type Selection struct {
	Date        string `yaml:"date"`
	ShiftSlotID string `yaml:"shift_slot_id"`
}

func (s Selection) Complete() bool {
	return s.Date != "" && s.ShiftSlotID != ""
}

// Cache persists the selection between session runs.
type Cache interface {
	// Load returns the saved selection, or (nil, nil) when none exists.
	Load() (*Selection, error)
	Save(sel Selection) error
	Clear() error
}

// FileCache keeps the selection in one YAML file inside .shiftflow/.
type FileCache struct {
	path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

func (c *FileCache) Load() (*Selection, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session cache: %w", err)
	}

	var sel Selection
	if err := yaml.Unmarshal(data, &sel); err != nil {
		// A corrupt cache is not worth recovering; the operator reselects.
		os.Remove(c.path)
		return nil, nil
	}
	return &sel, nil
}

func (c *FileCache) Save(sel Selection) error {
	if err := yamlio.AtomicWrite(c.path, sel); err != nil {
		return fmt.Errorf("save session cache: %w", err)
	}
	return nil
}

func (c *FileCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session cache: %w", err)
	}
	os.Remove(c.path + ".bak")
	return nil
}

// Memory is an in-memory Cache for tests.
type Memory struct {
	mu  sync.Mutex
	sel *Selection
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load() (*Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sel == nil {
		return nil, nil
	}
	sel := *m.sel
	return &sel, nil
}

func (m *Memory) Save(sel Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel = &sel
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel = nil
	return nil
}

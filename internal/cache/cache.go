// Package cache provides the session-local translation from friendly IDs to
// Trello IDs, one mapping per hierarchy level.
package cache

import (
	"fmt"
	"sync"

	"iroha/internal/hierarchy"
	"iroha/internal/utils"
)

// Driver names accepted by New.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Item is one cached remote entity. Its level is the mapping that holds it.
type Item struct {
	RemoteID string
	Name     string
}

// Entry is an Item together with the friendly ID it is filed under.
type Entry struct {
	ID string
	Item
}

// Store holds one cache generation. A refresh replaces a level wholesale;
// entries are never merged across refreshes.
type Store interface {
	// Clear drops every entry of level.
	Clear(level hierarchy.Level) error
	// Insert files item under id in level, replacing any previous entry for id.
	Insert(level hierarchy.Level, id string, item Item) error
	// Replace clears level and inserts entries in order.
	Replace(level hierarchy.Level, entries []Entry) error
	// Lookup returns the item filed under id, or an error matching utils.ErrNotFound.
	Lookup(level hierarchy.Level, id string) (Item, error)
	// Entries returns the entries of level in insertion order.
	Entries(level hierarchy.Level) ([]Entry, error)
	// Close releases the store.
	Close() error
}

// New creates a store for the named driver. An empty name selects the memory driver.
func New(driver string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite()
	}
	return nil, fmt.Errorf("unknown cache driver: %q", driver)
}

// levelMap is the per-level state of a Memory store.
type levelMap struct {
	items map[string]Item
	order []string
}

// Memory is a Store backed by maps.
type Memory struct {
	mu     sync.RWMutex
	levels map[hierarchy.Level]*levelMap
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{levels: make(map[hierarchy.Level]*levelMap)}
	for _, l := range hierarchy.Levels {
		m.levels[l] = &levelMap{items: make(map[string]Item)}
	}
	return m
}

func (m *Memory) level(l hierarchy.Level) (*levelMap, error) {
	lm, ok := m.levels[l]
	if !ok {
		return nil, fmt.Errorf("unknown level: %s", l)
	}
	return lm, nil
}

// Clear drops every entry of level.
func (m *Memory) Clear(level hierarchy.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.level(level); err != nil {
		return err
	}
	m.levels[level] = &levelMap{items: make(map[string]Item)}
	return nil
}

// Insert files item under id in level.
func (m *Memory) Insert(level hierarchy.Level, id string, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm, err := m.level(level)
	if err != nil {
		return err
	}
	if _, exists := lm.items[id]; !exists {
		lm.order = append(lm.order, id)
	}
	lm.items[id] = item
	return nil
}

// Replace clears level and inserts entries in order.
func (m *Memory) Replace(level hierarchy.Level, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.level(level); err != nil {
		return err
	}
	lm := &levelMap{items: make(map[string]Item, len(entries))}
	for _, e := range entries {
		if _, exists := lm.items[e.ID]; !exists {
			lm.order = append(lm.order, e.ID)
		}
		lm.items[e.ID] = e.Item
	}
	m.levels[level] = lm
	return nil
}

// Lookup returns the item filed under id.
func (m *Memory) Lookup(level hierarchy.Level, id string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lm, err := m.level(level)
	if err != nil {
		return Item{}, err
	}
	item, ok := lm.items[id]
	if !ok {
		return Item{}, utils.ErrItemNotFound(level.String(), id)
	}
	return item, nil
}

// Entries returns the entries of level in insertion order.
func (m *Memory) Entries(level hierarchy.Level) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lm, err := m.level(level)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lm.order))
	for _, id := range lm.order {
		entries = append(entries, Entry{ID: id, Item: lm.items[id]})
	}
	return entries, nil
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)

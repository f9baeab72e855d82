package options

import (
	"sync"

	"github.com/goliatone/go-formflow/pkg/model"
)

type cacheKey struct {
	section string
	field   string
}

// Cache keeps the most recent option list fetched for a (section template,
// field) pair so new duplicates can reuse it instead of refetching.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey][]model.Option
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][]model.Option)}
}

// Get returns a copy of the cached list.
func (c *Cache) Get(sectionID, field string) ([]model.Option, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	options, ok := c.entries[cacheKey{section: sectionID, field: field}]
	if !ok {
		return nil, false
	}
	return model.CloneOptions(options), true
}

// Put stores a copy of options.
func (c *Cache) Put(sectionID, field string, options []model.Option) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{section: sectionID, field: field}] = model.CloneOptions(options)
}

// Delete forgets the cached list.
func (c *Cache) Delete(sectionID, field string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{section: sectionID, field: field})
}

// Clear drops every entry.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey][]model.Option)
}

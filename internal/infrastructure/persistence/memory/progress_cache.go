package memory

import (
	"context"
	"sync"

	"github.com/titinauta/journey-engine/internal/application/query"
	"github.com/titinauta/journey-engine/internal/domain/journey"
)

// ProgressCache is an in-process query.ProgressCache for single-instance
// deployments without Redis.
type ProgressCache struct {
	mu          sync.RWMutex
	entries     map[string]map[string]journey.Overall
	generations map[string]uint64
}

// NewProgressCache creates an empty cache.
func NewProgressCache() *ProgressCache {
	return &ProgressCache{
		entries:     make(map[string]map[string]journey.Overall),
		generations: make(map[string]uint64),
	}
}

// Generation returns the child's projection generation.
func (c *ProgressCache) Generation(_ context.Context, childID string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[childID], nil
}

// GetOverall returns a copy of the cached projection, or nil on a miss.
func (c *ProgressCache) GetOverall(_ context.Context, childID, variant string) (*journey.Overall, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	o, ok := c.entries[childID][variant]
	if !ok {
		return nil, nil
	}
	o.Modules = append([]journey.ModuleProgress(nil), o.Modules...)
	return &o, nil
}

// SetOverall stores a copy of o unless the child was invalidated after gen
// was read.
func (c *ProgressCache) SetOverall(_ context.Context, childID, variant string, gen uint64, o *journey.Overall) error {
	if o == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[childID] != gen {
		return nil
	}

	variants, ok := c.entries[childID]
	if !ok {
		variants = make(map[string]journey.Overall)
		c.entries[childID] = variants
	}
	stored := *o
	stored.Modules = append([]journey.ModuleProgress(nil), o.Modules...)
	variants[variant] = stored
	return nil
}

// InvalidateChild drops every projection of the child and bumps its
// generation.
func (c *ProgressCache) InvalidateChild(_ context.Context, childID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, childID)
	c.generations[childID]++
	return nil
}

// Len reports how many children have cached projections.
func (c *ProgressCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ query.ProgressCache = (*ProgressCache)(nil)

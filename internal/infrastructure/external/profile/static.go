package profile

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// StaticProvider serves profiles from memory. It backs tests and local runs
// without a profile service.
type StaticProvider struct {
	mu       sync.RWMutex
	children map[string]child.Child
	owners   map[string]map[string]bool
}

// NewStaticProvider creates a provider seeded with children.
func NewStaticProvider(children ...child.Child) *StaticProvider {
	p := &StaticProvider{
		children: make(map[string]child.Child),
		owners:   make(map[string]map[string]bool),
	}
	for _, c := range children {
		p.Put(c)
	}
	return p
}

// Put adds or replaces a child.
func (p *StaticProvider) Put(c child.Child) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[c.ID] = c
}

// Grant lets userID access childID.
func (p *StaticProvider) Grant(userID, childID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.owners[childID] == nil {
		p.owners[childID] = make(map[string]bool)
	}
	p.owners[childID][userID] = true
}

// GetChild returns a copy of the stored profile.
func (p *StaticProvider) GetChild(_ context.Context, childID string) (*child.Child, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.children[childID]
	if !ok {
		return nil, shared.ErrChildNotFound
	}
	return &c, nil
}

// CanAccess allows granted users. A child with no grants at all is open to
// everyone.
func (p *StaticProvider) CanAccess(_ context.Context, userID, childID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	owners, ok := p.owners[childID]
	if !ok {
		return true, nil
	}
	return owners[userID], nil
}

var (
	_ child.ProfileProvider = (*StaticProvider)(nil)
	_ child.Authorizer      = (*StaticProvider)(nil)
)

// seedFile is the YAML layout read by LoadSeedFile.
type seedFile struct {
	Children []struct {
		ChildDTO `yaml:",inline"`
		Users    []string `yaml:"users"`
	} `yaml:"children"`
}

// LoadSeedFile builds a StaticProvider from a YAML file:
//
//	children:
//	  - id: c1
//	    birthdate: 2025-06-15
//	    gender: female
//	    display_name: Ana
//	    users: [u1]
func LoadSeedFile(path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile seed %s: %w", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode profile seed %s: %w", path, err)
	}

	p := NewStaticProvider()
	for i, entry := range seed.Children {
		if strings.TrimSpace(entry.ID) == "" {
			return nil, fmt.Errorf("profile seed %s: child %d has no id", path, i)
		}
		c, err := entry.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("profile seed %s: child %s: %w", path, entry.ID, err)
		}
		p.Put(*c)
		for _, u := range entry.Users {
			p.Grant(u, c.ID)
		}
	}
	return p, nil
}

package render

import (
	"fmt"
	"sort"
	"sync"
)

// ID identifies a configured backend adapter.
type ID string

const (
	ProviderGemini  ID = "gemini"
	ProviderKling   ID = "kling"
	ProviderSDWebUI ID = "sdwebui"
	ProviderComfy   ID = "comfy"
)

// Registry maps provider identifiers to constructed adapters. Schedulers
// resolve the active adapter once per job instead of branching on identity
// at each call site.
type Registry struct {
	mu        sync.RWMutex
	providers map[ID]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[ID]Provider)}
}

// Register installs or replaces the adapter for an identifier.
func (r *Registry) Register(id ID, p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
}

// Resolve returns the adapter for an identifier.
func (r *Registry) Resolve(id ID) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", id)
	}
	return p, nil
}

// IDs returns the registered identifiers in stable order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ID, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

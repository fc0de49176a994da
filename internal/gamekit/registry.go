// internal/gamekit/registry.go
package gamekit

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds game modules by id. Modules are registered explicitly at
// startup; there is no directory scanning or reflection-driven discovery.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module under its metadata id. Duplicate ids are rejected.
func (r *Registry) Register(mod Module) error {
	if mod == nil {
		return fmt.Errorf("nil module")
	}
	meta := mod.Metadata()
	if meta.ID == "" {
		return fmt.Errorf("module metadata has empty id")
	}
	if meta.MinPlayers < 1 || meta.MaxPlayers < meta.MinPlayers {
		return fmt.Errorf("module %q has invalid player range %d-%d", meta.ID, meta.MinPlayers, meta.MaxPlayers)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[meta.ID]; exists {
		return fmt.Errorf("%w: %s", ErrGameAlreadyRegistered, meta.ID)
	}
	r.modules[meta.ID] = mod
	return nil
}

// MustRegister panics on a registration error. Intended for startup wiring
// where a duplicate id is a programming mistake.
func (r *Registry) MustRegister(mod Module) {
	if err := r.Register(mod); err != nil {
		panic(err)
	}
}

// Get returns the module for id.
func (r *Registry) Get(id string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return mod, nil
}

// List returns the metadata of every registered game, sorted by id.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	metas := make([]Metadata, 0, len(r.modules))
	for _, mod := range r.modules {
		metas = append(metas, mod.Metadata())
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })
	return metas
}

package stressor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps stressor names and ids to modules.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Module
	byID    map[uint32]Module
	ordered []Module
}

func NewRegistry() *Registry {
	return &Registry{
		byName: map[string]Module{},
		byID:   map[uint32]Module{},
	}
}

// Register adds a module to the catalog. Ids and munged names must be
// unique across the catalog.
func (r *Registry) Register(m Module) error {
	info := m.Info()
	name := MungeName(info.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[info.ID]; ok {
		return fmt.Errorf("stressor id %d already registered", info.ID)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("stressor %q already registered", info.Name)
	}
	r.byID[info.ID] = m
	r.byName[name] = m
	r.ordered = append(r.ordered, m)
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Info().ID < r.ordered[j].Info().ID
	})
	return nil
}

// Lookup resolves a module by name, munging case and separators.
func (r *Registry) Lookup(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byName[MungeName(name)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown stressor %q, valid stressors are: %s",
		name, strings.Join(r.namesLocked(), " "))
}

// ByID resolves a module by its id.
func (r *Registry) ByID(id uint32) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byID[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown stressor id %d", id)
}

// All returns the catalog ordered by id.
func (r *Registry) All() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Names returns the munged catalog names ordered by id.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	out := make([]string, 0, len(r.ordered))
	for _, m := range r.ordered {
		out = append(out, MungeName(m.Info().Name))
	}
	return out
}

// ClassMembers lists the munged names of catalog entries in the class.
func (r *Registry) ClassMembers(c Class) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, m := range r.ordered {
		if m.Info().Class.Intersects(c) {
			out = append(out, MungeName(m.Info().Name))
		}
	}
	return out
}

package skill

import (
	"fmt"
	"sync"
)

// View is the read-only side of the registry handed to skills and tooling
type View interface {
	Get(name string) (*LoadedSkill, bool)
	List() []*LoadedSkill
	Names() []string
	Len() int
}

// Registry tracks loaded skills in load order. A skill is only accepted once
// everything it requires is already registered.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*LoadedSkill
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*LoadedSkill),
	}
}

// Add appends a loaded skill
func (r *Registry) Add(ls *LoadedSkill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ls.Name()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s already registered", ErrDuplicateSkill, name)
	}
	if err := r.checkRequirements(ls.Manifest); err != nil {
		return err
	}

	r.entries[name] = ls
	r.order = append(r.order, name)
	return nil
}

// Replace swaps the entry for ls's name, keeping its position, and returns the
// previous entry
func (r *Registry) Replace(ls *LoadedSkill) (*LoadedSkill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := ls.Name()
	old, exists := r.entries[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	if err := r.checkRequirements(ls.Manifest); err != nil {
		return nil, err
	}
	others := make([]*LoadedSkill, 0, len(r.order))
	for _, n := range r.order {
		others = append(others, r.entries[n])
	}
	if err := dependentConflict(ls.Manifest, others); err != nil {
		return nil, err
	}

	r.entries[name] = ls
	return old, nil
}

// Remove deletes a skill no other registered skill requires
func (r *Registry) Remove(name string) (*LoadedSkill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.entries[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	for _, other := range r.order {
		if _, ok := r.entries[other].Manifest.Requirement(name); ok {
			return nil, fmt.Errorf("%w: %s is required by %s", ErrHasDependents, name, other)
		}
	}

	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return old, nil
}

// checkRequirements must be called with mu held
func (r *Registry) checkRequirements(m *Manifest) error {
	for _, req := range m.Requires {
		if _, ok := r.entries[req.Name]; !ok {
			return &MissingDependencyError{Skill: m.Name, Missing: req.Name}
		}
	}
	return nil
}

// CheckDependents verifies that every skill in v requiring m.Name accepts
// m.Version
func CheckDependents(v View, m *Manifest) error {
	return dependentConflict(m, v.List())
}

func dependentConflict(m *Manifest, others []*LoadedSkill) error {
	for _, other := range others {
		if other.Name() == m.Name {
			continue
		}
		req, ok := other.Manifest.Requirement(m.Name)
		if !ok {
			continue
		}
		ok, err := req.SatisfiedBy(m.Version)
		if err != nil {
			return fmt.Errorf("skill %s: %w", other.Name(), err)
		}
		if !ok {
			return &VersionConflictError{
				Skill:      other.Name(),
				Dependency: m.Name,
				Constraint: req.Constraint,
				Actual:     m.Version,
			}
		}
	}
	return nil
}

// Get returns a skill by name
func (r *Registry) Get(name string) (*LoadedSkill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ls, ok := r.entries[name]
	return ls, ok
}

// List returns the skills in load order
func (r *Registry) List() []*LoadedSkill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*LoadedSkill, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.entries[name])
	}
	return list
}

// Names returns the skill names in load order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered skills
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear removes every entry and returns them in load order
func (r *Registry) Clear() []*LoadedSkill {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*LoadedSkill, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.entries[name])
	}
	r.order = nil
	r.entries = make(map[string]*LoadedSkill)
	return list
}

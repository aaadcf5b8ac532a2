// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package strategy

import (
	"sort"
	"strings"
	"sync"
)

// Registry stores the strategies of one role.
//
// Registry is safe for concurrent use. Presentation layers may register
// strategies while a render core is looking them up.
type Registry struct {
	role Role

	mu      sync.RWMutex
	entries map[string]Definition
}

// NewRegistry creates an empty registry for role.
func NewRegistry(role Role) *Registry {
	return &Registry{
		role:    role,
		entries: make(map[string]Definition),
	}
}

// NewGeometryRegistry creates an empty geometry registry.
func NewGeometryRegistry() *Registry { return NewRegistry(RoleGeometry) }

// NewProjectionRegistry creates an empty projection registry.
func NewProjectionRegistry() *Registry { return NewRegistry(RoleProjection) }

// Role returns the role this registry accepts.
func (r *Registry) Role() Role { return r.role }

// Register adds a strategy with the given WGSL fragment.
//
// Register fails with *InvalidStrategyError if name is empty, has leading
// or trailing whitespace, or is already registered, or if source does not
// declare the role's required function. Names are matched exactly.
func (r *Registry) Register(name, source string) error {
	if name == "" {
		return &InvalidStrategyError{Role: r.role, Name: name, Reason: "empty name"}
	}
	if strings.TrimSpace(name) != name {
		return &InvalidStrategyError{Role: r.role, Name: name, Reason: "name has surrounding whitespace"}
	}
	if !Declares(r.role, source) {
		return &InvalidStrategyError{
			Role:   r.role,
			Name:   name,
			Reason: "fragment does not declare fn " + r.role.RequiredFunction(),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return &InvalidStrategyError{Role: r.role, Name: name, Reason: "already registered"}
	}
	r.entries[name] = Definition{Name: name, Role: r.role, Source: source}
	return nil
}

// Add registers s under s.Name().
func (r *Registry) Add(s Strategy) error {
	if s == nil {
		return &InvalidStrategyError{Role: r.role, Reason: "nil strategy"}
	}
	return r.Register(s.Name(), s.FragmentSource())
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.entries[name]
	if !ok {
		return Definition{}, &UnknownStrategyError{Role: r.role, Name: name}
	}
	return def, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Registry is the central catalog of plugin instances. It holds both
// known and loaded entries (registration is distinct from the loader's
// loaded map) and maintains category indices incrementally so listing
// by category never requires a full scan. The registry also owns the
// global hook bus.
//
// A Registry must be constructed explicitly and passed to its owner;
// there is deliberately no package-level singleton.
type Registry struct {
	plugins    map[string]*Instance
	byCategory map[Category]map[string]bool
	hooks      *HookBus
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins:    make(map[string]*Instance),
		byCategory: make(map[Category]map[string]bool),
		hooks:      NewHookBus(),
	}
}

// Register adds an instance under its descriptor name. Duplicate names
// are rejected, never overwritten: the first registration wins and
// Register returns false.
func (r *Registry) Register(inst *Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := inst.Name()
	if _, ok := r.plugins[name]; ok {
		return false
	}

	r.plugins[name] = inst

	cat := inst.Descriptor().Category
	if r.byCategory[cat] == nil {
		r.byCategory[cat] = make(map[string]bool)
	}
	r.byCategory[cat][name] = true
	return true
}

// Unregister shuts the instance down as a side effect and removes it.
// Returns false for unknown names.
func (r *Registry) Unregister(ctx context.Context, name string) bool {
	r.mu.Lock()
	inst, ok := r.plugins[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.plugins, name)
	delete(r.byCategory[inst.Descriptor().Category], name)
	r.mu.Unlock()

	// Shutdown outside the lock; it is idempotent, so a prior
	// loader-driven shutdown makes this a no-op.
	if err := inst.Shutdown(ctx); err != nil {
		slog.Error("plugin shutdown failed during unregister",
			"plugin", name,
			"error", err)
	}
	return true
}

// Get returns the registered instance for name.
func (r *Registry) Get(name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.plugins[name]
	return inst, ok
}

// Info returns the descriptor for a registered name.
func (r *Registry) Info(name string) (*Descriptor, bool) {
	inst, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	return inst.Descriptor(), true
}

// List returns all registered instances sorted by name.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instance, 0, len(r.plugins))
	for _, inst := range r.plugins {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ListByCategory returns the registered instances in one category,
// sorted by name, using the incremental index.
func (r *Registry) ListByCategory(cat Category) []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.byCategory[cat]
	out := make([]*Instance, 0, len(names))
	for name := range names {
		out = append(out, r.plugins[name])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// CheckDependencies returns the required dependencies of name that are
// not currently registered. This checks registered names only; the
// loader's probe and the resolver's node set are separate notions.
func (r *Registry) CheckDependencies(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.plugins[name]
	if !ok {
		return nil
	}

	var missing []string
	for _, dep := range inst.Descriptor().Dependencies {
		if _, registered := r.plugins[dep]; !registered {
			missing = append(missing, dep)
		}
	}
	return missing
}

// InitializeAll initializes every registered plugin in name order,
// best-effort: one failure is logged and recorded false, the loop
// continues. Returns a per-name success map.
func (r *Registry) InitializeAll(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	for _, inst := range r.List() {
		if err := inst.Initialize(ctx, inst.Config()); err != nil {
			slog.Error("plugin initialization failed",
				"plugin", inst.Name(),
				"error", err)
			out[inst.Name()] = false
			continue
		}
		out[inst.Name()] = true
	}
	return out
}

// ShutdownAll shuts down every registered plugin in name order,
// best-effort. Returns a per-name success map.
func (r *Registry) ShutdownAll(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	for _, inst := range r.List() {
		if err := inst.Shutdown(ctx); err != nil {
			slog.Error("plugin shutdown failed",
				"plugin", inst.Name(),
				"error", err)
			out[inst.Name()] = false
			continue
		}
		out[inst.Name()] = true
	}
	return out
}

// RegisterGlobalHook adds a handler to the registry-owned hook bus.
func (r *Registry) RegisterGlobalHook(name string, h Handler) {
	r.hooks.Register(name, h)
}

// EmitGlobalHook emits on the registry-owned hook bus.
func (r *Registry) EmitGlobalHook(ctx context.Context, name string, args map[string]any) EmissionResult {
	return r.hooks.Emit(ctx, name, args)
}

// GlobalHooks returns the registry-owned hook bus.
func (r *Registry) GlobalHooks() *HookBus {
	return r.hooks
}

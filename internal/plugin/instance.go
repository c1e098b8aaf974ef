// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// LifecyclePlugin is the interface every loadable unit must implement.
// It replaces the source convention of probing for initialize/shutdown
// members with an explicit contract.
type LifecyclePlugin interface {
	// Initialize prepares the plugin with its runtime configuration.
	Initialize(ctx context.Context, config map[string]any) error

	// Shutdown releases the plugin's resources.
	Shutdown(ctx context.Context) error
}

// Instance is a live plugin: exactly one descriptor plus mutable
// runtime state. Instances are created by the loader and destroyed on
// successful unload.
type Instance struct {
	descriptor *Descriptor
	impl       LifecyclePlugin
	hooks      *HookBus
	config     map[string]any
	state      State
	mu         sync.RWMutex
}

// NewInstance binds an implementation to its descriptor. The instance
// starts in StateUnloaded.
func NewInstance(descriptor *Descriptor, impl LifecyclePlugin) *Instance {
	return &Instance{
		descriptor: descriptor,
		impl:       impl,
		hooks:      NewHookBus(),
		state:      StateUnloaded,
	}
}

// Descriptor returns the immutable metadata for this instance.
func (i *Instance) Descriptor() *Descriptor {
	return i.descriptor
}

// Name returns the descriptor name, the instance's identity key.
func (i *Instance) Name() string {
	return i.descriptor.Name
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Transition moves the instance to next, returning a
// *StateTransitionError if the move is illegal from the current state.
func (i *Instance) Transition(next State) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.state.CanTransitionTo(next) {
		return &StateTransitionError{Plugin: i.descriptor.Name, From: i.state, To: next}
	}
	i.state = next
	return nil
}

// Config returns a defensive copy of the instance's config map.
func (i *Instance) Config() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make(map[string]any, len(i.config))
	for k, v := range i.config {
		out[k] = v
	}
	return out
}

// Hooks returns the instance's local hook bus.
func (i *Instance) Hooks() *HookBus {
	return i.hooks
}

// Initialize walks the instance from StateLoaded through
// StateInitializing to StateActive, invoking the implementation's
// Initialize. An already-active instance is a no-op (idempotent).
// On failure the instance drops to StateError.
func (i *Instance) Initialize(ctx context.Context, config map[string]any) error {
	i.mu.Lock()
	if i.state == StateActive {
		i.mu.Unlock()
		return nil
	}
	if !i.state.CanTransitionTo(StateInitializing) {
		err := &StateTransitionError{Plugin: i.descriptor.Name, From: i.state, To: StateInitializing}
		i.mu.Unlock()
		return err
	}
	i.state = StateInitializing
	i.config = config
	i.mu.Unlock()

	if err := i.impl.Initialize(ctx, config); err != nil {
		i.setState(StateError)
		return oops.Code("PLUGIN_INIT_FAILED").With("plugin", i.descriptor.Name).Wrap(err)
	}

	i.setState(StateActive)
	return nil
}

// Shutdown walks the instance through StateShuttingDown back to
// StateUnloaded, invoking the implementation's Shutdown. Shutting down
// an already-unloaded instance is a no-op (idempotent). On failure the
// instance drops to StateError.
func (i *Instance) Shutdown(ctx context.Context) error {
	i.mu.Lock()
	if i.state == StateUnloaded {
		i.mu.Unlock()
		return nil
	}
	if !i.state.CanTransitionTo(StateShuttingDown) {
		err := &StateTransitionError{Plugin: i.descriptor.Name, From: i.state, To: StateShuttingDown}
		i.mu.Unlock()
		return err
	}
	i.state = StateShuttingDown
	i.mu.Unlock()

	if err := i.impl.Shutdown(ctx); err != nil {
		i.setState(StateError)
		return oops.Code("PLUGIN_SHUTDOWN_FAILED").With("plugin", i.descriptor.Name).Wrap(err)
	}

	i.setState(StateUnloaded)
	return nil
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

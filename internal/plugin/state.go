// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin

// State is a plugin's lifecycle state.
type State string

// Lifecycle states. A plugin walks UNLOADED -> LOADING -> LOADED ->
// INITIALIZING -> ACTIVE; ACTIVE and DISABLED are interchangeable
// administrative states; any state may drop to ERROR; teardown runs
// through SHUTTING_DOWN back to UNLOADED, after which the name is
// eligible for a fresh load cycle.
const (
	StateUnloaded     State = "unloaded"
	StateLoading      State = "loading"
	StateLoaded       State = "loaded"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateDisabled     State = "disabled"
	StateError        State = "error"
	StateShuttingDown State = "shutting_down"
)

// transitions lists the legal successor states for each state.
// StateError is reachable from anywhere and is handled in CanTransitionTo.
var transitions = map[State][]State{
	StateUnloaded:     {StateLoading},
	StateLoading:      {StateLoaded},
	StateLoaded:       {StateInitializing},
	StateInitializing: {StateActive},
	StateActive:       {StateDisabled, StateShuttingDown},
	StateDisabled:     {StateActive, StateShuttingDown},
	StateError:        {StateShuttingDown},
	StateShuttingDown: {StateUnloaded},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s State) CanTransitionTo(next State) bool {
	if next == StateError {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state accepts no further non-error
// transitions besides restarting the lifecycle.
func (s State) Terminal() bool {
	return s == StateUnloaded
}

// StateTransitionError reports an administrative transition attempted
// from an incompatible state. It is a recoverable result value, not a fault.
type StateTransitionError struct {
	Plugin string
	From   State
	To     State
}

func (e *StateTransitionError) Error() string {
	return "plugin " + e.Plugin + ": illegal transition " + string(e.From) + " -> " + string(e.To)
}

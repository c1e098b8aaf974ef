// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plugrun/plugrun/internal/plugin"
)

func TestState_HappyPathTransitions(t *testing.T) {
	path := []plugin.State{
		plugin.StateUnloaded,
		plugin.StateLoading,
		plugin.StateLoaded,
		plugin.StateInitializing,
		plugin.StateActive,
		plugin.StateShuttingDown,
		plugin.StateUnloaded,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransitionTo(path[i+1]),
			"%s -> %s should be legal", path[i], path[i+1])
	}
}

func TestState_AdministrativeToggle(t *testing.T) {
	assert.True(t, plugin.StateActive.CanTransitionTo(plugin.StateDisabled))
	assert.True(t, plugin.StateDisabled.CanTransitionTo(plugin.StateActive))
	assert.True(t, plugin.StateDisabled.CanTransitionTo(plugin.StateShuttingDown))
}

func TestState_ErrorReachableFromAnywhere(t *testing.T) {
	all := []plugin.State{
		plugin.StateUnloaded, plugin.StateLoading, plugin.StateLoaded,
		plugin.StateInitializing, plugin.StateActive, plugin.StateDisabled,
		plugin.StateError, plugin.StateShuttingDown,
	}
	for _, s := range all {
		assert.True(t, s.CanTransitionTo(plugin.StateError), "from %s", s)
	}
}

func TestState_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from, to plugin.State
	}{
		{plugin.StateUnloaded, plugin.StateActive},
		{plugin.StateLoading, plugin.StateActive},
		{plugin.StateLoaded, plugin.StateActive},
		{plugin.StateActive, plugin.StateLoading},
		{plugin.StateShuttingDown, plugin.StateActive},
		{plugin.StateError, plugin.StateActive},
		{plugin.StateUnloaded, plugin.StateDisabled},
	}
	for _, tt := range tests {
		assert.False(t, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestState_ErrorRecoversOnlyThroughShutdown(t *testing.T) {
	assert.True(t, plugin.StateError.CanTransitionTo(plugin.StateShuttingDown))
	assert.False(t, plugin.StateError.CanTransitionTo(plugin.StateLoading))
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, plugin.StateUnloaded.Terminal())
	assert.False(t, plugin.StateActive.Terminal())
	assert.False(t, plugin.StateError.Terminal())
}

func TestStateTransitionError_Message(t *testing.T) {
	err := &plugin.StateTransitionError{
		Plugin: "sample",
		From:   plugin.StateUnloaded,
		To:     plugin.StateDisabled,
	}
	assert.Contains(t, err.Error(), "sample")
	assert.Contains(t, err.Error(), "unloaded")
	assert.Contains(t, err.Error(), "disabled")
}

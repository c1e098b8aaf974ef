// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugrun/plugrun/internal/plugin"
)

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantName   string
		wantParams []string
		wantResult string
	}{
		{
			name:     "no params no result",
			text:     "on_startup()",
			wantName: "on_startup",
		},
		{
			name:       "single param",
			text:       "on_message(payload)",
			wantName:   "on_message",
			wantParams: []string{"payload"},
		},
		{
			name:       "params and result",
			text:       "on_deploy(environment, version) -> list",
			wantName:   "on_deploy",
			wantParams: []string{"environment", "version"},
			wantResult: "list",
		},
		{
			name:       "whitespace tolerant",
			text:       "  transform ( record , options )  ->  record ",
			wantName:   "transform",
			wantParams: []string{"record", "options"},
			wantResult: "record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := plugin.ParseSignature(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, sig.Name)
			assert.Equal(t, tt.wantParams, sig.Params)
			assert.Equal(t, tt.wantResult, sig.Result)
		})
	}
}

func TestParseSignature_Invalid(t *testing.T) {
	tests := []string{
		"",
		"on_message",
		"on_message(",
		"on_message(a,)",
		"(a, b)",
		"on_message(a) ->",
		"123bad()",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			_, err := plugin.ParseSignature(text)
			assert.Error(t, err)
		})
	}
}

func TestSignature_Mismatches(t *testing.T) {
	sig, err := plugin.ParseSignature("on_deploy(environment, version)")
	require.NoError(t, err)

	t.Run("matching args", func(t *testing.T) {
		m := sig.Mismatches(map[string]any{"environment": "prod", "version": "1.0.0"})
		assert.Empty(t, m)
	})

	t.Run("missing arg", func(t *testing.T) {
		m := sig.Mismatches(map[string]any{"environment": "prod"})
		require.Len(t, m, 2)
		assert.Contains(t, m[0], "expected 2 arguments, got 1")
		assert.Contains(t, m[1], `missing argument "version"`)
	})

	t.Run("extra arg", func(t *testing.T) {
		m := sig.Mismatches(map[string]any{
			"environment": "prod", "version": "1.0.0", "extra": true,
		})
		require.Len(t, m, 1)
		assert.Contains(t, m[0], "expected 2 arguments, got 3")
	})
}

func TestSignature_String(t *testing.T) {
	sig, err := plugin.ParseSignature("on_deploy(environment, version) -> list")
	require.NoError(t, err)
	assert.Equal(t, "on_deploy(environment, version) -> list", sig.String())

	sig, err = plugin.ParseSignature("on_startup()")
	require.NoError(t, err)
	assert.Equal(t, "on_startup()", sig.String())
}

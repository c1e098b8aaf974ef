// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugrun/plugrun/internal/plugin"
)

func TestParseDescriptor_ScriptEntry(t *testing.T) {
	yaml := `
name: echo-bot
version: 1.0.0
description: Echoes emissions back
author: Plugrun Contributors
category: hook
entry: main.lua
capabilities:
  - hook.on-message
tags:
  - demo
`
	d, err := plugin.ParseDescriptor([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "echo-bot", d.Name)
	assert.Equal(t, "1.0.0", d.Version)
	assert.Equal(t, plugin.CategoryHook, d.Category)
	assert.Equal(t, plugin.EntryScript, d.EntryKind())
	assert.True(t, d.Enabled)
	assert.Len(t, d.Capabilities, 1)
	assert.Len(t, d.Tags, 1)
}

func TestParseDescriptor_NativeEntry(t *testing.T) {
	yaml := `
name: csv-export
version: 2.1.0
description: Exports records as CSV
author: Plugrun Contributors
category: exporter
entry: builtin.csv_export
dependencies:
  - record-source
optional-dependencies:
  - compressor
`
	d, err := plugin.ParseDescriptor([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, plugin.EntryNative, d.EntryKind())
	assert.Equal(t, []string{"record-source"}, d.Dependencies)
	assert.Equal(t, []string{"compressor"}, d.OptionalDependencies)
}

func TestParseDescriptor_EnabledDefaults(t *testing.T) {
	base := `
name: sample
version: 1.0.0
description: d
author: a
entry: main.lua
`
	t.Run("absent defaults to true", func(t *testing.T) {
		d, err := plugin.ParseDescriptor([]byte(base))
		require.NoError(t, err)
		assert.True(t, d.Enabled)
	})

	t.Run("explicit false is kept", func(t *testing.T) {
		d, err := plugin.ParseDescriptor([]byte(base + "enabled: false\n"))
		require.NoError(t, err)
		assert.False(t, d.Enabled)
	})
}

func TestParseDescriptor_CategoryDefaultsToUtility(t *testing.T) {
	yaml := `
name: sample
version: 1.0.0
description: d
author: a
entry: main.lua
`
	d, err := plugin.ParseDescriptor([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, plugin.CategoryUtility, d.Category)
}

func TestParseDescriptor_InvalidName(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		wantErr string
	}{
		{name: "uppercase", field: "Invalid", wantErr: "name"},
		{name: "underscore", field: "bad_name", wantErr: "name"},
		{name: "leading digit", field: "1plugin", wantErr: "name"},
		{name: "trailing hyphen", field: "plugin-", wantErr: "name"},
		{name: "empty", field: "", wantErr: "name"},
		{name: "too long", field: strings.Repeat("a", 65), wantErr: "64 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "name: \"" + tt.field + "\"\nversion: 1.0.0\ndescription: d\nauthor: a\nentry: main.lua\n"
			_, err := plugin.ParseDescriptor([]byte(yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDescriptor_VersionStrictness(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantOK  bool
	}{
		{name: "full triple", version: "1.2.3", wantOK: true},
		{name: "prerelease", version: "1.2.3-rc.1", wantOK: true},
		{name: "missing patch", version: "1.2", wantOK: false},
		{name: "leading v", version: "v1.2.3", wantOK: false},
		{name: "garbage", version: "latest", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "name: sample\nversion: \"" + tt.version + "\"\ndescription: d\nauthor: a\nentry: main.lua\n"
			_, err := plugin.ParseDescriptor([]byte(yaml))
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseDescriptor_UnknownCategory(t *testing.T) {
	yaml := `
name: sample
version: 1.0.0
description: d
author: a
category: frobnicator
entry: main.lua
`
	_, err := plugin.ParseDescriptor([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category")
}

func TestParseDescriptor_EntryConventions(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		want  plugin.EntryKind
	}{
		{name: "relative lua", entry: "main.lua", want: plugin.EntryScript},
		{name: "nested lua", entry: "src/init.lua", want: plugin.EntryScript},
		{name: "dotted path", entry: "builtin.echo", want: plugin.EntryNative},
		{name: "deep dotted path", entry: "contrib.export.csv", want: plugin.EntryNative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "name: sample\nversion: 1.0.0\ndescription: d\nauthor: a\nentry: " + tt.entry + "\n"
			d, err := plugin.ParseDescriptor([]byte(yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.EntryKind())
		})
	}

	t.Run("absolute lua path rejected", func(t *testing.T) {
		yaml := "name: sample\nversion: 1.0.0\ndescription: d\nauthor: a\nentry: /etc/main.lua\n"
		_, err := plugin.ParseDescriptor([]byte(yaml))
		require.Error(t, err)
	})

	t.Run("bare word rejected", func(t *testing.T) {
		yaml := "name: sample\nversion: 1.0.0\ndescription: d\nauthor: a\nentry: mainmodule\n"
		_, err := plugin.ParseDescriptor([]byte(yaml))
		require.Error(t, err)
	})
}

func TestParseDescriptor_SelfConflict(t *testing.T) {
	yaml := `
name: sample
version: 1.0.0
description: d
author: a
entry: main.lua
conflicts:
  - sample
`
	_, err := plugin.ParseDescriptor([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict with itself")
}

func TestParseDescriptor_InvalidDependencyName(t *testing.T) {
	yaml := `
name: sample
version: 1.0.0
description: d
author: a
entry: main.lua
dependencies:
  - Bad_Dep
`
	_, err := plugin.ParseDescriptor([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency")
}

func TestParseDescriptor_EmptyAndMalformed(t *testing.T) {
	_, err := plugin.ParseDescriptor(nil)
	assert.Error(t, err)

	_, err = plugin.ParseDescriptor([]byte("::: not yaml"))
	assert.Error(t, err)
}

func TestDescriptor_SemVersion(t *testing.T) {
	d := &plugin.Descriptor{Name: "sample", Version: "1.4.0"}
	v, err := d.SemVersion()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Major())
	assert.Equal(t, uint64(4), v.Minor())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package discovery_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugrun/plugrun/internal/plugin/discovery"
	"github.com/plugrun/plugrun/internal/plugin/manifest"
)

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o750))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

const validManifest = `
name: echo-bot
version: 1.0.0
description: Echoes deploy events
author: ops
category: hook
entry: main.lua
`

func TestScanner_ManifestDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "echo-bot")
	mkdirAll(t, dir)
	writeFile(t, filepath.Join(dir, "plugin.yaml"), validManifest)
	writeFile(t, filepath.Join(dir, "main.lua"), "function initialize(config) end")

	res := discovery.NewScanner(root).ScanDirectory(root)

	require.Len(t, res.Plugins, 1)
	require.Empty(t, res.Errors)
	c := res.Plugins[0]
	assert.Equal(t, "echo-bot", c.Descriptor.Name)
	assert.Equal(t, manifest.CategoryHook, c.Descriptor.Category)
	assert.Equal(t, dir, c.Dir)
	assert.Equal(t, discovery.SourceManifest, c.Source)
	assert.Equal(t, discovery.StatusDiscovered, c.Status)
	assert.True(t, c.Descriptor.Enabled, "enabled defaults to true")
}

func TestScanner_SkipsUnderscorePrefixed(t *testing.T) {
	root := t.TempDir()

	valid := filepath.Join(root, "valid")
	mkdirAll(t, valid)
	writeFile(t, filepath.Join(valid, "plugin.yaml"), validManifest)

	private := filepath.Join(root, "_private")
	mkdirAll(t, private)
	writeFile(t, filepath.Join(private, "plugin.yaml"), validManifest)

	writeFile(t, filepath.Join(root, "_helper.go"), "package broken{{{")

	res := discovery.NewScanner(root).ScanDirectory(root)

	require.Len(t, res.Plugins, 1)
	assert.Equal(t, "echo-bot", res.Plugins[0].Descriptor.Name)
	assert.Empty(t, res.Errors, "underscore entries are skipped, not errors")
}

func TestScanner_RecordsInvalidManifest(t *testing.T) {
	root := t.TempDir()

	valid := filepath.Join(root, "valid")
	mkdirAll(t, valid)
	writeFile(t, filepath.Join(valid, "plugin.yaml"), validManifest)

	broken := filepath.Join(root, "broken")
	mkdirAll(t, broken)
	writeFile(t, filepath.Join(broken, "plugin.yaml"), "invalid: [")

	res := discovery.NewScanner(root).ScanDirectory(root)

	assert.Len(t, res.Plugins, 1, "scan continues past broken candidates")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Path, "broken")
}

func TestScanner_NonexistentRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")

	res := discovery.NewScanner(root).ScanDirectory(root)

	assert.Empty(t, res.Plugins)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, root, res.Errors[0].Path)
}

func TestScanner_GoUnit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "wordcount.go"), `package plugins

var WordCount = Descriptor{
	Name:         "word-count",
	Version:      "2.1.0",
	Description:  "Counts words in processed documents",
	Author:       "docs-team",
	Category:     "analyzer",
	Entry:        "builtin.wordcount",
	Dependencies: []string{"tokenizer"},
}
`)

	res := discovery.NewScanner(root).ScanDirectory(root)

	require.Len(t, res.Plugins, 1)
	c := res.Plugins[0]
	assert.Equal(t, "word-count", c.Descriptor.Name)
	assert.Equal(t, manifest.CategoryAnalyzer, c.Descriptor.Category)
	assert.Equal(t, []string{"tokenizer"}, c.Descriptor.Dependencies)
	assert.Equal(t, discovery.SourceGoUnit, c.Source)
}

func TestScanner_GoUnitParseFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "broken.go"), "package {{{ not go")

	res := discovery.NewScanner(root).ScanDirectory(root)

	assert.Empty(t, res.Plugins)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Path, "broken.go")
}

func TestScanner_GoUnitWithoutDescriptor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "util.go"), `package plugins

func helper() int { return 42 }
`)

	res := discovery.NewScanner(root).ScanDirectory(root)

	assert.Empty(t, res.Plugins)
	assert.Empty(t, res.Errors, "non-plugin source files are skipped silently")
}

func TestScanner_ScanCombinesRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()

	dir := filepath.Join(rootA, "echo-bot")
	mkdirAll(t, dir)
	writeFile(t, filepath.Join(dir, "plugin.yaml"), validManifest)

	res := discovery.NewScanner(rootA, rootB).Scan()

	assert.Len(t, res.Plugins, 1)
	assert.Equal(t, []string{rootA, rootB}, res.ScanSources)
}

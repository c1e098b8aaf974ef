// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

// Package plugin provides plugin management and lifecycle control.
package plugin

import "github.com/plugrun/plugrun/internal/plugin/manifest"

// The descriptor model lives in the manifest leaf package so discovery
// can parse plugin.yaml records without importing the runtime. The
// runtime aliases the names its callers use.

// Descriptor is the immutable metadata record describing a plugin.
type Descriptor = manifest.Descriptor

// Category classifies what a plugin contributes to the host.
type Category = manifest.Category

// EntryKind identifies how a descriptor's entry reference is loaded.
type EntryKind = manifest.EntryKind

// Plugin categories supported by the runtime.
const (
	CategoryAnalyzer  = manifest.CategoryAnalyzer
	CategoryFormatter = manifest.CategoryFormatter
	CategoryExporter  = manifest.CategoryExporter
	CategoryImporter  = manifest.CategoryImporter
	CategoryProcessor = manifest.CategoryProcessor
	CategoryHook      = manifest.CategoryHook
	CategoryUtility   = manifest.CategoryUtility
	CategoryAdapter   = manifest.CategoryAdapter
	CategoryAgent     = manifest.CategoryAgent
)

// Entry kinds accepted by the loader.
const (
	EntryScript  = manifest.EntryScript
	EntryNative  = manifest.EntryNative
	EntryUnknown = manifest.EntryUnknown
)

// ParseDescriptor parses and validates a plugin.yaml descriptor file.
// An absent enabled key defaults to true rather than YAML's zero value.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	return manifest.Parse(data)
}

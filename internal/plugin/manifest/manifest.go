// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

// Package manifest defines the descriptor record that identifies a
// plugin and the rules for parsing and validating it. It is a leaf
// package: discovery parses descriptors from disk and the runtime
// loads them, and both import the model from here.
package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Category classifies what a plugin contributes to the host.
type Category string

// Plugin categories supported by the runtime.
const (
	CategoryAnalyzer  Category = "analyzer"
	CategoryFormatter Category = "formatter"
	CategoryExporter  Category = "exporter"
	CategoryImporter  Category = "importer"
	CategoryProcessor Category = "processor"
	CategoryHook      Category = "hook"
	CategoryUtility   Category = "utility"
	CategoryAdapter   Category = "adapter"
	CategoryAgent     Category = "agent"
)

// categories is the closed set of valid categories.
var categories = map[Category]bool{
	CategoryAnalyzer:  true,
	CategoryFormatter: true,
	CategoryExporter:  true,
	CategoryImporter:  true,
	CategoryProcessor: true,
	CategoryHook:      true,
	CategoryUtility:   true,
	CategoryAdapter:   true,
	CategoryAgent:     true,
}

// EntryKind identifies how a descriptor's entry reference is loaded.
type EntryKind string

// Entry kinds accepted by the loader.
const (
	// EntryScript is a relative path to a Lua source file.
	EntryScript EntryKind = "script"
	// EntryNative is a dotted path naming a statically-linked implementation.
	EntryNative EntryKind = "native"
	// EntryUnknown is an entry reference matching neither convention.
	EntryUnknown EntryKind = "unknown"
)

// Descriptor is the immutable metadata record describing a plugin.
// Name is the only equality key: two descriptors with the same name are
// the same logical plugin at different revisions.
type Descriptor struct {
	Name                 string         `yaml:"name" json:"name"`
	Version              string         `yaml:"version" json:"version"`
	Description          string         `yaml:"description" json:"description"`
	Author               string         `yaml:"author" json:"author"`
	Category             Category       `yaml:"category" json:"category"`
	Entry                string         `yaml:"entry" json:"entry"`
	Dependencies         []string       `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	OptionalDependencies []string       `yaml:"optional-dependencies,omitempty" json:"optional-dependencies,omitempty"`
	Conflicts            []string       `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`
	Enabled              bool           `yaml:"enabled" json:"enabled"`
	Tags                 []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Capabilities         []string       `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	ConfigSchema         map[string]any `yaml:"config-schema,omitempty" json:"config-schema,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// dottedPathPattern matches native entry references like "builtin.echo".
var dottedPathPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)+$`)

// Parse parses and validates a plugin.yaml descriptor file.
// An absent enabled key defaults to true rather than YAML's zero value.
func Parse(data []byte) (*Descriptor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("descriptor data is empty")
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	var probe struct {
		Enabled *bool `yaml:"enabled"`
	}
	// Already known to be valid YAML; probe only detects key absence.
	_ = yaml.Unmarshal(data, &probe)
	d.Enabled = probe.Enabled == nil || *probe.Enabled

	if d.Category == "" {
		d.Category = CategoryUtility
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// Validate checks descriptor constraints.
func (d *Descriptor) Validate() error {
	if d.Name == "" || !namePattern.MatchString(d.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", d.Name)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(d.Name))
	}

	if d.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(d.Version); err != nil {
		return fmt.Errorf("version %q is not a valid MAJOR.MINOR.PATCH version: %w", d.Version, err)
	}

	if !categories[d.Category] {
		return fmt.Errorf("category %q is not a recognized category", d.Category)
	}

	if d.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if d.EntryKind() == EntryUnknown {
		return fmt.Errorf("entry %q must be a relative .lua path or a dotted module path", d.Entry)
	}

	for _, dep := range d.Dependencies {
		if !namePattern.MatchString(dep) {
			return fmt.Errorf("dependency %q is not a valid plugin name", dep)
		}
	}
	for _, c := range d.Conflicts {
		if c == d.Name {
			return fmt.Errorf("plugin cannot declare a conflict with itself")
		}
	}

	return nil
}

// EntryKind reports how the entry reference should be resolved.
func (d *Descriptor) EntryKind() EntryKind {
	switch {
	case strings.HasSuffix(d.Entry, ".lua") && !strings.HasPrefix(d.Entry, "/"):
		return EntryScript
	case dottedPathPattern.MatchString(d.Entry):
		return EntryNative
	default:
		return EntryUnknown
	}
}

// SemVersion returns the parsed version. Callers must only use this on
// a validated descriptor.
func (d *Descriptor) SemVersion() (*semver.Version, error) {
	v, err := semver.StrictNewVersion(d.Version)
	if err != nil {
		return nil, fmt.Errorf("descriptor %s has invalid version %q: %w", d.Name, d.Version, err)
	}
	return v, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

// Package discovery locates candidate plugins on disk. Candidates are
// read structurally, never executed; execution happens only at load
// time.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/plugrun/plugrun/internal/plugin/manifest"
)

// Status tracks how far a candidate has progressed. Discovery only
// records "found"; validation and loading keep their own state.
type Status string

// StatusDiscovered is the state every candidate starts in.
const StatusDiscovered Status = "discovered"

// SourceKind identifies which authoring convention produced a candidate.
type SourceKind string

// Authoring conventions recognized by the scanner.
const (
	// SourceManifest is a plugin directory carrying a flat plugin.yaml
	// metadata record.
	SourceManifest SourceKind = "manifest"
	// SourceGoUnit is a loose Go source file whose package-level
	// declarations carry descriptor fields as attributes.
	SourceGoUnit SourceKind = "go-unit"
)

// ManifestFile is the descriptor file name inside a plugin directory.
const ManifestFile = "plugin.yaml"

// Candidate is one discovered plugin.
type Candidate struct {
	Descriptor *manifest.Descriptor
	Dir        string
	Path       string // file that produced the descriptor
	Source     SourceKind
	Status     Status
}

// Error records a candidate that could not be read or parsed. Scans
// record errors and continue; they never abort.
type Error struct {
	Path string
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("discovery: %s: %v", e.Path, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// Result is the outcome of a scan.
type Result struct {
	Plugins     []*Candidate
	Errors      []Error
	ScanSources []string
}

// Scanner discovers plugins from one or more root directories.
type Scanner struct {
	roots []string
}

// NewScanner creates a scanner over the given roots.
func NewScanner(roots ...string) *Scanner {
	return &Scanner{roots: roots}
}

// Roots returns the configured scan roots.
func (s *Scanner) Roots() []string {
	return append([]string(nil), s.roots...)
}

// Scan combines a directory scan of every configured root.
func (s *Scanner) Scan() Result {
	var combined Result
	for _, root := range s.roots {
		res := s.ScanDirectory(root)
		combined.Plugins = append(combined.Plugins, res.Plugins...)
		combined.Errors = append(combined.Errors, res.Errors...)
		combined.ScanSources = append(combined.ScanSources, root)
	}
	return combined
}

// ScanDirectory scans a single root for candidates. A nonexistent root
// yields one recorded error and an empty plugin list. Entries whose
// base name begins with an underscore are treated as private and
// skipped. Unparseable entries are recorded with their path and the
// scan continues.
func (s *Scanner) ScanDirectory(root string) Result {
	res := Result{ScanSources: []string{root}}

	entries, err := os.ReadDir(root)
	if err != nil {
		res.Errors = append(res.Errors, Error{Path: root, Err: err})
		return res
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}

		switch {
		case entry.IsDir():
			s.scanManifestDir(filepath.Join(root, name), &res)
		case strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go"):
			s.scanGoUnit(filepath.Join(root, name), root, &res)
		}
	}

	return res
}

// scanManifestDir reads a plugin directory's plugin.yaml record.
// Directories without a manifest are not plugins and are skipped
// silently; directories with a broken manifest are recorded.
func (s *Scanner) scanManifestDir(dir string, res *Result) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath) //nolint:gosec // path is constructed from ReadDir entries
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("skipping directory without descriptor", "dir", dir)
			return
		}
		res.Errors = append(res.Errors, Error{Path: manifestPath, Err: err})
		return
	}

	desc, err := manifest.Parse(data)
	if err != nil {
		slog.Warn("skipping plugin with invalid descriptor",
			"path", manifestPath,
			"error", err)
		res.Errors = append(res.Errors, Error{Path: manifestPath, Err: err})
		return
	}

	res.Plugins = append(res.Plugins, &Candidate{
		Descriptor: desc,
		Dir:        dir,
		Path:       manifestPath,
		Source:     SourceManifest,
		Status:     StatusDiscovered,
	})
}

// scanGoUnit parses a loose Go file for a descriptor-shaped literal.
func (s *Scanner) scanGoUnit(path, root string, res *Result) {
	desc, found, err := parseGoUnit(path)
	if err != nil {
		slog.Warn("skipping unparseable source unit",
			"path", path,
			"error", err)
		res.Errors = append(res.Errors, Error{Path: path, Err: err})
		return
	}
	if !found {
		return // parsed fine, just not a plugin unit
	}

	res.Plugins = append(res.Plugins, &Candidate{
		Descriptor: desc,
		Dir:        root,
		Path:       path,
		Source:     SourceGoUnit,
		Status:     StatusDiscovered,
	})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package discovery

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/plugrun/plugrun/internal/plugin/manifest"
)

// parseGoUnit scans a Go source file for a package-level composite
// literal carrying descriptor fields as attributes, e.g.
//
//	var Plugin = Descriptor{
//		Name:    "word-count",
//		Version: "1.0.0",
//		Entry:   "builtin.wordcount",
//	}
//
// The file is parsed, never executed. found is false when the file is
// valid Go but contains no descriptor-shaped literal.
func parseGoUnit(path string) (desc *manifest.Descriptor, found bool, err error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}

	var lit *ast.CompositeLit
	ast.Inspect(file, func(n ast.Node) bool {
		if lit != nil {
			return false
		}
		cl, ok := n.(*ast.CompositeLit)
		if !ok {
			return true
		}
		if isDescriptorShaped(cl) {
			lit = cl
			return false
		}
		return true
	})

	if lit == nil {
		return nil, false, nil
	}

	d, err := descriptorFromLiteral(lit)
	if err != nil {
		return nil, false, fmt.Errorf("descriptor literal in %s: %w", path, err)
	}
	return d, true, nil
}

// isDescriptorShaped reports whether a composite literal carries at
// least the required descriptor attributes.
func isDescriptorShaped(cl *ast.CompositeLit) bool {
	fields := literalFields(cl)
	_, hasName := fields["Name"]
	_, hasVersion := fields["Version"]
	return hasName && hasVersion
}

// literalFields maps keyed elements of a composite literal.
func literalFields(cl *ast.CompositeLit) map[string]ast.Expr {
	out := make(map[string]ast.Expr)
	for _, elt := range cl.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		out[key.Name] = kv.Value
	}
	return out
}

// descriptorFromLiteral extracts descriptor fields from a keyed
// composite literal. Only literal strings and string slices are
// honored; anything computed is ignored rather than evaluated.
func descriptorFromLiteral(cl *ast.CompositeLit) (*manifest.Descriptor, error) {
	fields := literalFields(cl)

	d := &manifest.Descriptor{
		Name:                 stringField(fields, "Name"),
		Version:              stringField(fields, "Version"),
		Description:          stringField(fields, "Description"),
		Author:               stringField(fields, "Author"),
		Entry:                stringField(fields, "Entry"),
		Category:             manifest.Category(stringField(fields, "Category")),
		Dependencies:         stringSliceField(fields, "Dependencies"),
		OptionalDependencies: stringSliceField(fields, "OptionalDependencies"),
		Conflicts:            stringSliceField(fields, "Conflicts"),
		Tags:                 stringSliceField(fields, "Tags"),
		Capabilities:         stringSliceField(fields, "Capabilities"),
		Enabled:              true,
	}
	// EntryPoint is accepted as an alias used by flat metadata records.
	if d.Entry == "" {
		d.Entry = stringField(fields, "EntryPoint")
	}
	if d.Category == "" {
		d.Category = manifest.CategoryUtility
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func stringField(fields map[string]ast.Expr, name string) string {
	expr, ok := fields[name]
	if !ok {
		return ""
	}
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return ""
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return strings.Trim(lit.Value, `"`)
	}
	return s
}

func stringSliceField(fields map[string]ast.Expr, name string) []string {
	expr, ok := fields[name]
	if !ok {
		return nil
	}
	cl, ok := expr.(*ast.CompositeLit)
	if !ok {
		return nil
	}
	var out []string
	for _, elt := range cl.Elts {
		lit, ok := elt.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			continue
		}
		if s, err := strconv.Unquote(lit.Value); err == nil {
			out = append(out, s)
		}
	}
	return out
}

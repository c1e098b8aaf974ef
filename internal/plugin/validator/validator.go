// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

// Package validator inspects candidate plugins before they are admitted
// for loading. Validation is a pure read-and-score operation: malformed
// or unreadable input is reported inside the result, never returned as
// an error.
package validator

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/crypto/blake2b"
)

// Severity grades a validation issue.
type Severity string

// Issue severities. Errors invalidate the verdict and cost 20 points;
// warnings cost 5.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue categories.
const (
	CategoryStructure      = "structure"
	CategorySuspiciousCode = "suspicious_code"
	CategorySecretLeak     = "hardcoded_secret"
	CategoryFileOps        = "file_operations"
	CategoryUnitLength     = "unit_length"
	CategoryUnitCount      = "unit_count"
	CategoryMetadata       = "metadata"
)

// Issue is one scored finding.
type Issue struct {
	Category string
	Severity Severity
	Message  string
	Path     string
}

// Result is the scored verdict for one candidate. Score starts at 100,
// loses 20 per error and 5 per warning, and is floored at 0. Valid is
// false whenever any error-severity issue fired.
type Result struct {
	Path            string
	Valid           bool
	Score           int
	Digest          string // BLAKE2b-256 over scanned content, hex
	Issues          []Issue
	Warnings        []Issue
	Recommendations []string
}

// sourceExtensions are the file types the content scan inspects.
var sourceExtensions = map[string]bool{
	".lua": true,
	".go":  true,
}

// riskPattern flags a risky call convention in plugin source.
type riskPattern struct {
	pattern  string
	category string
	message  string
}

// riskPatterns is the fixed set of disallowed operations the content
// scan looks for: shell execution, arbitrary evaluation, raw
// socket/process operations, and broad filesystem writes.
var riskPatterns = []riskPattern{
	{"os.system(", CategorySuspiciousCode, "shell execution via os.system"},
	{"os.execute(", CategorySuspiciousCode, "shell execution via os.execute"},
	{"io.popen(", CategorySuspiciousCode, "process spawning via io.popen"},
	{"exec.Command(", CategorySuspiciousCode, "process spawning via exec.Command"},
	{"syscall.Exec(", CategorySuspiciousCode, "raw process replacement via syscall.Exec"},
	{"loadstring(", CategorySuspiciousCode, "arbitrary evaluation via loadstring"},
	{"eval(", CategorySuspiciousCode, "arbitrary evaluation via eval"},
	{"net.Dial(", CategorySuspiciousCode, "raw socket access via net.Dial"},
	{"os.RemoveAll(", CategorySuspiciousCode, "broad filesystem removal via os.RemoveAll"},
}

// secretPattern is the secret-leak heuristic: an assignment of a quoted
// literal to a credential-shaped key.
var secretPattern = regexp.MustCompile(`(?i)(api_key|secret|password|token)\s*[=:]\s*"[^"]+"`)

// fileOpPattern counts file-handle operations for the shape heuristic.
var fileOpPattern = regexp.MustCompile(`\b(io\.open|os\.Open|os\.Create|os\.OpenFile)\(`)

// requiredMetadata lists the descriptor fields a candidate must carry.
// The entry reference is checked separately because flat records may
// spell it either "entry" or "entry_point".
var requiredMetadata = []string{"name", "version", "description", "author"}

// Validator scans plugin candidates. The zero value is not ready; use New.
type Validator struct {
	maxUnitLines int
	maxUnits     int
	maxFileOps   int
}

// Option configures a Validator.
type Option func(*Validator)

// WithLimits overrides the shape-heuristic thresholds.
func WithLimits(maxUnitLines, maxUnits, maxFileOps int) Option {
	return func(v *Validator) {
		v.maxUnitLines = maxUnitLines
		v.maxUnits = maxUnits
		v.maxFileOps = maxFileOps
	}
}

// New creates a validator with default shape thresholds.
func New(opts ...Option) *Validator {
	v := &Validator{
		maxUnitLines: 500,
		maxUnits:     50,
		maxFileOps:   10,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate inspects a candidate at path, which may be a single source
// file or a plugin directory. It never returns a Go error: unreadable
// candidates produce an invalid result describing why.
func (v *Validator) Validate(path string) Result {
	return v.validate(path, true)
}

// ValidateLinked inspects a plugin directory whose entry point is
// linked into the host rather than shipped as source. Source units the
// directory does carry are still scanned, but a directory without any
// is structurally valid.
func (v *Validator) ValidateLinked(path string) Result {
	return v.validate(path, false)
}

func (v *Validator) validate(path string, requireUnits bool) Result {
	res := Result{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		v.addIssue(&res, Issue{
			Category: CategoryStructure,
			Severity: SeverityError,
			Message:  fmt.Sprintf("candidate cannot be read: %v", err),
			Path:     path,
		})
		v.finish(&res)
		return res
	}

	var units []string
	if info.IsDir() {
		units = v.collectUnits(path, &res)
		if requireUnits && len(units) == 0 && res.countErrors() == 0 {
			v.addIssue(&res, Issue{
				Category: CategoryStructure,
				Severity: SeverityError,
				Message:  "directory contains no loadable source units",
				Path:     path,
			})
		}
	} else {
		if !sourceExtensions[filepath.Ext(path)] {
			v.addIssue(&res, Issue{
				Category: CategoryStructure,
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s is not a recognized source unit", filepath.Base(path)),
				Path:     path,
			})
		} else {
			units = []string{path}
		}
	}

	if len(units) > v.maxUnits {
		v.addIssue(&res, Issue{
			Category: CategoryUnitCount,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("candidate contains %d source units, more than %d", len(units), v.maxUnits),
			Path:     path,
		})
	}

	digest, _ := blake2b.New256(nil)
	sort.Strings(units)
	for _, unit := range units {
		data, err := os.ReadFile(unit) //nolint:gosec // unit paths come from our own walk
		if err != nil {
			v.addIssue(&res, Issue{
				Category: CategoryStructure,
				Severity: SeverityError,
				Message:  fmt.Sprintf("source unit cannot be read: %v", err),
				Path:     unit,
			})
			continue
		}
		digest.Write(data)
		v.scanContent(unit, string(data), &res)
	}
	res.Digest = hex.EncodeToString(digest.Sum(nil))

	v.finish(&res)
	return res
}

// ValidateMetadata checks a raw descriptor-shaped key/value map:
// required fields present and version shaped like MAJOR.MINOR.PATCH.
func (v *Validator) ValidateMetadata(meta map[string]any) Result {
	res := Result{Path: fmt.Sprintf("%v", meta["name"])}

	for _, field := range requiredMetadata {
		val, ok := meta[field]
		s, isString := val.(string)
		if !ok || (isString && s == "") || val == nil {
			v.addIssue(&res, Issue{
				Category: CategoryMetadata,
				Severity: SeverityError,
				Message:  fmt.Sprintf("required field %q is missing", field),
			})
		}
	}

	entry, hasEntry := meta["entry"].(string)
	entryPoint, hasEntryPoint := meta["entry_point"].(string)
	if (!hasEntry || entry == "") && (!hasEntryPoint || entryPoint == "") {
		v.addIssue(&res, Issue{
			Category: CategoryMetadata,
			Severity: SeverityError,
			Message:  `required field "entry" (or "entry_point") is missing`,
		})
	}

	if version, ok := meta["version"].(string); ok && version != "" {
		if _, err := semver.StrictNewVersion(version); err != nil {
			v.addIssue(&res, Issue{
				Category: CategoryMetadata,
				Severity: SeverityError,
				Message:  fmt.Sprintf("version %q does not match MAJOR.MINOR.PATCH", version),
			})
		}
	}

	v.finish(&res)
	return res
}

// collectUnits walks a plugin directory for source units, skipping
// private (underscore-prefixed) entries.
func (v *Validator) collectUnits(root string, res *Result) []string {
	var units []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Issues = append(res.Issues, Issue{
				Category: CategoryStructure,
				Severity: SeverityError,
				Message:  fmt.Sprintf("walk failed: %v", err),
				Path:     path,
			})
			return nil
		}
		if strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && sourceExtensions[filepath.Ext(path)] {
			units = append(units, path)
		}
		return nil
	})
	if walkErr != nil {
		res.Issues = append(res.Issues, Issue{
			Category: CategoryStructure,
			Severity: SeverityError,
			Message:  fmt.Sprintf("walk failed: %v", walkErr),
			Path:     root,
		})
	}
	return units
}

// scanContent applies the risky-pattern set, the secret heuristic, and
// the shape heuristics to one source unit.
func (v *Validator) scanContent(path, content string, res *Result) {
	for _, rp := range riskPatterns {
		if strings.Contains(content, rp.pattern) {
			v.addIssue(res, Issue{
				Category: rp.category,
				Severity: SeverityError,
				Message:  rp.message,
				Path:     path,
			})
		}
	}

	if secretPattern.MatchString(content) {
		v.addIssue(res, Issue{
			Category: CategorySecretLeak,
			Severity: SeverityError,
			Message:  "credential-shaped literal assigned in source",
			Path:     path,
		})
	}

	if ops := len(fileOpPattern.FindAllString(content, -1)); ops > v.maxFileOps {
		v.addIssue(res, Issue{
			Category: CategoryFileOps,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d file operations, more than %d", ops, v.maxFileOps),
			Path:     path,
		})
	}

	if lines := strings.Count(content, "\n") + 1; lines > v.maxUnitLines {
		v.addIssue(res, Issue{
			Category: CategoryUnitLength,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("unit is %d lines long, more than %d", lines, v.maxUnitLines),
			Path:     path,
		})
	}
}

func (v *Validator) addIssue(res *Result, issue Issue) {
	if issue.Severity == SeverityWarning {
		res.Warnings = append(res.Warnings, issue)
		return
	}
	res.Issues = append(res.Issues, issue)
}

func (r *Result) countErrors() int {
	return len(r.Issues)
}

// finish computes the score, verdict, and recommendations.
func (v *Validator) finish(res *Result) {
	score := 100 - 20*len(res.Issues) - 5*len(res.Warnings)
	if score < 0 {
		score = 0
	}
	res.Score = score
	res.Valid = len(res.Issues) == 0
	res.Recommendations = recommend(res)
}

// recommendations keyed off which issue categories fired.
var recommendations = map[string]string{
	CategorySuspiciousCode: "Review flagged calls and minimize use of shell execution, dynamic evaluation, and raw socket access.",
	CategorySecretLeak:     "Move credentials out of source into runtime configuration.",
	CategoryFileOps:        "Reduce direct file operations or move them behind the host's storage hooks.",
	CategoryUnitLength:     "Split oversized source units into smaller focused files.",
	CategoryUnitCount:      "Reduce the number of source units or package the plugin as multiple smaller plugins.",
	CategoryMetadata:       "Complete the descriptor metadata before distribution.",
	CategoryStructure:      "Ensure the candidate exists and contains at least one recognized source unit.",
}

func recommend(res *Result) []string {
	fired := make(map[string]bool)
	for _, issue := range res.Issues {
		fired[issue.Category] = true
	}
	for _, issue := range res.Warnings {
		fired[issue.Category] = true
	}

	var out []string
	for _, category := range []string{
		CategoryStructure, CategorySuspiciousCode, CategorySecretLeak,
		CategoryFileOps, CategoryUnitLength, CategoryUnitCount, CategoryMetadata,
	} {
		if fired[category] {
			out = append(out, recommendations[category])
		}
	}
	return out
}

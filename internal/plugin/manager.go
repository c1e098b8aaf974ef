// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/plugrun/plugrun/internal/observability"
	"github.com/plugrun/plugrun/internal/plugin/capability"
	"github.com/plugrun/plugrun/internal/plugin/discovery"
	"github.com/plugrun/plugrun/internal/plugin/resolver"
	"github.com/plugrun/plugrun/internal/plugin/validator"
)

// DefaultMinScore is the validation score a candidate must reach for
// automatic admission: one error plus a few warnings still admits, two
// errors do not.
const DefaultMinScore = 60

// Manager is the single lifecycle surface external collaborators use.
// It composes discovery, validation, resolution, loading, the
// registry, and capability enforcement; a failed operation on one
// plugin never takes the manager down.
type Manager struct {
	scanner   *discovery.Scanner
	validator *validator.Validator
	loader    *Loader
	registry  *Registry
	enforcer  *capability.Enforcer
	metrics   *observability.Metrics
	minScore  int
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithValidator overrides the default validator.
func WithValidator(v *validator.Validator) ManagerOption {
	return func(m *Manager) { m.validator = v }
}

// WithLoader overrides the default loader.
func WithLoader(l *Loader) ManagerOption {
	return func(m *Manager) { m.loader = l }
}

// WithMetrics wires runtime metrics recording.
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithMinScore overrides the admission score threshold.
func WithMinScore(score int) ManagerOption {
	return func(m *Manager) { m.minScore = score }
}

// NewManager creates a manager scanning the given plugin roots.
func NewManager(roots []string, opts ...ManagerOption) *Manager {
	m := &Manager{
		scanner:   discovery.NewScanner(roots...),
		validator: validator.New(),
		loader:    NewLoader(WithRoots(roots...)),
		registry:  NewRegistry(),
		enforcer:  capability.NewEnforcer(),
		minScore:  DefaultMinScore,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the manager-owned registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Loader returns the manager-owned loader.
func (m *Manager) Loader() *Loader {
	return m.loader
}

// DiscoverPlugins scans the configured roots for candidates.
func (m *Manager) DiscoverPlugins() discovery.Result {
	return m.scanner.Scan()
}

// ValidatePlugin runs the validator over a candidate path.
func (m *Manager) ValidatePlugin(path string) validator.Result {
	res := m.validator.Validate(path)
	m.metrics.RecordValidation(res.Valid, res.Score)
	return res
}

// LoadPlugin validates a discovered candidate by policy and, if
// admitted, loads and registers it. A candidate failing the score
// check is rejected with an explicit validation-failed result.
func (m *Manager) LoadPlugin(ctx context.Context, cand *discovery.Candidate, config map[string]any) LoadResult {
	desc := cand.Descriptor

	if !desc.Enabled {
		return LoadResult{
			PluginName: desc.Name,
			Message:    "plugin is disabled by its descriptor",
		}
	}

	if vres := m.validateCandidate(cand); !vres.Valid || vres.Score < m.minScore {
		m.metrics.RecordLoad("validation_failed")
		return LoadResult{
			PluginName: desc.Name,
			Message: fmt.Sprintf("validation failed: score %d below threshold %d (%d issues)",
				vres.Score, m.minScore, len(vres.Issues)),
		}
	}

	res := m.loader.Load(ctx, desc, cand.Dir, config)
	if !res.Success {
		m.metrics.RecordLoad("failed")
		return res
	}
	m.metrics.RecordLoad("ok")

	if err := m.enforcer.SetGrants(desc.Name, desc.Capabilities); err != nil {
		slog.Warn("failed to set capability grants",
			"plugin", desc.Name,
			"error", err)
	}

	if !m.registry.Register(res.Instance) {
		// Same instance already present from a prior load cycle.
		res.Warnings = append(res.Warnings, fmt.Sprintf("plugin %s already registered", desc.Name))
	}

	m.updateGauges()
	return res
}

// validateCandidate scans what the candidate actually ships: the
// single file for loose Go units, the plugin directory otherwise. A
// manifest whose entry is native may legitimately carry no source at
// all, so the no-units structure check is waived for it.
func (m *Manager) validateCandidate(cand *discovery.Candidate) validator.Result {
	if cand.Source == discovery.SourceGoUnit {
		return m.ValidatePlugin(cand.Path)
	}
	if cand.Descriptor.EntryKind() == EntryNative {
		res := m.validator.ValidateLinked(cand.Dir)
		m.metrics.RecordValidation(res.Valid, res.Score)
		return res
	}
	return m.ValidatePlugin(cand.Dir)
}

// LoadAll discovers, validates, resolves, and loads every candidate in
// dependency order, best-effort per plugin. A conflicting set refuses
// to load anything; a circular set loads the plugins outside the
// cycles. Candidates whose required dependencies are missing are
// skipped with a warning.
func (m *Manager) LoadAll(ctx context.Context) (resolver.Result, error) {
	discovered := m.DiscoverPlugins()
	for _, derr := range discovered.Errors {
		slog.Warn("discovery error", "path", derr.Path, "error", derr.Err)
	}

	byName := make(map[string]*discovery.Candidate, len(discovered.Plugins))
	res := resolver.New()
	for _, cand := range discovered.Plugins {
		d := cand.Descriptor
		if _, dup := byName[d.Name]; dup {
			slog.Warn("duplicate plugin name discovered, keeping first", "plugin", d.Name, "path", cand.Path)
			continue
		}
		byName[d.Name] = cand
		res.Add(resolver.Node{
			Name:                 d.Name,
			Version:              d.Version,
			Dependencies:         d.Dependencies,
			OptionalDependencies: d.OptionalDependencies,
			Conflicts:            d.Conflicts,
		})
	}

	resolution := res.Resolve()
	switch resolution.Status {
	case resolver.StatusConflict:
		return resolution, oops.Code("PLUGIN_CONFLICT").
			With("conflicts", resolution.Conflicts).
			Errorf("conflicting plugins present, nothing loaded")
	case resolver.StatusCircular:
		slog.Warn("circular dependencies detected, loading remaining plugins",
			"cycles", resolution.Circular)
	}

	missing := make(map[string]bool, len(resolution.Missing))
	for _, name := range resolution.Missing {
		missing[name] = true
	}

	for _, name := range resolution.LoadOrder {
		cand := byName[name]
		if skipped := m.missingRequired(cand.Descriptor, missing); skipped != "" {
			slog.Warn("skipping plugin with missing dependency",
				"plugin", name,
				"missing", skipped)
			continue
		}
		if lres := m.LoadPlugin(ctx, cand, nil); !lres.Success {
			slog.Error("failed to load plugin",
				"plugin", name,
				"error", lres.Message)
		}
	}

	return resolution, nil
}

// missingRequired returns the first required dependency of desc known
// to be missing from the discovered set.
func (m *Manager) missingRequired(desc *Descriptor, missing map[string]bool) string {
	for _, dep := range desc.Dependencies {
		if missing[dep] {
			return dep
		}
	}
	return ""
}

// UnloadPlugin delegates to the loader and removes the registry entry
// only when the loader confirms success. Unloading a name that was
// never loaded returns false and is a no-op.
func (m *Manager) UnloadPlugin(ctx context.Context, name string) bool {
	if !m.loader.Unload(ctx, name) {
		return false
	}

	m.registry.Unregister(ctx, name)
	m.enforcer.RemoveGrants(name)
	m.updateGauges()
	return true
}

// EnablePlugin flips a disabled plugin back to active. This is an
// administrative transition: initialize is not re-invoked. Enabling an
// already-active plugin is a no-op.
func (m *Manager) EnablePlugin(name string) error {
	inst, ok := m.registry.Get(name)
	if !ok {
		return &StateTransitionError{Plugin: name, From: StateUnloaded, To: StateActive}
	}
	if inst.State() == StateActive {
		return nil
	}
	return inst.Transition(StateActive)
}

// DisablePlugin flips an active plugin to disabled without invoking
// shutdown. Disabling an already-disabled plugin is a no-op.
func (m *Manager) DisablePlugin(name string) error {
	inst, ok := m.registry.Get(name)
	if !ok {
		return &StateTransitionError{Plugin: name, From: StateUnloaded, To: StateDisabled}
	}
	if inst.State() == StateDisabled {
		return nil
	}
	return inst.Transition(StateDisabled)
}

// Status is the merged registry and loader view of one plugin.
type Status struct {
	Name                string
	Registered          bool
	Loaded              bool
	State               State
	Version             string
	Category            Category
	MissingDependencies []string
}

// PluginStatus merges the registry and loader views for one name,
// including dependency satisfaction against registered names.
func (m *Manager) PluginStatus(name string) (Status, bool) {
	inst, registered := m.registry.Get(name)
	_, loaded := m.loader.Get(name)

	if !registered && !loaded {
		return Status{Name: name}, false
	}

	st := Status{
		Name:       name,
		Registered: registered,
		Loaded:     loaded,
	}
	if registered {
		st.State = inst.State()
		st.Version = inst.Descriptor().Version
		st.Category = inst.Descriptor().Category
		st.MissingDependencies = m.registry.CheckDependencies(name)
	}
	return st, true
}

// SystemStatus aggregates counts by category and state, distinguishing
// registered-but-not-loaded, loaded, and error states.
type SystemStatus struct {
	Registered int
	Loaded     int
	ByCategory map[Category]int
	ByState    map[State]int
}

// GetSystemStatus reports aggregate counts for dashboards and CLIs.
func (m *Manager) GetSystemStatus() SystemStatus {
	st := SystemStatus{
		ByCategory: make(map[Category]int),
		ByState:    make(map[State]int),
	}
	for _, inst := range m.registry.List() {
		st.Registered++
		st.ByCategory[inst.Descriptor().Category]++
		st.ByState[inst.State()]++
	}
	st.Loaded = len(m.loader.LoadedPlugins())
	return st
}

// RegisterHook adds a host-owned handler to a global hook.
func (m *Manager) RegisterHook(hookName string, h Handler) {
	m.registry.RegisterGlobalHook(hookName, h)
}

// RegisterPluginHook adds a handler on behalf of a plugin, enforcing
// that the plugin holds the hook.<name> capability.
func (m *Manager) RegisterPluginHook(pluginName, hookName string, h Handler) error {
	if !m.enforcer.Check(pluginName, "hook."+hookName) {
		return oops.Code("PLUGIN_CAPABILITY_DENIED").
			With("plugin", pluginName).
			With("hook", hookName).
			Errorf("plugin %s lacks capability hook.%s", pluginName, hookName)
	}
	m.registry.RegisterGlobalHook(hookName, h)
	return nil
}

// EmitHook emits a global hook and records metrics.
func (m *Manager) EmitHook(ctx context.Context, hookName string, args map[string]any) EmissionResult {
	res := m.registry.EmitGlobalHook(ctx, hookName, args)
	m.metrics.RecordEmission(hookName, len(res.Failures))
	return res
}

// InitializeAll initializes registered plugins layer by layer:
// plugins within one dependency-free layer run in parallel, but no
// layer starts before the previous one finishes. Returns a per-name
// success map.
func (m *Manager) InitializeAll(ctx context.Context) map[string]bool {
	res := resolver.New()
	for _, inst := range m.registry.List() {
		d := inst.Descriptor()
		res.Add(resolver.Node{
			Name:                 d.Name,
			Dependencies:         d.Dependencies,
			OptionalDependencies: d.OptionalDependencies,
			Conflicts:            d.Conflicts,
		})
	}

	layers := res.Layers()
	if layers == nil {
		// Unresolvable set: fall back to the registry's sequential walk.
		return m.registry.InitializeAll(ctx)
	}

	out := make(map[string]bool)
	var outMu sync.Mutex
	for _, layer := range layers {
		var wg sync.WaitGroup
		for _, name := range layer {
			inst, ok := m.registry.Get(name)
			if !ok {
				continue
			}
			wg.Add(1)
			go func(name string, inst *Instance) {
				defer wg.Done()
				err := inst.Initialize(ctx, inst.Config())
				if err != nil {
					slog.Error("plugin initialization failed",
						"plugin", name,
						"error", err)
				}
				outMu.Lock()
				out[name] = err == nil
				outMu.Unlock()
			}(name, inst)
		}
		wg.Wait()
	}
	return out
}

// Cleanup unloads every registered plugin best-effort. Names that were
// never successfully loaded via the loader remain registered: unload
// is defined as a loader-confirmed operation.
func (m *Manager) Cleanup(ctx context.Context) {
	for _, inst := range m.registry.List() {
		name := inst.Name()
		if !m.UnloadPlugin(ctx, name) {
			slog.Debug("cleanup: plugin registered but never loaded, keeping",
				"plugin", name)
		}
	}
	m.updateGauges()
}

func (m *Manager) updateGauges() {
	m.metrics.SetCounts(m.registry.Count(), len(m.loader.LoadedPlugins()))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrLoaderClosed is returned when operations are attempted on a closed loader.
	ErrLoaderClosed = errors.New("loader is closed")
	// ErrFactoryExists is returned when registering a duplicate native factory path.
	ErrFactoryExists = errors.New("factory already registered")
)

// Factory creates a fresh LifecyclePlugin implementation. Native
// (statically-linked) plugins register a factory under their dotted
// entry path.
type Factory func() LifecyclePlugin

// ScriptHost compiles a file-based entry into a LifecyclePlugin.
// Implemented by the luahost package.
type ScriptHost interface {
	Compile(ctx context.Context, name, path string) (LifecyclePlugin, error)
}

// LoadResult reports the outcome of a load operation. Failures are
// structured values: the loader never panics or raises for a bad
// candidate.
type LoadResult struct {
	PluginName string
	Success    bool
	Instance   *Instance
	Message    string
	Warnings   []string
}

// Loader materializes validated, ordered descriptors into live
// instances and owns the authoritative map of what is currently
// loaded. It is the only component permitted to move a plugin between
// UNLOADED and ACTIVE.
type Loader struct {
	factories map[string]Factory
	loaded    map[string]*Instance
	script    ScriptHost
	roots     []string
	closed    bool
	mu        sync.RWMutex
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithScriptHost sets the host used for file-based (.lua) entries.
func WithScriptHost(h ScriptHost) LoaderOption {
	return func(l *Loader) {
		l.script = h
	}
}

// WithRoots sets the plugin directories used by the dependency
// existence probe.
func WithRoots(roots ...string) LoaderOption {
	return func(l *Loader) {
		l.roots = roots
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		factories: make(map[string]Factory),
		loaded:    make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterFactory registers a native implementation under its dotted
// entry path. Registering the same path twice is an error: ambiguity
// about which unit serves an entry must be explicit.
func (l *Loader) RegisterFactory(path string, f Factory) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.factories[path]; ok {
		return fmt.Errorf("%w: %s", ErrFactoryExists, path)
	}
	l.factories[path] = f
	return nil
}

// entryRetryBackoff bounds the retry of transient entry reads.
const entryRetryBackoff = 50 * time.Millisecond

// Load materializes a descriptor into a live instance and initializes
// it. dir is the plugin directory file entries are resolved against;
// native entries ignore it. Loading an already-loaded name succeeds,
// appends an "already loaded" warning, and returns the existing
// instance unchanged.
func (l *Loader) Load(ctx context.Context, desc *Descriptor, dir string, config map[string]any) LoadResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := LoadResult{PluginName: desc.Name}

	if l.closed {
		res.Message = ErrLoaderClosed.Error()
		return res
	}

	if existing, ok := l.loaded[desc.Name]; ok {
		res.Success = true
		res.Instance = existing
		res.Warnings = append(res.Warnings, fmt.Sprintf("plugin %s already loaded", desc.Name))
		return res
	}

	impl, err := l.resolveEntry(ctx, desc, dir)
	if err != nil {
		res.Message = err.Error()
		return res
	}

	inst := NewInstance(desc, impl)
	// Loader-owned transitions; these cannot fail from a fresh instance.
	_ = inst.Transition(StateLoading)
	_ = inst.Transition(StateLoaded)

	if err := inst.Initialize(ctx, config); err != nil {
		res.Message = fmt.Sprintf("initialize failed: %v", err)
		return res
	}

	l.loaded[desc.Name] = inst
	res.Success = true
	res.Instance = inst

	slog.Info("loaded plugin",
		"plugin", desc.Name,
		"version", desc.Version,
		"entry", desc.Entry)
	return res
}

// resolveEntry locates the loadable unit behind a descriptor's entry
// reference.
func (l *Loader) resolveEntry(ctx context.Context, desc *Descriptor, dir string) (LifecyclePlugin, error) {
	switch desc.EntryKind() {
	case EntryNative:
		factory, ok := l.factories[desc.Entry]
		if !ok {
			return nil, oops.Code("PLUGIN_ENTRY_UNRESOLVED").With("entry", desc.Entry).
				Errorf("no implementation registered for entry %q", desc.Entry)
		}
		return factory(), nil

	case EntryScript:
		if l.script == nil {
			return nil, oops.Code("PLUGIN_NO_SCRIPT_HOST").
				Errorf("no script host configured for entry %q", desc.Entry)
		}
		entryPath := filepath.Join(dir, desc.Entry)
		if err := waitForEntry(ctx, entryPath); err != nil {
			return nil, oops.Code("PLUGIN_ENTRY_UNRESOLVED").With("path", entryPath).Wrap(err)
		}
		return l.script.Compile(ctx, desc.Name, entryPath)

	default:
		return nil, oops.Code("PLUGIN_ENTRY_UNRESOLVED").
			Errorf("entry %q matches no supported convention", desc.Entry)
	}
}

// waitForEntry probes the entry file, retrying transient filesystem
// errors with a bounded constant backoff. A missing file is permanent
// and fails immediately.
func waitForEntry(ctx context.Context, path string) error {
	backoff := retry.WithMaxRetries(2, retry.NewConstant(entryRetryBackoff))
	return retry.Do(ctx, backoff, func(_ context.Context) error {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return err // permanent
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Unload shuts the instance down, removes it from the loaded map, and
// reports false if the name was never loaded. A shutdown failure is
// logged but does not keep the slot occupied.
func (l *Loader) Unload(ctx context.Context, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	inst, ok := l.loaded[name]
	if !ok {
		return false
	}

	if err := inst.Shutdown(ctx); err != nil {
		slog.Error("plugin shutdown failed during unload",
			"plugin", name,
			"error", err)
	}

	delete(l.loaded, name)
	return true
}

// Reload unloads and loads a plugin under its existing descriptor,
// re-invoking the full lifecycle. Reloading a name that was never
// loaded fails.
func (l *Loader) Reload(ctx context.Context, name, dir string, config map[string]any) LoadResult {
	l.mu.RLock()
	inst, ok := l.loaded[name]
	l.mu.RUnlock()

	if !ok {
		return LoadResult{PluginName: name, Message: "plugin not loaded"}
	}

	desc := inst.Descriptor()
	if !l.Unload(ctx, name) {
		return LoadResult{PluginName: name, Message: "plugin not loaded"}
	}
	return l.Load(ctx, desc, dir, config)
}

// Get returns the loaded instance for name.
func (l *Loader) Get(name string) (*Instance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	inst, ok := l.loaded[name]
	return inst, ok
}

// LoadedPlugins returns a defensive copy of the loaded map.
func (l *Loader) LoadedPlugins() map[string]*Instance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]*Instance, len(l.loaded))
	for name, inst := range l.loaded {
		out[name] = inst
	}
	return out
}

// ValidateDependencies probes whether each declared required
// dependency can even be found: already loaded, registered as a
// native factory, or present as a plugin directory under one of the
// configured roots. This is an existence probe, not a graph-ordering
// check; the resolver owns ordering.
func (l *Loader) ValidateDependencies(desc *Descriptor) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var missing []string
	for _, dep := range desc.Dependencies {
		if _, ok := l.loaded[dep]; ok {
			continue
		}
		if l.factoryServes(dep) {
			continue
		}
		if l.dirExists(dep) {
			continue
		}
		missing = append(missing, dep)
	}
	return missing
}

// factoryServes reports whether a registered factory's terminal path
// segment names the dependency.
func (l *Loader) factoryServes(name string) bool {
	for path := range l.factories {
		if path == name {
			return true
		}
		if idx := len(path) - len(name) - 1; idx >= 0 && path[idx] == '.' && path[idx+1:] == name {
			return true
		}
	}
	return false
}

// dirExists reports whether any root holds a plugin directory with a
// descriptor for the dependency.
func (l *Loader) dirExists(name string) bool {
	for _, root := range l.roots {
		if _, err := os.Stat(filepath.Join(root, name, "plugin.yaml")); err == nil {
			return true
		}
	}
	return false
}

// Close unloads every plugin and rejects further loads.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for name, inst := range l.loaded {
		if err := inst.Shutdown(ctx); err != nil {
			slog.Error("plugin shutdown failed during close",
				"plugin", name,
				"error", err)
		}
	}

	l.closed = true
	clear(l.loaded)
	return nil
}

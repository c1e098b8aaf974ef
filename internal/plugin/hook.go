// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Handler processes a single hook emission and returns its result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// HandlerFailure records one handler that failed during an emission.
type HandlerFailure struct {
	Index int
	Err   error
}

// EmissionResult collects the outcome of emitting a hook: successful
// results in registration order plus the failures that were isolated.
type EmissionResult struct {
	EmissionID string
	Hook       string
	Results    []any
	Failures   []HandlerFailure
}

// hook is a named extension point with its registered handlers.
type hook struct {
	name      string
	signature *Signature
	handlers  []Handler
}

// HookBus owns a set of named hooks. Hooks exist both globally (owned
// by the registry) and per-instance (owned by a plugin instance).
// A HookBus is safe for concurrent use.
type HookBus struct {
	hooks map[string]*hook
	mu    sync.RWMutex
}

// NewHookBus creates an empty hook bus.
func NewHookBus() *HookBus {
	return &HookBus{hooks: make(map[string]*hook)}
}

// Register appends a handler to the named hook, creating the hook on
// first use. Handlers run in registration order.
func (b *HookBus) Register(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hk, ok := b.hooks[name]
	if !ok {
		hk = &hook{name: name}
		b.hooks[name] = hk
	}
	hk.handlers = append(hk.handlers, h)
}

// DeclareSignature attaches an expected call signature to a hook,
// creating the hook if needed. The signature is advisory: emissions
// that do not match log a warning and still run.
func (b *HookBus) DeclareSignature(name, declaration string) error {
	sig, err := ParseSignature(declaration)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	hk, ok := b.hooks[name]
	if !ok {
		hk = &hook{name: name}
		b.hooks[name] = hk
	}
	hk.signature = sig
	return nil
}

// Emit calls every handler registered for the named hook in
// registration order. Each handler's failure (error or panic) is
// isolated: it is recorded and logged, and the remaining handlers
// still run. Emitting an unknown hook is a no-op emission.
func (b *HookBus) Emit(ctx context.Context, name string, args map[string]any) EmissionResult {
	b.mu.RLock()
	hk, ok := b.hooks[name]
	var handlers []Handler
	var sig *Signature
	if ok {
		handlers = append(handlers, hk.handlers...)
		sig = hk.signature
	}
	b.mu.RUnlock()

	res := EmissionResult{
		EmissionID: ulid.Make().String(),
		Hook:       name,
	}

	if sig != nil {
		if mismatches := sig.Mismatches(args); len(mismatches) > 0 {
			slog.Warn("hook emission does not match declared signature",
				"hook", name,
				"emission_id", res.EmissionID,
				"signature", sig.String(),
				"mismatches", mismatches)
		}
	}

	for i, h := range handlers {
		out, err := b.invoke(ctx, h, args)
		if err != nil {
			slog.Error("hook handler failed",
				"hook", name,
				"emission_id", res.EmissionID,
				"handler_index", i,
				"error", err)
			res.Failures = append(res.Failures, HandlerFailure{Index: i, Err: err})
			continue
		}
		res.Results = append(res.Results, out)
	}

	return res
}

// invoke runs one handler, converting a panic into an error so one
// misbehaving handler cannot stop the emission.
func (b *HookBus) invoke(ctx context.Context, h Handler, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("HOOK_HANDLER_PANIC").With("panic", r).Errorf("handler panicked")
		}
	}()
	return h(ctx, args)
}

// Hooks returns the sorted names of all declared hooks.
func (b *HookBus) Hooks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.hooks))
	for name := range b.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandlerCount returns the number of handlers registered for a hook.
func (b *HookBus) HandlerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hk, ok := b.hooks[name]
	if !ok {
		return 0
	}
	return len(hk.handlers)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package luahost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/plugrun/plugrun/internal/plugin"
)

// Compile-time interface check.
var _ plugins.ScriptHost = (*Host)(nil)

// Host compiles Lua plugin entries into LifecyclePlugin instances.
type Host struct {
	factory *StateFactory
}

// New creates a Lua host.
func New() *Host {
	return &Host{factory: NewStateFactory()}
}

// Compile reads and syntax-checks a Lua entry file and adapts its
// lifecycle globals to the LifecyclePlugin interface. The script must
// define an initialize function; shutdown is optional. A script
// defining neither lifecycle entry point is rejected.
func (h *Host) Compile(ctx context.Context, name, path string) (plugins.LifecyclePlugin, error) {
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.In("luahost").With("plugin", name).With("path", path).Hint("failed to read entry file").Wrap(err)
	}

	// Validate syntax and probe the lifecycle globals in a throwaway state.
	L, err := h.factory.NewState(ctx)
	if err != nil {
		return nil, oops.In("luahost").With("plugin", name).Hint("failed to create validation state").Wrap(err)
	}
	defer L.Close()

	if err := L.DoString(string(code)); err != nil {
		return nil, oops.In("luahost").With("plugin", name).With("path", path).Hint("syntax error").Wrap(err)
	}

	if L.GetGlobal("initialize").Type() != lua.LTFunction {
		return nil, oops.Code("PLUGIN_NO_LIFECYCLE_UNIT").
			In("luahost").With("plugin", name).With("path", path).
			New("script does not define an initialize function")
	}

	return &scriptPlugin{
		name:    name,
		factory: h.factory,
		code:    string(code),
	}, nil
}

// scriptPlugin adapts a Lua script's initialize/shutdown globals to
// the LifecyclePlugin interface. A persistent state is created on
// Initialize and closed on Shutdown so the script can keep module
// scope between the two.
type scriptPlugin struct {
	name    string
	factory *StateFactory
	code    string
	state   *lua.LState
	mu      sync.Mutex
}

// Initialize runs the script and calls its initialize(config) global.
// A false return value from the script counts as a failure.
func (p *scriptPlugin) Initialize(ctx context.Context, config map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != nil {
		return nil // already initialized
	}

	L, err := p.factory.NewState(ctx)
	if err != nil {
		return oops.In("luahost").With("plugin", p.name).Wrap(err)
	}

	if err := L.DoString(p.code); err != nil {
		L.Close()
		return oops.In("luahost").With("plugin", p.name).Hint("failed to load code").Wrap(err)
	}

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("initialize"),
		NRet:    1,
		Protect: true,
	}, configTable(L, config)); err != nil {
		L.Close()
		return oops.In("luahost").With("plugin", p.name).With("operation", "initialize").Wrap(err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	if ret == lua.LFalse {
		L.Close()
		return oops.Code("PLUGIN_INIT_REFUSED").In("luahost").With("plugin", p.name).
			New("initialize returned false")
	}

	p.state = L
	return nil
}

// Shutdown calls the script's shutdown() global if defined and closes
// the persistent state. Safe to call when never initialized.
func (p *scriptPlugin) Shutdown(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == nil {
		return nil
	}
	L := p.state
	p.state = nil
	defer L.Close()

	shutdown := L.GetGlobal("shutdown")
	if shutdown.Type() != lua.LTFunction {
		return nil
	}

	if err := L.CallByParam(lua.P{
		Fn:      shutdown,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return oops.In("luahost").With("plugin", p.name).With("operation", "shutdown").Wrap(err)
	}
	return nil
}

// configTable converts a config map to a Lua table. Nested maps and
// slices are converted recursively; unsupported values fall back to
// their string form.
func configTable(L *lua.LState, config map[string]any) *lua.LTable {
	t := L.NewTable()
	for k, v := range config {
		L.SetField(t, k, toLuaValue(L, v))
	}
	return t
}

func toLuaValue(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case map[string]any:
		return configTable(L, val)
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(toLuaValue(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

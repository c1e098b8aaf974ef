// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/plugrun/plugrun/internal/plugin"
	"github.com/plugrun/plugrun/internal/plugin/luahost"
	"github.com/plugrun/plugrun/internal/plugin/resolver"
)

// writeLuaPlugin lays out a complete Lua plugin directory under root.
func writeLuaPlugin(root, name, yamlExtra, luaBody string) error {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	yaml := "name: " + name + "\nversion: 1.0.0\ndescription: integration fixture\nauthor: tests\nentry: main.lua\n" + yamlExtra
	if err := os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(yaml), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "main.lua"), []byte(luaBody), 0o644)
}

const wellBehavedScript = `
function initialize(config)
  return true
end

function shutdown()
end
`

func newLuaManager(root string) *plugin.Manager {
	return plugin.NewManager([]string{root},
		plugin.WithLoader(plugin.NewLoader(
			plugin.WithScriptHost(luahost.New()),
			plugin.WithRoots(root),
		)),
	)
}

var _ = Describe("Plugin runtime", func() {
	var (
		ctx  context.Context
		root string
		mgr  *plugin.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
	})

	AfterEach(func() {
		if mgr != nil {
			mgr.Cleanup(ctx)
		}
	})

	Describe("full discover-validate-load flow", func() {
		It("loads a dependency chain of Lua plugins in order", func() {
			Expect(writeLuaPlugin(root, "base", "", wellBehavedScript)).To(Succeed())
			Expect(writeLuaPlugin(root, "mid", "dependencies:\n  - base\n", wellBehavedScript)).To(Succeed())
			Expect(writeLuaPlugin(root, "top", "dependencies:\n  - mid\n", wellBehavedScript)).To(Succeed())

			mgr = newLuaManager(root)
			res, err := mgr.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(resolver.StatusResolved))
			Expect(res.LoadOrder).To(Equal([]string{"base", "mid", "top"}))

			for _, name := range res.LoadOrder {
				st, ok := mgr.PluginStatus(name)
				Expect(ok).To(BeTrue())
				Expect(st.State).To(Equal(plugin.StateActive))
			}
		})

		It("rejects a plugin whose script contains risky calls", func() {
			risky := `
danger = "os.execute(" .. "'rm')"

function initialize(config)
  return true
end
`
			Expect(writeLuaPlugin(root, "shady", "", risky)).To(Succeed())

			mgr = newLuaManager(root)
			_, err := mgr.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, ok := mgr.PluginStatus("shady")
			Expect(ok).To(BeFalse())
		})

		It("refuses to load anything when plugins conflict", func() {
			Expect(writeLuaPlugin(root, "store-a", "", wellBehavedScript)).To(Succeed())
			Expect(writeLuaPlugin(root, "store-b", "conflicts:\n  - store-a\n", wellBehavedScript)).To(Succeed())

			mgr = newLuaManager(root)
			res, err := mgr.LoadAll(ctx)
			Expect(err).To(HaveOccurred())
			Expect(res.Status).To(Equal(resolver.StatusConflict))
			Expect(mgr.Registry().Count()).To(BeZero())
		})

		It("loads plugins outside a dependency cycle", func() {
			Expect(writeLuaPlugin(root, "ring-a", "dependencies:\n  - ring-b\n", wellBehavedScript)).To(Succeed())
			Expect(writeLuaPlugin(root, "ring-b", "dependencies:\n  - ring-a\n", wellBehavedScript)).To(Succeed())
			Expect(writeLuaPlugin(root, "loner", "", wellBehavedScript)).To(Succeed())

			mgr = newLuaManager(root)
			res, err := mgr.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(resolver.StatusCircular))

			st, ok := mgr.PluginStatus("loner")
			Expect(ok).To(BeTrue())
			Expect(st.Loaded).To(BeTrue())
		})
	})

	Describe("lifecycle management", func() {
		BeforeEach(func() {
			Expect(writeLuaPlugin(root, "worker", "capabilities:\n  - hook.on-task\n", wellBehavedScript)).To(Succeed())
			mgr = newLuaManager(root)
			_, err := mgr.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
		})

		It("disables and re-enables without re-initializing", func() {
			Expect(mgr.DisablePlugin("worker")).To(Succeed())
			st, _ := mgr.PluginStatus("worker")
			Expect(st.State).To(Equal(plugin.StateDisabled))

			Expect(mgr.EnablePlugin("worker")).To(Succeed())
			st, _ = mgr.PluginStatus("worker")
			Expect(st.State).To(Equal(plugin.StateActive))
		})

		It("unloads cleanly and allows a fresh load", func() {
			Expect(mgr.UnloadPlugin(ctx, "worker")).To(BeTrue())
			_, ok := mgr.PluginStatus("worker")
			Expect(ok).To(BeFalse())

			res := mgr.DiscoverPlugins()
			Expect(res.Plugins).NotTo(BeEmpty())
			lres := mgr.LoadPlugin(ctx, res.Plugins[0], nil)
			Expect(lres.Success).To(BeTrue(), lres.Message)
		})

		It("routes hook emissions through capability checks", func() {
			calls := 0
			handler := func(_ context.Context, _ map[string]any) (any, error) {
				calls++
				return "done", nil
			}

			Expect(mgr.RegisterPluginHook("worker", "on-task", handler)).To(Succeed())
			Expect(mgr.RegisterPluginHook("worker", "on-other", handler)).NotTo(Succeed())

			res := mgr.EmitHook(ctx, "on-task", map[string]any{"id": 1})
			Expect(res.Failures).To(BeEmpty())
			Expect(res.Results).To(HaveLen(1))
			Expect(calls).To(Equal(1))
		})
	})

	Describe("script lifecycle semantics", func() {
		It("fails the load when initialize returns false", func() {
			refusing := `
function initialize(config)
  return false
end
`
			Expect(writeLuaPlugin(root, "refuser", "", refusing)).To(Succeed())

			mgr = newLuaManager(root)
			_, err := mgr.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, ok := mgr.PluginStatus("refuser")
			Expect(ok).To(BeFalse())
		})

		It("passes configuration through to the script", func() {
			checking := `
function initialize(config)
  return config.mode == "fast"
end
`
			Expect(writeLuaPlugin(root, "configured", "", checking)).To(Succeed())

			mgr = newLuaManager(root)
			res := mgr.DiscoverPlugins()
			Expect(res.Plugins).To(HaveLen(1))

			lres := mgr.LoadPlugin(ctx, res.Plugins[0], map[string]any{"mode": "fast"})
			Expect(lres.Success).To(BeTrue(), lres.Message)
		})
	})
})

package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/datadrivengas/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core))
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func hasLevel(logs *observer.ObservedLogs, level zapcore.Level) bool {
	for _, e := range logs.All() {
		if e.Level == level {
			return true
		}
	}
	return false
}

func TestManager_LoadZone_CallsDamageHook(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "damage.lua", `
		function on_damage(source, target, amount, target_health)
			if target_health < 50 then
				return amount / 2
			end
			return amount
		end
	`)
	require.NoError(t, mgr.LoadZone("arena", dir, 0))

	ret, err := mgr.CallHook("arena", "on_damage",
		lua.LString("goblin"), lua.LString("hero"), lua.LNumber(30), lua.LNumber(40))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(15), ret)
	assert.True(t, mgr.HasZone("arena"))
}

func TestManager_CallHook_MissingHook_NoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "empty.lua", `not_a_function = 3`)
	require.NoError(t, mgr.LoadZone("arena", dir, 0))

	for _, hook := range []string{"nonexistent_hook", "not_a_function"} {
		ret, err := mgr.CallHook("arena", hook)
		require.NoError(t, err)
		assert.Equal(t, lua.LNil, ret)
	}
}

func TestManager_CallHook_UnknownZone_LogsInfoReturnsNil(t *testing.T) {
	mgr, logs := newTestManager(t)
	ret, err := mgr.CallHook("no_such_zone", "on_damage")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.InfoLevel), "expected Info log for missing zone")
}

func TestManager_CallHook_RuntimeError_WarnLogNoPanic(t *testing.T) {
	mgr, logs := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `
		function on_damage()
			error("intentional error")
		end
	`)
	require.NoError(t, mgr.LoadZone("arena", dir, 0))
	ret, err := mgr.CallHook("arena", "on_damage")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.WarnLevel), "expected Warn log for Lua runtime error")
}

func TestManager_CallHook_RunawayHookIsStopped(t *testing.T) {
	mgr, logs := newTestManager(t)
	dir := writeTempLua(t, "loop.lua", `
		function spin() while true do end end
		function add(a, b) return a + b end
	`)
	require.NoError(t, mgr.LoadZone("arena", dir, 1000))

	ret, err := mgr.CallHook("arena", "spin")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.True(t, hasLevel(logs, zap.WarnLevel))

	// The budget is per call: the VM still serves later hooks.
	ret, err = mgr.CallHook("arena", "add", lua.LNumber(1), lua.LNumber(2))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(3), ret)
}

func TestManager_CallHook_BudgetResetsBetweenCalls(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "work.lua", `
		function work()
			local s = 0
			for i = 1, 100 do s = s + i end
			return s
		end
	`)
	require.NoError(t, mgr.LoadZone("arena", dir, 2000))
	for i := 0; i < 50; i++ {
		ret, err := mgr.CallHook("arena", "work")
		require.NoError(t, err)
		require.Equal(t, lua.LNumber(5050), ret, "call %d", i)
	}
}

func TestManager_LoadGlobal_CallHookFallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "global.lua", `
		function on_damage(source, target, amount)
			return amount + 1
		end
	`)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
	ret, err := mgr.CallHook("unknownzone", "on_damage", lua.LString("a"), lua.LString("b"), lua.LNumber(9))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(10), ret)
	assert.False(t, mgr.HasZone("unknownzone"))
}

func TestManager_LoadRoot(t *testing.T) {
	mgr, _ := newTestManager(t)
	root := t.TempDir()
	for dir, src := range map[string]string{
		"arena":             `function zone_name() return "arena" end`,
		scripting.GlobalDir: `function zone_name() return "global" end`,
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, "init.lua"), []byte(src), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("ignored"), 0644))

	n, err := mgr.LoadRoot(root, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ret, _ := mgr.CallHook("arena", "zone_name")
	assert.Equal(t, lua.LString("arena"), ret)
	ret, _ = mgr.CallHook("elsewhere", "zone_name")
	assert.Equal(t, lua.LString("global"), ret)
}

func TestManager_LoadRoot_MissingDir(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.LoadRoot(filepath.Join(t.TempDir(), "missing"), 0)
	assert.Error(t, err)
}

func TestManager_LoadZone_EmptyDir_NoError(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadZone("emptyzone", t.TempDir(), 0))
	ret, err := mgr.CallHook("emptyzone", "anything")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_LoadZone_Errors(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "bad.lua", `this is not valid lua @@@@`)
	assert.Error(t, mgr.LoadZone("badzone", dir, 0))
	assert.Error(t, mgr.LoadZone("", t.TempDir(), 0))
	assert.False(t, mgr.HasZone("badzone"))
}

func TestManager_LoadZone_ReplacesExisting(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadZone("arena", writeTempLua(t, "a.lua", `function v() return 1 end`), 0))
	require.NoError(t, mgr.LoadZone("arena", writeTempLua(t, "a.lua", `function v() return 2 end`), 0))
	ret, err := mgr.CallHook("arena", "v")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(2), ret)
}

func TestManager_LoadZone_MultipleFiles_OrderedByName(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`base_val = 10`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`
		function get_val() return base_val end
	`), 0644))
	require.NoError(t, mgr.LoadZone("ordered", dir, 0))
	ret, err := mgr.CallHook("ordered", "get_val")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(10), ret)
}

func TestNewManager_PanicsOnNilLogger(t *testing.T) {
	assert.Panics(t, func() {
		scripting.NewManager(nil)
	})
}

func TestManager_Close_ReleasesZones(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadZone("closezone", writeTempLua(t, "init.lua", `function get_x() return 1 end`), 0))
	mgr.Close()
	ret, err := mgr.CallHook("closezone", "get_x")
	assert.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestEngineLog_WritesToLogger(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.LoadZone("arena", writeTempLua(t, "log.lua", `
		function do_log()
			engine.log.debug("d")
			engine.log.info("hello from lua")
			engine.log.warn("w")
			engine.log.error("e")
		end
	`), 0))

	_, err := mgr.CallHook("arena", "do_log")
	require.NoError(t, err)

	entries := logs.FilterField(zap.String("source", "lua")).All()
	require.Len(t, entries, 4)
	messages := map[string]bool{}
	for _, e := range entries {
		messages[e.Message] = true
		assert.Equal(t, "arena", e.ContextMap()["zone"])
	}
	assert.True(t, messages["hello from lua"])
}

func TestEngineAttribute(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.GetAttribute = func(character, attribute string) (float64, bool) {
		if character == "hero" && attribute == "Health" {
			return 75, true
		}
		return 0, false
	}
	require.NoError(t, mgr.LoadZone("arena", writeTempLua(t, "attr.lua", `
		function health_of(name) return engine.attribute(name, "Health") end
	`), 0))

	ret, _ := mgr.CallHook("arena", "health_of", lua.LString("hero"))
	assert.Equal(t, lua.LNumber(75), ret)
	ret, _ = mgr.CallHook("arena", "health_of", lua.LString("nobody"))
	assert.Equal(t, lua.LNil, ret)
}

func TestEngineAttribute_NoCallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadZone("arena", writeTempLua(t, "attr.lua", `
		function health_of(name) return engine.attribute(name, "Health") end
	`), 0))
	ret, _ := mgr.CallHook("arena", "health_of", lua.LString("hero"))
	assert.Equal(t, lua.LNil, ret)
}

func TestProperty_CallHookMissingZoneNeverPanics(t *testing.T) {
	mgr, _ := newTestManager(t)
	rapid.Check(t, func(rt *rapid.T) {
		zoneID := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "zone")
		hook := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "hook")
		count := rapid.IntRange(1, 20).Draw(rt, "count")
		for i := 0; i < count; i++ {
			mgr.CallHook(zoneID, hook) //nolint:errcheck
		}
	})
}

func TestManager_CallHookConcurrentSameZone_NoRace(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadZone("conczone", writeTempLua(t, "hooks.lua", `
		function on_damage(source, target, amount) return amount * 2 end
	`), 0))

	const goroutines = 10
	const callsEach = 5
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsEach; j++ {
				ret, err := mgr.CallHook("conczone", "on_damage", lua.LString("a"), lua.LString("b"), lua.LNumber(3))
				assert.NoError(t, err)
				assert.Equal(t, lua.LNumber(6), ret)
			}
		}()
	}
	wg.Wait()
}

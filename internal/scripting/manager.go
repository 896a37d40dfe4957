package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// globalZoneID is the reserved key for shared scripts loaded via LoadGlobal.
// CallHook falls back to this VM when no zone VM is found.
const globalZoneID = "__global__"

// GlobalDir is the subdirectory of a script root loaded into the global VM.
const GlobalDir = "global"

// zoneVM is one sandboxed LState. An LState is single-threaded, so every
// call into it holds mu.
type zoneVM struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	closed bool
}

func (z *zoneVM) close() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.closed = true
	z.L.Close()
}

// Manager owns one sandboxed LState per script zone and exposes hook dispatch.
//
// Manager is safe for concurrent use. Calls into the same zone are serialized;
// different zones run concurrently.
type Manager struct {
	mu     sync.RWMutex
	zones  map[string]*zoneVM
	logger *zap.Logger

	// GetAttribute backs engine.attribute(character, name). Injected after
	// construction; nil makes engine.attribute return nil.
	GetAttribute func(character, attribute string) (float64, bool)
}

// NewManager creates a Manager.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Manager with an empty zone map.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		zones:  make(map[string]*zoneVM),
		logger: logger,
	}
}

// LoadZone creates a sandboxed VM for zoneID, registers the engine.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: zoneID must be non-empty; scriptDir must be a readable directory.
// Postcondition: Zone VM is registered, replacing any previous one; returns
// error on Lua load failure.
func (m *Manager) LoadZone(zoneID, scriptDir string, instLimit int) error {
	if zoneID == "" {
		return fmt.Errorf("scripting: zone id must not be empty")
	}
	return m.loadInto(zoneID, scriptDir, instLimit)
}

// LoadGlobal creates the "__global__" VM used as the CallHook fallback from any zone.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Global VM is registered; returns error on Lua load failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(globalZoneID, scriptDir, instLimit)
}

// LoadRoot loads every subdirectory of root as a zone named after the
// directory. The GlobalDir subdirectory is loaded as the global VM.
//
// Precondition: root must be a readable directory.
// Postcondition: Returns the number of VMs loaded, or the first load error.
func (m *Manager) LoadRoot(root string, instLimit int) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("scripting: reading script root %q: %w", root, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if e.Name() == GlobalDir {
			err = m.LoadGlobal(dir, instLimit)
		} else {
			err = m.LoadZone(e.Name(), dir, instLimit)
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L, key)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}
	cancel()
	L.RemoveContext()

	vm := &zoneVM{L: L, limit: instLimit}
	m.mu.Lock()
	old := m.zones[key]
	m.zones[key] = vm
	m.mu.Unlock()
	if old != nil {
		old.close()
	}

	m.logger.Debug("scripting: zone loaded",
		zap.String("zone", key),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// HasZone reports whether zoneID has its own VM.
func (m *Manager) HasZone(zoneID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.zones[zoneID]
	return ok
}

// CallHook calls the named Lua global function in zoneID's VM. If the zone has
// no VM, the __global__ VM is tried as a fallback. Returns (LNil, nil) if the
// hook is not defined or no VM exists. Lua runtime errors, including an
// exhausted instruction budget, are logged at Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(zoneID, hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	vm, ok := m.zones[zoneID]
	if !ok {
		vm = m.zones[globalZoneID]
	}
	m.mu.RUnlock()

	if vm == nil {
		m.logger.Info("scripting: no VM for zone",
			zap.String("zone", zoneID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return lua.LNil, nil
	}

	fn := vm.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, nil
	}

	var ret lua.LValue = lua.LNil
	err := withBudget(vm.L, vm.limit, func() error {
		if err := vm.L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    1,
			Protect: true,
		}, args...); err != nil {
			return err
		}
		ret = vm.L.Get(-1)
		vm.L.Pop(1)
		return nil
	})
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("zone", zoneID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}
	return ret, nil
}

// Close releases every VM. CallHook after Close returns LNil.
func (m *Manager) Close() {
	m.mu.Lock()
	zones := m.zones
	m.zones = make(map[string]*zoneVM)
	m.mu.Unlock()
	for _, vm := range zones {
		vm.close()
	}
}

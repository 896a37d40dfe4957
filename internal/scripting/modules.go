package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua tables into L:
//
//	engine.log.debug|info|warn|error(msg)
//	engine.attribute(character, name) -> number or nil
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState, zoneID string) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.newLogModule(L, zoneID))
	L.SetField(engine, "attribute", L.NewFunction(m.luaAttribute))
	L.SetGlobal("engine", engine)
}

func (m *Manager) newLogModule(L *lua.LState, zoneID string) *lua.LTable {
	logger := m.logger.With(zap.String("zone", zoneID))
	mod := L.NewTable()
	levels := map[string]func(string, ...zap.Field){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	}
	for name, fn := range levels {
		logFn := fn
		L.SetField(mod, name, L.NewFunction(func(L *lua.LState) int {
			logFn(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}))
	}
	return mod
}

func (m *Manager) luaAttribute(L *lua.LState) int {
	character := L.CheckString(1)
	name := L.CheckString(2)
	if m.GetAttribute == nil {
		L.Push(lua.LNil)
		return 1
	}
	v, ok := m.GetAttribute(character, name)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(v))
	return 1
}

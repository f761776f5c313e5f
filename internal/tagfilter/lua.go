package tagfilter

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LoadLua runs a Lua rules script. The script builds the rule set by calling
// include(key[, value]) and exclude(key[, value]), and may call
// default_include(bool) to change the default polarity.
func LoadLua(path string) (*RuleSet, error) {
	return runLua(func(L *lua.LState) error { return L.DoFile(path) })
}

// LoadLuaString is LoadLua for inline scripts
func LoadLuaString(code string) (*RuleSet, error) {
	return runLua(func(L *lua.LState) error { return L.DoString(code) })
}

func runLua(run func(*lua.LState) error) (*RuleSet, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	// Base, string and table libraries only; no io or os.
	L.Push(L.NewFunction(lua.OpenBase))
	L.Push(lua.LString(lua.BaseLibName))
	L.Call(1, 0)
	L.Push(L.NewFunction(lua.OpenString))
	L.Push(lua.LString(lua.StringLibName))
	L.Call(1, 0)
	L.Push(L.NewFunction(lua.OpenTable))
	L.Push(lua.LString(lua.TabLibName))
	L.Call(1, 0)

	rs := NewRuleSet(false)
	L.SetGlobal("include", L.NewFunction(luaAddRule(rs, true)))
	L.SetGlobal("exclude", L.NewFunction(luaAddRule(rs, false)))
	L.SetGlobal("default_include", L.NewFunction(func(L *lua.LState) int {
		rs.defaultInclude = L.CheckBool(1)
		return 0
	}))

	if err := run(L); err != nil {
		return nil, fmt.Errorf("failed to load Lua rules: %w", err)
	}
	return rs, nil
}

func luaAddRule(rs *RuleSet, include bool) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		value := L.OptString(2, "")
		if key == "" {
			L.ArgError(1, "empty key")
			return 0
		}
		if value == "*" {
			value = ""
		}
		rs.AddRule(include, key, value)
		return 0
	}
}

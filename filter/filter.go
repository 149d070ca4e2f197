// Package filter provides Lua-scripted per-key migration filtering.
//
// A filter script is evaluated once per candidate key before replication,
// with the key name exposed as the global KEY. The script's return value
// decides what happens:
//   - true (or no return value): migrate the key unchanged
//   - false or nil: skip the key
//   - a string: migrate the key under the returned target name
//
// Example script that drops temporary keys and moves the rest under a
// namespace:
//
//	if string.sub(KEY, 1, 4) == "tmp:" then
//		return false
//	end
//	return "migrated:" .. KEY
package filter

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Engine evaluates a migration filter script. It implements the engine's
// KeyFilter contract. A single Lua state is reused across calls; the mutex
// serializes evaluation because Lua states are not safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	state  *lua.LState
	script string
}

// New compiles the script and returns a ready filter. Compilation errors are
// reported up front so a broken script fails construction, not the first
// key.
func New(script string) (*Engine, error) {
	L := lua.NewState()
	if _, err := L.LoadString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("filter script compilation error: %w", err)
	}

	return &Engine{
		state:  L,
		script: script,
	}, nil
}

// Decide evaluates the script for key and returns the target key name and
// whether the key should be migrated
func (e *Engine) Decide(key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	L := e.state
	L.SetGlobal("KEY", lua.LString(key))

	base := L.GetTop()
	if err := L.DoString(e.script); err != nil {
		L.SetTop(base)
		return "", false, fmt.Errorf("filter script execution error: %w", err)
	}
	defer L.SetTop(base)

	if L.GetTop() == base {
		// No return value: migrate unchanged
		return key, true, nil
	}

	ret := L.Get(-1)
	switch v := ret.(type) {
	case lua.LBool:
		return key, bool(v), nil
	case lua.LString:
		name := string(v)
		if name == "" {
			return "", false, fmt.Errorf("filter script returned an empty target key for %q", key)
		}
		return name, true, nil
	default:
		if ret == lua.LNil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("filter script returned unsupported type %s for %q", ret.Type(), key)
	}
}

// Close releases the underlying Lua state
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Close()
}

package datamodel

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/amp-labs/statechart/datamodel/expr"
)

// valueGlobal temporarily holds a Go value being assigned into Lua.
const valueGlobal = "__scxml_value"

// Lua is a datamodel backed by a Lua interpreter. Expressions are Lua
// expressions, scripts are Lua chunks, and top-level variables are Lua
// globals. Tables convert to []any when they are sequences and to
// map[string]any otherwise.
type Lua struct {
	state    *lua.State
	declared map[string]struct{}
}

// sandboxLibraries are the only libraries a Lua datamodel opens. io, os,
// package and debug stay closed so that expressions cannot touch the host.
var sandboxLibraries = []lua.RegistryFunction{ //nolint:gochecknoglobals
	{Name: "_G", Function: lua.BaseOpen},
	{Name: "string", Function: lua.StringOpen},
	{Name: "table", Function: lua.TableOpen},
	{Name: "math", Function: lua.MathOpen},
}

// unsafeGlobals are base library functions that read files.
var unsafeGlobals = []string{"dofile", "loadfile"} //nolint:gochecknoglobals

// NewLua creates a Lua datamodel with the base, string, table and math
// libraries loaded.
func NewLua() *Lua {
	state := lua.NewState()

	for _, lib := range sandboxLibraries {
		lua.Require(state, lib.Name, lib.Function, true)
		state.Pop(1)
	}

	for _, name := range unsafeGlobals {
		state.PushNil()
		state.SetGlobal(name)
	}

	return &Lua{
		state:    state,
		declared: make(map[string]struct{}),
	}
}

func (l *Lua) Declare(name string, value any) error {
	path, err := expr.ParsePath(name)
	if err != nil || len(path.Segments) != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidLocation, name)
	}

	pushGo(l.state, value)
	l.state.SetGlobal(path.Segments[0])
	l.declared[path.Segments[0]] = struct{}{}

	return nil
}

func (l *Lua) Snapshot() map[string]any {
	out := make(map[string]any, len(l.declared))

	for name := range l.declared {
		l.state.Global(name)
		out[name] = toGo(l.state, -1)
		l.state.Pop(1)
	}

	return out
}

func (l *Lua) Evaluate(_ context.Context, src string) (value any, err error) {
	defer func() { observe(KindLua, "evaluate", err) }()

	top := l.state.Top()
	defer l.state.SetTop(top)

	if err := l.run("return "+src, 1); err != nil {
		return nil, err
	}

	return toGo(l.state, -1), nil
}

func (l *Lua) EvaluateBool(ctx context.Context, src string) (bool, error) {
	value, err := l.Evaluate(ctx, src)
	if err != nil {
		return false, err
	}

	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotBoolean, Render(value))
	}

	return b, nil
}

func (l *Lua) Assign(_ context.Context, location string, value any) error {
	target, err := luaLocation(location)
	if err != nil {
		return err
	}

	top := l.state.Top()
	defer l.state.SetTop(top)

	pushGo(l.state, value)
	l.state.SetGlobal(valueGlobal)

	defer func() {
		l.state.PushNil()
		l.state.SetGlobal(valueGlobal)
	}()

	return l.run(target+" = "+valueGlobal, 0)
}

func (l *Lua) Execute(_ context.Context, script string) (err error) {
	defer func() { observe(KindLua, "execute", err) }()

	top := l.state.Top()
	defer l.state.SetTop(top)

	return l.run(script, 0)
}

// IsDefined reports whether location holds a non-nil value, or names a
// declared top-level variable.
func (l *Lua) IsDefined(location string) bool {
	target, err := luaLocation(location)
	if err != nil {
		return false
	}

	if _, ok := l.declared[target]; ok {
		return true
	}

	top := l.state.Top()
	defer l.state.SetTop(top)

	if err := l.run("return "+target+" ~= nil", 1); err != nil {
		return false
	}

	return l.state.ToBoolean(-1)
}

func (l *Lua) Render(value any) string {
	return Render(value)
}

// run loads and calls a chunk, leaving results on the stack.
func (l *Lua) run(chunk string, results int) error {
	if err := lua.LoadString(l.state, chunk); err != nil {
		return fmt.Errorf("%w: %w", expr.ErrSyntax, err)
	}

	if err := l.state.ProtectedCall(0, results, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrScript, err)
	}

	return nil
}

// luaLocation converts a dotted location into Lua syntax. Numeric segments
// become index expressions: "list.1" is "list[1]".
func luaLocation(location string) (string, error) {
	path, err := expr.ParsePath(location)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	var sb strings.Builder

	for i, seg := range path.Segments {
		switch _, numErr := strconv.Atoi(seg); {
		case i == 0:
			sb.WriteString(seg)
		case numErr == nil:
			sb.WriteString("[" + seg + "]")
		default:
			sb.WriteString("." + seg)
		}
	}

	return sb.String(), nil
}

func pushGo(state *lua.State, value any) { //nolint:cyclop
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(v)
	case string:
		state.PushString(v)
	case int:
		state.PushInteger(v)
	case int64:
		state.PushInteger(int(v))
	case float64:
		state.PushNumber(v)
	case []any:
		state.CreateTable(len(v), 0)

		for i, item := range v {
			pushGo(state, item)
			state.RawSetInt(-2, i+1)
		}
	case map[string]any:
		state.CreateTable(0, len(v))

		for _, key := range sortedKeys(v) {
			pushGo(state, v[key])
			state.SetField(-2, key)
		}
	default:
		pushReflect(state, value)
	}
}

func pushReflect(state *lua.State, value any) {
	rv := reflect.ValueOf(value)

	switch rv.Kind() { //nolint:exhaustive
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		state.PushInteger(int(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		state.PushInteger(int(rv.Uint())) //nolint:gosec
	case reflect.Float32, reflect.Float64:
		state.PushNumber(rv.Float())
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}

		pushGo(state, items)
	default:
		state.PushString(expr.Stringify(value))
	}
}

func toGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)

		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)

		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	case lua.TypeUserData:
		return state.ToUserData(index)
	default:
		return nil
	}
}

// tableToGo converts a sequence (keys 1..n) to []any and anything else to
// map[string]any. Non-string keys of a map are stringified.
func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0

	state.PushNil()

	for state.Next(index) {
		count++

		if isArray {
			key, ok := state.ToNumber(-2)
			if ok && state.TypeOf(-2) == lua.TypeNumber && key >= 1 && math.Mod(key, 1) == 0 {
				maxIndex = max(maxIndex, int(key))
			} else {
				isArray = false
			}
		}

		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)

		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, toGo(state, -1))
			state.Pop(1)
		}

		return result
	}

	output := make(map[string]any, count)

	state.PushNil()

	for state.Next(index) {
		// ToString on a number key would convert it in place and confuse Next.
		switch state.TypeOf(-2) {
		case lua.TypeString:
			key, _ := state.ToString(-2)
			output[key] = toGo(state, -1)
		case lua.TypeNumber:
			key, _ := state.ToNumber(-2)
			output[expr.Stringify(normalizeNumber(key))] = toGo(state, -1)
		case lua.TypeBoolean:
			output[strconv.FormatBool(state.ToBoolean(-2))] = toGo(state, -1)
		default:
			// Tables, functions and other keys have no useful Go form.
		}

		state.Pop(1)
	}

	return output
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < 1<<53 {
		return int64(value)
	}

	return value
}

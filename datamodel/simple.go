package datamodel

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/amp-labs/statechart/datamodel/expr"
	"github.com/amp-labs/statechart/model"
)

// Func is a function callable from simple datamodel expressions.
type Func func(args []any) (any, error)

// Simple is a map-backed datamodel evaluating the expr language. Scripts are
// statements of the form "location = expression", separated by newlines or
// semicolons. Maps and lists are copied on the way in and out, so a Simple
// never shares them with its callers.
type Simple struct {
	vars  map[string]any
	funcs map[string]Func
}

// NewSimple creates an empty simple datamodel with the built-in functions
// len, keys and string.
func NewSimple() *Simple {
	s := &Simple{
		vars:  make(map[string]any),
		funcs: make(map[string]Func),
	}

	s.Register("len", builtinLen)
	s.Register("keys", builtinKeys)
	s.Register("string", builtinString)

	return s
}

// Register makes fn callable as name, replacing any previous function.
func (s *Simple) Register(name string, fn Func) {
	s.funcs[name] = fn
}

func (s *Simple) Declare(name string, value any) error {
	path, err := expr.ParsePath(name)
	if err != nil || len(path.Segments) != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidLocation, name)
	}

	s.vars[path.Segments[0]] = model.CloneValue(value)

	return nil
}

func (s *Simple) Snapshot() map[string]any {
	return model.CloneValue(s.vars).(map[string]any) //nolint:forcetypeassert
}

func (s *Simple) Evaluate(_ context.Context, src string) (value any, err error) {
	defer func() { observe(KindSimple, "evaluate", err) }()

	node, err := expr.Parse(src)
	if err != nil {
		return nil, err
	}

	value, err = expr.Eval(node, s)
	if err != nil {
		return nil, err
	}

	// Results never alias the variables they were read from.
	return model.CloneValue(value), nil
}

func (s *Simple) EvaluateBool(ctx context.Context, src string) (bool, error) {
	value, err := s.Evaluate(ctx, src)
	if err != nil {
		return false, err
	}

	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotBoolean, Render(value))
	}

	return b, nil
}

func (s *Simple) Assign(_ context.Context, location string, value any) error {
	path, err := expr.ParsePath(location)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	return expr.Set(s.vars, path.Segments, model.CloneValue(value))
}

// Execute runs every statement in order and stops at the first failure;
// assignments made before it are kept.
func (s *Simple) Execute(_ context.Context, script string) (err error) {
	defer func() { observe(KindSimple, "execute", err) }()

	stmts, err := expr.ParseScript(script)
	if err != nil {
		return err
	}

	for i, stmt := range stmts {
		value, err := expr.Eval(stmt.Value, s)
		if err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}

		if stmt.Target == nil {
			continue
		}

		if err := expr.Set(s.vars, stmt.Target.Segments, model.CloneValue(value)); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}

	return nil
}

func (s *Simple) IsDefined(location string) bool {
	path, err := expr.ParsePath(location)
	if err != nil {
		return false
	}

	_, err = expr.Walk(s.vars, path.Segments)

	return err == nil
}

func (s *Simple) Render(value any) string {
	return Render(value)
}

// Lookup implements expr.Env.
func (s *Simple) Lookup(path []string) (any, error) {
	return expr.Walk(s.vars, path)
}

// Call implements expr.Env.
func (s *Simple) Call(name string, args []any) (any, error) {
	fn, ok := s.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", expr.ErrUnknownFunction, name)
	}

	return fn(args)
}

func oneArg(name string, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: %s takes 1 argument, got %d", expr.ErrType, name, len(args))
	}

	return args[0], nil
}

func builtinLen(args []any) (any, error) {
	arg, err := oneArg("len", args)
	if err != nil {
		return nil, err
	}

	if str, ok := arg.(string); ok {
		return int64(len([]rune(str))), nil
	}

	rv := reflect.ValueOf(arg)

	switch rv.Kind() { //nolint:exhaustive
	case reflect.Slice, reflect.Array, reflect.Map:
		return int64(rv.Len()), nil
	default:
		return nil, fmt.Errorf("%w: len of %T", expr.ErrType, arg)
	}
}

func builtinKeys(args []any) (any, error) {
	arg, err := oneArg("keys", args)
	if err != nil {
		return nil, err
	}

	m, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: keys of %T", expr.ErrType, arg)
	}

	keys := sortedKeys(m)
	out := make([]any, len(keys))

	for i, k := range keys {
		out[i] = k
	}

	return out, nil
}

func builtinString(args []any) (any, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = Render(arg)
	}

	return strings.Join(parts, ""), nil
}

// Package expr implements the expression language of the simple datamodel:
// literals, dotted variable paths, list literals, arithmetic, comparison,
// logical operators and function calls, plus assignment scripts.
package expr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

var (
	// ErrSyntax indicates that an expression could not be parsed.
	ErrSyntax = errors.New("syntax error")
	// ErrUndefined indicates a reference to a variable that does not exist.
	ErrUndefined = errors.New("undefined variable")
	// ErrType indicates an operand of the wrong type.
	ErrType = errors.New("type error")
	// ErrDivideByZero indicates a division or modulo by zero.
	ErrDivideByZero = errors.New("division by zero")
	// ErrUnknownFunction indicates a call to a function that is not defined.
	ErrUnknownFunction = errors.New("unknown function")
)

// Env resolves variables and functions during evaluation.
type Env interface {
	Lookup(path []string) (any, error)
	Call(name string, args []any) (any, error)
}

// Eval evaluates node against env.
func Eval(node Node, env Env) (any, error) { //nolint:cyclop
	switch n := node.(type) {
	case *Literal:
		return n.Value, nil
	case *Path:
		return env.Lookup(n.Segments)
	case *List:
		out := make([]any, len(n.Items))

		for i, item := range n.Items {
			v, err := Eval(item, env)
			if err != nil {
				return nil, err
			}

			out[i] = v
		}

		return out, nil
	case *Call:
		args := make([]any, len(n.Args))

		for i, arg := range n.Args {
			v, err := Eval(arg, env)
			if err != nil {
				return nil, err
			}

			args[i] = v
		}

		return env.Call(n.Name, args)
	case *Unary:
		return evalUnary(n, env)
	case *Binary:
		return evalBinary(n, env)
	default:
		return nil, fmt.Errorf("%w: unknown node %T", ErrSyntax, node)
	}
}

func evalUnary(n *Unary, env Env) (any, error) {
	v, err := Eval(n.X, env)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: ! expects a boolean, got %s", ErrType, typeName(v))
		}

		return !b, nil
	case "-":
		num, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("%w: - expects a number, got %s", ErrType, typeName(v))
		}

		if num.isInt {
			return -num.i, nil
		}

		return -num.f, nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, n.Op)
	}
}

func evalBinary(n *Binary, env Env) (any, error) {
	left, err := Eval(n.Left, env)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit.
	if n.Op == "&&" || n.Op == "||" {
		lb, ok := left.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects booleans, got %s", ErrType, n.Op, typeName(left))
		}

		if (n.Op == "&&" && !lb) || (n.Op == "||" && lb) {
			return lb, nil
		}

		right, err := Eval(n.Right, env)
		if err != nil {
			return nil, err
		}

		rb, ok := right.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects booleans, got %s", ErrType, n.Op, typeName(right))
		}

		return rb, nil
	}

	right, err := Eval(n.Right, env)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(n.Op, left, right)
	default:
		return arithmetic(n.Op, left, right)
	}
}

type number struct {
	i     int64
	f     float64
	isInt bool
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}

	return n.f
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int:
		return number{i: int64(x), isInt: true}, true
	case int8:
		return number{i: int64(x), isInt: true}, true
	case int16:
		return number{i: int64(x), isInt: true}, true
	case int32:
		return number{i: int64(x), isInt: true}, true
	case int64:
		return number{i: x, isInt: true}, true
	case uint:
		return number{i: int64(x), isInt: true}, true //nolint:gosec
	case uint8:
		return number{i: int64(x), isInt: true}, true
	case uint16:
		return number{i: int64(x), isInt: true}, true
	case uint32:
		return number{i: int64(x), isInt: true}, true
	case uint64:
		return number{i: int64(x), isInt: true}, true //nolint:gosec
	case float32:
		return number{f: float64(x)}, true
	case float64:
		return number{f: x}, true
	}

	return number{}, false
}

// Equal compares two values. Numbers compare by value regardless of their Go
// type; everything else compares structurally.
func Equal(left, right any) bool {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)

	if lok && rok {
		if ln.isInt && rn.isInt {
			return ln.i == rn.i
		}

		return ln.float() == rn.float()
	}

	return reflect.DeepEqual(left, right)
}

func compare(op string, left, right any) (bool, error) {
	var cmp int

	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	ls, lsok := left.(string)
	rs, rsok := right.(string)

	switch {
	case lok && rok:
		switch a, b := ln.float(), rn.float(); {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	case lsok && rsok:
		switch {
		case ls < rs:
			cmp = -1
		case ls > rs:
			cmp = 1
		}
	default:
		return false, fmt.Errorf("%w: cannot compare %s %s %s", ErrType, typeName(left), op, typeName(right))
	}

	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func arithmetic(op string, left, right any) (any, error) { //nolint:cyclop
	if op == "+" {
		ls, lok := left.(string)
		rs, rok := right.(string)

		if lok || rok {
			if !lok {
				ls = Stringify(left)
			}

			if !rok {
				rs = Stringify(right)
			}

			return ls + rs, nil
		}
	}

	ln, lok := toNumber(left)
	rn, rok := toNumber(right)

	if !lok || !rok {
		return nil, fmt.Errorf("%w: cannot apply %s to %s and %s", ErrType, op, typeName(left), typeName(right))
	}

	if ln.isInt && rn.isInt {
		a, b := ln.i, rn.i

		switch op {
		case "+":
			return a + b, nil
		case "-":
			return a - b, nil
		case "*":
			return a * b, nil
		case "/":
			if b == 0 {
				return nil, ErrDivideByZero
			}

			if a%b == 0 {
				return a / b, nil
			}

			return float64(a) / float64(b), nil
		case "%":
			if b == 0 {
				return nil, ErrDivideByZero
			}

			return a % b, nil
		}
	}

	a, b := ln.float(), rn.float()

	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, ErrDivideByZero
		}

		return a / b, nil
	case "%":
		if b == 0 {
			return nil, ErrDivideByZero
		}

		return math.Mod(a, b), nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, op)
	}
}

// Stringify converts a scalar to its textual form. Whole floats print
// without a fractional part.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	}

	if n, ok := toNumber(v); ok && n.isInt {
		return strconv.FormatInt(n.i, 10)
	}

	return fmt.Sprint(v)
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}

	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	}

	if _, ok := toNumber(v); ok {
		return "number"
	}

	return fmt.Sprintf("%T", v)
}

package model

import (
	"context"
	"fmt"
	"strings"
)

// Assign stores a value at a datamodel location. The value is either computed
// from an expression or given literally, as with inline content.
type Assign struct {
	location string
	expr     string
	value    any
	literal  bool
}

// NewAssign creates an assign action that evaluates expr.
func NewAssign(location, expr string) (*Assign, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, invalid(KindAssign, "location is required")
	}

	if strings.TrimSpace(expr) == "" {
		return nil, invalid(KindAssign, "expr is required for location %q", location)
	}

	return &Assign{
		location: location,
		expr:     expr,
	}, nil
}

// NewAssignValue creates an assign action that stores a literal value. Each
// execution stores its own copy, so later writes through the location never
// reach the action.
func NewAssignValue(location string, value any) (*Assign, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, invalid(KindAssign, "location is required")
	}

	return &Assign{
		location: location,
		value:    CloneValue(value),
		literal:  true,
	}, nil
}

func (a *Assign) Kind() string {
	return KindAssign
}

// Location returns the assigned location.
func (a *Assign) Location() string {
	return a.location
}

func (a *Assign) Execute(ctx context.Context, rt Runtime) error {
	dm := rt.Datamodel()

	if !dm.IsDefined(a.location) {
		return fail(ctx, rt, &ExecutionError{
			Kind: KindAssign,
			Expr: a.location,
			Err:  ErrUndefinedLocation,
		})
	}

	value := CloneValue(a.value)

	if !a.literal {
		var err error

		value, err = dm.Evaluate(ctx, a.expr)
		if err != nil {
			return fail(ctx, rt, evalFailure(KindAssign, a.expr, err))
		}
	}

	err := dm.Assign(ctx, a.location, value)
	if err != nil {
		return fail(ctx, rt, &ExecutionError{
			Kind: KindAssign,
			Expr: a.location,
			Err:  fmt.Errorf("assign: %w", err),
		})
	}

	return nil
}

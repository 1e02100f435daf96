package model

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"facette.io/natsort"
)

// Foreach runs a block once per member of a collection, binding the member
// (and optionally its index) in the datamodel before each pass.
type Foreach struct {
	array   string
	item    string
	index   string
	actions []Action
}

// NewForeach creates a foreach action. array and item are required; index is
// optional.
func NewForeach(array, item, index string, actions ...Action) (*Foreach, error) {
	if strings.TrimSpace(array) == "" {
		return nil, invalid(KindForeach, "array is required")
	}

	if strings.TrimSpace(item) == "" {
		return nil, invalid(KindForeach, "item is required")
	}

	return &Foreach{
		array:   array,
		item:    strings.TrimSpace(item),
		index:   strings.TrimSpace(index),
		actions: append([]Action(nil), actions...),
	}, nil
}

func (a *Foreach) Kind() string {
	return KindForeach
}

// Execute iterates over a snapshot of the collection, so changes the block
// makes to the underlying array do not affect the iteration.
func (a *Foreach) Execute(ctx context.Context, rt Runtime) error {
	dm := rt.Datamodel()

	value, err := dm.Evaluate(ctx, a.array)
	if err != nil {
		return fail(ctx, rt, evalFailure(KindForeach, a.array, err))
	}

	members, err := iterate(value)
	if err != nil {
		return fail(ctx, rt, &ExecutionError{Kind: KindForeach, Expr: a.array, Err: err})
	}

	var failures []error

	for _, member := range members {
		err = dm.Assign(ctx, a.item, member.value)
		if err != nil {
			return stopped(failures, fail(ctx, rt, &ExecutionError{
				Kind: KindForeach,
				Expr: a.item,
				Err:  fmt.Errorf("bind item: %w", err),
			}))
		}

		if a.index != "" {
			err = dm.Assign(ctx, a.index, member.index)
			if err != nil {
				return stopped(failures, fail(ctx, rt, &ExecutionError{
					Kind: KindForeach,
					Expr: a.index,
					Err:  fmt.Errorf("bind index: %w", err),
				}))
			}
		}

		err = ExecuteBlock(ctx, rt, a.actions...)
		if err != nil {
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return &BlockError{Failures: failures}
	}

	return nil
}

// stopped ends an iteration on a binding failure, keeping the failures of
// earlier passes.
func stopped(failures []error, err error) error {
	if len(failures) == 0 {
		return err
	}

	return &BlockError{Failures: append(failures, err)}
}

type member struct {
	index any
	value any
}

// iterate snapshots a collection. Slices and arrays are indexed from zero,
// maps are visited in natural key order.
func iterate(value any) ([]member, error) {
	switch coll := value.(type) {
	case []any:
		out := make([]member, len(coll))
		for i, v := range coll {
			out[i] = member{index: i, value: v}
		}

		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(coll))
		for k := range coll {
			keys = append(keys, k)
		}

		natsort.Sort(keys)

		out := make([]member, len(keys))
		for i, k := range keys {
			out[i] = member{index: k, value: coll[k]}
		}

		return out, nil
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil", ErrNotIterable)
	}

	switch rv.Kind() { //nolint:exhaustive // everything else is not iterable
	case reflect.Slice, reflect.Array:
		out := make([]member, rv.Len())
		for i := range rv.Len() {
			out[i] = member{index: i, value: rv.Index(i).Interface()}
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotIterable, value)
	}
}

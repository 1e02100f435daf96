// Package datamodel provides the datamodels executable content evaluates
// expressions against: a small built-in expression language ("simple") and
// Lua ("lua").
package datamodel

import (
	"errors"
	"fmt"

	"github.com/amp-labs/statechart/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Datamodel kinds accepted by New.
const (
	KindSimple = "simple"
	KindLua    = "lua"
)

var (
	// ErrUnknownKind is returned by New for an unsupported datamodel name.
	ErrUnknownKind = errors.New("unknown datamodel")
	// ErrNotBoolean indicates a condition that did not evaluate to a boolean.
	ErrNotBoolean = errors.New("condition is not a boolean")
	// ErrInvalidLocation indicates a location that is not a variable path.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrScript indicates that a script or expression failed at runtime.
	ErrScript = errors.New("script error")
)

var evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "statechart_datamodel_evaluations_total",
	Help: "Total number of datamodel expression evaluations and script runs, by datamodel, operation and outcome",
}, []string{"datamodel", "operation", "outcome"})

func observe(kind, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	evaluationsTotal.WithLabelValues(kind, operation, outcome).Inc()
}

// Model is a datamodel that can also be populated and inspected by its owner.
type Model interface {
	model.Datamodel
	// Declare creates or overwrites a top-level variable.
	Declare(name string, value any) error
	// Snapshot returns a copy of every declared top-level variable.
	Snapshot() map[string]any
}

// New creates a datamodel of the given kind with data declared in it. An
// empty kind selects the simple datamodel.
func New(kind string, data map[string]any) (Model, error) {
	var (
		dm  Model
		err error
	)

	switch kind {
	case KindSimple, "":
		dm = NewSimple()
	case KindLua:
		dm = NewLua()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	for _, name := range sortedKeys(data) {
		if err = dm.Declare(name, data[name]); err != nil {
			return nil, fmt.Errorf("declare %s: %w", name, err)
		}
	}

	return dm, nil
}

var (
	_ Model = (*Simple)(nil)
	_ Model = (*Lua)(nil)
)

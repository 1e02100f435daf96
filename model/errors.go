package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/statechart/event"
)

// Predefined error types.
var (
	// ErrInvalidAction indicates that an action could not be constructed.
	ErrInvalidAction = errors.New("invalid action")
	// ErrUnknownActionType indicates that no builder is registered for an action type.
	ErrUnknownActionType = errors.New("unknown action type")
	// ErrEvaluation indicates that an expression failed to evaluate.
	ErrEvaluation = errors.New("expression evaluation failed")
	// ErrUndefinedLocation indicates an assignment to a location the datamodel does not declare.
	ErrUndefinedLocation = errors.New("location is not declared")
	// ErrNotIterable indicates that a foreach array did not evaluate to a collection.
	ErrNotIterable = errors.New("value is not iterable")
	// ErrInvalidDelay indicates that a send delay could not be parsed.
	ErrInvalidDelay = errors.New("invalid delay")
	// ErrDispatch indicates that the dispatcher could not deliver or cancel a send.
	ErrDispatch = errors.New("dispatch failed")
	// ErrActionPanicked indicates that an action panicked instead of returning an error.
	ErrActionPanicked = errors.New("action panicked")

	// ErrParameterNotFound is returned when a required parameter is not found.
	ErrParameterNotFound = errors.New("parameter not found")
	// ErrParameterTypeMismatch is returned when a parameter has an unexpected type.
	ErrParameterTypeMismatch = errors.New("parameter type mismatch")
)

// ExecutionError is the failure an action returns from Execute.
type ExecutionError struct {
	Kind string
	Expr string
	// Event is the platform error event the failure is reported as.
	Event string
	Err   error
	// Reported is set once the failure has been delivered to the runtime.
	Reported bool
}

func (e *ExecutionError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("%s: %q: %v", e.Kind, e.Expr, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsReported reports whether the failure has already reached the runtime.
func (e *ExecutionError) IsReported() bool {
	return e.Reported
}

// ErrorEvent returns the name of the platform event for this failure.
func (e *ExecutionError) ErrorEvent() string {
	if e.Event == "" {
		return event.ErrorExecution
	}

	return e.Event
}

// BlockError collects the failures of a block. Every failure it carries has
// been reported to the runtime.
type BlockError struct {
	Failures []error
}

func (e *BlockError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, err := range e.Failures {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("%d action(s) failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *BlockError) Unwrap() []error {
	return e.Failures
}

// IsReported is always true: the runner reports every failure it collects.
func (e *BlockError) IsReported() bool {
	return true
}

type reporter interface {
	IsReported() bool
}

// isReported reports whether err has already been delivered to the runtime.
func isReported(err error) bool {
	var rep reporter
	if errors.As(err, &rep) {
		return rep.IsReported()
	}

	return false
}

// fail reports an execution failure to the runtime and returns it.
func fail(ctx context.Context, rt Runtime, err *ExecutionError) error {
	err.Reported = true
	rt.ReportError(ctx, err)

	return err
}

// evalFailure builds the failure for an expression that did not evaluate.
func evalFailure(kind, expr string, err error) *ExecutionError {
	return &ExecutionError{
		Kind: kind,
		Expr: expr,
		Err:  fmt.Errorf("%w: %w", ErrEvaluation, err),
	}
}

// invalid builds a construction error for an action kind.
func invalid(kind, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", kind, ErrInvalidAction, fmt.Sprintf(format, args...))
}

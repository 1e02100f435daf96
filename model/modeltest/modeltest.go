// Package modeltest provides recording fakes for testing executable content:
// a Runtime that captures every log entry, error report, raised event and
// dispatched send, and a map-backed Datamodel with injectable failures.
package modeltest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/model"
)

// Fake datamodel errors.
var (
	ErrUndefined = errors.New("undefined reference")
	ErrNotBool   = errors.New("value is not a boolean")
)

// Datamodel is a map-backed datamodel. An expression evaluates to the value
// stored under its exact text, or to a literal (quoted string, number, true,
// false). Expressions listed in Failures fail with the given error.
type Datamodel struct {
	Values      map[string]any
	Failures    map[string]error
	Scripts     []string
	Evaluations int
}

// NewDatamodel creates a datamodel holding values.
func NewDatamodel(values map[string]any) *Datamodel {
	if values == nil {
		values = map[string]any{}
	}

	return &Datamodel{
		Values:   values,
		Failures: map[string]error{},
	}
}

// Fail makes expr fail with err.
func (d *Datamodel) Fail(expr string, err error) *Datamodel {
	d.Failures[expr] = err

	return d
}

func (d *Datamodel) Evaluate(_ context.Context, expr string) (any, error) {
	d.Evaluations++

	if err, ok := d.Failures[expr]; ok {
		return nil, err
	}

	if value, ok := d.Values[expr]; ok {
		return value, nil
	}

	if value, ok := literal(expr); ok {
		return value, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUndefined, expr)
}

func (d *Datamodel) EvaluateBool(ctx context.Context, expr string) (bool, error) {
	value, err := d.Evaluate(ctx, expr)
	if err != nil {
		return false, err
	}

	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotBool, expr)
	}

	return b, nil
}

func (d *Datamodel) Assign(_ context.Context, location string, value any) error {
	if err, ok := d.Failures[location]; ok {
		return err
	}

	d.Values[location] = value

	return nil
}

func (d *Datamodel) Execute(_ context.Context, script string) error {
	d.Scripts = append(d.Scripts, script)

	if err, ok := d.Failures[script]; ok {
		return err
	}

	return nil
}

func (d *Datamodel) IsDefined(location string) bool {
	_, ok := d.Values[location]

	return ok
}

func (d *Datamodel) Render(value any) string {
	if value == nil {
		return "null"
	}

	return fmt.Sprint(value)
}

func literal(expr string) (any, bool) {
	expr = strings.TrimSpace(expr)

	switch {
	case expr == "true":
		return true, true
	case expr == "false":
		return false, true
	case len(expr) >= 2 && (expr[0] == '\'' || expr[0] == '"') && expr[len(expr)-1] == expr[0]:
		return expr[1 : len(expr)-1], true
	}

	if n, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return n, true
	}

	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return f, true
	}

	return nil, false
}

// Dispatcher records sends and cancels.
type Dispatcher struct {
	Sent      []model.SendRequest
	Cancelled []string
	SendErr   error
	CancelErr error
}

func (d *Dispatcher) Send(_ context.Context, req model.SendRequest) error {
	if d.SendErr != nil {
		return d.SendErr
	}

	d.Sent = append(d.Sent, req)

	return nil
}

func (d *Dispatcher) Cancel(_ context.Context, sendID string) error {
	if d.CancelErr != nil {
		return d.CancelErr
	}

	d.Cancelled = append(d.Cancelled, sendID)

	return nil
}

// Runtime records everything executable content does to it. Trace holds the
// interleaved order of records, error reports and raised events as
// "record:<entry>", "error:<message>" and "raise:<event>".
type Runtime struct {
	ID      string
	DM      *Datamodel
	Disp    *Dispatcher
	Entries []model.LogEntry
	Errors  []error
	Raised  []event.Event
	Trace   []string
}

// NewRuntime creates a runtime backed by dm.
func NewRuntime(dm *Datamodel) *Runtime {
	if dm == nil {
		dm = NewDatamodel(nil)
	}

	return &Runtime{
		ID:   "test-session",
		DM:   dm,
		Disp: &Dispatcher{},
	}
}

func (r *Runtime) SessionID() string {
	return r.ID
}

func (r *Runtime) Datamodel() model.Datamodel {
	return r.DM
}

func (r *Runtime) Record(_ context.Context, entry model.LogEntry) {
	r.Entries = append(r.Entries, entry)
	r.Trace = append(r.Trace, "record:"+entry.String())
}

func (r *Runtime) ReportError(_ context.Context, cause error) {
	r.Errors = append(r.Errors, cause)
	r.Trace = append(r.Trace, "error:"+cause.Error())
}

func (r *Runtime) Raise(_ context.Context, ev event.Event) {
	r.Raised = append(r.Raised, ev)
	r.Trace = append(r.Trace, "raise:"+ev.Name)
}

func (r *Runtime) Dispatcher() model.Dispatcher {
	return r.Disp
}

// Action is a scripted action for runner tests.
type Action struct {
	Name     string
	Err      error
	Panic    any
	Executed int
}

func (a *Action) Kind() string {
	return "test:" + a.Name
}

func (a *Action) Execute(_ context.Context, _ model.Runtime) error {
	a.Executed++

	if a.Panic != nil {
		panic(a.Panic)
	}

	return a.Err
}

package model

import (
	"context"
	"fmt"
	"time"

	"github.com/amp-labs/statechart/event"
)

// Runtime is the execution context an action runs against. It is borrowed for
// the duration of a single Execute call: actions must not keep a reference to
// it, and the caller guarantees no other action uses it concurrently.
type Runtime interface {
	// SessionID identifies the state chart instance that owns this runtime.
	SessionID() string
	// Datamodel returns the datamodel expressions are evaluated against.
	Datamodel() Datamodel
	// Record delivers a diagnostic entry to the log sink. It never fails from
	// the caller's point of view.
	Record(ctx context.Context, entry LogEntry)
	// ReportError surfaces an executable content failure as a platform error
	// event (error.execution or error.communication).
	ReportError(ctx context.Context, cause error)
	// Raise places an event on the internal event queue.
	Raise(ctx context.Context, ev event.Event)
	// Dispatcher returns the event dispatcher used by send and cancel.
	Dispatcher() Dispatcher
}

// Datamodel evaluates expressions in the state chart's expression language.
type Datamodel interface {
	Evaluate(ctx context.Context, expr string) (any, error)
	EvaluateBool(ctx context.Context, expr string) (bool, error)
	Assign(ctx context.Context, location string, value any) error
	Execute(ctx context.Context, script string) error
	IsDefined(location string) bool
	// Render converts an evaluated value to its display form.
	Render(value any) string
}

// Dispatcher delivers events produced by send and withdraws pending ones.
type Dispatcher interface {
	Send(ctx context.Context, req SendRequest) error
	// Cancel withdraws a delayed send. Unknown or already delivered ids are
	// not an error.
	Cancel(ctx context.Context, sendID string) error
}

// LogEntry is a single diagnostic record. HasValue distinguishes an absent
// value from one that rendered to the empty string.
type LogEntry struct {
	Label    string
	Value    string
	HasValue bool
}

func (e LogEntry) String() string {
	switch {
	case !e.HasValue:
		return e.Label
	case e.Label == "":
		return e.Value
	default:
		return e.Label + ": " + e.Value
	}
}

// SendRequest is a fully evaluated send.
type SendRequest struct {
	SendID  string
	Event   string
	Target  string
	Type    string
	Delay   time.Duration
	Data    map[string]any
	Content any
	// Origin is the session that produced the request.
	Origin string
}

func (r SendRequest) String() string {
	return fmt.Sprintf("send %s to %q (id=%s, delay=%s)", r.Event, r.Target, r.SendID, r.Delay)
}

// Well-known send targets and processor types.
const (
	TargetInternal = "#_internal"
	TargetSession  = "#_scxml_"
	TargetParent   = "#_parent"

	TypeSCXML = "http://www.w3.org/TR/scxml/#SCXMLEventProcessor"
	TypeHTTP  = "http://www.w3.org/TR/scxml/#BasicHTTPEventProcessor"
)

package model

import (
	"context"

	"github.com/amp-labs/statechart/event"
)

// Raise places an internal event on the session's internal queue.
type Raise struct {
	event string
}

// NewRaise creates a raise action for the named event.
func NewRaise(name string) (*Raise, error) {
	name = event.Normalize(name)
	if name == "" {
		return nil, invalid(KindRaise, "event name is required")
	}

	return &Raise{event: name}, nil
}

func (a *Raise) Kind() string {
	return KindRaise
}

// Event returns the name of the raised event.
func (a *Raise) Event() string {
	return a.event
}

func (a *Raise) Execute(ctx context.Context, rt Runtime) error {
	rt.Raise(ctx, event.Internal(a.event, nil))

	return nil
}

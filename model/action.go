// Package model holds the executable content of a state chart: the actions
// attached to transitions and to state entry and exit handlers, the contract
// they share, and the runner that executes a block of them in order.
package model

import "context"

// Action kinds.
const (
	KindLog     = "log"
	KindRaise   = "raise"
	KindAssign  = "assign"
	KindIf      = "if"
	KindForeach = "foreach"
	KindSend    = "send"
	KindCancel  = "cancel"
	KindScript  = "script"
)

// Action is one executable content node. Actions are immutable once
// constructed and may be executed any number of times.
//
// Execute returns nil on success. A non-nil error means the action's effect
// could not be completed; it never aborts the process.
type Action interface {
	Kind() string
	Execute(ctx context.Context, rt Runtime) error
}

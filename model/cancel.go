package model

import (
	"context"
	"fmt"

	"github.com/amp-labs/statechart/event"
)

// Cancel withdraws a delayed send by id.
type Cancel struct {
	sendID     string
	sendIDExpr string
}

// NewCancel creates a cancel action. Exactly one of sendID and sendIDExpr
// must be set.
func NewCancel(sendID, sendIDExpr string) (*Cancel, error) {
	if (sendID == "") == (sendIDExpr == "") {
		return nil, invalid(KindCancel, "exactly one of sendid and sendidexpr is required")
	}

	return &Cancel{
		sendID:     sendID,
		sendIDExpr: sendIDExpr,
	}, nil
}

func (a *Cancel) Kind() string {
	return KindCancel
}

func (a *Cancel) Execute(ctx context.Context, rt Runtime) error {
	sendID := a.sendID

	if a.sendIDExpr != "" {
		var err error

		sendID, err = evaluateString(ctx, rt.Datamodel(), a.sendIDExpr)
		if err != nil {
			return fail(ctx, rt, evalFailure(KindCancel, a.sendIDExpr, err))
		}
	}

	err := rt.Dispatcher().Cancel(ctx, sendID)
	if err != nil {
		return fail(ctx, rt, &ExecutionError{
			Kind:  KindCancel,
			Event: event.ErrorCommunication,
			Err:   fmt.Errorf("%w: cancel %s: %w", ErrDispatch, sendID, err),
		})
	}

	return nil
}

// evaluateString evaluates expr and returns strings as-is, other values in
// their rendered form.
func evaluateString(ctx context.Context, dm Datamodel, expr string) (string, error) {
	value, err := dm.Evaluate(ctx, expr)
	if err != nil {
		return "", err
	}

	if str, ok := value.(string); ok {
		return str, nil
	}

	return dm.Render(value), nil
}

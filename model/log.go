package model

import "context"

// Log emits a diagnostic line. The label is a literal tag and is never
// evaluated; the expression is evaluated each time the action runs, so the
// same action reports the datamodel as it is at that moment.
type Log struct {
	label string
	expr  string
}

// NewLog creates a log action. Both fields are free-form and may be empty;
// construction never fails.
func NewLog(label, expr string) *Log {
	return &Log{
		label: label,
		expr:  expr,
	}
}

func (a *Log) Kind() string {
	return KindLog
}

// Label returns the literal tag.
func (a *Log) Label() string {
	return a.label
}

// Expr returns the expression.
func (a *Log) Expr() string {
	return a.expr
}

// Execute evaluates the expression, if any, and records the result. When
// evaluation fails nothing is recorded and the failure is reported.
func (a *Log) Execute(ctx context.Context, rt Runtime) error {
	entry := LogEntry{Label: a.label}

	if a.expr != "" {
		dm := rt.Datamodel()

		value, err := dm.Evaluate(ctx, a.expr)
		if err != nil {
			return fail(ctx, rt, evalFailure(KindLog, a.expr, err))
		}

		entry.Value = dm.Render(value)
		entry.HasValue = true
	}

	rt.Record(ctx, entry)

	return nil
}

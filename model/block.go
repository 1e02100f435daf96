package model

import (
	"context"
	"fmt"
	"time"

	"github.com/amp-labs/statechart/logger"
	"go.opentelemetry.io/otel/attribute"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// runnerContextKey carries the active Runner so nested blocks (if, foreach)
// run with the same logger and hooks as their parent.
const runnerContextKey contextKey = "model_runner"

// Hook phases.
const (
	PhaseStart = "start"
	PhaseEnd   = "end"
)

// Metric outcome constants.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// ExecutionHook is called before and after each action a runner executes.
type ExecutionHook func(ctx context.Context, kind string, phase string, err error)

// Block is an ordered sequence of executable content, such as the body of a
// transition or an onentry handler.
type Block []Action

// Execute runs the block with ExecuteBlock.
func (b Block) Execute(ctx context.Context, rt Runtime) error {
	return ExecuteBlock(ctx, rt, b...)
}

// Runner executes blocks of executable content.
type Runner struct {
	logger Logger
	hooks  []ExecutionHook
}

// NewRunner creates a runner with no logger and no hooks.
func NewRunner() *Runner {
	return &Runner{}
}

// SetLogger sets the logger for block execution.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// AddExecutionHook adds a hook called with phase "start" before and "end"
// after each action.
func (r *Runner) AddExecutionHook(hook ExecutionHook) {
	r.hooks = append(r.hooks, hook)
}

var defaultRunner = NewRunner() //nolint:gochecknoglobals

// ExecuteBlock runs actions in order against rt using the runner carried by
// ctx, or a bare runner when there is none. See Runner.Run.
func ExecuteBlock(ctx context.Context, rt Runtime, actions ...Action) error {
	runner, ok := ctx.Value(runnerContextKey).(*Runner)
	if !ok || runner == nil {
		runner = defaultRunner
	}

	return runner.Run(ctx, rt, actions...)
}

// Run executes every action in order. A failing action does not stop the
// block: the failure is reported to the runtime (unless the action already
// did so) and execution continues with the next action. The returned
// *BlockError lists every failure; it is informational, never fatal.
func (r *Runner) Run(ctx context.Context, rt Runtime, actions ...Action) (err error) {
	if len(actions) == 0 {
		return nil
	}

	ctx = context.WithValue(ctx, runnerContextKey, r)

	if r.logger != nil {
		ctx = logger.WithSession(ctx, rt.SessionID())
		r.logger.BlockStarted(ctx, len(actions))
	}

	ctx, span := startBlockSpan(ctx, rt, len(actions))
	start := time.Now()

	var failures []error

	defer func() {
		outcome := outcomeSuccess
		if len(failures) > 0 {
			outcome = outcomeFailure
		}

		blockExecutionsTotal.WithLabelValues(outcome, SessionLabel(rt.SessionID())).Inc()

		span.SetAttributes(attribute.Int("failures", len(failures)))
		endSpan(span, err)

		if r.logger != nil {
			r.logger.BlockCompleted(ctx, len(actions), len(failures), time.Since(start))
		}
	}()

	for _, action := range actions {
		if action == nil {
			continue
		}

		actionErr := r.execute(ctx, rt, action)
		if actionErr == nil {
			continue
		}

		if !isReported(actionErr) {
			rt.ReportError(ctx, actionErr)
		}

		failures = append(failures, actionErr)
	}

	if len(failures) == 0 {
		return nil
	}

	return &BlockError{Failures: failures}
}

// execute runs a single action with hooks, tracing and metrics. A panicking
// action is turned into an unreported failure so its siblings still run.
func (r *Runner) execute(ctx context.Context, rt Runtime, action Action) (err error) {
	kind := action.Kind()

	actionCtx, span := startActionSpan(ctx, kind, rt)

	if r.logger != nil {
		r.logger.ActionStarted(actionCtx, kind)
	}

	for _, hook := range r.hooks {
		hook(actionCtx, kind, PhaseStart, nil)
	}

	start := time.Now()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = &ExecutionError{Kind: kind, Err: fmt.Errorf("%w: %v", ErrActionPanicked, recovered)}
		}

		elapsed := time.Since(start)

		for _, hook := range r.hooks {
			hook(actionCtx, kind, PhaseEnd, err)
		}

		outcome := outcomeSuccess
		if err != nil {
			outcome = outcomeFailure
		}

		actionExecutionsTotal.WithLabelValues(kind, outcome, SessionLabel(rt.SessionID())).Inc()
		actionDuration.WithLabelValues(kind, outcome).Observe(elapsed.Seconds())

		span.SetAttributes(attribute.Int64("duration_ms", elapsed.Milliseconds()))
		endSpan(span, err)

		if r.logger != nil {
			r.logger.ActionCompleted(actionCtx, kind, elapsed, err)
		}
	}()

	return action.Execute(actionCtx, rt)
}

package model

import (
	"context"
	"time"

	"github.com/amp-labs/statechart/logger"
)

// Logger provides logging hooks for block execution.
type Logger interface {
	BlockStarted(ctx context.Context, size int)
	BlockCompleted(ctx context.Context, size, failures int, duration time.Duration)
	ActionStarted(ctx context.Context, kind string)
	ActionCompleted(ctx context.Context, kind string, duration time.Duration, err error)
}

// DefaultLogger implements Logger on top of the context logger.
type DefaultLogger struct{}

// NewDefaultLogger creates a new default logger.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{}
}

func (l *DefaultLogger) BlockStarted(ctx context.Context, size int) {
	logger.Get(ctx).DebugContext(ctx, "Block started", "actions", size)
}

func (l *DefaultLogger) BlockCompleted(ctx context.Context, size, failures int, duration time.Duration) {
	log := logger.Get(ctx)

	if failures > 0 {
		log.WarnContext(ctx, "Block completed with failures",
			"actions", size,
			"failures", failures,
			"duration_ms", duration.Milliseconds(),
		)

		return
	}

	log.DebugContext(ctx, "Block completed",
		"actions", size,
		"duration_ms", duration.Milliseconds(),
	)
}

func (l *DefaultLogger) ActionStarted(ctx context.Context, kind string) {
	logger.Get(ctx).DebugContext(ctx, "Action started", "action", kind)
}

func (l *DefaultLogger) ActionCompleted(ctx context.Context, kind string, duration time.Duration, err error) {
	log := logger.Get(ctx)

	if err != nil {
		log.WarnContext(ctx, "Action failed",
			"action", kind,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)

		return
	}

	log.DebugContext(ctx, "Action completed",
		"action", kind,
		"duration_ms", duration.Milliseconds(),
	)
}

// LoggingAction wraps an action with logging, for callers that execute
// actions directly instead of through a Runner.
type LoggingAction struct {
	action Action
	logger Logger
}

// NewLoggingAction wraps an action with logging.
func NewLoggingAction(action Action, logger Logger) *LoggingAction {
	if logger == nil {
		logger = NewDefaultLogger()
	}

	return &LoggingAction{
		action: action,
		logger: logger,
	}
}

func (a *LoggingAction) Kind() string {
	return a.action.Kind()
}

// Unwrap returns the wrapped action.
func (a *LoggingAction) Unwrap() Action {
	return a.action
}

func (a *LoggingAction) Execute(ctx context.Context, rt Runtime) error {
	a.logger.ActionStarted(ctx, a.action.Kind())

	start := time.Now()
	err := a.action.Execute(ctx, rt)

	a.logger.ActionCompleted(ctx, a.action.Kind(), time.Since(start), err)

	return err
}

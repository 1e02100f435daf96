// Package session provides the execution context executable content runs
// against: a datamodel, a log sink, the internal and external event queues
// and a dispatcher for send and cancel.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amp-labs/statechart/config"
	"github.com/amp-labs/statechart/datamodel"
	"github.com/amp-labs/statechart/dispatch"
	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/logger"
	"github.com/amp-labs/statechart/model"
	"github.com/amp-labs/statechart/sink"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

// errorEventsTotal counts platform error events by name.
var errorEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "statechart_error_events_total",
	Help: "Total number of platform error events queued, by event name",
}, []string{"event"})

type options struct {
	id           string
	dm           datamodel.Model
	sink         sink.Sink
	dispatcher   model.Dispatcher
	dispatchOpts []dispatch.Option
	runner       *model.Runner
	registry     *Registry
}

// Option configures a Session.
type Option func(*options)

// WithID sets the session id. By default a random UUID is used.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithDatamodel sets the datamodel. By default an empty simple datamodel is used.
func WithDatamodel(dm datamodel.Model) Option {
	return func(o *options) {
		o.dm = dm
	}
}

// WithSink sets where log entries go. By default they are logged with slog.
func WithSink(s sink.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithDispatcher replaces the session's dispatcher.
func WithDispatcher(d model.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithDispatchOptions configures the default dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *options) {
		o.dispatchOpts = append(o.dispatchOpts, opts...)
	}
}

// WithRunner sets the runner blocks are executed with.
func WithRunner(r *model.Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithRegistry registers the session, so that other sessions in the registry
// can address it as #_scxml_<id>.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// Session is a model.Runtime for a single state chart instance. Executable
// content runs against it one block at a time; only the event queues may be
// touched from other goroutines.
type Session struct {
	id         string
	dm         datamodel.Model
	sink       sink.Sink
	internal   *event.Queue
	external   *event.Queue
	dispatcher model.Dispatcher
	runner     *model.Runner
	registry   *Registry

	steps  *atomic.Int64
	errors *atomic.Int64
}

var _ model.Runtime = (*Session)(nil)

// New creates a session.
func New(opts ...Option) *Session {
	o := options{}

	for _, opt := range opts {
		opt(&o)
	}

	if o.id == "" {
		o.id = uuid.NewString()
	}

	if o.dm == nil {
		o.dm = datamodel.NewSimple()
	}

	if o.sink == nil {
		o.sink = sink.NewSlog(slog.LevelInfo)
	}

	if o.runner == nil {
		o.runner = model.NewRunner()
		o.runner.SetLogger(model.NewDefaultLogger())
	}

	s := &Session{
		id:       o.id,
		dm:       o.dm,
		sink:     o.sink,
		internal: event.NewQueue(),
		external: event.NewQueue(),
		runner:   o.runner,
		registry: o.registry,
		steps:    atomic.NewInt64(0),
		errors:   atomic.NewInt64(0),
	}

	s.dispatcher = o.dispatcher
	if s.dispatcher == nil {
		dispatchOpts := o.dispatchOpts
		if o.registry != nil {
			dispatchOpts = append([]dispatch.Option{dispatch.WithSessions(o.registry.lookup)}, dispatchOpts...)
		}

		s.dispatcher = dispatch.New(s.id, s.internal, s.external, dispatchOpts...)
	}

	if s.registry != nil {
		s.registry.add(s)
	}

	return s
}

// FromConfig creates a session whose datamodel and dispatcher follow cfg.
func FromConfig(cfg config.Config, data map[string]any, opts ...Option) (*Session, error) {
	dm, err := datamodel.New(cfg.Datamodel, data)
	if err != nil {
		return nil, fmt.Errorf("create datamodel: %w", err)
	}

	base := []Option{
		WithDatamodel(dm),
		WithDispatchOptions(
			dispatch.WithWorkers(cfg.DispatchWorkers),
			dispatch.WithHTTPTimeout(cfg.HTTPTimeout),
			dispatch.WithDNSRefresh(cfg.DNSRefresh),
		),
	}

	return New(append(base, opts...)...), nil
}

func (s *Session) SessionID() string {
	return s.id
}

func (s *Session) Datamodel() model.Datamodel {
	return s.dm
}

// Model returns the session's datamodel with its owner-only operations.
func (s *Session) Model() datamodel.Model {
	return s.dm
}

func (s *Session) Record(ctx context.Context, entry model.LogEntry) {
	s.sink.Record(logger.WithSession(ctx, s.id), entry)
}

// ReportError queues the platform error event for cause on the internal
// queue: the event an *model.ExecutionError names, or error.execution.
func (s *Session) ReportError(ctx context.Context, cause error) {
	if cause == nil {
		return
	}

	name := event.ErrorExecution

	var execErr *model.ExecutionError
	if errors.As(cause, &execErr) {
		name = execErr.ErrorEvent()
	}

	s.internal.Push(event.Error(name, cause))
	s.errors.Inc()
	errorEventsTotal.WithLabelValues(name).Inc()

	logger.Get(logger.WithSession(ctx, s.id)).Warn("executable content failed",
		"event", name, "error", cause)
}

func (s *Session) Raise(_ context.Context, ev event.Event) {
	s.internal.Push(ev)
}

func (s *Session) Dispatcher() model.Dispatcher {
	return s.dispatcher
}

// Internal returns the internal event queue.
func (s *Session) Internal() *event.Queue {
	return s.internal
}

// External returns the external event queue.
func (s *Session) External() *event.Queue {
	return s.external
}

// Execute runs a block against the session. Failures have already been
// turned into error events when it returns; the error only summarizes them.
func (s *Session) Execute(ctx context.Context, block model.Block) error {
	s.steps.Inc()

	return s.runner.Run(logger.WithSession(ctx, s.id), s, block...)
}

// Init runs a top-level script once, as a document's global script element.
// A failure is reported like any other and also returned.
func (s *Session) Init(ctx context.Context, script string) error {
	if script == "" {
		return nil
	}

	action, err := model.NewScript(script)
	if err != nil {
		return err
	}

	return s.Execute(ctx, model.Block{action})
}

// Steps returns how many blocks the session has executed.
func (s *Session) Steps() int64 {
	return s.steps.Load()
}

// ErrorCount returns how many error events the session has queued.
func (s *Session) ErrorCount() int64 {
	return s.errors.Load()
}

// Close releases the dispatcher, dropping pending delayed sends, and removes
// the session from its registry.
func (s *Session) Close(ctx context.Context) error {
	if s.registry != nil {
		s.registry.remove(s.id)
	}

	if closer, ok := s.dispatcher.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}

	return nil
}

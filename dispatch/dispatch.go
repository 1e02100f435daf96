// Package dispatch delivers the events produced by send actions. Events for
// the session itself go to its internal or external queue, events for an HTTP
// endpoint are posted from a worker pool, and delayed sends are held on timers
// until they fire or are cancelled.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/logger"
	"github.com/amp-labs/statechart/model"
	"github.com/rs/dnscache"
	"go.uber.org/atomic"
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("dispatcher is closed")
	// ErrUnsupportedType indicates a send type no processor handles.
	ErrUnsupportedType = errors.New("unsupported event processor type")
	// ErrInvalidTarget indicates a target the processor cannot address.
	ErrInvalidTarget = errors.New("invalid send target")
	// ErrTargetUnavailable indicates a well-formed target with nobody behind it.
	ErrTargetUnavailable = errors.New("send target is unavailable")
	// ErrHTTPStatus indicates that an HTTP target answered with a failure status.
	ErrHTTPStatus = errors.New("http target returned an error status")
	// ErrNoAddress indicates a host that resolved to no addresses.
	ErrNoAddress = errors.New("host has no addresses")
)

const (
	defaultWorkers     = 8
	defaultHTTPTimeout = 10 * time.Second
	defaultDNSRefresh  = 5 * time.Minute
	defaultKeepAlive   = 30 * time.Second
)

// Deliverer accepts events for a queue. *event.Queue implements it.
type Deliverer interface {
	Push(ev event.Event)
}

// DelivererFunc adapts a function to a Deliverer.
type DelivererFunc func(ev event.Event)

func (f DelivererFunc) Push(ev event.Event) {
	f(ev)
}

// SessionLookup resolves another session's id to its external queue.
type SessionLookup func(sessionID string) (Deliverer, bool)

type options struct {
	workers     int
	httpTimeout time.Duration
	dnsRefresh  time.Duration
	client      *http.Client
	resolver    *dnscache.Resolver
	parent      Deliverer
	sessions    SessionLookup
}

// Option configures a Dispatcher.
type Option func(*options)

// WithWorkers sets the number of workers posting to HTTP targets.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithHTTPTimeout sets the timeout of the HTTP client used for HTTP targets.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpTimeout = d
		}
	}
}

// WithDNSRefresh sets how often the shared DNS cache is refreshed. The first
// dispatcher created with a positive interval starts the one refresh loop of
// the process; zero or negative leaves it alone. A resolver passed with
// WithResolver is refreshed by its owner.
func WithDNSRefresh(d time.Duration) Option {
	return func(o *options) {
		o.dnsRefresh = d
	}
}

// WithHTTPClient replaces the HTTP client. The DNS cache is not installed on
// a caller supplied client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithResolver replaces the shared DNS cache.
func WithResolver(resolver *dnscache.Resolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}

// WithParent routes sends targeted at #_parent to the given queue.
func WithParent(parent Deliverer) Option {
	return func(o *options) {
		o.parent = parent
	}
}

// WithSessions lets #_scxml_<id> targets reach other sessions.
func WithSessions(lookup SessionLookup) Option {
	return func(o *options) {
		o.sessions = lookup
	}
}

// Dispatcher implements model.Dispatcher for one session.
type Dispatcher struct {
	sessionID string
	internal  Deliverer
	external  Deliverer
	opts      options

	client   *http.Client
	resolver *dnscache.Resolver
	pool     pond.Pool

	mu     sync.Mutex
	timers map[string]*pendingSend

	closed  *atomic.Bool
	sent    *atomic.Int64
	pending *atomic.Int64

	closeOnce sync.Once
}

var _ model.Dispatcher = (*Dispatcher)(nil)

// New creates a dispatcher for the session. Events for #_internal, and the
// error.communication events of failed HTTP posts, go to internal. Events for
// the session itself go to external.
func New(sessionID string, internal, external Deliverer, opts ...Option) *Dispatcher {
	o := options{
		workers:     defaultWorkers,
		httpTimeout: defaultHTTPTimeout,
		dnsRefresh:  defaultDNSRefresh,
	}

	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher{
		sessionID: sessionID,
		internal:  internal,
		external:  external,
		opts:      o,
		resolver:  o.resolver,
		pool:      pond.NewPool(o.workers),
		timers:    make(map[string]*pendingSend),
		closed:    atomic.NewBool(false),
		sent:      atomic.NewInt64(0),
		pending:   atomic.NewInt64(0),
	}

	if d.resolver == nil {
		d.resolver = dnsResolver

		if o.dnsRefresh > 0 {
			refreshSharedDNS(o.dnsRefresh)
		}
	}

	d.client = o.client
	if d.client == nil {
		d.client = newHTTPClient(d.resolver, o.httpTimeout)
	}

	return d
}

// Send routes the request to its processor. Immediate in-session sends are
// queued before Send returns; delayed sends are queued when their timer fires;
// HTTP sends are posted asynchronously.
func (d *Dispatcher) Send(ctx context.Context, req model.SendRequest) error {
	if d.closed.Load() {
		return ErrClosed
	}

	deliver, kind, err := d.route(req)
	if err != nil {
		sendsTotal.WithLabelValues(kind, outcomeRejected).Inc()

		return err
	}

	d.sent.Inc()

	if req.Delay <= 0 {
		deliver(ctx)

		return nil
	}

	d.schedule(ctx, req, kind, deliver)

	return nil
}

// route picks the processor for req and returns the delivery to perform.
func (d *Dispatcher) route(req model.SendRequest) (func(context.Context), string, error) {
	switch typ := strings.TrimSpace(req.Type); {
	case isHTTP(typ, req.Target):
		if !strings.HasPrefix(req.Target, "http://") && !strings.HasPrefix(req.Target, "https://") {
			return nil, targetHTTP, fmt.Errorf("%w: %q is not an http url", ErrInvalidTarget, req.Target)
		}

		return func(ctx context.Context) { d.post(ctx, req) }, targetHTTP, nil
	case typ == "" || typ == model.TypeSCXML || typ == "scxml":
		return d.routeSCXML(req)
	default:
		return nil, targetUnknown, fmt.Errorf("%w: %q", ErrUnsupportedType, typ)
	}
}

func isHTTP(typ, target string) bool {
	if typ == model.TypeHTTP || typ == "http" {
		return true
	}

	return typ == "" && (strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"))
}

func (d *Dispatcher) routeSCXML(req model.SendRequest) (func(context.Context), string, error) {
	ev := d.eventFor(req)

	queue := func(kind string, dst Deliverer) (func(context.Context), string, error) {
		return func(ctx context.Context) {
			dst.Push(ev)
			sendsTotal.WithLabelValues(kind, outcomeDelivered).Inc()
			logger.Get(ctx).Debug("event dispatched", "event", ev.Name, "target", kind, "send_id", req.SendID)
		}, kind, nil
	}

	switch target := req.Target; {
	case target == "" || target == model.TargetSession+d.sessionID:
		return queue(targetExternal, d.external)
	case target == model.TargetInternal:
		if req.Delay > 0 {
			return nil, targetInternal, fmt.Errorf("%w: %s does not accept a delay", ErrInvalidTarget, target)
		}

		return queue(targetInternal, d.internal)
	case target == model.TargetParent:
		if d.opts.parent == nil {
			return nil, targetParent, fmt.Errorf("%w: session has no parent", ErrTargetUnavailable)
		}

		return queue(targetParent, d.opts.parent)
	case strings.HasPrefix(target, model.TargetSession):
		id := strings.TrimPrefix(target, model.TargetSession)

		if d.opts.sessions != nil {
			if dst, ok := d.opts.sessions(id); ok {
				return queue(targetSession, dst)
			}
		}

		return nil, targetSession, fmt.Errorf("%w: session %q", ErrTargetUnavailable, id)
	default:
		return nil, targetUnknown, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
}

// eventFor builds the external event a send produces. Content, when present,
// replaces the namelist and params as the payload.
func (d *Dispatcher) eventFor(req model.SendRequest) event.Event {
	ev := event.New(req.Event, event.TypeExternal, nil)
	ev.SendID = req.SendID
	ev.Origin = model.TargetSession + d.sessionID
	ev.OriginType = model.TypeSCXML

	switch {
	case req.Content != nil:
		ev.Data = req.Content
	case req.Data != nil:
		ev.Data = req.Data
	}

	return ev
}

// pendingSend is a delayed send waiting for its timer.
type pendingSend struct {
	timer *time.Timer
}

func (d *Dispatcher) schedule(ctx context.Context, req model.SendRequest, kind string, deliver func(context.Context)) {
	// Timer callbacks outlive the step that scheduled them.
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	// Whoever removes an entry from timers owns its pending count.
	if previous, ok := d.timers[req.SendID]; ok {
		previous.timer.Stop()
		d.pending.Dec()
		pendingSends.Dec()
	}

	d.pending.Inc()
	pendingSends.Inc()

	entry := &pendingSend{}

	entry.timer = time.AfterFunc(req.Delay, func() {
		if !d.release(req.SendID, entry) {
			return
		}

		if d.closed.Load() {
			return
		}

		deliver(ctx)
	})

	d.timers[req.SendID] = entry

	logger.Get(ctx).Debug("send scheduled",
		"event", req.Event, "target", kind, "send_id", req.SendID, "delay", req.Delay)
}

// release forgets a fired send. It reports false when the send was replaced
// or cancelled in the meantime.
func (d *Dispatcher) release(sendID string, entry *pendingSend) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timers[sendID] != entry {
		return false
	}

	delete(d.timers, sendID)
	d.pending.Dec()
	pendingSends.Dec()

	return true
}

// Cancel withdraws a delayed send that has not been delivered yet. Unknown
// ids and sends that were already delivered are ignored.
func (d *Dispatcher) Cancel(ctx context.Context, sendID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.timers[sendID]
	if !ok {
		return nil
	}

	delete(d.timers, sendID)
	entry.timer.Stop()
	d.pending.Dec()
	pendingSends.Dec()
	cancelsTotal.Inc()

	logger.Get(ctx).Debug("send cancelled", "send_id", sendID)

	return nil
}

// Pending returns the number of delayed sends waiting to fire.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// Sent returns the number of sends accepted so far.
func (d *Dispatcher) Sent() int64 {
	return d.sent.Load()
}

// Close drops every pending delayed send and waits for in-flight HTTP posts.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)

		d.mu.Lock()

		for id, entry := range d.timers {
			entry.timer.Stop()
			delete(d.timers, id)
			d.pending.Dec()
			pendingSends.Dec()
		}

		d.mu.Unlock()

		logger.Get(ctx).Debug("Stopping dispatch worker pool")
		d.pool.StopAndWait()
	})

	return nil
}

// dnsResolver is the DNS cache shared by every dispatcher not given its own.
var dnsResolver = &dnscache.Resolver{} //nolint:gochecknoglobals

var refreshOnce sync.Once //nolint:gochecknoglobals

// refreshSharedDNS starts the loop refreshing dnsResolver, once per process.
func refreshSharedDNS(every time.Duration) {
	refreshOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(every)
			defer ticker.Stop()

			for range ticker.C {
				dnsResolver.Refresh(true)
			}
		}()
	})
}

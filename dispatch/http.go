package dispatch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amp-labs/statechart/datamodel"
	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/logger"
	"github.com/amp-labs/statechart/model"
	"github.com/rs/dnscache"
)

// Form fields of the basic HTTP event processor.
const (
	fieldEventName = "_scxmleventname"
	fieldContent   = "_scxmlcontent"
)

// newHTTPClient builds a client whose dialer resolves hosts through the DNS
// cache and tries each address in turn.
func newHTTPClient(resolver *dnscache.Resolver, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: defaultKeepAlive,
	}

	trans := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert
	trans.DialContext = dialCached(resolver.LookupHost, dialer.DialContext)

	return &http.Client{
		Transport: trans,
		Timeout:   timeout,
	}
}

type (
	lookupFunc func(ctx context.Context, host string) ([]string, error)
	dialFunc   func(ctx context.Context, network, addr string) (net.Conn, error)
)

// dialCached dials the addresses lookup returns for the host, in order, and
// returns the first connection made or the last dial error.
func dialCached(lookup lookupFunc, dial dialFunc) dialFunc {
	return func(ctx context.Context, network string, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ips, err := lookup(ctx, host)
		if err != nil {
			return nil, err
		}

		if len(ips) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoAddress, host)
		}

		for _, ip := range ips {
			var conn net.Conn

			conn, err = dial(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
		}

		return nil, err
	}
}

// post hands an HTTP send to the worker pool. Failures become
// error.communication events on the internal queue.
func (d *Dispatcher) post(ctx context.Context, req model.SendRequest) {
	ctx = context.WithoutCancel(ctx)

	err := d.pool.Go(func() {
		start := time.Now()

		err := d.doPost(ctx, req)

		outcome := outcomeDelivered
		if err != nil {
			outcome = outcomeFailed
		}

		httpDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		sendsTotal.WithLabelValues(targetHTTP, outcome).Inc()

		if err != nil {
			d.communicationFailure(ctx, req, err)
		}
	})
	if err != nil {
		sendsTotal.WithLabelValues(targetHTTP, outcomeFailed).Inc()
		d.communicationFailure(ctx, req, err)
	}
}

func (d *Dispatcher) doPost(ctx context.Context, req model.SendRequest) error {
	form := encodeForm(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rsp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", req.Target, err)
	}

	defer rsp.Body.Close() //nolint:errcheck

	_, _ = io.Copy(io.Discard, rsp.Body)

	if rsp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s answered %d", ErrHTTPStatus, req.Target, rsp.StatusCode)
	}

	logger.Get(ctx).Debug("event posted", "event", req.Event, "target", req.Target, "status", rsp.StatusCode)

	return nil
}

// encodeForm lays a send out as form fields: the event name, then each data
// entry rendered to its display form, or the content under _scxmlcontent.
func encodeForm(req model.SendRequest) url.Values {
	form := url.Values{}

	if req.Event != "" {
		form.Set(fieldEventName, req.Event)
	}

	for name, value := range req.Data {
		form.Set(name, datamodel.Render(value))
	}

	if req.Content != nil {
		form.Set(fieldContent, datamodel.Render(req.Content))
	}

	return form
}

func (d *Dispatcher) communicationFailure(ctx context.Context, req model.SendRequest, cause error) {
	ev := event.Error(event.ErrorCommunication, cause)
	ev.SendID = req.SendID

	logger.Get(ctx).Warn("send failed", "event", req.Event, "target", req.Target, "send_id", req.SendID, "error", cause)

	d.internal.Push(ev)
}

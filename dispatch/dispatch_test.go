package dispatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/model"
	"github.com/rs/dnscache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *event.Queue, *event.Queue) {
	t.Helper()

	internal := event.NewQueue()
	external := event.NewQueue()

	opts = append([]Option{WithDNSRefresh(0)}, opts...)
	d := New("s1", internal, external, opts...)

	t.Cleanup(func() {
		_ = d.Close(context.Background())
	})

	return d, internal, external
}

func TestSendToSession(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"", "#_scxml_s1"} {
		t.Run("target="+target, func(t *testing.T) {
			t.Parallel()

			d, internal, external := newTestDispatcher(t)

			err := d.Send(t.Context(), model.SendRequest{
				SendID: "id1",
				Event:  "ping",
				Target: target,
				Data:   map[string]any{"n": int64(1)},
			})
			require.NoError(t, err)

			assert.Equal(t, 0, internal.Len())

			ev, ok := external.Pop()
			require.True(t, ok)
			assert.Equal(t, "ping", ev.Name)
			assert.Equal(t, event.TypeExternal, ev.Type)
			assert.Equal(t, "id1", ev.SendID)
			assert.Equal(t, "#_scxml_s1", ev.Origin)
			assert.Equal(t, model.TypeSCXML, ev.OriginType)
			assert.Equal(t, map[string]any{"n": int64(1)}, ev.Data)
			assert.Equal(t, int64(1), d.Sent())
		})
	}
}

func TestSendToInternal(t *testing.T) {
	t.Parallel()

	d, internal, external := newTestDispatcher(t)

	err := d.Send(t.Context(), model.SendRequest{Event: "step", Target: model.TargetInternal, Content: "body"})
	require.NoError(t, err)

	assert.Equal(t, 0, external.Len())

	ev, ok := internal.Pop()
	require.True(t, ok)
	assert.Equal(t, "step", ev.Name)
	assert.Equal(t, "body", ev.Data)

	err = d.Send(t.Context(), model.SendRequest{Event: "step", Target: model.TargetInternal, Delay: time.Second})
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestSendRouting(t *testing.T) {
	t.Parallel()

	other := event.NewQueue()
	parent := event.NewQueue()

	d, _, _ := newTestDispatcher(t,
		WithParent(parent),
		WithSessions(func(id string) (Deliverer, bool) {
			if id == "s2" {
				return other, true
			}

			return nil, false
		}))

	require.NoError(t, d.Send(t.Context(), model.SendRequest{Event: "up", Target: model.TargetParent}))
	require.NoError(t, d.Send(t.Context(), model.SendRequest{Event: "over", Target: "#_scxml_s2"}))

	ev, ok := parent.Pop()
	require.True(t, ok)
	assert.Equal(t, "up", ev.Name)

	ev, ok = other.Pop()
	require.True(t, ok)
	assert.Equal(t, "over", ev.Name)

	err := d.Send(t.Context(), model.SendRequest{Event: "lost", Target: "#_scxml_s3"})
	require.ErrorIs(t, err, ErrTargetUnavailable)
}

func TestSendRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  model.SendRequest
		want error
	}{
		{"unknown type", model.SendRequest{Event: "e", Type: "carrier-pigeon"}, ErrUnsupportedType},
		{"unknown target", model.SendRequest{Event: "e", Target: "somewhere"}, ErrInvalidTarget},
		{"no parent", model.SendRequest{Event: "e", Target: model.TargetParent}, ErrTargetUnavailable},
		{"http type without url", model.SendRequest{Event: "e", Type: "http", Target: "#_internal"}, ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, internal, external := newTestDispatcher(t)

			err := d.Send(t.Context(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, internal.Len())
			assert.Equal(t, 0, external.Len())
			assert.Equal(t, int64(0), d.Sent())
		})
	}
}

func TestDelayedSend(t *testing.T) {
	t.Parallel()

	d, _, external := newTestDispatcher(t)

	require.NoError(t, d.Send(t.Context(), model.SendRequest{SendID: "late", Event: "second", Delay: 40 * time.Millisecond}))
	require.NoError(t, d.Send(t.Context(), model.SendRequest{SendID: "early", Event: "first", Delay: 10 * time.Millisecond}))

	assert.Equal(t, 2, d.Pending())
	assert.Equal(t, 0, external.Len())

	require.Eventually(t, func() bool { return external.Len() == 2 }, time.Second, 5*time.Millisecond)

	first, _ := external.Pop()
	second, _ := external.Pop()
	assert.Equal(t, "first", first.Name)
	assert.Equal(t, "second", second.Name)
	assert.Equal(t, 0, d.Pending())
}

func TestCancel(t *testing.T) {
	t.Parallel()

	d, _, external := newTestDispatcher(t)

	require.NoError(t, d.Send(t.Context(), model.SendRequest{SendID: "t1", Event: "timeout", Delay: 20 * time.Millisecond}))
	require.NoError(t, d.Send(t.Context(), model.SendRequest{SendID: "t2", Event: "kept", Delay: 20 * time.Millisecond}))
	assert.Equal(t, 2, d.Pending())

	require.NoError(t, d.Cancel(t.Context(), "t1"))
	assert.Equal(t, 1, d.Pending())

	// Unknown and repeated ids are ignored.
	require.NoError(t, d.Cancel(t.Context(), "t1"))
	require.NoError(t, d.Cancel(t.Context(), "never-sent"))

	require.Eventually(t, func() bool { return external.Len() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(40 * time.Millisecond)

	ev, ok := external.Pop()
	require.True(t, ok)
	assert.Equal(t, "kept", ev.Name)
	assert.Equal(t, 0, external.Len())

	// Cancelling after delivery is a no-op.
	require.NoError(t, d.Cancel(t.Context(), "t2"))
}

func TestSendReplacesPendingID(t *testing.T) {
	t.Parallel()

	d, _, external := newTestDispatcher(t)

	require.NoError(t, d.Send(t.Context(), model.SendRequest{SendID: "dup", Event: "old", Delay: time.Hour}))
	require.NoError(t, d.Send(t.Context(), model.SendRequest{SendID: "dup", Event: "new", Delay: 10 * time.Millisecond}))
	assert.Equal(t, 1, d.Pending())

	require.Eventually(t, func() bool { return external.Len() == 1 }, time.Second, 5*time.Millisecond)

	ev, _ := external.Pop()
	assert.Equal(t, "new", ev.Name)
	assert.Equal(t, 0, d.Pending())
}

func TestClose(t *testing.T) {
	t.Parallel()

	d, _, external := newTestDispatcher(t)

	require.NoError(t, d.Send(t.Context(), model.SendRequest{SendID: "x", Event: "never", Delay: 10 * time.Millisecond}))
	require.NoError(t, d.Close(t.Context()))
	assert.Equal(t, 0, d.Pending())

	err := d.Send(t.Context(), model.SendRequest{Event: "after"})
	require.ErrorIs(t, err, ErrClosed)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, external.Len())

	// Close is idempotent.
	require.NoError(t, d.Close(t.Context()))
}

func TestHTTPSend(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		got  []url.Values
		done = make(chan struct{}, 1)
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		assert.NoError(t, r.ParseForm())

		mu.Lock()
		got = append(got, r.PostForm)
		mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
		done <- struct{}{}
	}))
	t.Cleanup(srv.Close)

	d, internal, external := newTestDispatcher(t, WithWorkers(2), WithHTTPTimeout(time.Second))

	err := d.Send(t.Context(), model.SendRequest{
		SendID: "h1",
		Event:  "order.placed",
		Target: srv.URL,
		Type:   model.TypeHTTP,
		Data:   map[string]any{"count": int64(3), "items": []any{"a", "b"}},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("http target was not called")
	}

	require.NoError(t, d.Close(t.Context()))

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, got, 1)
	assert.Equal(t, "order.placed", got[0].Get("_scxmleventname"))
	assert.Equal(t, "3", got[0].Get("count"))
	assert.Equal(t, `["a", "b"]`, got[0].Get("items"))
	assert.Equal(t, 0, internal.Len())
	assert.Equal(t, 0, external.Len())
}

func TestHTTPSendFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	d, internal, _ := newTestDispatcher(t)

	// An http(s) target implies the HTTP processor.
	err := d.Send(t.Context(), model.SendRequest{SendID: "h2", Event: "notify", Target: srv.URL})
	require.NoError(t, err)

	require.NoError(t, d.Close(t.Context()))

	ev, ok := internal.Pop()
	require.True(t, ok)
	assert.Equal(t, event.ErrorCommunication, ev.Name)
	assert.Equal(t, event.TypePlatform, ev.Type)
	assert.Equal(t, "h2", ev.SendID)

	data, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data["message"], "503")
}

func TestEncodeForm(t *testing.T) {
	t.Parallel()

	form := encodeForm(model.SendRequest{Event: "e", Content: map[string]any{"b": true, "a": "x"}})

	assert.Equal(t, "e", form.Get(fieldEventName))
	assert.Equal(t, `{"a": "x", "b": true}`, form.Get(fieldContent))
}

func TestSharedResolver(t *testing.T) {
	t.Parallel()

	first, _, _ := newTestDispatcher(t)
	second, _, _ := newTestDispatcher(t)

	assert.Same(t, dnsResolver, first.resolver)
	assert.Same(t, first.resolver, second.resolver)

	own := &dnscache.Resolver{}
	third, _, _ := newTestDispatcher(t, WithResolver(own), WithDNSRefresh(time.Hour))

	assert.Same(t, own, third.resolver)
}

func TestDialCached(t *testing.T) {
	t.Parallel()

	errRefused := errors.New("connection refused") //nolint:err113

	lookup := func(ips ...string) lookupFunc {
		return func(context.Context, string) ([]string, error) {
			return ips, nil
		}
	}

	t.Run("no addresses", func(t *testing.T) {
		t.Parallel()

		dial := dialCached(lookup(), func(context.Context, string, string) (net.Conn, error) {
			t.Fatal("nothing to dial")

			return nil, nil //nolint:nilnil
		})

		conn, err := dial(t.Context(), "tcp", "example.test:80")
		require.ErrorIs(t, err, ErrNoAddress)
		assert.Nil(t, conn)
	})

	t.Run("lookup failure", func(t *testing.T) {
		t.Parallel()

		dial := dialCached(func(context.Context, string) ([]string, error) {
			return nil, errRefused
		}, nil)

		_, err := dial(t.Context(), "tcp", "example.test:80")
		require.ErrorIs(t, err, errRefused)
	})

	t.Run("falls through to the next address", func(t *testing.T) {
		t.Parallel()

		client, server := net.Pipe()
		t.Cleanup(func() {
			_ = client.Close()
			_ = server.Close()
		})

		var tried []string

		dial := dialCached(lookup("10.0.0.1", "10.0.0.2"), func(_ context.Context, _ string, addr string) (net.Conn, error) {
			tried = append(tried, addr)
			if addr == "10.0.0.1:80" {
				return nil, errRefused
			}

			return client, nil
		})

		conn, err := dial(t.Context(), "tcp", "example.test:80")
		require.NoError(t, err)
		assert.Same(t, client, conn)
		assert.Equal(t, []string{"10.0.0.1:80", "10.0.0.2:80"}, tried)
	})

	t.Run("every address fails", func(t *testing.T) {
		t.Parallel()

		dial := dialCached(lookup("10.0.0.1", "10.0.0.2"), func(context.Context, string, string) (net.Conn, error) {
			return nil, errRefused
		})

		conn, err := dial(t.Context(), "tcp", "example.test:80")
		require.ErrorIs(t, err, errRefused)
		assert.Nil(t, conn)
	})
}

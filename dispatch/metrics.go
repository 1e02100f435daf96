package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Target kinds used as metric labels.
const (
	targetInternal = "internal"
	targetExternal = "external"
	targetParent   = "parent"
	targetSession  = "session"
	targetHTTP     = "http"
	targetUnknown  = "unknown"
)

// Send outcomes used as metric labels.
const (
	outcomeDelivered = "delivered"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

var (
	// sendsTotal counts sends by target kind and outcome.
	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_dispatch_sends_total",
		Help: "Total number of sends handled by the dispatcher, by target kind and outcome",
	}, []string{"target", "outcome"})

	// pendingSends tracks delayed sends waiting for their timer.
	pendingSends = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statechart_dispatch_pending_sends",
		Help: "Number of delayed sends waiting to be delivered",
	})

	// cancelsTotal counts delayed sends withdrawn before delivery.
	cancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statechart_dispatch_cancels_total",
		Help: "Total number of delayed sends cancelled before delivery",
	})

	// httpDuration tracks HTTP target round trips.
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statechart_dispatch_http_duration_seconds",
		Help:    "Duration of posts to HTTP targets by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

package model

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zeebo/xxh3"
)

// Metric definitions with appropriate labels.
var (
	// actionExecutionsTotal counts action executions by kind and outcome.
	actionExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_action_executions_total",
		Help: "Total number of executable content actions run, by kind and outcome (success or failure)",
	}, []string{"kind", "outcome", "session_hash"})

	// actionDuration tracks individual action execution time.
	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statechart_action_duration_seconds",
		Help:    "Duration of executable content actions by kind and outcome",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"kind", "outcome"})

	// blockExecutionsTotal counts executed blocks by outcome.
	blockExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statechart_block_executions_total",
		Help: "Total number of executable content blocks run, by outcome",
	}, []string{"outcome", "session_hash"})
)

// SessionLabel turns a session id into a short, bounded metric label.
func SessionLabel(sessionID string) string {
	if sessionID == "" {
		return "unknown"
	}

	hash := strconv.FormatUint(xxh3.HashString(sessionID), 16)
	if len(hash) > 8 {
		hash = hash[:8]
	}

	return hash
}

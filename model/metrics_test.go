package model

import (
	"context"
	"errors"
	"testing"

	"github.com/amp-labs/statechart/event"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRuntime struct {
	id       string
	reported []error
}

func (s *stubRuntime) SessionID() string { return s.id }
func (s *stubRuntime) Datamodel() Datamodel { return nil }
func (s *stubRuntime) Record(context.Context, LogEntry) {}
func (s *stubRuntime) Raise(context.Context, event.Event) {}
func (s *stubRuntime) Dispatcher() Dispatcher { return nil }
func (s *stubRuntime) ReportError(_ context.Context, err error) { s.reported = append(s.reported, err) }

type stubAction struct {
	err error
}

func (a stubAction) Kind() string { return "stub" }

func (a stubAction) Execute(context.Context, Runtime) error { return a.err }

func TestSessionLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", SessionLabel(""))

	label := SessionLabel("session-1")
	assert.LessOrEqual(t, len(label), 8)
	assert.NotEmpty(t, label)
	assert.Equal(t, label, SessionLabel("session-1"))
	assert.NotEqual(t, label, SessionLabel("session-2"))
}

func TestRunnerMetrics(t *testing.T) {
	t.Parallel()

	rt := &stubRuntime{id: "metrics-session"}
	session := SessionLabel(rt.id)

	successBefore := testutil.ToFloat64(actionExecutionsTotal.WithLabelValues("stub", outcomeSuccess, session))
	failureBefore := testutil.ToFloat64(actionExecutionsTotal.WithLabelValues("stub", outcomeFailure, session))
	blocksBefore := testutil.ToFloat64(blockExecutionsTotal.WithLabelValues(outcomeFailure, session))

	err := NewRunner().Run(context.Background(), rt, stubAction{}, stubAction{err: errors.New("x")}, stubAction{})
	require.Error(t, err)

	assert.InDelta(t, successBefore+2, testutil.ToFloat64(actionExecutionsTotal.WithLabelValues("stub", outcomeSuccess, session)), 0)
	assert.InDelta(t, failureBefore+1, testutil.ToFloat64(actionExecutionsTotal.WithLabelValues("stub", outcomeFailure, session)), 0)
	assert.InDelta(t, blocksBefore+1, testutil.ToFloat64(blockExecutionsTotal.WithLabelValues(outcomeFailure, session)), 0)

	assert.Len(t, rt.reported, 1)
}

func TestIsReported(t *testing.T) {
	t.Parallel()

	assert.False(t, isReported(errors.New("plain")))
	assert.False(t, isReported(&ExecutionError{Kind: KindLog}))
	assert.True(t, isReported(&ExecutionError{Kind: KindLog, Reported: true}))
	assert.True(t, isReported(&BlockError{}))

	rt := &stubRuntime{}
	err := fail(context.Background(), rt, &ExecutionError{Kind: KindLog, Err: ErrEvaluation})
	assert.True(t, isReported(err))
	assert.Len(t, rt.reported, 1)
}

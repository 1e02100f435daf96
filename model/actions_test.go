package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/model"
	"github.com/amp-labs/statechart/model/modeltest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaise(t *testing.T) {
	t.Parallel()

	_, err := model.NewRaise("  ")
	require.ErrorIs(t, err, model.ErrInvalidAction)

	raise, err := model.NewRaise(" done.step ")
	require.NoError(t, err)
	assert.Equal(t, "done.step", raise.Event())

	rt := modeltest.NewRuntime(nil)
	require.NoError(t, raise.Execute(context.Background(), rt))

	require.Len(t, rt.Raised, 1)
	assert.Equal(t, "done.step", rt.Raised[0].Name)
	assert.Equal(t, event.TypeInternal, rt.Raised[0].Type)
}

func TestAssign(t *testing.T) {
	t.Parallel()

	t.Run("expression", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{"count": 1, "next": 2})
		rt := modeltest.NewRuntime(dm)

		assign, err := model.NewAssign("count", "next")
		require.NoError(t, err)
		require.NoError(t, assign.Execute(context.Background(), rt))

		assert.Equal(t, 2, dm.Values["count"])
	})

	t.Run("literal value", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{"payload": nil})
		rt := modeltest.NewRuntime(dm)

		assign, err := model.NewAssignValue("payload", map[string]any{"a": 1})
		require.NoError(t, err)
		require.NoError(t, assign.Execute(context.Background(), rt))

		assert.Equal(t, map[string]any{"a": 1}, dm.Values["payload"])
		assert.Zero(t, dm.Evaluations)
	})

	t.Run("literal value is copied on every execution", func(t *testing.T) {
		t.Parallel()

		value := map[string]any{"n": 0, "tags": []any{"a"}}

		assign, err := model.NewAssignValue("cfg", value)
		require.NoError(t, err)

		value["n"] = 5

		first := modeltest.NewDatamodel(map[string]any{"cfg": nil})
		require.NoError(t, assign.Execute(context.Background(), modeltest.NewRuntime(first)))

		stored := first.Values["cfg"].(map[string]any) //nolint:forcetypeassert
		stored["n"] = 99
		stored["tags"].([]any)[0] = "z" //nolint:forcetypeassert

		second := modeltest.NewDatamodel(map[string]any{"cfg": nil})
		require.NoError(t, assign.Execute(context.Background(), modeltest.NewRuntime(second)))

		assert.Equal(t, map[string]any{"n": 0, "tags": []any{"a"}}, second.Values["cfg"])
	})

	t.Run("undeclared location", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(nil)

		assign, err := model.NewAssign("ghost", "1")
		require.NoError(t, err)

		err = assign.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrUndefinedLocation)
		assert.Len(t, rt.Errors, 1)
	})

	t.Run("evaluation failure leaves location untouched", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{"count": 1})
		rt := modeltest.NewRuntime(dm)

		assign, err := model.NewAssign("count", "nope")
		require.NoError(t, err)

		err = assign.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrEvaluation)
		assert.Equal(t, 1, dm.Values["count"])
		assert.Len(t, rt.Errors, 1)
	})

	t.Run("construction", func(t *testing.T) {
		t.Parallel()

		_, err := model.NewAssign("", "1")
		require.ErrorIs(t, err, model.ErrInvalidAction)

		_, err = model.NewAssign("x", " ")
		require.ErrorIs(t, err, model.ErrInvalidAction)

		_, err = model.NewAssignValue(" ", 1)
		require.ErrorIs(t, err, model.ErrInvalidAction)
	})
}

func TestIf(t *testing.T) {
	t.Parallel()

	build := func(t *testing.T) *model.If {
		t.Helper()

		action, err := model.NewIf([]model.Branch{
			{Cond: "a", Actions: []model.Action{model.NewLog("a", "")}},
			{Cond: "b", Actions: []model.Action{model.NewLog("b", "")}},
		}, model.NewLog("else", ""))
		require.NoError(t, err)

		return action
	}

	tests := []struct {
		name string
		a, b bool
		want string
	}{
		{"if", true, true, "a"},
		{"elseif", false, true, "b"},
		{"else", false, false, "else"},
	}

	for _, tt := range tests { //nolint:varnamelen // tt is standard Go test idiom
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rt := modeltest.NewRuntime(modeltest.NewDatamodel(map[string]any{"a": tt.a, "b": tt.b}))

			require.NoError(t, build(t).Execute(context.Background(), rt))
			assert.Equal(t, []model.LogEntry{{Label: tt.want}}, rt.Entries)
		})
	}

	t.Run("condition failure runs no branch", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(modeltest.NewDatamodel(map[string]any{"a": "not a bool"}))

		err := build(t).Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrEvaluation)
		assert.Empty(t, rt.Entries)
		assert.Len(t, rt.Errors, 1)
	})

	t.Run("construction", func(t *testing.T) {
		t.Parallel()

		_, err := model.NewIf(nil)
		require.ErrorIs(t, err, model.ErrInvalidAction)

		_, err = model.NewIf([]model.Branch{{Cond: " "}})
		require.ErrorIs(t, err, model.ErrInvalidAction)
	})
}

func TestForeach(t *testing.T) {
	t.Parallel()

	t.Run("slice with index", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{
			"items": []any{"x", "y"},
			"item":  nil,
			"i":     nil,
		})
		rt := modeltest.NewRuntime(dm)

		foreach, err := model.NewForeach("items", "item", "i", model.NewLog("item", "item"), model.NewLog("i", "i"))
		require.NoError(t, err)
		require.NoError(t, foreach.Execute(context.Background(), rt))

		assert.Equal(t, []string{"record:item: x", "record:i: 0", "record:item: y", "record:i: 1"}, rt.Trace)
	})

	t.Run("typed slice", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{"nums": []int{4, 5, 6}})
		rt := modeltest.NewRuntime(dm)

		foreach, err := model.NewForeach("nums", "n", "", model.NewLog("", "n"))
		require.NoError(t, err)
		require.NoError(t, foreach.Execute(context.Background(), rt))

		require.Len(t, rt.Entries, 3)
		assert.Equal(t, "6", rt.Entries[2].Value)
	})

	t.Run("map in natural key order", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{
			"m": map[string]any{"k10": 10, "k2": 2, "k1": 1},
		})
		rt := modeltest.NewRuntime(dm)

		foreach, err := model.NewForeach("m", "v", "k", model.NewLog("", "k"))
		require.NoError(t, err)
		require.NoError(t, foreach.Execute(context.Background(), rt))

		assert.Equal(t, []string{"record:k1", "record:k2", "record:k10"}, rt.Trace)
	})

	t.Run("not iterable", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(modeltest.NewDatamodel(map[string]any{"n": 3}))

		foreach, err := model.NewForeach("n", "v", "", model.NewLog("never", ""))
		require.NoError(t, err)

		err = foreach.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrNotIterable)
		assert.Empty(t, rt.Entries)
		assert.Len(t, rt.Errors, 1)
	})

	t.Run("failing pass does not stop iteration", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{"items": []any{1, 2}})
		rt := modeltest.NewRuntime(dm)

		foreach, err := model.NewForeach("items", "v", "",
			model.NewLog("bad", "missing"),
			model.NewLog("", "v"),
		)
		require.NoError(t, err)

		err = model.ExecuteBlock(context.Background(), rt, foreach)
		require.Error(t, err)

		assert.Len(t, rt.Errors, 2)
		assert.Equal(t, []model.LogEntry{
			{Value: "1", HasValue: true},
			{Value: "2", HasValue: true},
		}, rt.Entries)
	})

	t.Run("binding failure keeps earlier failures", func(t *testing.T) {
		t.Parallel()

		errBind := errors.New("read only") //nolint:err113

		dm := modeltest.NewDatamodel(map[string]any{"items": []any{1, 2, 3}})
		rt := modeltest.NewRuntime(dm)

		foreach, err := model.NewForeach("items", "v", "",
			model.NewLog("bad", "missing"),
			&lockLocation{dm: dm, location: "v", err: errBind},
		)
		require.NoError(t, err)

		err = foreach.Execute(context.Background(), rt)

		var blockErr *model.BlockError

		require.ErrorAs(t, err, &blockErr)
		require.Len(t, blockErr.Failures, 2)
		require.ErrorIs(t, blockErr.Failures[0], modeltest.ErrUndefined)
		require.ErrorIs(t, blockErr.Failures[1], errBind)
		assert.Len(t, rt.Errors, 2)
		assert.Empty(t, rt.Entries)
	})

	t.Run("construction", func(t *testing.T) {
		t.Parallel()

		_, err := model.NewForeach("", "v", "")
		require.ErrorIs(t, err, model.ErrInvalidAction)

		_, err = model.NewForeach("items", "", "")
		require.ErrorIs(t, err, model.ErrInvalidAction)
	})
}

func TestScript(t *testing.T) {
	t.Parallel()

	_, err := model.NewScript("\n\t")
	require.ErrorIs(t, err, model.ErrInvalidAction)

	dm := modeltest.NewDatamodel(nil).Fail("boom()\nmore()", errors.New("runtime error"))
	rt := modeltest.NewRuntime(dm)

	ok, err := model.NewScript("x = 1")
	require.NoError(t, err)
	require.NoError(t, ok.Execute(context.Background(), rt))

	bad, err := model.NewScript("boom()\nmore()")
	require.NoError(t, err)

	err = bad.Execute(context.Background(), rt)
	require.ErrorIs(t, err, model.ErrEvaluation)
	assert.Contains(t, err.Error(), "boom() ...")
	assert.Equal(t, []string{"x = 1", "boom()\nmore()"}, dm.Scripts)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	_, err := model.NewCancel("", "")
	require.ErrorIs(t, err, model.ErrInvalidAction)

	_, err = model.NewCancel("a", "b")
	require.ErrorIs(t, err, model.ErrInvalidAction)

	t.Run("literal and expression", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(modeltest.NewDatamodel(map[string]any{"timer": "t-2"}))

		literal, err := model.NewCancel("t-1", "")
		require.NoError(t, err)

		dynamic, err := model.NewCancel("", "timer")
		require.NoError(t, err)

		require.NoError(t, model.ExecuteBlock(context.Background(), rt, literal, dynamic))
		assert.Equal(t, []string{"t-1", "t-2"}, rt.Disp.Cancelled)
	})

	t.Run("dispatcher failure", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(nil)
		rt.Disp.CancelErr = errors.New("unreachable")

		cancel, err := model.NewCancel("t-1", "")
		require.NoError(t, err)

		err = cancel.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrDispatch)

		var execErr *model.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, event.ErrorCommunication, execErr.ErrorEvent())
	})
}

func TestSendConstruction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  model.SendConfig
	}{
		{"no event", model.SendConfig{Target: "#_parent"}},
		{"event and eventexpr", model.SendConfig{Event: "a", EventExpr: "b"}},
		{"target and targetexpr", model.SendConfig{Event: "a", Target: "x", TargetExpr: "y"}},
		{"id and idlocation", model.SendConfig{Event: "a", ID: "x", IDLocation: "y"}},
		{"delay and delayexpr", model.SendConfig{Event: "a", Delay: "1s", DelayExpr: "d"}},
		{"content with namelist", model.SendConfig{Content: "x", Namelist: []string{"a"}}},
		{"content with params", model.SendConfig{Content: "x", Params: []model.Param{{Name: "a", Expr: "1"}}}},
		{"param without name", model.SendConfig{Event: "a", Params: []model.Param{{Expr: "1"}}}},
		{"param with expr and location", model.SendConfig{Event: "a", Params: []model.Param{{Name: "p", Expr: "1", Location: "x"}}}},
		{"bad delay", model.SendConfig{Event: "a", Delay: "soon"}},
		{"internal delay", model.SendConfig{Event: "a", Target: model.TargetInternal, Delay: "1s"}},
	}

	for _, tt := range tests { //nolint:varnamelen // tt is standard Go test idiom
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := model.NewSend(tt.cfg)
			require.ErrorIs(t, err, model.ErrInvalidAction)
		})
	}
}

func TestSendExecute(t *testing.T) {
	t.Parallel()

	t.Run("evaluates fields and payload", func(t *testing.T) {
		t.Parallel()

		dm := modeltest.NewDatamodel(map[string]any{
			"name":   "job.done",
			"target": "#_parent",
			"count":  3,
			"user":   "ada",
			"sendid": nil,
			"wait":   "250ms",
		})
		rt := modeltest.NewRuntime(dm)

		send, err := model.NewSend(model.SendConfig{
			EventExpr:  "name",
			TargetExpr: "target",
			IDLocation: "sendid",
			DelayExpr:  "wait",
			Namelist:   []string{"count"},
			Params:     []model.Param{{Name: "who", Location: "user"}},
		})
		require.NoError(t, err)
		require.NoError(t, send.Execute(context.Background(), rt))

		require.Len(t, rt.Disp.Sent, 1)
		req := rt.Disp.Sent[0]

		assert.Equal(t, "job.done", req.Event)
		assert.Equal(t, "#_parent", req.Target)
		assert.Equal(t, 250*time.Millisecond, req.Delay)
		assert.Equal(t, map[string]any{"count": 3, "who": "ada"}, req.Data)
		assert.Equal(t, "test-session", req.Origin)

		_, err = uuid.Parse(req.SendID)
		require.NoError(t, err)
		assert.Equal(t, req.SendID, dm.Values["sendid"])
	})

	t.Run("literal id and content", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(nil)

		send, err := model.NewSend(model.SendConfig{Event: "ping", ID: "fixed", Content: "hello"})
		require.NoError(t, err)
		require.NoError(t, send.Execute(context.Background(), rt))

		require.Len(t, rt.Disp.Sent, 1)
		assert.Equal(t, "fixed", rt.Disp.Sent[0].SendID)
		assert.Equal(t, "hello", rt.Disp.Sent[0].Content)
		assert.Nil(t, rt.Disp.Sent[0].Data)
	})

	t.Run("evaluation failure sends nothing", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(nil)

		send, err := model.NewSend(model.SendConfig{Event: "ping", Namelist: []string{"missing"}})
		require.NoError(t, err)

		err = send.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrEvaluation)
		assert.Empty(t, rt.Disp.Sent)
		assert.Len(t, rt.Errors, 1)
	})

	t.Run("invalid evaluated delay", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(modeltest.NewDatamodel(map[string]any{"wait": "later"}))

		send, err := model.NewSend(model.SendConfig{Event: "ping", DelayExpr: "wait"})
		require.NoError(t, err)

		err = send.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrInvalidDelay)
		assert.Empty(t, rt.Disp.Sent)
	})

	t.Run("evaluated delay to internal target", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(modeltest.NewDatamodel(map[string]any{"wait": "1s"}))

		send, err := model.NewSend(model.SendConfig{Event: "ping", Target: model.TargetInternal, DelayExpr: "wait"})
		require.ErrorIs(t, err, model.ErrInvalidAction)
		assert.Nil(t, send)

		send, err = model.NewSend(model.SendConfig{Event: "ping", TargetExpr: "'#_internal'", DelayExpr: "wait"})
		require.NoError(t, err)

		err = send.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrInvalidDelay)
	})

	t.Run("dispatch failure is a communication error", func(t *testing.T) {
		t.Parallel()

		rt := modeltest.NewRuntime(nil)
		rt.Disp.SendErr = errors.New("connection refused")

		send, err := model.NewSend(model.SendConfig{Event: "ping", Target: "http://example.invalid"})
		require.NoError(t, err)

		err = send.Execute(context.Background(), rt)
		require.ErrorIs(t, err, model.ErrDispatch)

		var execErr *model.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, event.ErrorCommunication, execErr.ErrorEvent())
		assert.Len(t, rt.Errors, 1)
	})
}

func TestParseDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"2s", 2 * time.Second, false},
		{".5s", 500 * time.Millisecond, false},
		{" 1m ", time.Minute, false},
		{"-1s", 0, true},
		{"5", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests { //nolint:varnamelen // tt is standard Go test idiom
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			got, err := model.ParseDelay(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, model.ErrInvalidDelay)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// lockLocation makes later assignments to location fail.
type lockLocation struct {
	dm       *modeltest.Datamodel
	location string
	err      error
}

func (a *lockLocation) Kind() string {
	return "test:lock"
}

func (a *lockLocation) Execute(context.Context, model.Runtime) error {
	a.dm.Fail(a.location, a.err)

	return nil
}

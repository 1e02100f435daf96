package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amp-labs/statechart/event"
	"github.com/google/uuid"
)

// SendConfig describes a send before validation. Each literal field and its
// *Expr (or *Location) twin are mutually exclusive.
type SendConfig struct {
	Event       string
	EventExpr   string
	Target      string
	TargetExpr  string
	Type        string
	TypeExpr    string
	ID          string
	IDLocation  string
	Delay       string
	DelayExpr   string
	Namelist    []string
	Params      []Param
	Content     string
	ContentExpr string
}

// Param is a named value attached to a send. Exactly one of Expr and Location
// is set.
type Param struct {
	Name     string
	Expr     string
	Location string
}

// Send delivers an event through the runtime's dispatcher, either to the
// session itself or to an external target, optionally after a delay.
type Send struct {
	cfg   SendConfig
	delay time.Duration
}

// NewSend validates cfg and creates a send action.
func NewSend(cfg SendConfig) (*Send, error) {
	exclusive := []struct {
		literal, expr, names string
	}{
		{cfg.Event, cfg.EventExpr, "event and eventexpr"},
		{cfg.Target, cfg.TargetExpr, "target and targetexpr"},
		{cfg.Type, cfg.TypeExpr, "type and typeexpr"},
		{cfg.ID, cfg.IDLocation, "id and idlocation"},
		{cfg.Delay, cfg.DelayExpr, "delay and delayexpr"},
		{cfg.Content, cfg.ContentExpr, "content and contentexpr"},
	}

	for _, pair := range exclusive {
		if pair.literal != "" && pair.expr != "" {
			return nil, invalid(KindSend, "%s are mutually exclusive", pair.names)
		}
	}

	hasContent := cfg.Content != "" || cfg.ContentExpr != ""

	if cfg.Event == "" && cfg.EventExpr == "" && !hasContent {
		return nil, invalid(KindSend, "one of event, eventexpr or content is required")
	}

	if hasContent && (len(cfg.Namelist) > 0 || len(cfg.Params) > 0) {
		return nil, invalid(KindSend, "content cannot be combined with namelist or params")
	}

	for i, param := range cfg.Params {
		if strings.TrimSpace(param.Name) == "" {
			return nil, invalid(KindSend, "param %d: name is required", i)
		}

		if (param.Expr == "") == (param.Location == "") {
			return nil, invalid(KindSend, "param %q: exactly one of expr and location is required", param.Name)
		}
	}

	var (
		delay time.Duration
		err   error
	)

	if cfg.Delay != "" {
		delay, err = ParseDelay(cfg.Delay)
		if err != nil {
			return nil, invalid(KindSend, "%v", err)
		}
	}

	if (cfg.Delay != "" || cfg.DelayExpr != "") && cfg.Target == TargetInternal {
		return nil, invalid(KindSend, "a delay cannot be used with target %s", TargetInternal)
	}

	cfg.Event = event.Normalize(cfg.Event)
	cfg.Namelist = append([]string(nil), cfg.Namelist...)
	cfg.Params = append([]Param(nil), cfg.Params...)

	return &Send{
		cfg:   cfg,
		delay: delay,
	}, nil
}

func (a *Send) Kind() string {
	return KindSend
}

// Execute evaluates every expression, assigns a send id and hands the request
// to the dispatcher. Evaluation failures are reported as error.execution,
// dispatch failures as error.communication.
func (a *Send) Execute(ctx context.Context, rt Runtime) error {
	dm := rt.Datamodel()

	req := SendRequest{
		SendID: a.cfg.ID,
		Event:  a.cfg.Event,
		Target: a.cfg.Target,
		Type:   a.cfg.Type,
		Delay:  a.delay,
		Origin: rt.SessionID(),
	}

	dynamic := []struct {
		expr string
		dst  *string
	}{
		{a.cfg.EventExpr, &req.Event},
		{a.cfg.TargetExpr, &req.Target},
		{a.cfg.TypeExpr, &req.Type},
	}

	for _, field := range dynamic {
		if field.expr == "" {
			continue
		}

		value, err := evaluateString(ctx, dm, field.expr)
		if err != nil {
			return fail(ctx, rt, evalFailure(KindSend, field.expr, err))
		}

		*field.dst = value
	}

	req.Event = event.Normalize(req.Event)

	if a.cfg.DelayExpr != "" {
		raw, err := evaluateString(ctx, dm, a.cfg.DelayExpr)
		if err != nil {
			return fail(ctx, rt, evalFailure(KindSend, a.cfg.DelayExpr, err))
		}

		req.Delay, err = ParseDelay(raw)
		if err != nil {
			return fail(ctx, rt, &ExecutionError{Kind: KindSend, Expr: a.cfg.DelayExpr, Err: err})
		}
	}

	if req.Delay > 0 && req.Target == TargetInternal {
		return fail(ctx, rt, &ExecutionError{
			Kind: KindSend,
			Err:  fmt.Errorf("%w: target %s does not accept a delay", ErrInvalidDelay, TargetInternal),
		})
	}

	data, failure := a.collectData(ctx, dm)
	if failure != nil {
		return fail(ctx, rt, failure)
	}

	req.Data = data

	switch {
	case a.cfg.ContentExpr != "":
		content, err := dm.Evaluate(ctx, a.cfg.ContentExpr)
		if err != nil {
			return fail(ctx, rt, evalFailure(KindSend, a.cfg.ContentExpr, err))
		}

		req.Content = content
	case a.cfg.Content != "":
		req.Content = a.cfg.Content
	}

	if req.SendID == "" {
		req.SendID = uuid.NewString()

		if a.cfg.IDLocation != "" {
			err := dm.Assign(ctx, a.cfg.IDLocation, req.SendID)
			if err != nil {
				return fail(ctx, rt, &ExecutionError{
					Kind: KindSend,
					Expr: a.cfg.IDLocation,
					Err:  fmt.Errorf("store send id: %w", err),
				})
			}
		}
	}

	err := rt.Dispatcher().Send(ctx, req)
	if err != nil {
		return fail(ctx, rt, &ExecutionError{
			Kind:  KindSend,
			Event: event.ErrorCommunication,
			Err:   fmt.Errorf("%w: %s: %w", ErrDispatch, req, err),
		})
	}

	return nil
}

// collectData evaluates the namelist and params into the event payload.
func (a *Send) collectData(ctx context.Context, dm Datamodel) (map[string]any, *ExecutionError) {
	if len(a.cfg.Namelist) == 0 && len(a.cfg.Params) == 0 {
		return nil, nil
	}

	data := make(map[string]any, len(a.cfg.Namelist)+len(a.cfg.Params))

	for _, name := range a.cfg.Namelist {
		value, err := dm.Evaluate(ctx, name)
		if err != nil {
			return nil, evalFailure(KindSend, name, err)
		}

		data[name] = value
	}

	for _, param := range a.cfg.Params {
		expr := param.Expr
		if expr == "" {
			expr = param.Location
		}

		value, err := dm.Evaluate(ctx, expr)
		if err != nil {
			return nil, evalFailure(KindSend, expr, err)
		}

		data[param.Name] = value
	}

	return data, nil
}

// ParseDelay parses a delay in CSS2 time notation ("500ms", "2s", ".5s") or
// any Go duration string. The empty string is no delay.
func ParseDelay(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	delay, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, raw)
	}

	if delay < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDelay, raw)
	}

	return delay, nil
}

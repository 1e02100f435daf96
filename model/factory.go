package model

import (
	"fmt"
	"maps"
	"slices"
)

// ActionFactory creates actions from configuration.
// Applications can register custom action builders to extend the set of
// executable content.
type ActionFactory struct {
	builders map[string]ActionBuilder
}

// ActionBuilder creates an action from configuration. The factory parameter
// lets builders construct nested blocks with the same registrations.
type ActionBuilder func(factory *ActionFactory, config ActionConfig) (Action, error)

// NewActionFactory creates a new action factory with the built-in builders.
func NewActionFactory() *ActionFactory {
	factory := &ActionFactory{
		builders: make(map[string]ActionBuilder),
	}

	factory.Register(KindLog, logActionBuilder)
	factory.Register(KindRaise, raiseActionBuilder)
	factory.Register(KindAssign, assignActionBuilder)
	factory.Register(KindIf, ifActionBuilder)
	factory.Register(KindForeach, foreachActionBuilder)
	factory.Register(KindSend, sendActionBuilder)
	factory.Register(KindCancel, cancelActionBuilder)
	factory.Register(KindScript, scriptActionBuilder)

	return factory
}

// Register registers a builder, replacing any previous one for the type.
func (f *ActionFactory) Register(actionType string, builder ActionBuilder) {
	f.builders[actionType] = builder
}

// Types returns the registered action types in sorted order.
func (f *ActionFactory) Types() []string {
	return slices.Sorted(maps.Keys(f.builders))
}

// Create creates an action from configuration.
func (f *ActionFactory) Create(config ActionConfig) (Action, error) {
	builder, ok := f.builders[config.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, config.Type)
	}

	return builder(f, config)
}

// CreateBlock creates a block from a list of configurations.
func (f *ActionFactory) CreateBlock(configs []ActionConfig) (Block, error) {
	block := make(Block, 0, len(configs))

	for i, config := range configs {
		action, err := f.Create(config)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}

		block = append(block, action)
	}

	return block, nil
}

func logActionBuilder(_ *ActionFactory, config ActionConfig) (Action, error) {
	params := NewParamExtractor(config.Params)

	label, err := params.GetString("label", false)
	if err != nil {
		return nil, err
	}

	expr, err := params.GetString("expr", false)
	if err != nil {
		return nil, err
	}

	return NewLog(label, expr), nil
}

func raiseActionBuilder(_ *ActionFactory, config ActionConfig) (Action, error) {
	name, err := NewParamExtractor(config.Params).GetString("event", true)
	if err != nil {
		return nil, err
	}

	return NewRaise(name)
}

func assignActionBuilder(_ *ActionFactory, config ActionConfig) (Action, error) {
	params := NewParamExtractor(config.Params)

	location, err := params.GetString("location", true)
	if err != nil {
		return nil, err
	}

	if value, ok := params.Get("value"); ok {
		if params.Has("expr") {
			return nil, invalid(KindAssign, "expr and value are mutually exclusive")
		}

		return NewAssignValue(location, value)
	}

	expr, err := params.GetString("expr", true)
	if err != nil {
		return nil, err
	}

	return NewAssign(location, expr)
}

func ifActionBuilder(factory *ActionFactory, config ActionConfig) (Action, error) {
	branches := make([]Branch, 0, len(config.Branches))

	for i, branchConfig := range config.Branches {
		block, err := factory.CreateBlock(branchConfig.Actions)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}

		branches = append(branches, Branch{Cond: branchConfig.Cond, Actions: block})
	}

	otherwise, err := factory.CreateBlock(config.Else)
	if err != nil {
		return nil, fmt.Errorf("else: %w", err)
	}

	return NewIf(branches, otherwise...)
}

func foreachActionBuilder(factory *ActionFactory, config ActionConfig) (Action, error) {
	params := NewParamExtractor(config.Params)

	array, err := params.GetString("array", true)
	if err != nil {
		return nil, err
	}

	item, err := params.GetString("item", true)
	if err != nil {
		return nil, err
	}

	index, err := params.GetString("index", false)
	if err != nil {
		return nil, err
	}

	block, err := factory.CreateBlock(config.Actions)
	if err != nil {
		return nil, err
	}

	return NewForeach(array, item, index, block...)
}

func sendActionBuilder(_ *ActionFactory, config ActionConfig) (Action, error) {
	params := NewParamExtractor(config.Params)

	var cfg SendConfig

	fields := []struct {
		key string
		dst *string
	}{
		{"event", &cfg.Event},
		{"eventexpr", &cfg.EventExpr},
		{"target", &cfg.Target},
		{"targetexpr", &cfg.TargetExpr},
		{"type", &cfg.Type},
		{"typeexpr", &cfg.TypeExpr},
		{"id", &cfg.ID},
		{"idlocation", &cfg.IDLocation},
		{"delay", &cfg.Delay},
		{"delayexpr", &cfg.DelayExpr},
		{"content", &cfg.Content},
		{"contentexpr", &cfg.ContentExpr},
	}

	for _, field := range fields {
		value, err := params.GetString(field.key, false)
		if err != nil {
			return nil, err
		}

		*field.dst = value
	}

	namelist, err := params.GetStringSlice("namelist", false)
	if err != nil {
		return nil, err
	}

	cfg.Namelist = namelist

	paramMaps, err := params.GetMapSlice("params")
	if err != nil {
		return nil, err
	}

	for i, raw := range paramMaps {
		paramFields := NewParamExtractor(raw)

		name, err := paramFields.GetString("name", true)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}

		expr, err := paramFields.GetString("expr", false)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}

		location, err := paramFields.GetString("location", false)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}

		cfg.Params = append(cfg.Params, Param{Name: name, Expr: expr, Location: location})
	}

	return NewSend(cfg)
}

func cancelActionBuilder(_ *ActionFactory, config ActionConfig) (Action, error) {
	params := NewParamExtractor(config.Params)

	sendID, err := params.GetString("sendid", false)
	if err != nil {
		return nil, err
	}

	sendIDExpr, err := params.GetString("sendidexpr", false)
	if err != nil {
		return nil, err
	}

	return NewCancel(sendID, sendIDExpr)
}

func scriptActionBuilder(_ *ActionFactory, config ActionConfig) (Action, error) {
	src, err := NewParamExtractor(config.Params).GetString("src", true)
	if err != nil {
		return nil, err
	}

	return NewScript(src)
}

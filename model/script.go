package model

import (
	"context"
	"strings"
)

// Script runs a block of datamodel code.
type Script struct {
	src string
}

// NewScript creates a script action.
func NewScript(src string) (*Script, error) {
	if strings.TrimSpace(src) == "" {
		return nil, invalid(KindScript, "script body is required")
	}

	return &Script{src: src}, nil
}

func (a *Script) Kind() string {
	return KindScript
}

func (a *Script) Execute(ctx context.Context, rt Runtime) error {
	err := rt.Datamodel().Execute(ctx, a.src)
	if err != nil {
		return fail(ctx, rt, evalFailure(KindScript, firstLine(a.src), err))
	}

	return nil
}

func firstLine(src string) string {
	src = strings.TrimSpace(src)
	if idx := strings.IndexByte(src, '\n'); idx >= 0 {
		return src[:idx] + " ..."
	}

	return src
}

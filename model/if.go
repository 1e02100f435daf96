package model

import (
	"context"
	"strings"
)

// Branch is one if/elseif arm: a condition and the block it guards.
type Branch struct {
	Cond    string
	Actions []Action
}

// If runs the block of the first branch whose condition holds, or the else
// block when none does.
type If struct {
	branches  []Branch
	otherwise []Action
}

// NewIf creates a conditional. The first branch is the if arm, the rest are
// elseif arms; otherwise is the else block and may be empty.
func NewIf(branches []Branch, otherwise ...Action) (*If, error) {
	if len(branches) == 0 {
		return nil, invalid(KindIf, "at least one branch is required")
	}

	owned := make([]Branch, len(branches))

	for i, branch := range branches {
		if strings.TrimSpace(branch.Cond) == "" {
			return nil, invalid(KindIf, "branch %d: cond is required", i)
		}

		owned[i] = Branch{
			Cond:    branch.Cond,
			Actions: append([]Action(nil), branch.Actions...),
		}
	}

	return &If{
		branches:  owned,
		otherwise: append([]Action(nil), otherwise...),
	}, nil
}

func (a *If) Kind() string {
	return KindIf
}

// Execute evaluates the conditions in order. A condition that fails to
// evaluate fails the whole conditional and no branch runs.
func (a *If) Execute(ctx context.Context, rt Runtime) error {
	dm := rt.Datamodel()

	for _, branch := range a.branches {
		ok, err := dm.EvaluateBool(ctx, branch.Cond)
		if err != nil {
			return fail(ctx, rt, evalFailure(KindIf, branch.Cond, err))
		}

		if ok {
			return ExecuteBlock(ctx, rt, branch.Actions...)
		}
	}

	return ExecuteBlock(ctx, rt, a.otherwise...)
}

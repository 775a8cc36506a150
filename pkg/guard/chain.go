package guard

import (
	"context"
	"fmt"
)

// Chain evaluates an ordered list of guards as a single two-phase unit.
type Chain struct {
	guards []Guard
}

// NewChain builds a chain that evaluates guards in the given order —
// callers compose set-scope guards ahead of wallet-scope guards via
// Manager.EffectiveChain, never by sorting inside Chain itself.
func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// reservedToken pairs a guard name with the token it returned, so rollback
// can invoke Release without re-deriving which guard produced which token.
type reservedToken struct {
	guard Guard
	token string
}

// Check runs every guard's non-mutating Check and returns the first
// failure, or allowed=true with the full list of guard names that passed.
// Used for simulate-style pre-checks that must not touch storage counters.
func (c *Chain) Check(ctx context.Context, gctx Context) (allowed bool, reason string, passed []string, err error) {
	for _, g := range c.guards {
		result, cerr := g.Check(ctx, gctx)
		if cerr != nil {
			return false, "", passed, cerr
		}
		if !result.Allowed {
			return false, result.Reason, passed, nil
		}
		passed = append(passed, g.Name())
	}
	return true, "", passed, nil
}

// Reserve calls Reserve on each guard in order, accumulating tokens. On the
// first failure, every prior token is released in reverse order before the
// error is returned — callers never see a half-reserved chain.
func (c *Chain) Reserve(ctx context.Context, gctx Context) ([]string, []string, error) {
	var reserved []reservedToken
	var passedNames []string

	for _, g := range c.guards {
		token, err := g.Reserve(ctx, gctx)
		if err != nil {
			c.rollback(ctx, reserved)
			return nil, nil, fmt.Errorf("guard chain: %w", err)
		}
		reserved = append(reserved, reservedToken{guard: g, token: token})
		passedNames = append(passedNames, g.Name())
	}

	tokens := make([]string, len(reserved))
	for i, rt := range reserved {
		tokens[i] = rt.token
	}
	return tokens, passedNames, nil
}

func (c *Chain) rollback(ctx context.Context, reserved []reservedToken) {
	for i := len(reserved) - 1; i >= 0; i-- {
		_ = reserved[i].guard.Release(ctx, reserved[i].token)
	}
}

// Commit finalizes every token produced by a prior Reserve call, in order.
// tokens must align positionally with the chain's guard order.
func (c *Chain) Commit(ctx context.Context, tokens []string) error {
	for i, g := range c.guards {
		if i >= len(tokens) {
			break
		}
		if err := g.Commit(ctx, tokens[i]); err != nil {
			return fmt.Errorf("guard chain: commit %s: %w", g.Name(), err)
		}
	}
	return nil
}

// Release undoes every token produced by a prior Reserve call. Guards'
// Release implementations must tolerate being called on an already-released
// token, since rollback paths may overlap with an explicit caller Release.
func (c *Chain) Release(ctx context.Context, tokens []string) error {
	var firstErr error
	for i, g := range c.guards {
		if i >= len(tokens) {
			break
		}
		if err := g.Release(ctx, tokens[i]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("guard chain: release %s: %w", g.Name(), err)
		}
	}
	return firstErr
}

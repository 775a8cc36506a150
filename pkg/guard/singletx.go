package guard

import (
	"context"
	"fmt"
)

// SingleTxConfig bounds a single payment's amount. Zero MaxAmount disables
// the upper bound.
type SingleTxConfig struct {
	Name      string
	MinAmount int64
	MaxAmount int64
}

// SingleTxGuard is a pure check: no reservation state, min_amount <= amount
// <= max_amount. Reserve/Commit/Release are trivial pass-throughs since
// there is nothing to roll back.
type SingleTxGuard struct {
	cfg SingleTxConfig
}

func NewSingleTxGuard(cfg SingleTxConfig) *SingleTxGuard {
	return &SingleTxGuard{cfg: cfg}
}

func (g *SingleTxGuard) Name() string { return g.cfg.Name }

func (g *SingleTxGuard) evaluate(gctx Context) Result {
	amount := gctx.Amount.Atomic
	if amount < g.cfg.MinAmount {
		return Result{Allowed: false, Reason: fmt.Sprintf("single-tx guard %q: amount below minimum %d", g.cfg.Name, g.cfg.MinAmount)}
	}
	if g.cfg.MaxAmount > 0 && amount > g.cfg.MaxAmount {
		return Result{Allowed: false, Reason: fmt.Sprintf("single-tx guard %q: amount exceeds max %d", g.cfg.Name, g.cfg.MaxAmount)}
	}
	return Result{Allowed: true}
}

func (g *SingleTxGuard) Check(_ context.Context, gctx Context) (Result, error) {
	return g.evaluate(gctx), nil
}

func (g *SingleTxGuard) Reserve(_ context.Context, gctx Context) (string, error) {
	result := g.evaluate(gctx)
	if !result.Allowed {
		return "", fmt.Errorf("%w: %s", errGuardRejected(g.cfg.Name), result.Reason)
	}
	tok := Token{Version: 1, Guard: g.cfg.Name, WalletID: gctx.WalletID, Amount: gctx.Amount.Atomic}
	return tok.Encode()
}

func (g *SingleTxGuard) Commit(_ context.Context, token string) error {
	_, err := DecodeToken(token)
	return err
}

func (g *SingleTxGuard) Release(_ context.Context, token string) error {
	_, err := DecodeToken(token)
	return err
}

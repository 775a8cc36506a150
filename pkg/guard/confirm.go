package guard

import (
	"context"
	"fmt"
)

// ConfirmCallback is an operator-supplied human-in-the-loop hook. It
// receives the payment context and returns true to approve.
type ConfirmCallback func(ctx context.Context, gctx Context) (bool, error)

// ConfirmConfig declares when ConfirmGuard escalates to the callback.
type ConfirmConfig struct {
	Name          string
	AlwaysConfirm bool
	Threshold     int64 // atomic units; amount >= Threshold also escalates
}

// ConfirmGuard calls an operator-supplied callback for payments that meet
// its escalation criteria. Without a callback configured, any payment that
// would escalate is blocked outright with a reason a caller can surface to
// a human reviewer, rather than silently approved.
type ConfirmGuard struct {
	cfg      ConfirmConfig
	callback ConfirmCallback
}

func NewConfirmGuard(cfg ConfirmConfig, callback ConfirmCallback) *ConfirmGuard {
	return &ConfirmGuard{cfg: cfg, callback: callback}
}

func (g *ConfirmGuard) Name() string { return g.cfg.Name }

func (g *ConfirmGuard) needsConfirmation(gctx Context) bool {
	return g.cfg.AlwaysConfirm || gctx.Amount.Atomic >= g.cfg.Threshold
}

func (g *ConfirmGuard) evaluate(ctx context.Context, gctx Context) (Result, error) {
	if !g.needsConfirmation(gctx) {
		return Result{Allowed: true}, nil
	}

	if g.callback == nil {
		return Result{Allowed: false, Reason: fmt.Sprintf("confirm guard %q: confirmation required but no reviewer callback is configured", g.cfg.Name)}, nil
	}

	approved, err := g.callback(ctx, gctx)
	if err != nil {
		return Result{}, err
	}
	if !approved {
		return Result{Allowed: false, Reason: fmt.Sprintf("confirm guard %q: reviewer declined", g.cfg.Name)}, nil
	}
	return Result{Allowed: true}, nil
}

func (g *ConfirmGuard) Check(ctx context.Context, gctx Context) (Result, error) {
	return g.evaluate(ctx, gctx)
}

func (g *ConfirmGuard) Reserve(ctx context.Context, gctx Context) (string, error) {
	result, err := g.evaluate(ctx, gctx)
	if err != nil {
		return "", err
	}
	if !result.Allowed {
		return "", fmt.Errorf("%w: %s", errGuardRejected(g.cfg.Name), result.Reason)
	}
	tok := Token{Version: 1, Guard: g.cfg.Name, WalletID: gctx.WalletID}
	return tok.Encode()
}

func (g *ConfirmGuard) Commit(_ context.Context, token string) error {
	_, err := DecodeToken(token)
	return err
}

func (g *ConfirmGuard) Release(_ context.Context, token string) error {
	_, err := DecodeToken(token)
	return err
}

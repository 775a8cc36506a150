package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/cedrospay/agentpay/pkg/storage"
)

// RateCap pairs a calendar window with the max successful payments allowed in it.
type RateCap struct {
	Window    Window // WindowHourly/WindowDaily reused for minute-granularity via MinuteWindow below
	MaxPerWindow int64
}

// MinuteWindow is a rate-limit-only window granularity; budget windows stop
// at hourly, but rate limiting routinely needs per-minute caps.
const MinuteWindow Window = "minute"

// RateLimitConfig declares the fixed-window caps for a RateLimitGuard.
type RateLimitConfig struct {
	Name    string
	Windows []RateCap
}

// RateLimitGuard enforces fixed-window payment counters keyed
// ratelimit:{wallet}:{name}:{window}:{bucket}. Unlike BudgetGuard, Commit is
// a no-op: the cost of a rate-limited slot is paid entirely at reserve time.
type RateLimitGuard struct {
	cfg   RateLimitConfig
	store storage.Store
}

func NewRateLimitGuard(cfg RateLimitConfig, store storage.Store) *RateLimitGuard {
	return &RateLimitGuard{cfg: cfg, store: store}
}

func (g *RateLimitGuard) Name() string { return g.cfg.Name }

func rateBucket(window Window, t time.Time) string {
	switch window {
	case MinuteWindow:
		return t.UTC().Format("200601021504")
	default:
		return bucketSuffix(window, t)
	}
}

func rateKey(wallet, name string, window Window, bucket string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s:%s", wallet, name, window, bucket)
}

func (g *RateLimitGuard) Check(ctx context.Context, gctx Context) (Result, error) {
	for _, w := range g.cfg.Windows {
		bucket := rateBucket(w.Window, gctx.Now)
		count, err := g.store.AtomicAdd(ctx, storage.CollReservations, rateKey(gctx.WalletID, g.cfg.Name, w.Window, bucket), 0)
		if err != nil {
			return Result{}, err
		}
		if count+1 > w.MaxPerWindow {
			return Result{Allowed: false, Reason: fmt.Sprintf("rate limit guard %q: max %d per %s exceeded", g.cfg.Name, w.MaxPerWindow, w.Window)}, nil
		}
	}
	return Result{Allowed: true}, nil
}

func (g *RateLimitGuard) Reserve(ctx context.Context, gctx Context) (string, error) {
	incremented := make([]struct {
		window Window
		bucket string
	}, 0, len(g.cfg.Windows))

	rollback := func() {
		for _, w := range incremented {
			_, _ = g.store.AtomicAdd(ctx, storage.CollReservations, rateKey(gctx.WalletID, g.cfg.Name, w.window, w.bucket), -1)
		}
	}

	for _, w := range g.cfg.Windows {
		bucket := rateBucket(w.Window, gctx.Now)
		newCount, err := g.store.AtomicAdd(ctx, storage.CollReservations, rateKey(gctx.WalletID, g.cfg.Name, w.Window, bucket), 1)
		if err != nil {
			rollback()
			return "", err
		}
		incremented = append(incremented, struct {
			window Window
			bucket string
		}{w.Window, bucket})

		if newCount > w.MaxPerWindow {
			rollback()
			return "", fmt.Errorf("%w: rate limit guard %q: max %d per %s exceeded", errGuardRejected(g.cfg.Name), g.cfg.Name, w.MaxPerWindow, w.Window)
		}
	}

	tok := Token{Version: 1, Guard: g.cfg.Name, WalletID: gctx.WalletID, BucketAt: gctx.Now}
	return tok.Encode()
}

// Commit is a no-op: the increment already happened at reserve time.
func (g *RateLimitGuard) Commit(ctx context.Context, token string) error {
	_, err := DecodeToken(token)
	return err
}

func (g *RateLimitGuard) Release(ctx context.Context, token string) error {
	tok, err := DecodeToken(token)
	if err != nil {
		return err
	}
	for _, w := range g.cfg.Windows {
		bucket := rateBucket(w.Window, tok.BucketAt)
		if _, err := g.store.AtomicAdd(ctx, storage.CollReservations, rateKey(tok.WalletID, g.cfg.Name, w.Window, bucket), -1); err != nil {
			return err
		}
	}
	return nil
}

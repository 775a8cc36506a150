package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/cedrospay/agentpay/pkg/storage"
)

// Window is a budget enforcement period.
type Window string

const (
	WindowHourly Window = "hourly"
	WindowDaily  Window = "daily"
	WindowTotal  Window = "total"
)

// BudgetConfig declares the per-window spending caps, in the asset's
// smallest unit (atomic), for a BudgetGuard instance.
type BudgetConfig struct {
	Name        string
	HourlyLimit int64 // 0 disables the window
	DailyLimit  int64
	TotalLimit  int64
}

// BudgetGuard enforces windowed spending caps using calendar buckets:
// budget:{wallet}:{name}:{window}[:bucket] for committed spend and a
// companion :reserved suffix for provisional reservations. reserve adds to
// :reserved first, then checks main+reserved against the limit, rolling
// back on overage — mirroring the "reserve, re-check, maybe undo" pattern
// every guard in this package follows.
type BudgetGuard struct {
	cfg   BudgetConfig
	store storage.Store
}

// NewBudgetGuard constructs a BudgetGuard bound to its storage backend.
func NewBudgetGuard(cfg BudgetConfig, store storage.Store) *BudgetGuard {
	return &BudgetGuard{cfg: cfg, store: store}
}

func (g *BudgetGuard) Name() string { return g.cfg.Name }

func (g *BudgetGuard) windows() []struct {
	window Window
	limit  int64
} {
	var out []struct {
		window Window
		limit  int64
	}
	if g.cfg.HourlyLimit > 0 {
		out = append(out, struct {
			window Window
			limit  int64
		}{WindowHourly, g.cfg.HourlyLimit})
	}
	if g.cfg.DailyLimit > 0 {
		out = append(out, struct {
			window Window
			limit  int64
		}{WindowDaily, g.cfg.DailyLimit})
	}
	if g.cfg.TotalLimit > 0 {
		out = append(out, struct {
			window Window
			limit  int64
		}{WindowTotal, g.cfg.TotalLimit})
	}
	return out
}

// bucketSuffix returns the calendar bucket suffix for a window at time t,
// e.g. daily -> "20260730", hourly -> "2026073014", total -> "" (no bucket).
func bucketSuffix(window Window, t time.Time) string {
	switch window {
	case WindowHourly:
		return t.UTC().Format("2006010215")
	case WindowDaily:
		return t.UTC().Format("20060102")
	default:
		return ""
	}
}

func mainKey(wallet, name string, window Window, bucket string) string {
	if bucket == "" {
		return fmt.Sprintf("budget:%s:%s:%s", wallet, name, window)
	}
	return fmt.Sprintf("budget:%s:%s:%s:%s", wallet, name, window, bucket)
}

func reservedKey(wallet, name string, window Window, bucket string) string {
	return mainKey(wallet, name, window, bucket) + ":reserved"
}

func (g *BudgetGuard) Check(ctx context.Context, gctx Context) (Result, error) {
	amount := gctx.Amount.Atomic
	for _, w := range g.windows() {
		bucket := bucketSuffix(w.window, gctx.Now)
		main, err := g.readCounter(ctx, mainKey(gctx.WalletID, g.cfg.Name, w.window, bucket))
		if err != nil {
			return Result{}, err
		}
		reserved, err := g.readCounter(ctx, reservedKey(gctx.WalletID, g.cfg.Name, w.window, bucket))
		if err != nil {
			return Result{}, err
		}
		if main+reserved+amount > w.limit {
			return Result{Allowed: false, Reason: fmt.Sprintf("budget guard %q: %s limit of %d exceeded", g.cfg.Name, w.window, w.limit)}, nil
		}
	}
	return Result{Allowed: true}, nil
}

func (g *BudgetGuard) readCounter(ctx context.Context, key string) (int64, error) {
	return g.store.AtomicAdd(ctx, storage.CollReservations, key, 0)
}

// Reserve atomically increments each window's :reserved counter, then
// checks main+reserved against the limit. On the first window that would
// be exceeded, all increments made so far by this call are rolled back and
// an error is returned — the chain above rolls back any OTHER guards'
// tokens separately.
func (g *BudgetGuard) Reserve(ctx context.Context, gctx Context) (string, error) {
	amount := gctx.Amount.Atomic
	windows := g.windows()

	incremented := make([]struct {
		window Window
		bucket string
	}, 0, len(windows))

	rollback := func() {
		for _, w := range incremented {
			_, _ = g.store.AtomicAdd(ctx, storage.CollReservations, reservedKey(gctx.WalletID, g.cfg.Name, w.window, w.bucket), -amount)
		}
	}

	for _, w := range windows {
		bucket := bucketSuffix(w.window, gctx.Now)
		newReserved, err := g.store.AtomicAdd(ctx, storage.CollReservations, reservedKey(gctx.WalletID, g.cfg.Name, w.window, bucket), amount)
		if err != nil {
			rollback()
			return "", err
		}
		incremented = append(incremented, struct {
			window Window
			bucket string
		}{w.window, bucket})

		main, err := g.readCounter(ctx, mainKey(gctx.WalletID, g.cfg.Name, w.window, bucket))
		if err != nil {
			rollback()
			return "", err
		}
		if main+newReserved > w.limit {
			rollback()
			return "", fmt.Errorf("%w: budget guard %q: %s limit of %d exceeded", errGuardRejected(g.cfg.Name), g.cfg.Name, w.window, w.limit)
		}
	}

	tok := Token{
		Version:   1,
		Guard:     g.cfg.Name,
		WalletID:  gctx.WalletID,
		Amount:    amount,
		AssetCode: gctx.Amount.Asset.Code,
		BucketAt:  gctx.Now,
	}
	return tok.Encode()
}

func (g *BudgetGuard) Commit(ctx context.Context, token string) error {
	tok, err := DecodeToken(token)
	if err != nil {
		return err
	}
	for _, w := range g.windows() {
		bucket := bucketSuffix(w.window, tok.BucketAt)
		if _, err := g.store.AtomicAdd(ctx, storage.CollReservations, mainKey(tok.WalletID, g.cfg.Name, w.window, bucket), tok.Amount); err != nil {
			return err
		}
		if _, err := g.store.AtomicAdd(ctx, storage.CollReservations, reservedKey(tok.WalletID, g.cfg.Name, w.window, bucket), -tok.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (g *BudgetGuard) Release(ctx context.Context, token string) error {
	tok, err := DecodeToken(token)
	if err != nil {
		return err
	}
	for _, w := range g.windows() {
		bucket := bucketSuffix(w.window, tok.BucketAt)
		if _, err := g.store.AtomicAdd(ctx, storage.CollReservations, reservedKey(tok.WalletID, g.cfg.Name, w.window, bucket), -tok.Amount); err != nil {
			return err
		}
	}
	return nil
}

// guardRejectedError lets the chain distinguish an expected reservation
// refusal (rolled back, surfaced as BLOCKED) from an unexpected storage error.
type guardRejectedError struct{ guardName string }

func (e guardRejectedError) Error() string { return "guard rejected: " + e.guardName }

func errGuardRejected(name string) error { return guardRejectedError{guardName: name} }

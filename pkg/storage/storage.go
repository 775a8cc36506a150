// Package storage defines the pluggable key-value contract every guard,
// intent, and ledger component builds on. atomic_add is the only operation
// required to be strictly atomic across concurrent callers — every
// higher-level reservation (budget windows, rate-limit buckets, fund
// reservations) is built by layering it, never by relying on read-modify-write
// at this layer.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/Delete/Update when no record matches.
var ErrNotFound = errors.New("storage: record not found")

// Record is a generic stored document: an opaque JSON-ish value plus the
// bookkeeping fields every collection shares.
type Record struct {
	Key       string
	Value     map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter selects records in Query. Conditions combine with AND; an empty
// Filter matches every record in the collection.
type Filter struct {
	Equals map[string]interface{}
	Limit  int
	Offset int
}

// Store is the pluggable backend contract. Every method takes a collection
// name so a single backend instance can host payments, reservations,
// intents, ledger entries, and CCTP state under logical separation without
// requiring a new Go type per concern.
type Store interface {
	Save(ctx context.Context, collection, key string, value map[string]interface{}) error
	Get(ctx context.Context, collection, key string) (Record, error)
	Delete(ctx context.Context, collection, key string) error
	Query(ctx context.Context, collection string, filter Filter) ([]Record, error)

	// Update merges fields into the existing record's Value. Returns
	// ErrNotFound if the key does not exist — Update never creates.
	Update(ctx context.Context, collection, key string, fields map[string]interface{}) error

	Count(ctx context.Context, collection string, filter Filter) (int, error)
	Clear(ctx context.Context, collection string) error

	// AtomicAdd atomically adds delta to the named counter, creating it at
	// delta if absent, and returns the counter's new value. This is the
	// sole concurrency-safety primitive every guard reservation is built on.
	AtomicAdd(ctx context.Context, collection, key string, delta int64) (int64, error)

	// AcquireLock and ReleaseLock provide best-effort mutual exclusion for
	// operations that cannot be expressed as a single atomic_add (e.g.
	// guard-configuration writes). Implementations may no-op if the backend
	// offers no native locking primitive; callers must not depend on locks
	// for correctness that atomic_add already guarantees.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error

	HealthCheck(ctx context.Context) error
}

// Collection name constants shared across guard, intent, and ledger packages.
const (
	CollGuardConfigs  = "guard_configs"
	CollReservations  = "reservations"   // budget/rate-limit counters (keyed by bucket)
	CollIntents       = "payment_intents"
	CollIntentReserve = "intent_reservations" // per-wallet reserved-amount counters
	CollLedger        = "ledger_entries"
	CollCCTPTransfers = "cctp_transfers"
	CollIdentityCache = "identity_cache"
	CollWTSCache      = "wts_cache"
	CollIdempotency   = "idempotency_keys"
)

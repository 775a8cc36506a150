// Package ledger implements the append-and-mutate event log every payment
// writes to exactly once: PENDING at reservation time, then a single
// terminal status update once the router's adapter resolves.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/storage"
)

// Ledger persists payment.LedgerEntry records. Record creates an entry;
// every subsequent mutation goes through UpdateStatus, which merges
// metadata rather than replacing it, so a concurrent writer's fields are
// never silently dropped.
type Ledger struct {
	store storage.Store
	mu    sync.Mutex // serializes UpdateStatus's read-modify-write
}

// New binds a Ledger to its storage backend.
func New(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends a new entry with a fresh, globally unique ID and the
// given initial status (almost always payment.StatusPending).
func (l *Ledger) Record(ctx context.Context, entry payment.LedgerEntry) (payment.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]interface{})
	}

	value := encodeEntry(entry)
	if err := l.store.Save(ctx, storage.CollLedger, entry.ID, value); err != nil {
		return payment.LedgerEntry{}, fmt.Errorf("ledger: record: %w", err)
	}
	return entry, nil
}

// UpdateStatus is the only mutation path after Record: it sets Status,
// optionally TxHash (left untouched if txHash == ""), and merges
// metadataPatch into the existing metadata as a single logical
// read-modify-write, so an in-progress field update from another caller is
// never lost to a blind overwrite.
func (l *Ledger) UpdateStatus(ctx context.Context, entryID string, status payment.Status, txHash string, metadataPatch map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.store.Get(ctx, storage.CollLedger, entryID)
	if err != nil {
		return fmt.Errorf("ledger: update status: %w", err)
	}

	entry := decodeEntry(rec.Value)
	entry.Status = status
	if txHash != "" {
		entry.TxHash = txHash
	}
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]interface{})
	}
	for k, v := range metadataPatch {
		entry.Metadata[k] = v
	}

	return l.store.Update(ctx, storage.CollLedger, entryID, encodeEntry(entry))
}

// Get retrieves a single ledger entry by ID.
func (l *Ledger) Get(ctx context.Context, entryID string) (payment.LedgerEntry, error) {
	rec, err := l.store.Get(ctx, storage.CollLedger, entryID)
	if err != nil {
		return payment.LedgerEntry{}, err
	}
	return decodeEntry(rec.Value), nil
}

// Query returns entries matching filter, sorted by timestamp descending.
func (l *Ledger) Query(ctx context.Context, filter payment.Filter) ([]payment.LedgerEntry, error) {
	equals := map[string]interface{}{}
	if filter.WalletID != "" {
		equals["wallet_id"] = filter.WalletID
	}
	if filter.WalletSetID != "" {
		equals["wallet_set_id"] = filter.WalletSetID
	}
	if filter.Recipient != "" {
		equals["recipient"] = filter.Recipient
	}
	if filter.EntryType != "" {
		equals["entry_type"] = string(filter.EntryType)
	}
	if filter.Status != "" {
		equals["status"] = string(filter.Status)
	}

	recs, err := l.store.Query(ctx, storage.CollLedger, storage.Filter{Equals: equals, Limit: filter.Limit})
	if err != nil {
		return nil, err
	}

	out := make([]payment.LedgerEntry, 0, len(recs))
	for _, rec := range recs {
		entry := decodeEntry(rec.Value)
		if !filter.FromDate.IsZero() && entry.Timestamp.Before(filter.FromDate) {
			continue
		}
		if !filter.ToDate.IsZero() && entry.Timestamp.After(filter.ToDate) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// ArchivalConfig bounds ArchiveOldPayments: entries older than RetainFor in
// a terminal status are eligible for deletion, batched at BatchSize per
// pass so an archival sweep never holds a single long-running query open.
type ArchivalConfig struct {
	RetainFor time.Duration
	BatchSize int
}

// DefaultArchivalConfig retains 90 days of ledger history, sweeping 500
// entries per pass.
func DefaultArchivalConfig() ArchivalConfig {
	return ArchivalConfig{RetainFor: 90 * 24 * time.Hour, BatchSize: 500}
}

// ArchiveOldPayments deletes COMPLETED and FAILED entries older than
// cfg.RetainFor, up to cfg.BatchSize per call, and returns how many it
// removed. PENDING/PROCESSING entries are never touched regardless of age,
// since an in-flight payment has no terminal record to archive yet.
func (l *Ledger) ArchiveOldPayments(ctx context.Context, cfg ArchivalConfig) (int, error) {
	cutoff := time.Now().Add(-cfg.RetainFor)
	removed := 0

	for _, status := range []payment.Status{payment.StatusCompleted, payment.StatusFailed} {
		entries, err := l.Query(ctx, payment.Filter{Status: status, ToDate: cutoff, Limit: cfg.BatchSize - removed})
		if err != nil {
			return removed, fmt.Errorf("ledger: archive: query %s: %w", status, err)
		}
		for _, entry := range entries {
			if removed >= cfg.BatchSize {
				return removed, nil
			}
			if err := l.store.Delete(ctx, storage.CollLedger, entry.ID); err != nil {
				return removed, fmt.Errorf("ledger: archive: delete %s: %w", entry.ID, err)
			}
			removed++
		}
	}
	return removed, nil
}

// GetTotalSpent sums COMPLETED PAYMENT/TRANSFER entries for a wallet,
// optionally bounded by since.
func (l *Ledger) GetTotalSpent(ctx context.Context, walletID string, since time.Time) (money.Money, error) {
	entries, err := l.Query(ctx, payment.Filter{WalletID: walletID, Status: payment.StatusCompleted, FromDate: since})
	if err != nil {
		return money.Money{}, err
	}

	var total money.Money
	for _, entry := range entries {
		if entry.EntryType != payment.EntryTypePayment && entry.EntryType != payment.EntryTypeTransfer {
			continue
		}
		if total.Asset.Code == "" {
			total = money.Zero(entry.Amount.Asset)
		}
		summed, err := total.Add(entry.Amount)
		if err != nil {
			return money.Money{}, fmt.Errorf("ledger: sum spend: %w", err)
		}
		total = summed
	}
	return total, nil
}

func encodeEntry(entry payment.LedgerEntry) map[string]interface{} {
	return map[string]interface{}{
		"id":            entry.ID,
		"timestamp":     entry.Timestamp.Format(time.RFC3339Nano),
		"wallet_id":     entry.WalletID,
		"wallet_set_id": entry.WalletSetID,
		"recipient":     entry.Recipient,
		"amount_atomic": entry.Amount.Atomic,
		"asset_code":    entry.Amount.Asset.Code,
		"entry_type":    string(entry.EntryType),
		"status":        string(entry.Status),
		"tx_hash":       entry.TxHash,
		"method":        string(entry.Method),
		"purpose":       entry.Purpose,
		"metadata":      entry.Metadata,
	}
}

func decodeEntry(value map[string]interface{}) payment.LedgerEntry {
	entry := payment.LedgerEntry{
		ID:          asString(value["id"]),
		WalletID:    asString(value["wallet_id"]),
		WalletSetID: asString(value["wallet_set_id"]),
		Recipient:   asString(value["recipient"]),
		EntryType:   payment.EntryType(asString(value["entry_type"])),
		Status:      payment.Status(asString(value["status"])),
		TxHash:      asString(value["tx_hash"]),
		Method:      payment.Method(asString(value["method"])),
		Purpose:     asString(value["purpose"]),
	}

	if ts, err := time.Parse(time.RFC3339Nano, asString(value["timestamp"])); err == nil {
		entry.Timestamp = ts
	}

	if assetCode := asString(value["asset_code"]); assetCode != "" {
		if asset, err := money.GetAsset(assetCode); err == nil {
			entry.Amount = money.New(asset, asInt64(value["amount_atomic"]))
		}
	}

	if m, ok := value["metadata"].(map[string]interface{}); ok {
		entry.Metadata = m
	} else {
		entry.Metadata = make(map[string]interface{})
	}

	return entry
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

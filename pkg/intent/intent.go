// Package intent implements authorize-then-capture payments: a Create call
// reserves funds and guard quota without executing anything; a later
// Confirm releases the reservation and drives the actual payment, so the
// reservation window never double-counts against available balance.
package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/storage"
)

// Status is the Payment Intent lifecycle state.
type Status string

const (
	StatusRequiresConfirmation Status = "REQUIRES_CONFIRMATION"
	StatusProcessing           Status = "PROCESSING"
	StatusSucceeded            Status = "SUCCEEDED"
	StatusCanceled             Status = "CANCELED"
	StatusFailed               Status = "FAILED"
)

// Intent mirrors the persisted record described by the payment intent's
// fields: a wallet's promise to pay a recipient, pending confirmation.
type Intent struct {
	ID              string
	WalletID        string
	Recipient       string
	Amount          money.Money
	Status          Status
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Purpose         string
	CancelReason    string
	ReservedAmount  money.Money
	Metadata        map[string]interface{}
	ClientSecret    string
}

// Simulator is the narrow slice of the payment facade an Intent needs to
// pre-flight a create: guard checks plus router feasibility, without
// executing anything.
type Simulator interface {
	Simulate(ctx context.Context, req payment.Request) (payment.SimulationResult, error)
}

// Executor runs the real payment once an intent is confirmed.
type Executor interface {
	Pay(ctx context.Context, req payment.Request) (payment.Result, error)
}

var (
	// ErrNotFound indicates no intent exists for the given ID.
	ErrNotFound = fmt.Errorf("intent: not found")
	// ErrWrongStatus indicates the intent is not in the state an operation requires.
	ErrWrongStatus = fmt.Errorf("intent: wrong status for operation")
	// ErrExpired indicates the intent's expires_at has passed.
	ErrExpired = fmt.Errorf("intent: expired")
	// ErrInsufficientBalance indicates the wallet's available balance cannot cover the amount.
	ErrInsufficientBalance = fmt.Errorf("intent: insufficient available balance")
)

// BalanceSource reports a wallet's total provider balance for a given
// asset, independent of any intent reservations.
type BalanceSource interface {
	AvailableBalance(ctx context.Context, walletID, assetCode string) (money.Money, error)
}

// Service implements the two-phase intent lifecycle. Reservations live in
// storage.CollIntentReserve, a counter keyed per wallet+asset that is
// entirely independent of the guard chain's own reservation counters —
// GetReservedTotal composes with a wallet's raw provider balance to
// produce AvailableBalance without the guard chain ever being consulted.
type Service struct {
	store     storage.Store
	sim       Simulator
	exec      Executor
	balances  BalanceSource
	expiresIn time.Duration
}

// New builds an intent Service. expiresIn is the default REQUIRES_CONFIRMATION
// window applied to every created intent.
func New(store storage.Store, sim Simulator, exec Executor, balances BalanceSource, expiresIn time.Duration) *Service {
	if expiresIn <= 0 {
		expiresIn = 15 * time.Minute
	}
	return &Service{store: store, sim: sim, exec: exec, balances: balances, expiresIn: expiresIn}
}

func reserveKey(walletID, assetCode string) string {
	return fmt.Sprintf("intent_reserve:%s:%s", walletID, assetCode)
}

// GetReservedTotal returns the sum reserved across all of a wallet's
// open intents for an asset.
func (s *Service) GetReservedTotal(ctx context.Context, walletID, assetCode string) (int64, error) {
	total, err := s.store.AtomicAdd(ctx, storage.CollIntentReserve, reserveKey(walletID, assetCode), 0)
	if err != nil {
		return 0, fmt.Errorf("intent: reserved total: %w", err)
	}
	return total, nil
}

// AvailableBalance is the wallet's raw balance minus everything currently
// reserved by open intents.
func (s *Service) AvailableBalance(ctx context.Context, walletID string, asset money.Asset) (money.Money, error) {
	raw, err := s.balances.AvailableBalance(ctx, walletID, asset.Code)
	if err != nil {
		return money.Money{}, err
	}
	reserved, err := s.GetReservedTotal(ctx, walletID, asset.Code)
	if err != nil {
		return money.Money{}, err
	}
	return raw.Sub(money.New(asset, reserved))
}

// Create validates the prospective payment via Simulate (guards + router),
// reserves funds atomically against available balance, and persists the
// intent in REQUIRES_CONFIRMATION.
func (s *Service) Create(ctx context.Context, req payment.Request) (Intent, error) {
	sim, err := s.sim.Simulate(ctx, req)
	if err != nil {
		return Intent{}, fmt.Errorf("intent: create: simulate: %w", err)
	}
	if !sim.WouldSucceed {
		return Intent{}, fmt.Errorf("intent: create: would not succeed: %s", sim.Reason)
	}

	available, err := s.AvailableBalance(ctx, req.WalletID, req.Amount.Asset)
	if err != nil {
		return Intent{}, fmt.Errorf("intent: create: available balance: %w", err)
	}
	if available.Atomic < req.Amount.Atomic {
		return Intent{}, fmt.Errorf("%w: available=%s requested=%s", ErrInsufficientBalance, available.ToMajor(), req.Amount.ToMajor())
	}

	key := reserveKey(req.WalletID, req.Amount.Asset.Code)
	newTotal, err := s.store.AtomicAdd(ctx, storage.CollIntentReserve, key, req.Amount.Atomic)
	if err != nil {
		return Intent{}, fmt.Errorf("intent: create: reserve: %w", err)
	}

	// Re-check under the post-increment total: a concurrent Create could
	// have raced us between the balance read above and this increment.
	rawBalance, err := s.balances.AvailableBalance(ctx, req.WalletID, req.Amount.Asset.Code)
	if err != nil {
		_, _ = s.store.AtomicAdd(ctx, storage.CollIntentReserve, key, -req.Amount.Atomic)
		return Intent{}, err
	}
	if newTotal > rawBalance.Atomic {
		_, _ = s.store.AtomicAdd(ctx, storage.CollIntentReserve, key, -req.Amount.Atomic)
		return Intent{}, fmt.Errorf("%w: available=%s requested=%s", ErrInsufficientBalance, rawBalance.Sub(money.New(req.Amount.Asset, newTotal-req.Amount.Atomic)), req.Amount)
	}

	now := time.Now()
	in := Intent{
		ID:             uuid.New().String(),
		WalletID:       req.WalletID,
		Recipient:      req.Recipient,
		Amount:         req.Amount,
		Status:         StatusRequiresConfirmation,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.expiresIn),
		Purpose:        req.Purpose,
		ReservedAmount: req.Amount,
		Metadata:       req.Metadata,
		ClientSecret:   uuid.New().String(),
	}
	if in.Metadata == nil {
		in.Metadata = make(map[string]interface{})
	}

	if err := s.store.Save(ctx, storage.CollIntents, in.ID, encode(in)); err != nil {
		_, _ = s.store.AtomicAdd(ctx, storage.CollIntentReserve, key, -req.Amount.Atomic)
		return Intent{}, fmt.Errorf("intent: create: persist: %w", err)
	}
	return in, nil
}

// Get loads an intent by ID.
func (s *Service) Get(ctx context.Context, intentID string) (Intent, error) {
	rec, err := s.store.Get(ctx, storage.CollIntents, intentID)
	if err == storage.ErrNotFound {
		return Intent{}, ErrNotFound
	}
	if err != nil {
		return Intent{}, err
	}
	return decode(rec.Value)
}

func (s *Service) releaseReservation(ctx context.Context, in Intent) {
	key := reserveKey(in.WalletID, in.ReservedAmount.Asset.Code)
	_, _ = s.store.AtomicAdd(ctx, storage.CollIntentReserve, key, -in.ReservedAmount.Atomic)
}

// Confirm transitions REQUIRES_CONFIRMATION → PROCESSING, releases the
// reservation before the real pay() so the guard chain inside it sees true
// balance, then executes. Success → SUCCEEDED; failure or error → FAILED,
// with execution errors re-raised to the caller.
func (s *Service) Confirm(ctx context.Context, intentID string) (payment.Result, error) {
	in, err := s.Get(ctx, intentID)
	if err != nil {
		return payment.Result{}, err
	}
	if in.Status != StatusRequiresConfirmation {
		return payment.Result{}, fmt.Errorf("%w: intent %s is %s", ErrWrongStatus, intentID, in.Status)
	}
	if time.Now().After(in.ExpiresAt) {
		s.releaseReservation(ctx, in)
		_ = s.store.Update(ctx, storage.CollIntents, intentID, map[string]interface{}{"status": string(StatusFailed), "cancel_reason": "expired"})
		return payment.Result{}, ErrExpired
	}

	s.releaseReservation(ctx, in)
	if err := s.store.Update(ctx, storage.CollIntents, intentID, map[string]interface{}{"status": string(StatusProcessing)}); err != nil {
		return payment.Result{}, fmt.Errorf("intent: confirm: mark processing: %w", err)
	}

	result, err := s.exec.Pay(ctx, payment.Request{
		WalletID:  in.WalletID,
		Recipient: in.Recipient,
		Amount:    in.Amount,
		Purpose:   in.Purpose,
		Metadata:  in.Metadata,
	})
	if err != nil {
		_ = s.store.Update(ctx, storage.CollIntents, intentID, map[string]interface{}{"status": string(StatusFailed), "cancel_reason": err.Error()})
		return payment.Result{}, fmt.Errorf("intent: confirm: pay: %w", err)
	}

	finalStatus := StatusFailed
	if result.Success {
		finalStatus = StatusSucceeded
	}
	_ = s.store.Update(ctx, storage.CollIntents, intentID, map[string]interface{}{"status": string(finalStatus)})
	return result, nil
}

// Cancel is only valid from REQUIRES_CONFIRMATION. It releases the
// reservation and records reason.
func (s *Service) Cancel(ctx context.Context, intentID, reason string) (Intent, error) {
	in, err := s.Get(ctx, intentID)
	if err != nil {
		return Intent{}, err
	}
	if in.Status != StatusRequiresConfirmation {
		return Intent{}, fmt.Errorf("%w: intent %s is %s", ErrWrongStatus, intentID, in.Status)
	}

	s.releaseReservation(ctx, in)
	if err := s.store.Update(ctx, storage.CollIntents, intentID, map[string]interface{}{
		"status":        string(StatusCanceled),
		"cancel_reason": reason,
	}); err != nil {
		return Intent{}, fmt.Errorf("intent: cancel: %w", err)
	}

	in.Status = StatusCanceled
	in.CancelReason = reason
	return in, nil
}

func encode(in Intent) map[string]interface{} {
	return map[string]interface{}{
		"id":              in.ID,
		"wallet_id":       in.WalletID,
		"recipient":       in.Recipient,
		"amount_atomic":   in.Amount.Atomic,
		"asset_code":      in.Amount.Asset.Code,
		"status":          string(in.Status),
		"created_at":      in.CreatedAt.Format(time.RFC3339Nano),
		"expires_at":      in.ExpiresAt.Format(time.RFC3339Nano),
		"purpose":         in.Purpose,
		"cancel_reason":   in.CancelReason,
		"reserved_atomic": in.ReservedAmount.Atomic,
		"metadata":        in.Metadata,
		"client_secret":   in.ClientSecret,
	}
}

func decode(v map[string]interface{}) (Intent, error) {
	assetCode, _ := v["asset_code"].(string)
	asset, err := money.GetAsset(assetCode)
	if err != nil {
		return Intent{}, fmt.Errorf("intent: decode: %w", err)
	}

	in := Intent{
		ID:           asStr(v["id"]),
		WalletID:     asStr(v["wallet_id"]),
		Recipient:    asStr(v["recipient"]),
		Amount:       money.New(asset, asI64(v["amount_atomic"])),
		Status:       Status(asStr(v["status"])),
		Purpose:      asStr(v["purpose"]),
		CancelReason: asStr(v["cancel_reason"]),
		ReservedAmount: money.New(asset, asI64(v["reserved_atomic"])),
		ClientSecret:   asStr(v["client_secret"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, asStr(v["created_at"])); err == nil {
		in.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, asStr(v["expires_at"])); err == nil {
		in.ExpiresAt = ts
	}
	if m, ok := v["metadata"].(map[string]interface{}); ok {
		in.Metadata = m
	} else {
		in.Metadata = make(map[string]interface{})
	}
	return in, nil
}

func asStr(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asI64(v interface{}) int64 {
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

package guard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cedrospay/agentpay/pkg/storage"
)

// ScopeType distinguishes a per-wallet guard configuration from one shared
// across an entire wallet set.
type ScopeType string

const (
	ScopeWallet    ScopeType = "wallet"
	ScopeWalletSet ScopeType = "wallet_set"
)

// GuardKind tags which concrete guard a Config describes.
type GuardKind string

const (
	KindBudget      GuardKind = "BUDGET"
	KindSingleTx    GuardKind = "SINGLE_TX"
	KindRecipient   GuardKind = "RECIPIENT"
	KindRateLimit   GuardKind = "RATE_LIMIT"
	KindConfirm     GuardKind = "CONFIRM"
)

// Config is the persisted, tagged representation of a single guard. Only
// the fields relevant to Type are populated; it round-trips through
// storage.Store as part of a wallet's or wallet set's guard list.
type Config struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type GuardKind `json:"type"`

	Budget    *BudgetConfig    `json:"budget,omitempty"`
	SingleTx  *SingleTxConfig  `json:"single_tx,omitempty"`
	Recipient *RecipientConfig `json:"recipient,omitempty"`
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty"`
	Confirm   *ConfirmConfig   `json:"confirm,omitempty"`
}

// configRecord is the shape persisted under a single storage key per scope.
type configRecord struct {
	Guards []Config `json:"guards"`
}

func scopeKey(scopeType ScopeType, scopeID string) string {
	return fmt.Sprintf("%s:%s", scopeType, scopeID)
}

// Manager persists and builds guard chains from Config records. Guard
// configuration is always read fresh per payment, never cached, so an
// operator's live config change takes effect on the very next call.
type Manager struct {
	store           storage.Store
	confirmCallback ConfirmCallback
}

// NewManager binds a Manager to its storage backend. confirmCallback is
// shared by every ConfirmGuard the manager builds; pass nil to have
// confirm-requiring payments block pending a human reviewer.
func NewManager(store storage.Store, confirmCallback ConfirmCallback) *Manager {
	return &Manager{store: store, confirmCallback: confirmCallback}
}

// SetGuards persists the guard list for a scope, replacing any prior list.
func (m *Manager) SetGuards(ctx context.Context, scopeType ScopeType, scopeID string, guards []Config) error {
	rec := configRecord{Guards: guards}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("guard: marshal config: %w", err)
	}
	var value map[string]interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return err
	}
	return m.store.Save(ctx, storage.CollGuardConfigs, scopeKey(scopeType, scopeID), value)
}

func (m *Manager) loadGuards(ctx context.Context, scopeType ScopeType, scopeID string) ([]Config, error) {
	rec, err := m.store.Get(ctx, storage.CollGuardConfigs, scopeKey(scopeType, scopeID))
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(rec.Value)
	if err != nil {
		return nil, err
	}
	var parsed configRecord
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("guard: unmarshal config: %w", err)
	}
	return parsed.Guards, nil
}

// build turns a Config into a live Guard instance.
func (m *Manager) build(cfg Config) (Guard, error) {
	switch cfg.Type {
	case KindBudget:
		if cfg.Budget == nil {
			return nil, fmt.Errorf("guard: budget config missing for %q", cfg.Name)
		}
		bc := *cfg.Budget
		bc.Name = cfg.Name
		return NewBudgetGuard(bc, m.store), nil
	case KindSingleTx:
		if cfg.SingleTx == nil {
			return nil, fmt.Errorf("guard: single_tx config missing for %q", cfg.Name)
		}
		sc := *cfg.SingleTx
		sc.Name = cfg.Name
		return NewSingleTxGuard(sc), nil
	case KindRecipient:
		if cfg.Recipient == nil {
			return nil, fmt.Errorf("guard: recipient config missing for %q", cfg.Name)
		}
		rc := *cfg.Recipient
		rc.Name = cfg.Name
		return NewRecipientGuard(rc)
	case KindRateLimit:
		if cfg.RateLimit == nil {
			return nil, fmt.Errorf("guard: rate_limit config missing for %q", cfg.Name)
		}
		rlc := *cfg.RateLimit
		rlc.Name = cfg.Name
		return NewRateLimitGuard(rlc, m.store), nil
	case KindConfirm:
		if cfg.Confirm == nil {
			return nil, fmt.Errorf("guard: confirm config missing for %q", cfg.Name)
		}
		cc := *cfg.Confirm
		cc.Name = cfg.Name
		return NewConfirmGuard(cc, m.confirmCallback), nil
	default:
		return nil, fmt.Errorf("guard: unknown guard type %q", cfg.Type)
	}
}

// EffectiveChain returns the chain for a payment: the wallet set's guards
// (if any) followed by the wallet's own guards, in that fixed order.
func (m *Manager) EffectiveChain(ctx context.Context, walletID, walletSetID string) (*Chain, error) {
	var configs []Config

	if walletSetID != "" {
		setGuards, err := m.loadGuards(ctx, ScopeWalletSet, walletSetID)
		if err != nil {
			return nil, err
		}
		configs = append(configs, setGuards...)
	}

	walletGuards, err := m.loadGuards(ctx, ScopeWallet, walletID)
	if err != nil {
		return nil, err
	}
	configs = append(configs, walletGuards...)

	guards := make([]Guard, 0, len(configs))
	for _, cfg := range configs {
		g, err := m.build(cfg)
		if err != nil {
			return nil, err
		}
		guards = append(guards, g)
	}
	return NewChain(guards...), nil
}

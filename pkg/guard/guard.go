// Package guard implements the two-phase (reserve/commit/release) spending
// and trust controls that sit between the payment facade and the router.
// Every guard's reserve step must atomically both check its invariant and
// update pending counters, built entirely on storage.Store.AtomicAdd —
// there is no other concurrency primitive available to this layer.
package guard

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cedrospay/agentpay/internal/money"
)

// Result is the outcome of a non-mutating Check call.
type Result struct {
	Allowed bool
	Reason  string
}

// Context carries the fields a guard needs to reserve, commit, or evaluate
// a payment. Only the fields relevant to a given guard are read.
type Context struct {
	WalletID  string
	Recipient string
	Amount    money.Money
	Now       time.Time
}

// Token is the opaque, serializable record a guard's Reserve returns. It is
// self-describing — version, guard name, wallet, amount, and the bucket
// timestamp used at reserve time — so Commit/Release can target the exact
// same storage buckets even if wall-clock time has moved on by then.
type Token struct {
	Version   int         `json:"v"`
	Guard     string      `json:"g"`
	WalletID  string      `json:"w"`
	Amount    int64       `json:"a"`
	AssetCode string      `json:"c"`
	BucketAt  time.Time   `json:"t"`
	Extra     interface{} `json:"x,omitempty"`
}

// Encode serializes the token to an opaque string.
func (t Token) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeToken parses a token string produced by Token.Encode.
func DecodeToken(s string) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Token{}, fmt.Errorf("guard: invalid token encoding: %w", err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, fmt.Errorf("guard: invalid token payload: %w", err)
	}
	return t, nil
}

// Guard is the common contract every spending/trust control implements.
// reserve must atomically check-and-update; commit finalizes a prior
// reservation; release undoes it. release must be idempotent — a guard may
// be asked to release a token it already released during chain rollback.
type Guard interface {
	Name() string
	Check(ctx context.Context, gctx Context) (Result, error)
	Reserve(ctx context.Context, gctx Context) (string, error)
	Commit(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
}

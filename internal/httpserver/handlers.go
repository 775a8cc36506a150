package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/cedrospay/agentpay/internal/errors"
	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/payment"
)

// health is a liveness probe; it does not touch storage or any adapter, so
// it stays cheap even if the ledger backend is degraded.
func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// payRequest is the wire shape for POST /v1/pay and /v1/simulate; it
// mirrors payment.Request but with JSON tags suited to an external caller
// and a decimal Amount string (e.g. "1.50") rather than atomic units.
type payRequest struct {
	WalletID          string                 `json:"walletId"`
	Recipient         string                 `json:"recipient"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	DestinationChain  string                 `json:"destinationChain,omitempty"`
	WalletSetID       string                 `json:"walletSetId,omitempty"`
	Purpose           string                 `json:"purpose,omitempty"`
	IdempotencyKey    string                 `json:"idempotencyKey,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	WaitForCompletion bool                   `json:"waitForCompletion,omitempty"`
	TimeoutSeconds    int                    `json:"timeoutSeconds,omitempty"`
	FeeLevel          string                 `json:"feeLevel,omitempty"`
}

func (pr payRequest) toPaymentRequest() (payment.Request, error) {
	if pr.WalletID == "" {
		return payment.Request{}, fmt.Errorf("walletId is required")
	}
	if pr.Recipient == "" {
		return payment.Request{}, fmt.Errorf("recipient is required")
	}
	asset, err := money.GetAsset(pr.Asset)
	if err != nil {
		return payment.Request{}, err
	}
	amount, err := money.FromMajor(asset, pr.Amount)
	if err != nil {
		return payment.Request{}, err
	}

	var timeout time.Duration
	if pr.TimeoutSeconds > 0 {
		timeout = time.Duration(pr.TimeoutSeconds) * time.Second
	}

	return payment.Request{
		WalletID:          pr.WalletID,
		Recipient:         pr.Recipient,
		Amount:            amount,
		DestinationChain:  pr.DestinationChain,
		WalletSetID:       pr.WalletSetID,
		Purpose:           pr.Purpose,
		IdempotencyKey:    pr.IdempotencyKey,
		Metadata:          pr.Metadata,
		WaitForCompletion: pr.WaitForCompletion,
		Timeout:           timeout,
		FeeLevel:          pr.FeeLevel,
	}, nil
}

func (h handlers) decodePayRequest(w http.ResponseWriter, r *http.Request) (payment.Request, bool) {
	var body payRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apierrors.ErrCodeInvalidField, "malformed request body: "+err.Error())
		return payment.Request{}, false
	}
	req, err := body.toPaymentRequest()
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeInvalidField, err.Error())
		return payment.Request{}, false
	}
	return req, true
}

func (h handlers) pay(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePayRequest(w, r)
	if !ok {
		return
	}
	result, err := h.facade.Pay(r.Context(), req)
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, result)
}

func (h handlers) simulate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePayRequest(w, r)
	if !ok {
		return
	}
	result, err := h.facade.Simulate(r.Context(), req)
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, result)
}

func (h handlers) queryLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payment.Filter{
		WalletID:    q.Get("walletId"),
		WalletSetID: q.Get("walletSetId"),
		Recipient:   q.Get("recipient"),
		EntryType:   payment.EntryType(q.Get("entryType")),
		Status:      payment.Status(q.Get("status")),
		Limit:       100,
	}

	entries, err := h.facade.Ledger().Query(r.Context(), filter)
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeDatabaseError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"entries": entries})
}

package httpserver

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/cedrospay/agentpay/internal/errors"
	"github.com/cedrospay/agentpay/pkg/network"
)

// circuitBreakerStatus surfaces circuitbreaker.State for every configured
// service so an operator can see which external dependencies are tripped
// without grepping logs.
func (h handlers) circuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		writeJSON(w, map[string]interface{}{"enabled": false, "services": []interface{}{}})
		return
	}
	writeJSON(w, map[string]interface{}{"enabled": true, "services": h.breakers.Snapshot()})
}

// finalizeManualMintRequest carries the Circle message/attestation a
// payment left pending when CCTP chose manual_mint_required, plus the
// one-time nonce an operator's finalization tool generated for this call.
type finalizeManualMintRequest struct {
	Nonce            string `json:"nonce"`
	ExecutorWalletID string `json:"executorWalletId"`
	DestinationChain string `json:"destinationChain"`
	Message          string `json:"message"`
	Attestation      string `json:"attestation"`
	IdempotencyKey   string `json:"idempotencyKey"`
}

// finalizeManualMint completes a CCTP transfer an earlier Transfer call
// left in the manual_mint_required state. Replaying the same nonce is
// rejected rather than re-minted.
func (h handlers) finalizeManualMint(w http.ResponseWriter, r *http.Request) {
	if h.mintFinal == nil {
		writeAPIError(w, apierrors.ErrCodeInternalError, "manual mint finalization not configured")
		return
	}

	var body finalizeManualMintRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apierrors.ErrCodeInvalidField, "malformed request body: "+err.Error())
		return
	}
	if body.Nonce == "" || body.ExecutorWalletID == "" || body.Message == "" || body.Attestation == "" {
		writeAPIError(w, apierrors.ErrCodeMissingField, "nonce, executorWalletId, message, and attestation are required")
		return
	}

	tx, err := h.mintFinal.Finalize(r.Context(), body.Nonce, body.ExecutorWalletID,
		network.Network(body.DestinationChain), body.Message, body.Attestation, body.IdempotencyKey)
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, tx)
}

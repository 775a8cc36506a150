package httpserver

import (
	"io"
	"net/http"

	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	apierrors "github.com/cedrospay/agentpay/internal/errors"
	"github.com/cedrospay/agentpay/pkg/webhook"
)

// handleCircleWebhook verifies and decodes an inbound Circle payment
// notification. Verification runs behind the webhook service's circuit
// breaker, since a misbehaving signer pounding this route with malformed
// payloads is exactly the bulkhead scenario breakers exist for.
func (h handlers) handleCircleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks == nil {
		writeAPIError(w, apierrors.ErrCodeInternalError, "webhook verification not configured")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeInvalidField, "failed to read request body")
		return
	}
	signature := r.Header.Get("X-Circle-Signature")

	result, err := h.execute(circuitbreaker.ServiceWebhook, func() (interface{}, error) {
		return h.webhooks.Parse(payload, signature)
	})
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeInvalidSignature, err.Error())
		return
	}

	event := result.(webhook.WebhookEvent)
	writeJSON(w, map[string]string{"status": "accepted", "eventId": event.ID, "eventType": string(event.Type)})
}

// handleStripeWebhook verifies a Stripe checkout.session.completed event
// and reconciles it against the Ledger's pending fiat-settlement intents.
func (h handlers) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.stripe == nil {
		writeAPIError(w, apierrors.ErrCodeInternalError, "stripe settlement not configured")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(w, apierrors.ErrCodeInvalidField, "failed to read request body")
		return
	}
	signature := r.Header.Get("Stripe-Signature")

	if err := h.stripe.HandleWebhook(r.Context(), payload, signature); err != nil {
		writeAPIError(w, apierrors.ErrCodeStripeError, err.Error())
		return
	}

	writeJSON(w, map[string]string{"status": "accepted"})
}

// execute runs fn behind breaker's bulkhead, falling back to direct
// execution when no breaker manager is configured.
func (h handlers) execute(service circuitbreaker.ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if h.breakers == nil {
		return fn()
	}
	return h.breakers.Execute(service, fn)
}

// Package stripe adapts stripe-go into a narrow fiat settlement hook for the
// Ledger: an operator who fronts an agent resource with a human-facing x402
// paywall can let a Stripe Checkout Session settle the same resource a
// crypto payment would, without stripe-go becoming a fourth pay() transport.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	"github.com/cedrospay/agentpay/internal/config"
	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/payment"
)

// LedgerReconciler is the subset of *ledger.Ledger this notifier needs,
// kept as an interface so tests can supply an in-memory double.
type LedgerReconciler interface {
	Query(ctx context.Context, filter payment.Filter) ([]payment.LedgerEntry, error)
	UpdateStatus(ctx context.Context, entryID string, status payment.Status, txHash string, metadataPatch map[string]interface{}) error
}

// FiatSettlementNotifier verifies inbound Stripe webhook deliveries and, on
// checkout.session.completed, marks the matching pending ledger entry
// COMPLETED. It never initiates a payment itself.
type FiatSettlementNotifier struct {
	cfg     config.StripeConfig
	ledger  LedgerReconciler
	breaker *circuitbreaker.Manager
}

// New builds a FiatSettlementNotifier. breaker may be nil, in which case
// webhook verification runs unprotected.
func New(cfg config.StripeConfig, ledger LedgerReconciler, breaker *circuitbreaker.Manager) *FiatSettlementNotifier {
	stripeapi.Key = cfg.SecretKey
	return &FiatSettlementNotifier{cfg: cfg, ledger: ledger, breaker: breaker}
}

// CreateCheckoutSession opens a Stripe Checkout Session for resourceID, the
// same identifier a ledger.Record call would have stored under
// Metadata["resource_id"] when the paywall reserved the entry. amount's
// asset must be a Stripe-supported fiat currency (USD, EUR).
func (n *FiatSettlementNotifier) CreateCheckoutSession(ctx context.Context, resourceID string, amount money.Money, successURL, cancelURL string) (*stripeapi.CheckoutSession, error) {
	if !amount.IsPositive() {
		return nil, errors.New("stripe: amount must be positive")
	}
	currency, amountCents, err := money.NewStripeAdapter().ToStripeAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}
	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		SuccessURL:         stripeapi.String(firstNonEmpty(successURL, n.cfg.SuccessURL)),
		CancelURL:          stripeapi.String(firstNonEmpty(cancelURL, n.cfg.CancelURL)),
		Metadata:           map[string]string{"resource_id": resourceID},
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Quantity: stripeapi.Int64(1),
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency: stripeapi.String(currency),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripeapi.String("agentpay resource: " + resourceID),
					},
					UnitAmount: stripeapi.Int64(amountCents),
				},
			},
		},
	}

	var sess *stripeapi.CheckoutSession
	op := func() (interface{}, error) {
		s, err := session.New(params)
		return s, err
	}
	result, err := n.execute(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	sess = result.(*stripeapi.CheckoutSession)
	return sess, nil
}

// checkoutCompleted is the subset of a checkout.session.completed event
// payload this adapter cares about.
type checkoutCompleted struct {
	ID          string            `json:"id"`
	AmountTotal int64             `json:"amount_total"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// HandleWebhook verifies payload's Stripe signature and, if it carries a
// checkout.session.completed event for a resource this Ledger is tracking,
// marks the matching PENDING entry COMPLETED. Any other event type is a
// no-op success: Stripe retries on non-2xx, so unrecognized-but-verified
// events must not look like a failure.
func (n *FiatSettlementNotifier) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if n.cfg.WebhookSecret == "" {
		return errors.New("stripe: webhook secret not configured")
	}

	result, err := n.execute(ctx, func() (interface{}, error) {
		return webhook.ConstructEvent(payload, signature, n.cfg.WebhookSecret)
	})
	if err != nil {
		return fmt.Errorf("stripe: construct event: %w", err)
	}
	event := result.(stripeapi.Event)

	if event.Type != "checkout.session.completed" {
		return nil
	}

	var checkout checkoutCompleted
	if err := json.Unmarshal(event.Data.Raw, &checkout); err != nil {
		return fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	resourceID := checkout.Metadata["resource_id"]
	if resourceID == "" {
		return errors.New("stripe: webhook missing resource_id in metadata")
	}

	return n.reconcile(ctx, resourceID, checkout)
}

func (n *FiatSettlementNotifier) reconcile(ctx context.Context, resourceID string, checkout checkoutCompleted) error {
	settled, err := money.NewStripeAdapter().FromStripeAmount(checkout.Currency, checkout.AmountTotal)
	if err != nil {
		return fmt.Errorf("stripe: decode settled amount: %w", err)
	}

	entries, err := n.ledger.Query(ctx, payment.Filter{
		EntryType: payment.EntryTypeIntent,
		Status:    payment.StatusPending,
	})
	if err != nil {
		return fmt.Errorf("stripe: query pending intents: %w", err)
	}

	for _, entry := range entries {
		if entry.Metadata["resource_id"] != resourceID {
			continue
		}
		return n.ledger.UpdateStatus(ctx, entry.ID, payment.StatusCompleted, checkout.ID, map[string]interface{}{
			"settled_via":     "stripe",
			"stripe_session":  checkout.ID,
			"stripe_currency": checkout.Currency,
			"stripe_amount":   settled.ToMajor(),
		})
	}
	return fmt.Errorf("stripe: no pending intent found for resource %q", resourceID)
}

func (n *FiatSettlementNotifier) execute(_ context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if n.breaker == nil {
		return fn()
	}
	return n.breaker.Execute(circuitbreaker.ServiceStripe, fn)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

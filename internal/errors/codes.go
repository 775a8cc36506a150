package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Payment Verification Errors (x402 spec + Solana-specific)
const (
	// Invalid payment proof format or structure
	ErrCodeInvalidPaymentProof ErrorCode = "invalid_payment_proof"
	ErrCodeInvalidSignature    ErrorCode = "invalid_signature"
	ErrCodeInvalidTransaction  ErrorCode = "invalid_transaction"

	// Solana transaction verification failures
	ErrCodeTransactionNotFound     ErrorCode = "transaction_not_found"
	ErrCodeTransactionNotConfirmed ErrorCode = "transaction_not_confirmed"
	ErrCodeTransactionFailed       ErrorCode = "transaction_failed"

	// Recipient/sender validation failures
	ErrCodeInvalidRecipient         ErrorCode = "invalid_recipient"
	ErrCodeInvalidSender            ErrorCode = "invalid_sender"
	ErrCodeUnauthorizedRefundIssuer ErrorCode = "unauthorized_refund_issuer"

	// Amount/token validation failures
	ErrCodeAmountBelowMinimum     ErrorCode = "amount_below_minimum"
	ErrCodeAmountMismatch         ErrorCode = "amount_mismatch"
	ErrCodeInsufficientFunds      ErrorCode = "insufficient_funds_sol"
	ErrCodeInsufficientFundsToken ErrorCode = "insufficient_funds_token"
	ErrCodeInvalidTokenMint       ErrorCode = "invalid_token_mint"

	// SPL transfer validation failures
	ErrCodeNotSPLTransfer      ErrorCode = "not_spl_transfer"
	ErrCodeMissingTokenAccount ErrorCode = "missing_token_account"
	ErrCodeInvalidTokenProgram ErrorCode = "invalid_token_program"

	// Memo/metadata validation failures
	ErrCodeMissingMemo ErrorCode = "missing_memo"
	ErrCodeInvalidMemo ErrorCode = "invalid_memo"

	// Replay protection
	ErrCodePaymentAlreadyUsed ErrorCode = "payment_already_used"
	ErrCodeSignatureReused    ErrorCode = "signature_reused"

	// Timeout/expiration errors
	ErrCodeQuoteExpired       ErrorCode = "quote_expired"
	ErrCodeTransactionExpired ErrorCode = "transaction_expired"
)

// Validation Errors (Request input validation)
const (
	ErrCodeMissingField    ErrorCode = "missing_field"
	ErrCodeInvalidField    ErrorCode = "invalid_field"
	ErrCodeInvalidAmount   ErrorCode = "invalid_amount"
	ErrCodeInvalidWallet   ErrorCode = "invalid_wallet"
	ErrCodeInvalidResource ErrorCode = "invalid_resource"
	ErrCodeInvalidCoupon   ErrorCode = "invalid_coupon"
	ErrCodeInvalidCartItem ErrorCode = "invalid_cart_item"
	ErrCodeEmptyCart       ErrorCode = "empty_cart"
)

// Resource/State Errors (Resource not found or in wrong state)
const (
	ErrCodeResourceNotFound ErrorCode = "resource_not_found"
	ErrCodeCartNotFound     ErrorCode = "cart_not_found"
	ErrCodeRefundNotFound   ErrorCode = "refund_not_found"
	ErrCodeProductNotFound  ErrorCode = "product_not_found"
	ErrCodeCouponNotFound   ErrorCode = "coupon_not_found"
	ErrCodeSessionNotFound  ErrorCode = "session_not_found"

	ErrCodeCartAlreadyPaid        ErrorCode = "cart_already_paid"
	ErrCodeRefundAlreadyProcessed ErrorCode = "refund_already_processed"
)

// Coupon-Specific Errors
const (
	ErrCodeCouponExpired            ErrorCode = "coupon_expired"
	ErrCodeCouponUsageLimitReached  ErrorCode = "coupon_usage_limit_reached"
	ErrCodeCouponNotApplicable      ErrorCode = "coupon_not_applicable"
	ErrCodeCouponWrongPaymentMethod ErrorCode = "coupon_wrong_payment_method"
)

// External Service Errors (Stripe, RPC, etc.)
const (
	ErrCodeStripeError  ErrorCode = "stripe_error"
	ErrCodeRPCError     ErrorCode = "rpc_error"
	ErrCodeNetworkError ErrorCode = "network_error"
)

// Internal/System Errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// Payment Router / Protocol Adapter Errors
const (
	ErrCodeNoAdapterAvailable  ErrorCode = "no_adapter_available"
	ErrCodeAdapterUnsupported  ErrorCode = "adapter_unsupported_network"
	ErrCodeUnsupportedNetwork  ErrorCode = "unsupported_network"
	ErrCodePaywallUnexpected   ErrorCode = "paywall_unexpected_status"
	ErrCodeX402NoRequirements  ErrorCode = "x402_no_requirements"
)

// Guard Chain Errors (reservation / commit / release)
const (
	ErrCodeBudgetExceeded       ErrorCode = "budget_exceeded"
	ErrCodeRateLimited          ErrorCode = "rate_limited"
	ErrCodeSingleTxExceeded     ErrorCode = "single_tx_limit_exceeded"
	ErrCodeRecipientNotAllowed  ErrorCode = "recipient_not_allowed"
	ErrCodeConfirmationRequired ErrorCode = "confirmation_required"
	ErrCodeReservationNotFound  ErrorCode = "reservation_not_found"
	ErrCodeReservationExpired   ErrorCode = "reservation_expired"
	ErrCodeGuardRejected        ErrorCode = "guard_rejected"
)

// Payment Intent Errors (two-phase commit)
const (
	ErrCodeIntentNotFound        ErrorCode = "intent_not_found"
	ErrCodeIntentWrongState      ErrorCode = "intent_wrong_state"
	ErrCodeIntentAlreadyResolved ErrorCode = "intent_already_resolved"
	ErrCodeFundReservationFailed ErrorCode = "fund_reservation_failed"
)

// CCTP Cross-Chain Errors
const (
	ErrCodeCCTPApproveFailed    ErrorCode = "cctp_approve_failed"
	ErrCodeCCTPBurnFailed       ErrorCode = "cctp_burn_failed"
	ErrCodeCCTPAttestationWait  ErrorCode = "cctp_attestation_pending"
	ErrCodeCCTPAttestationFail  ErrorCode = "cctp_attestation_failed"
	ErrCodeCCTPMintFailed       ErrorCode = "cctp_mint_failed"
	ErrCodeCCTPInvalidState     ErrorCode = "cctp_invalid_state_transition"
	ErrCodeCCTPDomainUnknown    ErrorCode = "cctp_domain_unknown"
)

// Trust Gate / Policy Engine / Reputation Errors
const (
	ErrCodeIdentityNotRegistered ErrorCode = "identity_not_registered"
	ErrCodePolicyDenied          ErrorCode = "policy_denied"
	ErrCodeReputationTooLow      ErrorCode = "reputation_too_low"
	ErrCodeRegistryUnavailable   ErrorCode = "registry_unavailable"
	ErrCodeInvalidFeedbackSignal ErrorCode = "invalid_feedback_signal"
)

// Wallet Provider Errors
const (
	ErrCodeWalletUnavailable  ErrorCode = "wallet_unavailable"
	ErrCodeSigningFailed      ErrorCode = "signing_failed"
	ErrCodeInsufficientGas    ErrorCode = "insufficient_gas"
)

// Webhook Ingress Errors
const (
	ErrCodeWebhookBadSignature ErrorCode = "webhook_bad_signature"
	ErrCodeWebhookMalformed    ErrorCode = "webhook_malformed"
)

// IsRetryable returns whether an error code represents a retryable error.
// Retryable errors are typically transient network/service issues, not validation failures.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	// Network and service errors are retryable
	case ErrCodeRPCError,
		ErrCodeNetworkError,
		ErrCodeStripeError,
		ErrCodeTransactionNotConfirmed,
		ErrCodeCCTPAttestationWait,
		ErrCodeRegistryUnavailable,
		ErrCodeWalletUnavailable:
		return true

	// Validation, authorization, and permanent failures are NOT retryable
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - Client validation errors
	case ErrCodeInvalidPaymentProof,
		ErrCodeInvalidSignature,
		ErrCodeInvalidTransaction,
		ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAmount,
		ErrCodeInvalidWallet,
		ErrCodeInvalidResource,
		ErrCodeInvalidCoupon,
		ErrCodeInvalidCartItem,
		ErrCodeEmptyCart,
		ErrCodeInvalidRecipient,
		ErrCodeInvalidSender,
		ErrCodeInvalidTokenMint,
		ErrCodeNotSPLTransfer,
		ErrCodeInvalidTokenProgram,
		ErrCodeMissingMemo,
		ErrCodeInvalidMemo,
		ErrCodeCartAlreadyPaid,
		ErrCodeRefundAlreadyProcessed,
		ErrCodeUnsupportedNetwork,
		ErrCodeAdapterUnsupported,
		ErrCodeX402NoRequirements,
		ErrCodeInvalidFeedbackSignal,
		ErrCodeWebhookMalformed:
		return 400

	// 402 Payment Required - Payment verification failures
	case ErrCodeTransactionNotFound,
		ErrCodeTransactionNotConfirmed,
		ErrCodeTransactionFailed,
		ErrCodeAmountBelowMinimum,
		ErrCodeAmountMismatch,
		ErrCodeInsufficientFunds,
		ErrCodeInsufficientFundsToken,
		ErrCodeMissingTokenAccount,
		ErrCodePaymentAlreadyUsed,
		ErrCodeSignatureReused,
		ErrCodeQuoteExpired,
		ErrCodeTransactionExpired,
		ErrCodeBudgetExceeded,
		ErrCodeSingleTxExceeded,
		ErrCodeFundReservationFailed,
		ErrCodeInsufficientGas:
		return 402

	// 403 Forbidden - Authorization failures
	case ErrCodeUnauthorizedRefundIssuer,
		ErrCodeRecipientNotAllowed,
		ErrCodePolicyDenied,
		ErrCodeReputationTooLow,
		ErrCodeIdentityNotRegistered,
		ErrCodeConfirmationRequired,
		ErrCodeWebhookBadSignature:
		return 403

	// 404 Not Found - Resource not found
	case ErrCodeResourceNotFound,
		ErrCodeCartNotFound,
		ErrCodeRefundNotFound,
		ErrCodeProductNotFound,
		ErrCodeCouponNotFound,
		ErrCodeSessionNotFound,
		ErrCodeReservationNotFound,
		ErrCodeIntentNotFound,
		ErrCodeNoAdapterAvailable:
		return 404

	// 409 Conflict - business rule conflicts / wrong state transitions
	case ErrCodeCouponExpired,
		ErrCodeCouponUsageLimitReached,
		ErrCodeCouponNotApplicable,
		ErrCodeCouponWrongPaymentMethod,
		ErrCodeReservationExpired,
		ErrCodeIntentWrongState,
		ErrCodeIntentAlreadyResolved,
		ErrCodeCCTPInvalidState,
		ErrCodeGuardRejected:
		return 409

	// 429 Too Many Requests
	case ErrCodeRateLimited:
		return 429

	// 502 Bad Gateway - External service errors
	case ErrCodeStripeError,
		ErrCodeRPCError,
		ErrCodeNetworkError,
		ErrCodeCCTPApproveFailed,
		ErrCodeCCTPBurnFailed,
		ErrCodeCCTPAttestationFail,
		ErrCodeCCTPMintFailed,
		ErrCodeCCTPDomainUnknown,
		ErrCodeRegistryUnavailable,
		ErrCodeWalletUnavailable,
		ErrCodeSigningFailed:
		return 502

	// 202 Accepted - attestation still in flight, not an error to the caller's retry loop
	case ErrCodeCCTPAttestationWait:
		return 202

	// 500 Internal Server Error - System/internal errors
	default:
		return 500
	}
}

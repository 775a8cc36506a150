// Package webhook parses inbound payment-provider webhooks: Ed25519
// signature verification over the raw payload, then decoding into a
// stable WebhookEvent shape regardless of the provider's wire format.
package webhook

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ed25519"
)

// EventType is the normalized webhook event kind.
type EventType string

const (
	EventPaymentCompleted EventType = "PAYMENT_COMPLETED"
	EventPaymentFailed    EventType = "PAYMENT_FAILED"
	EventPaymentCanceled  EventType = "PAYMENT_CANCELED"
	EventUnknown          EventType = "UNKNOWN"
)

var notificationTypeMap = map[string]EventType{
	"payments.completed": EventPaymentCompleted,
	"payment.succeeded":  EventPaymentCompleted,
	"payments.failed":    EventPaymentFailed,
	"payment.failed":     EventPaymentFailed,
	"payments.canceled":  EventPaymentCanceled,
	"payment.canceled":   EventPaymentCanceled,
}

// WebhookEvent is the normalized output of Parse.
type WebhookEvent struct {
	ID         string
	Type       EventType
	Timestamp  time.Time
	Data       map[string]interface{}
	RawPayload []byte
}

// InvalidSignatureError is returned when a raw payload's signature is
// missing, undecodable, or does not verify against the configured key.
type InvalidSignatureError struct {
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("webhook: invalid signature: %s", e.Reason)
}

// ValidationError is returned when a payload decodes and verifies but is
// missing required fields.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("webhook: validation failed: %s", e.Reason)
}

type envelope struct {
	ID               string                 `json:"id"`
	NotificationType string                 `json:"notificationType"`
	Timestamp        time.Time              `json:"timestamp"`
	Data             map[string]interface{} `json:"notification"`
}

// Parser verifies and decodes inbound webhook deliveries.
type Parser struct {
	publicKey ed25519.PublicKey
}

// NewParser builds a Parser from a public key given as PEM, hex, or raw
// base64 — the three encodings the spec's configuration accepts.
func NewParser(encodedPublicKey string) (*Parser, error) {
	key, err := decodePublicKey(encodedPublicKey)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	return &Parser{publicKey: key}, nil
}

func decodePublicKey(encoded string) (ed25519.PublicKey, error) {
	trimmed := strings.TrimSpace(encoded)

	if strings.Contains(trimmed, "BEGIN PUBLIC KEY") {
		block, _ := pem.Decode([]byte(trimmed))
		if block == nil {
			return nil, fmt.Errorf("malformed PEM block")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKIX public key: %w", err)
		}
		key, ok := pub.(ed25519.PublicKey)
		if !ok || len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("PEM public key is not Ed25519")
		}
		return key, nil
	}
	if raw, err := hex.DecodeString(trimmed); err == nil && len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	if raw, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	if raw, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil && len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	return nil, fmt.Errorf("unrecognized public key encoding (want %d-byte hex or base64)", ed25519.PublicKeySize)
}

// Parse verifies signatureB64 (base64-encoded Ed25519 signature over the
// raw payload bytes) and decodes payload into a WebhookEvent.
func (p *Parser) Parse(payload []byte, signatureB64 string) (WebhookEvent, error) {
	if signatureB64 == "" {
		return WebhookEvent{}, &InvalidSignatureError{Reason: "missing x-circle-signature header"}
	}
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return WebhookEvent{}, &InvalidSignatureError{Reason: "signature is not valid base64"}
	}
	if !ed25519.Verify(p.publicKey, payload, signature) {
		return WebhookEvent{}, &InvalidSignatureError{Reason: "signature does not match payload"}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return WebhookEvent{}, &InvalidSignatureError{Reason: "payload is not valid JSON: " + err.Error()}
	}
	if env.NotificationType == "" {
		return WebhookEvent{}, &ValidationError{Reason: "missing notificationType"}
	}

	eventType, ok := notificationTypeMap[strings.ToLower(env.NotificationType)]
	if !ok {
		eventType = EventUnknown
	}

	timestamp := env.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return WebhookEvent{
		ID:         env.ID,
		Type:       eventType,
		Timestamp:  timestamp,
		Data:       env.Data,
		RawPayload: payload,
	}, nil
}

// ParseParsed handles the case where payload has already been decoded by
// the caller's framework (e.g. a JSON middleware) rather than handed to us
// as raw bytes — in this path no signature is available to verify, so the
// caller must have authenticated the request by other means (mTLS, a
// pre-verifying proxy) before calling this.
func ParseParsed(parsed map[string]interface{}) (WebhookEvent, error) {
	notificationType, _ := parsed["notificationType"].(string)
	if notificationType == "" {
		return WebhookEvent{}, &ValidationError{Reason: "missing notificationType"}
	}

	eventType, ok := notificationTypeMap[strings.ToLower(notificationType)]
	if !ok {
		eventType = EventUnknown
	}

	id, _ := parsed["id"].(string)
	data, _ := parsed["notification"].(map[string]interface{})

	timestamp := time.Now().UTC()
	if ts, ok := parsed["timestamp"].(string); ok {
		if parsedTime, err := time.Parse(time.RFC3339, ts); err == nil {
			timestamp = parsedTime
		}
	}

	raw, err := json.Marshal(parsed)
	if err != nil {
		raw = nil
	}

	return WebhookEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  timestamp,
		Data:       data,
		RawPayload: raw,
	}, nil
}

package webhook

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"
)

func signedPayload(t *testing.T, priv ed25519.PrivateKey, env envelope) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, payload)
	return payload, base64.StdEncoding.EncodeToString(sig)
}

func TestParse_ValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	parser, err := NewParser(hex.EncodeToString(pub))
	require.NoError(t, err)

	payload, sig := signedPayload(t, priv, envelope{
		ID:               "evt_1",
		NotificationType: "payments.completed",
		Timestamp:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Data:             map[string]interface{}{"amount": "1.00"},
	})

	event, err := parser.Parse(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventPaymentCompleted, event.Type)
}

func TestParse_MissingSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	parser, err := NewParser(hex.EncodeToString(pub))
	require.NoError(t, err)

	_, err = parser.Parse([]byte(`{}`), "")
	var sigErr *InvalidSignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestParse_TamperedPayload(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	parser, err := NewParser(hex.EncodeToString(pub))
	require.NoError(t, err)

	payload, sig := signedPayload(t, priv, envelope{ID: "evt_1", NotificationType: "payments.completed"})
	payload = append(payload, byte(' '))

	_, err = parser.Parse(payload, sig)
	var sigErr *InvalidSignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestParse_MissingNotificationType(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	parser, err := NewParser(hex.EncodeToString(pub))
	require.NoError(t, err)

	payload, sig := signedPayload(t, priv, envelope{ID: "evt_1"})

	_, err = parser.Parse(payload, sig)
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestParse_UnknownNotificationTypeMapsToUnknown(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	parser, err := NewParser(hex.EncodeToString(pub))
	require.NoError(t, err)

	payload, sig := signedPayload(t, priv, envelope{ID: "evt_1", NotificationType: "some.other.event"})

	event, err := parser.Parse(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, event.Type)
}

func TestNewParser_PEMPublicKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	parser, err := NewParser(string(pemBytes))
	require.NoError(t, err)

	payload, sig := signedPayload(t, priv, envelope{ID: "evt_1", NotificationType: "payments.completed"})
	event, err := parser.Parse(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}

func TestNewParser_MalformedPEM(t *testing.T) {
	_, err := NewParser("-----BEGIN PUBLIC KEY-----\nnot valid base64\n-----END PUBLIC KEY-----")
	assert.Error(t, err)
}

package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrospay/agentpay/internal/circuitbreaker"
	"github.com/cedrospay/agentpay/internal/config"
	"github.com/cedrospay/agentpay/pkg/cctp"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payctl"
	"github.com/cedrospay/agentpay/pkg/storage"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

func newTestHandlers(t *testing.T) handlers {
	t.Helper()

	provider := wallet.NewMemoryProvider()
	provider.RegisterWallet(wallet.Wallet{
		ID:         "wallet-1",
		Address:    "0x00000000000000000000000000000000000001",
		Blockchain: network.BaseMainnet,
		State:      wallet.StateLive,
	}, map[string]string{"USDC": "100.00"})

	facade, err := payctl.New(payctl.WithWalletProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Close() })

	return handlers{
		cfg:    &config.Config{},
		facade: facade,
	}
}

func TestHealth(t *testing.T) {
	h := handlers{cfg: &config.Config{}}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestPay_Success(t *testing.T) {
	h := newTestHandlers(t)

	payload := payRequest{
		WalletID:  "wallet-1",
		Recipient: "0x00000000000000000000000000000000000002",
		Asset:     "USDC",
		Amount:    "1.00",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/pay", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.pay(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result["status"])
}

func TestPay_InvalidBody(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/pay", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.pay(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPay_MissingWalletID(t *testing.T) {
	h := newTestHandlers(t)

	payload := payRequest{Recipient: "0x00000000000000000000000000000000000002", Asset: "USDC", Amount: "1.00"}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/pay", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.pay(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulate_Success(t *testing.T) {
	h := newTestHandlers(t)

	payload := payRequest{
		WalletID:  "wallet-1",
		Recipient: "0x00000000000000000000000000000000000002",
		Asset:     "USDC",
		Amount:    "1.00",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/simulate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.simulate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryLedger_AfterPay(t *testing.T) {
	h := newTestHandlers(t)

	payload := payRequest{
		WalletID:  "wallet-1",
		Recipient: "0x00000000000000000000000000000000000002",
		Asset:     "USDC",
		Amount:    "1.00",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	payReq := httptest.NewRequest(http.MethodPost, "/v1/pay", bytes.NewReader(body))
	h.pay(httptest.NewRecorder(), payReq)

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger?walletId=wallet-1", nil)
	rec := httptest.NewRecorder()
	h.queryLedger(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Entries []interface{} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Entries)
}

func TestCircuitBreakerStatus_Disabled(t *testing.T) {
	h := handlers{cfg: &config.Config{}}

	req := httptest.NewRequest(http.MethodGet, "/admin/circuit-breakers", nil)
	rec := httptest.NewRecorder()
	h.circuitBreakerStatus(rec, req)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, false, result["enabled"])
}

func TestCircuitBreakerStatus_Enabled(t *testing.T) {
	mgr := circuitbreaker.NewManager(circuitbreaker.Config{
		Enabled: true,
		Services: map[circuitbreaker.ServiceType]circuitbreaker.BreakerConfig{
			circuitbreaker.ServiceWebhook: {},
		},
	})
	h := handlers{cfg: &config.Config{}, breakers: mgr}

	req := httptest.NewRequest(http.MethodGet, "/admin/circuit-breakers", nil)
	rec := httptest.NewRecorder()
	h.circuitBreakerStatus(rec, req)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, true, result["enabled"])
	services, ok := result["services"].([]interface{})
	require.True(t, ok)
	assert.Len(t, services, 1)
}

func TestFinalizeManualMint_NotConfigured(t *testing.T) {
	h := handlers{cfg: &config.Config{}}

	req := httptest.NewRequest(http.MethodPost, "/admin/cctp/finalize-manual-mint", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	h.finalizeManualMint(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFinalizeManualMint_MissingFields(t *testing.T) {
	fsm := cctp.New(wallet.NewMemoryProvider(), nil, nil)
	mintFinal := cctp.NewManualMintFinalizer(fsm, storage.NewMemoryStore())
	h := handlers{cfg: &config.Config{}, mintFinal: mintFinal}

	req := httptest.NewRequest(http.MethodPost, "/admin/cctp/finalize-manual-mint", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	h.finalizeManualMint(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

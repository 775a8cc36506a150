package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
	"github.com/cedrospay/agentpay/pkg/wallet"
)

// fakeCrossChainTransferer stands in for pkg/cctp.FSM so this package can
// exercise GatewayAdapter's cross-chain branch without importing cctp
// (which itself depends on router.CrossChainTransferer, not the other way
// around).
type fakeCrossChainTransferer struct {
	called bool
	result payment.Result
	err    error
}

func (f *fakeCrossChainTransferer) Transfer(_ context.Context, sourceWalletID string, source, dest network.Network, recipient string, amount money.Money, idempotencyKey string) (payment.Result, error) {
	f.called = true
	if f.err != nil {
		return payment.Result{}, f.err
	}
	return f.result, nil
}

type walletResolver struct{ provider wallet.Provider }

func (r walletResolver) ResolveSourceNetwork(ctx context.Context, walletID string) (network.Network, error) {
	w, err := r.provider.GetWallet(ctx, walletID)
	if err != nil {
		return "", err
	}
	return w.Blockchain, nil
}

func newTestRouter(provider wallet.Provider, cctp CrossChainTransferer) *Router {
	r := New(walletResolver{provider: provider})
	transfer := NewTransferAdapter(provider)
	gateway := NewGatewayAdapter(provider, cctp)
	r.Register(transfer)
	r.Register(gateway)
	r.Register(NewX402Adapter(nil, transfer, gateway))
	return r
}

// TestX402_SameChain_DirectBody exercises SPEC scenario 4: a resource
// server's 402 body carries the requirement fields directly, with no
// "accepts" wrapper, and names the recipient under paymentAddress instead
// of recipient. This is the shape that previously unmarshaled to an empty
// requirement and failed the payment.
func TestX402_SameChain_DirectBody(t *testing.T) {
	var resourceServer *httptest.Server
	paid := false
	resourceServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PAYMENT-SIGNATURE") != "" {
			paid = true
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"premium":"content"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"scheme":"exact","network":"ETH-SEPOLIA","maxAmountRequired":"100000","paymentAddress":%q,"description":"Premium"}`, sellerAddress)))
	}))
	defer resourceServer.Close()

	provider := wallet.NewMemoryProvider()
	provider.RegisterWallet(wallet.Wallet{
		ID:         "wallet-1",
		Address:    "0x00000000000000000000000000000000000001",
		Blockchain: network.EthSepolia,
		State:      wallet.StateLive,
	}, map[string]string{"USDC": "10.00"})

	r := newTestRouter(provider, &fakeCrossChainTransferer{})

	asset := money.MustGetAsset("USDC")
	req := payment.Request{
		WalletID:  "wallet-1",
		Recipient: resourceServer.URL,
		Amount:    money.New(asset, 1_000_000),
	}

	result, err := r.Pay(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, paid, "resource server never saw a retried request with a payment signature")
	assert.True(t, result.Success)
	assert.Equal(t, payment.StatusCompleted, result.Status)
	assert.Equal(t, payment.MethodX402, result.Method)
	assert.Equal(t, int64(100000), result.Amount.Atomic)
}

// TestX402_CrossChain_RequirementsWrapper exercises SPEC scenario 5: the
// resource server demands settlement on a network other than the caller's
// source wallet, wrapped in a "requirements" object, and the recipient is
// again under paymentAddress. GatewayAdapter must dispatch the cross-chain
// branch through the CrossChainTransferer rather than a same-chain transfer.
func TestX402_CrossChain_RequirementsWrapper(t *testing.T) {
	var resourceServer *httptest.Server
	resourceServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PAYMENT-SIGNATURE") != "" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"premium":"content"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"requirements":{"scheme":"exact","network":"BASE-SEPOLIA","maxAmountRequired":"250000","paymentAddress":%q,"description":"Premium"}}`, sellerAddress)))
	}))
	defer resourceServer.Close()

	provider := wallet.NewMemoryProvider()
	provider.RegisterWallet(wallet.Wallet{
		ID:         "wallet-1",
		Address:    "0x00000000000000000000000000000000000001",
		Blockchain: network.EthSepolia,
		State:      wallet.StateLive,
	}, map[string]string{"USDC": "10.00"})

	asset := money.MustGetAsset("USDC")
	cctp := &fakeCrossChainTransferer{result: payment.Result{
		Success:      true,
		TransactionID: "cctp-tx-1",
		BlockchainTx: "0xmockcctp",
		Amount:       money.New(asset, 250000),
		Status:       payment.StatusCompleted,
	}}
	r := newTestRouter(provider, cctp)

	req := payment.Request{
		WalletID:  "wallet-1",
		Recipient: resourceServer.URL,
		Amount:    money.New(asset, 1_000_000),
	}

	result, err := r.Pay(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cctp.called, "cross-chain requirement must dispatch through the CrossChainTransferer")
	assert.True(t, result.Success)
	assert.Equal(t, payment.StatusCompleted, result.Status)
	assert.Equal(t, payment.MethodX402, result.Method)
	assert.Equal(t, int64(250000), result.Amount.Atomic)
}

// TestX402_AcceptsArray_Recipient exercises the original "accepts" array
// shape with the recipient field spelled recipient rather than
// paymentAddress, to guard the pre-existing behavior while the other two
// shapes are added.
func TestX402_AcceptsArray_Recipient(t *testing.T) {
	resourceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PAYMENT-SIGNATURE") != "" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"premium":"content"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"accepts":[{"scheme":"exact","network":"ETH-SEPOLIA","maxAmountRequired":"50000","recipient":%q}]}`, sellerAddress)))
	}))
	defer resourceServer.Close()

	provider := wallet.NewMemoryProvider()
	provider.RegisterWallet(wallet.Wallet{
		ID:         "wallet-1",
		Address:    "0x00000000000000000000000000000000000001",
		Blockchain: network.EthSepolia,
		State:      wallet.StateLive,
	}, map[string]string{"USDC": "10.00"})

	r := newTestRouter(provider, &fakeCrossChainTransferer{})

	asset := money.MustGetAsset("USDC")
	req := payment.Request{
		WalletID:  "wallet-1",
		Recipient: resourceServer.URL,
		Amount:    money.New(asset, 1_000_000),
	}

	result, err := r.Pay(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(50000), result.Amount.Atomic)
}

const sellerAddress = "0x000000000000000000000000000000000000bb"

package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cedrospay/agentpay/internal/httputil"
	"github.com/cedrospay/agentpay/internal/money"
	"github.com/cedrospay/agentpay/pkg/network"
	"github.com/cedrospay/agentpay/pkg/payment"
)

// paymentRequirement is the x402 "402 Payment Required" body: what the
// resource server demands before it will serve the resource. Resource
// servers disagree on the recipient field name, so both `recipient` and
// `paymentAddress` are accepted; recipient() resolves whichever was set.
type paymentRequirement struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"` // smallest units, decimal string
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	Recipient         string                 `json:"recipient"`
	PaymentAddress    string                 `json:"paymentAddress"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

func (r paymentRequirement) recipient() string {
	if r.Recipient != "" {
		return r.Recipient
	}
	return r.PaymentAddress
}

type paymentRequiredBody struct {
	Accepts      []paymentRequirement `json:"accepts"`
	Requirements *paymentRequirement  `json:"requirements"`
}

// v2PayloadInner is the payload carried inside the V2 PAYMENT-SIGNATURE envelope.
type v2PayloadInner struct {
	TransactionHash string `json:"transactionHash"`
	FromAddress     string `json:"fromAddress"`
	ToAddress       string `json:"toAddress"`
	Amount          string `json:"amount"`
}

type v2Envelope struct {
	X402Version int            `json:"x402Version"`
	Scheme       string         `json:"scheme"`
	Network      string         `json:"network"`
	Payload      v2PayloadInner `json:"payload"`
	Resource     string         `json:"resource"`
}

// X402Adapter pays HTTP-402 paywalled resources: it fetches the resource,
// and on a 402 challenge, settles the required amount on chain before
// retrying with a PAYMENT-SIGNATURE header.
type X402Adapter struct {
	httpClient *http.Client
	transfer   *TransferAdapter
	gateway    *GatewayAdapter
}

// NewX402Adapter builds an X402Adapter. transfer and gateway carry out the
// actual on-chain settlement once a 402 challenge is parsed.
func NewX402Adapter(httpClient *http.Client, transfer *TransferAdapter, gateway *GatewayAdapter) *X402Adapter {
	if httpClient == nil {
		httpClient = httputil.NewClient(30 * time.Second)
	}
	return &X402Adapter{httpClient: httpClient, transfer: transfer, gateway: gateway}
}

func (a *X402Adapter) Method() payment.Method { return payment.MethodX402 }
func (a *X402Adapter) Priority() int          { return PriorityX402 }

func (a *X402Adapter) Supports(_ context.Context, _ network.Network, req payment.Request) bool {
	kind, _, _ := ClassifyRecipient(req.Recipient)
	return kind == RecipientURL
}

// parseRequirement accepts the three shapes resource servers use for a 402
// body: an `{"accepts":[...]}` list (first entry wins), a single
// `{"requirements":{...}}` object, or the requirement fields directly on
// the body with no wrapper at all. MaxAmountRequired is required in all
// three, so its presence is what distinguishes "this is a requirement" from
// "this unmarshaled but is empty."
func parseRequirement(resp *http.Response, body []byte) (paymentRequirement, error) {
	var parsed paymentRequiredBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		if len(parsed.Accepts) > 0 {
			return normalizeRecipient(parsed.Accepts[0]), nil
		}
		if parsed.Requirements != nil && parsed.Requirements.MaxAmountRequired != "" {
			return normalizeRecipient(*parsed.Requirements), nil
		}
	}

	var direct paymentRequirement
	if err := json.Unmarshal(body, &direct); err == nil && direct.MaxAmountRequired != "" {
		return normalizeRecipient(direct), nil
	}

	// V1 fallback: base64-encoded JSON requirement in a response header.
	if h := resp.Header.Get("X-Payment-Required"); h != "" {
		decoded, err := base64.StdEncoding.DecodeString(h)
		if err != nil {
			return paymentRequirement{}, fmt.Errorf("router: x402: decode X-Payment-Required: %w", err)
		}
		var req paymentRequirement
		if err := json.Unmarshal(decoded, &req); err != nil {
			return paymentRequirement{}, fmt.Errorf("router: x402: parse X-Payment-Required: %w", err)
		}
		return normalizeRecipient(req), nil
	}

	return paymentRequirement{}, fmt.Errorf("router: x402: no payment requirements found in 402 response")
}

// normalizeRecipient resolves the paymentAddress/recipient alias into the
// single Recipient field the rest of the adapter reads.
func normalizeRecipient(r paymentRequirement) paymentRequirement {
	r.Recipient = r.recipient()
	return r
}

func (a *X402Adapter) Execute(ctx context.Context, source network.Network, req payment.Request) (payment.Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Recipient, nil)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: build request: %w", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: initial fetch: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		var resourceData map[string]interface{}
		_ = json.Unmarshal(body, &resourceData)
		return payment.Result{
			Success:      true,
			Amount:       money.Zero(req.Amount.Asset),
			Recipient:    req.Recipient,
			Method:       payment.MethodX402,
			Status:       payment.StatusCompleted,
			ResourceData: resourceData,
			Metadata:     map[string]interface{}{"free_resource": true},
		}, nil
	}

	requirement, err := parseRequirement(resp, body)
	if err != nil {
		return payment.Result{}, err
	}

	requiredAtomic, err := strconv.ParseInt(requirement.MaxAmountRequired, 10, 64)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: invalid maxAmountRequired %q: %w", requirement.MaxAmountRequired, err)
	}
	requiredAmount := money.New(req.Amount.Asset, requiredAtomic)

	if requiredAmount.Atomic > req.Amount.Atomic {
		return payment.Result{
			Success: false,
			Amount:  req.Amount,
			Status:  payment.StatusFailed,
			Method:  payment.MethodX402,
			Error:   fmt.Sprintf("required amount %s exceeds caller cap %s", requiredAmount.ToMajor(), req.Amount.ToMajor()),
		}, nil
	}

	destNetwork, err := network.Parse(requirement.Network)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: unresolvable requirement network %q: %w", requirement.Network, err)
	}

	settleReq := payment.Request{
		WalletID:        req.WalletID,
		Recipient:       requirement.Recipient,
		Amount:          requiredAmount,
		IdempotencyKey:  req.IdempotencyKey,
		FeeLevel:        req.FeeLevel,
		WaitForCompletion: true,
		Timeout:         req.Timeout,
	}

	var settleResult payment.Result
	if destNetwork == source {
		settleResult, err = a.transfer.Execute(ctx, source, settleReq)
	} else {
		settleReq.DestinationChain = string(destNetwork)
		settleResult, err = a.gateway.Execute(ctx, source, settleReq)
	}
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: settlement: %w", err)
	}
	if !settleResult.Success {
		return payment.Result{
			Success: false,
			Amount:  requiredAmount,
			Status:  payment.StatusFailed,
			Method:  payment.MethodX402,
			Error:   fmt.Sprintf("on-chain settlement failed: %s", settleResult.Error),
		}, nil
	}

	fromAddress := ""
	if w, err := a.transfer.provider.GetWallet(ctx, req.WalletID); err == nil {
		fromAddress = w.Address
	}

	envelope := v2Envelope{
		X402Version: 2,
		Scheme:      requirement.Scheme,
		Network:     requirement.Network,
		Payload: v2PayloadInner{
			TransactionHash: settleResult.BlockchainTx,
			FromAddress:     fromAddress,
			ToAddress:       requirement.Recipient,
			Amount:          strconv.FormatInt(requiredAmount.Atomic, 10),
		},
		Resource: requirement.Resource,
	}
	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: marshal payment signature: %w", err)
	}
	signatureHeader := base64.StdEncoding.EncodeToString(envelopeJSON)

	retryReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Recipient, nil)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: build retry request: %w", err)
	}
	retryReq.Header.Set("PAYMENT-SIGNATURE", signatureHeader)

	retryResp, err := a.httpClient.Do(retryReq)
	if err != nil {
		return payment.Result{}, fmt.Errorf("router: x402: retry fetch: %w", err)
	}
	retryBody, _ := io.ReadAll(retryResp.Body)
	retryResp.Body.Close()

	metadata := map[string]interface{}{
		"payment_response_header": retryResp.Header.Get("PAYMENT-RESPONSE"),
	}

	if retryResp.StatusCode != http.StatusOK {
		return payment.Result{
			Success:      false,
			TransactionID: settleResult.TransactionID,
			BlockchainTx: settleResult.BlockchainTx,
			Amount:       requiredAmount,
			Recipient:    req.Recipient,
			Method:       payment.MethodX402,
			Status:       payment.StatusFailed,
			Error:        fmt.Sprintf("resource server rejected settled payment: HTTP %d", retryResp.StatusCode),
			Metadata:     metadata,
		}, nil
	}

	var resourceData map[string]interface{}
	_ = json.Unmarshal(retryBody, &resourceData)

	return payment.Result{
		Success:       true,
		TransactionID: settleResult.TransactionID,
		BlockchainTx:  settleResult.BlockchainTx,
		Amount:        requiredAmount,
		Recipient:     req.Recipient,
		Method:        payment.MethodX402,
		Status:        payment.StatusCompleted,
		ResourceData:  resourceData,
		Metadata:      metadata,
	}, nil
}

func (a *X402Adapter) Simulate(ctx context.Context, source network.Network, req payment.Request) (payment.SimulationResult, error) {
	if !a.Supports(ctx, source, req) {
		return payment.SimulationResult{WouldSucceed: false, Reason: "recipient is not an http(s) URL"}, nil
	}
	fee := money.Zero(req.Amount.Asset)
	return payment.SimulationResult{WouldSucceed: true, Route: payment.MethodX402, EstimatedFee: &fee, Reason: "resource payment requirements known only at fetch time"}, nil
}

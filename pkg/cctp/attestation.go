package cctp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cedrospay/agentpay/internal/httputil"
)

// attestationMessage is one entry in Circle's /v1/messages/{domain}/{txHash}
// response.
type attestationMessage struct {
	Message     string `json:"message"`
	Attestation string `json:"attestation"`
	Status      string `json:"status"`
}

type attestationResponse struct {
	Messages []attestationMessage `json:"messages"`
}

// HTTPAttestationClient polls Circle's public attestation service.
type HTTPAttestationClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPAttestationClient builds a client against baseURL (e.g.
// "https://iris-api.circle.com").
func NewHTTPAttestationClient(baseURL string, httpClient *http.Client) *HTTPAttestationClient {
	if httpClient == nil {
		httpClient = httputil.NewClient(15 * time.Second)
	}
	return &HTTPAttestationClient{baseURL: baseURL, httpClient: httpClient}
}

// PollAttestation polls every interval until a message with status
// "complete" appears or timeout elapses.
func (c *HTTPAttestationClient) PollAttestation(ctx context.Context, sourceDomain int, burnTxHash string, interval, timeout time.Duration) (message, attestation string, err error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	url := fmt.Sprintf("%s/v1/messages/%d/%s", c.baseURL, sourceDomain, burnTxHash)

	for {
		msg, att, found, ferr := c.fetchOnce(ctx, url)
		if ferr == nil && found {
			return msg, att, nil
		}

		if time.Now().After(deadline) {
			return "", "", fmt.Errorf("cctp: attestation poll timed out for %s", burnTxHash)
		}

		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *HTTPAttestationClient) fetchOnce(ctx context.Context, url string) (message, attestation string, found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", false, err
	}

	var parsed attestationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", false, err
	}

	for _, m := range parsed.Messages {
		if m.Status == "complete" {
			return m.Message, m.Attestation, true, nil
		}
	}
	return "", "", false, nil
}

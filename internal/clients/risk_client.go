// Package clients holds outbound HTTP/RPC integrations: the risk
// provider, the chain RPC providers, and the lifecycle-event publisher.
package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RiskClient queries an external compliance/risk provider. With an empty
// baseURL it falls back to deterministic mock mode, mirroring the
// escape hatch the rest of the backend's oracle clients use when no
// provider endpoint is configured.
type RiskClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRiskClient(baseURL string, timeout time.Duration) *RiskClient {
	return &RiskClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type riskRequest struct {
	Address string `json:"address"`
}

// RiskResponse mirrors the provider contract: a 1-10 score, a free-text
// level label, and free-text reasoning.
type RiskResponse struct {
	RiskScore int    `json:"risk_score"`
	RiskLevel string `json:"risk_level"`
	Reasoning string `json:"reasoning"`
}

// mockTombstoneAddress is always rejected in mock mode.
const mockTombstoneAddress = "4o0p5nCTkh9eK6fnn7P5JzYQJbr5JhFg6YLBF9fQb3Sg"

func (c *RiskClient) Query(address string) (*RiskResponse, error) {
	if c.baseURL == "" {
		return c.mockQuery(address), nil
	}

	body, err := json.Marshal(riskRequest{Address: address})
	if err != nil {
		return nil, fmt.Errorf("marshal risk request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/risk/assess", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build risk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call risk provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("risk provider returned status %d", resp.StatusCode)
	}

	var out RiskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode risk response: %w", err)
	}
	return &out, nil
}

// mockQuery implements the documented mock contract: reject the fixed
// tombstone address, reject any address whose lowercase form starts with
// "hack", otherwise approve with a low score.
func (c *RiskClient) mockQuery(address string) *RiskResponse {
	lower := strings.ToLower(address)
	switch {
	case address == mockTombstoneAddress:
		return &RiskResponse{RiskScore: 10, RiskLevel: "critical", Reasoning: "address matches known tombstone entry"}
	case strings.HasPrefix(lower, "hack"):
		return &RiskResponse{RiskScore: 9, RiskLevel: "severe", Reasoning: "address flagged by heuristic mock provider"}
	default:
		return &RiskResponse{RiskScore: 1, RiskLevel: "low", Reasoning: "no adverse signal in mock provider"}
	}
}

func (c *RiskClient) TestConnection() error {
	if c.baseURL == "" {
		return nil
	}
	resp, err := c.httpClient.Get(c.baseURL + "/healthz")
	if err != nil {
		return fmt.Errorf("risk provider health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("risk provider health check returned status %d", resp.StatusCode)
	}
	return nil
}

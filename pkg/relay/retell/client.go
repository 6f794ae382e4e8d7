// Package retell talks to the voice platform's REST API and checks its
// webhook signatures.
package retell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vango-go/santa-relay/pkg/relay/protocol"
)

const DefaultBaseURL = "https://api.retellai.com"

// Call is the subset of the platform's call record the relay uses.
type Call struct {
	CallID           string                    `json:"call_id"`
	AgentID          string                    `json:"agent_id,omitempty"`
	CallType         string                    `json:"call_type,omitempty"`
	CallStatus       string                    `json:"call_status,omitempty"`
	FromNumber       string                    `json:"from_number,omitempty"`
	ToNumber         string                    `json:"to_number,omitempty"`
	Direction        string                    `json:"direction,omitempty"`
	RecordingURL     string                    `json:"recording_url,omitempty"`
	DisconnectReason string                    `json:"disconnection_reason,omitempty"`
	StartTimestamp   int64                     `json:"start_timestamp,omitempty"`
	EndTimestamp     int64                     `json:"end_timestamp,omitempty"`
	DynamicVariables protocol.DynamicVariables `json:"retell_llm_dynamic_variables,omitempty"`
}

// HTTPStatusError is returned for non-2xx API responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("retell: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("retell: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// GetCall fetches a call record by id.
func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	if c == nil || c.APIKey == "" {
		return nil, fmt.Errorf("retell: missing api key")
	}
	if strings.TrimSpace(callID) == "" {
		return nil, fmt.Errorf("retell: missing call id")
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v2/get-call/"+url.PathEscape(callID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retell: get call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var call Call
	if err := json.NewDecoder(res.Body).Decode(&call); err != nil {
		return nil, fmt.Errorf("retell: decode call: %w", err)
	}
	return &call, nil
}

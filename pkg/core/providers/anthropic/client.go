package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/santa-relay/pkg/core"
)

const maxErrorBodyBytes = 64 << 10

func (p *Provider) doStreamRequest(ctx context.Context, req *messagesRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.baseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError(providerName, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseError(resp)
	}
	return resp.Body, nil
}

// anthropicError is the error envelope used both for HTTP errors and for
// "error" events inside a stream.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := strings.TrimSpace(string(body))
	var ae anthropicError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}
	return core.ErrorFromStatus(providerName, resp.StatusCode, msg)
}

func streamError(ae anthropicError) *core.Error {
	t := core.ErrorType(ae.Error.Type)
	switch t {
	case core.ErrInvalidRequest, core.ErrAuthentication, core.ErrPermission, core.ErrNotFound,
		core.ErrRateLimit, core.ErrAPI, core.ErrOverloaded:
	default:
		t = core.ErrProvider
	}
	return &core.Error{Type: t, Message: ae.Error.Message, Provider: providerName}
}

// Package openai streams chat completions from the OpenAI Chat Completions API.
package openai

import (
	"context"
	"net/http"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/types"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	providerName = "openai"
)

// Provider implements core.Provider for OpenAI.
type Provider struct {
	apiKey       string
	organization string
	baseURL      string
	httpClient   *http.Client
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return providerName }

// StreamChat starts a streaming chat completion.
func (p *Provider) StreamChat(ctx context.Context, req *types.Request) (core.EventStream, error) {
	body, err := p.doStreamRequest(ctx, buildRequest(req))
	if err != nil {
		return nil, err
	}
	return newEventStream(body), nil
}

var _ core.Provider = (*Provider)(nil)

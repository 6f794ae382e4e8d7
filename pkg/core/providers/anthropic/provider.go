// Package anthropic streams completions from the Anthropic Messages API.
package anthropic

import (
	"context"
	"net/http"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/types"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is the Messages API version header value.
	APIVersion = "2023-06-01"

	// DefaultMaxTokens is used when the request leaves MaxTokens unset;
	// the Messages API requires the field.
	DefaultMaxTokens = 1024

	providerName = "anthropic"
)

// Provider implements core.Provider for Anthropic.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Anthropic provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// New creates a new Anthropic provider.
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

// StreamChat starts a streaming message.
func (p *Provider) StreamChat(ctx context.Context, req *types.Request) (core.EventStream, error) {
	body, err := p.doStreamRequest(ctx, buildRequest(req))
	if err != nil {
		return nil, err
	}
	return newEventStream(body), nil
}

var _ core.Provider = (*Provider)(nil)

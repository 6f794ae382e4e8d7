// Package gemini streams completions from the Gemini API through the
// google.golang.org/genai client.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"google.golang.org/genai"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/types"
)

const providerName = "gemini"

// contentStreamer is the slice of *genai.Models the provider uses.
type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Provider implements core.Provider for Gemini.
type Provider struct {
	models contentStreamer
}

// Option configures the Gemini client.
type Option func(*genai.ClientConfig)

// WithHTTPClient sets the HTTP client used by the genai client.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *genai.ClientConfig) {
		if client != nil {
			cfg.HTTPClient = client
		}
	}
}

// WithBaseURL overrides the Gemini API base URL.
func WithBaseURL(url string) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = url
	}
}

// New creates a Gemini provider backed by the Gemini Developer API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Provider{models: client.Models}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return providerName }

// StreamChat starts a streaming generation.
func (p *Provider) StreamChat(ctx context.Context, req *types.Request) (core.EventStream, error) {
	contents, config := buildRequest(req)
	seq := p.models.GenerateContentStream(ctx, req.Model, contents, config)
	return newEventStream(seq), nil
}

func buildRequest(req *types.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
			if len(t.Parameters) > 0 {
				decl.ParametersJsonSchema = json.RawMessage(t.Parameters)
			}
			decls = append(decls, decl)
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case types.RoleSystem:
			continue
		case types.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, config
}

var _ core.Provider = (*Provider)(nil)

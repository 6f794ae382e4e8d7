package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/santa-relay/pkg/core/types"
)

// Engine routes "provider/model" requests to registered providers.
type Engine struct {
	registry *ProviderRegistry
}

// NewEngine creates an Engine with the given providers registered.
func NewEngine(providers ...Provider) *Engine {
	e := &Engine{registry: NewProviderRegistry()}
	for _, p := range providers {
		if p != nil {
			e.registry.Register(p)
		}
	}
	return e
}

// RegisterProvider adds a provider to the engine.
func (e *Engine) RegisterProvider(p Provider) {
	e.registry.Register(p)
}

// ProviderNames returns the registered provider names.
func (e *Engine) ProviderNames() []string {
	return e.registry.List()
}

// HasModel reports whether model parses and its provider is registered.
func (e *Engine) HasModel(model string) bool {
	providerName, _, err := ParseModelString(model)
	if err != nil {
		return false
	}
	_, ok := e.registry.Get(providerName)
	return ok
}

// StreamChat routes req to the provider named by its model prefix.
func (e *Engine) StreamChat(ctx context.Context, req *types.Request) (EventStream, error) {
	providerName, modelName, err := ParseModelString(req.Model)
	if err != nil {
		return nil, err
	}
	provider, ok := e.registry.Get(providerName)
	if !ok {
		return nil, NewProviderError(providerName, fmt.Errorf("provider not registered"))
	}

	reqCopy := *req
	reqCopy.Model = modelName
	return provider.StreamChat(ctx, &reqCopy)
}

// ParseModelString parses a model string in the format "provider/model-name".
func ParseModelString(model string) (provider string, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", NewInvalidRequestError(
			fmt.Sprintf("invalid model format: %q, expected 'provider/model-name'", model),
		)
	}
	return parts[0], parts[1], nil
}

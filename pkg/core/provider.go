package core

import (
	"context"
	"sort"
	"sync"

	"github.com/vango-go/santa-relay/pkg/core/types"
)

// Provider is implemented by every model backend.
type Provider interface {
	// Name returns the provider identifier used as the model prefix
	// (e.g. "openai" in "openai/gpt-4o").
	Name() string

	// StreamChat starts a streaming completion.
	StreamChat(ctx context.Context, req *types.Request) (EventStream, error)
}

// EventStream is an iterator over streamed completion chunks.
type EventStream interface {
	// Next returns the next chunk, or nil, io.EOF when the stream is done.
	Next() (types.Chunk, error)

	// Close releases resources. It is safe to call more than once.
	Close() error
}

// ProviderRegistry holds providers by name.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *ProviderRegistry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the registered names in sorted order.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

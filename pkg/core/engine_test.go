package core

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/vango-go/santa-relay/pkg/core/types"
)

type recordingProvider struct {
	name string
	got  *types.Request
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) StreamChat(_ context.Context, req *types.Request) (EventStream, error) {
	p.got = req
	return emptyStream{}, nil
}

type emptyStream struct{}

func (emptyStream) Next() (types.Chunk, error) { return nil, io.EOF }
func (emptyStream) Close() error               { return nil }

func TestParseModelString(t *testing.T) {
	provider, model, err := ParseModelString("openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("ParseModelString error: %v", err)
	}
	if provider != "openai" || model != "gpt-4o-mini" {
		t.Fatalf("got %q %q", provider, model)
	}

	for _, bad := range []string{"gpt-4o", "/gpt-4o", "openai/", ""} {
		if _, _, err := ParseModelString(bad); err == nil {
			t.Fatalf("ParseModelString(%q) expected error", bad)
		}
	}
}

func TestEngine_StreamChatStripsProviderPrefix(t *testing.T) {
	p := &recordingProvider{name: "anthropic"}
	e := NewEngine(p)

	req := &types.Request{Model: "anthropic/claude-3-5-sonnet-latest"}
	if _, err := e.StreamChat(context.Background(), req); err != nil {
		t.Fatalf("StreamChat error: %v", err)
	}
	if p.got == nil || p.got.Model != "claude-3-5-sonnet-latest" {
		t.Fatalf("provider got model %+v", p.got)
	}
	if req.Model != "anthropic/claude-3-5-sonnet-latest" {
		t.Fatalf("caller request mutated: %q", req.Model)
	}
}

func TestEngine_UnknownProvider(t *testing.T) {
	e := NewEngine()
	_, err := e.StreamChat(context.Background(), &types.Request{Model: "groq/llama"})
	var ce *Error
	if !errors.As(err, &ce) || ce.Type != ErrProvider {
		t.Fatalf("err = %v, want provider error", err)
	}
	if e.HasModel("groq/llama") {
		t.Fatalf("HasModel should be false")
	}
}

func TestEngine_ProviderNamesSorted(t *testing.T) {
	e := NewEngine(&recordingProvider{name: "openai"}, &recordingProvider{name: "anthropic"}, nil)
	names := e.ProviderNames()
	if len(names) != 2 || names[0] != "anthropic" || names[1] != "openai" {
		t.Fatalf("ProviderNames = %v", names)
	}
}

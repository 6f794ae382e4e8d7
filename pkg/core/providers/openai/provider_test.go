package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/types"
)

func TestProvider_StreamChatSendsRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("OpenAI-Organization") != "org-1" {
			t.Errorf("organization = %q", r.Header.Get("OpenAI-Organization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Ho\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New("sk-test", WithBaseURL(srv.URL), WithOrganization("org-1"))
	stream, err := p.StreamChat(context.Background(), &types.Request{
		Model:       "gpt-4o",
		System:      "You are Santa.",
		Messages:    []types.Message{{Role: types.RoleUser, Content: "hi"}},
		Tools:       []types.Tool{{Name: "end_chat", Parameters: json.RawMessage(`{"type":"object"}`)}},
		Temperature: types.Float64(0.3),
	})
	if err != nil {
		t.Fatalf("StreamChat error: %v", err)
	}
	defer stream.Close()

	c, err := stream.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if td, ok := c.(types.TextDelta); !ok || td.Text != "Ho" {
		t.Fatalf("chunk = %#v", c)
	}

	if !got.Stream || got.Model != "gpt-4o" {
		t.Fatalf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if len(got.Tools) != 1 || got.Tools[0].Type != "function" || got.Tools[0].Function.Name != "end_chat" {
		t.Fatalf("tools = %+v", got.Tools)
	}
	if got.Temperature == nil || *got.Temperature != 0.3 {
		t.Fatalf("temperature = %v", got.Temperature)
	}
}

func TestProvider_StreamChatMapsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := New("bad", WithBaseURL(srv.URL)).StreamChat(context.Background(), &types.Request{Model: "gpt-4o"})
	var ce *core.Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *core.Error", err)
	}
	if ce.Type != core.ErrAuthentication || ce.Message != "Incorrect API key" || ce.StatusCode != 401 {
		t.Fatalf("err = %+v", ce)
	}
}

package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"testing"

	"google.golang.org/genai"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/types"
)

type fakeModels struct {
	model     string
	contents  []*genai.Content
	config    *genai.GenerateContentConfig
	responses []*genai.GenerateContentResponse
	err       error
}

func (f *fakeModels) GenerateContentStream(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.model, f.contents, f.config = model, contents, config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range f.responses {
			if !yield(r, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

func response(finish genai.FinishReason, parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: string(genai.RoleModel), Parts: parts},
			FinishReason: finish,
		}},
	}
}

func TestStreamChat_TextAndFunctionCall(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{
		response("", &genai.Part{Text: "Ho-Ho"}),
		response(genai.FinishReasonStop,
			&genai.Part{Text: "-Ho!"},
			&genai.Part{FunctionCall: &genai.FunctionCall{Name: "end_chat", Args: map[string]any{"message": "Bye!"}}},
		),
	}}
	p := &Provider{models: fake}

	stream, err := p.StreamChat(context.Background(), &types.Request{
		Model:       "gemini-2.0-flash",
		System:      "You are Santa.",
		Temperature: types.Float64(0.8),
		Messages: []types.Message{
			{Role: types.RoleAssistant, Content: "Ho-Ho-Ho!"},
			{Role: types.RoleUser, Content: "hi"},
		},
		Tools: []types.Tool{{Name: "end_chat", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	if err != nil {
		t.Fatalf("StreamChat error: %v", err)
	}
	defer stream.Close()

	var chunks []types.Chunk
	for {
		c, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		chunks = append(chunks, c)
	}

	if len(chunks) != 5 {
		t.Fatalf("chunks = %#v", chunks)
	}
	if st := chunks[2].(types.ToolCallStart); st.Name != "end_chat" {
		t.Fatalf("start = %#v", st)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(chunks[3].(types.ToolCallDelta).Arguments), &args); err != nil || args["message"] != "Bye!" {
		t.Fatalf("args = %v (%v)", args, err)
	}
	if end := chunks[4].(types.StreamEnd); end.StopReason != types.StopReasonEndTurn {
		t.Fatalf("stop = %q", end.StopReason)
	}

	if fake.model != "gemini-2.0-flash" {
		t.Fatalf("model = %q", fake.model)
	}
	if len(fake.contents) != 2 || fake.contents[0].Role != string(genai.RoleModel) || fake.contents[1].Role != string(genai.RoleUser) {
		t.Fatalf("contents = %+v", fake.contents)
	}
	if fake.config.SystemInstruction == nil || fake.config.Temperature == nil || *fake.config.Temperature != float32(0.8) {
		t.Fatalf("config = %+v", fake.config)
	}
	if len(fake.config.Tools) != 1 || fake.config.Tools[0].FunctionDeclarations[0].Name != "end_chat" {
		t.Fatalf("tools = %+v", fake.config.Tools)
	}
}

func TestStreamChat_IteratorError(t *testing.T) {
	fake := &fakeModels{err: errors.New("quota exceeded")}
	stream, err := (&Provider{models: fake}).StreamChat(context.Background(), &types.Request{Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("StreamChat error: %v", err)
	}
	defer stream.Close()

	_, err = stream.Next()
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Provider != providerName {
		t.Fatalf("err = %v, want gemini provider error", err)
	}
}

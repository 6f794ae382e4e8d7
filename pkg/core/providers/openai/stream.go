package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/vango-go/santa-relay/pkg/core/types"
)

// eventStream implements core.EventStream for Chat Completions SSE bodies.
type eventStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	err      error
	pending  []types.Chunk
	finish   string
	finished bool
	closed   bool
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content,omitempty"`
			ToolCalls []toolCallDelta `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next chunk. Returns nil, io.EOF when the stream is complete.
func (s *eventStream) Next() (types.Chunk, error) {
	for {
		if len(s.pending) > 0 {
			c := s.pending[0]
			s.pending = s.pending[1:]
			return c, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if s.finished {
			return nil, io.EOF
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.markFinished()
				continue
			}
			s.err = err
			return nil, err
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.markFinished()
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		s.queue(chunk)
	}
}

func (s *eventStream) queue(chunk chatChunk) {
	// Chunks with no choices (usage trailers, keep-alives) carry nothing to forward.
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			s.pending = append(s.pending, types.TextDelta{Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			if tc.ID != "" || tc.Function.Name != "" {
				s.pending = append(s.pending, types.ToolCallStart{ID: tc.ID, Name: tc.Function.Name})
			}
			if tc.Function.Arguments != "" {
				s.pending = append(s.pending, types.ToolCallDelta{Arguments: tc.Function.Arguments})
			}
		}
		if choice.FinishReason != "" {
			s.finish = choice.FinishReason
		}
	}
}

// markFinished queues the terminal StreamEnd once.
func (s *eventStream) markFinished() {
	if s.finished {
		return
	}
	s.finished = true
	s.pending = append(s.pending, types.StreamEnd{StopReason: stopReason(s.finish)})
}

func stopReason(finish string) types.StopReason {
	switch finish {
	case "stop", "":
		return types.StopReasonEndTurn
	case "length":
		return types.StopReasonMaxTokens
	case "tool_calls", "function_call":
		return types.StopReasonToolUse
	default:
		return types.StopReasonOther
	}
}

// Close releases the response body.
func (s *eventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.closer.Close()
}

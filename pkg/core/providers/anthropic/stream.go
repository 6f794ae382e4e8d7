package anthropic

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/vango-go/santa-relay/pkg/core/types"
)

// eventStream implements core.EventStream for Messages API SSE bodies.
type eventStream struct {
	reader     *bufio.Reader
	closer     io.Closer
	err        error
	eventType  string
	stopReason string
	done       bool
	closed     bool
}

type streamEvent struct {
	Type         string `json:"type"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
		Text string `json:"text"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next chunk. Returns nil, io.EOF when the stream is complete.
func (s *eventStream) Next() (types.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return s.end(), nil
			}
			s.err = err
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			s.eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))

		if s.eventType == "error" {
			var ae anthropicError
			if err := json.Unmarshal(data, &ae); err == nil {
				s.err = streamError(ae)
				return nil, s.err
			}
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if c := s.translate(ev); c != nil {
			return c, nil
		}
		if s.done {
			return s.end(), nil
		}
	}
}

func (s *eventStream) translate(ev streamEvent) types.Chunk {
	switch ev.Type {
	case "content_block_start":
		switch ev.ContentBlock.Type {
		case "tool_use":
			return types.ToolCallStart{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
		case "text":
			if ev.ContentBlock.Text != "" {
				return types.TextDelta{Text: ev.ContentBlock.Text}
			}
		}
	case "content_block_delta":
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text != "" {
				return types.TextDelta{Text: ev.Delta.Text}
			}
		case "input_json_delta":
			if ev.Delta.PartialJSON != "" {
				return types.ToolCallDelta{Arguments: ev.Delta.PartialJSON}
			}
		}
	case "message_delta":
		if ev.Delta.StopReason != "" {
			s.stopReason = ev.Delta.StopReason
		}
	case "message_stop":
		s.done = true
	}
	return nil
}

// end returns the terminal StreamEnd and marks the stream done.
func (s *eventStream) end() types.Chunk {
	s.done = true
	var reason types.StopReason
	switch s.stopReason {
	case "end_turn", "stop_sequence", "":
		reason = types.StopReasonEndTurn
	case "max_tokens":
		reason = types.StopReasonMaxTokens
	case "tool_use":
		reason = types.StopReasonToolUse
	default:
		reason = types.StopReasonOther
	}
	return types.StreamEnd{StopReason: reason}
}

// Close releases the response body.
func (s *eventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.closer.Close()
}

package gemini

import (
	"encoding/json"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/types"
)

// eventStream adapts a genai response sequence to core.EventStream.
type eventStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []types.Chunk
	finish  genai.FinishReason
	done    bool
	err     error
}

func newEventStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *eventStream {
	next, stop := iter.Pull2(seq)
	return &eventStream{next: next, stop: stop}
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
		if s.done {
			return nil, io.EOF
		}

		resp, err, ok := s.next()
		if !ok {
			s.done = true
			s.pending = append(s.pending, types.StreamEnd{StopReason: stopReason(s.finish)})
			continue
		}
		if err != nil {
			s.err = core.NewProviderError(providerName, err)
			return nil, s.err
		}
		s.queue(resp)
	}
}

func (s *eventStream) queue(resp *genai.GenerateContentResponse) {
	if resp == nil || len(resp.Candidates) == 0 {
		return
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		s.finish = cand.FinishReason
	}
	if cand.Content == nil {
		return
	}
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			s.pending = append(s.pending, types.TextDelta{Text: part.Text})
		}
		if fc := part.FunctionCall; fc != nil {
			s.pending = append(s.pending, types.ToolCallStart{ID: fc.ID, Name: fc.Name})
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			if raw, err := json.Marshal(args); err == nil {
				s.pending = append(s.pending, types.ToolCallDelta{Arguments: string(raw)})
			}
		}
	}
}

func stopReason(r genai.FinishReason) types.StopReason {
	switch r {
	case genai.FinishReasonStop, "":
		return types.StopReasonEndTurn
	case genai.FinishReasonMaxTokens:
		return types.StopReasonMaxTokens
	default:
		return types.StopReasonOther
	}
}

// Close stops the underlying iterator.
func (s *eventStream) Close() error {
	s.stop()
	return nil
}

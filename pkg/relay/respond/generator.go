// Package respond streams one model completion into response events.
package respond

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/types"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/protocol"
)

// Streamer starts model completions. *core.Engine implements it.
type Streamer interface {
	StreamChat(ctx context.Context, req *types.Request) (core.EventStream, error)
}

// Generator produces response events for one persona.
type Generator struct {
	Streamer Streamer
	Persona  *persona.Persona
	Logger   *slog.Logger
}

// Generate starts a completion for req and returns the event sequence for
// responseID. The sequence is finite and single-use.
func (g *Generator) Generate(ctx context.Context, responseID int64, req *types.Request) (*Stream, error) {
	if g.Streamer == nil {
		return nil, errors.New("respond: nil streamer")
	}
	upstream, err := g.Streamer.StreamChat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start completion: %w", err)
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		responseID: responseID,
		persona:    g.Persona,
		upstream:   upstream,
		logger:     logger,
	}, nil
}

// Stream yields the events of one response. Text fragments are returned as
// soon as they arrive; exactly one terminal event follows them unless an
// error is returned first.
type Stream struct {
	responseID int64
	persona    *persona.Persona
	upstream   core.EventStream
	logger     *slog.Logger

	tool     *ToolCall
	args     strings.Builder
	draining bool
	done     bool
	err      error
	warning  error
}

// Next returns the next event, or io.EOF after the terminal event.
func (s *Stream) Next() (protocol.ResponseEvent, error) {
	if s.err != nil {
		return protocol.ResponseEvent{}, s.err
	}
	if s.done {
		return protocol.ResponseEvent{}, io.EOF
	}

	for !s.draining {
		chunk, err := s.upstream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.fail(fmt.Errorf("model stream: %w", err))
			return protocol.ResponseEvent{}, s.err
		}

		switch c := chunk.(type) {
		case types.TextDelta:
			if c.Text != "" {
				return protocol.Fragment(s.responseID, c.Text), nil
			}
		case types.ToolCallStart:
			if s.tool != nil {
				// A second call would compete with the first; stop here.
				s.draining = true
				continue
			}
			s.tool = &ToolCall{ID: c.ID, Name: c.Name}
		case types.ToolCallDelta:
			if s.tool != nil {
				s.args.WriteString(c.Arguments)
			}
		}
	}

	_ = s.upstream.Close()
	ev, err := s.terminal()
	if err != nil {
		s.fail(err)
		return protocol.ResponseEvent{}, err
	}
	s.done = true
	return ev, nil
}

func (s *Stream) terminal() (protocol.ResponseEvent, error) {
	if s.tool == nil {
		return protocol.Terminal(s.responseID, "", false), nil
	}
	s.tool.Arguments = s.args.String()

	action, err := Resolve(s.persona, *s.tool)
	if err != nil {
		return protocol.ResponseEvent{}, err
	}
	switch a := action.(type) {
	case EndCall:
		s.logger.Info("tool call ends call", "response_id", s.responseID, "tool", s.tool.Name)
		return protocol.Terminal(s.responseID, a.Message, true), nil
	case Speak:
		s.logger.Info("tool call", "response_id", s.responseID, "tool", a.Tool, "fields", fieldNames(a.Fields))
		return protocol.Terminal(s.responseID, a.Message, false), nil
	default:
		s.warning = fmt.Errorf("%w %q", ErrUnknownTool, s.tool.Name)
		s.logger.Warn("model called unknown tool", "response_id", s.responseID, "tool", s.tool.Name)
		return protocol.Terminal(s.responseID, "", false), nil
	}
}

func (s *Stream) fail(err error) {
	s.err = err
	_ = s.upstream.Close()
}

// ToolCall returns the latched tool call, if any.
func (s *Stream) ToolCall() (ToolCall, bool) {
	if s.tool == nil {
		return ToolCall{}, false
	}
	return *s.tool, true
}

// Warning reports a non-fatal problem found while finishing the stream.
func (s *Stream) Warning() error { return s.warning }

// Close releases the model stream. It is safe to call at any time.
func (s *Stream) Close() error {
	return s.upstream.Close()
}

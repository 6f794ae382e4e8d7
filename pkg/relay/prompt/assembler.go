// Package prompt turns a response request and the call's state into the
// message list sent to the model.
package prompt

import (
	"time"

	"github.com/vango-go/santa-relay/pkg/core/types"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/protocol"
)

// State is the slice of session state the assembler reads.
type State struct {
	// Metadata is nil until call_details carried dynamic variables.
	Metadata *protocol.Metadata
	// Opening is the opening line already sent on the channel, if any.
	Opening string
}

// Assembler builds prompts for one persona. It never mutates its inputs.
type Assembler struct {
	Persona *persona.Persona
	// Now defaults to time.Now.
	Now func() time.Time
}

func (a Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// System returns the single system message text: persona text followed by
// the personalization block when metadata is present.
func (a Assembler) System(state State) string {
	text := a.Persona.SystemText(a.now())
	if block := a.Persona.Context(state.Metadata); block != "" {
		text += "\n\nPersonalized Context:\n" + block
	}
	return text
}

// Conversation returns the non-system messages for req.
func (a Assembler) Conversation(state State, req protocol.ResponseRequest) []types.Message {
	msgs := make([]types.Message, 0, len(req.Transcript)+3)
	if a.Persona.LeadIn != "" {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: a.Persona.LeadIn})
	}
	// The platform snapshot normally includes the opening line once it has
	// been spoken; only fill it in when it is missing.
	if state.Opening != "" && !containsAgentLine(req.Transcript, state.Opening) {
		msgs = append(msgs, types.Message{Role: types.RoleAssistant, Content: state.Opening})
	}
	msgs = reconcileOnto(msgs, a.Persona.Reconcile, req.Transcript)
	if req.IsReminder() {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: a.Persona.Reminder})
	}
	return msgs
}

// Assemble returns the full ordered prompt: one system message, the
// reconciled transcript, and the reminder nudge when requested.
func (a Assembler) Assemble(state State, req protocol.ResponseRequest) []types.Message {
	conv := a.Conversation(state, req)
	out := make([]types.Message, 0, len(conv)+1)
	out = append(out, types.Message{Role: types.RoleSystem, Content: a.System(state)})
	return append(out, conv...)
}

// Request builds the model request for req, with the system text split out
// for providers that carry it separately.
func (a Assembler) Request(state State, req protocol.ResponseRequest) *types.Request {
	p := a.Persona
	return &types.Request{
		Model:       p.Model,
		System:      a.System(state),
		Messages:    a.Conversation(state, req),
		Tools:       p.ModelTools(),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
}

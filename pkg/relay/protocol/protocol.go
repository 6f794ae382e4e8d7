// Package protocol defines the frames exchanged with the voice platform over
// the per-call duplex channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

type InteractionType string

const (
	InteractionCallDetails      InteractionType = "call_details"
	InteractionPingPong         InteractionType = "ping_pong"
	InteractionUpdateOnly       InteractionType = "update_only"
	InteractionResponseRequired InteractionType = "response_required"
	InteractionReminderRequired InteractionType = "reminder_required"
)

// Role is the speaker of an utterance as reported by the platform.
type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Utterance is one turn of the call transcript.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Call is the call record carried by call_details.
type Call struct {
	CallID           string           `json:"call_id"`
	AgentID          string           `json:"agent_id,omitempty"`
	CallType         string           `json:"call_type,omitempty"`
	FromNumber       string           `json:"from_number,omitempty"`
	ToNumber         string           `json:"to_number,omitempty"`
	Direction        string           `json:"direction,omitempty"`
	DynamicVariables DynamicVariables `json:"retell_llm_dynamic_variables,omitempty"`
}

type CallDetails struct {
	InteractionType InteractionType `json:"interaction_type"`
	Call            Call            `json:"call"`
}

type PingPong struct {
	InteractionType InteractionType `json:"interaction_type"`
	Timestamp       json.Number     `json:"timestamp"`
}

type UpdateOnly struct {
	InteractionType InteractionType `json:"interaction_type"`
	Transcript      []Utterance     `json:"transcript"`
}

// ResponseRequest asks for a response. It is used for both
// response_required and reminder_required.
type ResponseRequest struct {
	InteractionType InteractionType `json:"interaction_type"`
	ResponseID      int64           `json:"response_id"`
	Transcript      []Utterance     `json:"transcript"`
}

// IsReminder reports whether the platform is nudging after user silence.
func (r ResponseRequest) IsReminder() bool {
	return r.InteractionType == InteractionReminderRequired
}

// Unknown is returned for interaction types this relay does not handle.
type Unknown struct {
	InteractionType InteractionType
}

// DecodeRequest decodes one inbound frame by its interaction_type.
func DecodeRequest(data []byte) (any, error) {
	var envelope struct {
		InteractionType string `json:"interaction_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := InteractionType(strings.TrimSpace(envelope.InteractionType))
	if typ == "" {
		return nil, badRequest("missing interaction_type", "interaction_type")
	}

	switch typ {
	case InteractionCallDetails:
		var msg CallDetails
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid call_details frame", "call")
		}
		return msg, nil
	case InteractionPingPong:
		var msg PingPong
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid ping_pong frame", "timestamp")
		}
		return msg, nil
	case InteractionUpdateOnly:
		var msg UpdateOnly
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid update_only frame", "transcript")
		}
		return msg, nil
	case InteractionResponseRequired, InteractionReminderRequired:
		var msg ResponseRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid "+string(typ)+" frame", "")
		}
		if msg.ResponseID < 0 {
			return nil, badRequest(string(typ)+".response_id must be >= 0", "response_id")
		}
		return msg, nil
	default:
		return Unknown{InteractionType: typ}, nil
	}
}

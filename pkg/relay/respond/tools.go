package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vango-go/santa-relay/pkg/relay/persona"
)

// ErrUnknownTool is reported when the model calls a tool the persona does
// not define.
var ErrUnknownTool = errors.New("unknown tool")

// ToolError is a tool call whose arguments could not be used.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ToolCall is the first tool call of a completion, with its argument text
// accumulated across fragments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Action is the decoded outcome of a tool call.
type Action interface {
	isAction()
}

// EndCall speaks Message and asks the platform to hang up.
type EndCall struct {
	Message string
}

// Speak speaks Message and keeps the call open. Fields holds the remaining
// arguments (e.g. "wish", "magic_type").
type Speak struct {
	Tool    string
	Message string
	Fields  map[string]any
}

// UnknownTool names a tool the persona does not define.
type UnknownTool struct {
	Name string
}

func (EndCall) isAction()     {}
func (Speak) isAction()       {}
func (UnknownTool) isAction() {}

// Resolve decodes call against the persona's tool set.
func Resolve(p *persona.Persona, call ToolCall) (Action, error) {
	tool, ok := p.Tool(call.Name)
	if !ok {
		return UnknownTool{Name: call.Name}, nil
	}

	raw := strings.TrimSpace(call.Arguments)
	if raw == "" {
		raw = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &ToolError{Tool: call.Name, Err: fmt.Errorf("decode arguments: %w", err)}
	}
	msg, ok := args["message"].(string)
	if !ok {
		return nil, &ToolError{Tool: call.Name, Err: errors.New(`arguments missing string "message"`)}
	}

	switch tool.Kind {
	case persona.ToolEndCall:
		return EndCall{Message: msg}, nil
	default:
		delete(args, "message")
		return Speak{Tool: call.Name, Message: msg, Fields: args}, nil
	}
}

// fieldNames returns the sorted argument keys, for logging without values.
func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

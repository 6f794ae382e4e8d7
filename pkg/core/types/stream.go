package types

// Chunk is a single item of a streamed model completion.
type Chunk interface {
	chunkType() string
}

// TextDelta carries a fragment of assistant text.
type TextDelta struct {
	Text string
}

// ToolCallStart marks the beginning of a tool call.
// Providers that do not stream tool identifiers leave ID empty.
type ToolCallStart struct {
	ID   string
	Name string
}

// ToolCallDelta carries a fragment of the current tool call's JSON arguments.
type ToolCallDelta struct {
	Arguments string
}

// StreamEnd is emitted once, before io.EOF, when the provider reports a stop reason.
type StreamEnd struct {
	StopReason StopReason
}

// StopReason explains why a completion ended.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonOther     StopReason = "other"
)

func (TextDelta) chunkType() string     { return "text_delta" }
func (ToolCallStart) chunkType() string { return "tool_call_start" }
func (ToolCallDelta) chunkType() string { return "tool_call_delta" }
func (StreamEnd) chunkType() string     { return "stream_end" }

// ChunkType returns a short name for c, used in logs.
func ChunkType(c Chunk) string {
	if c == nil {
		return ""
	}
	return c.chunkType()
}

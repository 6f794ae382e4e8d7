package protocol

import "encoding/json"

const (
	ResponseTypeConfig   = "config"
	ResponseTypeResponse = "response"
	ResponseTypePingPong = "ping_pong"
)

type ChannelConfig struct {
	AutoReconnect bool `json:"auto_reconnect"`
	CallDetails   bool `json:"call_details"`
}

// ConfigResponse is sent once when the channel opens.
type ConfigResponse struct {
	ResponseType string        `json:"response_type"`
	Config       ChannelConfig `json:"config"`
	ResponseID   int64         `json:"response_id"`
}

// NewConfigResponse requests reconnects and a call_details frame.
func NewConfigResponse() ConfigResponse {
	return ConfigResponse{
		ResponseType: ResponseTypeConfig,
		Config:       ChannelConfig{AutoReconnect: true, CallDetails: true},
		ResponseID:   1,
	}
}

// ResponseEvent is one fragment (or the terminal event) of a response.
type ResponseEvent struct {
	ResponseType    string `json:"response_type"`
	ResponseID      int64  `json:"response_id"`
	Content         string `json:"content"`
	ContentComplete bool   `json:"content_complete"`
	EndCall         bool   `json:"end_call"`
}

// Fragment builds a non-terminal event.
func Fragment(responseID int64, content string) ResponseEvent {
	return ResponseEvent{ResponseType: ResponseTypeResponse, ResponseID: responseID, Content: content}
}

// Terminal builds the content_complete event that closes a response.
func Terminal(responseID int64, content string, endCall bool) ResponseEvent {
	return ResponseEvent{
		ResponseType:    ResponseTypeResponse,
		ResponseID:      responseID,
		Content:         content,
		ContentComplete: true,
		EndCall:         endCall,
	}
}

type PingPongResponse struct {
	ResponseType string      `json:"response_type"`
	Timestamp    json.Number `json:"timestamp"`
}

// Pong echoes a ping_pong timestamp.
func Pong(ts json.Number) PingPongResponse {
	if ts == "" {
		ts = "0"
	}
	return PingPongResponse{ResponseType: ResponseTypePingPong, Timestamp: ts}
}

package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequest_CallDetails(t *testing.T) {
	raw := []byte(`{
		"interaction_type":"call_details",
		"call":{
			"call_id":"call_123",
			"to_number":"+15550100",
			"retell_llm_dynamic_variables":{"contact_child_name":"Ethan","contact_child_age":7,"contact_recording":"true"}
		}
	}`)
	msg, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	cd, ok := msg.(CallDetails)
	if !ok {
		t.Fatalf("decoded type = %T, want CallDetails", msg)
	}
	if cd.Call.CallID != "call_123" || cd.Call.ToNumber != "+15550100" {
		t.Fatalf("call = %+v", cd.Call)
	}
	if cd.Call.DynamicVariables["contact_child_age"] != "7" {
		t.Fatalf("age = %q, want 7", cd.Call.DynamicVariables["contact_child_age"])
	}
}

func TestDecodeRequest_ResponseAndReminder(t *testing.T) {
	for _, typ := range []string{"response_required", "reminder_required"} {
		raw := []byte(`{"interaction_type":"` + typ + `","response_id":4,"transcript":[{"role":"agent","content":"Hi"},{"role":"user","content":"hello"}]}`)
		msg, err := DecodeRequest(raw)
		if err != nil {
			t.Fatalf("%s: error = %v", typ, err)
		}
		req, ok := msg.(ResponseRequest)
		if !ok {
			t.Fatalf("%s: decoded type = %T", typ, msg)
		}
		if req.ResponseID != 4 || len(req.Transcript) != 2 || req.Transcript[1].Role != RoleUser {
			t.Fatalf("%s: req = %+v", typ, req)
		}
		if req.IsReminder() != (typ == "reminder_required") {
			t.Fatalf("%s: IsReminder = %v", typ, req.IsReminder())
		}
	}
}

func TestDecodeRequest_PingPongPreservesTimestamp(t *testing.T) {
	msg, err := DecodeRequest([]byte(`{"interaction_type":"ping_pong","timestamp":1703302407333}`))
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	ping := msg.(PingPong)
	out, err := json.Marshal(Pong(ping.Timestamp))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"response_type":"ping_pong","timestamp":1703302407333}` {
		t.Fatalf("pong = %s", out)
	}
}

func TestDecodeRequest_UnknownTypeIsNotAnError(t *testing.T) {
	msg, err := DecodeRequest([]byte(`{"interaction_type":"transfer_started"}`))
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	u, ok := msg.(Unknown)
	if !ok || u.InteractionType != "transfer_started" {
		t.Fatalf("decoded = %#v", msg)
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		param string
	}{
		{"invalid json", `{`, ""},
		{"missing type", `{"response_id":1}`, "interaction_type"},
		{"bad transcript", `{"interaction_type":"response_required","response_id":1,"transcript":"nope"}`, ""},
		{"negative id", `{"interaction_type":"response_required","response_id":-1}`, "response_id"},
	}
	for _, tc := range cases {
		_, err := DecodeRequest([]byte(tc.raw))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("%s: err = %v, want DecodeError", tc.name, err)
		}
		if de.Code != "bad_request" || de.Param != tc.param {
			t.Fatalf("%s: err = %+v", tc.name, de)
		}
	}
}

func TestNewConfigResponse(t *testing.T) {
	out, err := json.Marshal(NewConfigResponse())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"response_type":"config","config":{"auto_reconnect":true,"call_details":true},"response_id":1}`
	if string(out) != want {
		t.Fatalf("config = %s, want %s", out, want)
	}
}

func TestResponseEventShapes(t *testing.T) {
	out, _ := json.Marshal(Fragment(3, "Ho"))
	if !strings.Contains(string(out), `"content_complete":false`) || !strings.Contains(string(out), `"end_call":false`) {
		t.Fatalf("fragment = %s", out)
	}
	ev := Terminal(3, "Bye!", true)
	if !ev.ContentComplete || !ev.EndCall || ev.ResponseType != ResponseTypeResponse {
		t.Fatalf("terminal = %+v", ev)
	}
}

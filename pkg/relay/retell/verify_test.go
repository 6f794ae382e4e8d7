package retell

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestVerifySignature(t *testing.T) {
	now := time.UnixMilli(1733000000000)
	body := []byte(`{"event":"call_analyzed","data":{"call_id":"c1"}}`)
	header := SignatureValue("key_123", body, now)

	if err := VerifySignature("key_123", header, body, now.Add(time.Minute), 0); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	now := time.UnixMilli(1733000000000)
	body := []byte(`{"event":"call_started"}`)
	valid := SignatureValue("key_123", body, now)
	ts := strconv.FormatInt(now.UnixMilli(), 10)

	cases := []struct {
		name   string
		key    string
		header string
		body   []byte
		now    time.Time
		want   error
	}{
		{"missing", "key_123", "", body, now, ErrMissingSignature},
		{"wrong key", "other", valid, body, now, ErrInvalidSignature},
		{"tampered body", "key_123", valid, []byte(`{"event":"call_ended"}`), now, ErrInvalidSignature},
		{"garbage", "key_123", "not-a-signature", body, now, ErrInvalidSignature},
		{"bad timestamp", "key_123", "v=abc,d=" + Sign("key_123", body, "abc"), body, now, ErrInvalidSignature},
		{"missing digest", "key_123", "v=" + ts, body, now, ErrInvalidSignature},
		{"stale", "key_123", valid, body, now.Add(10 * time.Minute), ErrStaleSignature},
		{"future", "key_123", valid, body, now.Add(-10 * time.Minute), ErrStaleSignature},
		{"no key", "", valid, body, now, ErrInvalidSignature},
	}
	for _, tc := range cases {
		err := VerifySignature(tc.key, tc.header, tc.body, tc.now, 5*time.Minute)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v, want %v", tc.name, err, tc.want)
		}
	}
}

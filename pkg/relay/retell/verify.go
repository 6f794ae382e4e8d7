package retell

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "X-Retell-Signature"

// DefaultSignatureTolerance bounds clock skew between the platform and us.
const DefaultSignatureTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing retell signature")
	ErrInvalidSignature = errors.New("invalid retell signature")
	ErrStaleSignature   = errors.New("stale retell signature")
)

// VerifySignature validates a webhook body against its X-Retell-Signature
// header, formatted "v=<unix_ms>,d=<hex digest>". The digest is
// HMAC-SHA256 keyed by the API key over body followed by the timestamp.
func VerifySignature(apiKey, header string, body []byte, now time.Time, tolerance time.Duration) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	if apiKey == "" {
		return ErrInvalidSignature
	}

	var timestamp, digest string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrInvalidSignature
		}
		switch k {
		case "v":
			timestamp = v
		case "d":
			digest = v
		}
	}
	if timestamp == "" || digest == "" {
		return ErrInvalidSignature
	}

	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	signedAt := time.UnixMilli(ms)
	if now.Sub(signedAt) > tolerance || signedAt.Sub(now) > tolerance {
		return ErrStaleSignature
	}

	expected := Sign(apiKey, body, timestamp)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(digest))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex digest for body signed at timestamp (unix ms).
func Sign(apiKey string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	_, _ = mac.Write(body)
	_, _ = mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValue formats a header value for body signed at t.
func SignatureValue(apiKey string, body []byte, t time.Time) string {
	ts := strconv.FormatInt(t.UnixMilli(), 10)
	return "v=" + ts + ",d=" + Sign(apiKey, body, ts)
}

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrInvalidSignature is returned for missing, malformed, stale, or
// mismatching webhook signatures. Payloads failing verification must never
// be processed.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignatureVerifier authenticates webhook payloads signed with the
// processor's shared-secret scheme: the signature header carries a unix
// timestamp and one or more HMAC-SHA256 signatures of "<timestamp>.<body>".
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier creates a verifier for the given endpoint secret.
// tolerance bounds how old a signed timestamp may be; zero disables the
// staleness check.
func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	return &SignatureVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks the signature header against the raw request body. It
// returns ErrInvalidSignature on any failure; callers must not distinguish
// the failure modes to the sender.
func (v *SignatureVerifier) Verify(payload []byte, header string) error {
	if len(payload) == 0 || header == "" {
		return ErrInvalidSignature
	}

	var (
		timestamp  string
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = val
		case "v1":
			sig, err := hex.DecodeString(val)
			if err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(ts, 0))
		if age > v.tolerance || age < -v.tolerance {
			return ErrInvalidSignature
		}
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign produces a signature header for the given payload, used by tests and
// the integration suite to emit well-formed events.
func (v *SignatureVerifier) Sign(payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrTimestampTooOld    = errors.New("signature timestamp outside tolerance")
)

// DefaultTolerance bounds how stale a signed timestamp may be before the
// event is rejected as a possible replay.
const DefaultTolerance = 5 * time.Minute

// VerifySignature authenticates a processor webhook. The header carries
// "t=<unix ts>,v1=<hex digest>" and the digest is HMAC-SHA256 over
// "{timestamp}.{raw body}" with the shared secret. The raw body must be
// exactly the bytes received; any re-serialization breaks the digest.
func VerifySignature(secret string, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	ts, claimed, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		eventTime := time.Unix(ts, 0)
		if now.Sub(eventTime) > tolerance || eventTime.Sub(now) > tolerance {
			return ErrTimestampTooOld
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)

	if !hmac.Equal(mac.Sum(nil), claimed) {
		return ErrSignatureMismatch
	}
	return nil
}

func parseSignatureHeader(header string) (int64, []byte, error) {
	if header == "" {
		return 0, nil, ErrMissingSignature
	}

	var tsRaw, sigRaw string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			tsRaw = value
		case "v1":
			sigRaw = value
		}
	}
	if tsRaw == "" || sigRaw == "" {
		return 0, nil, ErrMalformedSignature
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, nil, ErrMalformedSignature
	}
	sig, err := hex.DecodeString(sigRaw)
	if err != nil || len(sig) != sha256.Size {
		return 0, nil, ErrMalformedSignature
	}

	return ts, sig, nil
}

// SignPayload produces a header value the verifier accepts. Used by tests
// and the supplier mock.
func SignPayload(secret string, payload []byte, now time.Time) string {
	ts := now.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

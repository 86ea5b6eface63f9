// ABOUTME: Optional HMAC verification of webhook deliveries.
// ABOUTME: Header format is "t=<unix seconds>,v1=<hex hmac-sha256 of t.body>".
package guard

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

// SignatureTolerance bounds the age of a signed delivery to limit replays.
const SignatureTolerance = 5 * time.Minute

// ErrInvalidSignature is returned when a signature is missing, malformed,
// stale or does not match.
var ErrInvalidSignature = errors.New("invalid signature")

// Sign computes the signature header value for body at time ts.
func Sign(secret string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + computeMAC(secret, t, body)
}

// VerifySignature checks a signature header against body.
func VerifySignature(secret, header string, body []byte, now time.Time) error {
	if header == "" {
		return fmt.Errorf("%w: missing header", ErrInvalidSignature)
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeMAC(secret, ts, body)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: mismatch", ErrInvalidSignature)
}

func computeMAC(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

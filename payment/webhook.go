package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned for any webhook whose signature header does
// not verify. It indicates a forged or malformed request and is never
// retryable.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// DefaultSignatureTolerance bounds how old a signed webhook timestamp may be.
const DefaultSignatureTolerance = 5 * time.Minute

// Event is the provider webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// EventTypeCheckoutCompleted is the purchase-completion event this system
// fulfills from.
const EventTypeCheckoutCompleted = "checkout.session.completed"

// VerifySignature checks the provider signature header against the raw
// payload. The header format is "t=<unix>,v1=<hex hmac>" where the HMAC-SHA256
// input is "<unix>.<payload>" keyed with the shared webhook secret.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	if header == "" || secret == "" {
		return ErrInvalidSignature
	}

	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	if tolerance > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return ErrInvalidSignature
		}
	}

	expected := computeSignature(payload, timestamp, secret)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// SignPayload produces a signature header for the given payload. Used by
// tests and by local tooling that replays events.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(payload, ts, secret))
}

func computeSignature(payload []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent decodes a verified webhook payload.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if event.Type == "" {
		return nil, errors.New("webhook event has no type")
	}
	return &event, nil
}

// SessionFromEvent extracts the checkout session object embedded in a
// checkout.session.completed event.
func SessionFromEvent(event *Event) (*CheckoutSession, error) {
	if len(event.Data.Object) == 0 {
		return nil, errors.New("webhook event has no data object")
	}
	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, fmt.Errorf("decode session from event: %w", err)
	}
	if session.ID == "" {
		return nil, errors.New("webhook session has no id")
	}
	return &session, nil
}

// Package webhooks signs and verifies the settlement callbacks the
// facilitator posts to the merchant after an on-chain transfer confirms.
// The signature is HMAC-SHA256 over the raw body; headers carry the event
// identity so replayed deliveries can be deduplicated before parsing.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"

	Scheme = "hmac-sha256/v1"
)

type VerificationResult struct {
	Valid           bool           `json:"valid"`
	Scheme          string         `json:"scheme"`
	Details         map[string]any `json:"details"`
	ProviderEventID string         `json:"provider_event_id,omitempty"`
	EventType       string         `json:"event_type,omitempty"`
}

// SignBody computes the hex HMAC the sender puts in SignatureHeader.
func SignBody(secret string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the delivery against the shared secret. A missing or
// undecodable signature yields Valid=false without an error; only a
// misconfigured secret is an error.
func Verify(headers http.Header, rawBody []byte, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, fmt.Errorf("webhook secret is empty")
	}

	res := VerificationResult{
		Scheme: Scheme,
		Details: map[string]any{
			"signature_header_present": false,
			"signature_hex_decodable":  false,
		},
		ProviderEventID: strings.TrimSpace(headers.Get(EventIDHeader)),
		EventType:       strings.TrimSpace(headers.Get(EventTypeHeader)),
	}
	if res.EventType == "" {
		res.EventType = "unknown"
	}

	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return res, nil
	}
	res.Details["signature_header_present"] = true

	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return res, nil
	}
	res.Details["signature_hex_decodable"] = true

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	res.Valid = hmac.Equal(mac.Sum(nil), provided)
	return res, nil
}

// BodyHash is the sha256 of the raw body, stored alongside each received
// event for audit and dedup.
func BodyHash(rawBody []byte) string {
	sum := sha256.Sum256(rawBody)
	return hex.EncodeToString(sum[:])
}

// Sender posts signed events.
type Sender struct {
	Endpoint   string
	Secret     string
	HTTPClient *http.Client
}

func NewSender(endpoint, secret string) *Sender {
	return &Sender{
		Endpoint:   endpoint,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers one signed event. The caller owns retries.
func (s *Sender) Send(eventID, eventType string, rawBody []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.Endpoint, strings.NewReader(string(rawBody)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, SignBody(s.Secret, rawBody))
	req.Header.Set(EventIDHeader, eventID)
	req.Header.Set(EventTypeHeader, eventType)
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("deliver webhook: status %d", resp.StatusCode)
	}
	return nil
}

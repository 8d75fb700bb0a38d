package x402

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
)

// ExtractPayload maps every accepted wire variant of a payment mandate's
// payment_response.details into the canonical PaymentPayload. Producers have
// drifted on numeric typing (numbers vs strings) and nesting, so the fallback
// logic lives here at the boundary, not in settlement code.
func ExtractPayload(details []byte) (PaymentPayload, error) {
	var raw struct {
		X402Version   int             `json:"x402Version"`
		LegacyVersion int             `json:"x402_version"`
		Scheme        string          `json:"scheme"`
		Network       string          `json:"network"`
		Payload       json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(details, &raw); err != nil {
		return PaymentPayload{}, fmt.Errorf("%w: bad payment details: %v", ap2.ErrSchema, err)
	}
	if len(raw.Payload) == 0 {
		return PaymentPayload{}, fmt.Errorf("%w: payment details missing payload", ap2.ErrSchema)
	}
	var inner struct {
		Signature     string          `json:"signature"`
		Authorization json.RawMessage `json:"authorization"`
	}
	if err := json.Unmarshal(raw.Payload, &inner); err != nil {
		return PaymentPayload{}, fmt.Errorf("%w: bad payment payload: %v", ap2.ErrSchema, err)
	}
	auth, err := NormalizeAuthorization(inner.Authorization)
	if err != nil {
		return PaymentPayload{}, err
	}
	if strings.TrimSpace(inner.Signature) == "" {
		return PaymentPayload{}, fmt.Errorf("%w: payload missing signature", ap2.ErrSchema)
	}

	out := PaymentPayload{
		X402Version: raw.X402Version,
		Scheme:      raw.Scheme,
		Network:     raw.Network,
		Payload:     ExactPayload{Signature: inner.Signature, Authorization: auth},
	}
	if out.X402Version == 0 {
		out.X402Version = raw.LegacyVersion
	}
	if out.X402Version == 0 {
		out.X402Version = Version
	}
	if out.Scheme == "" {
		out.Scheme = SchemeExact
	}
	return out, nil
}

// NormalizeAuthorization tolerates numbers or strings for value/validAfter/
// validBefore and returns the canonical string form.
func NormalizeAuthorization(raw json.RawMessage) (Authorization, error) {
	if len(raw) == 0 {
		return Authorization{}, fmt.Errorf("%w: payload missing authorization", ap2.ErrSchema)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Authorization{}, fmt.Errorf("%w: bad authorization: %v", ap2.ErrSchema, err)
	}
	auth := Authorization{}
	var err error
	if auth.From, err = stringField(fields, "from"); err != nil {
		return Authorization{}, err
	}
	if auth.To, err = stringField(fields, "to"); err != nil {
		return Authorization{}, err
	}
	if auth.Value, err = numericString(fields, "value"); err != nil {
		return Authorization{}, err
	}
	if auth.ValidAfter, err = numericString(fields, "validAfter"); err != nil {
		return Authorization{}, err
	}
	if auth.ValidBefore, err = numericString(fields, "validBefore"); err != nil {
		return Authorization{}, err
	}
	if auth.Nonce, err = stringField(fields, "nonce"); err != nil {
		return Authorization{}, err
	}
	return auth, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: authorization missing %s", ap2.ErrSchema, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: authorization %s must be a non-empty string", ap2.ErrSchema, key)
	}
	return s, nil
}

func numericString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: authorization missing %s", ap2.ErrSchema, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if _, perr := strconv.ParseUint(s, 10, 64); perr != nil {
			return "", fmt.Errorf("%w: authorization %s is not a decimal integer", ap2.ErrSchema, key)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: authorization %s must be a number or string", ap2.ErrSchema, key)
	}
	if _, perr := strconv.ParseUint(n.String(), 10, 64); perr != nil {
		return "", fmt.Errorf("%w: authorization %s is not a decimal integer", ap2.ErrSchema, key)
	}
	return n.String(), nil
}

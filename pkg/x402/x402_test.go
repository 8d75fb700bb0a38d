package x402

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRequirementsDeterministic(t *testing.T) {
	order := Order{
		Description: "아메리카노 (Tall)",
		Resource:    "https://merchant.test/order",
		PayTo:       "0x2222222222222222222222222222222222222222",
		AmountMicro: 45_000,
	}
	a := Requirements(order)
	b := Requirements(order)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("requirements not deterministic:\n%s\n%s", ja, jb)
	}
	if a.Scheme != SchemeExact || a.Network != NetworkBaseSepolia || a.Asset != USDCBaseSepolia {
		t.Fatalf("unexpected defaults: %+v", a)
	}
	if a.MaxAmountRequired != "45000" {
		t.Fatalf("maxAmountRequired: %q", a.MaxAmountRequired)
	}
	if a.MaxTimeoutSeconds != DefaultTimeoutSeconds {
		t.Fatalf("maxTimeoutSeconds: %d", a.MaxTimeoutSeconds)
	}
}

func TestMethodDataSelectAcceptRoundTrip(t *testing.T) {
	req := Requirements(Order{
		PayTo:       "0x2222222222222222222222222222222222222222",
		AmountMicro: 60_000,
	})
	md, err := MethodData(req)
	if err != nil {
		t.Fatalf("MethodData: %v", err)
	}
	if md.SupportedMethods != MethodName {
		t.Fatalf("supported_methods: %q", md.SupportedMethods)
	}

	accept, err := SelectAccept([]ap2.PaymentMethodData{md})
	if err != nil {
		t.Fatalf("SelectAccept: %v", err)
	}
	if accept.PayTo != req.PayTo || accept.MaxAmountRequired != "60000" {
		t.Fatalf("accept entry lost fields: %+v", accept)
	}
}

func TestSelectAcceptErrors(t *testing.T) {
	t.Run("no x402 entry", func(t *testing.T) {
		_, err := SelectAccept([]ap2.PaymentMethodData{{SupportedMethods: "basic-card"}})
		if !errors.Is(err, ErrUnsupportedScheme) {
			t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
		}
	})
	t.Run("empty accepts", func(t *testing.T) {
		data, _ := json.Marshal(map[string]PaymentRequired{
			PaymentRequiredKey: {X402Version: Version},
		})
		_, err := SelectAccept([]ap2.PaymentMethodData{{SupportedMethods: MethodName, Data: data}})
		if !errors.Is(err, ErrMissingPaymentOption) {
			t.Fatalf("expected ErrMissingPaymentOption, got %v", err)
		}
	})
	t.Run("unknown scheme", func(t *testing.T) {
		data, _ := json.Marshal(map[string]PaymentRequired{
			PaymentRequiredKey: {X402Version: Version, Accepts: []PaymentRequirements{{Scheme: "upto"}}},
		})
		_, err := SelectAccept([]ap2.PaymentMethodData{{SupportedMethods: MethodName, Data: data}})
		if !errors.Is(err, ErrUnsupportedScheme) {
			t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
		}
	})
}

func TestNewNonceUnique(t *testing.T) {
	seen := make(map[string]bool, 10_000)
	for i := 0; i < 10_000; i++ {
		n, err := NewNonce()
		if err != nil {
			t.Fatalf("NewNonce: %v", err)
		}
		if len(n) != 2+64 {
			t.Fatalf("nonce length %d: %q", len(n), n)
		}
		if seen[n] {
			t.Fatalf("duplicate nonce after %d draws", i)
		}
		seen[n] = true
	}
}

func TestNewAuthorizationWindow(t *testing.T) {
	auth, err := NewAuthorization("0x1", "0x2", 45_000, testNow)
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	if auth.Value != "45000" {
		t.Fatalf("value: %q", auth.Value)
	}
	if err := CheckWindow(auth, testNow); err != nil {
		t.Fatalf("window at signing time: %v", err)
	}
	if err := CheckWindow(auth, testNow.Add(AuthorizationValidity+time.Second)); !errors.Is(err, ap2.ErrExpiredArtifact) {
		t.Fatalf("expected ErrExpiredArtifact past validBefore, got %v", err)
	}
	if err := CheckWindow(auth, testNow.Add(-time.Minute)); err == nil {
		t.Fatalf("expected failure before validAfter")
	}
}

func TestExtractPayloadCanonical(t *testing.T) {
	details := []byte(`{
		"x402Version": 1,
		"scheme": "exact",
		"network": "base-sepolia",
		"payload": {
			"signature": "0xdeadbeef",
			"authorization": {
				"from": "0x1111111111111111111111111111111111111111",
				"to": "0x2222222222222222222222222222222222222222",
				"value": "45000",
				"validAfter": "1767268800",
				"validBefore": "1767272400",
				"nonce": "0xabc"
			}
		}
	}`)
	p, err := ExtractPayload(details)
	if err != nil {
		t.Fatalf("ExtractPayload: %v", err)
	}
	if p.Payload.Authorization.Value != "45000" || p.Payload.Signature != "0xdeadbeef" {
		t.Fatalf("payload: %+v", p)
	}
}

func TestExtractPayloadToleratesNumericFields(t *testing.T) {
	details := []byte(`{
		"payload": {
			"signature": "0xdeadbeef",
			"authorization": {
				"from": "0x1111111111111111111111111111111111111111",
				"to": "0x2222222222222222222222222222222222222222",
				"value": 45000,
				"validAfter": 1767268800,
				"validBefore": 1767272400,
				"nonce": "0xabc"
			}
		}
	}`)
	p, err := ExtractPayload(details)
	if err != nil {
		t.Fatalf("ExtractPayload: %v", err)
	}
	if p.Payload.Authorization.Value != "45000" {
		t.Fatalf("numeric value not normalized: %q", p.Payload.Authorization.Value)
	}
	if p.X402Version != Version || p.Scheme != SchemeExact {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestExtractPayloadAcceptsLegacyVersionKey(t *testing.T) {
	details := []byte(`{
		"x402_version": 2,
		"payload": {
			"signature": "0xdeadbeef",
			"authorization": {
				"from": "0x1111111111111111111111111111111111111111",
				"to": "0x2222222222222222222222222222222222222222",
				"value": "45000",
				"validAfter": "1767268800",
				"validBefore": "1767272400",
				"nonce": "0xabc"
			}
		}
	}`)
	p, err := ExtractPayload(details)
	if err != nil {
		t.Fatalf("ExtractPayload: %v", err)
	}
	if p.X402Version != 2 {
		t.Fatalf("snake_case version not read: %d", p.X402Version)
	}
}

func TestPaymentPayloadWireVersionKey(t *testing.T) {
	b, err := json.Marshal(PaymentPayload{X402Version: Version, Scheme: SchemeExact})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"x402Version":1`) {
		t.Fatalf("facilitator payload must carry camelCase x402Version: %s", b)
	}
}

func TestExtractPayloadSchemaErrors(t *testing.T) {
	cases := []struct {
		name    string
		details string
	}{
		{"not json", `{{`},
		{"missing payload", `{"x402Version":1}`},
		{"missing signature", `{"payload":{"authorization":{"from":"0x1","to":"0x2","value":"1","validAfter":"1","validBefore":"2","nonce":"0x3"}}}`},
		{"missing authorization", `{"payload":{"signature":"0xdeadbeef"}}`},
		{"non-numeric value", `{"payload":{"signature":"0xdeadbeef","authorization":{"from":"0x1","to":"0x2","value":"4.5","validAfter":"1","validBefore":"2","nonce":"0x3"}}}`},
		{"negative value", `{"payload":{"signature":"0xdeadbeef","authorization":{"from":"0x1","to":"0x2","value":-1,"validAfter":"1","validBefore":"2","nonce":"0x3"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractPayload([]byte(tc.details))
			if !errors.Is(err, ap2.ErrSchema) {
				t.Fatalf("expected ErrSchema, got %v", err)
			}
		})
	}
}

func TestReconstructRequirements(t *testing.T) {
	p := PaymentPayload{
		X402Version: Version,
		Scheme:      SchemeExact,
		Network:     NetworkBaseSepolia,
		Payload: ExactPayload{
			Signature: "0xdeadbeef",
			Authorization: Authorization{
				To:    "0x2222222222222222222222222222222222222222",
				Value: "45000",
			},
		},
	}
	req := ReconstructRequirements(p, "https://merchant.test/")
	if req.PayTo != p.Payload.Authorization.To {
		t.Fatalf("payTo: %q", req.PayTo)
	}
	if req.MaxAmountRequired != "45000" {
		t.Fatalf("maxAmountRequired: %q", req.MaxAmountRequired)
	}
	if req.Resource != "https://merchant.test/order" {
		t.Fatalf("resource: %q", req.Resource)
	}
}

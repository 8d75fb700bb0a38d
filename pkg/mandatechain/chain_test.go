package mandatechain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	buyerAddr    = "0x1111111111111111111111111111111111111111"
	merchantAddr = "0x2222222222222222222222222222222222222222"
)

func testDomain() x402.TokenDomain {
	return x402.TokenDomain{
		Contract:     x402.USDCBaseSepolia,
		ChainID:      84532,
		TokenName:    "USDC",
		TokenVersion: "2",
	}
}

func testIntent(t *testing.T) ap2.SignedIntentMandate {
	t.Helper()
	im, err := ap2.NewIntentMandate("one americano please", ap2.IntentConstraints{}, testNow)
	if err != nil {
		t.Fatalf("NewIntentMandate: %v", err)
	}
	return ap2.SignedIntentMandate{
		IntentMandate: im,
		Signature:     signature.Envelope{Signature: "0xstub", SignerAddress: buyerAddr},
	}
}

func testCart(t *testing.T) ap2.CartMandate {
	t.Helper()
	req := x402.Requirements(x402.Order{
		Description: "아메리카노 (Tall)",
		Resource:    "https://merchant.test/order",
		PayTo:       merchantAddr,
		AmountMicro: 45_000,
	})
	md, err := x402.MethodData(req)
	if err != nil {
		t.Fatalf("MethodData: %v", err)
	}
	contents, err := ap2.NewCartContents(ap2.PaymentRequest{
		MethodData: []ap2.PaymentMethodData{md},
		Details: ap2.PaymentDetails{
			ID: "order_americano_test",
			DisplayItems: []ap2.PaymentItem{
				{Label: "아메리카노 (Tall)", Amount: ap2.PaymentCurrencyAmount{Currency: "USD", Value: "0.05"}},
			},
			Total: ap2.PaymentItem{Label: "Total", Amount: ap2.PaymentCurrencyAmount{Currency: "USD", Value: "0.05"}},
		},
	}, "Daehan Coffee", testNow)
	if err != nil {
		t.Fatalf("NewCartContents: %v", err)
	}
	return ap2.CartMandate{
		Contents:              contents,
		MerchantAuthorization: signature.Envelope{Signature: "0xstub", SignerAddress: merchantAddr},
	}
}

// driveTo advances a fresh session up to (and including) the named state.
func driveTo(t *testing.T, target State) *Session {
	t.Helper()
	s := NewSession("sess-1")
	steps := []struct {
		state State
		step  func() error
	}{
		{StateIntentSigned, func() error { return s.AttachSignedIntent(testIntent(t), testNow) }},
		{StateCartReceived, func() error { return s.ReceiveCart(testCart(t), testNow) }},
		{StateCartConfirmed, func() error { return s.ConfirmCart(testNow) }},
		{StateAuthorizationPrepared, func() error { return s.PrepareAuthorization(buyerAddr, testDomain(), testNow) }},
		{StateAuthorizationSigned, func() error { return s.AttachSignedAuthorization("0xsig", testNow) }},
		{StatePaymentMandateCreated, func() error { return s.CreatePaymentMandate(testNow) }},
		{StatePaymentMandateSigned, func() error {
			return s.AttachUserAuthorization(signature.Envelope{Signature: "0xuser", SignerAddress: buyerAddr}, testNow)
		}},
		{StateForwarded, func() error { return s.MarkForwarded(testNow) }},
	}
	for _, st := range steps {
		if err := st.step(); err != nil {
			t.Fatalf("advancing to %s: %v", st.state, err)
		}
		if s.State != st.state {
			t.Fatalf("expected state %s, got %s", st.state, s.State)
		}
		if st.state == target {
			return s
		}
	}
	t.Fatalf("driveTo: unknown target %s", target)
	return nil
}

func TestFullChainHappyPath(t *testing.T) {
	s := driveTo(t, StateForwarded)

	if s.Mandate == nil || s.Mandate.UserAuthorization == nil {
		t.Fatalf("expected a signed payment mandate")
	}
	c := s.Mandate.PaymentMandateContents
	if c.PaymentDetailsID != "order_americano_test" {
		t.Fatalf("details id not bound from cart: %q", c.PaymentDetailsID)
	}
	if c.MerchantAgent != "Daehan Coffee" {
		t.Fatalf("merchant agent not bound from cart: %q", c.MerchantAgent)
	}
	if c.PaymentResponse.MethodName != x402.MethodName {
		t.Fatalf("method name: %q", c.PaymentResponse.MethodName)
	}

	if err := s.Complete(true, "0xtxhash", testNow); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.State != StateSettled {
		t.Fatalf("state after settle: %s", s.State)
	}
	if s.Mandate != nil || s.Cart != nil || s.Intent != nil {
		t.Fatalf("artifacts must be cleared after completion")
	}
	if s.Transaction != "0xtxhash" {
		t.Fatalf("transaction: %q", s.Transaction)
	}
}

func TestOutOfOrderStepsFailWithoutStateChange(t *testing.T) {
	cases := []struct {
		name string
		at   State
		step func(s *Session) error
	}{
		{"cart before intent", "", func(s *Session) error { return s.ReceiveCart(testCart(t), testNow) }},
		{"confirm before cart", StateIntentSigned, func(s *Session) error { return s.ConfirmCart(testNow) }},
		{"prepare before confirm", StateCartReceived, func(s *Session) error {
			return s.PrepareAuthorization(buyerAddr, testDomain(), testNow)
		}},
		{"mandate before signature", StateAuthorizationPrepared, func(s *Session) error {
			return s.CreatePaymentMandate(testNow)
		}},
		{"forward before user signature", StatePaymentMandateCreated, func(s *Session) error {
			return s.MarkForwarded(testNow)
		}},
		{"intent mid-flight", StateCartConfirmed, func(s *Session) error {
			return s.AttachSignedIntent(testIntent(t), testNow)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var s *Session
			if tc.at == "" {
				s = NewSession("sess-1")
			} else {
				s = driveTo(t, tc.at)
			}
			before := s.State
			err := tc.step(s)
			if !errors.Is(err, ErrMissingPriorArtifact) {
				t.Fatalf("expected ErrMissingPriorArtifact, got %v", err)
			}
			if s.State != before {
				t.Fatalf("state changed on failed transition: %s -> %s", before, s.State)
			}
		})
	}
}

func TestExpiredCartRejectedOnReceipt(t *testing.T) {
	s := driveTo(t, StateIntentSigned)
	cart := testCart(t)
	cart.Contents.CartExpiry = testNow.Add(-time.Minute).Format(time.RFC3339)
	err := s.ReceiveCart(cart, testNow)
	if !errors.Is(err, ap2.ErrExpiredArtifact) {
		t.Fatalf("expected ErrExpiredArtifact, got %v", err)
	}
	if s.State != StateIntentSigned {
		t.Fatalf("state changed on expired cart: %s", s.State)
	}
}

func TestExpiredCartRejectedAtAuthorization(t *testing.T) {
	s := driveTo(t, StateCartConfirmed)
	// The TTL is enforced again at the point of use, not only on receipt.
	late := testNow.Add(ap2.CartTTL + time.Minute)
	err := s.PrepareAuthorization(buyerAddr, testDomain(), late)
	if !errors.Is(err, ap2.ErrExpiredArtifact) {
		t.Fatalf("expected ErrExpiredArtifact, got %v", err)
	}
	if s.State != StateCartConfirmed {
		t.Fatalf("state changed: %s", s.State)
	}
}

func TestPrepareAuthorizationBindsCartAmountAndPayee(t *testing.T) {
	s := driveTo(t, StateAuthorizationPrepared)
	if s.Authorization.To != merchantAddr {
		t.Fatalf("payee: %q", s.Authorization.To)
	}
	if s.Authorization.Value != "45000" {
		t.Fatalf("value: %q", s.Authorization.Value)
	}
	if s.Authorization.From != buyerAddr {
		t.Fatalf("from: %q", s.Authorization.From)
	}
	td, err := s.TypedData()
	if err != nil {
		t.Fatalf("TypedData: %v", err)
	}
	if td.PrimaryType != "TransferWithAuthorization" {
		t.Fatalf("primary type: %q", td.PrimaryType)
	}
}

func TestCartWithoutX402MethodFails(t *testing.T) {
	s := driveTo(t, StateIntentSigned)
	cart := testCart(t)
	cart.Contents.PaymentRequest.MethodData[0].SupportedMethods = "basic-card"
	if err := s.ReceiveCart(cart, testNow); err != nil {
		t.Fatalf("ReceiveCart: %v", err)
	}
	if err := s.ConfirmCart(testNow); err != nil {
		t.Fatalf("ConfirmCart: %v", err)
	}
	err := s.PrepareAuthorization(buyerAddr, testDomain(), testNow)
	if !errors.Is(err, x402.ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestRejectedSessionCanStartOver(t *testing.T) {
	s := driveTo(t, StateForwarded)
	if err := s.Complete(false, "", testNow); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.State != StateRejected {
		t.Fatalf("state: %s", s.State)
	}
	if err := s.AttachSignedIntent(testIntent(t), testNow); err != nil {
		t.Fatalf("new intent after rejection: %v", err)
	}
	if s.State != StateIntentSigned {
		t.Fatalf("state: %s", s.State)
	}
}

func TestMemoryStoreIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := LoadOrCreate(ctx, store, "a")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if s.State != StateNoIntent {
		t.Fatalf("fresh session state: %s", s.State)
	}
	if err := s.AttachSignedIntent(testIntent(t), testNow); err != nil {
		t.Fatalf("AttachSignedIntent: %v", err)
	}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	other, err := LoadOrCreate(ctx, store, "b")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if other.State != StateNoIntent {
		t.Fatalf("session b must not see session a's progress: %s", other.State)
	}

	// Mutating the loaded copy must not leak back into the store.
	loaded, err := store.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded.State = StateForwarded
	again, err := store.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.State != StateIntentSigned {
		t.Fatalf("store leaked caller mutation: %s", again.State)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

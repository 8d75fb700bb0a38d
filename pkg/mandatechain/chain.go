// Package mandatechain enforces the ordering and binding between the three
// mandates of one purchase: Intent -> Cart -> Payment. A session advances
// through the chain one guarded transition at a time; a failed guard leaves
// the session at its last good state so the caller may retry the same
// transition. One in-flight chain per session; concurrent orders for the
// same session key are not supported.
package mandatechain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
)

var ErrMissingPriorArtifact = errors.New("missing prior artifact")

type State string

const (
	StateNoIntent               State = "NO_INTENT"
	StateIntentSigned           State = "INTENT_SIGNED"
	StateCartReceived           State = "CART_RECEIVED"
	StateCartConfirmed          State = "CART_CONFIRMED"
	StateAuthorizationPrepared  State = "AUTHORIZATION_PREPARED"
	StateAuthorizationSigned    State = "AUTHORIZATION_SIGNED"
	StatePaymentMandateCreated  State = "PAYMENT_MANDATE_CREATED"
	StatePaymentMandateSigned   State = "PAYMENT_MANDATE_SIGNED"
	StateForwarded              State = "FORWARDED"
	StateSettled                State = "SETTLED"
	StateRejected               State = "REJECTED"
)

// Session is one buyer's in-flight mandate chain. It serializes to JSON so
// stores can persist it between conversational turns.
type Session struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`

	Intent        *ap2.SignedIntentMandate  `json:"intent,omitempty"`
	Cart          *ap2.CartMandate          `json:"cart,omitempty"`
	Accept        *x402.PaymentRequirements `json:"accept,omitempty"`
	Authorization *x402.Authorization       `json:"authorization,omitempty"`
	TokenDomain   *x402.TokenDomain         `json:"token_domain,omitempty"`
	SignedPayload *x402.PaymentPayload      `json:"signed_payload,omitempty"`
	Mandate       *ap2.PaymentMandate       `json:"mandate,omitempty"`

	Transaction string    `json:"transaction,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewSession(sessionID string) *Session {
	return &Session{SessionID: sessionID, State: StateNoIntent, UpdatedAt: time.Now().UTC()}
}

func (s *Session) require(states ...State) error {
	for _, st := range states {
		if s.State == st {
			return nil
		}
	}
	return fmt.Errorf("%w: session is %s", ErrMissingPriorArtifact, s.State)
}

func (s *Session) advance(st State, now time.Time) {
	s.State = st
	s.UpdatedAt = now.UTC()
}

// AttachSignedIntent starts a fresh chain. A terminal session (settled or
// rejected) is allowed to begin again; anything mid-flight is not.
func (s *Session) AttachSignedIntent(intent ap2.SignedIntentMandate, now time.Time) error {
	if err := s.require(StateNoIntent, StateSettled, StateRejected); err != nil {
		return err
	}
	if err := ap2.CheckNotExpired(intent.IntentExpiry, now); err != nil {
		return err
	}
	*s = Session{SessionID: s.SessionID, State: StateNoIntent}
	s.Intent = &intent
	s.advance(StateIntentSigned, now)
	return nil
}

// ReceiveCart records the merchant's signed cart. Its details id becomes the
// binding reference for every later step.
func (s *Session) ReceiveCart(cart ap2.CartMandate, now time.Time) error {
	if err := s.require(StateIntentSigned); err != nil {
		return err
	}
	if err := ap2.ValidateCartMandate(cart); err != nil {
		return err
	}
	if err := ap2.CheckNotExpired(cart.Contents.CartExpiry, now); err != nil {
		return err
	}
	s.Cart = &cart
	s.advance(StateCartReceived, now)
	return nil
}

// ConfirmCart records the user's explicit approval of the priced cart.
func (s *Session) ConfirmCart(now time.Time) error {
	if err := s.require(StateCartReceived); err != nil {
		return err
	}
	s.advance(StateCartConfirmed, now)
	return nil
}

// PrepareAuthorization extracts the x402 accept entry from the cart and
// drafts an unsigned transfer authorization from the buyer's address to the
// merchant payee, with a fresh nonce.
func (s *Session) PrepareAuthorization(from string, domain x402.TokenDomain, now time.Time) error {
	if err := s.require(StateCartConfirmed); err != nil {
		return err
	}
	if err := ap2.CheckNotExpired(s.Cart.Contents.CartExpiry, now); err != nil {
		return err
	}
	accept, err := x402.SelectAccept(s.Cart.Contents.PaymentRequest.MethodData)
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(accept.MaxAmountRequired, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad maxAmountRequired %q", ap2.ErrSchema, accept.MaxAmountRequired)
	}
	auth, err := x402.NewAuthorization(from, accept.PayTo, value, now)
	if err != nil {
		return err
	}
	s.Accept = &accept
	s.Authorization = &auth
	s.TokenDomain = &domain
	s.advance(StateAuthorizationPrepared, now)
	return nil
}

// TypedData renders the prepared authorization for the wallet to sign.
func (s *Session) TypedData() (apitypes.TypedData, error) {
	if s.State != StateAuthorizationPrepared || s.Authorization == nil || s.TokenDomain == nil {
		return apitypes.TypedData{}, fmt.Errorf("%w: no prepared authorization", ErrMissingPriorArtifact)
	}
	return x402.TransferWithAuthTypedData(*s.Authorization, *s.TokenDomain), nil
}

// AttachSignedAuthorization wraps the wallet's EIP-712 signature and the
// prepared authorization into the canonical payment payload.
func (s *Session) AttachSignedAuthorization(sigHex string, now time.Time) error {
	if err := s.require(StateAuthorizationPrepared); err != nil {
		return err
	}
	network := x402.NetworkBaseSepolia
	scheme := x402.SchemeExact
	if s.Accept != nil {
		if s.Accept.Network != "" {
			network = s.Accept.Network
		}
		if s.Accept.Scheme != "" {
			scheme = s.Accept.Scheme
		}
	}
	s.SignedPayload = &x402.PaymentPayload{
		X402Version: x402.Version,
		Scheme:      scheme,
		Network:     network,
		Payload:     x402.ExactPayload{Signature: sigHex, Authorization: *s.Authorization},
	}
	s.advance(StateAuthorizationSigned, now)
	return nil
}

// CreatePaymentMandate builds the unsigned payment mandate. The details id
// and total are bound from the stored cart, never from the authorization, so
// a substituted cart cannot ride on an existing signature.
func (s *Session) CreatePaymentMandate(now time.Time) error {
	if err := s.require(StateAuthorizationSigned); err != nil {
		return err
	}
	details, err := json.Marshal(s.SignedPayload)
	if err != nil {
		return fmt.Errorf("encode signed payload: %w", err)
	}
	cartDetails := s.Cart.Contents.PaymentRequest.Details
	mandate, err := ap2.NewPaymentMandate(ap2.PurchaseContext{
		PaymentDetailsID:    cartDetails.ID,
		PaymentDetailsTotal: cartDetails.Total,
		MerchantAgent:       s.Cart.Contents.MerchantName,
		RequestID:           cartDetails.ID,
		MethodName:          x402.MethodName,
	}, details)
	if err != nil {
		return err
	}
	s.Mandate = &mandate
	s.advance(StatePaymentMandateCreated, now)
	return nil
}

// AttachUserAuthorization finalizes the payment mandate with the buyer's
// signature over its contents.
func (s *Session) AttachUserAuthorization(env signature.Envelope, now time.Time) error {
	if err := s.require(StatePaymentMandateCreated); err != nil {
		return err
	}
	s.Mandate.UserAuthorization = &env
	s.advance(StatePaymentMandateSigned, now)
	return nil
}

// MarkForwarded records that the signed mandate left for the merchant.
func (s *Session) MarkForwarded(now time.Time) error {
	if err := s.require(StatePaymentMandateSigned); err != nil {
		return err
	}
	s.advance(StateForwarded, now)
	return nil
}

// Complete records the merchant's settlement outcome and then clears the
// chain, so the next order always starts from a clean session.
func (s *Session) Complete(success bool, transaction string, now time.Time) error {
	if err := s.require(StateForwarded); err != nil {
		return err
	}
	next := StateRejected
	if success {
		next = StateSettled
	}
	*s = Session{SessionID: s.SessionID, Transaction: transaction}
	s.advance(next, now)
	return nil
}

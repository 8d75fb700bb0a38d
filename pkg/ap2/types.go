// Package ap2 holds the mandate documents exchanged between the customer and
// merchant agents: Intent Mandate, Cart Mandate and Payment Mandate. Each is
// produced by exactly one party, signed once, and handed off immutably; an
// amendment is always a brand-new document with a fresh id.
package ap2

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
)

var (
	ErrSchema          = errors.New("schema error")
	ErrExpiredArtifact = errors.New("artifact expired")
)

const (
	// IntentTTL bounds how long a signed purchase intent stays actionable.
	IntentTTL = time.Hour
	// CartTTL bounds how long a priced cart may be paid.
	CartTTL = 15 * time.Minute
)

// PaymentCurrencyAmount is a display amount: a decimal string, never a float.
type PaymentCurrencyAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type PaymentItem struct {
	Label  string                `json:"label"`
	Amount PaymentCurrencyAmount `json:"amount"`
}

// PaymentMethodData advertises one way to pay. Data carries the
// scheme-specific requirements and is only interpreted by the matching
// payment-method package.
type PaymentMethodData struct {
	SupportedMethods string          `json:"supported_methods"`
	Data             json.RawMessage `json:"data,omitempty"`
}

type PaymentDetails struct {
	ID           string        `json:"id"`
	DisplayItems []PaymentItem `json:"display_items"`
	Total        PaymentItem   `json:"total"`
}

type PaymentRequest struct {
	MethodData []PaymentMethodData `json:"method_data"`
	Details    PaymentDetails      `json:"details"`
}

// IntentMandate captures what the buyer wants before any pricing exists.
type IntentMandate struct {
	NaturalLanguageDescription string   `json:"natural_language_description"`
	Merchants                  []string `json:"merchants,omitempty"`
	SKUs                       []string `json:"skus,omitempty"`
	RequiresRefundability      bool     `json:"requires_refundability"`
	IntentExpiry               string   `json:"intent_expiry"`
}

// SignedIntentMandate binds the intent to the buyer's key.
type SignedIntentMandate struct {
	IntentMandate
	Signature signature.Envelope `json:"signature"`
}

// CartContents is the merchant's priced answer to an intent. Owned by the
// merchant until signed; read-only for the customer afterwards.
type CartContents struct {
	ID                           string         `json:"id"`
	UserCartConfirmationRequired bool           `json:"user_cart_confirmation_required"`
	PaymentRequest               PaymentRequest `json:"payment_request"`
	CartExpiry                   string         `json:"cart_expiry"`
	MerchantName                 string         `json:"merchant_name"`
}

type CartMandate struct {
	Contents              CartContents       `json:"contents"`
	MerchantAuthorization signature.Envelope `json:"merchant_authorization"`
}

// PaymentResponse carries the signed scheme-specific payment payload back to
// the merchant. Details is opaque to this package.
type PaymentResponse struct {
	RequestID  string          `json:"request_id"`
	MethodName string          `json:"method_name"`
	Details    json.RawMessage `json:"details"`
}

// PaymentMandateContents binds the buyer's payment authorization to the cart
// it pays for. PaymentDetailsID and PaymentDetailsTotal must come from the
// stored cart, never from the authorization, so a substituted cart cannot
// redirect an existing authorization.
type PaymentMandateContents struct {
	PaymentMandateID    string          `json:"payment_mandate_id"`
	PaymentDetailsID    string          `json:"payment_details_id"`
	PaymentDetailsTotal PaymentItem     `json:"payment_details_total"`
	PaymentResponse     PaymentResponse `json:"payment_response"`
	MerchantAgent       string          `json:"merchant_agent"`
}

type PaymentMandate struct {
	PaymentMandateContents PaymentMandateContents `json:"payment_mandate_contents"`
	UserAuthorization      *signature.Envelope    `json:"user_authorization,omitempty"`
}

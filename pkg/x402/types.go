// Package x402 implements the payment-method side of the mandate flow: the
// x402 "exact" scheme wire types, the translation from a priced order into
// payment requirements, and the EIP-3009 transfer-with-authorization typed
// data the customer wallet signs.
package x402

import (
	"errors"
)

const (
	// MethodName identifies the x402 entry inside PaymentRequest.method_data.
	MethodName = "https://www.x402.org/"
	// PaymentRequiredKey wraps the requirements object inside the method data.
	PaymentRequiredKey = "x402.payment.required"

	Version            = 1
	SchemeExact        = "exact"
	NetworkBaseSepolia = "base-sepolia"

	// USDCBaseSepolia is the USDC token contract on Base Sepolia.
	USDCBaseSepolia = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"

	DefaultMimeType       = "application/json"
	DefaultTimeoutSeconds = 1200
)

var (
	ErrUnsupportedScheme    = errors.New("no supported x402 payment method offered")
	ErrMissingPaymentOption = errors.New("accepted payment options are empty")
)

// PaymentRequirements describes what a compliant payment must look like.
// MaxAmountRequired is the integer total in minor units rendered as a
// decimal string; floats never appear on authorization paths.
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	Asset             string         `json:"asset"`
	PayTo             string         `json:"payTo"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Description       string         `json:"description,omitempty"`
	Resource          string         `json:"resource,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int64          `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// PaymentRequired is the object stored under PaymentRequiredKey in the cart.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// Authorization is the EIP-3009 message the wallet signs. All numeric fields
// are decimal strings on the wire.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload pairs the authorization with its EIP-712 signature.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the signed payment document the customer embeds in the
// payment mandate and the facilitator verifies and settles.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

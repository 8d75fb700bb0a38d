package ap2

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
)

// IntentConstraints narrow an intent beyond its free-text description.
type IntentConstraints struct {
	Merchants             []string
	SKUs                  []string
	RequiresRefundability bool
}

// NewIntentMandate stamps an absolute expiry of now+IntentTTL. The builder
// never signs; the caller hands the result to a signing gateway.
func NewIntentMandate(description string, c IntentConstraints, now time.Time) (IntentMandate, error) {
	if strings.TrimSpace(description) == "" {
		return IntentMandate{}, fmt.Errorf("%w: natural_language_description is required", ErrSchema)
	}
	return IntentMandate{
		NaturalLanguageDescription: description,
		Merchants:                  c.Merchants,
		SKUs:                       c.SKUs,
		RequiresRefundability:      c.RequiresRefundability,
		IntentExpiry:               now.UTC().Add(IntentTTL).Format(time.RFC3339),
	}, nil
}

// NewCartContents wraps a priced PaymentRequest into unsigned cart contents
// with a fresh id and an expiry of now+CartTTL.
func NewCartContents(pr PaymentRequest, merchantName string, now time.Time) (CartContents, error) {
	if err := validatePaymentRequest(pr); err != nil {
		return CartContents{}, err
	}
	if strings.TrimSpace(merchantName) == "" {
		return CartContents{}, fmt.Errorf("%w: merchant_name is required", ErrSchema)
	}
	return CartContents{
		ID:                           "cart_" + uuid.NewString(),
		UserCartConfirmationRequired: true,
		PaymentRequest:               pr,
		CartExpiry:                   now.UTC().Add(CartTTL).Format(time.RFC3339),
		MerchantName:                 merchantName,
	}, nil
}

// NewPaymentDetailsID builds the order-scoped details id the whole chain
// keys on afterwards.
func NewPaymentDetailsID(drink string) string {
	return "order_" + strings.ToLower(strings.TrimSpace(drink)) + "_" + uuid.NewString()
}

// PurchaseContext is what the customer retains from the confirmed cart when
// constructing the payment mandate. All fields come from the stored cart.
type PurchaseContext struct {
	PaymentDetailsID    string
	PaymentDetailsTotal PaymentItem
	MerchantAgent       string
	RequestID           string
	MethodName          string
}

// NewPaymentMandate builds an unsigned payment mandate around the signed
// scheme payload in details.
func NewPaymentMandate(pc PurchaseContext, details []byte) (PaymentMandate, error) {
	if strings.TrimSpace(pc.PaymentDetailsID) == "" {
		return PaymentMandate{}, fmt.Errorf("%w: payment_details_id is required", ErrSchema)
	}
	if len(details) == 0 {
		return PaymentMandate{}, fmt.Errorf("%w: signed payment payload is required", ErrSchema)
	}
	methodName := pc.MethodName
	if methodName == "" {
		return PaymentMandate{}, fmt.Errorf("%w: method_name is required", ErrSchema)
	}
	return PaymentMandate{
		PaymentMandateContents: PaymentMandateContents{
			PaymentMandateID:    uuid.NewString(),
			PaymentDetailsID:    pc.PaymentDetailsID,
			PaymentDetailsTotal: pc.PaymentDetailsTotal,
			PaymentResponse: PaymentResponse{
				RequestID:  pc.RequestID,
				MethodName: methodName,
				Details:    details,
			},
			MerchantAgent: pc.MerchantAgent,
		},
	}, nil
}

// ParsePaymentMandate decodes a payment mandate from either accepted wire
// shape: the canonical {payment_mandate_contents, user_authorization} wrapper,
// or the flattened form some producers send with the contents fields at the
// top level next to user_authorization.
func ParsePaymentMandate(raw []byte) (PaymentMandate, error) {
	var pm PaymentMandate
	if err := json.Unmarshal(raw, &pm); err != nil {
		return PaymentMandate{}, fmt.Errorf("%w: bad payment mandate: %v", ErrSchema, err)
	}
	if len(pm.PaymentMandateContents.PaymentResponse.Details) != 0 {
		return pm, nil
	}

	var flat struct {
		PaymentMandateContents
		UserAuthorization *signature.Envelope `json:"user_authorization,omitempty"`
	}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return PaymentMandate{}, fmt.Errorf("%w: bad payment mandate: %v", ErrSchema, err)
	}
	if len(flat.PaymentResponse.Details) == 0 {
		return PaymentMandate{}, fmt.Errorf("%w: payment mandate carries no payment_response.details", ErrSchema)
	}
	return PaymentMandate{
		PaymentMandateContents: flat.PaymentMandateContents,
		UserAuthorization:      flat.UserAuthorization,
	}, nil
}

// ParseExpiry reads one of the RFC3339 expiry fields.
func ParseExpiry(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad expiry %q", ErrSchema, v)
	}
	return t, nil
}

// CheckNotExpired enforces TTLs at the point of use, not just at creation.
func CheckNotExpired(expiry string, now time.Time) error {
	t, err := ParseExpiry(expiry)
	if err != nil {
		return err
	}
	if now.After(t) {
		return fmt.Errorf("%w: expired at %s", ErrExpiredArtifact, t.Format(time.RFC3339))
	}
	return nil
}

func validatePaymentRequest(pr PaymentRequest) error {
	if len(pr.MethodData) == 0 {
		return fmt.Errorf("%w: method_data is required", ErrSchema)
	}
	for i, md := range pr.MethodData {
		if strings.TrimSpace(md.SupportedMethods) == "" {
			return fmt.Errorf("%w: method_data[%d].supported_methods is required", ErrSchema, i)
		}
	}
	if strings.TrimSpace(pr.Details.ID) == "" {
		return fmt.Errorf("%w: details.id is required", ErrSchema)
	}
	if len(pr.Details.DisplayItems) == 0 {
		return fmt.Errorf("%w: details.display_items is required", ErrSchema)
	}
	return nil
}

// ValidateCartMandate is the boundary check applied to every received cart.
func ValidateCartMandate(cm CartMandate) error {
	if err := validatePaymentRequest(cm.Contents.PaymentRequest); err != nil {
		return err
	}
	if strings.TrimSpace(cm.Contents.ID) == "" {
		return fmt.Errorf("%w: contents.id is required", ErrSchema)
	}
	if _, err := ParseExpiry(cm.Contents.CartExpiry); err != nil {
		return err
	}
	if strings.TrimSpace(cm.MerchantAuthorization.Signature) == "" {
		return fmt.Errorf("%w: merchant_authorization is required", ErrSchema)
	}
	return nil
}

// ValidatePaymentMandate is the boundary check applied before settlement.
func ValidatePaymentMandate(pm PaymentMandate) error {
	c := pm.PaymentMandateContents
	if strings.TrimSpace(c.PaymentMandateID) == "" {
		return fmt.Errorf("%w: payment_mandate_id is required", ErrSchema)
	}
	if strings.TrimSpace(c.PaymentDetailsID) == "" {
		return fmt.Errorf("%w: payment_details_id is required", ErrSchema)
	}
	if len(c.PaymentResponse.Details) == 0 {
		return fmt.Errorf("%w: payment_response.details is required", ErrSchema)
	}
	if pm.UserAuthorization == nil || strings.TrimSpace(pm.UserAuthorization.Signature) == "" {
		return fmt.Errorf("%w: user_authorization is required", ErrSchema)
	}
	return nil
}

// DisplayTotalConsistent reports whether details.total equals the sum of the
// display items. The wire format does not enforce this; callers that care
// about it must check explicitly.
func DisplayTotalConsistent(d PaymentDetails) bool {
	var sum int64
	for _, it := range d.DisplayItems {
		v, ok := parseCents(it.Amount.Value)
		if !ok {
			return false
		}
		sum += v
	}
	total, ok := parseCents(d.Total.Amount.Value)
	if !ok {
		return false
	}
	return sum == total
}

// parseCents reads a non-negative decimal string with up to two fraction
// digits into cents.
func parseCents(v string) (int64, bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, false
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, false
	}
	for len(frac) < 2 {
		frac += "0"
	}
	var out int64
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, false
			}
			out = out*10 + int64(r-'0')
		}
	}
	return out, true
}

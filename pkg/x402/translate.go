package x402

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
)

// Order is the priced result the merchant translates into requirements.
type Order struct {
	Description string
	Resource    string
	PayTo       string
	AmountMicro int64
	Extra       map[string]any
}

// Requirements maps a priced order onto x402 payment requirements. The
// mapping is deterministic: the same order always yields the same document.
func Requirements(o Order) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           NetworkBaseSepolia,
		Asset:             USDCBaseSepolia,
		PayTo:             o.PayTo,
		MaxAmountRequired: strconv.FormatInt(o.AmountMicro, 10),
		Description:       o.Description,
		Resource:          o.Resource,
		MimeType:          DefaultMimeType,
		MaxTimeoutSeconds: DefaultTimeoutSeconds,
		Extra:             o.Extra,
	}
}

// MethodData wraps requirements into the method_data entry carried by the
// cart. Only the fields a wallet needs to pay appear in the accept entry.
func MethodData(req PaymentRequirements) (ap2.PaymentMethodData, error) {
	accept := PaymentRequirements{
		Scheme:            req.Scheme,
		Network:           req.Network,
		Asset:             req.Asset,
		PayTo:             req.PayTo,
		MaxAmountRequired: req.MaxAmountRequired,
	}
	data, err := json.Marshal(map[string]PaymentRequired{
		PaymentRequiredKey: {X402Version: Version, Accepts: []PaymentRequirements{accept}},
	})
	if err != nil {
		return ap2.PaymentMethodData{}, err
	}
	return ap2.PaymentMethodData{SupportedMethods: MethodName, Data: data}, nil
}

// SelectAccept extracts exactly one supported accept entry from the cart's
// method data. A cart with no x402 entry fails with ErrUnsupportedScheme; an
// x402 entry with an empty accepts list fails with ErrMissingPaymentOption.
func SelectAccept(methodData []ap2.PaymentMethodData) (PaymentRequirements, error) {
	for _, md := range methodData {
		if md.SupportedMethods != MethodName {
			continue
		}
		var wrapped map[string]PaymentRequired
		if err := json.Unmarshal(md.Data, &wrapped); err != nil {
			return PaymentRequirements{}, fmt.Errorf("%w: bad x402 method data: %v", ap2.ErrSchema, err)
		}
		pr, ok := wrapped[PaymentRequiredKey]
		if !ok {
			return PaymentRequirements{}, fmt.Errorf("%w: missing %s", ap2.ErrSchema, PaymentRequiredKey)
		}
		if len(pr.Accepts) == 0 {
			return PaymentRequirements{}, ErrMissingPaymentOption
		}
		accept := pr.Accepts[0]
		if accept.Scheme != SchemeExact {
			return PaymentRequirements{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedScheme, accept.Scheme)
		}
		return accept, nil
	}
	return PaymentRequirements{}, ErrUnsupportedScheme
}

// ReconstructRequirements rebuilds requirements from a signed payment payload
// alone, for when the original cart context is gone (a different process or
// session handles verification). This is a degraded-trust path: payee and
// amount come from the authorization itself, so the original description and
// resource cannot be independently re-verified.
func ReconstructRequirements(p PaymentPayload, resourceBase string) PaymentRequirements {
	scheme := p.Scheme
	if scheme == "" {
		scheme = SchemeExact
	}
	network := p.Network
	if network == "" {
		network = NetworkBaseSepolia
	}
	resource := strings.TrimRight(resourceBase, "/") + "/order"
	return PaymentRequirements{
		Scheme:            scheme,
		Network:           network,
		Asset:             USDCBaseSepolia,
		PayTo:             p.Payload.Authorization.To,
		MaxAmountRequired: p.Payload.Authorization.Value,
		Description:       "Coffee order payment",
		Resource:          resource,
		MimeType:          DefaultMimeType,
		MaxTimeoutSeconds: DefaultTimeoutSeconds,
	}
}

// Package settlement drives a received payment mandate through verification
// and on-chain settlement. All schema tolerance lives at the extraction
// boundary; all TTL checks happen before the first network call; settlement
// is exactly-once per authorization nonce.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/facilitator"
)

var (
	ErrMalformedMandate   = errors.New("malformed payment mandate")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrSettlementFailed   = errors.New("payment settlement failed")
	// ErrTimeout re-exports the facilitator sentinel so callers map it
	// without importing the client package.
	ErrTimeout = facilitator.ErrTimeout
)

// Result is the terminal outcome of one settlement attempt.
type Result struct {
	Success          bool   `json:"success"`
	Transaction      string `json:"transaction,omitempty"`
	Network          string `json:"network,omitempty"`
	Payer            string `json:"payer,omitempty"`
	PaymentDetailsID string `json:"payment_details_id,omitempty"`
}

// Facilitator verifies and settles signed payments.
type Facilitator interface {
	Verify(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (x402.VerifyResponse, error)
	Settle(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (x402.SettleResponse, error)
}

// RequirementsSource resolves the requirements the merchant quoted when it
// built the cart. A miss returns (nil, nil); the coordinator then falls back
// to reconstructing requirements from the payload itself.
type RequirementsSource interface {
	RequirementsByDetailsID(ctx context.Context, detailsID string) (*x402.PaymentRequirements, error)
}

// ProcessedStore records settled nonces for exactly-once settlement.
type ProcessedStore interface {
	LookupProcessed(ctx context.Context, nonce string) (*Result, error)
	RecordProcessed(ctx context.Context, nonce string, res Result) error
}

type Coordinator struct {
	Facilitator  Facilitator
	Requirements RequirementsSource
	Processed    ProcessedStore
	ResourceBase string
	Log          *slog.Logger

	// Now is swappable for tests.
	Now func() time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Settle runs the full settlement pipeline for one payment mandate. The
// caller has already verified the user_authorization envelope.
func (c *Coordinator) Settle(ctx context.Context, pm ap2.PaymentMandate) (Result, error) {
	if err := ap2.ValidatePaymentMandate(pm); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedMandate, err)
	}
	contents := pm.PaymentMandateContents

	payload, err := x402.ExtractPayload(contents.PaymentResponse.Details)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedMandate, err)
	}
	auth := payload.Payload.Authorization

	// Local checks run to completion before any facilitator traffic.
	if err := x402.CheckWindow(auth, c.now()); err != nil {
		return Result{}, err
	}
	req, err := c.resolveRequirements(ctx, contents.PaymentDetailsID, payload)
	if err != nil {
		return Result{}, err
	}
	if err := checkAgainstRequirements(auth, req); err != nil {
		return Result{}, err
	}

	// A nonce that already settled returns its stored outcome unchanged.
	if prior, err := c.Processed.LookupProcessed(ctx, auth.Nonce); err != nil {
		return Result{}, fmt.Errorf("lookup processed nonce: %w", err)
	} else if prior != nil {
		c.Log.Info("settlement replayed", "nonce", auth.Nonce, "transaction", prior.Transaction)
		return *prior, nil
	}

	verify, err := c.Facilitator.Verify(ctx, payload, req)
	if err != nil {
		return Result{}, err
	}
	if !verify.IsValid {
		reason := verify.InvalidReason
		if reason == "" {
			reason = "rejected by facilitator"
		}
		return Result{}, fmt.Errorf("%w: %s", ErrVerificationFailed, reason)
	}

	settle, err := c.Facilitator.Settle(ctx, payload, req)
	if err != nil {
		return Result{}, err
	}
	if !settle.Success {
		reason := settle.ErrorReason
		if reason == "" {
			reason = "rejected by facilitator"
		}
		return Result{}, fmt.Errorf("%w: %s", ErrSettlementFailed, reason)
	}

	res := Result{
		Success:          true,
		Transaction:      settle.Transaction,
		Network:          settle.Network,
		Payer:            verify.Payer,
		PaymentDetailsID: contents.PaymentDetailsID,
	}
	if res.Payer == "" {
		res.Payer = auth.From
	}
	if err := c.Processed.RecordProcessed(ctx, auth.Nonce, res); err != nil {
		// The transfer is on chain; failing the request now would invite a
		// retry the nonce check can no longer stop. Log and return success.
		c.Log.Error("record processed nonce", "nonce", auth.Nonce, "err", err)
	}
	c.Log.Info("settlement confirmed",
		"payment_details_id", contents.PaymentDetailsID,
		"transaction", res.Transaction,
		"payer", res.Payer,
	)
	return res, nil
}

func (c *Coordinator) resolveRequirements(ctx context.Context, detailsID string, payload x402.PaymentPayload) (x402.PaymentRequirements, error) {
	req, err := c.Requirements.RequirementsByDetailsID(ctx, detailsID)
	if err != nil {
		return x402.PaymentRequirements{}, fmt.Errorf("load quoted requirements: %w", err)
	}
	if req != nil {
		return *req, nil
	}
	c.Log.Warn("no quoted requirements, reconstructing from payload", "payment_details_id", detailsID)
	return x402.ReconstructRequirements(payload, c.ResourceBase), nil
}

// checkAgainstRequirements pins the signed authorization to the quoted payee
// and amount before spending a facilitator round trip.
func checkAgainstRequirements(auth x402.Authorization, req x402.PaymentRequirements) error {
	if !strings.EqualFold(auth.To, req.PayTo) {
		return fmt.Errorf("%w: authorization pays %s, requirements demand %s", ErrVerificationFailed, auth.To, req.PayTo)
	}
	got, err := strconv.ParseInt(auth.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad authorization value %q", ErrMalformedMandate, auth.Value)
	}
	want, err := strconv.ParseInt(req.MaxAmountRequired, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad required amount %q", ErrMalformedMandate, req.MaxAmountRequired)
	}
	if got < want {
		return fmt.Errorf("%w: authorized %d below required %d", ErrVerificationFailed, got, want)
	}
	return nil
}

// VerifyUserAuthorization checks the buyer's envelope over the mandate
// contents and returns the recovered signer.
func VerifyUserAuthorization(pm ap2.PaymentMandate) (string, error) {
	if pm.UserAuthorization == nil {
		return "", fmt.Errorf("%w: user_authorization is required", ErrMalformedMandate)
	}
	res, err := signature.VerifyEnvelope(pm.PaymentMandateContents, *pm.UserAuthorization)
	if err != nil {
		return "", fmt.Errorf("%w: user authorization: %v", ErrVerificationFailed, err)
	}
	return res.Signer.Hex(), nil
}

// Package agent orchestrates the buyer's side of a purchase: intent, cart
// review, payment authorization and hand-off to the merchant. Chain state
// lives in a session store so a conversation can span requests and restarts.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/mandatechain"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/menu"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/wallet"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
	"github.com/Daehan-Base/awesome-x402-on-base/services/customer/internal/merchantclient"
)

// Merchant is the slice of the merchant client the agent drives.
type Merchant interface {
	CreateCart(ctx context.Context, intent ap2.SignedIntentMandate, order merchantclient.OrderSpec) (ap2.CartMandate, error)
	Pay(ctx context.Context, pm ap2.PaymentMandate) (merchantclient.PaymentResult, error)
}

type Agent struct {
	Wallet   wallet.Signer
	Merchant Merchant
	Sessions mandatechain.Store
	Domain   x402.TokenDomain
	Log      *slog.Logger

	// Now is swappable for tests.
	Now func() time.Time
}

func (a *Agent) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Quote runs intent signing and cart retrieval, leaving the session parked at
// CART_RECEIVED for the user to confirm.
type Quote struct {
	SessionID    string          `json:"session_id"`
	State        string          `json:"state"`
	Order        string          `json:"order"`
	TotalUSD     string          `json:"total_usd"`
	CartID       string          `json:"cart_id"`
	CartExpiry   string          `json:"cart_expiry"`
	MerchantName string          `json:"merchant_name"`
	Cart         ap2.CartMandate `json:"cart_mandate"`
}

func (a *Agent) Quote(ctx context.Context, sessionID string, order merchantclient.OrderSpec) (Quote, error) {
	if order.Size == "" {
		order.Size = menu.DefaultSize
	}
	if order.Bean == "" {
		order.Bean = menu.DefaultBean
	}
	if err := menu.Validate(order.Drink, order.Size, order.Bean); err != nil {
		return Quote{}, err
	}

	s, err := mandatechain.LoadOrCreate(ctx, a.Sessions, sessionID)
	if err != nil {
		return Quote{}, err
	}
	now := a.now()

	im, err := ap2.NewIntentMandate(
		fmt.Sprintf("%s 한 잔 주문합니다", menu.Describe(order.Drink, order.Size, order.Bean)),
		ap2.IntentConstraints{}, now)
	if err != nil {
		return Quote{}, err
	}
	env, err := a.Wallet.Sign(ctx, im, "intent_mandate")
	if err != nil {
		return Quote{}, fmt.Errorf("sign intent: %w", err)
	}
	intent := ap2.SignedIntentMandate{IntentMandate: im, Signature: env}
	if err := s.AttachSignedIntent(intent, now); err != nil {
		return Quote{}, err
	}

	cart, err := a.Merchant.CreateCart(ctx, intent, order)
	if err != nil {
		return Quote{}, fmt.Errorf("request cart: %w", err)
	}
	// The merchant's signature is checked before anything is shown to the
	// user; a cart that does not verify never enters the session.
	if _, err := signature.VerifyEnvelope(cart.Contents, cart.MerchantAuthorization); err != nil {
		return Quote{}, fmt.Errorf("merchant cart signature: %w", err)
	}
	if err := s.ReceiveCart(cart, a.now()); err != nil {
		return Quote{}, err
	}
	if err := a.Sessions.Save(ctx, s); err != nil {
		return Quote{}, err
	}

	details := cart.Contents.PaymentRequest.Details
	q := Quote{
		SessionID:    sessionID,
		State:        string(s.State),
		Order:        details.Total.Label,
		TotalUSD:     "$" + details.Total.Amount.Value,
		CartID:       cart.Contents.ID,
		CartExpiry:   cart.Contents.CartExpiry,
		MerchantName: cart.Contents.MerchantName,
		Cart:         cart,
	}
	if len(details.DisplayItems) > 0 {
		q.Order = details.DisplayItems[0].Label
	}
	a.Log.Info("cart quoted", "session_id", sessionID, "cart_id", q.CartID, "total", q.TotalUSD)
	return q, nil
}

// Receipt is what the buyer gets back after a confirmed purchase.
type Receipt struct {
	SessionID   string `json:"session_id"`
	State       string `json:"state"`
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Confirm takes the user's approval and drives the rest of the chain:
// EIP-3009 authorization, payment mandate, signature, forwarding, outcome.
func (a *Agent) Confirm(ctx context.Context, sessionID string) (Receipt, error) {
	s, err := mandatechain.LoadOrCreate(ctx, a.Sessions, sessionID)
	if err != nil {
		return Receipt{}, err
	}
	now := a.now()

	if err := s.ConfirmCart(now); err != nil {
		return Receipt{}, err
	}
	from, err := a.Wallet.Address(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("wallet address: %w", err)
	}
	if err := s.PrepareAuthorization(from, a.Domain, now); err != nil {
		return Receipt{}, err
	}
	td, err := s.TypedData()
	if err != nil {
		return Receipt{}, err
	}
	sig, err := a.Wallet.SignTypedData(ctx, td)
	if err != nil {
		return Receipt{}, fmt.Errorf("sign transfer authorization: %w", err)
	}
	if err := s.AttachSignedAuthorization(sig, a.now()); err != nil {
		return Receipt{}, err
	}
	if err := s.CreatePaymentMandate(a.now()); err != nil {
		return Receipt{}, err
	}
	env, err := a.Wallet.Sign(ctx, s.Mandate.PaymentMandateContents, "payment_mandate")
	if err != nil {
		return Receipt{}, fmt.Errorf("sign payment mandate: %w", err)
	}
	if err := s.AttachUserAuthorization(env, a.now()); err != nil {
		return Receipt{}, err
	}
	pm := *s.Mandate
	if err := s.MarkForwarded(a.now()); err != nil {
		return Receipt{}, err
	}
	// Persist before the network call so a crash mid-payment cannot replay
	// the signing steps.
	if err := a.Sessions.Save(ctx, s); err != nil {
		return Receipt{}, err
	}

	result, payErr := a.Merchant.Pay(ctx, pm)
	receipt := Receipt{SessionID: sessionID, Success: payErr == nil && result.Success}
	if payErr != nil {
		receipt.Reason = payErr.Error()
	}
	receipt.Transaction = result.Transaction
	receipt.Network = result.Network

	if err := s.Complete(receipt.Success, result.Transaction, a.now()); err != nil {
		return Receipt{}, err
	}
	receipt.State = string(s.State)
	if err := a.Sessions.Save(ctx, s); err != nil {
		return Receipt{}, err
	}
	a.Log.Info("purchase completed",
		"session_id", sessionID,
		"success", receipt.Success,
		"transaction", receipt.Transaction,
	)
	return receipt, nil
}

// State reports where the session's chain currently stands.
func (a *Agent) State(ctx context.Context, sessionID string) (mandatechain.State, error) {
	s, err := mandatechain.LoadOrCreate(ctx, a.Sessions, sessionID)
	if err != nil {
		return "", err
	}
	return s.State, nil
}

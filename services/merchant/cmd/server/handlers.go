package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/canonhash"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/httpx"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/menu"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/wallet"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/webhooks"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/metrics"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/settlement"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/store"
)

// merchantStore is the slice of the store the HTTP layer needs; *store.Store
// implements it, tests use an in-memory fake.
type merchantStore interface {
	CreateOrder(ctx context.Context, o store.Order, req x402.PaymentRequirements) error
	GetOrder(ctx context.Context, detailsID string) (store.Order, error)
	SetOrderStatus(ctx context.Context, detailsID, status string) error
	RequirementsByDetailsID(ctx context.Context, detailsID string) (*x402.PaymentRequirements, error)
	CreateReceipt(ctx context.Context, r store.Receipt) error
	GetReceipt(ctx context.Context, detailsID string) (store.Receipt, error)
	RecordWebhookEvent(ctx context.Context, eventID, eventType, bodyHash string) (bool, error)
}

type handlers struct {
	Store         merchantStore
	Signer        wallet.Signer
	Coordinator   *settlement.Coordinator
	MerchantName  string
	PayTo         string
	ResourceBase  string
	WebhookSecret string
	// Notifier, when configured, delivers signed payment.settled events to the
	// order-taking side after settlement.
	Notifier *webhooks.Sender
	Log      *slog.Logger
}

var settleErrorTable = []httpx.ErrorMapping{
	{Sentinel: settlement.ErrMalformedMandate, Status: 400, Code: "MALFORMED_MANDATE"},
	{Sentinel: ap2.ErrExpiredArtifact, Status: 400, Code: "EXPIRED_ARTIFACT"},
	{Sentinel: settlement.ErrVerificationFailed, Status: 402, Code: "VERIFICATION_FAILED"},
	{Sentinel: settlement.ErrSettlementFailed, Status: 402, Code: "SETTLEMENT_FAILED"},
	{Sentinel: settlement.ErrTimeout, Status: 504, Code: "FACILITATOR_TIMEOUT"},
}

func (h *handlers) Menu(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, 200, menu.Board())
}

type createCartRequest struct {
	Intent ap2.SignedIntentMandate `json:"intent"`
	Order  struct {
		Drink string `json:"drink"`
		Size  string `json:"size,omitempty"`
		Bean  string `json:"bean,omitempty"`
	} `json:"order"`
}

// CreateCart prices the order and answers a signed intent with a signed cart.
func (h *handlers) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	if _, err := signature.VerifyEnvelope(req.Intent.IntentMandate, req.Intent.Signature); err != nil {
		httpx.WriteError(w, 400, "MANDATE_INVALID", "intent signature does not verify: "+err.Error(), nil)
		return
	}
	now := time.Now()
	if err := ap2.CheckNotExpired(req.Intent.IntentExpiry, now); err != nil {
		httpx.WriteError(w, 400, "EXPIRED_ARTIFACT", err.Error(), nil)
		return
	}

	size := req.Order.Size
	if size == "" {
		size = menu.DefaultSize
	}
	bean := req.Order.Bean
	if bean == "" {
		bean = menu.DefaultBean
	}
	amount, err := menu.Price(req.Order.Drink, size, bean)
	if err != nil {
		httpx.WriteError(w, 400, "UNKNOWN_OPTION", err.Error(), nil)
		return
	}

	detailsID := ap2.NewPaymentDetailsID(req.Order.Drink)
	label := menu.Describe(req.Order.Drink, size, bean)
	requirements := x402.Requirements(x402.Order{
		Description: label,
		Resource:    h.ResourceBase + "/order",
		PayTo:       h.PayTo,
		AmountMicro: amount,
	})
	md, err := x402.MethodData(requirements)
	if err != nil {
		httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
		return
	}
	item := ap2.PaymentItem{
		Label:  label,
		Amount: ap2.PaymentCurrencyAmount{Currency: "USD", Value: menu.DecimalUSD(amount)},
	}
	contents, err := ap2.NewCartContents(ap2.PaymentRequest{
		MethodData: []ap2.PaymentMethodData{md},
		Details: ap2.PaymentDetails{
			ID:           detailsID,
			DisplayItems: []ap2.PaymentItem{item},
			Total:        ap2.PaymentItem{Label: "Total", Amount: item.Amount},
		},
	}, h.MerchantName, now)
	if err != nil {
		httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
		return
	}

	env, err := h.Signer.Sign(r.Context(), contents, "cart_mandate")
	if err != nil {
		httpx.WriteError(w, 502, "WALLET_ERROR", err.Error(), nil)
		return
	}
	cart := ap2.CartMandate{Contents: contents, MerchantAuthorization: env}

	expiry, _ := ap2.ParseExpiry(contents.CartExpiry)
	if err := h.Store.CreateOrder(r.Context(), store.Order{
		PaymentDetailsID: detailsID,
		CartID:           contents.ID,
		Drink:            req.Order.Drink,
		Size:             size,
		Bean:             bean,
		AmountMicro:      amount,
		CartExpiry:       expiry,
	}, requirements); err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}

	metrics.CartsQuoted.Inc()
	h.Log.Info("cart quoted", "payment_details_id", detailsID, "amount_micro", amount, "order", label)
	httpx.WriteJSON(w, 201, map[string]any{
		"request_id":   httpx.NewRequestID(),
		"cart_mandate": cart,
	})
}

type settleRequest struct {
	// Raw because clients disagree on mandate nesting; ap2.ParsePaymentMandate
	// resolves the accepted shapes.
	PaymentMandate json.RawMessage `json:"payment_mandate"`
}

// SettlePayment verifies the buyer's signature, replays local TTL checks and
// hands the mandate to the settlement pipeline.
func (h *handlers) SettlePayment(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	pm, err := ap2.ParsePaymentMandate(req.PaymentMandate)
	if err != nil {
		metrics.Settlements.WithLabelValues("rejected").Inc()
		httpx.WriteError(w, 400, "MALFORMED_MANDATE", err.Error(), nil)
		return
	}

	if _, err := settlement.VerifyUserAuthorization(pm); err != nil {
		metrics.Settlements.WithLabelValues("rejected").Inc()
		httpx.WriteMappedError(w, err, settleErrorTable)
		return
	}

	detailsID := pm.PaymentMandateContents.PaymentDetailsID
	order, err := h.Store.GetOrder(r.Context(), detailsID)
	if err == nil {
		if time.Now().After(order.CartExpiry) {
			metrics.Settlements.WithLabelValues("expired").Inc()
			httpx.WriteError(w, 400, "EXPIRED_ARTIFACT", "cart expired before payment", nil)
			return
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}

	start := time.Now()
	res, err := h.Coordinator.Settle(r.Context(), pm)
	metrics.SettleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Settlements.WithLabelValues("failed").Inc()
		_ = h.Store.SetOrderStatus(r.Context(), detailsID, store.OrderStatusFailed)
		httpx.WriteMappedError(w, err, settleErrorTable)
		return
	}

	metrics.Settlements.WithLabelValues("settled").Inc()
	_ = h.Store.SetOrderStatus(r.Context(), detailsID, store.OrderStatusSettled)
	h.writeReceipt(r, pm, res)
	h.notifySettled(res)
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"result":     res,
	})
}

func (h *handlers) writeReceipt(r *http.Request, pm ap2.PaymentMandate, res settlement.Result) {
	mandateHash, _, err := canonhash.SumObject(pm.PaymentMandateContents)
	if err != nil {
		h.Log.Error("hash mandate for receipt", "err", err)
		return
	}
	cartHash := ""
	if req, rerr := h.Store.RequirementsByDetailsID(r.Context(), res.PaymentDetailsID); rerr == nil && req != nil {
		cartHash, _, _ = canonhash.SumObject(req)
	}
	if err := h.Store.CreateReceipt(r.Context(), store.Receipt{
		ReceiptID:        "rcpt_" + uuid.NewString(),
		PaymentDetailsID: res.PaymentDetailsID,
		CartHash:         cartHash,
		MandateHash:      mandateHash,
		Transaction:      res.Transaction,
		Network:          res.Network,
		Payer:            res.Payer,
	}); err != nil {
		h.Log.Error("persist receipt", "err", err)
	}
}

// notifySettled is best-effort: the payment is already on-chain, so delivery
// failures are logged and left to the receiver to reconcile via the receipt
// endpoint.
func (h *handlers) notifySettled(res settlement.Result) {
	if h.Notifier == nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"payment_details_id": res.PaymentDetailsID,
		"success":            res.Success,
		"transaction":        res.Transaction,
		"network":            res.Network,
	})
	if err != nil {
		h.Log.Error("encode settlement event", "err", err)
		return
	}
	if err := h.Notifier.Send("evt_"+uuid.NewString(), "payment.settled", body); err != nil {
		h.Log.Warn("deliver settlement event", "payment_details_id", res.PaymentDetailsID, "err", err)
	}
}

func (h *handlers) GetReceipt(w http.ResponseWriter, r *http.Request) {
	detailsID := chi.URLParam(r, "payment_details_id")
	rcpt, err := h.Store.GetReceipt(r.Context(), detailsID)
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, 404, "NOT_FOUND", "no receipt for order", nil)
		return
	}
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "receipt": rcpt})
}

// SettlementWebhook accepts signed confirmations from the facilitator. A
// delivery that fails HMAC is dropped with 401; a replayed event id is
// acknowledged without reprocessing.
func (h *handlers) SettlementWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, 400, "BAD_BODY", err.Error(), nil)
		return
	}
	res, err := webhooks.Verify(r.Header, body, h.WebhookSecret)
	if err != nil {
		httpx.WriteError(w, 500, "WEBHOOK_CONFIG", err.Error(), nil)
		return
	}
	if !res.Valid {
		metrics.WebhookEvents.WithLabelValues("invalid_signature").Inc()
		httpx.WriteError(w, 401, "INVALID_SIGNATURE", "webhook signature does not verify", res.Details)
		return
	}
	seen, err := h.Store.RecordWebhookEvent(r.Context(), res.ProviderEventID, res.EventType, webhooks.BodyHash(body))
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	if seen {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		httpx.WriteJSON(w, 200, map[string]any{"status": "duplicate"})
		return
	}

	var event struct {
		PaymentDetailsID string `json:"payment_details_id"`
		Success          bool   `json:"success"`
		Transaction      string `json:"transaction"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	status := store.OrderStatusSettled
	if !event.Success {
		status = store.OrderStatusFailed
	}
	if event.PaymentDetailsID != "" {
		if err := h.Store.SetOrderStatus(r.Context(), event.PaymentDetailsID, status); err != nil {
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
	}
	metrics.WebhookEvents.WithLabelValues("processed").Inc()
	h.Log.Info("settlement webhook processed",
		"event_id", res.ProviderEventID,
		"payment_details_id", event.PaymentDetailsID,
		"success", event.Success,
	)
	httpx.WriteJSON(w, 200, map[string]any{"status": "ok"})
}

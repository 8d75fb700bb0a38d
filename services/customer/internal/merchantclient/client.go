// Package merchantclient speaks to the merchant agent's HTTP surface.
package merchantclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/ap2"
)

// ErrPaymentRejected carries the merchant's refusal of a payment mandate;
// the body of the error says why.
var ErrPaymentRejected = errors.New("payment rejected by merchant")

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// OrderSpec is the customer's menu selection.
type OrderSpec struct {
	Drink string `json:"drink"`
	Size  string `json:"size,omitempty"`
	Bean  string `json:"bean,omitempty"`
}

func (c *Client) Menu(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/menu", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("merchant menu: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("merchant menu: status %d", resp.StatusCode)
	}
	return body, nil
}

// CreateCart submits the signed intent with the menu selection and returns
// the merchant's signed cart.
func (c *Client) CreateCart(ctx context.Context, intent ap2.SignedIntentMandate, order OrderSpec) (ap2.CartMandate, error) {
	var out struct {
		CartMandate ap2.CartMandate `json:"cart_mandate"`
	}
	if err := c.post(ctx, "/carts", map[string]any{"intent": intent, "order": order}, &out); err != nil {
		return ap2.CartMandate{}, err
	}
	return out.CartMandate, nil
}

// PaymentResult is the merchant's settlement outcome.
type PaymentResult struct {
	Success          bool   `json:"success"`
	Transaction      string `json:"transaction,omitempty"`
	Network          string `json:"network,omitempty"`
	Payer            string `json:"payer,omitempty"`
	PaymentDetailsID string `json:"payment_details_id,omitempty"`
}

// Pay forwards the signed payment mandate. A 4xx answer becomes
// ErrPaymentRejected with the merchant's reason attached.
func (c *Client) Pay(ctx context.Context, pm ap2.PaymentMandate) (PaymentResult, error) {
	body, err := json.Marshal(map[string]any{"payment_mandate": pm})
	if err != nil {
		return PaymentResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return PaymentResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("merchant payments: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PaymentResult{}, err
	}
	if resp.StatusCode >= 300 {
		reason := extractErrorMessage(raw)
		if resp.StatusCode/100 == 4 || resp.StatusCode == 402 {
			return PaymentResult{}, fmt.Errorf("%w: %s", ErrPaymentRejected, reason)
		}
		return PaymentResult{}, fmt.Errorf("merchant payments: status %d: %s", resp.StatusCode, reason)
	}
	var out struct {
		Result PaymentResult `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return PaymentResult{}, fmt.Errorf("merchant payments: decode response: %w", err)
	}
	return out.Result, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("merchant %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("merchant %s: status %d: %s", path, resp.StatusCode, extractErrorMessage(raw))
	}
	return json.Unmarshal(raw, out)
}

func extractErrorMessage(raw []byte) string {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Code + ": " + body.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

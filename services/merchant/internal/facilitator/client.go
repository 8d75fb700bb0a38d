// Package facilitator is the HTTP client for the x402 facilitator that
// verifies and settles EIP-3009 transfers on chain.
package facilitator

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

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
)

// ErrTimeout marks a facilitator call that did not answer in time. The
// payment may or may not have landed; the caller must not assume either.
var ErrTimeout = errors.New("facilitator timeout")

type request struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Verify asks the facilitator to check the signed payment without executing
// it: signature recovery, balance, nonce freshness and the validity window.
func (c *Client) Verify(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (x402.VerifyResponse, error) {
	var out x402.VerifyResponse
	if err := c.post(ctx, "/verify", request{
		X402Version:         x402.Version,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	}, &out); err != nil {
		return x402.VerifyResponse{}, err
	}
	return out, nil
}

// Settle submits the transfer on chain and waits for the transaction hash.
func (c *Client) Settle(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (x402.SettleResponse, error) {
	var out x402.SettleResponse
	if err := c.post(ctx, "/settle", request{
		X402Version:         x402.Version,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	}, &out); err != nil {
		return x402.SettleResponse{}, err
	}
	return out, nil
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
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s %v", ErrTimeout, path, err)
		}
		return fmt.Errorf("facilitator %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("facilitator %s: read response: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("facilitator %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("facilitator %s: decode response: %w", path, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

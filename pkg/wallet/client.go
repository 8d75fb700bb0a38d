package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
)

// Client speaks to the wallet service over HTTP. The payload travels as the
// exact canonical JSON string so the service signs the caller's bytes, not a
// re-encoding of them.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
}

func NewClient(baseURL, bearer string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Bearer:     bearer,
	}
}

func (c *Client) Address(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, "/address", nil, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (c *Client) Sign(ctx context.Context, payload any, purpose string) (signature.Envelope, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return signature.Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	req := map[string]string{"payload": string(canonical), "context": purpose}
	var out struct {
		Envelope signature.Envelope `json:"envelope"`
	}
	if err := c.do(ctx, http.MethodPost, "/sign", req, &out); err != nil {
		return signature.Envelope{}, err
	}
	return out.Envelope, nil
}

func (c *Client) SignTypedData(ctx context.Context, td apitypes.TypedData) (string, error) {
	req := map[string]any{"typed_data": td}
	var out struct {
		Signature string `json:"signature"`
	}
	if err := c.do(ctx, http.MethodPost, "/sign-typed", req, &out); err != nil {
		return "", err
	}
	return out.Signature, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("wallet %s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("wallet %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("wallet %s %s: decode response: %w", method, path, err)
	}
	return nil
}

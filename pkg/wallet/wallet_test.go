package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/signature"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
)

func TestSignMatchesSignBytes(t *testing.T) {
	w, err := GenerateLocalWallet()
	if err != nil {
		t.Fatalf("GenerateLocalWallet: %v", err)
	}
	w.WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	payload := map[string]string{"a": "1"}
	canonical, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	viaSign, err := w.Sign(context.Background(), payload, "test")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	viaBytes, err := w.SignBytes(context.Background(), canonical, "test")
	if err != nil {
		t.Fatalf("SignBytes: %v", err)
	}
	if viaSign != viaBytes {
		t.Fatalf("Sign and SignBytes disagree:\n%+v\n%+v", viaSign, viaBytes)
	}
}

func TestSignTypedDataRecoverable(t *testing.T) {
	w, err := GenerateLocalWallet()
	if err != nil {
		t.Fatalf("GenerateLocalWallet: %v", err)
	}
	addr, _ := w.Address(context.Background())

	auth, err := x402.NewAuthorization(addr, "0x2222222222222222222222222222222222222222", 45_000, time.Now())
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	td := x402.TransferWithAuthTypedData(auth, x402.TokenDomain{
		Contract:     x402.USDCBaseSepolia,
		ChainID:      84532,
		TokenName:    "USDC",
		TokenVersion: "2",
	})

	sigHex, err := w.SignTypedData(context.Background(), td)
	if err != nil {
		t.Fatalf("SignTypedData: %v", err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		t.Fatalf("bad signature encoding: %v (%d bytes)", err, len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("recovery byte %d, want 27 or 28", sig[64])
	}

	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		t.Fatalf("hash typed data: %v", err)
	}
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub).Hex(); got != addr {
		t.Fatalf("recovered %s, want %s", got, addr)
	}
}

func TestClientSignsExactPayloadBytes(t *testing.T) {
	w, err := GenerateLocalWallet()
	if err != nil {
		t.Fatalf("GenerateLocalWallet: %v", err)
	}

	var serverSaw string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sign" {
			http.NotFound(rw, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			Payload string `json:"payload"`
			Context string `json:"context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		serverSaw = req.Payload
		env, err := w.SignBytes(r.Context(), []byte(req.Payload), req.Context)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"envelope": env})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sekrit")
	payload := map[string]string{"b": "2", "a": "1"}
	env, err := client.Sign(context.Background(), payload, "cart_mandate")
	if err != nil {
		t.Fatalf("client.Sign: %v", err)
	}

	canonical, _ := json.Marshal(payload)
	if serverSaw != string(canonical) {
		t.Fatalf("server signed %q, want the caller's canonical bytes %q", serverSaw, canonical)
	}
	if _, err := signature.VerifyEnvelope(payload, env); err != nil {
		t.Fatalf("VerifyEnvelope over the original payload: %v", err)
	}
}

func TestClientReportsHTTPFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "wallet locked", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if _, err := client.Address(context.Background()); err == nil {
		t.Fatalf("expected error from failing wallet service")
	} else if !strings.Contains(err.Error(), "503") {
		t.Fatalf("error should carry the status code: %v", err)
	}
}

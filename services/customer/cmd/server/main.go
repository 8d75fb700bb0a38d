package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/httpx"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/logging"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/mandatechain"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/wallet"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/x402"
	"github.com/Daehan-Base/awesome-x402-on-base/services/customer/internal/agent"
	"github.com/Daehan-Base/awesome-x402-on-base/services/customer/internal/merchantclient"
)

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	log := logging.Setup("customer", env("ENVIRONMENT", ""))

	var signer wallet.Signer
	if url := env("WALLET_URL", ""); url != "" {
		signer = wallet.NewClient(url, env("WALLET_TOKEN", ""))
	} else {
		w, err := wallet.LocalWalletFromHex(os.Getenv("CUSTOMER_PRIVATE_KEY"))
		if err != nil {
			log.Error("load customer wallet", "err", err)
			os.Exit(1)
		}
		signer = w
	}

	var sessions mandatechain.Store = mandatechain.NewMemoryStore()
	if addr := env("REDIS_ADDR", ""); addr != "" {
		sessions = mandatechain.NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}))
	}

	chainID, err := strconv.ParseInt(env("CHAIN_ID", "84532"), 10, 64)
	if err != nil {
		log.Error("bad CHAIN_ID", "err", err)
		os.Exit(1)
	}

	merchant := merchantclient.New(env("MERCHANT_URL", "http://localhost:8080"))
	a := &agent.Agent{
		Wallet:   signer,
		Merchant: merchant,
		Sessions: sessions,
		Domain: x402.TokenDomain{
			Contract:     env("TOKEN_CONTRACT", x402.USDCBaseSepolia),
			ChainID:      chainID,
			TokenName:    env("TOKEN_NAME", "USDC"),
			TokenVersion: env("TOKEN_VERSION", "2"),
		},
		Log: log,
	}

	r := chi.NewRouter()
	r.Use(httpx.AccessLog(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Get("/menu", func(w http.ResponseWriter, r *http.Request) {
		board, err := merchant.Menu(r.Context())
		if err != nil {
			httpx.WriteError(w, 502, "MERCHANT_ERROR", err.Error(), nil)
			return
		}
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(200)
		_, _ = w.Write(board)
	})

	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
			Drink     string `json:"drink"`
			Size      string `json:"size,omitempty"`
			Bean      string `json:"bean,omitempty"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
		if strings.TrimSpace(req.SessionID) == "" {
			httpx.WriteError(w, 400, "BAD_REQUEST", "session_id is required", nil)
			return
		}
		q, err := a.Quote(r.Context(), req.SessionID, merchantclient.OrderSpec{
			Drink: req.Drink, Size: req.Size, Bean: req.Bean,
		})
		if err != nil {
			httpx.WriteMappedError(w, err, quoteErrorTable)
			return
		}
		httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "quote": q})
	})

	r.Post("/orders/confirm", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
		receipt, err := a.Confirm(r.Context(), req.SessionID)
		if err != nil {
			httpx.WriteMappedError(w, err, quoteErrorTable)
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "receipt": receipt})
	})

	r.Get("/sessions/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		state, err := a.State(r.Context(), chi.URLParam(r, "session_id"))
		if err != nil {
			httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{"session_id": chi.URLParam(r, "session_id"), "state": state})
	})

	port := env("SERVICE_PORT", "8081")
	log.Info("customer agent listening", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

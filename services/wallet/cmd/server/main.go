// The wallet service is the only process that holds the buyer's or
// merchant's private key. It exposes signing over HTTP so the agent services
// stay free of key material.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-chi/chi/v5"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/authn"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/httpx"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/logging"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/wallet"
)

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newRouter(w *wallet.LocalWallet, token string, log *slog.Logger) chi.Router {
	addr, _ := w.Address(context.Background())

	r := chi.NewRouter()
	r.Use(httpx.AccessLog(log))
	r.Get("/health", func(rw http.ResponseWriter, r *http.Request) { rw.WriteHeader(200) })

	r.Group(func(pr chi.Router) {
		pr.Use(authn.RequireBearer(token))

		pr.Get("/address", func(rw http.ResponseWriter, r *http.Request) {
			httpx.WriteJSON(rw, 200, map[string]string{"address": addr})
		})

		// The payload arrives as the caller's exact canonical JSON string and
		// is signed byte-for-byte; re-encoding it here would break
		// verification on the other side.
		pr.Post("/sign", func(rw http.ResponseWriter, r *http.Request) {
			var req struct {
				Payload string `json:"payload"`
				Context string `json:"context,omitempty"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(rw, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			if req.Payload == "" {
				httpx.WriteError(rw, 400, "BAD_REQUEST", "payload is required", nil)
				return
			}
			env, err := w.SignBytes(r.Context(), []byte(req.Payload), req.Context)
			if err != nil {
				httpx.WriteError(rw, 500, "SIGN_ERROR", err.Error(), nil)
				return
			}
			log.Info("payload signed", "context", req.Context, "payload_hash", env.PayloadHash)
			httpx.WriteJSON(rw, 200, map[string]any{"envelope": env})
		})

		pr.Post("/sign-typed", func(rw http.ResponseWriter, r *http.Request) {
			var req struct {
				TypedData apitypes.TypedData `json:"typed_data"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(rw, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			sig, err := w.SignTypedData(r.Context(), req.TypedData)
			if err != nil {
				httpx.WriteError(rw, 400, "SIGN_ERROR", err.Error(), nil)
				return
			}
			log.Info("typed data signed", "primary_type", req.TypedData.PrimaryType)
			httpx.WriteJSON(rw, 200, map[string]string{"signature": sig})
		})
	})
	return r
}

func main() {
	log := logging.Setup("wallet", env("ENVIRONMENT", ""))

	var w *wallet.LocalWallet
	var err error
	if pk := os.Getenv("WALLET_PRIVATE_KEY"); strings.TrimSpace(pk) != "" {
		w, err = wallet.LocalWalletFromHex(pk)
	} else {
		log.Warn("WALLET_PRIVATE_KEY not set, generating an ephemeral key")
		w, err = wallet.GenerateLocalWallet()
	}
	if err != nil {
		log.Error("load wallet key", "err", err)
		os.Exit(1)
	}
	token := env("WALLET_TOKEN", "")
	if token == "" {
		log.Warn("WALLET_TOKEN not set, signing endpoints are unauthenticated")
	}

	addr, _ := w.Address(context.Background())
	port := env("SERVICE_PORT", "8082")
	log.Info("wallet listening", "port", port, "address", addr)
	if err := http.ListenAndServe(":"+port, newRouter(w, token, log)); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Daehan-Base/awesome-x402-on-base/pkg/db"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/httpx"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/logging"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/wallet"
	"github.com/Daehan-Base/awesome-x402-on-base/pkg/webhooks"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/facilitator"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/settlement"
	"github.com/Daehan-Base/awesome-x402-on-base/services/merchant/internal/store"
)

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	log := logging.Setup("merchant", env("ENVIRONMENT", ""))

	pool := db.MustConnect()
	if dir := env("MIGRATIONS_DIR", "services/merchant/migrations"); dir != "skip" {
		db.MustMigrate(dir)
	}
	st := store.New(pool)

	var signer wallet.Signer
	if url := env("WALLET_URL", ""); url != "" {
		signer = wallet.NewClient(url, env("WALLET_TOKEN", ""))
	} else {
		w, err := wallet.LocalWalletFromHex(os.Getenv("MERCHANT_PRIVATE_KEY"))
		if err != nil {
			log.Error("load merchant wallet", "err", err)
			os.Exit(1)
		}
		signer = w
	}
	payTo, err := signer.Address(context.Background())
	if err != nil {
		log.Error("resolve merchant address", "err", err)
		os.Exit(1)
	}

	coord := &settlement.Coordinator{
		Facilitator:  facilitator.New(env("FACILITATOR_URL", "https://x402.org/facilitator")),
		Requirements: st,
		Processed:    st,
		ResourceBase: env("RESOURCE_BASE", "https://localhost:8080"),
		Log:          log,
	}

	h := &handlers{
		Store:         st,
		Signer:        signer,
		Coordinator:   coord,
		MerchantName:  env("MERCHANT_NAME", "Daehan Coffee"),
		PayTo:         payTo,
		ResourceBase:  coord.ResourceBase,
		WebhookSecret: env("SETTLEMENT_WEBHOOK_SECRET", ""),
		Log:           log,
	}
	if url := env("SETTLEMENT_EVENTS_URL", ""); url != "" {
		h.Notifier = webhooks.NewSender(url, env("SETTLEMENT_EVENTS_SECRET", h.WebhookSecret))
	}

	r := chi.NewRouter()
	r.Use(httpx.AccessLog(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/menu", h.Menu)
	r.Post("/carts", h.CreateCart)
	r.Post("/payments", h.SettlePayment)
	r.Get("/orders/{payment_details_id}/receipt", h.GetReceipt)
	r.Post("/webhooks/settlement", h.SettlementWebhook)

	port := env("SERVICE_PORT", "8080")
	log.Info("merchant listening", "port", port, "pay_to", payTo)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

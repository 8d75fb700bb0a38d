// Package metrics exposes the merchant's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartsQuoted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merchant_carts_quoted_total",
		Help: "Cart mandates issued in response to signed intents.",
	})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merchant_settlements_total",
		Help: "Settlement attempts by terminal outcome.",
	}, []string{"outcome"})

	SettleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "merchant_settle_duration_seconds",
		Help:    "Wall time of the verify-and-settle pipeline.",
		Buckets: prometheus.DefBuckets,
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merchant_webhook_events_total",
		Help: "Settlement webhook deliveries by disposition.",
	}, []string{"disposition"})
)

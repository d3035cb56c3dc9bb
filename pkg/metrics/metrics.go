package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated counts successful order-creation transactions.
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multivend_orders_created_total",
		Help: "Number of master orders created.",
	})

	// OrderCreationFailures counts aborted order-creation transactions by reason.
	OrderCreationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multivend_order_creation_failures_total",
		Help: "Number of aborted order creation attempts.",
	}, []string{"reason"})

	// PaymentsInitiated counts payment initiations by gateway and method.
	PaymentsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multivend_payments_initiated_total",
		Help: "Number of payment initiations.",
	}, []string{"gateway", "method"})

	// WebhooksProcessed counts webhook deliveries by gateway and outcome
	// (accepted, deduplicated, ignored, rejected).
	WebhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multivend_webhooks_processed_total",
		Help: "Number of webhook deliveries by outcome.",
	}, []string{"gateway", "outcome"})
)

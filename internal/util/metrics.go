package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Total number of direct payment transactions created",
	})

	PaymentsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of failed payment attempts",
	}, []string{"reason"})

	PaymentLinksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_links_created_total",
		Help: "Total number of hosted payment links created",
	})

	WebhooksReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of webhook notifications received",
	})

	WebhooksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_processed_total",
		Help: "Total number of webhook notifications applied to a transaction",
	}, []string{"status"})

	WebhooksIgnoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhooks_ignored_total",
		Help: "Total number of webhook notifications with non-terminal statuses",
	})

	WebhooksUnmatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhooks_unmatched_total",
		Help: "Total number of webhook notifications that matched no transaction",
	})

	StockDecrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decrements_total",
		Help: "Total number of stock decrements applied on approval",
	})

	StockDecrementsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decrements_skipped_total",
		Help: "Total number of approvals where stock was already depleted",
	})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of outbound payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	GatewayRequestsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_failed_total",
		Help: "Total number of failed payment gateway calls",
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

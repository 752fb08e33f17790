package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	prometheus.MustRegister(
		paymentsTotal,
		paymentsRevenueTotal,
		webhookEventsTotal,
		renewalsTotal,
		providerCallDur,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Payment transactions by provider, kind and resulting status.",
		},
		[]string{"provider", "kind", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "payments_revenue_minor_total",
			Help:      "Settled revenue in minor currency units, labeled by currency.",
		},
		[]string{"currency"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Inbound provider webhooks by outcome (handled/ignored/rejected/failed).",
		},
		[]string{"provider", "outcome"},
	)

	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "billing",
			Name:      "renewals_total",
			Help:      "Renewal attempts by result.",
		},
		[]string{"result"},
	)

	providerCallDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: "billing",
			Name:      "provider_call_ms",
			Help:      "Outbound payment provider call latency in milliseconds.",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "op", "ok"},
	)
)

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

func IncPayment(provider, kind, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(kind), norm(status)).Inc()
}

// AddRevenue records a settled amount given in major units.
func AddRevenue(currency string, amount decimal.Decimal) {
	minor := amount.Shift(2).Round(0)
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(minor.InexactFloat64())
}

func IncWebhook(provider, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncRenewal(result string) {
	renewalsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveProviderCall(provider, op string, ok bool, start time.Time) {
	okLabel := "false"
	if ok {
		okLabel = "true"
	}
	providerCallDur.WithLabelValues(norm(provider), op, okLabel).Observe(MillisecondsSince(start))
}

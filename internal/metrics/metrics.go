package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truefantix_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truefantix_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truefantix_order_transitions_total",
			Help: "Order status transitions",
		},
		[]string{"to"},
	)

	ticketsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truefantix_tickets_released_total",
			Help: "Tickets returned to AVAILABLE",
		},
		[]string{"reason"},
	)

	creditEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truefantix_credit_entries_total",
			Help: "Access-token ledger entries written",
		},
		[]string{"type"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truefantix_rate_limited_total",
			Help: "Requests rejected by rate limiting",
		},
		[]string{"bucket"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truefantix_webhook_events_total",
			Help: "Payment webhook events by type",
		},
		[]string{"type"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truefantix_sweep_duration_seconds",
			Help:    "Duration of periodic sweeps",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"job"},
	)
)

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func OrderTransition(to string) {
	orderTransitions.WithLabelValues(to).Inc()
}

func TicketsReleased(reason string, n int64) {
	if n > 0 {
		ticketsReleased.WithLabelValues(reason).Add(float64(n))
	}
}

func CreditEntry(txType string) {
	creditEntries.WithLabelValues(txType).Inc()
}

func RateLimited(bucket string) {
	rateLimited.WithLabelValues(bucket).Inc()
}

func WebhookEvent(eventType string) {
	webhookEvents.WithLabelValues(eventType).Inc()
}

func ObserveSweep(job string, started time.Time) {
	sweepDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		PaymentVerifyRequests,
		PaymentVerifyDuration,
		paymentSecurityEvents,
		paymentStatusChecks,
		paymentInitiateRejected,
	)
}

var (
	// Count of verify calls grouped by outcome and bounded reason.
	// result: success|failed|error
	// reason: none|verification|not_found|expired|processed|declined|internal
	PaymentVerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of gateway callback verifications by result and reason.",
		},
		[]string{"result", "reason"},
	)

	// Latency of verify handler grouped by result.
	PaymentVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of the callback verify handler in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)

	// kind: malformed|signature|product_code|amount|resurrection
	paymentSecurityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_security_events_total",
			Help: "Rejected callbacks that indicate tampering or replay, by kind.",
		},
		[]string{"kind"},
	)

	// result: skipped|complete|rejected|inconclusive
	paymentStatusChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_checks_total",
			Help: "Gateway status endpoint cross-checks by result.",
		},
		[]string{"result"},
	)

	// reason: rate_limited|conflict|not_purchasable|invalid
	paymentInitiateRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiate_rejected_total",
			Help: "Payment initiations refused before reaching the gateway, by reason.",
		},
		[]string{"reason"},
	)
)

// ObserveVerify records one callback verification.
func ObserveVerify(result, reason string, elapsed time.Duration) {
	if reason == "" {
		reason = "none"
	}
	PaymentVerifyRequests.WithLabelValues(orUnknown(result), norm(reason)).Inc()
	PaymentVerifyDuration.WithLabelValues(orUnknown(result)).Observe(elapsed.Seconds())
}

func IncSecurityEvent(kind string) {
	paymentSecurityEvents.WithLabelValues(orUnknown(kind)).Inc()
}

func IncStatusCheck(result string) {
	paymentStatusChecks.WithLabelValues(orUnknown(result)).Inc()
}

func IncInitiateRejected(reason string) {
	paymentInitiateRejected.WithLabelValues(orUnknown(reason)).Inc()
}

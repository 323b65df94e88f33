package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateLimitDecisions) }

var rateLimitDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "Rate limiter decisions on payment initiation, by backend and result.",
	},
	[]string{"backend", "result"}, // result: allowed|rejected|error
)

func IncRateLimit(backend, result string) {
	rateLimitDecisions.WithLabelValues(orUnknown(backend), orUnknown(result)).Inc()
}

// Package metrics holds the billing service's Prometheus collectors: payment
// lifecycle and revenue (payments_core.go), callback verification and security
// events (payment_verify.go), subscription activation, lapse and plan sync
// (subscriptions.go), initiation throttling (ratelimit.go), the Postgres pool
// (db.go) and build info (build.go). All of them are served on /metrics.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register queues collectors from each file's init(); nothing is exported to
// Prometheus until MustRegister runs at startup.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister exports every queued billing collector to the default registry.
// Later calls are no-ops, so tests and cmd/app can both call it.
func MustRegister() {
	once.Do(func() {
		if len(collectors) > 0 {
			prometheus.MustRegister(collectors...)
		}
	})
}

// norm lower-cases label values such as gateway statuses ("COMPLETE") and reasons.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// orUnknown keeps label values bounded when callers pass an empty string.
func orUnknown(s string) string {
	if s = norm(s); s == "" {
		return "unknown"
	}
	return s
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionsActivatedTotal,
		planSyncTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Active subscriptions marked expired by the expiry worker once their period ended.",
		},
	)

	subscriptionsActivatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Subscriptions activated by a verified payment, by plan.",
		},
		[]string{"plan"}, // 'starter', 'pro'
	)

	planSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_sync_total",
			Help: "Plan propagation jobs to organizations and API keys, labeled by status.",
		},
		[]string{"status"}, // 'synced', 'retried', 'failed', 'dropped'
	)
)

func IncSubscriptionsExpired(count int64) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func IncSubscriptionActivated(plan string) {
	subscriptionsActivatedTotal.WithLabelValues(orUnknown(plan)).Inc()
}

func IncPlanSync(status string) {
	planSyncTotal.WithLabelValues(orUnknown(status)).Inc()
}

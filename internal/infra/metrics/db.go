package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Current state of the payment ledger connection pool.",
	},
	[]string{"state"}, // 'total', 'idle', 'acquired', 'max'
)

func SetDBPoolStats(total, idle, acquired, max int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("acquired").Set(float64(acquired))
	dbPoolStats.WithLabelValues("max").Set(float64(max))
}

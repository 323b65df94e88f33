package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentsSweptTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment records by status (pending/completed/failed/expired).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	paymentsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_swept_total",
			Help: "Pending payments moved to expired by the background sweeper.",
		},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(orUnknown(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func AddPaymentsSwept(n int64) {
	paymentsSweptTotal.Add(float64(n))
}

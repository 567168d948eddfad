package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created with reserved inventory",
		},
	)

	OrdersPaidTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_paid_total",
			Help: "Total number of orders confirmed as paid",
		},
	)

	OrdersCanceledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_canceled_total",
			Help: "Total number of orders canceled by buyers",
		},
	)

	OrdersExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_expired_total",
			Help: "Total number of orders canceled by expiration",
		},
	)

	ReleasesAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_releases_applied_total",
			Help: "Total number of release events applied to inventory",
		},
	)

	DuplicateReleasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_releases_duplicate_total",
			Help: "Total number of redelivered release events skipped as already applied",
		},
	)

	ConsistencyFaultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_consistency_faults_total",
			Help: "Total number of releases that would have driven quantity sold below zero",
		},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrdersPaidTotal)
	prometheus.MustRegister(OrdersCanceledTotal)
	prometheus.MustRegister(OrdersExpiredTotal)
	prometheus.MustRegister(ReleasesAppliedTotal)
	prometheus.MustRegister(DuplicateReleasesTotal)
	prometheus.MustRegister(ConsistencyFaultsTotal)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AccessChecks counts entitlement evaluations by verdict.
	AccessChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokengate_access_checks_total",
		Help: "Number of access checks, labeled by verdict",
	}, []string{"verdict"})

	// OracleFailures counts oracle queries that did not answer.
	OracleFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokengate_oracle_failures_total",
		Help: "Number of failed asset oracle queries",
	})

	// Subscriptions counts recorded subscription purchases.
	Subscriptions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokengate_subscriptions_total",
		Help: "Number of subscription purchases recorded",
	})
)

// Register installs the service collectors on the default registry.
func Register() {
	prometheus.MustRegister(AccessChecks, OracleFailures, Subscriptions)
}

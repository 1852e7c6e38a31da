package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the gateway's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	InvoicesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Name:      "invoices_issued_total",
			Help:      "Invoices issued, by service.",
		},
		[]string{"service"},
	)

	PaymentsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Name:      "payments_settled_total",
			Help:      "Payments confirmed settled, by service.",
		},
		[]string{"service"},
	)

	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Name:      "dispatches_total",
			Help:      "Downstream dispatches, by service and outcome.",
		},
		[]string{"service", "outcome"},
	)
)

func init() {
	Registry.MustRegister(InvoicesIssued, PaymentsSettled, Dispatches)
}

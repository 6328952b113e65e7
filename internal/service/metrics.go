package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts coordinator outcomes.
type Metrics struct {
	SalesRecorded  prometheus.Counter
	UnitsSold      prometheus.Counter
	SaleFailures   *prometheus.CounterVec
	SnapshotPushes *prometheus.CounterVec
	Restores       *prometheus.CounterVec
}

// NewMetrics creates the coordinator metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SalesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopledger",
			Name:      "sales_recorded_total",
			Help:      "Sales durably recorded.",
		}),
		UnitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shopledger",
			Name:      "units_sold_total",
			Help:      "Units removed from stock by sales.",
		}),
		SaleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopledger",
			Name:      "sale_failures_total",
			Help:      "Sales that failed, by the step that failed.",
		}, []string{"step"}),
		SnapshotPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopledger",
			Name:      "snapshot_pushes_total",
			Help:      "Snapshot pushes by trigger and result.",
		}, []string{"trigger", "result"}),
		Restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopledger",
			Name:      "restores_total",
			Help:      "Full-state restores by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.SalesRecorded, m.UnitsSold, m.SaleFailures, m.SnapshotPushes, m.Restores)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

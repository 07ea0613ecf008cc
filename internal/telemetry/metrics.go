// Package telemetry registers the ROADM AM's Prometheus metrics as flat
// package-level collectors.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var ReservationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "reservations",
		Name:      "total",
		Help:      "Total number of reservation attempts by outcome.",
	},
	[]string{"outcome"},
)

var SliceActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "slices",
		Name:      "actions_total",
		Help:      "Total number of start/stop/delete slice actions by outcome.",
	},
	[]string{"action", "outcome"},
)

var ReconcilerCyclesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "reconciler",
		Name:      "cycles_total",
		Help:      "Total number of completed get->update->clean reconciliation cycles.",
	},
)

var ReconcilerTicksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "reconciler",
		Name:      "ticks_total",
		Help:      "Total number of FSM ticks by state and outcome.",
	},
	[]string{"state", "outcome"},
)

var ReconciledRowsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "reconciler",
		Name:      "rows_audited_total",
		Help:      "Total number of rows audited by buffer kind.",
	},
	[]string{"kind"},
)

var ExpiredConnectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "ticker",
		Name:      "expired_connections_total",
		Help:      "Total number of connections reaped for having passed end_time.",
	},
)

var ControllerRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "roadmam",
		Subsystem: "controller_client",
		Name:      "request_duration_seconds",
		Help:      "OpenNaaS controller HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"operation"},
)

var ControllerErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "controller_client",
		Name:      "errors_total",
		Help:      "Total number of OpenNaaS controller call failures by operation.",
	},
	[]string{"operation"},
)

var QueueExecuteErrorsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "roadmam",
		Subsystem: "controller_client",
		Name:      "queue_execute_errors_total",
		Help:      "Total number of queue/execute calls that reported at least one ERROR status.",
	},
)

// All returns every ROADM AM metric collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ReservationsTotal,
		SliceActionsTotal,
		ReconcilerCyclesTotal,
		ReconcilerTicksTotal,
		ReconciledRowsTotal,
		ExpiredConnectionsTotal,
		ControllerRequestDuration,
		ControllerErrorsTotal,
		QueueExecuteErrorsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry carrying the Go/process
// collectors plus every collector in extra.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}

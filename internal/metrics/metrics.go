// Package metrics exposes Prometheus metrics the Orchestrator and
// Executor update during operation:
//
//	gridbot_cycle_duration_seconds        – histogram of orchestrator cycle time
//	gridbot_plan_size{op}                 – desired buys/sells, cancels/creates per cycle
//	gridbot_exchange_errors_total{code}   – venue error counts by numeric code
//	gridbot_reconcile_unchanged_total     – orders left untouched by the Reconciler
//
// Registered in init() and served by whatever HTTP surface the operator
// wires up (out of scope for this module); components only need to call
// the helper setters below.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridbot_cycle_duration_seconds",
		Help:    "Duration of one orchestrator cycle across all baskets.",
		Buckets: prometheus.DefBuckets,
	})

	planSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridbot_plan_size",
		Help: "Size of the reconciliation plan by operation.",
	}, []string{"op"}) // op: buys|sells|to_cancel|to_create

	exchangeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_exchange_errors_total",
		Help: "Venue errors by numeric code.",
	}, []string{"code"})

	reconcileUnchanged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_reconcile_unchanged_total",
		Help: "Orders the Reconciler left untouched, summed across cycles.",
	})

	emergencyCloses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_emergency_closes_total",
		Help: "Number of Emergency Closer invocations.",
	})
)

func init() {
	prometheus.MustRegister(cycleDuration, planSize, exchangeErrors, reconcileUnchanged, emergencyCloses)
}

// ObserveCycleDuration records one orchestrator cycle's wall-clock time.
func ObserveCycleDuration(seconds float64) { cycleDuration.Observe(seconds) }

// SetPlanSize records the size of one reconciliation plan dimension.
func SetPlanSize(op string, n int) { planSize.WithLabelValues(op).Set(float64(n)) }

// IncExchangeError records one venue error by its numeric code.
func IncExchangeError(code int) {
	exchangeErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// AddReconcileUnchanged accumulates the Reconciler's unchanged counter.
func AddReconcileUnchanged(n int) { reconcileUnchanged.Add(float64(n)) }

// IncEmergencyClose records one Emergency Closer invocation.
func IncEmergencyClose() { emergencyCloses.Inc() }

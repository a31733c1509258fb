// Package metrics provides Prometheus metrics for the pharmacy service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pharmacy"

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	DispenseOutcomes    *prometheus.CounterVec
	DispenseDuration    prometheus.Histogram
	Returns             prometheus.Counter
	SafetyFindings      *prometheus.CounterVec
	PDMPAlerts          *prometheus.CounterVec
	PDMPReports         *prometheus.CounterVec
	PDMPUnreported      prometheus.Gauge
	InventoryDecrements *prometheus.CounterVec
	DecrementDuration   prometheus.Histogram
	LowStockLots        prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all metrics on a dedicated registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		DispenseOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispense_outcomes_total",
			Help:      "Dispense attempts by outcome (dispensed or rejection code)",
		}, []string{"outcome"}),
		DispenseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispense_duration_seconds",
			Help:      "End-to-end dispense duration",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		Returns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_total",
			Help:      "Medication returns processed",
		}),
		SafetyFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_findings_total",
			Help:      "Interaction and allergy findings by kind and severity",
		}, []string{"kind", "severity"}),
		PDMPAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdmp_alerts_total",
			Help:      "PDMP alerts raised by rule",
		}, []string{"rule"}),
		PDMPReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdmp_reports_total",
			Help:      "PDMP report submissions by result",
		}, []string{"result"}),
		PDMPUnreported: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pdmp_unreported_entries",
			Help:      "Controlled substance log entries awaiting report at the last sweep",
		}),
		InventoryDecrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_decrements_total",
			Help:      "Inventory decrements by result",
		}, []string{"result"}),
		DecrementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inventory_decrement_duration_seconds",
			Help:      "Time spent inside the locked FEFO decrement",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		LowStockLots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_low_stock_total",
			Help:      "Lots observed at or below their reorder level after a decrement",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.DispenseOutcomes,
		m.DispenseDuration,
		m.Returns,
		m.SafetyFindings,
		m.PDMPAlerts,
		m.PDMPReports,
		m.PDMPUnreported,
		m.InventoryDecrements,
		m.DecrementDuration,
		m.LowStockLots,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDispense(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.DispenseOutcomes.WithLabelValues(outcome).Inc()
	m.DispenseDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) IncReturn() {
	if m == nil {
		return
	}
	m.Returns.Inc()
}

func (m *Metrics) IncSafetyFinding(kind, severity string) {
	if m == nil {
		return
	}
	m.SafetyFindings.WithLabelValues(kind, severity).Inc()
}

func (m *Metrics) IncPDMPAlert(rule string) {
	if m == nil {
		return
	}
	m.PDMPAlerts.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncPDMPReport(result string) {
	if m == nil {
		return
	}
	m.PDMPReports.WithLabelValues(result).Inc()
}

func (m *Metrics) SetUnreported(n int) {
	if m == nil {
		return
	}
	m.PDMPUnreported.Set(float64(n))
}

func (m *Metrics) ObserveDecrement(result string, started time.Time) {
	if m == nil {
		return
	}
	m.InventoryDecrements.WithLabelValues(result).Inc()
	m.DecrementDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) IncLowStock() {
	if m == nil {
		return
	}
	m.LowStockLots.Inc()
}

func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

// Package metrics provides Prometheus metrics for the signal pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// PipelineMetrics collects and exposes pipeline Prometheus metrics.
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec

	// Signal metrics
	SignalsTotal *prometheus.CounterVec
	SignalEdge   *prometheus.HistogramVec
	SignalSize   *prometheus.HistogramVec

	// Commit metrics
	CommitsTotal *prometheus.CounterVec

	// Ledger metrics
	Cash          *prometheus.GaugeVec
	TotalExposure *prometheus.GaugeVec
	DailyPnL      *prometheus.GaugeVec
	BreakerOpen   *prometheus.GaugeVec

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	ActiveMarkets *prometheus.GaugeVec
}

// NewPipelineMetrics creates a new pipeline metrics collector.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	pm := &PipelineMetrics{
		registry: registry,

		// Evaluation metrics
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgefeed_evaluations_total",
				Help: "Total number of market evaluations",
			},
			[]string{"status", "reason"},
		),
		EvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgefeed_evaluation_duration_seconds",
				Help:    "Per-market evaluation duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"status"},
		),

		// Signal metrics
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgefeed_signals_total",
				Help: "Total number of accepted signals",
			},
			[]string{"side", "strength"},
		),
		SignalEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgefeed_signal_edge",
				Help:    "Accepted signal edge (0-1)",
				Buckets: prometheus.LinearBuckets(0, 0.05, 11), // 0 to 0.5
			},
			[]string{"side"},
		),
		SignalSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgefeed_signal_size_usd",
				Help:    "Sized stake in USD",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"side"},
		),

		// Commit metrics
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgefeed_commits_total",
				Help: "Total number of ledger commit attempts",
			},
			[]string{"result"},
		),

		// Ledger metrics
		Cash: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgefeed_cash_usd",
				Help: "Current cash balance in USD",
			},
			[]string{},
		),
		TotalExposure: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgefeed_total_exposure_usd",
				Help: "Total open exposure in USD",
			},
			[]string{},
		),
		DailyPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgefeed_daily_pnl_usd",
				Help: "Today's P&L in USD",
			},
			[]string{},
		),
		BreakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgefeed_circuit_breaker_open",
				Help: "Whether the drawdown breaker is open (1=yes, 0=no)",
			},
			[]string{},
		),

		// Cycle metrics
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgefeed_cycles_total",
				Help: "Total number of pipeline cycles",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgefeed_cycle_duration_seconds",
				Help:    "Total cycle duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~400s
			},
			[]string{},
		),
		ActiveMarkets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgefeed_active_markets",
				Help: "Number of markets evaluated in the last cycle",
			},
			[]string{},
		),
	}

	// Register all metrics
	pm.registerAll()

	return pm
}

func (pm *PipelineMetrics) registerAll() {
	pm.registry.MustRegister(
		pm.EvaluationsTotal,
		pm.EvaluationDuration,
		pm.SignalsTotal,
		pm.SignalEdge,
		pm.SignalSize,
		pm.CommitsTotal,
		pm.Cash,
		pm.TotalExposure,
		pm.DailyPnL,
		pm.BreakerOpen,
		pm.CyclesTotal,
		pm.CycleDuration,
		pm.ActiveMarkets,
	)
}

// Registry returns the prometheus registry.
func (pm *PipelineMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// --- Helper methods for recording metrics ---

// RecordEvaluation records one market evaluation result.
func (pm *PipelineMetrics) RecordEvaluation(status, reason string, durationSec float64) {
	pm.EvaluationsTotal.WithLabelValues(status, reason).Inc()
	if durationSec > 0 {
		pm.EvaluationDuration.WithLabelValues(status).Observe(durationSec)
	}
}

// RecordSignal records an accepted signal.
func (pm *PipelineMetrics) RecordSignal(side, strength string, edge, sizeUSD float64) {
	pm.SignalsTotal.WithLabelValues(side, strength).Inc()
	pm.SignalEdge.WithLabelValues(side).Observe(edge)
	if sizeUSD > 0 {
		pm.SignalSize.WithLabelValues(side).Observe(sizeUSD)
	}
}

// RecordCommit records a ledger commit attempt.
func (pm *PipelineMetrics) RecordCommit(result string) {
	pm.CommitsTotal.WithLabelValues(result).Inc()
}

// UpdateLedger updates the ledger gauges.
func (pm *PipelineMetrics) UpdateLedger(cash, exposure, dailyPnL float64, breakerOpen bool) {
	pm.Cash.WithLabelValues().Set(cash)
	pm.TotalExposure.WithLabelValues().Set(exposure)
	pm.DailyPnL.WithLabelValues().Set(dailyPnL)
	if breakerOpen {
		pm.BreakerOpen.WithLabelValues().Set(1)
	} else {
		pm.BreakerOpen.WithLabelValues().Set(0)
	}
}

// RecordCycle records a finished cycle.
func (pm *PipelineMetrics) RecordCycle(status string, durationSec float64, markets int) {
	pm.CyclesTotal.WithLabelValues(status).Inc()
	if durationSec > 0 {
		pm.CycleDuration.WithLabelValues().Observe(durationSec)
	}
	pm.ActiveMarkets.WithLabelValues().Set(float64(markets))
}

// --- Decimal helpers ---

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *PipelineMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *PipelineMetrics {
	once.Do(func() {
		defaultMetrics = NewPipelineMetrics()
	})
	return defaultMetrics
}

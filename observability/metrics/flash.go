package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type FlashMetrics struct {
	settlements        *prometheus.CounterVec
	settlementDuration prometheus.Histogram
	profitUnits        *prometheus.CounterVec
	archiveDepth       prometheus.Gauge
	reserveRatio       *prometheus.GaugeVec
}

var (
	flashOnce     sync.Once
	flashRegistry *FlashMetrics
)

func Flash() *FlashMetrics {
	flashOnce.Do(func() {
		flashRegistry = &FlashMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flashliq_settlements_total",
				Help: "Count of flash settlement attempts by outcome and abort reason.",
			}, []string{"outcome", "reason"}),
			settlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "flashliq_settlement_duration_seconds",
				Help:    "Wall-clock duration of settlement attempts.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			}),
			profitUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flashliq_profit_units_total",
				Help: "Cumulative realised profit in base-asset units by debt token.",
			}, []string{"debt_token"}),
			archiveDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "flashliq_archive_depth",
				Help: "Number of settlements persisted in the archive.",
			}),
			reserveRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "flashliq_pool_reserve_ratio",
				Help: "Last observed base/quote reserve ratio per pool.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			flashRegistry.settlements,
			flashRegistry.settlementDuration,
			flashRegistry.profitUnits,
			flashRegistry.archiveDepth,
			flashRegistry.reserveRatio,
		)
	})
	return flashRegistry
}

func (m *FlashMetrics) ObserveSettlement(outcome, reason string, seconds float64) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if reason == "" {
		reason = "none"
	}
	m.settlements.WithLabelValues(outcome, reason).Inc()
	m.settlementDuration.Observe(seconds)
}

func (m *FlashMetrics) AddProfit(debtToken string, units float64) {
	if m == nil {
		return
	}
	if debtToken == "" {
		debtToken = "unknown"
	}
	m.profitUnits.WithLabelValues(debtToken).Add(units)
}

func (m *FlashMetrics) SetArchiveDepth(depth float64) {
	if m == nil {
		return
	}
	m.archiveDepth.Set(depth)
}

func (m *FlashMetrics) SetReserveRatio(pool string, ratio float64) {
	if m == nil {
		return
	}
	if pool == "" {
		pool = "unknown"
	}
	m.reserveRatio.WithLabelValues(pool).Set(ratio)
}

func (m *FlashMetrics) InitOutcome(outcome, reason string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if reason == "" {
		reason = "none"
	}
	m.settlements.WithLabelValues(outcome, reason).Add(0)
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks market activity and pool health.
type LedgerMetrics struct {
	operations   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	totalAssets  *prometheus.GaugeVec
	floatingDebt *prometheus.GaugeVec
	utilization  *prometheus.GaugeVec
	backup       *prometheus.GaugeVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics, registering them on first
// use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "termlend",
				Name:      "operations_total",
				Help:      "Count of completed market operations by market and operation.",
			}, []string{"market", "op"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "termlend",
				Name:      "operation_failures_total",
				Help:      "Count of rejected market operations by market, operation and reason.",
			}, []string{"market", "op", "reason"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "termlend",
				Name:      "liquidations_total",
				Help:      "Count of executed liquidations by repay and seize market.",
			}, []string{"repay_market", "seize_market"}),
			totalAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "termlend",
				Name:      "total_assets",
				Help:      "Floating pool total assets in asset units.",
			}, []string{"market"}),
			floatingDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "termlend",
				Name:      "floating_debt",
				Help:      "Outstanding floating debt in asset units.",
			}, []string{"market"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "termlend",
				Name:      "floating_utilization",
				Help:      "Floating debt over floating assets.",
			}, []string{"market"}),
			backup: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "termlend",
				Name:      "floating_backup_borrowed",
				Help:      "Floating liquidity lent to maturity pools in asset units.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.failures,
			ledgerRegistry.liquidations,
			ledgerRegistry.totalAssets,
			ledgerRegistry.floatingDebt,
			ledgerRegistry.utilization,
			ledgerRegistry.backup,
		)
	})
	return ledgerRegistry
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *LedgerMetrics) ObserveOperation(market, op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(label(market), label(op)).Inc()
}

func (m *LedgerMetrics) ObserveFailure(market, op, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(label(market), label(op), label(reason)).Inc()
}

func (m *LedgerMetrics) ObserveLiquidation(repayMarket, seizeMarket string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(label(repayMarket), label(seizeMarket)).Inc()
}

// SetPool records the floating pool gauges of a market.
func (m *LedgerMetrics) SetPool(market string, totalAssets, floatingDebt, utilization, backup float64) {
	if m == nil {
		return
	}
	market = label(market)
	m.totalAssets.WithLabelValues(market).Set(totalAssets)
	m.floatingDebt.WithLabelValues(market).Set(floatingDebt)
	m.utilization.WithLabelValues(market).Set(utilization)
	m.backup.WithLabelValues(market).Set(backup)
}

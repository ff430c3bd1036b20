package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики пайплайна допуска ордеров
// ============================================================
//
// Использование:
// - Grafana дашборды (доля отказов по гейтам, частота трипов)
// - Alertmanager: алерт на ledger_write_failures_total > 0

// OrdersSubmitted - количество обработанных submit_order по исходам
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeguard",
		Subsystem: "pipeline",
		Name:      "orders_submitted_total",
		Help:      "Total order submissions by outcome",
	},
	[]string{"outcome"}, // admitted, rejected, duplicate
)

// GateRejections - отказы по гейтам
var GateRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeguard",
		Subsystem: "pipeline",
		Name:      "gate_rejections_total",
		Help:      "Total gate rejections by gate name",
	},
	[]string{"gate"},
)

// BreakerTrips - срабатывания circuit breaker'а по типу триггера
var BreakerTrips = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeguard",
		Subsystem: "pipeline",
		Name:      "breaker_trips_total",
		Help:      "Total circuit breaker trips by trigger type",
	},
	[]string{"trigger_type"},
)

// FillsRecorded - записанные в леджер fills
var FillsRecorded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeguard",
		Subsystem: "pipeline",
		Name:      "fills_recorded_total",
		Help:      "Total fills appended to the ledger",
	},
	[]string{"exchange"},
)

// LedgerWriteFailures - несостоявшиеся записи в леджер.
// Любое ненулевое значение - инцидент финансовой целостности.
var LedgerWriteFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradeguard",
		Subsystem: "pipeline",
		Name:      "ledger_write_failures_total",
		Help:      "Total fill recordings that failed to reach the ledger",
	},
)

// SubmitLatency - длительность полного прохода гейтов
var SubmitLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradeguard",
		Subsystem: "pipeline",
		Name:      "submit_latency_ms",
		Help:      "Gate pipeline evaluation latency in milliseconds",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
)

// SlippageObserved - фактический slippage записанных fills
var SlippageObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradeguard",
		Subsystem: "pipeline",
		Name:      "fill_slippage_bps",
		Help:      "Observed fill slippage in basis points",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
	},
	[]string{"exchange"},
)

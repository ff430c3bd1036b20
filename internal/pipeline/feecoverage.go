package pipeline

import (
	"strings"
	"sync"

	"tradeguard/internal/config"
	"tradeguard/internal/models"
	"tradeguard/pkg/utils"
)

// ============================================================
// Гейт B: покрытие стоимости исполнения (fee coverage)
// ============================================================

// Taker-комиссии бирж в базисных пунктах. Ключ - имя биржи в lowercase.
// Неизвестная биржа получает defaultTakerFeeBps.
var takerFeeBps = map[string]float64{
	"binance":  10.0,
	"bybit":    10.0,
	"okx":      8.0,
	"gate":     9.0,
	"bitget":   6.0,
	"bingx":    5.0,
	"htx":      20.0,
	"coinbase": 60.0,
	"kraken":   26.0,
}

const defaultTakerFeeBps = 10.0

// Maker-комиссии для limit ордеров: как правило ниже taker.
var makerFeeBps = map[string]float64{
	"binance":  10.0,
	"bybit":    10.0,
	"okx":      8.0,
	"gate":     9.0,
	"bitget":   2.0,
	"bingx":    2.0,
	"htx":      20.0,
	"coinbase": 40.0,
	"kraken":   16.0,
}

// StaticSpreadEstimator - конфигурируемая таблица спредов по символам.
//
// Живой оценки стакана у пайплайна нет (подключение к биржам вне его
// зоны ответственности), поэтому спред берётся из калиброванной таблицы
// с консервативным значением по умолчанию. Таблицу можно обновлять на
// лету из внешнего фида.
type StaticSpreadEstimator struct {
	mu       sync.RWMutex
	spreads  map[string]float64 // ключ "exchange:symbol" либо "symbol"
	fallback float64
}

// NewStaticSpreadEstimator создает оценщик с дефолтным спредом в bps
func NewStaticSpreadEstimator(fallbackBps float64) *StaticSpreadEstimator {
	if fallbackBps <= 0 {
		fallbackBps = 5.0
	}
	return &StaticSpreadEstimator{
		spreads:  make(map[string]float64),
		fallback: fallbackBps,
	}
}

// SpreadBps возвращает оценку спреда: сначала exchange:symbol,
// затем symbol, затем fallback
func (e *StaticSpreadEstimator) SpreadBps(exchange, symbol string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if v, ok := e.spreads[strings.ToLower(exchange)+":"+symbol]; ok {
		return v
	}
	if v, ok := e.spreads[symbol]; ok {
		return v
	}
	return e.fallback
}

// SetSpread обновляет оценку спреда символа
func (e *StaticSpreadEstimator) SetSpread(key string, bps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spreads[key] = bps
}

var _ SpreadEstimatorInterface = (*StaticSpreadEstimator)(nil)

// FeeCoverageGate проверяет, что ожидаемый edge покрывает полную
// стоимость исполнения: комиссия + спред + slippage + запас прочности.
type FeeCoverageGate struct {
	spreads SpreadEstimatorInterface
}

// NewFeeCoverageGate создает гейт покрытия стоимости
func NewFeeCoverageGate(spreads SpreadEstimatorInterface) *FeeCoverageGate {
	if spreads == nil {
		spreads = NewStaticSpreadEstimator(5.0)
	}
	return &FeeCoverageGate{spreads: spreads}
}

// feeFor возвращает комиссию биржи в bps для типа ордера
func feeFor(exchange, orderType string) float64 {
	ex := strings.ToLower(exchange)
	if orderType == models.OrderTypeLimit {
		if fee, ok := makerFeeBps[ex]; ok {
			return fee
		}
	}
	if fee, ok := takerFeeBps[ex]; ok {
		return fee
	}
	return defaultTakerFeeBps
}

// Evaluate считает модель стоимости и сравнивает с edge.
//
// total_cost_bps = fee + spread + slippage + safety_margin, точная сумма
// без округления сверх BpsEpsilon. Edge: из запроса, либо MIN_EDGE_BPS.
// Проходит при edge >= total_cost. Все компоненты попадают в Details
// независимо от исхода - разбивка нужна и дашборду, и ордеру.
func (g *FeeCoverageGate) Evaluate(req *models.OrderRequest, limits config.GateLimits) (models.GateResult, models.ExecutionSummary) {
	summary := models.ExecutionSummary{
		FeeBps:          feeFor(req.Exchange, req.OrderType),
		SpreadBps:       g.spreads.SpreadBps(req.Exchange, req.Symbol),
		SlippageBps:     limits.SlippageBufferBps,
		SafetyMarginBps: limits.SafetyMarginBps,
	}
	summary.TotalCostBps = summary.FeeBps + summary.SpreadBps + summary.SlippageBps + summary.SafetyMarginBps

	summary.EdgeBps = req.ExpectedEdgeBps
	if summary.EdgeBps == 0 {
		summary.EdgeBps = limits.MinEdgeBps
	}
	summary.ProfitMarginBps = summary.EdgeBps - summary.TotalCostBps

	details := map[string]interface{}{
		"fee_bps":           summary.FeeBps,
		"spread_bps":        summary.SpreadBps,
		"slippage_bps":      summary.SlippageBps,
		"safety_margin_bps": summary.SafetyMarginBps,
		"total_cost_bps":    summary.TotalCostBps,
		"edge_bps":          summary.EdgeBps,
		"margin_bps":        summary.ProfitMarginBps,
	}

	if summary.ProfitMarginBps < -utils.BpsEpsilon {
		return models.FailGate(models.GateFeeCoverage, "Insufficient edge", details), summary
	}

	return models.PassGate(models.GateFeeCoverage, details), summary
}

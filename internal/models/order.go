package models

import (
	"errors"
	"time"
)

// Ошибки модели ордера
var (
	ErrInvalidStateTransition = errors.New("invalid order state transition")
)

// OrderRequest представляет намерение вызывающей стороны разместить ордер.
// Неизменяем после отправки в пайплайн.
type OrderRequest struct {
	UserID          string  `json:"user_id"`
	BotID           string  `json:"bot_id"`
	Exchange        string  `json:"exchange"`
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"` // buy, sell
	Amount          float64 `json:"amount"`
	OrderType       string  `json:"order_type"`                  // market, limit
	Price           float64 `json:"price,omitempty"`             // обязательна для limit
	IdempotencyKey  string  `json:"idempotency_key,omitempty"`   // генерируется если пустой
	ExpectedEdgeBps float64 `json:"expected_edge_bps,omitempty"` // 0 = использовать MIN_EDGE_BPS
}

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордера
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// ExecutionSummary - ожидаемая стоимость исполнения в базисных пунктах.
// Рассчитывается fee coverage гейтом и сохраняется вместе с ордером,
// чтобы после исполнения сравнить ожидания с фактом.
type ExecutionSummary struct {
	FeeBps          float64 `json:"fee_bps"`
	SpreadBps       float64 `json:"spread_bps"`
	SlippageBps     float64 `json:"slippage_bps"`
	SafetyMarginBps float64 `json:"safety_margin_bps"`
	TotalCostBps    float64 `json:"total_cost_bps"`
	EdgeBps         float64 `json:"edge_bps"`
	ProfitMarginBps float64 `json:"profit_margin_bps"` // edge - total_cost
}

// PendingOrder представляет сохранённую заявку, прошедшую все гейты.
// Создаётся только при полном проходе пайплайна; отклонённые ордера
// в БД не сохраняются.
type PendingOrder struct {
	OrderID        string           `json:"order_id" db:"order_id"`
	IdempotencyKey string           `json:"idempotency_key" db:"idempotency_key"` // UNIQUE в БД
	UserID         string           `json:"user_id" db:"user_id"`
	BotID          string           `json:"bot_id" db:"bot_id"`
	Exchange       string           `json:"exchange" db:"exchange"`
	Symbol         string           `json:"symbol" db:"symbol"`
	Side           string           `json:"side" db:"side"`
	Amount         float64          `json:"amount" db:"amount"`
	OrderType      string           `json:"order_type" db:"order_type"`
	Price          float64          `json:"price" db:"price"` // ожидаемая цена исполнения
	State          string           `json:"state" db:"state"`
	Summary        ExecutionSummary `json:"execution_summary" db:"execution_summary"` // JSON в БД
	GatesPassed    []string         `json:"gates_passed" db:"gates_passed"`           // JSON в БД
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	FilledAt       *time.Time       `json:"filled_at,omitempty" db:"filled_at"`
}

// Состояния ордера
const (
	OrderStatePending   = "pending"
	OrderStateFilled    = "filled"
	OrderStateRejected  = "rejected"
	OrderStateExpired   = "expired"
	OrderStateCancelled = "cancelled"
)

// Имена гейтов
const (
	GateIdempotency    = "idempotency"
	GateFeeCoverage    = "fee_coverage"
	GateTradeLimiter   = "trade_limiter"
	GateCircuitBreaker = "circuit_breaker"
)

// GateOrder - фиксированный порядок прохождения гейтов.
//
// Порядок значим: идемпотентность проверяется до любых расчётов,
// стоимость до лимитов (убыточный ордер не должен расходовать слот
// rate limit'а), circuit breaker последним как самая дорогая проверка.
var GateOrder = []string{GateIdempotency, GateFeeCoverage, GateTradeLimiter, GateCircuitBreaker}

// CanTransition проверяет допустимость перехода состояния ордера.
//
// Терминальные состояния (filled, rejected, expired, cancelled) достижимы
// только из pending. Переход в то же состояние и возврат в pending запрещены.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	if from != OrderStatePending {
		return false
	}
	switch to {
	case OrderStateFilled, OrderStateRejected, OrderStateExpired, OrderStateCancelled:
		return true
	}
	return false
}

// IsTerminal возвращает true для терминального состояния
func IsTerminal(state string) bool {
	switch state {
	case OrderStateFilled, OrderStateRejected, OrderStateExpired, OrderStateCancelled:
		return true
	}
	return false
}

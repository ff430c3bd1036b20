package models

import "time"

// Fill представляет фактическое исполнение ордера в леджере.
//
// Леджер append-only: записи никогда не изменяются и не удаляются,
// это единственный источник истины для всех финансовых метрик
// (equity, drawdown, realized PnL, комиссии).
type Fill struct {
	FillID          string       `json:"fill_id" db:"fill_id"`
	ExchangeTradeID string       `json:"exchange_trade_id,omitempty" db:"exchange_trade_id"`
	OrderID         string       `json:"order_id" db:"order_id"`
	UserID          string       `json:"user_id" db:"user_id"`
	BotID           string       `json:"bot_id" db:"bot_id"`
	Exchange        string       `json:"exchange" db:"exchange"`
	Symbol          string       `json:"symbol" db:"symbol"`
	Side            string       `json:"side" db:"side"`
	FilledPrice     float64      `json:"filled_price" db:"filled_price"`
	FilledQty       float64      `json:"filled_qty" db:"filled_qty"`
	ActualFee       float64      `json:"actual_fee" db:"actual_fee"`
	FeeCurrency     string       `json:"fee_currency" db:"fee_currency"`
	Pnl             float64      `json:"pnl" db:"pnl"`           // realized PnL сделки (0 для открытия)
	Metadata        FillMetadata `json:"metadata" db:"metadata"` // JSON в БД
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// FillMetadata - блок сверки ожиданий с фактом.
//
// Дельта expected-vs-actual считается всегда, даже нулевая: это
// обратная связь для калибровки модели комиссий и slippage.
type FillMetadata struct {
	ExpectedPrice       float64          `json:"expected_price"`
	FilledPrice         float64          `json:"filled_price"`
	ExpectedFeeBps      float64          `json:"expected_fee_bps"`
	ActualFeeBps        float64          `json:"actual_fee_bps"`
	ExpectedSlippageBps float64          `json:"expected_slippage_bps"`
	ActualSlippageBps   float64          `json:"actual_slippage_bps"`
	ExecutionSummary    ExecutionSummary `json:"execution_summary"`
	OrderType           string           `json:"order_type"`
	GatesPassed         []string         `json:"gates_passed"`
}

// ErrorEvent - запись об ошибке бота для расчёта error rate.
// Питает условие error_storm circuit breaker'а.
type ErrorEvent struct {
	ID        int       `json:"id" db:"id"`
	BotID     string    `json:"bot_id" db:"bot_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Source    string    `json:"source" db:"source"` // exchange_api, pipeline, execution
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

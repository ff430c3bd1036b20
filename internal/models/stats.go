package models

// LedgerStats представляет агрегированные финансовые метрики,
// рассчитанные из append-only леджера fills
type LedgerStats struct {
	BotID             string  `json:"bot_id,omitempty"`
	Equity            float64 `json:"equity"`
	RealizedPnl       float64 `json:"realized_pnl"`
	FeesPaid          float64 `json:"fees_paid"`
	CurrentDrawdown   float64 `json:"current_drawdown"` // доля от пика, 0.22 = 22%
	MaxDrawdown       float64 `json:"max_drawdown"`
	DailyPnlPercent   float64 `json:"daily_pnl_percent"` // -0.12 = -12% за день
	ConsecutiveLosses int     `json:"consecutive_losses"`
	ErrorRatePerHour  float64 `json:"error_rate_per_hour"` // за скользящий час
	TotalTrades       int     `json:"total_trades"`
	TodayTrades       int     `json:"today_trades"`
}

package models

import "time"

// Notification представляет уведомление о событии пайплайна
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // BREAKER_TRIP, BREAKER_RESET, LEDGER_FAIL, ORDER_REJECTED
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	BotID     string                 `json:"bot_id,omitempty" db:"bot_id"`
	UserID    string                 `json:"user_id,omitempty" db:"user_id"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeBreakerTrip   = "BREAKER_TRIP"   // сработал circuit breaker, бот должен встать на паузу
	NotificationTypeBreakerReset  = "BREAKER_RESET"  // breaker снят вручную
	NotificationTypeLedgerFail    = "LEDGER_FAIL"    // fill не записался в леджер - инцидент
	NotificationTypeOrderRejected = "ORDER_REJECTED" // ордер отклонён гейтом
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

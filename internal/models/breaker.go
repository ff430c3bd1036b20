package models

import "time"

// CircuitBreakerState - состояние автоматического выключателя для бота.
//
// Сохраняется в БД: состояние переживает перезапуски и видно дашбордам.
// Переходы: clear → tripped (через Trip), tripped → clear (только явный
// Reset - автоматического снятия по следующей проверке нет).
type CircuitBreakerState struct {
	BotID       string     `json:"bot_id" db:"bot_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Tripped     bool       `json:"tripped" db:"tripped"`
	Reason      string     `json:"reason,omitempty" db:"reason"`
	TriggerType string     `json:"trigger_type,omitempty" db:"trigger_type"`
	TrippedAt   *time.Time `json:"tripped_at,omitempty" db:"tripped_at"`
	ClearedAt   *time.Time `json:"cleared_at,omitempty" db:"cleared_at"` // null пока tripped
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Типы триггеров circuit breaker'а.
// Порядок проверки в пайплайне: drawdown, daily_loss, consecutive_losses,
// error_storm - более системный риск всплывает первым, если сработало
// несколько условий одновременно.
const (
	TriggerDrawdown          = "drawdown"
	TriggerDailyLoss         = "daily_loss"
	TriggerConsecutiveLosses = "consecutive_losses"
	TriggerErrorStorm        = "error_storm"
	TriggerManual            = "manual"
)

// BreakerStatus - результат проверки условий срабатывания
type BreakerStatus struct {
	ShouldTrip  bool                   `json:"should_trip"`
	TriggerType string                 `json:"trigger_type,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

package pipeline

import (
	"context"
	"time"

	"tradeguard/internal/models"
	"tradeguard/internal/repository"
)

// OrderStoreInterface определяет интерфейс хранилища pending ордеров
type OrderStoreInterface interface {
	Create(order *models.PendingOrder) error
	GetByOrderID(orderID string) (*models.PendingOrder, error)
	GetByIdempotencyKey(key string) (*models.PendingOrder, error)
	MarkFilled(orderID string, filledAt time.Time) error
	UpdateState(orderID, toState string) error
	ExpireStale(olderThan time.Time) (int64, error)
	CountByState(state string) (int, error)
}

// LedgerInterface определяет интерфейс леджера fills.
//
// Чтения питают trade limiter и circuit breaker; AppendFill - единственная
// операция записи, атомарная и durable до возврата без ошибки.
type LedgerInterface interface {
	AppendFill(ctx context.Context, fill *models.Fill) error
	GetTradeCountForBot(botID string, since time.Time) (int, error)
	GetTradeCountForUser(userID string, since time.Time) (int, error)
	ComputeDrawdown(botID string) (current, max float64, err error)
	ComputeDailyPnl(botID string) (float64, error)
	GetConsecutiveLosses(botID string) (int, error)
	GetErrorRate(botID string) (float64, error)
	ComputeEquity(botID string) (float64, error)
	ComputeRealizedPnl(botID string) (float64, error)
	ComputeFeesPaid(botID string) (float64, error)
	GetStats(botID string) (*models.LedgerStats, error)
}

// BreakerStoreInterface определяет интерфейс хранилища состояний circuit breaker'а
type BreakerStoreInterface interface {
	Get(botID string) (*models.CircuitBreakerState, error)
	Trip(botID, userID, reason, triggerType string) (*models.CircuitBreakerState, error)
	Reset(botID string) (*models.CircuitBreakerState, error)
	GetTripped() ([]*models.CircuitBreakerState, error)
}

// NotifierInterface определяет интерфейс журнала уведомлений
type NotifierInterface interface {
	Create(notif *models.Notification) error
}

// TripSignaler - внешний наблюдатель событий breaker'а.
//
// Трип обязан быть наблюдаемым: bot-lifecycle менеджер ставит бота на
// паузу по этому сигналу. Реализуется websocket-хабом.
type TripSignaler interface {
	SignalBreakerTripped(state *models.CircuitBreakerState)
	SignalBreakerReset(state *models.CircuitBreakerState)
}

// SpreadEstimatorInterface - оценка текущего bid-ask спреда символа в bps
type SpreadEstimatorInterface interface {
	SpreadBps(exchange, symbol string) float64
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ OrderStoreInterface = (*repository.OrderRepository)(nil)
var _ LedgerInterface = (*repository.LedgerRepository)(nil)
var _ BreakerStoreInterface = (*repository.BreakerRepository)(nil)
var _ NotifierInterface = (*repository.NotificationRepository)(nil)

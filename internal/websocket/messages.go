package websocket

import (
	"time"

	"tradeguard/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeBreakerTrip - сработал circuit breaker.
	// Bot-lifecycle менеджер обязан поставить бота на паузу по этому
	// сигналу (at-least-once: состояние дублируется в БД)
	MessageTypeBreakerTrip MessageType = "breakerTrip"

	// MessageTypeBreakerReset - breaker снят оператором
	MessageTypeBreakerReset MessageType = "breakerReset"

	// MessageTypeOrderAdmitted - ордер прошёл все гейты
	MessageTypeOrderAdmitted MessageType = "orderAdmitted"

	// MessageTypeOrderRejected - ордер отклонён гейтом
	MessageTypeOrderRejected MessageType = "orderRejected"

	// MessageTypeFillRecorded - fill записан в леджер
	MessageTypeFillRecorded MessageType = "fillRecorded"

	// MessageTypeNotification - новое уведомление журнала
	MessageTypeNotification MessageType = "notification"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// BreakerEventMessage - трип или сброс circuit breaker'а
type BreakerEventMessage struct {
	BaseMessage
	Data *models.CircuitBreakerState `json:"data"`
}

// OrderEventMessage - допуск или отклонение ордера
type OrderEventMessage struct {
	BaseMessage
	OrderID string                 `json:"order_id,omitempty"`
	BotID   string                 `json:"bot_id"`
	Gate    string                 `json:"gate,omitempty"`   // при отклонении
	Reason  string                 `json:"reason,omitempty"` // при отклонении
	Details map[string]interface{} `json:"details,omitempty"`
}

// FillEventMessage - записанный fill со сверкой ожиданий
type FillEventMessage struct {
	BaseMessage
	OrderID      string  `json:"order_id"`
	FillID       string  `json:"fill_id"`
	Exchange     string  `json:"exchange"`
	Symbol       string  `json:"symbol"`
	SlippageBps  float64 `json:"slippage_bps"`
	ActualFeeBps float64 `json:"actual_fee_bps"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewBreakerTripMessage создает сообщение о срабатывании breaker'а
func NewBreakerTripMessage(state *models.CircuitBreakerState) *BreakerEventMessage {
	return &BreakerEventMessage{
		BaseMessage: BaseMessage{Type: MessageTypeBreakerTrip, Timestamp: time.Now().UTC()},
		Data:        state,
	}
}

// NewBreakerResetMessage создает сообщение о сбросе breaker'а
func NewBreakerResetMessage(state *models.CircuitBreakerState) *BreakerEventMessage {
	return &BreakerEventMessage{
		BaseMessage: BaseMessage{Type: MessageTypeBreakerReset, Timestamp: time.Now().UTC()},
		Data:        state,
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{Type: MessageTypeNotification, Timestamp: time.Now().UTC()},
		Data:        notif,
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"tradeguard/internal/models"
	"tradeguard/internal/pipeline"
	"tradeguard/internal/repository"
	"tradeguard/pkg/utils"
)

// PipelineInterface - операции пайплайна допуска, нужные HTTP слою
type PipelineInterface interface {
	SubmitOrder(ctx context.Context, req *models.OrderRequest) (*pipeline.SubmitResult, error)
	RecordFillExecution(ctx context.Context, orderID string, filledPrice, filledQty, actualFee, realizedPnl float64, feeCurrency, exchangeTradeID string) (*pipeline.FillResult, error)
}

// EventBroadcaster рассылает события пайплайна WebSocket-подписчикам
type EventBroadcaster interface {
	BroadcastOrderAdmitted(orderID, botID string)
	BroadcastOrderRejected(botID, gate, reason string, details map[string]interface{})
	BroadcastFillRecorded(orderID, fillID, exchange, symbol string, slippageBps, actualFeeBps float64)
	BroadcastNotification(notif *models.Notification)
}

// OrderHandler обрабатывает HTTP запросы допуска и исполнения ордеров.
//
// Endpoints:
// - POST /api/v1/orders - прогнать ордер через гейты допуска
// - POST /api/v1/orders/{id}/fill - записать фактическое исполнение
type OrderHandler struct {
	pipeline      PipelineInterface
	notifications NotificationStoreInterface // опционально, для алертов
	hub           EventBroadcaster           // опционально
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимостей.
// notifications и hub могут быть nil - алерты и broadcast тогда отключены.
func NewOrderHandler(p PipelineInterface, notifications NotificationStoreInterface, hub EventBroadcaster) *OrderHandler {
	return &OrderHandler{
		pipeline:      p,
		notifications: notifications,
		hub:           hub,
	}
}

// RecordFillRequest тело запроса записи исполнения
type RecordFillRequest struct {
	FilledPrice     float64 `json:"filled_price"`
	FilledQty       float64 `json:"filled_qty"`
	ActualFee       float64 `json:"actual_fee"`
	RealizedPnl     float64 `json:"realized_pnl,omitempty"` // питает агрегаты circuit breaker'а
	FeeCurrency     string  `json:"fee_currency"`
	ExchangeTradeID string  `json:"exchange_trade_id,omitempty"`
}

// validateOrderRequest проверяет обязательные поля запроса.
// Валидационные ошибки - это 400, до пайплайна запрос не доходит.
func validateOrderRequest(req *models.OrderRequest) error {
	if req.UserID == "" {
		return utils.ErrEmptyUserID
	}
	if req.BotID == "" {
		return utils.ErrEmptyBotID
	}
	if req.Exchange == "" {
		return utils.ErrEmptyExchange
	}
	if err := utils.ValidateSymbol(req.Symbol); err != nil {
		return err
	}
	if err := utils.ValidateSide(req.Side); err != nil {
		return err
	}
	if err := utils.ValidateOrderType(req.OrderType); err != nil {
		return err
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return err
	}
	if req.OrderType == models.OrderTypeLimit && req.Price <= 0 {
		return utils.ErrMissingPrice
	}
	return nil
}

// SubmitOrder прогоняет ордер через пайплайн допуска.
//
// POST /api/v1/orders
//
// Request:
//
//	{
//	  "user_id": "u-1",
//	  "bot_id": "bot-7",
//	  "exchange": "binance",
//	  "symbol": "BTC/USDT",
//	  "side": "buy",
//	  "amount": 0.01,
//	  "order_type": "market",
//	  "price": 50000,
//	  "idempotency_key": "...",      // опционально
//	  "expected_edge_bps": 45.0      // опционально
//	}
//
// Response:
// - 201 Created: ордер допущен, тело содержит order_id и execution_summary
// - 200 OK: повтор по idempotency key, тело повторяет прежний результат
// - 422 Unprocessable Entity: отказ гейта, тело содержит gate/reason/details
// - 400 Bad Request: невалидное тело или поля
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := validateOrderRequest(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.pipeline.SubmitOrder(r.Context(), &req)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to submit order: "+err.Error())
		return
	}

	switch {
	case result.Success && result.Duplicate:
		respondWithJSON(w, http.StatusOK, result)
	case result.Success:
		if h.hub != nil {
			h.hub.BroadcastOrderAdmitted(result.OrderID, req.BotID)
		}
		respondWithJSON(w, http.StatusCreated, result)
	default:
		h.notifyRejection(&req, result)
		respondWithJSON(w, http.StatusUnprocessableEntity, result)
	}
}

// notifyRejection оформляет отказ гейта в уведомление и broadcast.
// Сбои алертинга не влияют на ответ: отказ уже состоялся.
func (h *OrderHandler) notifyRejection(req *models.OrderRequest, result *pipeline.SubmitResult) {
	if h.hub != nil {
		h.hub.BroadcastOrderRejected(req.BotID, result.Gate, result.Reason, result.Details)
	}
	if h.notifications == nil {
		return
	}

	notif := &models.Notification{
		Type:     models.NotificationTypeOrderRejected,
		Severity: models.SeverityWarn,
		BotID:    req.BotID,
		UserID:   req.UserID,
		Message:  result.Reason,
		Meta: map[string]interface{}{
			"gate":     result.Gate,
			"exchange": req.Exchange,
			"symbol":   req.Symbol,
		},
	}
	if err := h.notifications.Create(notif); err != nil {
		utils.Error("create rejection notification",
			utils.BotID(req.BotID), utils.Err(err))
	}
}

// RecordFill записывает фактическое исполнение pending ордера в леджер.
//
// POST /api/v1/orders/{id}/fill
//
// Request:
//
//	{
//	  "filled_price": 50100,
//	  "filled_qty": 0.01,
//	  "actual_fee": 0.5,
//	  "fee_currency": "USDT",
//	  "exchange_trade_id": "T-123"
//	}
//
// Response:
//   - 200 OK: fill записан, тело содержит fill_id и фактические bps
//   - 404 Not Found: ордер не найден
//   - 503 Service Unavailable: леджер недоступен - исполнение НЕ записано,
//     вызывающая сторона обязана повторить
func (h *OrderHandler) RecordFill(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req RecordFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.FilledPrice <= 0 || req.FilledQty <= 0 {
		respondWithError(w, http.StatusBadRequest, "filled_price and filled_qty must be positive")
		return
	}

	result, err := h.pipeline.RecordFillExecution(r.Context(), orderID,
		req.FilledPrice, req.FilledQty, req.ActualFee, req.RealizedPnl, req.FeeCurrency, req.ExchangeTradeID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrOrderNotFound):
			respondWithError(w, http.StatusNotFound, "Order not found: "+orderID)
		case errors.Is(err, repository.ErrLedgerWriteFailed):
			h.notifyLedgerFailure(orderID, err)
			respondWithError(w, http.StatusServiceUnavailable, "Ledger write failed: "+err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to record fill: "+err.Error())
		}
		return
	}

	if h.hub != nil {
		h.hub.BroadcastFillRecorded(orderID, result.FillID,
			result.Exchange, result.Symbol, result.SlippageBps, result.ActualFeeBps)
	}

	respondWithJSON(w, http.StatusOK, result)
}

// notifyLedgerFailure поднимает алерт о несостоявшейся записи в леджер.
// Реальное исполнение без записи - инцидент, оператор должен его видеть.
func (h *OrderHandler) notifyLedgerFailure(orderID string, cause error) {
	if h.notifications == nil {
		return
	}

	notif := &models.Notification{
		Type:     models.NotificationTypeLedgerFail,
		Severity: models.SeverityError,
		Message:  "Ledger append failed for order " + orderID,
		Meta: map[string]interface{}{
			"order_id": orderID,
			"cause":    cause.Error(),
		},
	}
	if err := h.notifications.Create(notif); err != nil {
		utils.Error("create ledger failure notification",
			utils.OrderID(orderID), utils.Err(err))
		return
	}
	if h.hub != nil {
		h.hub.BroadcastNotification(notif)
	}
}

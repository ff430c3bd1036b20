package handlers

import (
	"net/http"

	"tradeguard/internal/models"
)

// LedgerStatsInterface - агрегаты и журнал ошибок леджера для HTTP слоя
type LedgerStatsInterface interface {
	GetStats(botID string) (*models.LedgerStats, error)
	RecordError(botID, userID, source, message string) error
}

// StatsHandler обрабатывает HTTP запросы статистики леджера.
//
// Endpoints:
// - GET /api/v1/ledger/stats?bot_id=bot-7 - агрегаты по боту
//
// Статистика включает:
// - Equity и realized PNL по леджеру (fills - источник истины)
// - Суммарно уплаченные комиссии
// - Текущую и максимальную просадку
// - Дневной PNL в долях от equity на начало дня
// - Длину текущей серии убытков
// - Частоту ошибок за скользящий час
type StatsHandler struct {
	ledger LedgerStatsInterface
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимостей.
func NewStatsHandler(ledger LedgerStatsInterface) *StatsHandler {
	return &StatsHandler{ledger: ledger}
}

// GetLedgerStats возвращает агрегированную статистику леджера по боту.
//
// GET /api/v1/ledger/stats?bot_id=bot-7
//
// Response 200 OK:
//
//	{
//	  "bot_id": "bot-7",
//	  "equity": 10450.20,
//	  "realized_pnl": 450.20,
//	  "fees_paid": 32.10,
//	  "current_drawdown": 0.04,
//	  "max_drawdown": 0.11,
//	  "daily_pnl_percent": 0.008,
//	  "consecutive_losses": 1,
//	  "error_rate_per_hour": 0,
//	  "total_trades": 153,
//	  "today_trades": 6
//	}
func (h *StatsHandler) GetLedgerStats(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("bot_id")
	if botID == "" {
		respondWithError(w, http.StatusBadRequest, "bot_id query parameter is required")
		return
	}

	stats, err := h.ledger.GetStats(botID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get ledger stats: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// ReportErrorRequest тело запроса регистрации ошибки бота
type ReportErrorRequest struct {
	BotID   string `json:"bot_id"`
	UserID  string `json:"user_id,omitempty"`
	Source  string `json:"source,omitempty"` // exchange_api, websocket, bot
	Message string `json:"message"`
}

// ReportError регистрирует ошибку исполнения от бота или коннектора.
//
// POST /api/v1/errors
//
// События попадают в журнал ошибок и учитываются circuit breaker'ом:
// при частоте выше порога за скользящий час бот блокируется.
//
// Response 201 Created: {"message": "error recorded"}
func (h *StatsHandler) ReportError(w http.ResponseWriter, r *http.Request) {
	var req ReportErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.BotID == "" || req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "bot_id and message are required")
		return
	}
	if req.Source == "" {
		req.Source = "bot"
	}

	if err := h.ledger.RecordError(req.BotID, req.UserID, req.Source, req.Message); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to record error: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, SuccessResponse{Message: "error recorded"})
}

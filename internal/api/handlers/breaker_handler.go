package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"tradeguard/internal/models"
	"tradeguard/internal/repository"
)

// BreakerControllerInterface - операции circuit breaker'а для HTTP слоя
type BreakerControllerInterface interface {
	GetStatus(botID string) (*models.CircuitBreakerState, error)
	ListTripped() ([]*models.CircuitBreakerState, error)
	Trip(ctx context.Context, botID, userID, reason, triggerType string) (*models.CircuitBreakerState, error)
	Reset(botID string) (*models.CircuitBreakerState, error)
}

// BreakerHandler обрабатывает HTTP запросы управления circuit breaker'ами.
//
// Endpoints:
// - GET /api/v1/breakers - список взведённых breaker'ов
// - GET /api/v1/breakers/{bot_id} - состояние breaker'а бота
// - POST /api/v1/breakers/{bot_id}/trip - взвести вручную
// - POST /api/v1/breakers/{bot_id}/reset - снять (единственный путь из tripped)
type BreakerHandler struct {
	breaker BreakerControllerInterface
}

// NewBreakerHandler создает новый BreakerHandler с внедрением зависимостей.
func NewBreakerHandler(breaker BreakerControllerInterface) *BreakerHandler {
	return &BreakerHandler{breaker: breaker}
}

// ListBreakersResponse ответ списка взведённых breaker'ов
type ListBreakersResponse struct {
	Breakers []*models.CircuitBreakerState `json:"breakers"`
	Total    int                           `json:"total"`
}

// TripBreakerRequest тело ручного взведения
type TripBreakerRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// ListTripped возвращает все взведённые breaker'ы.
//
// GET /api/v1/breakers
func (h *BreakerHandler) ListTripped(w http.ResponseWriter, r *http.Request) {
	states, err := h.breaker.ListTripped()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list breakers: "+err.Error())
		return
	}
	if states == nil {
		states = []*models.CircuitBreakerState{}
	}

	respondWithJSON(w, http.StatusOK, ListBreakersResponse{
		Breakers: states,
		Total:    len(states),
	})
}

// GetBreaker возвращает состояние breaker'а конкретного бота.
// Бот без записи отдаётся как чистый (tripped=false), не 404.
//
// GET /api/v1/breakers/{bot_id}
func (h *BreakerHandler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	botID := mux.Vars(r)["bot_id"]

	state, err := h.breaker.GetStatus(botID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get breaker state: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

// TripBreaker взводит breaker вручную (trigger_type=manual).
//
// POST /api/v1/breakers/{bot_id}/trip
//
// Request: {"user_id": "u-1", "reason": "suspicious fills"}
//
// Идемпотентно: повторное взведение обновляет причину, не ошибается.
func (h *BreakerHandler) TripBreaker(w http.ResponseWriter, r *http.Request) {
	botID := mux.Vars(r)["bot_id"]

	var req TripBreakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		respondWithError(w, http.StatusBadRequest, "reason is required")
		return
	}

	state, err := h.breaker.Trip(r.Context(), botID, req.UserID, req.Reason, models.TriggerManual)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to trip breaker: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

// ResetBreaker снимает breaker. Это единственный путь из tripped:
// автоматического снятия по времени или метрикам нет.
//
// POST /api/v1/breakers/{bot_id}/reset
//
// Response 404: у бота нет записи breaker'а (нечего снимать)
func (h *BreakerHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	botID := mux.Vars(r)["bot_id"]

	state, err := h.breaker.Reset(botID)
	if err != nil {
		if errors.Is(err, repository.ErrBreakerStateNotFound) {
			respondWithError(w, http.StatusNotFound, "No breaker state for bot: "+botID)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to reset breaker: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

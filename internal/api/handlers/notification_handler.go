package handlers

import (
	"net/http"
	"strconv"
	"time"

	"tradeguard/internal/models"
)

// NotificationStoreInterface - операции журнала уведомлений для HTTP слоя
type NotificationStoreInterface interface {
	Create(notif *models.Notification) error
	GetRecent(limit int) ([]*models.Notification, error)
	Count() (int, error)
	DeleteOlderThan(olderThan time.Time) (int64, error)
}

// defaultNotificationLimit - лимит выдачи по умолчанию
const defaultNotificationLimit = 50

// NotificationHandler обрабатывает HTTP запросы журнала уведомлений.
//
// Endpoints:
// - GET /api/v1/notifications?limit=50 - последние уведомления
// - DELETE /api/v1/notifications?older_than_hours=24 - очистка журнала
//
// Журнал хранит срабатывания breaker'ов, отказы леджера и отклонения
// ордеров - всё, что оператор должен увидеть без чтения логов.
type NotificationHandler struct {
	store NotificationStoreInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимостей.
func NewNotificationHandler(store NotificationStoreInterface) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// GetNotificationsResponse ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// PurgeNotificationsResponse ответ очистки журнала
type PurgeNotificationsResponse struct {
	Deleted int64 `json:"deleted"`
}

// GetNotifications возвращает последние уведомления, новые первыми.
//
// GET /api/v1/notifications?limit=50
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	notifications, err := h.store.GetRecent(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get notifications: "+err.Error())
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}

// PurgeNotifications удаляет уведомления старше указанного горизонта.
//
// DELETE /api/v1/notifications?older_than_hours=24
//
// Без параметра очищается весь журнал.
func (h *NotificationHandler) PurgeNotifications(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().UTC()
	if raw := r.URL.Query().Get("older_than_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			respondWithError(w, http.StatusBadRequest, "older_than_hours must be a non-negative integer")
			return
		}
		cutoff = cutoff.Add(-time.Duration(hours) * time.Hour)
	}

	deleted, err := h.store.DeleteOlderThan(cutoff)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to purge notifications: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, PurgeNotificationsResponse{Deleted: deleted})
}

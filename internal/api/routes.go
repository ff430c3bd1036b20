package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradeguard/internal/api/handlers"
	"tradeguard/internal/api/middleware"
	"tradeguard/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers.
// Nil-поле отключает соответствующую группу маршрутов.
type Dependencies struct {
	Pipeline      handlers.PipelineInterface
	Breaker       handlers.BreakerControllerInterface
	Ledger        handlers.LedgerStatsInterface
	Notifications handlers.NotificationStoreInterface
	Hub           *websocket.Hub

	// APITokenHash - bcrypt-хеш API токена; пустой = auth отключен
	APITokenHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/  (bearer-token auth)
//
//	├── /orders/
//	│   ├── POST / - прогнать ордер через гейты допуска
//	│   └── POST /{id}/fill - записать фактическое исполнение
//	├── /breakers/
//	│   ├── GET / - список взведённых breaker'ов
//	│   ├── GET /{bot_id} - состояние breaker'а бота
//	│   ├── POST /{bot_id}/trip - взвести вручную
//	│   └── POST /{bot_id}/reset - снять
//	├── /ledger/
//	│   └── GET /stats - агрегаты леджера по боту
//	├── /errors
//	│   └── POST / - ошибка бота в журнал (питает error-storm условие)
//	└── /notifications/
//	    ├── GET / - журнал уведомлений
//	    └── DELETE / - очистка журнала
//
// /ws/events - WebSocket для real-time событий пайплайна
// /metrics   - Prometheus метрики
// /health    - health check
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var broadcaster handlers.EventBroadcaster
	if deps != nil && deps.Hub != nil {
		broadcaster = deps.Hub
	}

	var orderHandler *handlers.OrderHandler
	if deps != nil && deps.Pipeline != nil {
		orderHandler = handlers.NewOrderHandler(deps.Pipeline, deps.Notifications, broadcaster)
	}

	var breakerHandler *handlers.BreakerHandler
	if deps != nil && deps.Breaker != nil {
		breakerHandler = handlers.NewBreakerHandler(deps.Breaker)
	}

	var statsHandler *handlers.StatsHandler
	if deps != nil && deps.Ledger != nil {
		statsHandler = handlers.NewStatsHandler(deps.Ledger)
	}

	var notificationHandler *handlers.NotificationHandler
	if deps != nil && deps.Notifications != nil {
		notificationHandler = handlers.NewNotificationHandler(deps.Notifications)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	if deps != nil {
		api.Use(middleware.Auth(deps.APITokenHash))
	}

	// Order admission routes
	if orderHandler != nil {
		api.HandleFunc("/orders", orderHandler.SubmitOrder).Methods("POST")
		api.HandleFunc("/orders/{id}/fill", orderHandler.RecordFill).Methods("POST")
	}

	// Circuit breaker routes
	if breakerHandler != nil {
		api.HandleFunc("/breakers", breakerHandler.ListTripped).Methods("GET")
		api.HandleFunc("/breakers/{bot_id}", breakerHandler.GetBreaker).Methods("GET")
		api.HandleFunc("/breakers/{bot_id}/trip", breakerHandler.TripBreaker).Methods("POST")
		api.HandleFunc("/breakers/{bot_id}/reset", breakerHandler.ResetBreaker).Methods("POST")
	}

	// Ledger stats routes
	if statsHandler != nil {
		api.HandleFunc("/ledger/stats", statsHandler.GetLedgerStats).Methods("GET")
		api.HandleFunc("/errors", statsHandler.ReportError).Methods("POST")
	}

	// Notification routes
	if notificationHandler != nil {
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications", notificationHandler.PurgeNotifications).Methods("DELETE")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return router
}

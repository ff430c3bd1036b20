package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"tradeguard/internal/api"
	"tradeguard/internal/config"
	"tradeguard/internal/pipeline"
	"tradeguard/internal/repository"
	"tradeguard/internal/websocket"
	"tradeguard/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer log.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	log.Info("connected to database",
		utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	orderRepo := repository.NewOrderRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db, 0)
	breakerRepo := repository.NewBreakerRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// WebSocket hub: real-time события пайплайна для дашбордов
	hub := websocket.NewHub()
	go hub.Run()

	// Сборка пайплайна допуска. Hub выступает сигнализатором
	// срабатываний breaker'а: подписчики видят trip/reset сразу.
	spreads := pipeline.NewStaticSpreadEstimator(0)
	feeGate := pipeline.NewFeeCoverageGate(spreads)
	limiterGate := pipeline.NewTradeLimiterGate(ledgerRepo)
	breaker := pipeline.NewCircuitBreaker(breakerRepo, ledgerRepo, notificationRepo, hub, log)
	pipe := pipeline.NewOrderPipeline(orderRepo, ledgerRepo, feeGate, limiterGate, breaker, cfg.Pipeline, log)

	// Janitor просроченных pending ордеров
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go runExpiryJanitor(janitorCtx, orderRepo, cfg.Pipeline.PendingOrderTTL, log)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		Pipeline:      pipe,
		Breaker:       breaker,
		Ledger:        ledgerRepo,
		Notifications: notificationRepo,
		Hub:           hub,
		APITokenHash:  cfg.Security.APITokenHash,
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Info("starting server", utils.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatal("server failed", utils.Err(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("server failed", utils.Err(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopJanitor()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", utils.Err(err))
	}

	log.Info("server exited")
}

// runExpiryJanitor периодически переводит протухшие pending ордера в
// expired. Период - половина TTL: ордер живёт не дольше полутора TTL.
func runExpiryJanitor(ctx context.Context, orders *repository.OrderRepository, ttl time.Duration, log *utils.Logger) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := orders.ExpireStale(time.Now().UTC().Add(-ttl))
			if err != nil {
				log.Error("expire stale orders", utils.Err(err))
				continue
			}
			if expired > 0 {
				log.Info("expired stale orders", utils.Int64("count", expired))
			}
		}
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

//go:build integration

// Package integration contains integration tests for the order admission
// pipeline.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle through the gates
// - WebSocket tests: connection, pipeline event broadcasts
// - Database tests: repositories against a real Postgres
//
// Integration tests use build tag "integration" to separate from unit tests.
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"tradeguard/internal/api"
	"tradeguard/internal/config"
	"tradeguard/internal/pipeline"
	"tradeguard/internal/repository"
	"tradeguard/internal/websocket"
	"tradeguard/pkg/utils"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB       *sql.DB
	Router   *mux.Router
	Server   *httptest.Server
	Hub      *websocket.Hub
	Repos    *TestRepositories
	Pipeline *pipeline.OrderPipeline
	Breaker  *pipeline.CircuitBreaker
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Order        *repository.OrderRepository
	Ledger       *repository.LedgerRepository
	Breaker      *repository.BreakerRepository
	Notification *repository.NotificationRepository
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "tradeguard_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// testPipelineConfig returns gate limits loose enough for functional
// tests; individual tests tighten them through dedicated pipelines.
func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Limits: config.GateLimits{
			MaxTradesPerBotDaily:  1000,
			MaxTradesPerUserDaily: 5000,
			BurstLimitOrders:      100,
			BurstWindow:           10 * time.Second,
			MinEdgeBps:            10.0,
			SafetyMarginBps:       5.0,
			SlippageBufferBps:     10.0,
			MaxDrawdownPercent:    0.20,
			MaxDailyLossPercent:   0.10,
			MaxConsecutiveLosses:  5,
			MaxErrorsPerHour:      10.0,
		},
		LedgerTimeout:   5 * time.Second,
		PendingOrderTTL: 15 * time.Minute,
	}
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open(cfg.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	hub := websocket.NewHub()
	go hub.Run()

	repos := &TestRepositories{
		Order:        repository.NewOrderRepository(db),
		Ledger:       repository.NewLedgerRepository(db, 0),
		Breaker:      repository.NewBreakerRepository(db),
		Notification: repository.NewNotificationRepository(db),
	}

	logger := utils.InitLogger(utils.LogConfig{Level: "error", Format: "text"})

	spreads := pipeline.NewStaticSpreadEstimator(0)
	feeGate := pipeline.NewFeeCoverageGate(spreads)
	limiterGate := pipeline.NewTradeLimiterGate(repos.Ledger)
	breaker := pipeline.NewCircuitBreaker(repos.Breaker, repos.Ledger, repos.Notification, hub, logger)
	pipe := pipeline.NewOrderPipeline(repos.Order, repos.Ledger, feeGate, limiterGate, breaker,
		testPipelineConfig(), logger)

	deps := &api.Dependencies{
		Pipeline:      pipe,
		Breaker:       breaker,
		Ledger:        repos.Ledger,
		Notifications: repos.Notification,
		Hub:           hub,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   router,
		Server:   server,
		Hub:      hub,
		Repos:    repos,
		Pipeline: pipe,
		Breaker:  breaker,
		Cleanup:  cleanup,
	}
}

// initTestTables creates or truncates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS pending_orders (
			order_id VARCHAR(64) PRIMARY KEY,
			idempotency_key VARCHAR(128) UNIQUE NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			bot_id VARCHAR(64) NOT NULL,
			exchange VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			amount DECIMAL(20, 8) NOT NULL,
			order_type VARCHAR(20) NOT NULL,
			price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			state VARCHAR(20) NOT NULL DEFAULT 'pending',
			execution_summary JSONB NOT NULL DEFAULT '{}',
			gates_passed JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			filled_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fills (
			fill_id VARCHAR(64) PRIMARY KEY,
			exchange_trade_id VARCHAR(128) DEFAULT '',
			order_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			bot_id VARCHAR(64) NOT NULL,
			exchange VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			filled_price DECIMAL(20, 8) NOT NULL,
			filled_qty DECIMAL(20, 8) NOT NULL,
			actual_fee DECIMAL(20, 8) NOT NULL DEFAULT 0,
			fee_currency VARCHAR(10) NOT NULL DEFAULT '',
			pnl DECIMAL(20, 2) NOT NULL DEFAULT 0,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS circuit_breaker_states (
			bot_id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL DEFAULT '',
			tripped BOOLEAN NOT NULL DEFAULT false,
			reason TEXT NOT NULL DEFAULT '',
			trigger_type VARCHAR(30) NOT NULL DEFAULT '',
			tripped_at TIMESTAMP,
			cleared_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS error_events (
			id SERIAL PRIMARY KEY,
			bot_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL DEFAULT '',
			source VARCHAR(50) NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(10) NOT NULL DEFAULT 'info',
			bot_id VARCHAR(64) NOT NULL DEFAULT '',
			user_id VARCHAR(64) NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			meta JSONB DEFAULT '{}'
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"fills",
		"pending_orders",
		"circuit_breaker_states",
		"error_events",
		"notifications",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}

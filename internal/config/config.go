package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// bcrypt-хеш API токена для мутирующих endpoints.
	// Пустое значение = auth отключён (только для development)
	APITokenHash string
}

// PipelineConfig - настройки пайплайна допуска ордеров
type PipelineConfig struct {
	// Глобальные лимиты (переопределяются per-exchange через ExchangeOverrides)
	Limits GateLimits

	// Переопределения лимитов по биржам.
	// Отсутствующий ключ биржи или отсутствующее поле = глобальное значение.
	ExchangeOverrides map[string]LimitOverride

	// Таймаут записи fill в леджер
	LedgerTimeout time.Duration

	// Время жизни pending ордера до принудительного перевода в expired
	PendingOrderTTL time.Duration
}

// GateLimits - числовые пороги всех четырёх гейтов
type GateLimits struct {
	// Trade limiter
	MaxTradesPerBotDaily  int
	MaxTradesPerUserDaily int
	BurstLimitOrders      int
	BurstWindow           time.Duration

	// Fee coverage (модель стоимости)
	MinEdgeBps        float64
	SafetyMarginBps   float64
	SlippageBufferBps float64

	// Circuit breaker
	MaxDrawdownPercent   float64 // доля, 0.20 = 20%
	MaxDailyLossPercent  float64 // доля, 0.10 = 10%
	MaxConsecutiveLosses int
	MaxErrorsPerHour     float64
}

// LimitOverride - частичное переопределение лимитов для конкретной биржи.
// Поля-указатели: nil означает "использовать глобальное значение".
type LimitOverride struct {
	MaxTradesPerBotDaily  *int     `json:"max_trades_per_bot_daily,omitempty"`
	MaxTradesPerUserDaily *int     `json:"max_trades_per_user_daily,omitempty"`
	BurstLimitOrders      *int     `json:"burst_limit_orders_per_exchange,omitempty"`
	BurstWindowSeconds    *int     `json:"burst_limit_window_seconds,omitempty"`
	MinEdgeBps            *float64 `json:"min_edge_bps,omitempty"`
	SafetyMarginBps       *float64 `json:"safety_margin_bps,omitempty"`
	SlippageBufferBps     *float64 `json:"slippage_buffer_bps,omitempty"`
	MaxDrawdownPercent    *float64 `json:"max_drawdown_percent,omitempty"`
	MaxDailyLossPercent   *float64 `json:"max_daily_loss_percent,omitempty"`
	MaxConsecutiveLosses  *int     `json:"max_consecutive_losses,omitempty"`
	MaxErrorsPerHour      *float64 `json:"max_errors_per_hour,omitempty"`
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradeguard"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APITokenHash: getEnv("API_TOKEN_HASH", ""),
		},
		Pipeline: PipelineConfig{
			Limits: GateLimits{
				MaxTradesPerBotDaily:  getEnvAsInt("MAX_TRADES_PER_BOT_DAILY", 50),
				MaxTradesPerUserDaily: getEnvAsInt("MAX_TRADES_PER_USER_DAILY", 500),
				BurstLimitOrders:      getEnvAsInt("BURST_LIMIT_ORDERS_PER_EXCHANGE", 10),
				BurstWindow:           time.Duration(getEnvAsInt("BURST_LIMIT_WINDOW_SECONDS", 10)) * time.Second,

				MinEdgeBps:        getEnvAsFloat("MIN_EDGE_BPS", 10.0),
				SafetyMarginBps:   getEnvAsFloat("SAFETY_MARGIN_BPS", 5.0),
				SlippageBufferBps: getEnvAsFloat("SLIPPAGE_BUFFER_BPS", 10.0),

				MaxDrawdownPercent:   getEnvAsFloat("MAX_DRAWDOWN_PERCENT", 0.20),
				MaxDailyLossPercent:  getEnvAsFloat("MAX_DAILY_LOSS_PERCENT", 0.10),
				MaxConsecutiveLosses: getEnvAsInt("MAX_CONSECUTIVE_LOSSES", 5),
				MaxErrorsPerHour:     getEnvAsFloat("MAX_ERRORS_PER_HOUR", 10.0),
			},
			LedgerTimeout:   getEnvAsDuration("LEDGER_TIMEOUT", 5*time.Second),
			PendingOrderTTL: getEnvAsDuration("PENDING_ORDER_TTL", 15*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// EXCHANGE_OVERRIDES - JSON вида {"luno": {"burst_limit_orders_per_exchange": 5}}
	overrides, err := parseExchangeOverrides(getEnv("EXCHANGE_OVERRIDES", ""))
	if err != nil {
		return nil, err
	}
	cfg.Pipeline.ExchangeOverrides = overrides

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseExchangeOverrides разбирает JSON с переопределениями лимитов по биржам
func parseExchangeOverrides(raw string) (map[string]LimitOverride, error) {
	if raw == "" {
		return map[string]LimitOverride{}, nil
	}

	overrides := make(map[string]LimitOverride)
	if err := json.UnmarshalFromString(raw, &overrides); err != nil {
		return nil, fmt.Errorf("EXCHANGE_OVERRIDES is not valid JSON: %w", err)
	}
	return overrides, nil
}

// ForExchange возвращает эффективные лимиты для биржи.
//
// Слоистый lookup: сначала глобальные значения, затем поверх них
// накладываются поля из ExchangeOverrides[exchange], если они заданы.
// Неизвестная биржа получает глобальные лимиты без изменений.
func (p PipelineConfig) ForExchange(exchange string) GateLimits {
	limits := p.Limits

	ov, ok := p.ExchangeOverrides[exchange]
	if !ok {
		return limits
	}

	if ov.MaxTradesPerBotDaily != nil {
		limits.MaxTradesPerBotDaily = *ov.MaxTradesPerBotDaily
	}
	if ov.MaxTradesPerUserDaily != nil {
		limits.MaxTradesPerUserDaily = *ov.MaxTradesPerUserDaily
	}
	if ov.BurstLimitOrders != nil {
		limits.BurstLimitOrders = *ov.BurstLimitOrders
	}
	if ov.BurstWindowSeconds != nil {
		limits.BurstWindow = time.Duration(*ov.BurstWindowSeconds) * time.Second
	}
	if ov.MinEdgeBps != nil {
		limits.MinEdgeBps = *ov.MinEdgeBps
	}
	if ov.SafetyMarginBps != nil {
		limits.SafetyMarginBps = *ov.SafetyMarginBps
	}
	if ov.SlippageBufferBps != nil {
		limits.SlippageBufferBps = *ov.SlippageBufferBps
	}
	if ov.MaxDrawdownPercent != nil {
		limits.MaxDrawdownPercent = *ov.MaxDrawdownPercent
	}
	if ov.MaxDailyLossPercent != nil {
		limits.MaxDailyLossPercent = *ov.MaxDailyLossPercent
	}
	if ov.MaxConsecutiveLosses != nil {
		limits.MaxConsecutiveLosses = *ov.MaxConsecutiveLosses
	}
	if ov.MaxErrorsPerHour != nil {
		limits.MaxErrorsPerHour = *ov.MaxErrorsPerHour
	}

	return limits
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	l := c.Pipeline.Limits

	if l.MaxTradesPerBotDaily < 1 {
		return fmt.Errorf("MAX_TRADES_PER_BOT_DAILY must be at least 1, got %d", l.MaxTradesPerBotDaily)
	}

	if l.MaxTradesPerUserDaily < 1 {
		return fmt.Errorf("MAX_TRADES_PER_USER_DAILY must be at least 1, got %d", l.MaxTradesPerUserDaily)
	}

	if l.BurstLimitOrders < 1 {
		return fmt.Errorf("BURST_LIMIT_ORDERS_PER_EXCHANGE must be at least 1, got %d", l.BurstLimitOrders)
	}

	if l.BurstWindow <= 0 {
		return fmt.Errorf("BURST_LIMIT_WINDOW_SECONDS must be positive, got %v", l.BurstWindow)
	}

	if l.MinEdgeBps < 0 || l.SafetyMarginBps < 0 || l.SlippageBufferBps < 0 {
		return fmt.Errorf("cost model bps values cannot be negative")
	}

	// Доли, не проценты: 0.20 = 20%
	if l.MaxDrawdownPercent <= 0 || l.MaxDrawdownPercent > 1 {
		return fmt.Errorf("MAX_DRAWDOWN_PERCENT must be in (0, 1], got %v", l.MaxDrawdownPercent)
	}

	if l.MaxDailyLossPercent <= 0 || l.MaxDailyLossPercent > 1 {
		return fmt.Errorf("MAX_DAILY_LOSS_PERCENT must be in (0, 1], got %v", l.MaxDailyLossPercent)
	}

	if l.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_LOSSES must be at least 1, got %d", l.MaxConsecutiveLosses)
	}

	if l.MaxErrorsPerHour <= 0 {
		return fmt.Errorf("MAX_ERRORS_PER_HOUR must be positive, got %v", l.MaxErrorsPerHour)
	}

	if c.Pipeline.LedgerTimeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive, got %v", c.Pipeline.LedgerTimeout)
	}

	if c.Pipeline.PendingOrderTTL <= 0 {
		return fmt.Errorf("PENDING_ORDER_TTL must be positive, got %v", c.Pipeline.PendingOrderTTL)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

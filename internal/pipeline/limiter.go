package pipeline

import (
	"fmt"
	"time"

	"tradeguard/internal/config"
	"tradeguard/internal/models"
	"tradeguard/pkg/ratelimit"
	"tradeguard/pkg/utils"
)

// ============================================================
// Гейт C: ограничитель темпа торговли (trade limiter)
// ============================================================

// TradeLimiterGate enforce'ит три независимых потолка, в фиксированном
// порядке, первый отказ выигрывает:
//
//  1. Дневной лимит бота - счётчик из леджера за текущий день UTC.
//  2. Дневной лимит пользователя - то же по user_id.
//  3. Burst-лимит - скользящее окно по ключу exchange:user_id.
//
// Дневные счётчики читаются из durable леджера (консистентны между
// перезапусками и инстансами), burst-состояние живёт в памяти процесса:
// оно ограничивает только короткую очередь и его потеря при рестарте
// безопасна.
type TradeLimiterGate struct {
	ledger LedgerInterface
	burst  *ratelimit.SlidingWindow
}

// NewTradeLimiterGate создает гейт лимитов торговли
func NewTradeLimiterGate(ledger LedgerInterface) *TradeLimiterGate {
	return &TradeLimiterGate{
		ledger: ledger,
		burst:  ratelimit.NewSlidingWindow(),
	}
}

// burstKey возвращает ключ burst-счётчика для запроса
func burstKey(exchange, userID string) string {
	return exchange + ":" + userID
}

// Evaluate проверяет все три лимита для запроса.
//
// Отказ по burst не расходует слот окна (timestamp не добавляется),
// но подрезание устаревших записей происходит и на отказе - состояние
// окна не растёт бесконечно.
func (g *TradeLimiterGate) Evaluate(req *models.OrderRequest, limits config.GateLimits) (models.GateResult, error) {
	dayStart := utils.GetDayStart()

	botCount, err := g.ledger.GetTradeCountForBot(req.BotID, dayStart)
	if err != nil {
		return models.GateResult{}, fmt.Errorf("trade limiter: bot daily count: %w", err)
	}
	if botCount >= limits.MaxTradesPerBotDaily {
		return models.FailGate(
			models.GateTradeLimiter,
			fmt.Sprintf("Bot daily limit: %d/%d", botCount, limits.MaxTradesPerBotDaily),
			map[string]interface{}{
				"check":     "bot_daily",
				"bot_id":    req.BotID,
				"count":     botCount,
				"limit":     limits.MaxTradesPerBotDaily,
				"day_start": dayStart,
			},
		), nil
	}

	userCount, err := g.ledger.GetTradeCountForUser(req.UserID, dayStart)
	if err != nil {
		return models.GateResult{}, fmt.Errorf("trade limiter: user daily count: %w", err)
	}
	if userCount >= limits.MaxTradesPerUserDaily {
		return models.FailGate(
			models.GateTradeLimiter,
			fmt.Sprintf("User daily limit: %d/%d", userCount, limits.MaxTradesPerUserDaily),
			map[string]interface{}{
				"check":     "user_daily",
				"user_id":   req.UserID,
				"count":     userCount,
				"limit":     limits.MaxTradesPerUserDaily,
				"day_start": dayStart,
			},
		), nil
	}

	key := burstKey(req.Exchange, req.UserID)
	burstCount, ok := g.burst.Allow(key, limits.BurstLimitOrders, limits.BurstWindow)
	if !ok {
		return models.FailGate(
			models.GateTradeLimiter,
			fmt.Sprintf("Burst limit: %d/%d", burstCount, limits.BurstLimitOrders),
			map[string]interface{}{
				"check":          "burst",
				"key":            key,
				"count":          burstCount,
				"limit":          limits.BurstLimitOrders,
				"window_seconds": limits.BurstWindow.Seconds(),
			},
		), nil
	}

	return models.PassGate(models.GateTradeLimiter, map[string]interface{}{
		"bot_daily":  fmt.Sprintf("%d/%d", botCount, limits.MaxTradesPerBotDaily),
		"user_daily": fmt.Sprintf("%d/%d", userCount, limits.MaxTradesPerUserDaily),
		"burst":      fmt.Sprintf("%d/%d", burstCount+1, limits.BurstLimitOrders),
	}), nil
}

// BurstCount возвращает текущую длину окна ключа (для диагностики)
func (g *TradeLimiterGate) BurstCount(exchange, userID string, window time.Duration) int {
	return g.burst.Count(burstKey(exchange, userID), window)
}

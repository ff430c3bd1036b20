package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tradeguard/internal/models"
	"tradeguard/pkg/utils"
)

// Ошибки леджера
var (
	// ErrLedgerWriteFailed - fill не записался надёжно. Фатально для
	// вызова записи исполнения: реальное исполнение без записи в
	// леджере - инцидент финансовой целостности, не подлежит
	// молчаливому повтору.
	ErrLedgerWriteFailed = errors.New("ledger write failed")
)

// LedgerRepository - работа с append-only таблицами fills и error_events
//
// Схема:
//
//	CREATE TABLE fills (
//	    fill_id           TEXT PRIMARY KEY,
//	    exchange_trade_id TEXT NOT NULL DEFAULT '',
//	    order_id          TEXT NOT NULL,
//	    user_id           TEXT NOT NULL,
//	    bot_id            TEXT NOT NULL,
//	    exchange          TEXT NOT NULL,
//	    symbol            TEXT NOT NULL,
//	    side              TEXT NOT NULL,
//	    filled_price      DOUBLE PRECISION NOT NULL,
//	    filled_qty        DOUBLE PRECISION NOT NULL,
//	    actual_fee        DOUBLE PRECISION NOT NULL,
//	    fee_currency      TEXT NOT NULL,
//	    pnl               DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    metadata          JSONB NOT NULL,
//	    created_at        TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE error_events (
//	    id         SERIAL PRIMARY KEY,
//	    bot_id     TEXT NOT NULL,
//	    user_id    TEXT NOT NULL DEFAULT '',
//	    source     TEXT NOT NULL,
//	    message    TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//
// Fills только добавляются: UPDATE и DELETE по этой таблице не
// выполняются никогда. Все финансовые метрики считаются из неё.
type LedgerRepository struct {
	db *sql.DB

	// Базовый equity счёта до первого fill'а. Леджер хранит только
	// дельты (pnl), поэтому точка отсчёта приходит из конфигурации.
	startingEquity float64
}

// NewLedgerRepository создает новый экземпляр репозитория
func NewLedgerRepository(db *sql.DB, startingEquity float64) *LedgerRepository {
	if startingEquity <= 0 {
		startingEquity = 10000
	}
	return &LedgerRepository{db: db, startingEquity: startingEquity}
}

// AppendFill атомарно добавляет fill в леджер.
//
// Возврат без ошибки гарантирует durability записи: вызывающая
// сторона может отчитаться об успехе только после этого.
func (r *LedgerRepository) AppendFill(ctx context.Context, fill *models.Fill) error {
	metadataJSON, err := json.Marshal(fill.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	query := `
		INSERT INTO fills (fill_id, exchange_trade_id, order_id, user_id, bot_id, exchange, symbol, side, filled_price, filled_qty, actual_fee, fee_currency, pnl, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	fill.CreatedAt = time.Now().UTC()

	_, err = r.db.ExecContext(
		ctx,
		query,
		fill.FillID,
		fill.ExchangeTradeID,
		fill.OrderID,
		fill.UserID,
		fill.BotID,
		fill.Exchange,
		fill.Symbol,
		fill.Side,
		fill.FilledPrice,
		fill.FilledQty,
		fill.ActualFee,
		fill.FeeCurrency,
		fill.Pnl,
		string(metadataJSON),
		fill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	return nil
}

// GetTradeCountForBot возвращает количество fills бота с момента since
func (r *LedgerRepository) GetTradeCountForBot(botID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM fills WHERE bot_id = $1 AND created_at >= $2`,
		botID, since,
	).Scan(&count)
	return count, err
}

// GetTradeCountForUser возвращает количество fills пользователя с момента since
func (r *LedgerRepository) GetTradeCountForUser(userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM fills WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	return count, err
}

// pnlSeries возвращает pnl всех fills бота в хронологическом порядке
func (r *LedgerRepository) pnlSeries(botID string) ([]float64, error) {
	rows, err := r.db.Query(
		`SELECT pnl FROM fills WHERE bot_id = $1 ORDER BY created_at ASC`,
		botID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []float64
	for rows.Next() {
		var pnl float64
		if err := rows.Scan(&pnl); err != nil {
			return nil, err
		}
		series = append(series, pnl)
	}
	return series, rows.Err()
}

// ComputeDrawdown возвращает текущую и максимальную просадку бота
// как долю от пикового equity (0.22 = 22%).
//
// Просадка считается по кумулятивной кривой equity, восстановленной
// из pnl-дельт леджера.
func (r *LedgerRepository) ComputeDrawdown(botID string) (current, max float64, err error) {
	series, err := r.pnlSeries(botID)
	if err != nil {
		return 0, 0, err
	}

	equity := r.startingEquity
	peak := equity

	for _, pnl := range series {
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > max {
				max = dd
			}
		}
	}

	if peak > 0 {
		current = (peak - equity) / peak
	}

	return current, max, nil
}

// ComputeDailyPnl возвращает PnL за текущий день UTC как долю
// equity на начало дня (-0.12 = потеря 12% за день)
func (r *LedgerRepository) ComputeDailyPnl(botID string) (float64, error) {
	dayStart := utils.GetDayStart()

	var beforeToday, today float64
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN created_at < $2 THEN pnl ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN created_at >= $2 THEN pnl ELSE 0 END), 0)
		 FROM fills WHERE bot_id = $1`,
		botID, dayStart,
	).Scan(&beforeToday, &today)
	if err != nil {
		return 0, err
	}

	dayStartEquity := r.startingEquity + beforeToday
	if dayStartEquity <= 0 {
		return 0, nil
	}

	return today / dayStartEquity, nil
}

// GetConsecutiveLosses возвращает длину текущей серии убыточных fills.
//
// Серия считается от самого свежего fill'а назад: pnl < 0 продолжает
// серию, pnl > 0 обрывает. Нулевой pnl (открывающая нога) нейтрален -
// пропускается, не обрывая серию.
func (r *LedgerRepository) GetConsecutiveLosses(botID string) (int, error) {
	rows, err := r.db.Query(
		`SELECT pnl FROM fills WHERE bot_id = $1 ORDER BY created_at DESC LIMIT 100`,
		botID,
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	losses := 0
	for rows.Next() {
		var pnl float64
		if err := rows.Scan(&pnl); err != nil {
			return 0, err
		}
		if pnl < 0 {
			losses++
			continue
		}
		if pnl > 0 {
			break
		}
	}

	return losses, rows.Err()
}

// GetErrorRate возвращает количество ошибок бота за скользящий час
func (r *LedgerRepository) GetErrorRate(botID string) (float64, error) {
	cutoff := utils.TrailingHour(time.Now().UTC())

	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM error_events WHERE bot_id = $1 AND created_at >= $2`,
		botID, cutoff,
	).Scan(&count)
	return float64(count), err
}

// RecordError добавляет запись об ошибке бота
func (r *LedgerRepository) RecordError(botID, userID, source, message string) error {
	_, err := r.db.Exec(
		`INSERT INTO error_events (bot_id, user_id, source, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		botID, userID, source, message, time.Now().UTC(),
	)
	return err
}

// ComputeEquity возвращает текущий equity бота
func (r *LedgerRepository) ComputeEquity(botID string) (float64, error) {
	pnl, err := r.ComputeRealizedPnl(botID)
	if err != nil {
		return 0, err
	}
	return r.startingEquity + pnl, nil
}

// ComputeRealizedPnl возвращает суммарный реализованный PnL бота
func (r *LedgerRepository) ComputeRealizedPnl(botID string) (float64, error) {
	var pnl float64
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(pnl), 0) FROM fills WHERE bot_id = $1`,
		botID,
	).Scan(&pnl)
	return pnl, err
}

// ComputeFeesPaid возвращает суммарные уплаченные комиссии бота
func (r *LedgerRepository) ComputeFeesPaid(botID string) (float64, error) {
	var fees float64
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(actual_fee), 0) FROM fills WHERE bot_id = $1`,
		botID,
	).Scan(&fees)
	return fees, err
}

// GetStats собирает все финансовые метрики бота для read-эндпоинта
func (r *LedgerRepository) GetStats(botID string) (*models.LedgerStats, error) {
	stats := &models.LedgerStats{BotID: botID}

	equity, err := r.ComputeEquity(botID)
	if err != nil {
		return nil, err
	}
	stats.Equity = equity

	pnl, err := r.ComputeRealizedPnl(botID)
	if err != nil {
		return nil, err
	}
	stats.RealizedPnl = pnl

	fees, err := r.ComputeFeesPaid(botID)
	if err != nil {
		return nil, err
	}
	stats.FeesPaid = fees

	current, max, err := r.ComputeDrawdown(botID)
	if err != nil {
		return nil, err
	}
	stats.CurrentDrawdown = current
	stats.MaxDrawdown = max

	daily, err := r.ComputeDailyPnl(botID)
	if err != nil {
		return nil, err
	}
	stats.DailyPnlPercent = daily

	losses, err := r.GetConsecutiveLosses(botID)
	if err != nil {
		return nil, err
	}
	stats.ConsecutiveLosses = losses

	errRate, err := r.GetErrorRate(botID)
	if err != nil {
		return nil, err
	}
	stats.ErrorRatePerHour = errRate

	total, err := r.GetTradeCountForBot(botID, time.Time{})
	if err != nil {
		return nil, err
	}
	stats.TotalTrades = total

	today, err := r.GetTradeCountForBot(botID, utils.GetDayStart())
	if err != nil {
		return nil, err
	}
	stats.TodayTrades = today

	return stats, nil
}

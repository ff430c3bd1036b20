package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradeguard/internal/models"
)

// Ошибки репозитория circuit breaker'а
var (
	ErrBreakerStateNotFound = errors.New("circuit breaker state not found")
)

// BreakerRepository - работа с таблицей circuit_breaker_states
//
// Схема:
//
//	CREATE TABLE circuit_breaker_states (
//	    bot_id       TEXT PRIMARY KEY,
//	    user_id      TEXT NOT NULL DEFAULT '',
//	    tripped      BOOLEAN NOT NULL DEFAULT FALSE,
//	    reason       TEXT NOT NULL DEFAULT '',
//	    trigger_type TEXT NOT NULL DEFAULT '',
//	    tripped_at   TIMESTAMPTZ,
//	    cleared_at   TIMESTAMPTZ,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
//
// Состояние персистентно: переживает перезапуски и видно дашбордам.
type BreakerRepository struct {
	db *sql.DB
}

// NewBreakerRepository создает новый экземпляр репозитория
func NewBreakerRepository(db *sql.DB) *BreakerRepository {
	return &BreakerRepository{db: db}
}

// Get возвращает состояние breaker'а для бота.
// Отсутствие записи = breaker никогда не срабатывал (ErrBreakerStateNotFound).
func (r *BreakerRepository) Get(botID string) (*models.CircuitBreakerState, error) {
	query := `
		SELECT bot_id, user_id, tripped, reason, trigger_type, tripped_at, cleared_at, updated_at
		FROM circuit_breaker_states
		WHERE bot_id = $1`

	state := &models.CircuitBreakerState{}
	err := r.db.QueryRow(query, botID).Scan(
		&state.BotID,
		&state.UserID,
		&state.Tripped,
		&state.Reason,
		&state.TriggerType,
		&state.TrippedAt,
		&state.ClearedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBreakerStateNotFound
		}
		return nil, err
	}

	return state, nil
}

// Trip переводит breaker бота в состояние tripped (upsert).
//
// ON CONFLICT DO UPDATE: повторный Trip по уже сработавшему breaker'у
// безопасен и только обновляет причину - вызов идемпотентен, что
// нужно для at-least-once сигнализации.
func (r *BreakerRepository) Trip(botID, userID, reason, triggerType string) (*models.CircuitBreakerState, error) {
	now := time.Now().UTC()

	query := `
		INSERT INTO circuit_breaker_states (bot_id, user_id, tripped, reason, trigger_type, tripped_at, cleared_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $4, $5, NULL, $5)
		ON CONFLICT (bot_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    tripped = TRUE,
		    reason = EXCLUDED.reason,
		    trigger_type = EXCLUDED.trigger_type,
		    tripped_at = EXCLUDED.tripped_at,
		    cleared_at = NULL,
		    updated_at = EXCLUDED.updated_at`

	if _, err := r.db.Exec(query, botID, userID, reason, triggerType, now); err != nil {
		return nil, err
	}

	return &models.CircuitBreakerState{
		BotID:       botID,
		UserID:      userID,
		Tripped:     true,
		Reason:      reason,
		TriggerType: triggerType,
		TrippedAt:   &now,
		UpdatedAt:   now,
	}, nil
}

// Reset снимает breaker явно. Автоматического снятия нет:
// только ручной вызов или внешняя cooldown-политика.
func (r *BreakerRepository) Reset(botID string) (*models.CircuitBreakerState, error) {
	now := time.Now().UTC()

	query := `
		UPDATE circuit_breaker_states
		SET tripped = FALSE, cleared_at = $1, updated_at = $1
		WHERE bot_id = $2`

	result, err := r.db.Exec(query, now, botID)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrBreakerStateNotFound
	}

	return r.Get(botID)
}

// GetTripped возвращает все сработавшие breaker'ы (для дашборда)
func (r *BreakerRepository) GetTripped() ([]*models.CircuitBreakerState, error) {
	query := `
		SELECT bot_id, user_id, tripped, reason, trigger_type, tripped_at, cleared_at, updated_at
		FROM circuit_breaker_states
		WHERE tripped = TRUE
		ORDER BY tripped_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*models.CircuitBreakerState
	for rows.Next() {
		state := &models.CircuitBreakerState{}
		err := rows.Scan(
			&state.BotID,
			&state.UserID,
			&state.Tripped,
			&state.Reason,
			&state.TriggerType,
			&state.TrippedAt,
			&state.ClearedAt,
			&state.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return states, nil
}

package repository

import (
	"database/sql"
	"time"

	"tradeguard/internal/models"
)

// NotificationRepository - работа с таблицей notifications
//
// Схема:
//
//	CREATE TABLE notifications (
//	    id        SERIAL PRIMARY KEY,
//	    timestamp TIMESTAMPTZ NOT NULL,
//	    type      TEXT NOT NULL,
//	    severity  TEXT NOT NULL,
//	    bot_id    TEXT NOT NULL DEFAULT '',
//	    user_id   TEXT NOT NULL DEFAULT '',
//	    message   TEXT NOT NULL,
//	    meta      JSONB
//	);
//
// Уведомления - журнал событий пайплайна (трипы breaker'а, инциденты
// записи в леджер), на который смотрит bot-lifecycle менеджер и дашборд.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление
func (r *NotificationRepository) Create(notif *models.Notification) error {
	metaJSON, err := json.Marshal(notif.Meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notifications (timestamp, type, severity, bot_id, user_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now().UTC()
	}

	return r.db.QueryRow(
		query,
		notif.Timestamp,
		notif.Type,
		notif.Severity,
		notif.BotID,
		notif.UserID,
		notif.Message,
		string(metaJSON),
	).Scan(&notif.ID)
}

// GetRecent возвращает последние limit уведомлений
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, bot_id, user_id, message, meta
		FROM notifications
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []*models.Notification
	for rows.Next() {
		notif := &models.Notification{}
		var metaJSON []byte
		err := rows.Scan(
			&notif.ID,
			&notif.Timestamp,
			&notif.Type,
			&notif.Severity,
			&notif.BotID,
			&notif.UserID,
			&notif.Message,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &notif.Meta); err != nil {
				return nil, err
			}
		}
		notifs = append(notifs, notif)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifs, nil
}

// Count возвращает общее количество уведомлений
func (r *NotificationRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&count)
	return count, err
}

// DeleteOlderThan удаляет уведомления старше указанного времени.
// Журнал уведомлений, в отличие от леджера, подрезается.
func (r *NotificationRepository) DeleteOlderThan(olderThan time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE timestamp < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

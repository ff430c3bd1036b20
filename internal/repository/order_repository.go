package repository

import (
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"tradeguard/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicateIdempotency   = errors.New("pending order with this idempotency key already exists")
	ErrInvalidStateTransition = errors.New("order state transition not allowed")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OrderRepository - работа с таблицей pending_orders
//
// Схема:
//
//	CREATE TABLE pending_orders (
//	    order_id          TEXT PRIMARY KEY,
//	    idempotency_key   TEXT NOT NULL UNIQUE,
//	    user_id           TEXT NOT NULL,
//	    bot_id            TEXT NOT NULL,
//	    exchange          TEXT NOT NULL,
//	    symbol            TEXT NOT NULL,
//	    side              TEXT NOT NULL,
//	    amount            DOUBLE PRECISION NOT NULL,
//	    order_type        TEXT NOT NULL,
//	    price             DOUBLE PRECISION NOT NULL,
//	    state             TEXT NOT NULL,
//	    execution_summary JSONB NOT NULL,
//	    gates_passed      JSONB NOT NULL,
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    filled_at         TIMESTAMPTZ
//	);
//
// UNIQUE constraint на idempotency_key - механизм атомарной проверки
// идемпотентности: конкурентная вставка с тем же ключом падает с
// нарушением уникальности, а не создаёт второй ордер.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create вставляет новый pending ордер.
//
// Возвращает ErrDuplicateIdempotency, если ордер с таким
// idempotency_key уже существует. Вставка и проверка уникальности -
// одна атомарная операция БД, а не read-then-write.
func (r *OrderRepository) Create(order *models.PendingOrder) error {
	summaryJSON, err := json.Marshal(order.Summary)
	if err != nil {
		return err
	}
	gatesJSON, err := json.Marshal(order.GatesPassed)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pending_orders (order_id, idempotency_key, user_id, bot_id, exchange, symbol, side, amount, order_type, price, state, execution_summary, gates_passed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	order.CreatedAt = time.Now().UTC()
	if order.State == "" {
		order.State = models.OrderStatePending
	}

	_, err = r.db.Exec(
		query,
		order.OrderID,
		order.IdempotencyKey,
		order.UserID,
		order.BotID,
		order.Exchange,
		order.Symbol,
		order.Side,
		order.Amount,
		order.OrderType,
		order.Price,
		order.State,
		string(summaryJSON),
		string(gatesJSON),
		order.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdempotency
		}
		return err
	}

	return nil
}

const orderColumns = `order_id, idempotency_key, user_id, bot_id, exchange, symbol, side, amount, order_type, price, state, execution_summary, gates_passed, created_at, filled_at`

// GetByOrderID возвращает ордер по order_id
func (r *OrderRepository) GetByOrderID(orderID string) (*models.PendingOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM pending_orders WHERE order_id = $1`
	return r.scanOne(r.db.QueryRow(query, orderID))
}

// GetByIdempotencyKey возвращает ордер по ключу идемпотентности
func (r *OrderRepository) GetByIdempotencyKey(key string) (*models.PendingOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM pending_orders WHERE idempotency_key = $1`
	return r.scanOne(r.db.QueryRow(query, key))
}

// scanOne читает одну строку ордера
func (r *OrderRepository) scanOne(row *sql.Row) (*models.PendingOrder, error) {
	order := &models.PendingOrder{}
	var summaryJSON, gatesJSON []byte

	err := row.Scan(
		&order.OrderID,
		&order.IdempotencyKey,
		&order.UserID,
		&order.BotID,
		&order.Exchange,
		&order.Symbol,
		&order.Side,
		&order.Amount,
		&order.OrderType,
		&order.Price,
		&order.State,
		&summaryJSON,
		&gatesJSON,
		&order.CreatedAt,
		&order.FilledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(summaryJSON, &order.Summary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(gatesJSON, &order.GatesPassed); err != nil {
		return nil, err
	}

	return order, nil
}

// MarkFilled переводит ордер pending → filled.
//
// Условие state = 'pending' в WHERE защищает от двойного заполнения:
// повторный вызов не затронет ни одной строки.
func (r *OrderRepository) MarkFilled(orderID string, filledAt time.Time) error {
	return r.transition(orderID, models.OrderStateFilled, &filledAt)
}

// UpdateState переводит ордер из pending в указанное терминальное состояние
func (r *OrderRepository) UpdateState(orderID, toState string) error {
	if !models.CanTransition(models.OrderStatePending, toState) {
		return ErrInvalidStateTransition
	}
	return r.transition(orderID, toState, nil)
}

func (r *OrderRepository) transition(orderID, toState string, filledAt *time.Time) error {
	query := `
		UPDATE pending_orders
		SET state = $1, filled_at = $2
		WHERE order_id = $3 AND state = $4`

	result, err := r.db.Exec(query, toState, filledAt, orderID, models.OrderStatePending)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Ордера нет, либо он уже в терминальном состоянии
		existing, getErr := r.GetByOrderID(orderID)
		if getErr != nil {
			return ErrOrderNotFound
		}
		if existing.State != models.OrderStatePending {
			return ErrInvalidStateTransition
		}
		return ErrOrderNotFound
	}

	return nil
}

// ExpireStale переводит в expired все pending ордера старше olderThan.
// Вызывается внешним janitor'ом по таймауту исполнения.
func (r *OrderRepository) ExpireStale(olderThan time.Time) (int64, error) {
	query := `
		UPDATE pending_orders
		SET state = $1
		WHERE state = $2 AND created_at < $3`

	result, err := r.db.Exec(query, models.OrderStateExpired, models.OrderStatePending, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByState возвращает количество ордеров в указанном состоянии
func (r *OrderRepository) CountByState(state string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM pending_orders WHERE state = $1`, state).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE
// constraint. Код 23505 - unique_violation в Postgres.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

package pipeline

import (
	"context"
	"sync"
	"time"

	"tradeguard/internal/models"
	"tradeguard/internal/repository"
)

// ============ Mock OrderStore ============

type MockOrderStore struct {
	mu        sync.Mutex
	byID      map[string]*models.PendingOrder
	byKey     map[string]*models.PendingOrder
	createErr error
	getErr    error
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		byID:  make(map[string]*models.PendingOrder),
		byKey: make(map[string]*models.PendingOrder),
	}
}

func (m *MockOrderStore) Create(order *models.PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.byKey[order.IdempotencyKey]; exists {
		return repository.ErrDuplicateIdempotency
	}
	order.CreatedAt = time.Now().UTC()
	m.byID[order.OrderID] = order
	m.byKey[order.IdempotencyKey] = order
	return nil
}

func (m *MockOrderStore) GetByOrderID(orderID string) (*models.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if order, exists := m.byID[orderID]; exists {
		return order, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderStore) GetByIdempotencyKey(key string) (*models.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if order, exists := m.byKey[key]; exists {
		return order, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderStore) MarkFilled(orderID string, filledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, exists := m.byID[orderID]
	if !exists {
		return repository.ErrOrderNotFound
	}
	if order.State != models.OrderStatePending {
		return repository.ErrInvalidStateTransition
	}
	order.State = models.OrderStateFilled
	order.FilledAt = &filledAt
	return nil
}

func (m *MockOrderStore) UpdateState(orderID, toState string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, exists := m.byID[orderID]
	if !exists {
		return repository.ErrOrderNotFound
	}
	if !models.CanTransition(order.State, toState) {
		return repository.ErrInvalidStateTransition
	}
	order.State = toState
	return nil
}

func (m *MockOrderStore) ExpireStale(olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, order := range m.byID {
		if order.State == models.OrderStatePending && order.CreatedAt.Before(olderThan) {
			order.State = models.OrderStateExpired
			n++
		}
	}
	return n, nil
}

func (m *MockOrderStore) CountByState(state string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, order := range m.byID {
		if order.State == state {
			count++
		}
	}
	return count, nil
}

var _ OrderStoreInterface = (*MockOrderStore)(nil)

// ============ Mock Ledger ============

type MockLedger struct {
	mu    sync.Mutex
	fills []*models.Fill

	botCount  int
	userCount int

	drawdown     float64
	maxDrawdown  float64
	dailyPnl     float64
	consecLosses int
	errorRate    float64

	appendErr error
	readErr   error
}

func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

func (m *MockLedger) AppendFill(_ context.Context, fill *models.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	fill.CreatedAt = time.Now().UTC()
	m.fills = append(m.fills, fill)
	return nil
}

func (m *MockLedger) GetTradeCountForBot(botID string, since time.Time) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.botCount, nil
}

func (m *MockLedger) GetTradeCountForUser(userID string, since time.Time) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.userCount, nil
}

func (m *MockLedger) ComputeDrawdown(botID string) (float64, float64, error) {
	if m.readErr != nil {
		return 0, 0, m.readErr
	}
	return m.drawdown, m.maxDrawdown, nil
}

func (m *MockLedger) ComputeDailyPnl(botID string) (float64, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.dailyPnl, nil
}

func (m *MockLedger) GetConsecutiveLosses(botID string) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.consecLosses, nil
}

func (m *MockLedger) GetErrorRate(botID string) (float64, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.errorRate, nil
}

func (m *MockLedger) ComputeEquity(botID string) (float64, error) {
	return 10000, nil
}

func (m *MockLedger) ComputeRealizedPnl(botID string) (float64, error) {
	return 0, nil
}

func (m *MockLedger) ComputeFeesPaid(botID string) (float64, error) {
	return 0, nil
}

func (m *MockLedger) GetStats(botID string) (*models.LedgerStats, error) {
	return &models.LedgerStats{BotID: botID}, nil
}

func (m *MockLedger) Fills() []*models.Fill {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Fill(nil), m.fills...)
}

var _ LedgerInterface = (*MockLedger)(nil)

// ============ Mock BreakerStore ============

type MockBreakerStore struct {
	mu       sync.Mutex
	states   map[string]*models.CircuitBreakerState
	tripErr  error
	resetErr error
	getErr   error
}

func NewMockBreakerStore() *MockBreakerStore {
	return &MockBreakerStore{states: make(map[string]*models.CircuitBreakerState)}
}

func (m *MockBreakerStore) Get(botID string) (*models.CircuitBreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if state, exists := m.states[botID]; exists {
		return state, nil
	}
	return nil, repository.ErrBreakerStateNotFound
}

func (m *MockBreakerStore) Trip(botID, userID, reason, triggerType string) (*models.CircuitBreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tripErr != nil {
		return nil, m.tripErr
	}
	now := time.Now().UTC()
	state := &models.CircuitBreakerState{
		BotID:       botID,
		UserID:      userID,
		Tripped:     true,
		Reason:      reason,
		TriggerType: triggerType,
		TrippedAt:   &now,
		UpdatedAt:   now,
	}
	m.states[botID] = state
	return state, nil
}

func (m *MockBreakerStore) Reset(botID string) (*models.CircuitBreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return nil, m.resetErr
	}
	state, exists := m.states[botID]
	if !exists {
		return nil, repository.ErrBreakerStateNotFound
	}
	now := time.Now().UTC()
	state.Tripped = false
	state.ClearedAt = &now
	state.UpdatedAt = now
	return state, nil
}

func (m *MockBreakerStore) GetTripped() ([]*models.CircuitBreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tripped []*models.CircuitBreakerState
	for _, state := range m.states {
		if state.Tripped {
			tripped = append(tripped, state)
		}
	}
	return tripped, nil
}

var _ BreakerStoreInterface = (*MockBreakerStore)(nil)

// ============ Mock Notifier ============

type MockNotifier struct {
	mu        sync.Mutex
	created   []*models.Notification
	createErr error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Create(notif *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	notif.ID = len(m.created) + 1
	m.created = append(m.created, notif)
	return nil
}

func (m *MockNotifier) Created() []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Notification(nil), m.created...)
}

var _ NotifierInterface = (*MockNotifier)(nil)

// ============ Mock TripSignaler ============

type MockSignaler struct {
	mu      sync.Mutex
	tripped []*models.CircuitBreakerState
	resets  []*models.CircuitBreakerState
}

func NewMockSignaler() *MockSignaler {
	return &MockSignaler{}
}

func (m *MockSignaler) SignalBreakerTripped(state *models.CircuitBreakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tripped = append(m.tripped, state)
}

func (m *MockSignaler) SignalBreakerReset(state *models.CircuitBreakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, state)
}

var _ TripSignaler = (*MockSignaler)(nil)

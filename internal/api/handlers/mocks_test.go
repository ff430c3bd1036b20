package handlers

import (
	"context"
	"sync"
	"time"

	"tradeguard/internal/models"
	"tradeguard/internal/pipeline"
	"tradeguard/internal/repository"
)

// ============ Mock Pipeline ============

// MockPipeline мок для PipelineInterface
type MockPipeline struct {
	submitResult *pipeline.SubmitResult
	submitErr    error
	fillResult   *pipeline.FillResult
	fillErr      error

	lastSubmit  *models.OrderRequest
	lastFillID  string
	lastFillPnl float64
	mu          sync.Mutex
}

var _ PipelineInterface = (*MockPipeline)(nil)

func (m *MockPipeline) SubmitOrder(_ context.Context, req *models.OrderRequest) (*pipeline.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSubmit = req
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.submitResult, nil
}

func (m *MockPipeline) RecordFillExecution(_ context.Context, orderID string, _, _, _, realizedPnl float64, _, _ string) (*pipeline.FillResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastFillID = orderID
	m.lastFillPnl = realizedPnl
	if m.fillErr != nil {
		return nil, m.fillErr
	}
	return m.fillResult, nil
}

// ============ Mock Breaker Controller ============

// MockBreakerController мок для BreakerControllerInterface
type MockBreakerController struct {
	states   map[string]*models.CircuitBreakerState
	getErr   error
	tripErr  error
	resetErr error
	mu       sync.Mutex
}

var _ BreakerControllerInterface = (*MockBreakerController)(nil)

func NewMockBreakerController() *MockBreakerController {
	return &MockBreakerController{states: make(map[string]*models.CircuitBreakerState)}
}

func (m *MockBreakerController) GetStatus(botID string) (*models.CircuitBreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if state, ok := m.states[botID]; ok {
		return state, nil
	}
	return &models.CircuitBreakerState{BotID: botID, Tripped: false}, nil
}

func (m *MockBreakerController) ListTripped() ([]*models.CircuitBreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	var tripped []*models.CircuitBreakerState
	for _, state := range m.states {
		if state.Tripped {
			tripped = append(tripped, state)
		}
	}
	return tripped, nil
}

func (m *MockBreakerController) Trip(_ context.Context, botID, userID, reason, triggerType string) (*models.CircuitBreakerState, error) {
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

func (m *MockBreakerController) Reset(botID string) (*models.CircuitBreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resetErr != nil {
		return nil, m.resetErr
	}
	state, ok := m.states[botID]
	if !ok {
		return nil, repository.ErrBreakerStateNotFound
	}
	now := time.Now().UTC()
	state.Tripped = false
	state.ClearedAt = &now
	state.UpdatedAt = now
	return state, nil
}

// ============ Mock Ledger Stats ============

// MockLedgerStats мок для LedgerStatsInterface
type MockLedgerStats struct {
	stats *models.LedgerStats
	err   error

	recordedErrors []recordedError
}

type recordedError struct {
	botID, userID, source, message string
}

var _ LedgerStatsInterface = (*MockLedgerStats)(nil)

func (m *MockLedgerStats) GetStats(botID string) (*models.LedgerStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.stats != nil {
		return m.stats, nil
	}
	return &models.LedgerStats{BotID: botID}, nil
}

func (m *MockLedgerStats) RecordError(botID, userID, source, message string) error {
	if m.err != nil {
		return m.err
	}
	m.recordedErrors = append(m.recordedErrors, recordedError{botID, userID, source, message})
	return nil
}

// ============ Mock Notification Store ============

// MockNotificationStore мок для NotificationStoreInterface
type MockNotificationStore struct {
	notifications []*models.Notification
	createErr     error
	getErr        error
	deleteErr     error
	deleted       int64
	nextID        int
	mu            sync.Mutex
}

var _ NotificationStoreInterface = (*MockNotificationStore)(nil)

func NewMockNotificationStore() *MockNotificationStore {
	return &MockNotificationStore{nextID: 1}
}

func (m *MockNotificationStore) Create(notif *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	notif.ID = m.nextID
	notif.Timestamp = time.Now().UTC()
	m.nextID++
	m.notifications = append([]*models.Notification{notif}, m.notifications...)
	return nil
}

func (m *MockNotificationStore) GetRecent(limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if limit > len(m.notifications) {
		limit = len(m.notifications)
	}
	return m.notifications[:limit], nil
}

func (m *MockNotificationStore) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications), nil
}

func (m *MockNotificationStore) DeleteOlderThan(time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return m.deleted, nil
}

// Created возвращает снимок накопленных уведомлений
func (m *MockNotificationStore) Created() []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Notification{}, m.notifications...)
}

// ============ Mock Event Broadcaster ============

type broadcastEvent struct {
	kind    string
	orderID string
	botID   string
	gate    string
}

// MockBroadcaster мок для EventBroadcaster
type MockBroadcaster struct {
	events []broadcastEvent
	mu     sync.Mutex
}

var _ EventBroadcaster = (*MockBroadcaster)(nil)

func (m *MockBroadcaster) BroadcastOrderAdmitted(orderID, botID string) {
	m.record(broadcastEvent{kind: "admitted", orderID: orderID, botID: botID})
}

func (m *MockBroadcaster) BroadcastOrderRejected(botID, gate, _ string, _ map[string]interface{}) {
	m.record(broadcastEvent{kind: "rejected", botID: botID, gate: gate})
}

func (m *MockBroadcaster) BroadcastFillRecorded(orderID, _, _, _ string, _, _ float64) {
	m.record(broadcastEvent{kind: "fill", orderID: orderID})
}

func (m *MockBroadcaster) BroadcastNotification(notif *models.Notification) {
	m.record(broadcastEvent{kind: "notification", botID: notif.BotID})
}

func (m *MockBroadcaster) record(ev broadcastEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events возвращает снимок записанных событий
func (m *MockBroadcaster) Events() []broadcastEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]broadcastEvent{}, m.events...)
}

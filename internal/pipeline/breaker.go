package pipeline

import (
	"context"
	"errors"
	"fmt"

	"tradeguard/internal/config"
	"tradeguard/internal/models"
	"tradeguard/internal/repository"
	"tradeguard/pkg/retry"
	"tradeguard/pkg/utils"
)

// ============================================================
// Гейт D: circuit breaker
// ============================================================

// CircuitBreaker следит за финансовым здоровьем бота и защёлкивается
// при любом из четырёх условий: просадка, дневной убыток, серия
// убыточных сделок, шторм ошибок.
//
// Защёлка: сработав, breaker блокирует ордера до явного Reset -
// автоматического снятия на следующей проверке нет.
type CircuitBreaker struct {
	store    BreakerStoreInterface
	ledger   LedgerInterface
	notifier NotifierInterface
	signaler TripSignaler
	log      *utils.Logger
}

// NewCircuitBreaker создает circuit breaker.
// notifier и signaler могут быть nil (события не рассылаются).
func NewCircuitBreaker(store BreakerStoreInterface, ledger LedgerInterface, notifier NotifierInterface, signaler TripSignaler, log *utils.Logger) *CircuitBreaker {
	if log == nil {
		log = utils.L()
	}
	return &CircuitBreaker{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		signaler: signaler,
		log:      log.WithComponent("circuit_breaker"),
	}
}

// CheckStatus оценивает все условия срабатывания для бота.
//
// Порядок проверки фиксирован: drawdown, daily loss, consecutive
// losses, error storm. Если одновременно выполнено несколько условий,
// наружу выходит первое - более системный риск важнее для оператора.
func (cb *CircuitBreaker) CheckStatus(botID string, limits config.GateLimits) (*models.BreakerStatus, error) {
	current, _, err := cb.ledger.ComputeDrawdown(botID)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: drawdown: %w", err)
	}
	if current >= limits.MaxDrawdownPercent {
		return &models.BreakerStatus{
			ShouldTrip:  true,
			TriggerType: models.TriggerDrawdown,
			Reason:      fmt.Sprintf("Max drawdown %.1f%% >= %.1f%%", current*100, limits.MaxDrawdownPercent*100),
			Details: map[string]interface{}{
				"current_drawdown": current,
				"threshold":        limits.MaxDrawdownPercent,
			},
		}, nil
	}

	dailyPnl, err := cb.ledger.ComputeDailyPnl(botID)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: daily pnl: %w", err)
	}
	if dailyPnl <= -limits.MaxDailyLossPercent {
		return &models.BreakerStatus{
			ShouldTrip:  true,
			TriggerType: models.TriggerDailyLoss,
			Reason:      fmt.Sprintf("Daily loss %.1f%% <= -%.1f%%", dailyPnl*100, limits.MaxDailyLossPercent*100),
			Details: map[string]interface{}{
				"daily_pnl_percent": dailyPnl,
				"threshold":         -limits.MaxDailyLossPercent,
			},
		}, nil
	}

	losses, err := cb.ledger.GetConsecutiveLosses(botID)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: consecutive losses: %w", err)
	}
	if losses >= limits.MaxConsecutiveLosses {
		return &models.BreakerStatus{
			ShouldTrip:  true,
			TriggerType: models.TriggerConsecutiveLosses,
			Reason:      fmt.Sprintf("%d consecutive losses >= %d", losses, limits.MaxConsecutiveLosses),
			Details: map[string]interface{}{
				"consecutive_losses": losses,
				"threshold":          limits.MaxConsecutiveLosses,
			},
		}, nil
	}

	errRate, err := cb.ledger.GetErrorRate(botID)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: error rate: %w", err)
	}
	if errRate >= limits.MaxErrorsPerHour {
		return &models.BreakerStatus{
			ShouldTrip:  true,
			TriggerType: models.TriggerErrorStorm,
			Reason:      fmt.Sprintf("Error rate %.0f/hour >= %.0f/hour", errRate, limits.MaxErrorsPerHour),
			Details: map[string]interface{}{
				"error_rate_per_hour": errRate,
				"threshold":           limits.MaxErrorsPerHour,
			},
		}, nil
	}

	return &models.BreakerStatus{ShouldTrip: false}, nil
}

// Trip персистит состояние tripped и рассылает сигнал с at-least-once
// гарантией: запись в БД повторяется по CriticalConfig, решение о
// трипе не должно теряться из-за мигнувшего соединения.
func (cb *CircuitBreaker) Trip(ctx context.Context, botID, userID, reason, triggerType string) (*models.CircuitBreakerState, error) {
	var state *models.CircuitBreakerState

	err := retry.Do(ctx, func() error {
		var err error
		state, err = cb.store.Trip(botID, userID, reason, triggerType)
		return err
	}, retry.CriticalConfig())
	if err != nil {
		cb.log.Error("breaker trip persistence failed",
			utils.BotID(botID), utils.TriggerType(triggerType), utils.Err(err))
		return nil, fmt.Errorf("circuit breaker: trip: %w", err)
	}

	cb.log.Warn("circuit breaker tripped",
		utils.BotID(botID), utils.UserID(userID),
		utils.TriggerType(triggerType), utils.String("reason", reason))

	BreakerTrips.WithLabelValues(triggerType).Inc()

	if cb.notifier != nil {
		notifErr := cb.notifier.Create(&models.Notification{
			Type:     models.NotificationTypeBreakerTrip,
			Severity: models.SeverityError,
			BotID:    botID,
			UserID:   userID,
			Message:  "Circuit breaker tripped: " + reason,
			Meta: map[string]interface{}{
				"trigger_type": triggerType,
			},
		})
		if notifErr != nil {
			// Состояние уже персистентно, сигнал дойдёт через него
			cb.log.Error("breaker trip notification failed", utils.BotID(botID), utils.Err(notifErr))
		}
	}

	if cb.signaler != nil {
		cb.signaler.SignalBreakerTripped(state)
	}

	return state, nil
}

// Reset явно снимает breaker. Вызывается оператором или внешней
// cooldown-политикой; сам breaker себя никогда не сбрасывает.
func (cb *CircuitBreaker) Reset(botID string) (*models.CircuitBreakerState, error) {
	state, err := cb.store.Reset(botID)
	if err != nil {
		return nil, err
	}

	cb.log.Info("circuit breaker reset", utils.BotID(botID))

	if cb.notifier != nil {
		notifErr := cb.notifier.Create(&models.Notification{
			Type:     models.NotificationTypeBreakerReset,
			Severity: models.SeverityInfo,
			BotID:    botID,
			UserID:   state.UserID,
			Message:  "Circuit breaker reset",
		})
		if notifErr != nil {
			cb.log.Error("breaker reset notification failed", utils.BotID(botID), utils.Err(notifErr))
		}
	}

	if cb.signaler != nil {
		cb.signaler.SignalBreakerReset(state)
	}

	return state, nil
}

// GetStatus возвращает текущее персистентное состояние breaker'а.
// Бот без записи считается чистым (никогда не срабатывал).
func (cb *CircuitBreaker) GetStatus(botID string) (*models.CircuitBreakerState, error) {
	state, err := cb.store.Get(botID)
	if err != nil {
		if errors.Is(err, repository.ErrBreakerStateNotFound) {
			return &models.CircuitBreakerState{BotID: botID, Tripped: false}, nil
		}
		return nil, err
	}
	return state, nil
}

// ListTripped возвращает все боты с взведённым breaker'ом
func (cb *CircuitBreaker) ListTripped() ([]*models.CircuitBreakerState, error) {
	return cb.store.GetTripped()
}

// IsTripped возвращает true если breaker бота сейчас в состоянии tripped
func (cb *CircuitBreaker) IsTripped(botID string) (bool, error) {
	state, err := cb.GetStatus(botID)
	if err != nil {
		return false, err
	}
	return state.Tripped, nil
}

// Evaluate - проверка breaker'а как гейта D пайплайна.
//
// Два шага: уже защёлкнут → отказ; иначе оценка условий, и если
// should_trip - breaker защёлкивается ЗДЕСЬ, побочным эффектом
// проверки. Проходящий поток не имеет права молча оставить
// невзведённым breaker, чьё условие выполнено.
func (cb *CircuitBreaker) Evaluate(ctx context.Context, req *models.OrderRequest, limits config.GateLimits) (models.GateResult, error) {
	state, err := cb.GetStatus(req.BotID)
	if err != nil {
		return models.GateResult{}, fmt.Errorf("circuit breaker: status: %w", err)
	}
	if state.Tripped {
		return models.FailGate(
			models.GateCircuitBreaker,
			"Circuit breaker tripped: "+state.Reason,
			map[string]interface{}{
				"trigger_type": state.TriggerType,
				"tripped_at":   state.TrippedAt,
			},
		), nil
	}

	status, err := cb.CheckStatus(req.BotID, limits)
	if err != nil {
		return models.GateResult{}, err
	}
	if status.ShouldTrip {
		if _, tripErr := cb.Trip(ctx, req.BotID, req.UserID, status.Reason, status.TriggerType); tripErr != nil {
			// Ордер всё равно отклоняется: условие выполнено, даже
			// если защёлку не удалось записать
			cb.log.Error("trip during gate check failed", utils.BotID(req.BotID), utils.Err(tripErr))
		}
		details := status.Details
		if details == nil {
			details = map[string]interface{}{}
		}
		details["trigger_type"] = status.TriggerType
		return models.FailGate(models.GateCircuitBreaker, status.Reason, details), nil
	}

	return models.PassGate(models.GateCircuitBreaker, nil), nil
}

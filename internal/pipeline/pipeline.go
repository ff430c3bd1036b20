package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradeguard/internal/config"
	"tradeguard/internal/models"
	"tradeguard/internal/repository"
	"tradeguard/pkg/utils"
)

// Ошибки пайплайна
var (
	ErrOrderNotFound = errors.New("pending order not found")
)

// SubmitResult - ответ submit_order.
//
// Отказ гейта - не ошибка Go-уровня: он возвращается как Success=false
// с причиной и числовыми деталями, достаточными для восстановления
// решения без запросов к другим системам.
type SubmitResult struct {
	Success     bool                     `json:"success"`
	Duplicate   bool                     `json:"duplicate,omitempty"` // повтор по idempotency key
	OrderID     string                   `json:"order_id,omitempty"`
	GatesPassed []string                 `json:"gates_passed,omitempty"`
	Summary     *models.ExecutionSummary `json:"execution_summary,omitempty"`
	Gate        string                   `json:"gate,omitempty"`   // имя гейта-отказника
	Reason      string                   `json:"reason,omitempty"` // при Success=false
	Details     map[string]interface{}   `json:"details,omitempty"`
}

// FillResult - ответ record_fill_execution
type FillResult struct {
	Success      bool    `json:"success"`
	FillID       string  `json:"fill_id"`
	Exchange     string  `json:"exchange"`
	Symbol       string  `json:"symbol"`
	SlippageBps  float64 `json:"slippage_bps"`
	ActualFeeBps float64 `json:"actual_fee_bps"`
}

// OrderPipeline - оркестратор четырёх гейтов допуска.
//
// Порядок фиксирован: idempotency → fee_coverage → trade_limiter →
// circuit_breaker, отсечение на первом отказе. PendingOrder
// персистится только при полном проходе; отклонённые ордера в БД
// не появляются.
type OrderPipeline struct {
	orders  OrderStoreInterface
	ledger  LedgerInterface
	fees    *FeeCoverageGate
	limiter *TradeLimiterGate
	breaker *CircuitBreaker
	cfg     config.PipelineConfig
	log     *utils.Logger
}

// NewOrderPipeline создает пайплайн допуска ордеров
func NewOrderPipeline(
	orders OrderStoreInterface,
	ledger LedgerInterface,
	fees *FeeCoverageGate,
	limiter *TradeLimiterGate,
	breaker *CircuitBreaker,
	cfg config.PipelineConfig,
	log *utils.Logger,
) *OrderPipeline {
	if log == nil {
		log = utils.L()
	}
	return &OrderPipeline{
		orders:  orders,
		ledger:  ledger,
		fees:    fees,
		limiter: limiter,
		breaker: breaker,
		cfg:     cfg,
		log:     log.WithComponent("order_pipeline"),
	}
}

// duplicateResult строит ответ по ранее сохранённому ордеру.
// Прежний исход возвращается дословно: гейты не переоцениваются,
// второй PendingOrder/Fill не возникает.
func duplicateResult(existing *models.PendingOrder) *SubmitResult {
	summary := existing.Summary
	return &SubmitResult{
		Success:     true,
		Duplicate:   true,
		OrderID:     existing.OrderID,
		GatesPassed: existing.GatesPassed,
		Summary:     &summary,
	}
}

// SubmitOrder прогоняет запрос через все четыре гейта.
//
// Ответ с Success=false - штатное отклонение; error не-nil только при
// инфраструктурном сбое (леджер или хранилище недоступны).
func (p *OrderPipeline) SubmitOrder(ctx context.Context, req *models.OrderRequest) (*SubmitResult, error) {
	started := time.Now()
	defer func() {
		SubmitLatency.Observe(float64(time.Since(started).Microseconds()) / 1000)
	}()

	log := p.log.With(utils.BotID(req.BotID), utils.UserID(req.UserID),
		utils.Exchange(req.Exchange), utils.Symbol(req.Symbol))

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	limits := p.cfg.ForExchange(req.Exchange)

	// Гейт A: идемпотентность. Повтор ключа возвращает прежний
	// результат, а не ошибку - ретраи и сетевые дубли безопасны.
	existing, err := p.orders.GetByIdempotencyKey(req.IdempotencyKey)
	if err == nil {
		log.Info("duplicate submission", utils.OrderID(existing.OrderID),
			utils.String("idempotency_key", req.IdempotencyKey))
		OrdersSubmitted.WithLabelValues("duplicate").Inc()
		return duplicateResult(existing), nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	gatesPassed := []string{models.GateIdempotency}

	// Гейт B: покрытие стоимости. Считается до лимитов - убыточный
	// ордер не должен расходовать слот rate limit'а.
	feeResult, summary := p.fees.Evaluate(req, limits)
	if !feeResult.Passed {
		return p.reject(log, req, feeResult), nil
	}
	gatesPassed = append(gatesPassed, models.GateFeeCoverage)

	// Гейт C: лимиты темпа
	limitResult, err := p.limiter.Evaluate(req, limits)
	if err != nil {
		return nil, err
	}
	if !limitResult.Passed {
		return p.reject(log, req, limitResult), nil
	}
	gatesPassed = append(gatesPassed, models.GateTradeLimiter)

	// Гейт D: circuit breaker - последним, как самая дорогая проверка
	breakerResult, err := p.breaker.Evaluate(ctx, req, limits)
	if err != nil {
		return nil, err
	}
	if !breakerResult.Passed {
		return p.reject(log, req, breakerResult), nil
	}
	gatesPassed = append(gatesPassed, models.GateCircuitBreaker)

	order := &models.PendingOrder{
		OrderID:        uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		BotID:          req.BotID,
		Exchange:       req.Exchange,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Amount:         req.Amount,
		OrderType:      req.OrderType,
		Price:          req.Price,
		State:          models.OrderStatePending,
		Summary:        summary,
		GatesPassed:    gatesPassed,
	}

	if err := p.orders.Create(order); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotency) {
			// Гонка двух конкурентных submission'ов с одним ключом:
			// UNIQUE constraint пропустил ровно одного, мы - второй.
			// Возвращаем результат победителя.
			winner, getErr := p.orders.GetByIdempotencyKey(req.IdempotencyKey)
			if getErr != nil {
				return nil, fmt.Errorf("idempotency race lookup: %w", getErr)
			}
			OrdersSubmitted.WithLabelValues("duplicate").Inc()
			return duplicateResult(winner), nil
		}
		return nil, fmt.Errorf("persist pending order: %w", err)
	}

	log.Info("order admitted", utils.OrderID(order.OrderID),
		utils.Side(req.Side), utils.Amount(req.Amount),
		utils.Bps("total_cost_bps", summary.TotalCostBps),
		utils.Bps("margin_bps", summary.ProfitMarginBps))
	OrdersSubmitted.WithLabelValues("admitted").Inc()

	return &SubmitResult{
		Success:     true,
		OrderID:     order.OrderID,
		GatesPassed: gatesPassed,
		Summary:     &summary,
	}, nil
}

// reject оформляет отказ гейта в ответ пайплайна. PendingOrder при
// отказе не персистится.
func (p *OrderPipeline) reject(log *utils.Logger, req *models.OrderRequest, result models.GateResult) *SubmitResult {
	log.Info("order rejected", utils.Gate(result.Gate),
		utils.String("reason", result.Reason))
	OrdersSubmitted.WithLabelValues("rejected").Inc()
	GateRejections.WithLabelValues(result.Gate).Inc()

	return &SubmitResult{
		Success: false,
		Gate:    result.Gate,
		Reason:  result.Reason,
		Details: result.Details,
	}
}

// RecordFillExecution сверяет факт исполнения с ожиданиями и
// дописывает fill в леджер.
//
// Дельта expected-vs-actual считается всегда, даже нулевая: это
// обратная связь для калибровки модели комиссий и slippage.
// Realized pnl передаёт вызывающая сторона (только она знает базу
// позиции) - он питает агрегаты drawdown/daily loss/loss streak.
// Ошибка записи в леджер фатальна для вызова: реальное исполнение
// без записи - инцидент, он всплывает наружу, а не глотается.
func (p *OrderPipeline) RecordFillExecution(ctx context.Context, orderID string, filledPrice, filledQty, actualFee, realizedPnl float64, feeCurrency, exchangeTradeID string) (*FillResult, error) {
	order, err := p.orders.GetByOrderID(orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("fill lookup: %w", err)
	}

	slippageBps := utils.SlippageBps(order.Price, filledPrice)
	// Комиссия нормируется на notional по ожидаемой цене: так она
	// сравнима с fee_bps из модели стоимости на допуске.
	// У market-ордера ожидаемой цены нет - notional берётся по
	// фактической цене исполнения, иначе дельта теряется.
	referencePrice := order.Price
	if referencePrice == 0 {
		referencePrice = filledPrice
	}
	actualFeeBps := utils.FeeBps(actualFee, referencePrice, filledQty)

	fill := &models.Fill{
		FillID:          uuid.NewString(),
		ExchangeTradeID: exchangeTradeID,
		OrderID:         order.OrderID,
		UserID:          order.UserID,
		BotID:           order.BotID,
		Exchange:        order.Exchange,
		Symbol:          order.Symbol,
		Side:            order.Side,
		FilledPrice:     filledPrice,
		FilledQty:       filledQty,
		ActualFee:       actualFee,
		FeeCurrency:     feeCurrency,
		Pnl:             realizedPnl,
		Metadata: models.FillMetadata{
			ExpectedPrice:       order.Price,
			FilledPrice:         filledPrice,
			ExpectedFeeBps:      order.Summary.FeeBps,
			ActualFeeBps:        actualFeeBps,
			ExpectedSlippageBps: order.Summary.SlippageBps,
			ActualSlippageBps:   slippageBps,
			ExecutionSummary:    order.Summary,
			OrderType:           order.OrderType,
			GatesPassed:         order.GatesPassed,
		},
	}

	// Запись ограничена по времени: зависший леджер должен вернуть
	// ошибку вызывающей стороне, а не держать соединение вечно
	appendCtx, cancel := context.WithTimeout(ctx, p.cfg.LedgerTimeout)
	defer cancel()

	if err := p.ledger.AppendFill(appendCtx, fill); err != nil {
		LedgerWriteFailures.Inc()
		p.log.Error("ledger write failed",
			utils.OrderID(orderID), utils.BotID(order.BotID), utils.Err(err))
		return nil, err
	}

	if err := p.orders.MarkFilled(orderID, time.Now().UTC()); err != nil {
		// Fill уже durable в леджере - источник истины не пострадал,
		// расхождение состояния ордера чинится ручной сверкой
		p.log.Error("mark filled failed after ledger append",
			utils.OrderID(orderID), utils.Err(err))
	}

	FillsRecorded.WithLabelValues(order.Exchange).Inc()
	SlippageObserved.WithLabelValues(order.Exchange).Observe(slippageBps)

	p.log.Info("fill recorded", utils.OrderID(orderID),
		utils.String("fill_id", fill.FillID),
		utils.Bps("slippage_bps", slippageBps),
		utils.Bps("actual_fee_bps", actualFeeBps))

	return &FillResult{
		Success:      true,
		FillID:       fill.FillID,
		Exchange:     order.Exchange,
		Symbol:       order.Symbol,
		SlippageBps:  slippageBps,
		ActualFeeBps: actualFeeBps,
	}, nil
}

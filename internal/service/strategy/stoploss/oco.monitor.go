package stoploss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/sj-trading/internal/constant"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const persistTimeout = 5 * time.Second

var (
	ErrInvalidConfig        = errors.New("invalid oco config")
	ErrMonitorLocked        = errors.New("oco monitor already running")
	ErrNoPosition           = errors.New("no position")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrDirectionMismatch    = errors.New("position direction mismatch")
	ErrStopLossFailed       = errors.New("stop loss order failed")
)

// PositionCheckError carries the user facing reason the pre-flight check failed.
type PositionCheckError struct {
	Reason  error
	Message string
}

func (e *PositionCheckError) Error() string {
	return e.Message
}

func (e *PositionCheckError) Unwrap() error {
	return e.Reason
}

type Config struct {
	Symbol     string
	Quantity   int64
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Direction  entity.Direction
	LockTTL    time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidConfig)
	}

	switch c.Direction {
	case entity.DirectionLong:
		if !c.StopLoss.LessThan(c.TakeProfit) {
			return fmt.Errorf("%w: stop loss must be below take profit for long", ErrInvalidConfig)
		}
	case entity.DirectionShort:
		if !c.StopLoss.GreaterThan(c.TakeProfit) {
			return fmt.Errorf("%w: stop loss must be above take profit for short", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: direction must be long or short", ErrInvalidConfig)
	}

	return nil
}

// StateKey is the redis key holding the monitor state.
func (c Config) StateKey() string {
	return fmt.Sprintf("oco:%s:%s", c.Symbol, c.Direction)
}

type Orders interface {
	FuturesPosition(ctx context.Context, symbol string) (*entity.Position, error)
	PlaceFuturesOrder(ctx context.Context, code string, req entity.OrderRequest) (*entity.Trade, error)
	CancelOrder(ctx context.Context, orderID string) (*entity.Trade, error)
	ListActiveTrades(ctx context.Context) ([]entity.Trade, error)
}

type Quotes interface {
	Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error)
	Subscribe(ctx context.Context, codes []string, securityType entity.SecurityType, recover bool) error
	AddTickListener(fn func(entity.Tick))
}

type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

type RecordJournal interface {
	AddTradingRecord(ctx context.Context, record entity.TradeRecord) error
}

type EventPublisher interface {
	PublishOCOEvent(ctx context.Context, evt entity.OCOEvent) error
}

// Dependencies of a Monitor. Store, Journal and Events are optional.
type Dependencies struct {
	Orders   Orders
	Quotes   Quotes
	Notifier Notifier
	Store    StateStore
	Journal  RecordJournal
	Events   EventPublisher
}

// Monitor guards an open futures position with a take-profit limit order and
// a price-watched stop-loss. Deals of the broker must be routed to OnDeal.
type Monitor struct {
	cfg  Config
	deps Dependencies
	now  func() time.Time

	mu        sync.Mutex
	running   bool
	state     OCOState
	lockOwner string
	// tickCodes holds the symbol and the delivery contract code it resolves to.
	tickCodes map[string]struct{}

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

func NewMonitor(cfg Config, deps Dependencies) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Orders == nil || deps.Quotes == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("%w: orders, quotes and notifier are required", ErrInvalidConfig)
	}

	return &Monitor{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
		done: make(chan struct{}),
		tickCodes: map[string]struct{}{
			cfg.Symbol: {},
		},
	}, nil
}

// Run verifies the position, places the take-profit and blocks until the
// position is closed or ctx is done. A cancelled run leaves the take-profit working.
func (m *Monitor) Run(ctx context.Context) error {
	cfg := m.cfg
	logger := logrus.WithFields(logrus.Fields{"symbol": cfg.Symbol, "direction": cfg.Direction})

	m.deps.Notifier.Notify(ctx, "Strategy Started", fmt.Sprintf("Monitoring %s (%s)\nQty: %d\nSL: %s\nTP: %s",
		cfg.Symbol, strings.ToUpper(string(cfg.Direction)), cfg.Quantity, cfg.StopLoss.String(), cfg.TakeProfit.String()))
	m.track(ctx, entity.OCOEventStarted, "")

	if m.deps.Store != nil {
		m.lockOwner = uuid.NewString()
		acquired, err := m.deps.Store.AcquireProcessingLock(ctx, cfg.StateKey(), cfg.LockTTL, m.lockOwner)
		if err != nil {
			return fmt.Errorf("acquire oco lock: %w", err)
		}
		if !acquired {
			return fmt.Errorf("%w for %s", ErrMonitorLocked, cfg.Symbol)
		}
		defer m.releaseLock()
	}

	position, err := m.checkPosition(ctx)
	if err != nil {
		m.deps.Notifier.Notify(ctx, "❌ Position Check Failed", err.Error())
		return err
	}
	logger.Infof("position verified: %s %d @ %s", strings.ToUpper(string(cfg.Direction)), position.Quantity, position.Price.String())

	contract, err := m.deps.Quotes.Contract(ctx, entity.SecurityTypeFuture, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("resolve contract %s: %w", cfg.Symbol, err)
	}
	if contract != nil && contract.Code != "" {
		m.mu.Lock()
		m.tickCodes[contract.Code] = struct{}{}
		m.mu.Unlock()
		logger = logger.WithField("contract", contract.Code)
	}

	m.deps.Quotes.AddTickListener(m.OnTick)

	if err := m.start(ctx, *position); err != nil {
		m.deps.Notifier.Notify(ctx, "❌ Failed to place TP Order", err.Error())
		return err
	}

	if err := m.deps.Quotes.Subscribe(ctx, []string{cfg.Symbol}, entity.SecurityTypeFuture, false); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Symbol, err)
	}
	logger.Info("listening for ticks")

	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		logger.Info("oco monitor interrupted, take profit order left working")
		return nil
	}
}

// Done is closed once the position has been fully exited or the stop-loss could not be sent.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) State() OCOState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// checkPosition is the pre-flight safety check. No order is placed unless it passes.
func (m *Monitor) checkPosition(ctx context.Context) (*entity.Position, error) {
	cfg := m.cfg

	position, err := m.deps.Orders.FuturesPosition(ctx, cfg.Symbol)
	if err != nil {
		return nil, err
	}
	if position == nil || position.Quantity == 0 {
		return nil, &PositionCheckError{
			Reason:  ErrNoPosition,
			Message: fmt.Sprintf("No position found for %s. Strategy aborted.", cfg.Symbol),
		}
	}

	held := position.Quantity
	if held < 0 {
		held = -held
	}
	if held < cfg.Quantity {
		return nil, &PositionCheckError{
			Reason:  ErrInsufficientPosition,
			Message: fmt.Sprintf("Insufficient position. Held: %d, Required: %d", held, cfg.Quantity),
		}
	}

	heldDirection := entity.DirectionLong
	if position.Direction == entity.ActionSell {
		heldDirection = entity.DirectionShort
	}
	if heldDirection != cfg.Direction {
		return nil, &PositionCheckError{
			Reason:  ErrDirectionMismatch,
			Message: fmt.Sprintf("Position direction mismatch. Held: %s, Strategy: %s", heldDirection, cfg.Direction),
		}
	}

	return position, nil
}

// start records the entry and places the take-profit, reusing a still working
// take-profit from a previous run of the same monitor.
func (m *Monitor) start(ctx context.Context, position entity.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = OCOState{
		EntryPrice: position.Price,
		EntryDate:  m.now().Format(constant.DateLayout),
	}

	if resumed, ok := m.resumableStateLocked(ctx); ok {
		m.state = resumed
		m.running = true
		logrus.WithFields(logrus.Fields{
			"symbol":   m.cfg.Symbol,
			"order_id": resumed.TakeProfitOrderID,
		}).Info("resumed oco monitor with working take profit order")
		m.persistLocked()
		return nil
	}

	trade, err := m.deps.Orders.PlaceFuturesOrder(ctx, m.cfg.Symbol, entity.OrderRequest{
		Action:    m.cfg.Direction.EntryAction().Opposite(),
		Price:     m.cfg.TakeProfit,
		Quantity:  m.cfg.Quantity,
		PriceType: entity.PriceTypeLimit,
		OrderType: entity.OrderTypeROD,
		Source:    "oco_take_profit",
	})
	if err != nil {
		return err
	}

	m.state.TakeProfitOrderID = trade.Order.ID
	m.running = true
	m.persistLocked()

	m.deps.Notifier.Notify(ctx, "TP Order Placed", fmt.Sprintf("Order ID: %s\nPrice: %s", trade.Order.ID, m.cfg.TakeProfit.String()))
	m.track(ctx, entity.OCOEventTakeProfitPlaced, trade.Order.ID)

	return nil
}

func (m *Monitor) resumableStateLocked(ctx context.Context) (OCOState, bool) {
	if m.deps.Store == nil {
		return OCOState{}, false
	}

	persisted, found, err := m.deps.Store.Load(ctx, m.cfg.StateKey())
	if err != nil {
		logrus.WithField("key", m.cfg.StateKey()).Warnf("failed to load oco state: %v", err)
		return OCOState{}, false
	}
	if !found || persisted.Closed || persisted.Triggered || persisted.TakeProfitOrderID == "" {
		return OCOState{}, false
	}

	active, err := m.deps.Orders.ListActiveTrades(ctx)
	if err != nil {
		logrus.Warnf("failed to list active trades: %v", err)
		return OCOState{}, false
	}
	for _, trade := range active {
		if trade.Order.ID == persisted.TakeProfitOrderID {
			return persisted, true
		}
	}

	return OCOState{}, false
}

// OnTick fires the stop-loss once when the price of the monitored symbol reaches the stop.
func (m *Monitor) OnTick(tick entity.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tickCodes[tick.Code]; !ok {
		return
	}
	if !m.running || m.state.Triggered || m.state.Closed {
		return
	}

	price := tick.Close
	var hit bool
	var comparison string
	if m.cfg.Direction == entity.DirectionLong {
		hit = price.LessThanOrEqual(m.cfg.StopLoss)
		comparison = "<="
	} else {
		hit = price.GreaterThanOrEqual(m.cfg.StopLoss)
		comparison = ">="
	}
	if !hit {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	m.state.Triggered = true
	m.persistLocked()

	m.deps.Notifier.Notify(ctx, "Stop Loss Triggered", fmt.Sprintf("Price %s %s SL %s", price.String(), comparison, m.cfg.StopLoss.String()))
	m.track(ctx, entity.OCOEventStopTriggered, "")

	if m.state.TakeProfitOrderID != "" {
		if _, err := m.deps.Orders.CancelOrder(ctx, m.state.TakeProfitOrderID); err != nil {
			logrus.WithField("order_id", m.state.TakeProfitOrderID).Errorf("failed to cancel take profit: %v", err)
		}
	}

	remaining := m.cfg.Quantity - m.state.ExitQuantity
	if remaining <= 0 {
		return
	}

	trade, err := m.deps.Orders.PlaceFuturesOrder(ctx, m.cfg.Symbol, entity.OrderRequest{
		Action:    m.cfg.Direction.EntryAction().Opposite(),
		Price:     price,
		Quantity:  remaining,
		PriceType: entity.PriceTypeMarket,
		OrderType: entity.OrderTypeROD,
		Source:    "oco_stop_loss",
	})
	if err != nil {
		m.deps.Notifier.Notify(ctx, "❌ SL Order Execution Failed", err.Error())
		m.finishLocked(fmt.Errorf("%w: %v", ErrStopLossFailed, err))
		return
	}

	m.state.StopLossOrderID = trade.Order.ID
	m.persistLocked()
	m.deps.Notifier.Notify(ctx, "SL Order Sent", fmt.Sprintf("Order ID: %s\nAction: %s, Qty: %d", trade.Order.ID, trade.Order.Action, remaining))
}

// OnDeal accumulates fills of the take-profit and stop-loss orders and closes
// the monitor once the whole quantity has been exited.
func (m *Monitor) OnDeal(deal entity.Deal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || m.state.Closed || deal.OrderID == "" {
		return
	}

	var title string
	switch deal.OrderID {
	case m.state.TakeProfitOrderID:
		title = "Take Profit Filled"
	case m.state.StopLossOrderID:
		title = "Stop Loss Filled"
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	m.state.ExitQuantity += deal.Quantity
	m.state.ExitNotional = m.state.ExitNotional.Add(deal.Price.Mul(decimal.NewFromInt(deal.Quantity)))
	m.deps.Notifier.Notify(ctx, title, fmt.Sprintf("Order %s filled %d at %s.", deal.OrderID, deal.Quantity, deal.Price.String()))

	if m.state.ExitQuantity < m.cfg.Quantity {
		m.persistLocked()
		return
	}

	exitPrice := m.state.ExitNotional.Div(decimal.NewFromInt(m.state.ExitQuantity))
	record := entity.NewTradeRecord(
		m.cfg.Symbol,
		m.cfg.Quantity,
		m.cfg.Direction,
		m.state.EntryDate,
		m.now().Format(constant.DateLayout),
		m.state.EntryPrice,
		exitPrice,
	)

	m.state.Closed = true
	m.persistLocked()
	m.logRecordLocked(ctx, record)

	if m.deps.Events != nil {
		evt := entity.OCOEvent{Type: entity.OCOEventClosed, Symbol: m.cfg.Symbol, Direction: m.cfg.Direction, OrderID: deal.OrderID, Record: &record}
		if err := m.deps.Events.PublishOCOEvent(ctx, evt); err != nil {
			logrus.Warnf("failed to publish oco event: %v", err)
		}
	}
	metrics.OCOEventsTotal.WithLabelValues(string(entity.OCOEventClosed)).Inc()

	m.finishLocked(nil)
}

func (m *Monitor) logRecordLocked(ctx context.Context, record entity.TradeRecord) {
	if m.deps.Journal == nil {
		return
	}

	if err := m.deps.Journal.AddTradingRecord(ctx, record); err != nil {
		m.deps.Notifier.Notify(ctx, "❌ Log Failed", err.Error())
		return
	}
	m.deps.Notifier.Notify(ctx, "Log Success", "Trade recorded.")
}

func (m *Monitor) finishLocked(err error) {
	m.running = false
	m.doneOnce.Do(func() {
		m.err = err
		close(m.done)
	})
}

func (m *Monitor) persistLocked() {
	if m.deps.Store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	m.state.UpdatedAt = m.now().UTC()
	if err := m.deps.Store.Save(ctx, m.cfg.StateKey(), m.state); err != nil {
		logrus.WithField("key", m.cfg.StateKey()).Errorf("failed to persist oco state: %v", err)
	}
}

func (m *Monitor) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.deps.Store.ReleaseProcessingLock(ctx, m.cfg.StateKey(), m.lockOwner); err != nil {
		logrus.WithField("key", m.cfg.StateKey()).Errorf("failed to release oco lock: %v", err)
	}
}

func (m *Monitor) track(ctx context.Context, eventType entity.OCOEventType, orderID string) {
	metrics.OCOEventsTotal.WithLabelValues(string(eventType)).Inc()

	if m.deps.Events == nil {
		return
	}
	evt := entity.OCOEvent{Type: eventType, Symbol: m.cfg.Symbol, Direction: m.cfg.Direction, OrderID: orderID}
	if err := m.deps.Events.PublishOCOEvent(ctx, evt); err != nil {
		logrus.Warnf("failed to publish oco event: %v", err)
	}
}

package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrStockContractNotFound   = errors.New("stock contract not found")
	ErrFuturesContractNotFound = errors.New("futures contract not found")
	ErrOrderNotFound           = errors.New("order not found")
)

// OrderNotFoundError is returned when an order id is not among the broker's trades.
type OrderNotFoundError struct {
	ID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order ID %s not found.", e.ID)
}

func (e *OrderNotFoundError) Unwrap() error {
	return ErrOrderNotFound
}

// Broker is the part of the broker the order manager drives.
type Broker interface {
	entity.OrderAPI
	Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error)
}

type Journal interface {
	Create(ctx context.Context, orderHistory *entity.OrderHistory) error
	UpdateStatus(ctx context.Context, orderHistory *entity.OrderHistory) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, evt entity.OrderEvent) error
}

type Manager struct {
	broker     Broker
	journal    Journal
	publisher  EventPublisher
	simulation bool
}

// NewManager builds an order manager. journal and publisher are optional.
func NewManager(broker Broker, journal Journal, publisher EventPublisher, simulation bool) *Manager {
	return &Manager{
		broker:     broker,
		journal:    journal,
		publisher:  publisher,
		simulation: simulation,
	}
}

func (m *Manager) Simulation() bool {
	return m.simulation
}

// PlaceStockOrder places a stock order. Price type defaults to LMT and order type to ROD.
func (m *Manager) PlaceStockOrder(ctx context.Context, code string, req entity.OrderRequest) (*entity.Trade, error) {
	contract, err := m.broker.Contract(ctx, entity.SecurityTypeStock, code)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, fmt.Errorf("%w for code: %s", ErrStockContractNotFound, code)
	}

	req.OctType = ""
	return m.place(ctx, *contract, withDefaults(req))
}

// PlaceFuturesOrder places a futures order. Oct type defaults to Auto on top of the stock defaults.
func (m *Manager) PlaceFuturesOrder(ctx context.Context, code string, req entity.OrderRequest) (*entity.Trade, error) {
	contract, err := m.broker.Contract(ctx, entity.SecurityTypeFuture, code)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, fmt.Errorf("%w for code: %s", ErrFuturesContractNotFound, code)
	}

	req = withDefaults(req)
	if req.OctType == "" {
		req.OctType = entity.OctTypeAuto
	}
	return m.place(ctx, *contract, req)
}

func (m *Manager) UpdateStatus(ctx context.Context) error {
	return m.broker.UpdateStatus(ctx)
}

func (m *Manager) ListTrades(ctx context.Context) ([]entity.Trade, error) {
	if err := m.UpdateStatus(ctx); err != nil {
		return nil, err
	}
	return m.broker.ListTrades(ctx)
}

func (m *Manager) ListActiveTrades(ctx context.Context) ([]entity.Trade, error) {
	trades, err := m.ListTrades(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]entity.Trade, 0, len(trades))
	for _, trade := range trades {
		if trade.Status.Status.IsActive() {
			active = append(active, trade)
		}
	}
	return active, nil
}

func (m *Manager) UpdateOrderPrice(ctx context.Context, orderID string, price decimal.Decimal) (*entity.Trade, error) {
	trade, err := m.findTrade(ctx, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := m.broker.UpdateOrder(ctx, *trade, price)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"order_id": orderID, "price": price.String()}).Info("order price updated")
	m.journalStatus(ctx, *updated)
	m.publish(ctx, entity.OrderEventUpdated, *updated)

	return updated, nil
}

func (m *Manager) CancelOrder(ctx context.Context, orderID string) (*entity.Trade, error) {
	trade, err := m.findTrade(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return m.cancel(ctx, *trade)
}

// CancelAllOrders cancels every active trade and returns how many were cancelled.
func (m *Manager) CancelAllOrders(ctx context.Context) (int, error) {
	trades, err := m.ListActiveTrades(ctx)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var errs []error
	for _, trade := range trades {
		if _, err := m.cancel(ctx, trade); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", trade.Order.ID, err))
			continue
		}
		cancelled++
	}

	return cancelled, errors.Join(errs...)
}

// FuturesPosition returns the open futures position of symbol, or nil when flat.
func (m *Manager) FuturesPosition(ctx context.Context, symbol string) (*entity.Position, error) {
	positions, err := m.broker.ListPositions(ctx, entity.SecurityTypeFuture)
	if err != nil {
		return nil, err
	}

	codes := map[string]struct{}{symbol: {}}
	contract, err := m.broker.Contract(ctx, entity.SecurityTypeFuture, symbol)
	if err == nil && contract != nil {
		codes[contract.Code] = struct{}{}
	}

	for _, position := range positions {
		if _, ok := codes[position.Code]; ok {
			found := position
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Manager) place(ctx context.Context, contract entity.Contract, req entity.OrderRequest) (*entity.Trade, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	logger := logrus.WithFields(logrus.Fields{
		"request_id":    req.RequestID,
		"code":          contract.Code,
		"security_type": contract.SecurityType,
		"action":        req.Action,
		"price":         req.Price.String(),
		"quantity":      req.Quantity,
		"simulation":    m.simulation,
	})

	trade, err := m.broker.PlaceOrder(ctx, contract, req)
	if err != nil {
		logger.Errorf("place order failed: %v", err)
		m.journalFailure(ctx, contract, req, err)
		return nil, err
	}

	logger.WithField("order_id", trade.Order.ID).Info("order placed")
	metrics.OrdersTotal.WithLabelValues(string(contract.SecurityType), string(req.Action)).Inc()
	m.journalPlacement(ctx, req, *trade)
	m.publish(ctx, entity.OrderEventPlaced, *trade)

	return trade, nil
}

func (m *Manager) cancel(ctx context.Context, trade entity.Trade) (*entity.Trade, error) {
	cancelled, err := m.broker.CancelOrder(ctx, trade)
	if err != nil {
		return nil, err
	}

	logrus.WithField("order_id", trade.Order.ID).Info("order cancelled")
	m.journalStatus(ctx, *cancelled)
	m.publish(ctx, entity.OrderEventCancelled, *cancelled)

	return cancelled, nil
}

func (m *Manager) findTrade(ctx context.Context, orderID string) (*entity.Trade, error) {
	trades, err := m.ListTrades(ctx)
	if err != nil {
		return nil, err
	}

	for _, trade := range trades {
		if trade.Order.ID == orderID {
			found := trade
			return &found, nil
		}
	}
	return nil, &OrderNotFoundError{ID: orderID}
}

func (m *Manager) journalPlacement(ctx context.Context, req entity.OrderRequest, trade entity.Trade) {
	if m.journal == nil {
		return
	}

	now := time.Now().UTC()
	history := &entity.OrderHistory{
		ID:           uuid.NewString(),
		RequestID:    req.RequestID,
		OrderID:      trade.Order.ID,
		Seqno:        trade.Order.Seqno,
		Code:         trade.Contract.Code,
		SecurityType: trade.Contract.SecurityType,
		Action:       req.Action,
		PriceType:    req.PriceType,
		OrderType:    req.OrderType,
		Price:        req.Price,
		Quantity:     req.Quantity,
		Status:       trade.Status.Status,
		Simulation:   m.simulation,
		Source:       null.NewString(req.Source, req.Source != ""),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.journal.Create(ctx, history); err != nil {
		logrus.WithField("order_id", trade.Order.ID).Errorf("failed to journal order: %v", err)
	}
}

func (m *Manager) journalFailure(ctx context.Context, contract entity.Contract, req entity.OrderRequest, cause error) {
	if m.journal == nil {
		return
	}

	now := time.Now().UTC()
	history := &entity.OrderHistory{
		ID:           uuid.NewString(),
		RequestID:    req.RequestID,
		Code:         contract.Code,
		SecurityType: contract.SecurityType,
		Action:       req.Action,
		PriceType:    req.PriceType,
		OrderType:    req.OrderType,
		Price:        req.Price,
		Quantity:     req.Quantity,
		Status:       entity.OrderStatusFailed,
		Simulation:   m.simulation,
		Source:       null.NewString(req.Source, req.Source != ""),
		ErrorMessage: null.StringFrom(cause.Error()),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.journal.Create(ctx, history); err != nil {
		logrus.WithField("request_id", req.RequestID).Errorf("failed to journal order failure: %v", err)
	}
}

func (m *Manager) journalStatus(ctx context.Context, trade entity.Trade) {
	if m.journal == nil {
		return
	}

	history := &entity.OrderHistory{
		OrderID:      trade.Order.ID,
		Price:        trade.DisplayPrice(),
		Status:       trade.Status.Status,
		ErrorMessage: null.NewString(trade.Status.Message, trade.Status.Message != ""),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := m.journal.UpdateStatus(ctx, history); err != nil {
		// orders placed outside this tool have no journal row
		logrus.WithField("order_id", trade.Order.ID).Debugf("journal status not updated: %v", err)
	}
}

func (m *Manager) publish(ctx context.Context, eventType entity.OrderEventType, trade entity.Trade) {
	if m.publisher == nil {
		return
	}

	evt := entity.OrderEvent{
		Type:       eventType,
		Trade:      trade,
		Simulation: m.simulation,
		OccurredAt: time.Now().UTC(),
	}
	if err := m.publisher.PublishOrderEvent(ctx, evt); err != nil {
		logrus.WithField("order_id", trade.Order.ID).Warnf("failed to publish order event: %v", err)
	}
}

func withDefaults(req entity.OrderRequest) entity.OrderRequest {
	if req.PriceType == "" {
		req.PriceType = entity.PriceTypeLimit
	}
	if req.OrderType == "" {
		req.OrderType = entity.OrderTypeROD
	}
	return req
}

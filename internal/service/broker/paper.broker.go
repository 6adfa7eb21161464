package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const paperDealBuffer = 256

type paperPosition struct {
	net      int64
	avgPrice decimal.Decimal
}

// PaperBroker simulates order execution locally. Resting orders are matched
// against incoming ticks; market data can come from an upstream quote API or
// be fed directly with Feed.
type PaperBroker struct {
	mu          sync.Mutex
	upstream    entity.QuoteAPI
	tickHandler func(entity.Tick)
	dealHandler func(entity.Deal)
	trades      map[string]*entity.Trade
	tradeOrder  []string
	positions   map[string]*paperPosition
	lastPrice   map[string]decimal.Decimal
	seq         int64
	now         func() time.Time

	deals     chan entity.Deal
	closeOnce sync.Once
	done      chan struct{}
}

func NewPaperBroker(upstream entity.QuoteAPI) *PaperBroker {
	b := &PaperBroker{
		upstream:  upstream,
		trades:    make(map[string]*entity.Trade),
		positions: make(map[string]*paperPosition),
		lastPrice: make(map[string]decimal.Decimal),
		now:       time.Now,
		deals:     make(chan entity.Deal, paperDealBuffer),
		done:      make(chan struct{}),
	}

	if upstream != nil {
		upstream.SetTickHandler(b.Feed)
	}

	go b.dispatchDeals()

	return b
}

// dispatchDeals delivers fills on their own goroutine, as a live broker callback would.
func (b *PaperBroker) dispatchDeals() {
	for {
		select {
		case deal := <-b.deals:
			b.mu.Lock()
			handler := b.dealHandler
			b.mu.Unlock()
			if handler != nil {
				handler(deal)
			}
		case <-b.done:
			return
		}
	}
}

func (b *PaperBroker) Login(ctx context.Context) error {
	logrus.Info("paper broker session started")
	return nil
}

func (b *PaperBroker) ActivateCA(ctx context.Context, caPath, caPassword string) error {
	return nil
}

func (b *PaperBroker) Logout(ctx context.Context) error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	return nil
}

func (b *PaperBroker) Version(ctx context.Context) (string, error) {
	return "paper", nil
}

func (b *PaperBroker) Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error) {
	if b.upstream != nil {
		return b.upstream.Contract(ctx, securityType, code)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	return &entity.Contract{
		Code:         code,
		Symbol:       code,
		Name:         code,
		SecurityType: securityType,
		Exchange:     "PAPER",
	}, nil
}

func (b *PaperBroker) Ticks(ctx context.Context, contract entity.Contract, date string) ([]entity.Tick, error) {
	if b.upstream != nil {
		return b.upstream.Ticks(ctx, contract, date)
	}
	return []entity.Tick{}, nil
}

func (b *PaperBroker) Subscribe(ctx context.Context, contract entity.Contract) error {
	if b.upstream != nil {
		return b.upstream.Subscribe(ctx, contract)
	}
	return nil
}

func (b *PaperBroker) Unsubscribe(ctx context.Context, contract entity.Contract) error {
	if b.upstream != nil {
		return b.upstream.Unsubscribe(ctx, contract)
	}
	return nil
}

func (b *PaperBroker) SetTickHandler(handler func(entity.Tick)) {
	b.mu.Lock()
	b.tickHandler = handler
	b.mu.Unlock()
}

func (b *PaperBroker) SetDealHandler(handler func(entity.Deal)) {
	b.mu.Lock()
	b.dealHandler = handler
	b.mu.Unlock()
}

// Feed matches resting orders against the tick and then forwards it to the tick handler.
func (b *PaperBroker) Feed(tick entity.Tick) {
	b.mu.Lock()
	b.lastPrice[tick.Code] = tick.Close
	fills := make([]entity.Deal, 0)
	for _, id := range b.tradeOrder {
		trade := b.trades[id]
		if trade.Contract.Code != tick.Code || !trade.Status.Status.IsActive() {
			continue
		}
		if deal, ok := b.matchLocked(trade, tick.Close); ok {
			fills = append(fills, deal)
		}
	}
	handler := b.tickHandler
	b.mu.Unlock()

	b.emit(fills...)

	if handler != nil {
		handler(tick)
	}
}

func (b *PaperBroker) PlaceOrder(ctx context.Context, contract entity.Contract, order entity.OrderRequest) (*entity.Trade, error) {
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if order.PriceType == entity.PriceTypeLimit && !order.Price.IsPositive() {
		return nil, fmt.Errorf("%w: limit price must be positive", ErrInvalidOrder)
	}

	b.mu.Lock()
	b.seq++
	trade := &entity.Trade{
		Contract: contract,
		Order: entity.Order{
			ID:        strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
			Seqno:     fmt.Sprintf("%06d", b.seq),
			Action:    order.Action,
			Price:     order.Price,
			Quantity:  order.Quantity,
			PriceType: order.PriceType,
			OrderType: order.OrderType,
			OctType:   order.OctType,
		},
		Status: entity.TradeStatus{
			Status:    entity.OrderStatusSubmitted,
			UpdatedAt: b.now(),
		},
	}
	b.trades[trade.Order.ID] = trade
	b.tradeOrder = append(b.tradeOrder, trade.Order.ID)

	var fills []entity.Deal
	if last, ok := b.lastPrice[contract.Code]; ok {
		if deal, filled := b.matchLocked(trade, last); filled {
			fills = append(fills, deal)
		}
	}
	snapshot := *trade
	b.mu.Unlock()

	b.emit(fills...)

	return &snapshot, nil
}

func (b *PaperBroker) UpdateStatus(ctx context.Context) error {
	return nil
}

func (b *PaperBroker) ListTrades(ctx context.Context) ([]entity.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trades := make([]entity.Trade, 0, len(b.tradeOrder))
	for _, id := range b.tradeOrder {
		trades = append(trades, *b.trades[id])
	}
	return trades, nil
}

func (b *PaperBroker) UpdateOrder(ctx context.Context, trade entity.Trade, price decimal.Decimal) (*entity.Trade, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}

	b.mu.Lock()
	existing, ok := b.trades[trade.Order.ID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, trade.Order.ID)
	}
	if !existing.Status.Status.IsActive() {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderNotActive, trade.Order.ID, existing.Status.Status)
	}

	existing.Status.ModifiedPrice = price
	existing.Status.UpdatedAt = b.now()

	var fills []entity.Deal
	if last, ok := b.lastPrice[existing.Contract.Code]; ok {
		if deal, filled := b.matchLocked(existing, last); filled {
			fills = append(fills, deal)
		}
	}
	snapshot := *existing
	b.mu.Unlock()

	b.emit(fills...)

	return &snapshot, nil
}

func (b *PaperBroker) CancelOrder(ctx context.Context, trade entity.Trade) (*entity.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.trades[trade.Order.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, trade.Order.ID)
	}
	if !existing.Status.Status.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderNotActive, trade.Order.ID, existing.Status.Status)
	}

	existing.Status.Status = entity.OrderStatusCancelled
	existing.Status.CancelQuantity = existing.Order.Quantity - existing.Status.DealQuantity
	existing.Status.UpdatedAt = b.now()

	snapshot := *existing
	return &snapshot, nil
}

func (b *PaperBroker) ListPositions(ctx context.Context, securityType entity.SecurityType) ([]entity.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]entity.Position, 0, len(b.positions))
	for code, pos := range b.positions {
		if pos.net == 0 {
			continue
		}

		direction := entity.ActionBuy
		quantity := pos.net
		if pos.net < 0 {
			direction = entity.ActionSell
			quantity = -pos.net
		}

		positions = append(positions, entity.Position{
			Code:      code,
			Direction: direction,
			Quantity:  quantity,
			Price:     pos.avgPrice,
			LastPrice: b.lastPrice[code],
		})
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Code < positions[j].Code
	})

	return positions, nil
}

// SeedPosition opens a position without an order, for sessions that start with existing holdings.
func (b *PaperBroker) SeedPosition(code string, direction entity.Action, quantity int64, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	net := quantity
	if direction == entity.ActionSell {
		net = -quantity
	}
	b.positions[code] = &paperPosition{net: net, avgPrice: price}
}

// matchLocked fills the whole remaining quantity of trade when price crosses its limit.
func (b *PaperBroker) matchLocked(trade *entity.Trade, price decimal.Decimal) (entity.Deal, bool) {
	limit := trade.DisplayPrice()
	if trade.Order.PriceType == entity.PriceTypeLimit {
		if trade.Order.Action == entity.ActionBuy && price.GreaterThan(limit) {
			return entity.Deal{}, false
		}
		if trade.Order.Action == entity.ActionSell && price.LessThan(limit) {
			return entity.Deal{}, false
		}
	}

	remaining := trade.Order.Quantity - trade.Status.DealQuantity
	if remaining <= 0 {
		return entity.Deal{}, false
	}

	now := b.now()
	deal := entity.Deal{
		OrderID:      trade.Order.ID,
		Seqno:        trade.Order.Seqno,
		Code:         trade.Contract.Code,
		SecurityType: trade.Contract.SecurityType,
		Action:       trade.Order.Action,
		Price:        price,
		Quantity:     remaining,
		Timestamp:    now,
	}

	trade.Status.DealQuantity += remaining
	trade.Status.Status = entity.OrderStatusFilled
	trade.Status.Deals = append(trade.Status.Deals, deal)
	trade.Status.UpdatedAt = now

	b.applyFillLocked(deal)

	return deal, true
}

func (b *PaperBroker) applyFillLocked(deal entity.Deal) {
	pos, ok := b.positions[deal.Code]
	if !ok {
		pos = &paperPosition{}
		b.positions[deal.Code] = pos
	}

	signed := deal.Quantity
	if deal.Action == entity.ActionSell {
		signed = -deal.Quantity
	}

	switch {
	case pos.net == 0 || (pos.net > 0) == (signed > 0):
		// opening or adding keeps a weighted average entry
		total := decimal.NewFromInt(abs(pos.net) + deal.Quantity)
		notional := pos.avgPrice.Mul(decimal.NewFromInt(abs(pos.net))).Add(deal.Price.Mul(decimal.NewFromInt(deal.Quantity)))
		pos.avgPrice = notional.Div(total)
		pos.net += signed
	case abs(signed) <= abs(pos.net):
		pos.net += signed
		if pos.net == 0 {
			pos.avgPrice = decimal.Zero
		}
	default:
		pos.net += signed
		pos.avgPrice = deal.Price
	}
}

func (b *PaperBroker) emit(deals ...entity.Deal) {
	for _, deal := range deals {
		select {
		case b.deals <- deal:
		case <-b.done:
			return
		}
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

package entity

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

type BrokerName string

const (
	BrokerGateway BrokerName = "gateway"
	BrokerPaper   BrokerName = "paper"
)

type SecurityType string

const (
	SecurityTypeStock  SecurityType = "STK"
	SecurityTypeFuture SecurityType = "FUT"
)

// Market returns the tick buffer bucket for the security type.
func (s SecurityType) Market() Market {
	if s == SecurityTypeFuture {
		return MarketFOP
	}
	return MarketStock
}

// ParseSecurityType accepts the CLI spellings future/futures/fut and stock/stk.
func ParseSecurityType(raw string) (SecurityType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "future", "futures", "fut", "fop":
		return SecurityTypeFuture, true
	case "stock", "stocks", "stk":
		return SecurityTypeStock, true
	default:
		return "", false
	}
}

type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
)

func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

func ParseAction(raw string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return ActionBuy, true
	case "sell":
		return ActionSell, true
	default:
		return "", false
	}
}

type PriceType string

const (
	PriceTypeLimit  PriceType = "LMT"
	PriceTypeMarket PriceType = "MKT"
)

type OrderType string

const (
	OrderTypeROD OrderType = "ROD"
	OrderTypeIOC OrderType = "IOC"
	OrderTypeFOK OrderType = "FOK"
)

type OctType string

const (
	OctTypeAuto     OctType = "Auto"
	OctTypeNew      OctType = "New"
	OctTypeCover    OctType = "Cover"
	OctTypeDayTrade OctType = "DayTrade"
)

type OrderStatus string

const (
	OrderStatusPendingSubmit OrderStatus = "PendingSubmit"
	OrderStatusPreSubmitted  OrderStatus = "PreSubmitted"
	OrderStatusSubmitted     OrderStatus = "Submitted"
	OrderStatusPartFilled    OrderStatus = "PartFilled"
	OrderStatusFilled        OrderStatus = "Filled"
	OrderStatusCancelled     OrderStatus = "Cancelled"
	OrderStatusFailed        OrderStatus = "Failed"
)

// IsActive reports whether the order can still be filled, modified or cancelled.
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderStatusPendingSubmit, OrderStatusPreSubmitted, OrderStatusSubmitted, OrderStatusPartFilled:
		return true
	default:
		return false
	}
}

type QuoteAPI interface {
	// Contract returns nil without error when the code is unknown to the broker.
	Contract(ctx context.Context, securityType SecurityType, code string) (*Contract, error)
	Ticks(ctx context.Context, contract Contract, date string) ([]Tick, error)
	Subscribe(ctx context.Context, contract Contract) error
	Unsubscribe(ctx context.Context, contract Contract) error
	SetTickHandler(handler func(Tick))
}

type OrderAPI interface {
	PlaceOrder(ctx context.Context, contract Contract, order OrderRequest) (*Trade, error)
	UpdateStatus(ctx context.Context) error
	ListTrades(ctx context.Context) ([]Trade, error)
	UpdateOrder(ctx context.Context, trade Trade, price decimal.Decimal) (*Trade, error)
	CancelOrder(ctx context.Context, trade Trade) (*Trade, error)
	ListPositions(ctx context.Context, securityType SecurityType) ([]Position, error)
	SetDealHandler(handler func(Deal))
}

type Broker interface {
	QuoteAPI
	OrderAPI
	Login(ctx context.Context) error
	ActivateCA(ctx context.Context, caPath, caPassword string) error
	Logout(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type OrderRequest struct {
	RequestID string          `json:"request_id"`
	Action    Action          `json:"action"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	PriceType PriceType       `json:"price_type"`
	OrderType OrderType       `json:"order_type"`
	OctType   OctType         `json:"octype,omitempty"`
	Source    string          `json:"source,omitempty"`
}

type Order struct {
	ID        string          `json:"id"`
	Seqno     string          `json:"seqno"`
	Action    Action          `json:"action"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	PriceType PriceType       `json:"price_type"`
	OrderType OrderType       `json:"order_type"`
	OctType   OctType         `json:"octype,omitempty"`
}

type TradeStatus struct {
	Status         OrderStatus     `json:"status"`
	ModifiedPrice  decimal.Decimal `json:"modified_price"`
	DealQuantity   int64           `json:"deal_quantity"`
	CancelQuantity int64           `json:"cancel_quantity"`
	Message        string          `json:"msg"`
	Deals          []Deal          `json:"deals,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Trade is the broker view of an order together with its latest status.
type Trade struct {
	Contract Contract    `json:"contract"`
	Order    Order       `json:"order"`
	Status   TradeStatus `json:"status"`
}

// DisplayPrice is the modified price when the order was repriced, the order price otherwise.
func (t Trade) DisplayPrice() decimal.Decimal {
	if !t.Status.ModifiedPrice.IsZero() {
		return t.Status.ModifiedPrice
	}
	return t.Order.Price
}

type Deal struct {
	OrderID      string          `json:"order_id"`
	Seqno        string          `json:"seqno"`
	Code         string          `json:"code"`
	SecurityType SecurityType    `json:"security_type"`
	Action       Action          `json:"action"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	Timestamp    time.Time       `json:"ts"`
}

type Position struct {
	Code      string          `json:"code"`
	Direction Action          `json:"direction"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	LastPrice decimal.Decimal `json:"last_price"`
}

type OrderHistory struct {
	ID           string          `db:"id" json:"id"`
	RequestID    string          `db:"request_id" json:"request_id"`
	OrderID      string          `db:"order_id" json:"order_id"`
	Seqno        string          `db:"seqno" json:"seqno"`
	Code         string          `db:"code" json:"code"`
	SecurityType SecurityType    `db:"security_type" json:"security_type"`
	Action       Action          `db:"action" json:"action"`
	PriceType    PriceType       `db:"price_type" json:"price_type"`
	OrderType    OrderType       `db:"order_type" json:"order_type"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	Status       OrderStatus     `db:"status" json:"status"`
	Simulation   bool            `db:"simulation" json:"simulation"`
	Source       null.String     `db:"source" json:"source"`
	ErrorMessage null.String     `db:"error_message" json:"error_message"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

func (o OrderHistory) TableName() string {
	return "order_histories"
}

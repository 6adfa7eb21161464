package entity

import (
	"context"
	"time"
)

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

type OrderEventType string

const (
	OrderEventPlaced    OrderEventType = "placed"
	OrderEventUpdated   OrderEventType = "updated"
	OrderEventCancelled OrderEventType = "cancelled"
)

type OrderEvent struct {
	Type       OrderEventType `json:"type"`
	Trade      Trade          `json:"trade"`
	Simulation bool           `json:"simulation"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type OCOEventType string

const (
	OCOEventStarted          OCOEventType = "started"
	OCOEventTakeProfitPlaced OCOEventType = "take_profit_placed"
	OCOEventStopTriggered    OCOEventType = "stop_triggered"
	OCOEventClosed           OCOEventType = "closed"
)

type OCOEvent struct {
	Type       OCOEventType `json:"type"`
	Symbol     string       `json:"symbol"`
	Direction  Direction    `json:"direction"`
	OrderID    string       `json:"order_id,omitempty"`
	Record     *TradeRecord `json:"record,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

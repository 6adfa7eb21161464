package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Market string

const (
	MarketStock Market = "stk"
	MarketFOP   Market = "fop"
)

type TickType int8

const (
	TickTypeNone TickType = 0
	TickTypeBuy  TickType = 1
	TickTypeSell TickType = 2
)

type Tick struct {
	Code         string          `json:"code"`
	SecurityType SecurityType    `json:"security_type"`
	Datetime     time.Time       `json:"datetime"`
	Close        decimal.Decimal `json:"close"`
	Volume       int64           `json:"volume"`
	TickType     TickType        `json:"tick_type"`
}

type KBar struct {
	Time   time.Time       `json:"time"`
	Code   string          `json:"code"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

package entity

import "github.com/shopspring/decimal"

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

func ParseDirection(raw string) (Direction, bool) {
	switch Direction(raw) {
	case DirectionLong, DirectionShort:
		return Direction(raw), true
	default:
		return "", false
	}
}

// EntryAction is the side a position of this direction was opened with.
func (d Direction) EntryAction() Action {
	if d == DirectionShort {
		return ActionSell
	}
	return ActionBuy
}

// Label is the journal marker for the direction.
func (d Direction) Label() string {
	if d == DirectionShort {
		return "空"
	}
	return "多"
}

type TradeRecord struct {
	CloseDate string          `json:"close_date"`
	EntryDate string          `json:"entry_date"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	Direction Direction       `json:"direction"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
}

// NewTradeRecord orders entry and exit prices into buy/sell columns according to the direction.
func NewTradeRecord(symbol string, quantity int64, direction Direction, entryDate, closeDate string, entryPrice, exitPrice decimal.Decimal) TradeRecord {
	record := TradeRecord{
		CloseDate: closeDate,
		EntryDate: entryDate,
		Symbol:    symbol,
		Quantity:  quantity,
		Direction: direction,
		BuyPrice:  entryPrice,
		SellPrice: exitPrice,
	}
	if direction == DirectionShort {
		record.BuyPrice = exitPrice
		record.SellPrice = entryPrice
	}
	return record
}

func (r TradeRecord) Row() []any {
	return []any{
		r.CloseDate,
		r.EntryDate,
		r.Symbol,
		r.Quantity,
		r.Direction.Label(),
		r.BuyPrice.InexactFloat64(),
		r.SellPrice.InexactFloat64(),
	}
}

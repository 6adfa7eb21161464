package entity

import (
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// GatewayResponse is the envelope every gateway REST endpoint replies with.
type GatewayResponse struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type GatewayLoginRequest struct {
	Simulation bool `json:"simulation"`
}

type GatewayLoginResponse struct {
	Token    string           `json:"token"`
	Accounts []GatewayAccount `json:"accounts"`
}

type GatewayAccount struct {
	AccountType string `json:"account_type"`
	BrokerID    string `json:"broker_id"`
	AccountID   string `json:"account_id"`
	Signed      bool   `json:"signed"`
}

type GatewayActivateCARequest struct {
	CAPath     string `json:"ca_path"`
	CAPassword string `json:"ca_passwd"`
}

type GatewayVersionResponse struct {
	Version string `json:"version"`
}

type GatewayPlaceOrderRequest struct {
	Contract Contract     `json:"contract"`
	Order    OrderRequest `json:"order"`
}

type GatewayUpdateOrderRequest struct {
	Price decimal.Decimal `json:"price"`
}

// GatewayTicks is the columnar historical tick payload.
type GatewayTicks struct {
	TS       []int64           `json:"ts"`
	Close    []decimal.Decimal `json:"close"`
	Volume   []int64           `json:"volume"`
	TickType []int8            `json:"tick_type"`
}

type GatewayStreamCommand struct {
	Action       string       `json:"action"`
	Code         string       `json:"code"`
	SecurityType SecurityType `json:"security_type"`
	QuoteType    string       `json:"quote_type"`
}

type GatewayStreamMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type Contract struct {
	Code           string          `json:"code"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	SecurityType   SecurityType    `json:"security_type"`
	Exchange       string          `json:"exchange"`
	Category       string          `json:"category"`
	ReferencePrice decimal.Decimal `json:"reference"`
	LimitUp        decimal.Decimal `json:"limit_up"`
	LimitDown      decimal.Decimal `json:"limit_down"`
}

type ContractKind string

const (
	ContractKindAll    ContractKind = "all"
	ContractKindFuture ContractKind = "future"
	ContractKindStock  ContractKind = "stock"
)

const (
	FutureCategoryStock   = "股票期貨"
	FutureCategoryMicro   = "微型股票期貨"
	FutureCategorySmall   = "小型股票期貨"
	FutureCategoryOther   = "其他"
	FutureCategoryUnknown = "未知"
)

type FutureContractInfo struct {
	ID             string      `db:"id" json:"id"`
	Symbol         string      `db:"symbol" json:"symbol"`
	Name           string      `db:"name" json:"name"`
	UnderlyingCode null.String `db:"underlying_code" json:"underlying_code"`
	UnderlyingName null.String `db:"underlying_name" json:"underlying_name"`
	UnitSize       null.String `db:"unit_size" json:"unit_size"`
	Category       string      `db:"category" json:"category"`
	Raw            string      `db:"raw" json:"raw"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

func (FutureContractInfo) TableName() string {
	return "future_contracts"
}

type StockContractInfo struct {
	ID         string      `db:"id" json:"id"`
	FullName   string      `db:"full_name" json:"full_name"`
	Code       string      `db:"code" json:"code"`
	Name       string      `db:"name" json:"name"`
	ListedDate null.String `db:"listed_date" json:"listed_date"`
	Market     null.String `db:"market" json:"market"`
	Industry   null.String `db:"industry" json:"industry"`
	CFICode    null.String `db:"cfi_code" json:"cfi_code"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

func (StockContractInfo) TableName() string {
	return "stock_contracts"
}

// StockSheetHeader is the column order used when the stock list is synced to a spreadsheet.
var StockSheetHeader = []string{"有價證券代號及名稱", "證券代號", "股票名稱", "上市日", "市場別", "產業別"}

func (s StockContractInfo) SheetRow() []string {
	return []string{s.FullName, s.Code, s.Name, s.ListedDate.String, s.Market.String, s.Industry.String}
}

type ContractSearchResult struct {
	Futures []FutureContractInfo `json:"futures"`
	Stocks  []StockContractInfo  `json:"stocks"`
}

func (r ContractSearchResult) Empty() bool {
	return len(r.Futures) == 0 && len(r.Stocks) == 0
}

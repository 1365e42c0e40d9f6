package schema

import "github.com/shopspring/decimal"

// DataKind describes the shape of a response's data field.
type DataKind uint8

const (
	DataNone DataKind = iota
	DataStrategies
	DataStatus
)

// Response is a decoded response file.
type Response struct {
	Success    bool
	Message    string
	Kind       DataKind
	Strategies []Strategy
	Status     *StatusData
}

// StatusData is the object form of a response's data field.
type StatusData struct {
	Account       *Account `json:"account"`
	StrategyCount *int     `json:"strategyCount"`
	ActiveCount   *int     `json:"activeCount"`
}

// Account mirrors the terminal's trading account summary.
type Account struct {
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	FreeMargin decimal.Decimal `json:"freeMargin"`
	Currency   string          `json:"currency"`
}

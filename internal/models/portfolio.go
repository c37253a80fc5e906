package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockTransactionType classifies a settlement record.
type StockTransactionType string

const (
	StockBuy      StockTransactionType = "BUY"
	StockSell     StockTransactionType = "SELL"
	StockDividend StockTransactionType = "DIVIDEND"
)

// StockTransactionStatus is the settlement state of a stock transaction.
type StockTransactionStatus string

const (
	StockPending       StockTransactionStatus = "PENDING"
	StockSettled       StockTransactionStatus = "SETTLED"
	StockPartiallySold StockTransactionStatus = "PARTIALLY_SOLD"
	StockCompleted     StockTransactionStatus = "COMPLETED"
	StockCancelled     StockTransactionStatus = "CANCELLED"
)

// CountsTowardHolding reports whether transactions in this status contribute
// to the customer's net share quantity.
func (s StockTransactionStatus) CountsTowardHolding() bool {
	return s == StockSettled || s == StockPartiallySold
}

// StockTransaction is a settlement record created when an order fills (or a
// failure audit row when it does not). Never deleted.
type StockTransaction struct {
	ID              string
	PortfolioID     string
	OrderID         string
	Ticker          string
	Type            StockTransactionType
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Commission      decimal.Decimal
	Tax             decimal.Decimal
	OtherFees       decimal.Decimal
	Status          StockTransactionStatus
	Note            string
	TransactionDate time.Time
	SettlementDate  time.Time // transaction date + 2 trading days
}

// TotalAmount returns quantity x price.
func (t *StockTransaction) TotalAmount() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Settled reports whether the T+2 window has elapsed at time now.
func (t *StockTransaction) Settled(now time.Time) bool {
	return !now.Before(t.SettlementDate)
}

// Portfolio aggregates a customer's stock transactions. The aggregates are
// recomputed from transactions on demand, never maintained incrementally.
type Portfolio struct {
	ID              string
	CustomerID      string
	Name            string
	TotalValue      decimal.Decimal
	TotalCost       decimal.Decimal
	TotalProfitLoss decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

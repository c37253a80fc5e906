// Package models defines the core domain entities of the back office.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderCategory represents how the order prices itself.
type OrderCategory string

const (
	OrderCategoryLimit  OrderCategory = "LIMIT"
	OrderCategoryMarket OrderCategory = "MARKET"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "OPEN"
	OrderFilled   OrderStatus = "FILLED"
	OrderFailed   OrderStatus = "FAILED"
	OrderCanceled OrderStatus = "CANCELED"
	OrderRejected OrderStatus = "REJECTED"
)

// Terminal reports whether the status is final. A terminal order is never
// mutated again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderFailed, OrderCanceled, OrderRejected:
		return true
	}
	return false
}

// Order represents a resting customer order. Orders are created by the
// placement layer, mutated only by the matching and end-of-day schedulers,
// and soft-deleted rather than removed.
type Order struct {
	ID          string
	CustomerID  string
	Ticker      string
	Side        OrderSide
	Category    OrderCategory
	Quantity    decimal.Decimal // fractional lots supported
	LimitPrice  decimal.Decimal
	Status      OrderStatus
	TotalAmount decimal.Decimal // realized market price x quantity, set on fill
	FailReason  string
	CreatedBy   string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Deleted     bool
}

// FillEligible reports whether the order may fill at the given market price.
// A BUY fills when the market trades at or below its limit, a SELL when the
// market trades at or above it. Market-category orders fill at any quote.
func (o *Order) FillEligible(marketPrice decimal.Decimal) bool {
	if o.Category == OrderCategoryMarket {
		return true
	}
	switch o.Side {
	case OrderSideBuy:
		return marketPrice.LessThanOrEqual(o.LimitPrice)
	case OrderSideSell:
		return marketPrice.GreaterThanOrEqual(o.LimitPrice)
	}
	return false
}

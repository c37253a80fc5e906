package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCommissionRate is applied when a customer has no negotiated rate.
var DefaultCommissionRate = decimal.NewFromFloat(0.001) // 0.1%

// CustomerKind is the closed set of customer varieties. Code that needs
// kind-specific behavior type-switches over the two concrete types; there is
// no inheritance hierarchy to probe.
type CustomerKind interface {
	isCustomerKind()
	DisplayName() string
}

// Individual is a natural-person customer.
type Individual struct {
	FirstName  string
	LastName   string
	NationalID string
}

func (Individual) isCustomerKind() {}

func (i Individual) DisplayName() string { return i.FirstName + " " + i.LastName }

// Corporate is a company customer.
type Corporate struct {
	LegalName string
	TaxNumber string
}

func (Corporate) isCustomerKind() {}

func (c Corporate) DisplayName() string { return c.LegalName }

// Customer owns one wallet and one or more portfolios.
type Customer struct {
	ID             string
	Kind           CustomerKind
	Email          string
	CommissionRate decimal.Decimal // fraction of trade value, e.g. 0.001
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectiveCommissionRate returns the customer's negotiated rate, falling
// back to the house default when none is set.
func (c *Customer) EffectiveCommissionRate() decimal.Decimal {
	if c == nil || c.CommissionRate.IsZero() {
		return DefaultCommissionRate
	}
	return c.CommissionRate
}

// Package settlement tracks share positions and settlement bookkeeping.
// Holdings are always recomputed from the transaction stream; nothing here
// caches a position, since settlement status changes as T+2 windows elapse.
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "brokerage-backoffice/internal/errors"
	"brokerage-backoffice/internal/market"
	"brokerage-backoffice/internal/models"
	"brokerage-backoffice/internal/store"
)

// Tracker records fills as settlement transactions and answers position
// queries from them.
type Tracker struct {
	store   store.DataStore
	hours   *market.Hours
	logger  zerolog.Logger
	lagDays int // trading days until a trade settles
	now     func() time.Time
}

// NewTracker creates a settlement tracker. lagDays is the settlement lag in
// trading days (2 for T+2).
func NewTracker(dataStore store.DataStore, hours *market.Hours, logger zerolog.Logger, lagDays int) *Tracker {
	return &Tracker{
		store:   dataStore,
		hours:   hours,
		logger:  logger,
		lagDays: lagDays,
		now:     time.Now,
	}
}

// SetClock replaces the wall clock. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// SettlementDate computes the date a trade executed at tradeDate settles,
// skipping weekends and market holidays.
func (t *Tracker) SettlementDate(tradeDate time.Time) time.Time {
	return t.hours.AddTradingDays(tradeDate, t.lagDays)
}

// Commission returns the commission for a trade of the given total amount,
// using the customer's negotiated rate.
func (t *Tracker) Commission(ctx context.Context, customerID string, totalAmount decimal.Decimal) (decimal.Decimal, error) {
	customer, err := t.store.GetCustomer(ctx, customerID)
	if err != nil && !apperrors.Is(err, apperrors.ErrCustomerNotFound) {
		return decimal.Zero, err
	}
	return totalAmount.Mul(customer.EffectiveCommissionRate()), nil
}

// ResolvePortfolio returns the customer's first portfolio, creating a
// default one when none exists yet.
func (t *Tracker) ResolvePortfolio(ctx context.Context, customerID string) (*models.Portfolio, error) {
	portfolios, err := t.store.ListPortfolios(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(portfolios) > 0 {
		return &portfolios[0], nil
	}

	now := t.now()
	p := &models.Portfolio{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Name:       "default",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.store.SavePortfolio(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordFillInTx persists the settlement record for a fill inside an
// existing unit of work: a SETTLED transaction at the realized market price
// with a T+2 settlement date.
func (t *Tracker) RecordFillInTx(tx store.Tx, portfolio *models.Portfolio, order *models.Order,
	execPrice, commission decimal.Decimal, now time.Time) (*models.StockTransaction, error) {

	record := &models.StockTransaction{
		ID:              uuid.NewString(),
		PortfolioID:     portfolio.ID,
		OrderID:         order.ID,
		Ticker:          order.Ticker,
		Type:            stockType(order.Side),
		Quantity:        order.Quantity,
		Price:           execPrice,
		Commission:      commission,
		Tax:             decimal.Zero,
		OtherFees:       decimal.Zero,
		Status:          models.StockSettled,
		TransactionDate: now,
		SettlementDate:  t.SettlementDate(now),
	}
	if err := tx.InsertStockTransaction(record); err != nil {
		return nil, err
	}
	return record, nil
}

// RecordFailureInTx persists a CANCELLED audit transaction for a failed
// order, so the attempted trade stays traceable.
func (t *Tracker) RecordFailureInTx(tx store.Tx, portfolio *models.Portfolio, order *models.Order,
	execPrice decimal.Decimal, reason string, now time.Time) error {

	return tx.InsertStockTransaction(&models.StockTransaction{
		ID:              uuid.NewString(),
		PortfolioID:     portfolio.ID,
		OrderID:         order.ID,
		Ticker:          order.Ticker,
		Type:            stockType(order.Side),
		Quantity:        order.Quantity,
		Price:           execPrice,
		Status:          models.StockCancelled,
		Note:            reason,
		TransactionDate: now,
		SettlementDate:  t.SettlementDate(now),
	})
}

// RecordDividend credits a dividend distribution to the portfolio's
// transaction stream. Dividends settle immediately.
func (t *Tracker) RecordDividend(ctx context.Context, customerID, ticker string, quantity, amountPerShare decimal.Decimal) (*models.StockTransaction, error) {
	portfolio, err := t.ResolvePortfolio(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	record := &models.StockTransaction{
		ID:              uuid.NewString(),
		PortfolioID:     portfolio.ID,
		Ticker:          ticker,
		Type:            models.StockDividend,
		Quantity:        quantity,
		Price:           amountPerShare,
		Status:          models.StockSettled,
		TransactionDate: now,
		SettlementDate:  now,
	}
	err = t.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertStockTransaction(record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func stockType(side models.OrderSide) models.StockTransactionType {
	if side == models.OrderSideSell {
		return models.StockSell
	}
	return models.StockBuy
}

// NetQuantity computes how many shares of ticker the customer owns: the sum
// of settled-status BUY quantities minus settled-status SELL quantities over
// every portfolio. This is the single source of truth for ownership.
func (t *Tracker) NetQuantity(ctx context.Context, customerID, ticker string) (decimal.Decimal, error) {
	records, err := t.store.ListStockTransactionsByCustomer(ctx, customerID, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	return netQuantity(records), nil
}

func netQuantity(records []models.StockTransaction) decimal.Decimal {
	net := decimal.Zero
	for _, rec := range records {
		if !rec.Status.CountsTowardHolding() {
			continue
		}
		switch rec.Type {
		case models.StockBuy:
			net = net.Add(rec.Quantity)
		case models.StockSell:
			net = net.Sub(rec.Quantity)
		}
	}
	return net
}

// AvailableQuantity computes how many shares of ticker the customer may sell
// right now: the net holding minus BUY quantity still inside its T+2 window.
func (t *Tracker) AvailableQuantity(ctx context.Context, customerID, ticker string) (decimal.Decimal, error) {
	records, err := t.store.ListStockTransactionsByCustomer(ctx, customerID, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	return availableQuantity(records, t.now()), nil
}

// AvailableQuantityInTx is AvailableQuantity reading through an open unit of
// work. A SELL fill must check availability here, inside the transaction
// that records it, so parallel sells of the same holding serialize on the
// database instead of racing past a shared pre-fill snapshot.
func (t *Tracker) AvailableQuantityInTx(tx store.Tx, customerID, ticker string) (decimal.Decimal, error) {
	records, err := tx.ListStockTransactionsByCustomer(customerID, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	return availableQuantity(records, t.now()), nil
}

func availableQuantity(records []models.StockTransaction, now time.Time) decimal.Decimal {
	available := decimal.Zero
	for _, rec := range records {
		if !rec.Status.CountsTowardHolding() {
			continue
		}
		switch rec.Type {
		case models.StockBuy:
			if rec.Settled(now) {
				available = available.Add(rec.Quantity)
			}
		case models.StockSell:
			available = available.Sub(rec.Quantity)
		}
	}
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// MergeBuyLots collapses multiple BUY lots of the same ticker into one
// synthetic transaction at a quantity-weighted average price. The weighting
// denominator is the current net quantity, so the merged result describes
// the full live position; it must not be summed with the individual lots.
func MergeBuyLots(buys []models.StockTransaction, currentNet decimal.Decimal) *models.StockTransaction {
	if len(buys) == 0 || !currentNet.IsPositive() {
		return nil
	}

	cost := decimal.Zero
	commission := decimal.Zero
	merged := buys[0]
	for _, lot := range buys {
		if lot.Type != models.StockBuy {
			continue
		}
		cost = cost.Add(lot.Quantity.Mul(lot.Price))
		commission = commission.Add(lot.Commission)
		if lot.TransactionDate.After(merged.TransactionDate) {
			merged.TransactionDate = lot.TransactionDate
			merged.SettlementDate = lot.SettlementDate
		}
	}

	merged.ID = ""
	merged.OrderID = ""
	merged.Quantity = currentNet
	merged.Price = cost.Div(currentNet)
	merged.Commission = commission
	return &merged
}

// RecomputePortfolio rebuilds a portfolio's aggregates from its transaction
// stream and current prices. Aggregates are never maintained incrementally.
func (t *Tracker) RecomputePortfolio(ctx context.Context, portfolioID string, prices market.PriceSource) (*models.Portfolio, error) {
	portfolio, err := t.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	records, err := t.store.ListStockTransactionsByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	holdings := make(map[string]decimal.Decimal) // ticker -> net quantity
	lastPrice := make(map[string]decimal.Decimal)
	cost := decimal.Zero
	for _, rec := range records {
		if !rec.Status.CountsTowardHolding() {
			continue
		}
		switch rec.Type {
		case models.StockBuy:
			holdings[rec.Ticker] = holdings[rec.Ticker].Add(rec.Quantity)
			cost = cost.Add(rec.TotalAmount()).Add(rec.Commission)
		case models.StockSell:
			holdings[rec.Ticker] = holdings[rec.Ticker].Sub(rec.Quantity)
			cost = cost.Sub(rec.TotalAmount()).Add(rec.Commission)
		}
		lastPrice[rec.Ticker] = rec.Price
	}

	value := decimal.Zero
	for ticker, qty := range holdings {
		if qty.IsZero() {
			continue
		}
		price := lastPrice[ticker]
		if prices != nil {
			if p, found, err := prices.LastPrice(ctx, ticker); err == nil && found {
				price = p
			}
		}
		value = value.Add(qty.Mul(price))
	}

	portfolio.TotalValue = value
	portfolio.TotalCost = cost
	portfolio.TotalProfitLoss = value.Sub(cost)
	portfolio.UpdatedAt = t.now()

	if err := t.store.UpdatePortfolioAggregates(ctx, portfolio); err != nil {
		return nil, err
	}
	return portfolio, nil
}

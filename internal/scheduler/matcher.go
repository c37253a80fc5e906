package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "brokerage-backoffice/internal/errors"
	"brokerage-backoffice/internal/logging"
	"brokerage-backoffice/internal/market"
	"brokerage-backoffice/internal/models"
	"brokerage-backoffice/internal/settlement"
	"brokerage-backoffice/internal/store"
	"brokerage-backoffice/internal/wallet"
)

// errAlreadyTerminal marks an order that left OPEN between the snapshot and
// the transition attempt. Not a failure; the fill was done elsewhere.
var errAlreadyTerminal = errors.New("order no longer open")

// MatcherConfig holds the matcher's tuning knobs.
type MatcherConfig struct {
	Interval     time.Duration
	Workers      int
	PriceTimeout time.Duration
}

// Matcher is the order-matching scheduler. On every tick it scans the OPEN
// orders, checks fill eligibility against the latest market price, and on a
// fill atomically updates wallet, settlement records, and order status.
type Matcher struct {
	store   store.DataStore
	prices  market.PriceSource
	hours   *market.Hours
	tracker *settlement.Tracker
	logger  zerolog.Logger
	cfg     MatcherConfig

	pool     *WorkerPool
	inFlight atomic.Bool
	now      func() time.Time
}

// NewMatcher creates the order-matching scheduler.
func NewMatcher(dataStore store.DataStore, prices market.PriceSource, hours *market.Hours,
	tracker *settlement.Tracker, logger zerolog.Logger, cfg MatcherConfig) *Matcher {

	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 2 * time.Second
	}
	return &Matcher{
		store:   dataStore,
		prices:  prices,
		hours:   hours,
		tracker: tracker,
		logger:  logger.With().Str("job", "matcher").Logger(),
		cfg:     cfg,
		pool:    NewWorkerPool(cfg.Workers),
		now:     time.Now,
	}
}

// SetClock replaces the wall clock. Used by tests.
func (m *Matcher) SetClock(now func() time.Time) { m.now = now }

// Run ticks the matcher on its configured interval until ctx is cancelled.
func (m *Matcher) Run(ctx context.Context) error {
	m.pool.Start()
	defer m.pool.Stop()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Tick failed")
			}
		}
	}
}

// Tick runs one matching cycle over the current snapshot of OPEN orders.
// A closed market or an empty book is a no-op. Orders are processed
// independently: one order's failure never blocks the rest. Ticks never
// overlap; a call arriving while a cycle is still running is a no-op, which
// guards ad-hoc invocations racing the Run loop.
func (m *Matcher) Tick(ctx context.Context) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Warn().Msg("Previous tick still running, skipping")
		return nil
	}
	defer m.inFlight.Store(false)

	if !m.hours.IsMarketOpenAt(m.now()) {
		return nil
	}

	orders, err := m.store.ListOpenOrders(ctx)
	if err != nil {
		return apperrors.Wrap(err, "loading open orders")
	}
	if len(orders) == 0 {
		return nil
	}

	m.logger.Debug().Int("orders", len(orders)).Msg("Matching tick")

	var wg sync.WaitGroup
	for i := range orders {
		order := orders[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			m.processOrder(ctx, &order)
		}
		if !m.pool.Submit(task) {
			task()
		}
	}
	wg.Wait()
	return nil
}

// processOrder decides and, if eligible, executes one order. All outcomes
// are absorbed here so the tick keeps going.
func (m *Matcher) processOrder(ctx context.Context, order *models.Order) {
	logger := logging.WithOrderID(m.logger, order.ID)

	priceCtx, cancel := context.WithTimeout(ctx, m.cfg.PriceTimeout)
	price, found, err := m.prices.LastPrice(priceCtx, order.Ticker)
	cancel()
	if err != nil || !found {
		// A missing or slow quote defers the order to the next tick.
		logger.Debug().Str("ticker", order.Ticker).Msg("No quote, order deferred")
		return
	}

	if !order.FillEligible(price) {
		return
	}

	if err := m.executeFill(ctx, order, price); err != nil {
		switch {
		case errors.Is(err, errAlreadyTerminal):
			// Someone else transitioned it; nothing to do.
		case isDomainFailure(err):
			m.failOrder(ctx, order, price, err)
		default:
			// Infrastructure failure: leave the order OPEN, the next tick
			// retries it.
			logger.Error().Err(err).Msg("Fill aborted, will retry next tick")
		}
		return
	}

	logging.LogFill(m.logger, order.ID, order.Ticker, string(order.Side),
		order.Quantity.String(), price.String())
}

// executeFill runs the monetary and settlement side of a fill as one unit of
// work. The order leaves OPEN exactly once: the conditional status update is
// part of the same transaction, so a concurrent fill rolls us back whole.
func (m *Matcher) executeFill(ctx context.Context, order *models.Order, price decimal.Decimal) error {
	totalAmount := price.Mul(order.Quantity)
	commission, err := m.tracker.Commission(ctx, order.CustomerID, totalAmount)
	if err != nil {
		return err
	}
	portfolio, err := m.tracker.ResolvePortfolio(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	w, err := m.store.GetWalletByCustomer(ctx, order.CustomerID)
	if err != nil {
		return err
	}

	now := m.now()
	return m.store.InTx(ctx, func(tx store.Tx) error {
		moved, err := tx.TransitionOrder(order.ID, models.OrderOpen, models.OrderFilled, totalAmount, "", now)
		if err != nil {
			return err
		}
		if !moved {
			return errAlreadyTerminal
		}

		// The availability check lives inside the transaction, after the
		// write lock is taken, so a parallel sell of the same holding is
		// visible here once it commits. Checking before the transaction
		// would let two sells pass against the same snapshot.
		if order.Side == models.OrderSideSell {
			available, err := m.tracker.AvailableQuantityInTx(tx, order.CustomerID, order.Ticker)
			if err != nil {
				return err
			}
			if available.LessThan(order.Quantity) {
				return apperrors.NewOrderError(order.ID, order.Ticker, "sell",
					"insufficient settled quantity", nil)
			}
		}

		switch order.Side {
		case models.OrderSideBuy:
			if err := wallet.PurchaseDebit(tx, w.ID, totalAmount, commission, order.ID, now); err != nil {
				return err
			}
		case models.OrderSideSell:
			if err := wallet.SaleCredit(tx, w.ID, totalAmount, commission, order.ID, now); err != nil {
				return err
			}
		}

		_, err = m.tracker.RecordFillInTx(tx, portfolio, order, price, commission, now)
		return err
	})
}

// failOrder transitions the order to FAILED and records an audit settlement
// transaction so the attempted trade stays traceable. No wallet mutation
// survives from the aborted fill.
func (m *Matcher) failOrder(ctx context.Context, order *models.Order, price decimal.Decimal, cause error) {
	portfolio, err := m.tracker.ResolvePortfolio(ctx, order.CustomerID)
	if err != nil {
		m.logger.Error().Err(err).Str("order_id", order.ID).Msg("Cannot resolve portfolio for failure record")
		return
	}

	now := m.now()
	totalAmount := price.Mul(order.Quantity)
	err = m.store.InTx(ctx, func(tx store.Tx) error {
		moved, err := tx.TransitionOrder(order.ID, models.OrderOpen, models.OrderFailed, totalAmount, cause.Error(), now)
		if err != nil {
			return err
		}
		if !moved {
			return errAlreadyTerminal
		}
		return m.tracker.RecordFailureInTx(tx, portfolio, order, price, cause.Error(), now)
	})
	if err != nil && !errors.Is(err, errAlreadyTerminal) {
		m.logger.Error().Err(err).Str("order_id", order.ID).Msg("Recording order failure failed")
		return
	}

	logging.LogOrderStatus(m.logger, order.ID, order.Ticker, string(models.OrderFailed), cause.Error())
}

// isDomainFailure reports whether err is a business-rule violation that
// should mark the order FAILED, as opposed to an infrastructure error that
// warrants a retry.
func isDomainFailure(err error) bool {
	if _, ok := apperrors.IsWalletError(err); ok {
		return true
	}
	var oe *apperrors.OrderError
	return errors.As(err, &oe)
}

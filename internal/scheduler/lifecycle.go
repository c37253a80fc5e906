package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"brokerage-backoffice/internal/market"
	"brokerage-backoffice/internal/store"
)

// Lifecycle performs bulk order state transitions.
type Lifecycle struct {
	store  store.DataStore
	hours  *market.Hours
	logger zerolog.Logger
	now    func() time.Time
}

// NewLifecycle creates an order lifecycle service.
func NewLifecycle(dataStore store.DataStore, hours *market.Hours, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		store:  dataStore,
		hours:  hours,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the wall clock. Used by tests.
func (l *Lifecycle) SetClock(now func() time.Time) { l.now = now }

// CancelOpenOrdersFor cancels every order still OPEN whose creation
// timestamp falls on the given trading day, as a single bulk update, and
// returns the number of orders cancelled. Calling it again for the same day
// cancels nothing further.
func (l *Lifecycle) CancelOpenOrdersFor(ctx context.Context, day time.Time) (int64, error) {
	loc := l.hours.Location()
	day = day.In(loc)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999999999, loc)

	count, err := l.store.CancelOpenOrdersWithin(ctx, from, to, l.now())
	if err != nil {
		return 0, err
	}

	if count > 0 {
		l.logger.Info().
			Int64("cancelled", count).
			Str("day", from.Format("2006-01-02")).
			Msg("Cancelled leftover open orders")
	}
	return count, nil
}

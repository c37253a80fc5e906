package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"brokerage-backoffice/internal/market"
)

// EndOfDay sweeps the order book once the market closes: every order still
// OPEN for the trading day is cancelled in bulk.
type EndOfDay struct {
	hours     *market.Hours
	lifecycle *Lifecycle
	logger    zerolog.Logger
	interval  time.Duration
	now       func() time.Time
}

// NewEndOfDay creates the end-of-day scheduler.
func NewEndOfDay(hours *market.Hours, lifecycle *Lifecycle, logger zerolog.Logger, interval time.Duration) *EndOfDay {
	return &EndOfDay{
		hours:     hours,
		lifecycle: lifecycle,
		logger:    logger.With().Str("job", "end_of_day").Logger(),
		interval:  interval,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock. Used by tests.
func (e *EndOfDay) SetClock(now func() time.Time) { e.now = now }

// Run ticks the sweep on its configured interval until ctx is cancelled.
// Sweep errors are logged for alerting and the loop keeps running.
func (e *EndOfDay) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				e.logger.Error().Err(err).Msg("End-of-day sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep. It only acts once the day's close bound
// has passed; the market being closed is not enough, since orders collected
// in the pre-open window must survive until the market has actually traded.
// Errors from the bulk cancellation propagate to the caller; they are never
// swallowed.
func (e *EndOfDay) RunOnce(ctx context.Context) (int64, error) {
	now := e.now()
	if !e.hours.IsPastCloseAt(now) {
		return 0, nil
	}
	return e.lifecycle.CancelOpenOrdersFor(ctx, now)
}

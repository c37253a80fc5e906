package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BreakerState is the state of the price-feed circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// ErrFeedUnavailable is returned while the breaker is open and the upstream
// feed is being given time to recover.
var ErrFeedUnavailable = errors.New("price feed unavailable")

// BreakerConfig holds the breaker's thresholds.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes before closing
	Cooldown         time.Duration // open duration before probing again
}

// DefaultBreakerConfig returns the thresholds used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// BreakerQuoter wraps an upstream Quoter with a circuit breaker. A run of
// upstream failures opens the circuit and quote requests fail fast with
// ErrFeedUnavailable; the cached source in front then serves stale data
// instead of hammering a feed that is already down. After the cooldown a
// single probe request decides whether the circuit closes again.
type BreakerQuoter struct {
	upstream Quoter
	cfg      BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewBreakerQuoter wraps upstream with a circuit breaker.
func NewBreakerQuoter(upstream Quoter, cfg BreakerConfig) *BreakerQuoter {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &BreakerQuoter{
		upstream: upstream,
		cfg:      cfg,
		state:    BreakerClosed,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock. Used by tests.
func (b *BreakerQuoter) SetClock(now func() time.Time) { b.now = now }

// State returns the current breaker state.
func (b *BreakerQuoter) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Quote fetches a price through the breaker. An absent quote is a healthy
// response; only transport errors count against the failure threshold.
func (b *BreakerQuoter) Quote(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	if !b.allow() {
		return decimal.Zero, false, ErrFeedUnavailable
	}

	price, found, err := b.upstream.Quote(ctx, ticker)
	if err != nil {
		b.recordFailure()
		return decimal.Zero, false, err
	}
	b.recordSuccess()
	return price, found, nil
}

func (b *BreakerQuoter) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = BreakerHalfOpen
			b.successes = 0
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	}
	return true
}

func (b *BreakerQuoter) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.trip()
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *BreakerQuoter) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = BreakerClosed
			b.failures = 0
		}
	case BreakerClosed:
		b.failures = 0
	}
}

// trip opens the circuit. Callers hold the mutex.
func (b *BreakerQuoter) trip() {
	b.state = BreakerOpen
	b.failures = 0
	b.openedAt = b.now()
}

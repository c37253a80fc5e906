package market

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"brokerage-backoffice/pkg/utils"
)

// PriceSource supplies the last traded price for a ticker. A missing quote
// is reported via the bool, not an error.
type PriceSource interface {
	LastPrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error)
}

// Quoter is the upstream collaborator that actually fetches quotes.
type Quoter interface {
	Quote(ctx context.Context, ticker string) (decimal.Decimal, bool, error)
}

// QuoterFunc adapts a function to the Quoter interface.
type QuoterFunc func(ctx context.Context, ticker string) (decimal.Decimal, bool, error)

func (f QuoterFunc) Quote(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	return f(ctx, ticker)
}

type cachedQuote struct {
	price     decimal.Decimal
	found     bool
	fetchedAt time.Time
}

// CachedSource is a PriceSource backed by an upstream Quoter with a TTL
// cache. Concurrent refreshes of the same ticker collapse into a single
// in-flight fetch, and each upstream call is bounded by a timeout so a slow
// quote degrades to "absent" instead of stalling a scheduler tick.
type CachedSource struct {
	quoter  Quoter
	ttl     time.Duration
	timeout time.Duration

	mu     sync.RWMutex
	quotes map[string]cachedQuote
	group  singleflight.Group
	now    func() time.Time
}

// NewCachedSource creates a CachedSource around the given quoter.
func NewCachedSource(quoter Quoter, ttl, timeout time.Duration) *CachedSource {
	return &CachedSource{
		quoter:  quoter,
		ttl:     ttl,
		timeout: timeout,
		quotes:  make(map[string]cachedQuote),
		now:     time.Now,
	}
}

// SetClock replaces the wall clock. Used by tests.
func (s *CachedSource) SetClock(now func() time.Time) { s.now = now }

// LastPrice returns the cached last traded price for ticker, refreshing from
// the upstream quoter when the cache entry is stale or missing.
func (s *CachedSource) LastPrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	q, ok := s.quotes[ticker]
	s.mu.RUnlock()

	if ok && s.now().Sub(q.fetchedAt) < s.ttl {
		return q.price, q.found, nil
	}

	v, err, _ := s.group.Do(ticker, func() (interface{}, error) {
		return s.refresh(ctx, ticker)
	})
	if err != nil {
		// Stale data beats no data when the upstream is unhealthy.
		if ok {
			return q.price, q.found, nil
		}
		return decimal.Zero, false, err
	}

	fresh := v.(cachedQuote)
	return fresh.price, fresh.found, nil
}

func (s *CachedSource) refresh(ctx context.Context, ticker string) (cachedQuote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var q cachedQuote
	err := utils.Retry(fetchCtx, utils.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      s.timeout,
		BackoffFactor: 2.0,
	}, func() error {
		price, found, err := s.quoter.Quote(fetchCtx, ticker)
		if err != nil {
			return err
		}
		q = cachedQuote{price: price, found: found, fetchedAt: s.now()}
		return nil
	})
	if err != nil {
		return cachedQuote{}, err
	}

	s.mu.Lock()
	s.quotes[ticker] = q
	s.mu.Unlock()
	return q, nil
}

// StaticSource is a fixed in-memory PriceSource for tests and operational
// tooling.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticSource creates a StaticSource with the given prices.
func NewStaticSource(prices map[string]decimal.Decimal) *StaticSource {
	if prices == nil {
		prices = make(map[string]decimal.Decimal)
	}
	return &StaticSource{prices: prices}
}

// Set sets the last traded price for a ticker.
func (s *StaticSource) Set(ticker string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[ticker] = price
}

// Remove drops the quote for a ticker.
func (s *StaticSource) Remove(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, ticker)
}

// LastPrice returns the configured price for ticker, if any.
func (s *StaticSource) LastPrice(_ context.Context, ticker string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[ticker]
	return p, ok, nil
}

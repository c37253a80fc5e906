package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"brokerage-backoffice/internal/config"
	"brokerage-backoffice/internal/market"
	"brokerage-backoffice/internal/models"
	"brokerage-backoffice/internal/settlement"
	"brokerage-backoffice/internal/store"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fixture struct {
	store   *store.SQLiteStore
	hours   *market.Hours
	prices  *market.StaticSource
	tracker *settlement.Tracker
	matcher *Matcher
	now     time.Time
}

// newFixture builds a matcher over a real store with the clock pinned to a
// Wednesday afternoon inside market hours.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	dataStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "matcher_test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { dataStore.Close() })

	hours, err := market.NewHours(config.MarketConfig{
		Timezone:        "Europe/Istanbul",
		OpenTime:        "10:00",
		CloseTime:       "18:00",
		CollectionStart: "09:30",
	})
	if err != nil {
		t.Fatalf("NewHours: %v", err)
	}

	now := time.Date(2024, 6, 12, 14, 0, 0, 0, hours.Location())
	clock := func() time.Time { return now }

	prices := market.NewStaticSource(nil)
	tracker := settlement.NewTracker(dataStore, hours, zerolog.Nop(), 2)
	tracker.SetClock(clock)

	matcher := NewMatcher(dataStore, prices, hours, tracker, zerolog.Nop(), MatcherConfig{
		Interval:     time.Second,
		Workers:      2,
		PriceTimeout: time.Second,
	})
	matcher.SetClock(clock)
	matcher.pool.Start()
	t.Cleanup(matcher.pool.Stop)

	return &fixture{
		store:   dataStore,
		hours:   hours,
		prices:  prices,
		tracker: tracker,
		matcher: matcher,
		now:     now,
	}
}

func (f *fixture) seedCustomer(t *testing.T, id, balance string) {
	t.Helper()
	ctx := context.Background()

	customer := &models.Customer{
		ID:             id,
		Kind:           models.Individual{FirstName: "Test", LastName: id},
		CommissionRate: d("0.001"),
		CreatedAt:      f.now,
		UpdatedAt:      f.now,
	}
	if err := f.store.SaveCustomer(ctx, customer); err != nil {
		t.Fatalf("SaveCustomer: %v", err)
	}
	w := &models.Wallet{
		ID:               "wallet-" + id,
		CustomerID:       id,
		Balance:          d(balance),
		AvailableBalance: d(balance),
		Status:           models.WalletActive,
		CreatedAt:        f.now,
		UpdatedAt:        f.now,
	}
	if err := f.store.CreateWallet(ctx, w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	p := &models.Portfolio{
		ID:         "port-" + id,
		CustomerID: id,
		Name:       "default",
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	if err := f.store.SavePortfolio(ctx, p); err != nil {
		t.Fatalf("SavePortfolio: %v", err)
	}
}

func (f *fixture) seedOrder(t *testing.T, id, customerID, ticker string,
	side models.OrderSide, qty, limit string) {
	t.Helper()
	order := &models.Order{
		ID:         id,
		CustomerID: customerID,
		Ticker:     ticker,
		Side:       side,
		Category:   models.OrderCategoryLimit,
		Quantity:   d(qty),
		LimitPrice: d(limit),
		Status:     models.OrderOpen,
		CreatedBy:  "test",
		UpdatedBy:  "test",
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	if err := f.store.InsertOrder(context.Background(), order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
}

// seedHolding gives the customer an old, fully settled BUY lot.
func (f *fixture) seedHolding(t *testing.T, customerID, ticker, qty, price string) {
	t.Helper()
	past := f.now.AddDate(0, 0, -10)
	err := f.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertStockTransaction(&models.StockTransaction{
			ID:              "seed-" + customerID + "-" + ticker,
			PortfolioID:     "port-" + customerID,
			OrderID:         "seed-order",
			Ticker:          ticker,
			Type:            models.StockBuy,
			Quantity:        d(qty),
			Price:           d(price),
			Status:          models.StockSettled,
			TransactionDate: past,
			SettlementDate:  past,
		})
	})
	if err != nil {
		t.Fatalf("seedHolding: %v", err)
	}
}

func (f *fixture) orderStatus(t *testing.T, id string) models.OrderStatus {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	return o.Status
}

func (f *fixture) walletBalance(t *testing.T, customerID string) decimal.Decimal {
	t.Helper()
	w, err := f.store.GetWalletByCustomer(context.Background(), customerID)
	if err != nil {
		t.Fatalf("GetWalletByCustomer: %v", err)
	}
	return w.Balance
}

func TestBuyFillDebitsWalletAndRecordsSettlement(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")
	f.prices.Set("THYAO", d("25"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if got := f.orderStatus(t, "o1"); got != models.OrderFilled {
		t.Fatalf("order status = %s, want FILLED", got)
	}

	order, err := f.store.GetOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if !order.TotalAmount.Equal(d("250")) {
		t.Errorf("order total = %s, want 250 (market price, not limit)", order.TotalAmount)
	}

	// 1000 - 250 - 0.1% commission
	if got := f.walletBalance(t, "c1"); !got.Equal(d("749.75")) {
		t.Errorf("wallet balance = %s, want 749.75", got)
	}

	records, err := f.store.ListStockTransactionsByPortfolio(context.Background(), "port-c1")
	if err != nil {
		t.Fatalf("ListStockTransactionsByPortfolio: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d settlement records, want 1", len(records))
	}
	rec := records[0]
	if rec.Status != models.StockSettled || rec.Type != models.StockBuy {
		t.Errorf("record status/type = %s/%s", rec.Status, rec.Type)
	}
	if !rec.Price.Equal(d("25")) {
		t.Errorf("record price = %s, want market 25", rec.Price)
	}
	// Wednesday + 2 trading days = Friday.
	wantSettle := time.Date(2024, 6, 14, 14, 0, 0, 0, f.hours.Location())
	if !rec.SettlementDate.Equal(wantSettle) {
		t.Errorf("settlement date = %v, want %v", rec.SettlementDate, wantSettle)
	}
}

func TestBuyAboveLimitDoesNotFill(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")
	f.prices.Set("THYAO", d("35"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := f.orderStatus(t, "o1"); got != models.OrderOpen {
		t.Errorf("order status = %s, want OPEN", got)
	}
	if got := f.walletBalance(t, "c1"); !got.Equal(d("1000")) {
		t.Errorf("wallet balance = %s, want untouched 1000", got)
	}
}

func TestSellFillCreditsWallet(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "0")
	f.seedHolding(t, "c1", "THYAO", "20", "18")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideSell, "5", "20")
	f.prices.Set("THYAO", d("25"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if got := f.orderStatus(t, "o1"); got != models.OrderFilled {
		t.Fatalf("order status = %s, want FILLED", got)
	}
	// 5 * 25 = 125 credited net of 0.125 commission.
	if got := f.walletBalance(t, "c1"); !got.Equal(d("124.875")) {
		t.Errorf("wallet balance = %s, want 124.875", got)
	}
}

func TestSellBelowLimitDoesNotFill(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "0")
	f.seedHolding(t, "c1", "THYAO", "20", "18")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideSell, "5", "20")
	f.prices.Set("THYAO", d("15"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := f.orderStatus(t, "o1"); got != models.OrderOpen {
		t.Errorf("order status = %s, want OPEN", got)
	}
}

func TestMissingQuoteDefersOrder(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "GHOST", models.OrderSideBuy, "10", "30")

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// No quote is not a failure: the order waits for the next tick.
	if got := f.orderStatus(t, "o1"); got != models.OrderOpen {
		t.Errorf("order status = %s, want OPEN", got)
	}
	records, err := f.store.ListStockTransactionsByPortfolio(context.Background(), "port-c1")
	if err != nil {
		t.Fatalf("ListStockTransactionsByPortfolio: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d settlement records for a deferred order, want 0", len(records))
	}
}

func TestInsufficientFundsFailsOrder(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "10")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")
	f.prices.Set("THYAO", d("25"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if got := f.orderStatus(t, "o1"); got != models.OrderFailed {
		t.Fatalf("order status = %s, want FAILED", got)
	}

	order, err := f.store.GetOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.FailReason == "" {
		t.Error("failed order carries no reason")
	}

	// The aborted fill must not leave a partial debit behind.
	if got := f.walletBalance(t, "c1"); !got.Equal(d("10")) {
		t.Errorf("wallet balance = %s, want untouched 10", got)
	}

	records, err := f.store.ListStockTransactionsByPortfolio(context.Background(), "port-c1")
	if err != nil {
		t.Fatalf("ListStockTransactionsByPortfolio: %v", err)
	}
	if len(records) != 1 || records[0].Status != models.StockCancelled {
		t.Errorf("expected one CANCELLED audit record, got %+v", records)
	}
}

func TestSellWithoutSettledHoldingFails(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "0")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideSell, "5", "20")
	f.prices.Set("THYAO", d("25"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if got := f.orderStatus(t, "o1"); got != models.OrderFailed {
		t.Errorf("order status = %s, want FAILED", got)
	}
	if got := f.walletBalance(t, "c1"); !got.IsZero() {
		t.Errorf("wallet balance = %s, want untouched 0", got)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "rich", "10000")
	f.seedCustomer(t, "poor", "1")
	f.seedCustomer(t, "waiting", "10000")

	f.seedOrder(t, "o-rich", "rich", "THYAO", models.OrderSideBuy, "10", "30")
	f.seedOrder(t, "o-poor", "poor", "THYAO", models.OrderSideBuy, "10", "30")
	f.seedOrder(t, "o-waiting", "waiting", "GHOST", models.OrderSideBuy, "10", "30")
	f.prices.Set("THYAO", d("25"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if got := f.orderStatus(t, "o-rich"); got != models.OrderFilled {
		t.Errorf("funded order = %s, want FILLED", got)
	}
	if got := f.orderStatus(t, "o-poor"); got != models.OrderFailed {
		t.Errorf("underfunded order = %s, want FAILED", got)
	}
	if got := f.orderStatus(t, "o-waiting"); got != models.OrderOpen {
		t.Errorf("unquoted order = %s, want OPEN", got)
	}
}

func TestTickNoOpWhenMarketClosed(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")
	f.prices.Set("THYAO", d("25"))

	saturday := time.Date(2024, 6, 15, 14, 0, 0, 0, f.hours.Location())
	f.matcher.SetClock(func() time.Time { return saturday })

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := f.orderStatus(t, "o1"); got != models.OrderOpen {
		t.Errorf("order status = %s, want OPEN on a closed market", got)
	}
}

func TestNoDoubleFill(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")
	f.prices.Set("THYAO", d("25"))

	ctx := context.Background()
	stale, err := f.store.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}

	if err := f.matcher.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Re-process the stale OPEN snapshot, as a racing tick would. The
	// conditional transition makes the second attempt a no-op.
	f.matcher.processOrder(ctx, stale)

	if got := f.walletBalance(t, "c1"); !got.Equal(d("749.75")) {
		t.Errorf("wallet balance = %s, want a single debit to 749.75", got)
	}
	records, err := f.store.ListStockTransactionsByPortfolio(ctx, "port-c1")
	if err != nil {
		t.Fatalf("ListStockTransactionsByPortfolio: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d settlement records, want 1", len(records))
	}
}

func TestConcurrentSellsCannotOversell(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "0")
	f.seedHolding(t, "c1", "THYAO", "5", "18")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideSell, "5", "20")
	f.seedOrder(t, "o2", "c1", "THYAO", models.OrderSideSell, "5", "20")
	f.prices.Set("THYAO", d("25"))

	ctx := context.Background()
	if err := f.matcher.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Both orders target the same 5 settled shares; the in-transaction
	// availability check lets exactly one of them through.
	filled := 0
	for _, id := range []string{"o1", "o2"} {
		if f.orderStatus(t, id) == models.OrderFilled {
			filled++
		}
	}
	if filled != 1 {
		t.Errorf("got %d filled sells, want exactly 1", filled)
	}

	net, err := f.tracker.NetQuantity(ctx, "c1", "THYAO")
	if err != nil {
		t.Fatalf("NetQuantity: %v", err)
	}
	if net.IsNegative() {
		t.Errorf("net position = %s, must never go negative", net)
	}
	if !net.IsZero() {
		t.Errorf("net position = %s, want 0 after the single fill", net)
	}

	// One credit: 5 x 25 minus 0.1% commission.
	if got := f.walletBalance(t, "c1"); !got.Equal(d("124.875")) {
		t.Errorf("wallet balance = %s, want a single credit of 124.875", got)
	}
}

// gateSource blocks every price lookup until released, holding a tick
// mid-flight.
type gateSource struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateSource) LastPrice(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	g.entered <- struct{}{}
	<-g.release
	return d("25"), true, nil
}

func TestOverlappingTickIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")

	gate := &gateSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	clock := func() time.Time { return f.now }
	m := NewMatcher(f.store, gate, f.hours, f.tracker, zerolog.Nop(), MatcherConfig{
		Interval:     time.Second,
		Workers:      1,
		PriceTimeout: time.Minute,
	})
	m.SetClock(clock)
	m.pool.Start()
	t.Cleanup(m.pool.Stop)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- m.Tick(ctx) }()
	<-gate.entered

	// The first tick is stuck on the quote; a second call must return
	// right away instead of processing the book again. Returning at all
	// while the gate is still closed proves it skipped.
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("overlapping Tick: %v", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first Tick: %v", err)
	}

	if got := f.orderStatus(t, "o1"); got != models.OrderFilled {
		t.Errorf("order = %s, want FILLED once by the first tick", got)
	}
	if got := f.walletBalance(t, "c1"); !got.Equal(d("749.75")) {
		t.Errorf("wallet balance = %s, want a single debit to 749.75", got)
	}
}

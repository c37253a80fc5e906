package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"brokerage-backoffice/internal/models"
)

func TestEndOfDaySweepCancelsLeftoverOrders(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")

	// Two orders today, one left over from yesterday.
	f.seedOrder(t, "o-today-1", "c1", "THYAO", models.OrderSideBuy, "10", "30")
	f.seedOrder(t, "o-today-2", "c1", "GARAN", models.OrderSideSell, "5", "40")

	yesterday := f.now.AddDate(0, 0, -1)
	old := &models.Order{
		ID:         "o-yesterday",
		CustomerID: "c1",
		Ticker:     "THYAO",
		Side:       models.OrderSideBuy,
		Category:   models.OrderCategoryLimit,
		Quantity:   d("1"),
		LimitPrice: d("30"),
		Status:     models.OrderOpen,
		CreatedAt:  yesterday,
		UpdatedAt:  yesterday,
	}
	if err := f.store.InsertOrder(context.Background(), old); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	evening := time.Date(2024, 6, 12, 19, 0, 0, 0, f.hours.Location())
	lifecycle := NewLifecycle(f.store, f.hours, zerolog.Nop())
	lifecycle.SetClock(func() time.Time { return evening })
	eod := NewEndOfDay(f.hours, lifecycle, zerolog.Nop(), time.Minute)
	eod.SetClock(func() time.Time { return evening })

	n, err := eod.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("cancelled %d orders, want today's 2", n)
	}

	if got := f.orderStatus(t, "o-today-1"); got != models.OrderCanceled {
		t.Errorf("o-today-1 = %s, want CANCELED", got)
	}
	if got := f.orderStatus(t, "o-today-2"); got != models.OrderCanceled {
		t.Errorf("o-today-2 = %s, want CANCELED", got)
	}
	// The sweep is day-bounded: yesterday's leftover is out of scope.
	if got := f.orderStatus(t, "o-yesterday"); got != models.OrderOpen {
		t.Errorf("o-yesterday = %s, want OPEN", got)
	}

	// Idempotent: a second sweep finds nothing.
	n, err = eod.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep cancelled %d orders, want 0", n)
	}
}

func TestEndOfDaySweepSkipsFilledOrders(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")
	f.prices.Set("THYAO", d("25"))

	if err := f.matcher.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	evening := time.Date(2024, 6, 12, 19, 0, 0, 0, f.hours.Location())
	lifecycle := NewLifecycle(f.store, f.hours, zerolog.Nop())
	lifecycle.SetClock(func() time.Time { return evening })
	eod := NewEndOfDay(f.hours, lifecycle, zerolog.Nop(), time.Minute)
	eod.SetClock(func() time.Time { return evening })

	n, err := eod.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("sweep cancelled %d orders, want 0 (order already filled)", n)
	}
	if got := f.orderStatus(t, "o1"); got != models.OrderFilled {
		t.Errorf("order = %s, want FILLED untouched by the sweep", got)
	}
}

func TestEndOfDaySparesPreOpenCollectionWindow(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")

	// Order collected at 09:40, before the 10:00 open. The market is not
	// open yet, but the day has not closed either, so a sweep firing on
	// its interval must leave the order alone.
	placedAt := time.Date(2024, 6, 12, 9, 40, 0, 0, f.hours.Location())
	order := &models.Order{
		ID:         "o-preopen",
		CustomerID: "c1",
		Ticker:     "THYAO",
		Side:       models.OrderSideBuy,
		Category:   models.OrderCategoryLimit,
		Quantity:   d("10"),
		LimitPrice: d("30"),
		Status:     models.OrderOpen,
		CreatedAt:  placedAt,
		UpdatedAt:  placedAt,
	}
	if err := f.store.InsertOrder(context.Background(), order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	sweepAt := time.Date(2024, 6, 12, 9, 45, 0, 0, f.hours.Location())
	lifecycle := NewLifecycle(f.store, f.hours, zerolog.Nop())
	lifecycle.SetClock(func() time.Time { return sweepAt })
	eod := NewEndOfDay(f.hours, lifecycle, zerolog.Nop(), time.Minute)
	eod.SetClock(func() time.Time { return sweepAt })

	n, err := eod.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("pre-open sweep cancelled %d orders, want 0", n)
	}
	if got := f.orderStatus(t, "o-preopen"); got != models.OrderOpen {
		t.Errorf("order = %s, want OPEN until the market has closed", got)
	}
}

func TestEndOfDayNoOpWhileMarketOpen(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "c1", "1000")
	f.seedOrder(t, "o1", "c1", "THYAO", models.OrderSideBuy, "10", "30")

	lifecycle := NewLifecycle(f.store, f.hours, zerolog.Nop())
	lifecycle.SetClock(func() time.Time { return f.now })
	eod := NewEndOfDay(f.hours, lifecycle, zerolog.Nop(), time.Minute)
	eod.SetClock(func() time.Time { return f.now }) // 14:00, market open

	n, err := eod.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("open-market sweep cancelled %d orders, want 0", n)
	}
	if got := f.orderStatus(t, "o1"); got != models.OrderOpen {
		t.Errorf("order = %s, want OPEN", got)
	}
}

package market

import (
	"testing"
	"time"

	"brokerage-backoffice/internal/config"
)

func testHours(t *testing.T, closedDays ...string) *Hours {
	t.Helper()
	h, err := NewHours(config.MarketConfig{
		Timezone:             "Europe/Istanbul",
		OpenTime:             "10:00",
		CloseTime:            "18:00",
		CollectionStart:      "09:30",
		CollectionClosedDays: closedDays,
		Holidays:             []string{"2024-06-13"}, // a Thursday
	})
	if err != nil {
		t.Fatalf("NewHours: %v", err)
	}
	return h
}

func istanbul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func TestIsMarketOpenAt(t *testing.T) {
	h := testHours(t)
	loc := istanbul(t)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 6, 12, 9, 59, 0, 0, loc), false},
		{"at open boundary", time.Date(2024, 6, 12, 10, 0, 0, 0, loc), false},
		{"just after open", time.Date(2024, 6, 12, 10, 1, 0, 0, loc), true},
		{"midday", time.Date(2024, 6, 12, 13, 30, 0, 0, loc), true},
		{"just before close", time.Date(2024, 6, 12, 17, 59, 0, 0, loc), true},
		{"at close boundary", time.Date(2024, 6, 12, 18, 0, 0, 0, loc), false},
		{"after close", time.Date(2024, 6, 12, 19, 0, 0, 0, loc), false},
		{"saturday", time.Date(2024, 6, 15, 13, 0, 0, 0, loc), false},
		{"sunday", time.Date(2024, 6, 16, 13, 0, 0, 0, loc), false},
		{"holiday", time.Date(2024, 6, 13, 13, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.IsMarketOpenAt(tt.at); got != tt.want {
				t.Errorf("IsMarketOpenAt(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsMarketOpenAtConvertsTimeZone(t *testing.T) {
	h := testHours(t)

	// 11:00 UTC is 14:00 in Istanbul, well inside the session.
	at := time.Date(2024, 6, 12, 11, 0, 0, 0, time.UTC)
	if !h.IsMarketOpenAt(at) {
		t.Errorf("IsMarketOpenAt(%v) = false, want true", at)
	}
}

func TestIsPastCloseAt(t *testing.T) {
	h := testHours(t)
	loc := istanbul(t)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"early morning", time.Date(2024, 6, 12, 8, 0, 0, 0, loc), false},
		{"collection window", time.Date(2024, 6, 12, 9, 45, 0, 0, loc), false},
		{"midday", time.Date(2024, 6, 12, 14, 0, 0, 0, loc), false},
		{"just before close", time.Date(2024, 6, 12, 17, 59, 0, 0, loc), false},
		{"at close", time.Date(2024, 6, 12, 18, 0, 0, 0, loc), true},
		{"evening", time.Date(2024, 6, 12, 19, 0, 0, 0, loc), true},
		{"saturday evening", time.Date(2024, 6, 15, 19, 0, 0, 0, loc), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.IsPastCloseAt(tt.at); got != tt.want {
				t.Errorf("IsPastCloseAt(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestCanPlaceOrderAt(t *testing.T) {
	h := testHours(t)
	loc := istanbul(t)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before collection", time.Date(2024, 6, 12, 9, 15, 0, 0, loc), false},
		{"at collection boundary", time.Date(2024, 6, 12, 9, 30, 0, 0, loc), false},
		{"during collection, pre-open", time.Date(2024, 6, 12, 9, 45, 0, 0, loc), true},
		{"during session", time.Date(2024, 6, 12, 15, 0, 0, 0, loc), true},
		{"at close", time.Date(2024, 6, 12, 18, 0, 0, 0, loc), false},
		{"saturday", time.Date(2024, 6, 15, 11, 0, 0, 0, loc), false},
		{"holiday", time.Date(2024, 6, 13, 11, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.CanPlaceOrderAt(tt.at); got != tt.want {
				t.Errorf("CanPlaceOrderAt(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestCanPlaceOrderAtClosedWeekday(t *testing.T) {
	h := testHours(t, "Monday")
	loc := istanbul(t)

	monday := time.Date(2024, 6, 10, 11, 0, 0, 0, loc)
	if h.CanPlaceOrderAt(monday) {
		t.Error("expected collection refused on a configured closed weekday")
	}
	// The market itself still trades on that day.
	if !h.IsMarketOpenAt(monday) {
		t.Error("expected the market itself open on a collection-closed weekday")
	}

	tuesday := time.Date(2024, 6, 11, 11, 0, 0, 0, loc)
	if !h.CanPlaceOrderAt(tuesday) {
		t.Error("expected collection allowed on an ordinary weekday")
	}
}

func TestAddTradingDays(t *testing.T) {
	h := testHours(t)
	loc := istanbul(t)

	tests := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{
			"midweek",
			time.Date(2024, 6, 10, 12, 0, 0, 0, loc), // Monday
			2,
			time.Date(2024, 6, 12, 12, 0, 0, 0, loc), // Wednesday
		},
		{
			"over the weekend",
			time.Date(2024, 6, 14, 12, 0, 0, 0, loc), // Friday
			2,
			time.Date(2024, 6, 18, 12, 0, 0, 0, loc), // Tuesday
		},
		{
			"over a holiday",
			time.Date(2024, 6, 12, 12, 0, 0, 0, loc), // Wednesday, Thursday is a holiday
			2,
			time.Date(2024, 6, 17, 12, 0, 0, 0, loc), // Friday then Monday
		},
		{
			"zero days",
			time.Date(2024, 6, 12, 12, 0, 0, 0, loc),
			0,
			time.Date(2024, 6, 12, 12, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.AddTradingDays(tt.from, tt.n)
			if !got.Equal(tt.want) {
				t.Errorf("AddTradingDays(%v, %d) = %v, want %v", tt.from, tt.n, got, tt.want)
			}
		})
	}
}

func TestNextTradingDayFromWeekend(t *testing.T) {
	h := testHours(t)
	loc := istanbul(t)

	saturday := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	got := h.NextTradingDay(saturday)
	want := time.Date(2024, 6, 17, 12, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("NextTradingDay(%v) = %v, want %v", saturday, got, want)
	}
}

// Package market provides market-hour awareness and price access.
package market

import (
	"time"

	"brokerage-backoffice/internal/config"
)

// Hours decides whether the market is open and whether new orders may be
// collected. It is a pure function of wall-clock time and configuration;
// the clock is injectable for tests.
type Hours struct {
	location        *time.Location
	openMinute      int // minutes from midnight
	closeMinute     int
	collectionStart int
	closedWeekdays  map[time.Weekday]bool // collection-window policy
	holidays        map[string]bool       // "2006-01-02" -> closed
	now             func() time.Time
}

// NewHours builds an Hours calendar from configuration.
func NewHours(cfg config.MarketConfig) (*Hours, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	open, err := parseClock(cfg.OpenTime)
	if err != nil {
		return nil, err
	}
	closeAt, err := parseClock(cfg.CloseTime)
	if err != nil {
		return nil, err
	}
	collection, err := parseClock(cfg.CollectionStart)
	if err != nil {
		return nil, err
	}

	h := &Hours{
		location:        loc,
		openMinute:      open,
		closeMinute:     closeAt,
		collectionStart: collection,
		closedWeekdays:  make(map[time.Weekday]bool),
		holidays:        make(map[string]bool),
		now:             time.Now,
	}
	for _, wd := range cfg.CollectionClosedWeekdays() {
		h.closedWeekdays[wd] = true
	}
	for _, d := range cfg.Holidays {
		h.holidays[d] = true
	}
	return h, nil
}

// SetClock replaces the wall clock. Used by tests.
func (h *Hours) SetClock(now func() time.Time) { h.now = now }

// Location returns the market's time zone.
func (h *Hours) Location() *time.Location { return h.location }

// AddHoliday marks a date as a market holiday.
func (h *Hours) AddHoliday(date time.Time) {
	h.holidays[date.In(h.location).Format("2006-01-02")] = true
}

// IsHoliday checks if a date is a market holiday.
func (h *Hours) IsHoliday(date time.Time) bool {
	return h.holidays[date.In(h.location).Format("2006-01-02")]
}

// IsMarketOpen reports whether the market is open right now.
func (h *Hours) IsMarketOpen() bool {
	return h.IsMarketOpenAt(h.now())
}

// IsMarketOpenAt reports whether the market is open at time t: weekdays
// only, no holidays, and strictly between the open and close bounds.
func (h *Hours) IsMarketOpenAt(t time.Time) bool {
	t = t.In(h.location)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	if h.IsHoliday(t) {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m > h.openMinute && m < h.closeMinute
}

// IsPastClose reports whether the close bound has passed today.
func (h *Hours) IsPastClose() bool {
	return h.IsPastCloseAt(h.now())
}

// IsPastCloseAt reports whether t falls at or after the close bound of its
// own day. Mornings and the pre-open collection window are not past close
// even though the market is not open then.
func (h *Hours) IsPastCloseAt(t time.Time) bool {
	t = t.In(h.location)
	m := t.Hour()*60 + t.Minute()
	return m >= h.closeMinute
}

// CanPlaceOrder reports whether new orders may be collected right now.
func (h *Hours) CanPlaceOrder() bool {
	return h.CanPlaceOrderAt(h.now())
}

// CanPlaceOrderAt reports whether new orders may be collected at time t.
// The collection window opens earlier than the market and shares its close;
// weekends and any configured closed weekdays are refused.
func (h *Hours) CanPlaceOrderAt(t time.Time) bool {
	t = t.In(h.location)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	if h.closedWeekdays[t.Weekday()] {
		return false
	}
	if h.IsHoliday(t) {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m > h.collectionStart && m < h.closeMinute
}

// IsTradingDay reports whether t falls on a trading day.
func (h *Hours) IsTradingDay(t time.Time) bool {
	t = t.In(h.location)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !h.IsHoliday(t)
}

// NextTradingDay returns the first trading day strictly after t.
func (h *Hours) NextTradingDay(t time.Time) time.Time {
	next := t.In(h.location).AddDate(0, 0, 1)
	for !h.IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// AddTradingDays advances t by n trading days, skipping weekends and
// holidays. Used to compute settlement dates.
func (h *Hours) AddTradingDays(t time.Time, n int) time.Time {
	d := t.In(h.location)
	for i := 0; i < n; i++ {
		d = h.NextTradingDay(d)
	}
	return d
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

/*
period.go - Billing period value type

PURPOSE:
  A BillingPeriod bounds one invoice cycle. Fixed and hybrid tariffs use
  it for pro-ration of partial months and for the seasonal rate split
  (summer vs winter multipliers inherited from the heating domain).

CONVENTIONS:
  Periods are inclusive of both boundary dates and compared at day
  granularity in UTC. MonthOf() is the usual constructor; custom ranges
  appear when a property changes hands mid-month.

SEE ALSO:
  - pricing.go: Pro-ration and seasonal adjustment
  - tariff.go: SeasonalAdjustment configuration
*/
package billing

import (
	"fmt"
	"time"
)

// Summer months for seasonal tariff adjustments. The heating-domain
// convention: circulation-only months are May through September.
const (
	summerStartMonth = time.May
	summerEndMonth   = time.September
)

// BillingPeriod is an inclusive date range for one billing cycle.
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

// MonthOf returns the full calendar month containing the given date.
func MonthOf(at time.Time) BillingPeriod {
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}
}

// NewBillingPeriod builds a period from two dates, normalized to UTC days.
func NewBillingPeriod(start, end time.Time) (BillingPeriod, error) {
	s := truncateDay(start)
	e := truncateDay(end)
	if e.Before(s) {
		return BillingPeriod{}, fmt.Errorf("billing period: end %s before start %s",
			e.Format("2006-01-02"), s.Format("2006-01-02"))
	}
	return BillingPeriod{Start: s, End: e}, nil
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Days returns the number of days in the period, inclusive.
func (p BillingPeriod) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// DaysInStartMonth returns the length of the month the period starts in.
func (p BillingPeriod) DaysInStartMonth() int {
	first := time.Date(p.Start.Year(), p.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// IsPartialMonth reports whether the period covers less than the full
// calendar month it starts in. Monthly fees are pro-rated for partial
// periods.
func (p BillingPeriod) IsPartialMonth() bool {
	if p.Start.Day() != 1 {
		return true
	}
	last := time.Date(p.End.Year(), p.End.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	return !(p.End.Month() == p.Start.Month() && p.End.Year() == p.Start.Year() && p.End.Day() == last.Day())
}

// IsSummer reports whether the period starts in the summer season.
func (p BillingPeriod) IsSummer() bool {
	m := p.Start.Month()
	return m >= summerStartMonth && m <= summerEndMonth
}

// Overlaps reports whether two periods share at least one day.
func (p BillingPeriod) Overlaps(other BillingPeriod) bool {
	return !p.End.Before(other.Start) && !other.End.Before(p.Start)
}

// Contains reports whether the date falls inside the period.
func (p BillingPeriod) Contains(at time.Time) bool {
	d := truncateDay(at)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Label returns a human-readable period label, e.g. "2025-01" for a full
// month or "2025-01-10..2025-01-31" for a partial range.
func (p BillingPeriod) Label() string {
	if !p.IsPartialMonth() {
		return p.Start.Format("2006-01")
	}
	return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
}

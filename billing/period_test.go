package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norvik/billing-engine/billing"
)

func TestMonthOf_FullCalendarMonth(t *testing.T) {
	period := billing.MonthOf(date(2025, time.January, 15))

	assert.Equal(t, date(2025, time.January, 1), period.Start)
	assert.Equal(t, date(2025, time.January, 31), period.End)
	assert.Equal(t, 31, period.Days())
	assert.False(t, period.IsPartialMonth())
	assert.Equal(t, "2025-01", period.Label())
}

func TestNewBillingPeriod_EndBeforeStart_Rejected(t *testing.T) {
	_, err := billing.NewBillingPeriod(date(2025, time.March, 10), date(2025, time.March, 1))
	assert.Error(t, err)
}

func TestBillingPeriod_PartialMonth(t *testing.T) {
	// A mid-month move-in produces a partial period that must be pro-rated.
	period, err := billing.NewBillingPeriod(date(2025, time.January, 10), date(2025, time.January, 31))
	require.NoError(t, err)

	assert.True(t, period.IsPartialMonth())
	assert.Equal(t, 22, period.Days())
	assert.Equal(t, 31, period.DaysInStartMonth())
	assert.Equal(t, "2025-01-10..2025-01-31", period.Label())
}

func TestBillingPeriod_SummerSeason(t *testing.T) {
	// Summer runs May through September.
	assert.False(t, billing.MonthOf(date(2025, time.April, 1)).IsSummer())
	assert.True(t, billing.MonthOf(date(2025, time.May, 1)).IsSummer())
	assert.True(t, billing.MonthOf(date(2025, time.September, 1)).IsSummer())
	assert.False(t, billing.MonthOf(date(2025, time.October, 1)).IsSummer())
}

func TestBillingPeriod_OverlapsAndContains(t *testing.T) {
	january := billing.MonthOf(date(2025, time.January, 1))
	february := billing.MonthOf(date(2025, time.February, 1))
	straddle, err := billing.NewBillingPeriod(date(2025, time.January, 20), date(2025, time.February, 10))
	require.NoError(t, err)

	assert.False(t, january.Overlaps(february))
	assert.True(t, january.Overlaps(straddle))
	assert.True(t, february.Overlaps(straddle))

	assert.True(t, january.Contains(date(2025, time.January, 31)))
	assert.False(t, january.Contains(date(2025, time.February, 1)))
}

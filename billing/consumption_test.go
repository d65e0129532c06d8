package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norvik/billing-engine/billing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func reading(meter string, value string, at time.Time) billing.Reading {
	return billing.Reading{
		ID:          meter + "-" + at.Format("2006-01-02"),
		MeterID:     billing.MeterID(meter),
		Value:       dec(value),
		ReadingDate: at,
		Kind:        billing.KindActual,
		Status:      billing.StatusApproved,
	}
}

func zonedReading(meter string, zone billing.Zone, value string, at time.Time) billing.Reading {
	r := reading(meter, value, at)
	r.ID = r.ID + "-" + string(zone)
	r.Zone = zone
	return r
}

// =============================================================================
// CONSUMPTION COMPUTATION TESTS
// =============================================================================

func TestCompute_SimpleDelta(t *testing.T) {
	// GIVEN: Readings of 100 and 150 one month apart
	// WHEN: Computing consumption
	// THEN: The delta is 50 units over that interval

	start := reading("m-1", "100", date(2025, time.January, 1))
	end := reading("m-1", "150", date(2025, time.February, 1))

	record, err := billing.Compute(start, end)
	require.NoError(t, err)

	assert.True(t, record.Amount.Equal(dec("50")), "expected 50, got %s", record.Amount)
	assert.Equal(t, billing.MeterID("m-1"), record.MeterID)
	assert.Equal(t, date(2025, time.January, 1), record.PeriodStart())
	assert.Equal(t, date(2025, time.February, 1), record.PeriodEnd())
}

func TestCompute_ZeroDelta_IsValid(t *testing.T) {
	start := reading("m-1", "100", date(2025, time.January, 1))
	end := reading("m-1", "100", date(2025, time.February, 1))

	record, err := billing.Compute(start, end)
	require.NoError(t, err)
	assert.True(t, record.Amount.IsZero())
}

func TestCompute_MeterMismatch_Rejected(t *testing.T) {
	start := reading("m-1", "100", date(2025, time.January, 1))
	end := reading("m-2", "150", date(2025, time.February, 1))

	_, err := billing.Compute(start, end)
	assert.ErrorIs(t, err, billing.ErrMeterMismatch)
}

func TestCompute_ZoneMismatch_Rejected(t *testing.T) {
	start := zonedReading("m-1", billing.ZoneDay, "100", date(2025, time.January, 1))
	end := zonedReading("m-1", billing.ZoneNight, "150", date(2025, time.February, 1))

	_, err := billing.Compute(start, end)
	assert.ErrorIs(t, err, billing.ErrMeterMismatch)
}

func TestCompute_EndNotAfterStart_Rejected(t *testing.T) {
	// GIVEN: End reading dated same day as start
	// THEN: Ordering error, not a zero consumption

	start := reading("m-1", "100", date(2025, time.January, 1))
	end := reading("m-1", "150", date(2025, time.January, 1))

	_, err := billing.Compute(start, end)
	assert.ErrorIs(t, err, billing.ErrInvalidOrdering)

	var ordErr *billing.OrderingError
	assert.ErrorAs(t, err, &ordErr)
}

func TestCompute_NegativeDelta_Rejected(t *testing.T) {
	// A value drop is never silently billed as negative consumption.
	start := reading("m-1", "150", date(2025, time.January, 1))
	end := reading("m-1", "120", date(2025, time.February, 1))

	_, err := billing.Compute(start, end)
	assert.ErrorIs(t, err, billing.ErrNegativeConsumption)

	var negErr *billing.NegativeConsumptionError
	require.ErrorAs(t, err, &negErr)
	assert.True(t, negErr.StartValue.Equal(dec("150")))
	assert.True(t, negErr.EndValue.Equal(dec("120")))
}

func TestComputeZones_PerZoneRecords(t *testing.T) {
	pairs := []billing.ReadingPair{
		{
			Start: zonedReading("m-1", billing.ZoneDay, "100", date(2025, time.January, 1)),
			End:   zonedReading("m-1", billing.ZoneDay, "160", date(2025, time.February, 1)),
		},
		{
			Start: zonedReading("m-1", billing.ZoneNight, "50", date(2025, time.January, 1)),
			End:   zonedReading("m-1", billing.ZoneNight, "90", date(2025, time.February, 1)),
		},
	}

	records, err := billing.ComputeZones(pairs)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Amount.Equal(dec("60")))
	assert.True(t, records[1].Amount.Equal(dec("40")))
}

func TestComputeZones_OneBadPair_AbortsAll(t *testing.T) {
	pairs := []billing.ReadingPair{
		{
			Start: zonedReading("m-1", billing.ZoneDay, "100", date(2025, time.January, 1)),
			End:   zonedReading("m-1", billing.ZoneDay, "160", date(2025, time.February, 1)),
		},
		{
			Start: zonedReading("m-1", billing.ZoneNight, "90", date(2025, time.January, 1)),
			End:   zonedReading("m-1", billing.ZoneNight, "50", date(2025, time.February, 1)),
		},
	}

	records, err := billing.ComputeZones(pairs)
	assert.ErrorIs(t, err, billing.ErrNegativeConsumption)
	assert.Nil(t, records, "partial breakdowns cannot be priced")
}

// =============================================================================
// CONSUMPTION DATA CONSTRUCTION TESTS
// =============================================================================

func TestNewConsumption_RejectsNegative(t *testing.T) {
	_, err := billing.NewConsumption(dec("-1"))
	assert.ErrorIs(t, err, billing.ErrNegativeConsumption)
}

func TestNewZonedConsumption_ZonesMustSumToTotal(t *testing.T) {
	// GIVEN: Zone amounts 60 + 40 with total 100
	// THEN: Accepted; the breakdown is consistent

	data, err := billing.NewZonedConsumption(dec("100"), map[billing.Zone]decimal.Decimal{
		billing.ZoneDay:   dec("60"),
		billing.ZoneNight: dec("40"),
	})
	require.NoError(t, err)
	assert.True(t, data.HasZones())

	day, ok := data.ZoneAmount(billing.ZoneDay)
	require.True(t, ok)
	assert.True(t, day.Equal(dec("60")))
}

func TestNewZonedConsumption_WithinTolerance_Accepted(t *testing.T) {
	// Sum differs from total by 0.0005, inside the 0.001 tolerance.
	_, err := billing.NewZonedConsumption(dec("100.0005"), map[billing.Zone]decimal.Decimal{
		billing.ZoneDay:   dec("60"),
		billing.ZoneNight: dec("40"),
	})
	assert.NoError(t, err)
}

func TestNewZonedConsumption_BeyondTolerance_Rejected(t *testing.T) {
	_, err := billing.NewZonedConsumption(dec("101"), map[billing.Zone]decimal.Decimal{
		billing.ZoneDay:   dec("60"),
		billing.ZoneNight: dec("40"),
	})
	assert.ErrorIs(t, err, billing.ErrInconsistentZoneData)

	var zoneErr *billing.InconsistentZoneDataError
	assert.ErrorAs(t, err, &zoneErr)
}

func TestConsumptionFromRecords_AggregatesZones(t *testing.T) {
	pairs := []billing.ReadingPair{
		{
			Start: zonedReading("m-1", billing.ZoneDay, "0", date(2025, time.January, 1)),
			End:   zonedReading("m-1", billing.ZoneDay, "70", date(2025, time.February, 1)),
		},
		{
			Start: zonedReading("m-1", billing.ZoneNight, "0", date(2025, time.January, 1)),
			End:   zonedReading("m-1", billing.ZoneNight, "30", date(2025, time.February, 1)),
		},
	}
	records, err := billing.ComputeZones(pairs)
	require.NoError(t, err)

	data, err := billing.ConsumptionFromRecords(records)
	require.NoError(t, err)
	assert.True(t, data.Total().Equal(dec("100")))
	assert.ElementsMatch(t, []billing.Zone{billing.ZoneDay, billing.ZoneNight}, data.ZoneNames())
}

func TestConsumptionFromRecords_MixedZonedAndUnzoned_Rejected(t *testing.T) {
	// GIVEN: Zoned day/night records plus an unzoned remainder
	// WHEN: Aggregating into pricing input
	// THEN: The mix is rejected - the remainder would escape every
	//       per-zone rate

	records := []billing.ConsumptionRecord{
		{MeterID: "m-1", Zone: billing.ZoneDay, Amount: dec("10")},
		{MeterID: "m-1", Zone: billing.ZoneNight, Amount: dec("5")},
		{MeterID: "m-1", Amount: dec("3")},
	}

	_, err := billing.ConsumptionFromRecords(records)
	assert.ErrorIs(t, err, billing.ErrMixedZoneRecords)
}

func TestConsumptionFromRecords_AllUnzoned_TotalsOnly(t *testing.T) {
	records := []billing.ConsumptionRecord{
		{MeterID: "m-1", Amount: dec("12")},
		{MeterID: "m-1", Amount: dec("8")},
	}

	data, err := billing.ConsumptionFromRecords(records)
	require.NoError(t, err)
	assert.True(t, data.Total().Equal(dec("20")))
	assert.False(t, data.HasZones())
}

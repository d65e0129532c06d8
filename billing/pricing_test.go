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

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine() *billing.PricingEngine {
	return billing.NewPricingEngine(billing.FixedClock{At: testNow})
}

func tariffWith(model billing.PricingModel) billing.TariffConfiguration {
	return billing.TariffConfiguration{
		ID:            "t-1",
		ServiceName:   "electricity",
		Model:         model,
		EffectiveFrom: date(2024, time.January, 1),
		LastChangedAt: date(2024, time.January, 1),
	}
}

func consumption(total string) billing.ConsumptionData {
	data, err := billing.NewConsumption(dec(total))
	if err != nil {
		panic(err)
	}
	return data
}

func upTo(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// =============================================================================
// FIXED MONTHLY
// =============================================================================

func TestPrice_FixedMonthly_FullMonth(t *testing.T) {
	engine := newTestEngine()
	period := billing.MonthOf(date(2025, time.January, 1))

	result, err := engine.Price(consumption("999"), tariffWith(billing.FixedMonthly{MonthlyRate: dec("45.00")}), period)
	require.NoError(t, err)

	// Consumption is ignored; no adjustments on a full non-seasonal month.
	assert.True(t, result.TotalAmount.Equal(dec("45.00")), "got %s", result.TotalAmount)
	assert.True(t, result.FixedAmount.Equal(dec("45.00")))
	assert.True(t, result.ConsumptionAmount.IsZero())
	assert.Empty(t, result.Adjustments)
	assert.True(t, result.Balanced())
}

func TestPrice_FixedMonthly_PartialMonth_ProRated(t *testing.T) {
	// GIVEN: Monthly rate 50.00, tenancy covering 15 of April's 30 days
	// WHEN: Pricing the partial period
	// THEN: Total is 25.00 with a named pro-ration adjustment

	engine := newTestEngine()
	period, err := billing.NewBillingPeriod(date(2025, time.April, 16), date(2025, time.April, 30))
	require.NoError(t, err)

	result, err := engine.Price(consumption("0"), tariffWith(billing.FixedMonthly{MonthlyRate: dec("50.00")}), period)
	require.NoError(t, err)

	assert.True(t, result.TotalAmount.Equal(dec("25")), "got %s", result.TotalAmount)
	assert.True(t, result.BaseAmount.Equal(dec("50.00")), "base stays at the configured rate")
	require.Len(t, result.Adjustments, 1)
	assert.Equal(t, "pro_ration", result.Adjustments[0].Type)
	assert.True(t, result.Adjustments[0].Amount.Equal(dec("-25")))
	assert.True(t, result.Balanced())
	assert.Equal(t, "true", result.Details["pro_rated"])
}

func TestPrice_FixedMonthly_SummerMultiplier(t *testing.T) {
	// Circulation-only summer months are billed at a reduced rate.
	engine := newTestEngine()
	model := billing.FixedMonthly{
		MonthlyRate: dec("100.00"),
		Seasonal:    billing.SeasonalAdjustment{SummerMultiplier: dec("0.5")},
	}

	result, err := engine.Price(consumption("0"), tariffWith(model), billing.MonthOf(date(2025, time.July, 1)))
	require.NoError(t, err)

	assert.True(t, result.TotalAmount.Equal(dec("50")), "got %s", result.TotalAmount)
	require.Len(t, result.Adjustments, 1)
	assert.Equal(t, "seasonal_adjustment", result.Adjustments[0].Type)
	assert.True(t, result.Adjustments[0].Amount.Equal(dec("-50")))

	// The same tariff in January is unaffected: no winter multiplier set.
	winter, err := engine.Price(consumption("0"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)
	assert.True(t, winter.TotalAmount.Equal(dec("100.00")))
	assert.Empty(t, winter.Adjustments)
}

// =============================================================================
// CONSUMPTION BASED
// =============================================================================

func TestPrice_ConsumptionBased(t *testing.T) {
	// GIVEN: Readings moved 100 -> 150 and a unit rate of 0.20
	// THEN: The charge is exactly 10.00

	start := reading("m-1", "100", date(2025, time.January, 1))
	end := reading("m-1", "150", date(2025, time.February, 1))
	record, err := billing.Compute(start, end)
	require.NoError(t, err)

	data, err := billing.ConsumptionFromRecords([]billing.ConsumptionRecord{record})
	require.NoError(t, err)

	engine := newTestEngine()
	result, err := engine.Price(data, tariffWith(billing.ConsumptionBased{UnitRate: dec("0.20")}), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	assert.True(t, result.TotalAmount.Equal(dec("10.00")), "got %s", result.TotalAmount)
	assert.True(t, result.ConsumptionAmount.Equal(dec("10.00")))
	assert.True(t, result.FixedAmount.IsZero())
	assert.True(t, result.Balanced())
}

// =============================================================================
// TIERED
// =============================================================================

func TestPrice_Tiered_SlicesAcrossBrackets(t *testing.T) {
	// 150 units over [0,100]@0.10 then unbounded@0.20:
	// 100*0.10 + 50*0.20 = 20.00
	engine := newTestEngine()
	model := billing.Tiered{Tiers: []billing.Tier{
		{UpTo: upTo("100"), Rate: dec("0.10")},
		{Rate: dec("0.20")},
	}}

	result, err := engine.Price(consumption("150"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	assert.True(t, result.TotalAmount.Equal(dec("20")), "got %s", result.TotalAmount)
	assert.Equal(t, "100", result.Details["tier_1_consumption"])
	assert.Equal(t, "50", result.Details["tier_2_consumption"])
}

func TestPrice_Tiered_Additivity(t *testing.T) {
	// Pricing C must equal the sum of pricing each slice at its own rate;
	// exercised at a tier boundary.
	engine := newTestEngine()
	model := billing.Tiered{Tiers: []billing.Tier{
		{UpTo: upTo("50"), Rate: dec("0.10")},
		{UpTo: upTo("100"), Rate: dec("0.15")},
		{Rate: dec("0.25")},
	}}
	period := billing.MonthOf(date(2025, time.January, 1))

	whole, err := engine.Price(consumption("130"), tariffWith(model), period)
	require.NoError(t, err)

	expected := dec("50").Mul(dec("0.10")).
		Add(dec("50").Mul(dec("0.15"))).
		Add(dec("30").Mul(dec("0.25")))
	assert.True(t, whole.TotalAmount.Equal(expected), "expected %s, got %s", expected, whole.TotalAmount)
}

func TestPrice_Tiered_ConsumptionBelowFirstBound(t *testing.T) {
	engine := newTestEngine()
	model := billing.Tiered{Tiers: []billing.Tier{
		{UpTo: upTo("100"), Rate: dec("0.10")},
		{Rate: dec("0.20")},
	}}

	result, err := engine.Price(consumption("40"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)
	assert.True(t, result.TotalAmount.Equal(dec("4")))
}

func TestPrice_Tiered_MissingSentinel_Rejected(t *testing.T) {
	// A schedule without the unbounded final tier cannot price arbitrary
	// consumption and is a configuration error.
	engine := newTestEngine()
	model := billing.Tiered{Tiers: []billing.Tier{
		{UpTo: upTo("100"), Rate: dec("0.10")},
	}}

	_, err := engine.Price(consumption("150"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrIncompleteTierSchedule)
}

func TestPrice_Tiered_NonIncreasingBounds_Rejected(t *testing.T) {
	engine := newTestEngine()
	model := billing.Tiered{Tiers: []billing.Tier{
		{UpTo: upTo("100"), Rate: dec("0.10")},
		{UpTo: upTo("100"), Rate: dec("0.15")},
		{Rate: dec("0.20")},
	}}

	_, err := engine.Price(consumption("150"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrInvalidTierSchedule)
}

// =============================================================================
// TIME OF USE
// =============================================================================

func touModel() billing.TimeOfUse {
	return billing.TimeOfUse{
		Zones: []billing.ZoneRate{
			{Zone: billing.ZoneDay, Start: billing.Minute(7, 0), End: billing.Minute(23, 0), Rate: dec("0.25")},
			{Zone: billing.ZoneNight, Start: billing.Minute(23, 0), End: billing.Minute(7, 0), Rate: dec("0.10")},
		},
		DefaultRate: dec("0.20"),
	}
}

func TestPrice_TimeOfUse_ZonedConsumption(t *testing.T) {
	// day 60 @ 0.25 + night 40 @ 0.10 = 19.00
	data, err := billing.NewZonedConsumption(dec("100"), map[billing.Zone]decimal.Decimal{
		billing.ZoneDay:   dec("60"),
		billing.ZoneNight: dec("40"),
	})
	require.NoError(t, err)

	engine := newTestEngine()
	result, err := engine.Price(data, tariffWith(touModel()), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	assert.True(t, result.TotalAmount.Equal(dec("19")), "got %s", result.TotalAmount)
	assert.Equal(t, "0.25", result.Details["zone_day_rate"])
	assert.Equal(t, "0.1", result.Details["zone_night_rate"])
}

func TestPrice_TimeOfUse_UnzonedFallsBackToDefaultRate(t *testing.T) {
	engine := newTestEngine()

	result, err := engine.Price(consumption("100"), tariffWith(touModel()), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	assert.True(t, result.TotalAmount.Equal(dec("20")), "got %s", result.TotalAmount)
	assert.Equal(t, "0.2", result.Details["default_rate"])
}

func TestPrice_TimeOfUse_OverlappingZones_Rejected(t *testing.T) {
	engine := newTestEngine()
	model := billing.TimeOfUse{
		Zones: []billing.ZoneRate{
			{Zone: billing.ZoneDay, Start: billing.Minute(7, 0), End: billing.Minute(23, 0), Rate: dec("0.25")},
			{Zone: billing.ZoneNight, Start: billing.Minute(22, 0), End: billing.Minute(7, 0), Rate: dec("0.10")},
		},
		DefaultRate: dec("0.20"),
	}

	_, err := engine.Price(consumption("100"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrOverlappingZoneSchedule)
}

func TestSplitMidnight_CrossingRange(t *testing.T) {
	night := billing.ZoneRate{Zone: billing.ZoneNight, Start: billing.Minute(23, 0), End: billing.Minute(7, 0), Rate: dec("0.10")}

	split := billing.SplitMidnight(night)
	require.Len(t, split, 2)
	assert.Equal(t, billing.Minute(23, 0), split[0].Start)
	assert.Equal(t, billing.Minute(24, 0), split[0].End)
	assert.Equal(t, billing.Minute(0, 0), split[1].Start)
	assert.Equal(t, billing.Minute(7, 0), split[1].End)
}

func TestSplitMidnight_MidnightEndNormalized(t *testing.T) {
	// 22:00-00:00 reads as 22:00-24:00, not a crossing range with an
	// empty tail.
	night := billing.ZoneRate{Zone: billing.ZoneNight, Start: billing.Minute(22, 0), End: billing.Minute(0, 0), Rate: dec("0.10")}

	split := billing.SplitMidnight(night)
	require.Len(t, split, 1)
	assert.Equal(t, billing.Minute(22, 0), split[0].Start)
	assert.Equal(t, billing.Minute(24, 0), split[0].End)
}

func TestSplitMidnight_Idempotent(t *testing.T) {
	// Splitting the already-split halves changes nothing.
	night := billing.ZoneRate{Zone: billing.ZoneNight, Start: billing.Minute(23, 0), End: billing.Minute(7, 0), Rate: dec("0.10")}

	for _, half := range billing.SplitMidnight(night) {
		again := billing.SplitMidnight(half)
		require.Len(t, again, 1)
		assert.Equal(t, half, again[0])
	}
}

// =============================================================================
// HYBRID
// =============================================================================

func TestPrice_Hybrid_BaseFeePlusConsumption(t *testing.T) {
	engine := newTestEngine()
	model := billing.Hybrid{BaseFee: dec("15.00"), UnitRate: dec("0.10")}

	result, err := engine.Price(consumption("100"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	assert.True(t, result.FixedAmount.Equal(dec("15.00")))
	assert.True(t, result.ConsumptionAmount.Equal(dec("10")))
	assert.True(t, result.TotalAmount.Equal(dec("25")), "got %s", result.TotalAmount)
	assert.True(t, result.Balanced())
}

// =============================================================================
// CUSTOM FORMULA
// =============================================================================

func TestPrice_CustomFormula(t *testing.T) {
	engine := newTestEngine()
	model := billing.CustomFormula{
		Expression: "consumption * rate + base_fee",
		Variables: map[string]decimal.Decimal{
			"rate":     dec("0.20"),
			"base_fee": dec("5.00"),
		},
	}

	result, err := engine.Price(consumption("100"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	assert.True(t, result.TotalAmount.Equal(dec("25")), "got %s", result.TotalAmount)
	assert.Equal(t, "consumption * rate + base_fee", result.Details["formula"])
}

func TestPrice_CustomFormula_ConsumptionVariable_Rejected(t *testing.T) {
	// GIVEN: A tariff whose Variables carry their own "consumption"
	// WHEN: Pricing real metered consumption of 10
	// THEN: The tariff is rejected as misconfigured - only the metered
	//       input may bind consumption

	engine := newTestEngine()
	model := billing.CustomFormula{
		Expression: "consumption * rate",
		Variables: map[string]decimal.Decimal{
			"rate":        dec("1"),
			"consumption": dec("999"),
		},
	}

	_, err := engine.Price(consumption("10"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrFormulaEvaluation)
}

func TestPrice_CustomFormula_UnknownIdentifier_Rejected(t *testing.T) {
	engine := newTestEngine()
	model := billing.CustomFormula{Expression: "consumption * surcharge"}

	_, err := engine.Price(consumption("100"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrFormulaEvaluation)
}

func TestPrice_CustomFormula_UnboundVariable_Rejected(t *testing.T) {
	// "rate" is grammatically allowed but not bound by this tariff.
	engine := newTestEngine()
	model := billing.CustomFormula{Expression: "consumption * rate"}

	_, err := engine.Price(consumption("100"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrFormulaEvaluation)
}

func TestPrice_CustomFormula_DivisionByZero_Rejected(t *testing.T) {
	engine := newTestEngine()
	model := billing.CustomFormula{Expression: "consumption / 0"}

	_, err := engine.Price(consumption("100"), tariffWith(model), billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrFormulaEvaluation)
}

func TestValidateFormula(t *testing.T) {
	assert.NoError(t, billing.ValidateFormula("consumption * rate + base_fee"))
	assert.NoError(t, billing.ValidateFormula("(consumption - 10) * 0.5"))
	assert.Error(t, billing.ValidateFormula("consumption *"))
	assert.Error(t, billing.ValidateFormula("unknown_var + 1"))
}

// =============================================================================
// EFFECTIVENESS AND SNAPSHOTS
// =============================================================================

func TestPrice_TariffNotEffective_Rejected(t *testing.T) {
	engine := newTestEngine()
	tariff := tariffWith(billing.ConsumptionBased{UnitRate: dec("0.20")})
	tariff.EffectiveFrom = date(2025, time.June, 1)

	_, err := engine.Price(consumption("100"), tariff, billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrTariffNotEffective)
}

func TestPrice_ExpiredTariff_Rejected(t *testing.T) {
	engine := newTestEngine()
	tariff := tariffWith(billing.ConsumptionBased{UnitRate: dec("0.20")})
	until := date(2024, time.December, 31)
	tariff.EffectiveUntil = &until

	_, err := engine.Price(consumption("100"), tariff, billing.MonthOf(date(2025, time.January, 1)))
	assert.ErrorIs(t, err, billing.ErrTariffNotEffective)
}

func TestPrice_SnapshotFreezesTariff(t *testing.T) {
	// GIVEN: A priced calculation
	// THEN: The result embeds the tariff as it was, stamped by the clock

	engine := newTestEngine()
	result, err := engine.Price(consumption("100"), tariffWith(billing.ConsumptionBased{UnitRate: dec("0.20")}), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	snap := result.TariffSnapshot
	assert.Equal(t, billing.TariffID("t-1"), snap.TariffID)
	assert.Equal(t, "consumption_based", snap.Model)
	assert.Equal(t, "0.2", snap.RateSchedule["unit_rate"])
	assert.Equal(t, testNow, snap.TakenAt)
}

func TestCalculationResult_Rounded(t *testing.T) {
	engine := newTestEngine()
	result, err := engine.Price(consumption("3"), tariffWith(billing.ConsumptionBased{UnitRate: dec("0.333")}), billing.MonthOf(date(2025, time.January, 1)))
	require.NoError(t, err)

	rounded := result.Rounded(2)
	assert.True(t, rounded.TotalAmount.Equal(dec("1.00")), "got %s", rounded.TotalAmount)
	// The original result is untouched.
	assert.True(t, result.TotalAmount.Equal(dec("0.999")))
}

func TestCalculationResult_Rounded_StaysBalanced(t *testing.T) {
	// GIVEN: Component residues where fields rounded in isolation would
	//        disagree (0.004 + 0.004 round to 0.00 each, 0.008 to 0.01)
	// WHEN: Rounding for presentation
	// THEN: Base and total are recomputed from the rounded parts and the
	//       copy still balances

	result := billing.CalculationResult{
		FixedAmount:       dec("0.004"),
		ConsumptionAmount: dec("0.004"),
		BaseAmount:        dec("0.008"),
		TotalAmount:       dec("0.008"),
	}

	rounded := result.Rounded(2)
	assert.True(t, rounded.Balanced())
	assert.True(t, rounded.TotalAmount.Equal(dec("0")), "got %s", rounded.TotalAmount)
}

/*
tariff.go - Tariff configuration and the pricing model union

PURPOSE:
  Defines the closed set of pricing models a tariff can carry and the
  configuration envelope (effective dates, service name) around them.
  The set is sealed: adding or removing a model is a compile-time-checked
  change in pricing.go's type switch, not a stringly-typed dispatch.

PRICING MODELS:
  FixedMonthly     flat monthly fee, consumption-independent
  ConsumptionBased total consumption x per-unit rate
  Tiered           ascending brackets, each slice billed at its own rate
  TimeOfUse        per-zone time-of-day rates (day/night electricity)
  Hybrid           base fee + consumption-based charge
  CustomFormula    restricted expression over consumption/rate/base_fee

MIDNIGHT SPLITTING:
  Time-of-use ranges that cross midnight (23:00-07:00) are split into two
  sub-ranges (23:00-24:00 and 00:00-07:00) before the overlap check.
  SplitMidnight is idempotent: non-crossing ranges come back unchanged.

SNAPSHOTS:
  Every calculation freezes the configuration it used into a
  TariffSnapshot so audits and rollbacks can reconstruct exactly what was
  charged even after the tariff changes.

SEE ALSO:
  - pricing.go: Evaluates the models
  - formula.go: CustomFormula expression grammar
*/
package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICING MODEL - Sealed union
// =============================================================================

// PricingModel is the closed set of tariff pricing models. Only types in
// this package implement it; the pricing engine's type switch is therefore
// exhaustive by construction.
type PricingModel interface {
	// ModelName returns the stable wire/audit name of the model.
	ModelName() string

	// schedule describes the model's rate parameters for snapshots.
	schedule() map[string]string

	sealedModel()
}

// SeasonalAdjustment multiplies a monthly fee by season. A zero multiplier
// means "no adjustment for that season".
type SeasonalAdjustment struct {
	SummerMultiplier decimal.Decimal
	WinterMultiplier decimal.Decimal
}

// MultiplierFor returns the multiplier applicable to the period, or
// (1, false) when none is configured.
func (s SeasonalAdjustment) MultiplierFor(period BillingPeriod) (decimal.Decimal, bool) {
	if period.IsSummer() {
		if s.SummerMultiplier.IsPositive() {
			return s.SummerMultiplier, true
		}
		return decimal.NewFromInt(1), false
	}
	if s.WinterMultiplier.IsPositive() {
		return s.WinterMultiplier, true
	}
	return decimal.NewFromInt(1), false
}

// FixedMonthly charges a flat monthly rate regardless of consumption.
type FixedMonthly struct {
	MonthlyRate decimal.Decimal
	Seasonal    SeasonalAdjustment
}

func (FixedMonthly) ModelName() string { return "fixed_monthly" }
func (FixedMonthly) sealedModel()      {}

func (m FixedMonthly) schedule() map[string]string {
	s := map[string]string{"monthly_rate": m.MonthlyRate.String()}
	addSeasonal(s, m.Seasonal)
	return s
}

// ConsumptionBased charges linearly per consumed unit.
type ConsumptionBased struct {
	UnitRate decimal.Decimal
}

func (ConsumptionBased) ModelName() string { return "consumption_based" }
func (ConsumptionBased) sealedModel()      {}

func (m ConsumptionBased) schedule() map[string]string {
	return map[string]string{"unit_rate": m.UnitRate.String()}
}

// Tier is one bracket of a tiered schedule. UpTo is the cumulative
// consumption threshold the bracket ends at; a nil UpTo is the unbounded
// sentinel tier that must terminate every schedule.
type Tier struct {
	UpTo *decimal.Decimal
	Rate decimal.Decimal
}

// Tiered bills consumption slices across ascending brackets.
type Tiered struct {
	Tiers []Tier
}

func (Tiered) ModelName() string { return "tiered" }
func (Tiered) sealedModel()      {}

func (m Tiered) schedule() map[string]string {
	s := make(map[string]string, len(m.Tiers))
	for i, tier := range m.Tiers {
		bound := "unbounded"
		if tier.UpTo != nil {
			bound = tier.UpTo.String()
		}
		s[fmt.Sprintf("tier_%d", i+1)] = fmt.Sprintf("up_to=%s rate=%s", bound, tier.Rate)
	}
	return s
}

// Validate checks the tiered schedule invariants: strictly increasing
// positive thresholds, non-negative rates, and a final unbounded tier.
func (m Tiered) Validate() error {
	if len(m.Tiers) == 0 {
		return ErrIncompleteTierSchedule
	}
	prev := decimal.Zero
	for i, tier := range m.Tiers {
		if tier.Rate.IsNegative() {
			return fmt.Errorf("%w: tier %d has negative rate", ErrInvalidTierSchedule, i+1)
		}
		last := i == len(m.Tiers)-1
		if tier.UpTo == nil {
			if !last {
				return fmt.Errorf("%w: unbounded tier %d is not last", ErrInvalidTierSchedule, i+1)
			}
			continue
		}
		if last {
			return ErrIncompleteTierSchedule
		}
		if !tier.UpTo.GreaterThan(prev) {
			return fmt.Errorf("%w: tier %d threshold %s not above %s",
				ErrInvalidTierSchedule, i+1, tier.UpTo, prev)
		}
		prev = *tier.UpTo
	}
	return nil
}

// =============================================================================
// TIME-OF-USE - Zone schedules and midnight splitting
// =============================================================================

// MinuteOfDay is a time of day in minutes since midnight, 0..1440.
// 1440 (24:00) is valid only as a range end.
type MinuteOfDay int

// Minute builds a MinuteOfDay from hour and minute.
func Minute(hour, minute int) MinuteOfDay { return MinuteOfDay(hour*60 + minute) }

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ZoneRate maps one named zone to a time-of-day range and a rate.
// The range is half-open: [Start, End). End < Start means the range
// crosses midnight.
type ZoneRate struct {
	Zone  Zone
	Start MinuteOfDay
	End   MinuteOfDay
	Rate  decimal.Decimal
}

// crossesMidnight reports whether the range wraps past 24:00.
func (z ZoneRate) crossesMidnight() bool { return z.End < z.Start }

// SplitMidnight normalizes a zone range into sub-ranges that do not cross
// midnight. An End of 00:00 is read as 24:00, so 22:00-00:00 becomes the
// single range 22:00-24:00 rather than a crossing one with an empty tail.
// Non-crossing ranges are returned unchanged, so the operation is
// idempotent.
func SplitMidnight(z ZoneRate) []ZoneRate {
	if z.End == 0 {
		z.End = Minute(24, 0)
	}
	if !z.crossesMidnight() {
		return []ZoneRate{z}
	}
	return []ZoneRate{
		{Zone: z.Zone, Start: z.Start, End: Minute(24, 0), Rate: z.Rate},
		{Zone: z.Zone, Start: 0, End: z.End, Rate: z.Rate},
	}
}

// TimeOfUse bills zoned consumption at per-zone rates. Unzoned
// consumption, and zones without a configured rate, fall back to
// DefaultRate.
type TimeOfUse struct {
	Zones       []ZoneRate
	DefaultRate decimal.Decimal
}

func (TimeOfUse) ModelName() string { return "time_of_use" }
func (TimeOfUse) sealedModel()      {}

func (m TimeOfUse) schedule() map[string]string {
	s := map[string]string{"default_rate": m.DefaultRate.String()}
	for _, z := range m.Zones {
		s["zone_"+string(z.Zone)] = fmt.Sprintf("%s-%s rate=%s", z.Start, z.End, z.Rate)
	}
	return s
}

// Validate splits all ranges at midnight and rejects schedules whose
// normalized ranges overlap or are empty.
func (m TimeOfUse) Validate() error {
	var split []ZoneRate
	for _, z := range m.Zones {
		if z.Start < 0 || z.Start >= Minute(24, 0) || z.End < 0 || z.End > Minute(24, 0) {
			return fmt.Errorf("%w: zone %s has out-of-day range %s-%s",
				ErrOverlappingZoneSchedule, z.Zone, z.Start, z.End)
		}
		if z.Start == z.End {
			return fmt.Errorf("%w: zone %s has empty range at %s",
				ErrOverlappingZoneSchedule, z.Zone, z.Start)
		}
		split = append(split, SplitMidnight(z)...)
	}
	sort.Slice(split, func(i, j int) bool { return split[i].Start < split[j].Start })
	for i := 1; i < len(split); i++ {
		if split[i].Start < split[i-1].End {
			return fmt.Errorf("%w: %s %s-%s overlaps %s %s-%s",
				ErrOverlappingZoneSchedule,
				split[i-1].Zone, split[i-1].Start, split[i-1].End,
				split[i].Zone, split[i].Start, split[i].End)
		}
	}
	return nil
}

// RateFor returns the configured rate for a zone, falling back to the
// default rate for unknown zones.
func (m TimeOfUse) RateFor(zone Zone) decimal.Decimal {
	for _, z := range m.Zones {
		if z.Zone == zone {
			return z.Rate
		}
	}
	return m.DefaultRate
}

// Hybrid combines a base fee with a consumption-based charge.
type Hybrid struct {
	BaseFee  decimal.Decimal
	UnitRate decimal.Decimal
	Seasonal SeasonalAdjustment
}

func (Hybrid) ModelName() string { return "hybrid" }
func (Hybrid) sealedModel()      {}

func (m Hybrid) schedule() map[string]string {
	s := map[string]string{
		"base_fee":  m.BaseFee.String(),
		"unit_rate": m.UnitRate.String(),
	}
	addSeasonal(s, m.Seasonal)
	return s
}

// CustomFormula prices consumption with a restricted expression. The
// grammar admits the identifiers consumption, rate and base_fee only;
// rate and base_fee are bound from Variables, consumption from the
// pricing input. A Variables entry named consumption is rejected as a
// configuration error.
type CustomFormula struct {
	Expression string
	Variables  map[string]decimal.Decimal
}

func (CustomFormula) ModelName() string { return "custom_formula" }
func (CustomFormula) sealedModel()      {}

func (m CustomFormula) schedule() map[string]string {
	s := map[string]string{"formula": m.Expression}
	for name, value := range m.Variables {
		s["var_"+name] = value.String()
	}
	return s
}

func addSeasonal(s map[string]string, adj SeasonalAdjustment) {
	if adj.SummerMultiplier.IsPositive() {
		s["summer_multiplier"] = adj.SummerMultiplier.String()
	}
	if adj.WinterMultiplier.IsPositive() {
		s["winter_multiplier"] = adj.WinterMultiplier.String()
	}
}

// =============================================================================
// TARIFF CONFIGURATION
// =============================================================================

// TariffConfiguration is the envelope around a pricing model: which
// service it prices, and when it is in force. Exactly one configuration
// is effective per service per property per instant; that uniqueness is
// the persistence layer's to enforce, this type only answers EffectiveAt.
type TariffConfiguration struct {
	ID          TariffID
	ServiceName string
	Model       PricingModel

	EffectiveFrom  time.Time
	EffectiveUntil *time.Time

	// LastChangedAt feeds the rate-change restriction window.
	LastChangedAt time.Time
}

// EffectiveAt reports whether the configuration is in force at the instant.
func (c TariffConfiguration) EffectiveAt(at time.Time) bool {
	if at.Before(c.EffectiveFrom) {
		return false
	}
	if c.EffectiveUntil != nil && !at.Before(*c.EffectiveUntil) {
		return false
	}
	return true
}

// TariffSnapshot is a frozen copy of the configuration a calculation used.
// It is embedded in every CalculationResult so later audits can
// reconstruct the charge even if the tariff changes afterward.
type TariffSnapshot struct {
	TariffID       TariffID
	ServiceName    string
	Model          string
	RateSchedule   map[string]string
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time
	TakenAt        time.Time
}

// Snapshot freezes the configuration at the given instant.
func (c TariffConfiguration) Snapshot(at time.Time) TariffSnapshot {
	snap := TariffSnapshot{
		TariffID:      c.ID,
		ServiceName:   c.ServiceName,
		Model:         c.Model.ModelName(),
		RateSchedule:  c.Model.schedule(),
		EffectiveFrom: c.EffectiveFrom,
		TakenAt:       at,
	}
	if c.EffectiveUntil != nil {
		until := *c.EffectiveUntil
		snap.EffectiveUntil = &until
	}
	return snap
}

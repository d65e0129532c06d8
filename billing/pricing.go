/*
pricing.go - The tariff pricing engine

PURPOSE:
  Evaluates a tariff configuration against consumption data for a billing
  period and produces an immutable CalculationResult with a frozen tariff
  snapshot. This is where the pricing model union is exhaustively
  dispatched; adding a model without handling it here is a compile error
  once the new case is written, and an explicit configuration error until
  then.

EVALUATION RULES:
  FixedMonthly     monthly rate, seasonally adjusted, pro-rated for
                   partial months; consumption ignored
  ConsumptionBased total consumption x unit rate
  Tiered           consumption sliced across ascending brackets; the
                   schedule must end with an unbounded sentinel tier
  TimeOfUse        zone-labelled amounts priced at their zone rate,
                   unzoned consumption at the default rate; ranges are
                   midnight-split and overlap-checked first
  Hybrid           seasonally adjusted, pro-rated base fee plus
                   consumption charge
  CustomFormula    restricted expression over consumption/rate/base_fee

ERROR POLICY:
  Configuration errors (bad tiers, overlapping zones, broken formulas)
  are fatal for the call. The engine never fabricates a price.

SEE ALSO:
  - tariff.go: Model definitions and validation
  - result.go: Result construction
  - formula.go: CustomFormula evaluation
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingEngine prices consumption against tariff configurations.
// It is stateless apart from the injected clock (used to stamp tariff
// snapshots) and safe for concurrent use.
type PricingEngine struct {
	clock Clock
}

// NewPricingEngine constructs a pricing engine. A nil clock defaults to
// the system clock.
func NewPricingEngine(clock Clock) *PricingEngine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PricingEngine{clock: clock}
}

// Price evaluates the tariff against the consumption for the period.
// The tariff must be effective at the period start.
func (e *PricingEngine) Price(consumption ConsumptionData, tariff TariffConfiguration, period BillingPeriod) (CalculationResult, error) {
	if tariff.Model == nil {
		return CalculationResult{}, fmt.Errorf("%w: tariff %s has no pricing model", ErrTariffNotEffective, tariff.ID)
	}
	if !tariff.EffectiveAt(period.Start) {
		return CalculationResult{}, fmt.Errorf("%w: tariff %s, period starting %s",
			ErrTariffNotEffective, tariff.ID, period.Start.Format("2006-01-02"))
	}

	builder := newResultBuilder(tariff.Snapshot(e.clock.Now()))
	builder.detail("pricing_model", tariff.Model.ModelName())
	builder.detail("period", period.Label())

	var err error
	switch model := tariff.Model.(type) {
	case FixedMonthly:
		e.priceFixed(builder, model, period)
	case ConsumptionBased:
		e.priceConsumptionBased(builder, model, consumption)
	case Tiered:
		err = e.priceTiered(builder, model, consumption)
	case TimeOfUse:
		err = e.priceTimeOfUse(builder, model, consumption)
	case Hybrid:
		e.priceHybrid(builder, model, consumption, period)
	case CustomFormula:
		err = e.priceFormula(builder, model, consumption)
	default:
		// Unreachable while the union stays sealed; kept so a new model
		// added to tariff.go fails loudly instead of pricing as zero.
		err = fmt.Errorf("%w: unhandled pricing model %q", ErrTariffNotEffective, tariff.Model.ModelName())
	}
	if err != nil {
		return CalculationResult{}, err
	}
	return builder.build(), nil
}

// priceFixed applies the monthly rate with seasonal adjustment and
// pro-ration. The adjustments appear as named entries so the invoice can
// show why the charged fee differs from the configured rate.
func (e *PricingEngine) priceFixed(b *resultBuilder, model FixedMonthly, period BillingPeriod) {
	b.detail("monthly_rate", model.MonthlyRate.String())

	fee := applySeasonal(b, model.MonthlyRate, model.Seasonal, period)
	applyProRation(b, fee, period)

	// The base stays at the configured rate; adjustments carry the delta.
	b.withFixed(model.MonthlyRate)
}

func (e *PricingEngine) priceConsumptionBased(b *resultBuilder, model ConsumptionBased, consumption ConsumptionData) {
	amount := consumption.Total().Mul(model.UnitRate)
	b.withConsumption(amount)
	b.detail("unit_rate", model.UnitRate.String())
	b.detail("total_consumption", consumption.Total().String())
}

// priceTiered slices the consumption across ascending brackets. Tier
// additivity holds: pricing C equals the sum of pricing each slice at its
// own rate.
func (e *PricingEngine) priceTiered(b *resultBuilder, model Tiered, consumption ConsumptionData) error {
	if err := model.Validate(); err != nil {
		return err
	}

	remaining := consumption.Total()
	floor := decimal.Zero
	amount := decimal.Zero
	for i, tier := range model.Tiers {
		if !remaining.IsPositive() {
			break
		}
		slice := remaining
		if tier.UpTo != nil {
			width := tier.UpTo.Sub(floor)
			if slice.GreaterThan(width) {
				slice = width
			}
			floor = *tier.UpTo
		}
		charge := slice.Mul(tier.Rate)
		amount = amount.Add(charge)
		remaining = remaining.Sub(slice)
		b.detail(fmt.Sprintf("tier_%d_consumption", i+1), slice.String())
		b.detail(fmt.Sprintf("tier_%d_amount", i+1), charge.String())
	}

	b.withConsumption(amount)
	b.detail("total_consumption", consumption.Total().String())
	return nil
}

// priceTimeOfUse bills zone-labelled amounts at their configured zone
// rate. Consumption without a breakdown falls back to the default rate.
func (e *PricingEngine) priceTimeOfUse(b *resultBuilder, model TimeOfUse, consumption ConsumptionData) error {
	if err := model.Validate(); err != nil {
		return err
	}

	amount := decimal.Zero
	if consumption.HasZones() {
		for _, zone := range consumption.ZoneNames() {
			zoneAmount, _ := consumption.ZoneAmount(zone)
			rate := model.RateFor(zone)
			charge := zoneAmount.Mul(rate)
			amount = amount.Add(charge)
			b.detail("zone_"+string(zone)+"_consumption", zoneAmount.String())
			b.detail("zone_"+string(zone)+"_rate", rate.String())
			b.detail("zone_"+string(zone)+"_amount", charge.String())
		}
	} else {
		amount = consumption.Total().Mul(model.DefaultRate)
		b.detail("default_rate", model.DefaultRate.String())
	}

	b.withConsumption(amount)
	b.detail("total_consumption", consumption.Total().String())
	return nil
}

func (e *PricingEngine) priceHybrid(b *resultBuilder, model Hybrid, consumption ConsumptionData, period BillingPeriod) {
	fee := applySeasonal(b, model.BaseFee, model.Seasonal, period)
	applyProRation(b, fee, period)

	consumptionAmount := consumption.Total().Mul(model.UnitRate)
	b.withFixed(model.BaseFee)
	b.withConsumption(consumptionAmount)
	b.detail("base_fee", model.BaseFee.String())
	b.detail("unit_rate", model.UnitRate.String())
	b.detail("total_consumption", consumption.Total().String())
}

func (e *PricingEngine) priceFormula(b *resultBuilder, model CustomFormula, consumption ConsumptionData) error {
	bindings := map[string]decimal.Decimal{"consumption": consumption.Total()}
	for name, value := range model.Variables {
		// consumption is bound from the metered input only. A tariff
		// carrying its own value would price something that was never
		// consumed, so it is a configuration error, not an override.
		if name == "consumption" {
			return &FormulaError{Expression: model.Expression, Detail: "variable \"consumption\" conflicts with metered consumption"}
		}
		if allowedIdentifier(name) {
			bindings[name] = value
		}
	}

	amount, err := EvaluateFormula(model.Expression, bindings)
	if err != nil {
		return err
	}
	b.withConsumption(amount)
	b.detail("formula", model.Expression)
	for name, value := range bindings {
		b.detail("var_"+name, value.String())
	}
	return nil
}

// applySeasonal records the seasonal delta as a named adjustment and
// returns the adjusted fee.
func applySeasonal(b *resultBuilder, fee decimal.Decimal, adj SeasonalAdjustment, period BillingPeriod) decimal.Decimal {
	multiplier, applied := adj.MultiplierFor(period)
	if !applied {
		return fee
	}
	adjusted := fee.Mul(multiplier)
	season := "winter"
	if period.IsSummer() {
		season = "summer"
	}
	b.addAdjustment("seasonal_adjustment", season+" rate adjustment", adjusted.Sub(fee))
	b.detail("seasonal_multiplier", multiplier.String())
	return adjusted
}

// applyProRation records the partial-month delta as a named adjustment
// and returns the pro-rated fee.
func applyProRation(b *resultBuilder, fee decimal.Decimal, period BillingPeriod) decimal.Decimal {
	if !period.IsPartialMonth() {
		return fee
	}
	fraction := decimal.NewFromInt(int64(period.Days())).Div(decimal.NewFromInt(int64(period.DaysInStartMonth())))
	prorated := fee.Mul(fraction)
	b.addAdjustment("pro_ration", fmt.Sprintf("pro-rated for %d of %d days", period.Days(), period.DaysInStartMonth()), prorated.Sub(fee))
	b.detail("pro_rated", "true")
	return prorated
}

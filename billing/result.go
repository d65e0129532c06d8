/*
result.go - Immutable calculation result

PURPOSE:
  CalculationResult is the value every pricing call produces and the
  invoice-item layer consumes. It is created once per calculation and
  never mutated; re-pricing produces a new instance.

INVARIANTS:
  TotalAmount = BaseAmount + sum(Adjustments)
  BaseAmount  = FixedAmount + ConsumptionAmount

PRECISION:
  Amounts are carried at full decimal precision internally (at least four
  places reproducible) and rounded only at presentation via Rounded().

SEE ALSO:
  - pricing.go: The only producer
  - tariff.go: TariffSnapshot embedded in every result
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// Adjustment is a named modification applied on top of the base amount,
// e.g. a seasonal rate adjustment or a pro-ration discount.
type Adjustment struct {
	Type        string
	Description string
	Amount      decimal.Decimal
}

// CalculationResult is the complete priced outcome of one billing
// calculation. Immutable: all "modifications" return a new value.
type CalculationResult struct {
	TotalAmount decimal.Decimal
	BaseAmount  decimal.Decimal
	Adjustments []Adjustment

	ConsumptionAmount decimal.Decimal
	FixedAmount       decimal.Decimal

	TariffSnapshot TariffSnapshot

	// Details carries the per-model breakdown (tier slices, zone
	// amounts, formula variables) for audit display.
	Details map[string]string
}

// AdjustmentTotal sums all adjustment amounts.
func (r CalculationResult) AdjustmentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, adj := range r.Adjustments {
		total = total.Add(adj.Amount)
	}
	return total
}

// Balanced verifies the result invariants: total = base + adjustments and
// base = fixed + consumption.
func (r CalculationResult) Balanced() bool {
	if !r.TotalAmount.Equal(r.BaseAmount.Add(r.AdjustmentTotal())) {
		return false
	}
	return r.BaseAmount.Equal(r.FixedAmount.Add(r.ConsumptionAmount))
}

// Rounded returns a presentation copy with monetary amounts rounded to
// the given number of places. The component amounts are rounded and the
// base and total recomputed from them, so rounding residue is folded
// into the totals and the copy still satisfies Balanced().
func (r CalculationResult) Rounded(places int32) CalculationResult {
	out := r
	out.FixedAmount = r.FixedAmount.Round(places)
	out.ConsumptionAmount = r.ConsumptionAmount.Round(places)
	out.BaseAmount = out.FixedAmount.Add(out.ConsumptionAmount)
	out.Adjustments = make([]Adjustment, len(r.Adjustments))
	total := out.BaseAmount
	for i, adj := range r.Adjustments {
		adj.Amount = adj.Amount.Round(places)
		out.Adjustments[i] = adj
		total = total.Add(adj.Amount)
	}
	out.TotalAmount = total
	return out
}

// resultBuilder assembles a CalculationResult field by field so the
// pricing engine never hands out a partially constructed value.
type resultBuilder struct {
	fixed       decimal.Decimal
	consumption decimal.Decimal
	adjustments []Adjustment
	snapshot    TariffSnapshot
	details     map[string]string
}

func newResultBuilder(snapshot TariffSnapshot) *resultBuilder {
	return &resultBuilder{snapshot: snapshot, details: make(map[string]string)}
}

func (b *resultBuilder) withFixed(amount decimal.Decimal) *resultBuilder {
	b.fixed = amount
	return b
}

func (b *resultBuilder) withConsumption(amount decimal.Decimal) *resultBuilder {
	b.consumption = amount
	return b
}

func (b *resultBuilder) addAdjustment(kind, description string, amount decimal.Decimal) *resultBuilder {
	b.adjustments = append(b.adjustments, Adjustment{Type: kind, Description: description, Amount: amount})
	return b
}

func (b *resultBuilder) detail(key, value string) *resultBuilder {
	b.details[key] = value
	return b
}

func (b *resultBuilder) build() CalculationResult {
	base := b.fixed.Add(b.consumption)
	result := CalculationResult{
		BaseAmount:        base,
		ConsumptionAmount: b.consumption,
		FixedAmount:       b.fixed,
		Adjustments:       b.adjustments,
		TariffSnapshot:    b.snapshot,
		Details:           b.details,
	}
	result.TotalAmount = base.Add(result.AdjustmentTotal())
	return result
}

/*
distribution.go - Shared service cost allocation

PURPOSE:
  Allocates one shared utility cost (heating circulation, common-area
  electricity) across the properties of a building. Whatever the method,
  the allocations MUST sum to the input total - invoices built from an
  unbalanced distribution would never reconcile against the supplier
  bill.

METHODS:
  equal        total / count, remainder cents to the first property in
               id-ascending order
  area         proportional to property area; every property must supply
               a positive area
  consumption  proportional to property consumption; zero total
               consumption falls back to equal distribution (documented
               policy, not a silent zero division)

BALANCE GUARANTEE:
  After allocation the residual (total - sum of allocations) is folded
  into the largest allocation and recorded in the result metadata. The
  residual is always within BalanceTolerance for sane inputs; folding it
  unconditionally makes the balance exact rather than merely tolerable.

SEE ALSO:
  - types.go: BalanceTolerance
  - errors.go: MissingWeightError
*/
package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DistributionMethod selects the allocation strategy.
type DistributionMethod string

const (
	MethodEqual       DistributionMethod = "equal"
	MethodArea        DistributionMethod = "area"
	MethodConsumption DistributionMethod = "consumption"
)

// PropertyShare is one property's input to a distribution: its identity
// and the weights the methods may use. A zero Area means "not supplied".
type PropertyShare struct {
	PropertyID  PropertyID
	Area        decimal.Decimal
	Consumption decimal.Decimal
}

// DistributionResult maps each property to its allocated amount.
type DistributionResult struct {
	Amounts   map[PropertyID]decimal.Decimal
	TotalCost decimal.Decimal
	Method    DistributionMethod
	Metadata  map[string]string
}

// HasDistribution reports whether any property received an allocation.
// An empty property set yields a well-defined empty result, not an error.
func (r DistributionResult) HasDistribution() bool { return len(r.Amounts) > 0 }

// AllocatedTotal sums all allocations.
func (r DistributionResult) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range r.Amounts {
		total = total.Add(amount)
	}
	return total
}

// IsBalanced verifies the balance guarantee: allocations sum to the
// declared total within BalanceTolerance.
func (r DistributionResult) IsBalanced() bool {
	return r.AllocatedTotal().Sub(r.TotalCost).Abs().LessThanOrEqual(BalanceTolerance)
}

// Distribute allocates totalCost across the properties with the given
// method. The returned result always satisfies IsBalanced().
func Distribute(totalCost decimal.Decimal, properties []PropertyShare, method DistributionMethod) (DistributionResult, error) {
	if totalCost.IsNegative() {
		return DistributionResult{}, ErrNegativeTotalCost
	}

	result := DistributionResult{
		Amounts:   make(map[PropertyID]decimal.Decimal, len(properties)),
		TotalCost: totalCost,
		Method:    method,
		Metadata:  map[string]string{"method": string(method)},
	}

	if len(properties) == 0 {
		result.Metadata["reason"] = "no_properties"
		return result, nil
	}

	ordered := orderedShares(properties)

	if totalCost.IsZero() {
		for _, p := range ordered {
			result.Amounts[p.PropertyID] = decimal.Zero
		}
		result.Metadata["reason"] = "zero_cost"
		return result, nil
	}

	if len(ordered) == 1 {
		result.Amounts[ordered[0].PropertyID] = totalCost
		result.Metadata["reason"] = "single_property"
		return result, nil
	}

	var err error
	switch method {
	case MethodEqual:
		distributeEqually(&result, ordered, totalCost)
	case MethodArea:
		err = distributeWeighted(&result, ordered, totalCost, MethodArea)
	case MethodConsumption:
		err = distributeWeighted(&result, ordered, totalCost, MethodConsumption)
	default:
		err = ErrUnknownDistributionMethod
	}
	if err != nil {
		return DistributionResult{}, err
	}

	settleResidual(&result, ordered)
	return result, nil
}

// orderedShares returns the properties in stable id-ascending order.
// Remainder assignment and residual folding depend on this ordering.
func orderedShares(properties []PropertyShare) []PropertyShare {
	ordered := make([]PropertyShare, len(properties))
	copy(ordered, properties)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PropertyID < ordered[j].PropertyID })
	return ordered
}

// distributeEqually gives each property the cent-floored equal share and the
// remainder cents to the first property in id order.
func distributeEqually(result *DistributionResult, ordered []PropertyShare, totalCost decimal.Decimal) {
	count := decimal.NewFromInt(int64(len(ordered)))
	share := totalCost.Div(count).RoundDown(2)

	allocated := decimal.Zero
	for _, p := range ordered {
		result.Amounts[p.PropertyID] = share
		allocated = allocated.Add(share)
	}

	remainder := totalCost.Sub(allocated)
	if !remainder.IsZero() {
		first := ordered[0].PropertyID
		result.Amounts[first] = result.Amounts[first].Add(remainder)
		result.Metadata["remainder_assigned_to"] = string(first)
	}
	result.Metadata["share_per_property"] = share.String()
}

// distributeWeighted allocates proportionally to the method's weight.
func distributeWeighted(result *DistributionResult, ordered []PropertyShare, totalCost decimal.Decimal, method DistributionMethod) error {
	weights := make([]decimal.Decimal, len(ordered))
	totalWeight := decimal.Zero
	var missing []PropertyID

	for i, p := range ordered {
		w := p.Consumption
		if method == MethodArea {
			w = p.Area
			if !w.IsPositive() {
				missing = append(missing, p.PropertyID)
				continue
			}
		} else if w.IsNegative() {
			missing = append(missing, p.PropertyID)
			continue
		}
		weights[i] = w
		totalWeight = totalWeight.Add(w)
	}
	if len(missing) > 0 {
		return &MissingWeightError{Method: method, PropertyIDs: missing}
	}

	// Zero total consumption: nobody consumed, so nobody can carry the
	// cost proportionally. Fall back to equal distribution.
	if method == MethodConsumption && totalWeight.IsZero() {
		distributeEqually(result, ordered, totalCost)
		result.Metadata["fallback"] = "equal"
		result.Metadata["fallback_reason"] = "zero_total_consumption"
		return nil
	}

	for i, p := range ordered {
		proportion := weights[i].Div(totalWeight)
		result.Amounts[p.PropertyID] = totalCost.Mul(proportion)
	}
	result.Metadata["total_weight"] = totalWeight.String()
	return nil
}

// settleResidual folds any rounding drift into the largest allocation so
// the distribution balances exactly. The adjustment is recorded in the
// metadata for the audit trail.
func settleResidual(result *DistributionResult, ordered []PropertyShare) {
	residual := result.TotalCost.Sub(result.AllocatedTotal())
	if residual.IsZero() {
		return
	}

	largest := ordered[0].PropertyID
	for _, p := range ordered[1:] {
		if result.Amounts[p.PropertyID].GreaterThan(result.Amounts[largest]) {
			largest = p.PropertyID
		}
	}
	result.Amounts[largest] = result.Amounts[largest].Add(residual)
	result.Metadata["residual_adjustment"] = residual.String()
	result.Metadata["residual_assigned_to"] = string(largest)
}

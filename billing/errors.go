/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error kinds of the calculation layer in one place. Callers branch
  with errors.Is / errors.As; nothing in this package panics on a domain
  failure.

ERROR CATEGORIES:
  1. Input-contract violations - bad reading pairs, inconsistent zone data
  2. Configuration errors - misconfigured tariffs, never priced silently
  3. Distribution errors - missing weights, negative totals

USAGE:
  record, err := billing.Compute(start, end)
  if errors.Is(err, billing.ErrNegativeConsumption) {
      // caller may treat as meter rollover and re-enter a correction
  }

SEE ALSO:
  - pricing.go: Returns configuration errors
  - distribution.go: Returns distribution errors
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidOrdering is returned when the end reading does not come
	// strictly after the start reading.
	ErrInvalidOrdering = errors.New("end reading not after start reading")

	// ErrNegativeConsumption is returned when the end value is below the
	// start value. Callers deciding to treat this as a meter rollover do
	// so outside this engine.
	ErrNegativeConsumption = errors.New("negative consumption")

	// ErrMeterMismatch is returned when a reading pair spans different
	// meters or zones.
	ErrMeterMismatch = errors.New("readings belong to different meters or zones")

	// ErrInconsistentZoneData is returned when per-zone amounts do not sum
	// to the declared total within ZoneConsistencyTolerance.
	ErrInconsistentZoneData = errors.New("zone amounts do not sum to declared total")

	// ErrMixedZoneRecords is returned when zoned and unzoned consumption
	// records are aggregated together. An unzoned remainder would escape
	// every per-zone rate, so the mix is rejected rather than misbilled.
	ErrMixedZoneRecords = errors.New("cannot mix zoned and unzoned consumption records")

	// ErrIncompleteTierSchedule is returned when a tiered tariff lacks a
	// final unbounded tier.
	ErrIncompleteTierSchedule = errors.New("tier schedule missing unbounded final tier")

	// ErrInvalidTierSchedule is returned when tier thresholds are not
	// strictly increasing or a tier rate is negative.
	ErrInvalidTierSchedule = errors.New("invalid tier schedule")

	// ErrOverlappingZoneSchedule is returned when time-of-use ranges
	// overlap after midnight splitting.
	ErrOverlappingZoneSchedule = errors.New("overlapping time-of-use zone schedule")

	// ErrFormulaEvaluation is returned when a custom pricing formula
	// references an unknown identifier or produces a non-finite result.
	ErrFormulaEvaluation = errors.New("formula evaluation failed")

	// ErrTariffNotEffective is returned when pricing is requested outside
	// the tariff's effective date range.
	ErrTariffNotEffective = errors.New("tariff not effective for requested period")

	// ErrMissingAreaData is returned by area-weighted distribution when a
	// property has no positive area.
	ErrMissingAreaData = errors.New("property missing area data")

	// ErrMissingConsumptionData is returned by consumption-weighted
	// distribution when a property carries a negative consumption weight.
	ErrMissingConsumptionData = errors.New("property missing consumption data")

	// ErrNegativeTotalCost is returned when a negative shared cost is
	// submitted for distribution.
	ErrNegativeTotalCost = errors.New("total cost cannot be negative")

	// ErrUnknownDistributionMethod is returned for unsupported methods.
	ErrUnknownDistributionMethod = errors.New("unknown distribution method")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OrderingError reports a reading pair whose dates are not increasing.
type OrderingError struct {
	MeterID MeterID
	Zone    Zone
	Start   string
	End     string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("invalid ordering for meter %s: end %s not after start %s", e.MeterID, e.End, e.Start)
}

func (e *OrderingError) Unwrap() error { return ErrInvalidOrdering }

// NegativeConsumptionError reports a value decrease between two readings.
// StartValue is zero when the error comes from consumption data
// construction rather than a reading pair.
type NegativeConsumptionError struct {
	MeterID    MeterID
	Zone       Zone
	StartValue decimal.Decimal
	EndValue   decimal.Decimal
}

func (e *NegativeConsumptionError) Error() string {
	if e.MeterID == "" {
		return fmt.Sprintf("negative consumption amount %s", e.EndValue)
	}
	return fmt.Sprintf("negative consumption for meter %s: value dropped from %s to %s",
		e.MeterID, e.StartValue, e.EndValue)
}

func (e *NegativeConsumptionError) Unwrap() error { return ErrNegativeConsumption }

// InconsistentZoneDataError reports a zone breakdown that does not add up.
type InconsistentZoneDataError struct {
	Declared decimal.Decimal
	ZoneSum  decimal.Decimal
}

func (e *InconsistentZoneDataError) Error() string {
	return fmt.Sprintf("zone amounts sum to %s, declared total is %s (tolerance %s)",
		e.ZoneSum, e.Declared, ZoneConsistencyTolerance)
}

func (e *InconsistentZoneDataError) Unwrap() error { return ErrInconsistentZoneData }

// FormulaError reports a failure evaluating a custom pricing formula.
type FormulaError struct {
	Expression string
	Detail     string
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("formula %q: %s", e.Expression, e.Detail)
}

func (e *FormulaError) Unwrap() error { return ErrFormulaEvaluation }

// MissingWeightError lists the properties lacking the weight data a
// distribution method requires.
type MissingWeightError struct {
	Method      DistributionMethod
	PropertyIDs []PropertyID
}

func (e *MissingWeightError) Error() string {
	return fmt.Sprintf("%s distribution: %d properties missing weight data: %v",
		e.Method, len(e.PropertyIDs), e.PropertyIDs)
}

func (e *MissingWeightError) Unwrap() error {
	if e.Method == MethodConsumption {
		return ErrMissingConsumptionData
	}
	return ErrMissingAreaData
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidOrdering) ||
		errors.Is(err, ErrNegativeConsumption) ||
		errors.Is(err, ErrMeterMismatch) ||
		errors.Is(err, ErrInconsistentZoneData) ||
		errors.Is(err, ErrMixedZoneRecords) ||
		errors.Is(err, ErrMissingAreaData) ||
		errors.Is(err, ErrMissingConsumptionData) ||
		errors.Is(err, ErrNegativeTotalCost)
}

// IsConfigurationError returns true if the error indicates a misconfigured
// tariff. These are fatal for the pricing call; no price is fabricated.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrIncompleteTierSchedule) ||
		errors.Is(err, ErrInvalidTierSchedule) ||
		errors.Is(err, ErrOverlappingZoneSchedule) ||
		errors.Is(err, ErrFormulaEvaluation) ||
		errors.Is(err, ErrTariffNotEffective) ||
		errors.Is(err, ErrUnknownDistributionMethod)
}

/*
Package billing provides the core utility billing calculation engine.

PURPOSE:
  This package contains the pure calculation layer of the billing platform:
  deriving consumption from paired meter readings, pricing consumption
  against tariff configurations, and distributing shared service costs
  across properties. It holds no mutable state, performs no I/O, and is
  safe to call from any infrastructure wrapper.

KEY CONCEPTS IN THIS FILE (types.go):
  - Reading: An immutable meter reading snapshot with entry metadata
  - ConsumptionRecord: A derived delta between two readings
  - ConsumptionData: Total consumption with an optional per-zone breakdown
  - Zone: A sub-metering category for time-of-use billing (day/night)

DESIGN PRINCIPLES:
  1. Immutability: Readings and results are value types, never mutated
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for meter/property/tariff identifiers
  4. Explicit errors: Domain failures are returned, never panicked

USAGE:
  record, err := billing.Compute(start, end)
  data := billing.NewConsumption(record.Amount)
  result, err := engine.Price(data, tariff, period)

SEE ALSO:
  - consumption.go: Reading pair -> consumption derivation
  - tariff.go: Pricing model definitions
  - pricing.go: The pricing engine
  - distribution.go: Shared cost allocation
*/
package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TOLERANCES - Domain policy constants (see also distribution.go)
// =============================================================================

// ZoneConsistencyTolerance is the maximum allowed difference between a
// declared consumption total and the sum of its per-zone amounts.
var ZoneConsistencyTolerance = decimal.RequireFromString("0.001")

// BalanceTolerance is the maximum allowed rounding drift between a shared
// cost total and the sum of its allocations before the distributor adjusts
// the largest allocation by the residual.
var BalanceTolerance = decimal.RequireFromString("0.01")

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MeterID string
type PropertyID string
type TariffID string

// Zone names a sub-metering category for time-of-use billing.
// The empty Zone means the meter is not zoned.
type Zone string

const (
	ZoneNone  Zone = ""
	ZoneDay   Zone = "day"
	ZoneNight Zone = "night"
)

// =============================================================================
// READING - Immutable meter reading snapshot
// =============================================================================

// ReadingStatus tracks a reading through the validation state machine:
// pending -> {approved, flagged, rejected}. A reading linked to a finalized
// invoice item is terminal regardless of status.
type ReadingStatus string

const (
	StatusPending  ReadingStatus = "pending"
	StatusApproved ReadingStatus = "approved"
	StatusFlagged  ReadingStatus = "flagged"
	StatusRejected ReadingStatus = "rejected"
)

// ReadingKind distinguishes field-read values from estimates awaiting
// reconciliation against an actual reading.
type ReadingKind string

const (
	KindActual    ReadingKind = "actual"
	KindEstimated ReadingKind = "estimated"
)

// Reading is a meter reading snapshot as supplied by the persistence layer.
// The engine never mutates a Reading; status transitions are computed here
// and persisted by the caller.
type Reading struct {
	ID          string
	MeterID     MeterID
	Zone        Zone
	Value       decimal.Decimal
	ReadingDate time.Time
	Kind        ReadingKind

	// Entry metadata
	EnteredBy string
	EnteredAt time.Time

	Status ReadingStatus

	// Correction marks a reading that intentionally replaces an
	// out-of-order entry. Corrections require a ChangeReason and are
	// exempt from the monotonicity rule.
	Correction   bool
	ChangeReason string

	// InvoiceItemID is non-empty once the reading backs a finalized
	// invoice item. Such readings are immutable.
	InvoiceItemID string
}

// Finalized reports whether the reading backs a finalized invoice item.
func (r Reading) Finalized() bool { return r.InvoiceItemID != "" }

// =============================================================================
// CONSUMPTION - Derived deltas and pricing input
// =============================================================================

// ConsumptionRecord is the derived delta between two readings of the same
// meter and zone. It is computed, never persisted independently.
// Invariant: Amount = End.Value - Start.Value, never negative.
type ConsumptionRecord struct {
	MeterID MeterID
	Zone    Zone
	Start   Reading
	End     Reading
	Amount  decimal.Decimal
}

// PeriodStart returns the start of the consumption interval.
func (c ConsumptionRecord) PeriodStart() time.Time { return c.Start.ReadingDate }

// PeriodEnd returns the end of the consumption interval.
func (c ConsumptionRecord) PeriodEnd() time.Time { return c.End.ReadingDate }

// ReadingPair couples the start and end readings for one zone of a meter.
type ReadingPair struct {
	Start Reading
	End   Reading
}

// ConsumptionData is the pricing engine's input: a consumption total with
// an optional per-zone breakdown. Construction enforces the consistency
// invariant, so a ConsumptionData value is always well-formed.
type ConsumptionData struct {
	total decimal.Decimal
	zones map[Zone]decimal.Decimal
}

// NewConsumption builds unzoned consumption data.
func NewConsumption(total decimal.Decimal) (ConsumptionData, error) {
	if total.IsNegative() {
		return ConsumptionData{}, &NegativeConsumptionError{EndValue: total}
	}
	return ConsumptionData{total: total}, nil
}

// NewZonedConsumption builds consumption data with a per-zone breakdown.
// The zone amounts must sum to the declared total within
// ZoneConsistencyTolerance, otherwise ErrInconsistentZoneData is returned.
func NewZonedConsumption(total decimal.Decimal, zones map[Zone]decimal.Decimal) (ConsumptionData, error) {
	if total.IsNegative() {
		return ConsumptionData{}, &NegativeConsumptionError{EndValue: total}
	}
	sum := decimal.Zero
	for zone, amount := range zones {
		if amount.IsNegative() {
			return ConsumptionData{}, &NegativeConsumptionError{Zone: zone, EndValue: amount}
		}
		sum = sum.Add(amount)
	}
	if sum.Sub(total).Abs().GreaterThan(ZoneConsistencyTolerance) {
		return ConsumptionData{}, &InconsistentZoneDataError{Declared: total, ZoneSum: sum}
	}
	copied := make(map[Zone]decimal.Decimal, len(zones))
	for zone, amount := range zones {
		copied[zone] = amount
	}
	return ConsumptionData{total: total, zones: copied}, nil
}

// ConsumptionFromRecords aggregates consumption records into pricing
// input. The records must be either all zoned or all unzoned; a mix is
// rejected with ErrMixedZoneRecords, because an unzoned remainder would
// fall outside every per-zone rate.
func ConsumptionFromRecords(records []ConsumptionRecord) (ConsumptionData, error) {
	total := decimal.Zero
	zones := make(map[Zone]decimal.Decimal)
	unzoned := false
	for _, rec := range records {
		total = total.Add(rec.Amount)
		if rec.Zone == ZoneNone {
			unzoned = true
			continue
		}
		zones[rec.Zone] = zones[rec.Zone].Add(rec.Amount)
	}
	if len(zones) == 0 {
		return NewConsumption(total)
	}
	if unzoned {
		return ConsumptionData{}, fmt.Errorf("%w: %d records", ErrMixedZoneRecords, len(records))
	}
	return NewZonedConsumption(total, zones)
}

// Total returns the declared consumption total.
func (d ConsumptionData) Total() decimal.Decimal { return d.total }

// HasZones reports whether a per-zone breakdown is present.
func (d ConsumptionData) HasZones() bool { return len(d.zones) > 0 }

// ZoneAmount returns the consumption recorded for a zone.
func (d ConsumptionData) ZoneAmount(zone Zone) (decimal.Decimal, bool) {
	amount, ok := d.zones[zone]
	return amount, ok
}

// ZoneNames returns the breakdown's zones in stable lexical order.
func (d ConsumptionData) ZoneNames() []Zone {
	names := make([]Zone, 0, len(d.zones))
	for zone := range d.zones {
		names = append(names, zone)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

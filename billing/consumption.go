/*
consumption.go - Consumption derivation from paired readings

PURPOSE:
  Turns two meter reading snapshots into a consumption delta. This is the
  first stage of the billing pipeline: validated readings come in, a
  ConsumptionRecord per zone comes out, and the pricing engine takes it
  from there.

CONTRACT:
  Compute(start, end) fails with:
  - ErrMeterMismatch       when the readings span meters or zones
  - ErrInvalidOrdering     when end.ReadingDate <= start.ReadingDate
  - ErrNegativeConsumption when end.Value < start.Value

  A value decrease is NOT silently treated as a meter rollover. The
  distinct error kind lets the caller decide on a rollover policy and
  re-enter the reading as an audited correction.

MULTI-ZONE METERS:
  Electricity meters commonly register day/night zones independently.
  ComputeZones derives one record per zone; total consumption is the sum
  across zones (enforced when the records are folded into
  ConsumptionData).

SEE ALSO:
  - types.go: Reading, ConsumptionRecord, ConsumptionData
  - pricing.go: Consumes the derived data
*/
package billing

// Compute derives the consumption between two readings of the same meter
// and zone. Pure function over two immutable snapshots.
func Compute(start, end Reading) (ConsumptionRecord, error) {
	if start.MeterID != end.MeterID || start.Zone != end.Zone {
		return ConsumptionRecord{}, ErrMeterMismatch
	}
	if !end.ReadingDate.After(start.ReadingDate) {
		return ConsumptionRecord{}, &OrderingError{
			MeterID: start.MeterID,
			Zone:    start.Zone,
			Start:   start.ReadingDate.Format("2006-01-02"),
			End:     end.ReadingDate.Format("2006-01-02"),
		}
	}
	if end.Value.LessThan(start.Value) {
		return ConsumptionRecord{}, &NegativeConsumptionError{
			MeterID:    start.MeterID,
			Zone:       start.Zone,
			StartValue: start.Value,
			EndValue:   end.Value,
		}
	}
	return ConsumptionRecord{
		MeterID: start.MeterID,
		Zone:    start.Zone,
		Start:   start,
		End:     end,
		Amount:  end.Value.Sub(start.Value),
	}, nil
}

// ComputeZones derives one consumption record per zone for a multi-zone
// meter. Each pair is computed independently; the first failure aborts,
// since a partial breakdown cannot be priced.
func ComputeZones(pairs []ReadingPair) ([]ConsumptionRecord, error) {
	records := make([]ConsumptionRecord, 0, len(pairs))
	for _, pair := range pairs {
		record, err := Compute(pair.Start, pair.End)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

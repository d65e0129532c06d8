/*
engine.go - The reading and rate-change validation pipeline

PURPOSE:
  Gates every write the billing core depends on. Rules run in a fixed
  order and each failure is independently reportable:

    1. Temporal validity   reading date not in the future
    2. Monotonicity        value never drops for the same meter+zone,
                           unless an audited correction
    3. Rate-change window  tariff changes blocked inside the cooldown or
                           over in-flight unbilled periods
    4. Reconciliation      estimated vs actual delta within tolerance

STATE MACHINE:
  pending -> {approved, flagged, rejected}; terminal once the reading is
  linked to a finalized invoice item. The engine computes transitions;
  persisting them is the caller's job.

DETERMINISM:
  The engine takes an explicit Clock and Config - no globals, no hidden
  time reads. Callers supply reading history chronologically sorted per
  meter+zone; the engine does not reorder input.

MANUAL OVERRIDES:
  BulkUpdateStatus deliberately bypasses the rule pipeline. It is a
  separately authorized operation and is always audited, one entry per
  transitioned reading.

SEE ALSO:
  - result.go: Result/BatchResult types
  - billing: Reading and TariffConfiguration contracts
*/
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/norvik/billing-engine/audit"
	"github.com/norvik/billing-engine/billing"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config carries the domain-policy knobs of the pipeline. The values are
// tenant policy, not code constants; DefaultConfig documents the
// defaults the original platform shipped with.
type Config struct {
	// MinChangeReasonLength is the shortest acceptable reason on a
	// correction or a manual status override.
	MinChangeReasonLength int

	// RateChangeCooldown blocks tariff changes this soon after the
	// previous change.
	RateChangeCooldown time.Duration

	// EstimateTolerancePercent flags estimated readings whose actual
	// counterpart deviates more than this percentage.
	EstimateTolerancePercent decimal.Decimal

	// MaxBatchSize bounds batch validation. Enforced at the API surface,
	// echoed here so library callers can apply the same bound.
	MaxBatchSize int
}

// DefaultConfig returns the stock policy: 10-character reasons, 30-day
// rate-change cooldown, 10% reconciliation tolerance, batches of 100.
func DefaultConfig() Config {
	return Config{
		MinChangeReasonLength:    10,
		RateChangeCooldown:       30 * 24 * time.Hour,
		EstimateTolerancePercent: decimal.NewFromInt(10),
		MaxBatchSize:             100,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs the validation pipeline. Stateless apart from config and
// clock; safe for concurrent use.
type Engine struct {
	cfg   Config
	clock billing.Clock
}

// NewEngine constructs a validation engine. A nil clock defaults to the
// system clock; zero config fields fall back to DefaultConfig values.
func NewEngine(cfg Config, clock billing.Clock) *Engine {
	def := DefaultConfig()
	if cfg.MinChangeReasonLength <= 0 {
		cfg.MinChangeReasonLength = def.MinChangeReasonLength
	}
	if cfg.RateChangeCooldown <= 0 {
		cfg.RateChangeCooldown = def.RateChangeCooldown
	}
	if !cfg.EstimateTolerancePercent.IsPositive() {
		cfg.EstimateTolerancePercent = def.EstimateTolerancePercent
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if clock == nil {
		clock = billing.SystemClock{}
	}
	return &Engine{cfg: cfg, clock: clock}
}

// Config returns the effective policy.
func (e *Engine) Config() Config { return e.cfg }

// =============================================================================
// SINGLE READING VALIDATION
// =============================================================================

// ValidateReading runs the reading rules against one reading. History is
// the chronologically sorted prior readings of the same meter; only
// entries matching the reading's meter+zone and dated before it are
// considered for monotonicity.
func (e *Engine) ValidateReading(reading billing.Reading, history []billing.Reading) Result {
	result := Result{EntityID: reading.ID, Status: StatusValid}

	e.checkTemporal(&result, reading)
	e.checkMonotonicity(&result, reading, history)

	return result
}

func (e *Engine) checkTemporal(result *Result, reading billing.Reading) {
	now := e.clock.Now()
	if reading.ReadingDate.After(now) {
		result.add(RuleTemporal, StatusInvalid, fmt.Sprintf(
			"reading date %s is in the future (validated at %s)",
			reading.ReadingDate.Format("2006-01-02"), now.Format("2006-01-02")))
	}
}

func (e *Engine) checkMonotonicity(result *Result, reading billing.Reading, history []billing.Reading) {
	previous, found := latestBefore(reading, history)
	if !found || !reading.Value.LessThan(previous.Value) {
		return
	}

	if !reading.Correction {
		result.add(RuleMonotonicity, StatusInvalid, fmt.Sprintf(
			"value dropped from %s to %s for meter %s without a correction flag",
			previous.Value, reading.Value, reading.MeterID))
		return
	}
	if len(reading.ChangeReason) < e.cfg.MinChangeReasonLength {
		result.add(RuleMonotonicity, StatusInvalid, fmt.Sprintf(
			"correction requires a change reason of at least %d characters",
			e.cfg.MinChangeReasonLength))
	}
	// A properly reasoned correction passes; the decrease is audited
	// through the correction entry, not flagged here.
}

// latestBefore finds the immediately preceding reading for the same
// meter+zone. History is assumed sorted; we scan from the end so the
// match is the latest qualifying entry.
func latestBefore(reading billing.Reading, history []billing.Reading) (billing.Reading, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		prior := history[i]
		if prior.MeterID != reading.MeterID || prior.Zone != reading.Zone {
			continue
		}
		if prior.ReadingDate.Before(reading.ReadingDate) {
			return prior, true
		}
	}
	return billing.Reading{}, false
}

// =============================================================================
// BATCH VALIDATION
// =============================================================================

// BatchOptions tunes batch validation.
type BatchOptions struct {
	// History is prior context shared by the whole batch, e.g. last
	// month's approved readings.
	History []billing.Reading
}

// ValidateBatch validates readings independently: one reading's failure
// never aborts the others. Each reading is additionally checked against
// the batch entries preceding it, so a chronologically sorted batch gets
// full monotonicity coverage. Batches are expected to stay within
// Config.MaxBatchSize; the bound is enforced by the API layer.
func (e *Engine) ValidateBatch(readings []billing.Reading, opts BatchOptions) BatchResult {
	batch := BatchResult{}
	window := make([]billing.Reading, 0, len(opts.History)+len(readings))
	window = append(window, opts.History...)

	for _, reading := range readings {
		batch.append(e.ValidateReading(reading, window))
		window = append(window, reading)
	}
	return batch
}

// =============================================================================
// RATE-CHANGE VALIDATION
// =============================================================================

// ValidateRateChange checks the rate-change restriction rule only: a
// proposed change is rejected inside the cooldown window after the
// tariff's last change, or when its effective date falls inside an
// in-flight unbilled consumption period.
func (e *Engine) ValidateRateChange(current billing.TariffConfiguration, proposedFrom time.Time, unbilled []billing.BillingPeriod) Result {
	result := Result{EntityID: string(current.ID), Status: StatusValid}

	if !current.LastChangedAt.IsZero() {
		lockedUntil := current.LastChangedAt.Add(e.cfg.RateChangeCooldown)
		if proposedFrom.Before(lockedUntil) {
			result.add(RuleRateChange, StatusInvalid, fmt.Sprintf(
				"tariff %s changed at %s; next change allowed from %s",
				current.ID,
				current.LastChangedAt.Format("2006-01-02"),
				lockedUntil.Format("2006-01-02")))
		}
	}

	for _, period := range unbilled {
		if period.Contains(proposedFrom) {
			result.add(RuleRateChange, StatusInvalid, fmt.Sprintf(
				"proposed effective date falls inside unbilled period %s", period.Label()))
		}
	}
	return result
}

// =============================================================================
// ESTIMATED vs ACTUAL RECONCILIATION
// =============================================================================

// ReconcileEstimate compares an estimated reading against the actual
// reading that replaces it. Deltas above the tolerance percentage yield
// a warning - the actual value stands, but a human should look at it.
func (e *Engine) ReconcileEstimate(estimated, actual billing.Reading) Result {
	result := Result{EntityID: actual.ID, Status: StatusValid}

	if estimated.Kind != billing.KindEstimated {
		result.add(RuleReconciliation, StatusInvalid, "reconciliation requires an estimated reading")
		return result
	}
	if estimated.MeterID != actual.MeterID || estimated.Zone != actual.Zone {
		result.add(RuleReconciliation, StatusInvalid, "estimated and actual readings cover different meters")
		return result
	}

	delta := actual.Value.Sub(estimated.Value).Abs()
	var deviation decimal.Decimal
	switch {
	case !estimated.Value.IsZero():
		deviation = delta.Div(estimated.Value.Abs()).Mul(decimal.NewFromInt(100))
	case delta.IsZero():
		deviation = decimal.Zero
	default:
		// Estimate was zero but the meter moved; always worth review.
		deviation = e.cfg.EstimateTolerancePercent.Add(decimal.NewFromInt(1))
	}

	if deviation.GreaterThan(e.cfg.EstimateTolerancePercent) {
		result.add(RuleReconciliation, StatusWarning, fmt.Sprintf(
			"actual %s deviates %s%% from estimate %s (tolerance %s%%)",
			actual.Value, deviation.Round(2), estimated.Value, e.cfg.EstimateTolerancePercent))
	}
	return result
}

// =============================================================================
// BULK STATUS OVERRIDE
// =============================================================================

// SkippedReading explains why a bulk override left one reading untouched.
type SkippedReading struct {
	ReadingID string
	Reason    string
}

// BulkStatusOutcome reports a manual override run.
type BulkStatusOutcome struct {
	Updated []billing.Reading
	Skipped []SkippedReading
	Audits  []audit.EntryID
}

// BulkUpdateStatus transitions readings to the target status WITHOUT
// running the rule pipeline. It is the audited escape hatch for manual
// review decisions: every transition writes an audit entry, and readings
// already backing a finalized invoice are skipped, never mutated.
func (e *Engine) BulkUpdateStatus(ctx context.Context, log audit.Store, readings []billing.Reading, target billing.ReadingStatus, actor, reason string) (BulkStatusOutcome, error) {
	if len(reason) < e.cfg.MinChangeReasonLength {
		return BulkStatusOutcome{}, fmt.Errorf(
			"manual override requires a reason of at least %d characters", e.cfg.MinChangeReasonLength)
	}
	switch target {
	case billing.StatusApproved, billing.StatusFlagged, billing.StatusRejected, billing.StatusPending:
	default:
		return BulkStatusOutcome{}, fmt.Errorf("unknown target status %q", target)
	}

	outcome := BulkStatusOutcome{}
	for _, reading := range readings {
		if reading.Finalized() {
			outcome.Skipped = append(outcome.Skipped, SkippedReading{
				ReadingID: reading.ID,
				Reason:    "linked to finalized invoice item " + reading.InvoiceItemID,
			})
			continue
		}
		if reading.Status == target {
			outcome.Skipped = append(outcome.Skipped, SkippedReading{
				ReadingID: reading.ID,
				Reason:    "already " + string(target),
			})
			continue
		}

		entry := audit.Entry{
			ID:         audit.NewID(),
			EntityType: "meter_reading",
			EntityID:   reading.ID,
			Action:     audit.ActionStatusOverride,
			OldValues:  map[string]string{"status": string(reading.Status)},
			NewValues:  map[string]string{"status": string(target)},
			Actor:      actor,
			Reason:     reason,
			CreatedAt:  e.clock.Now(),
		}
		if err := log.Append(ctx, entry); err != nil {
			outcome.Skipped = append(outcome.Skipped, SkippedReading{
				ReadingID: reading.ID,
				Reason:    "audit write failed: " + err.Error(),
			})
			continue
		}

		updated := reading
		updated.Status = target
		outcome.Updated = append(outcome.Updated, updated)
		outcome.Audits = append(outcome.Audits, entry.ID)
	}
	return outcome, nil
}

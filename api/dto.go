/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

CONVENTIONS:
  - All monetary and consumption amounts travel as decimal STRINGS
    ("10.00"), never JSON numbers. Parsing happens at the boundary.
  - Dates are ISO (YYYY-MM-DD), instants are RFC3339.
  - Time-of-use boundaries are "HH:MM" strings.

TARIFF MODEL ENCODING:
  A tariff's pricing model is a tagged union: the "model" field names the
  variant and the remaining fields configure it. decodeModel in
  handlers.go is the single decoding point.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/tariff.go: The domain-side model union
*/
package api

import (
	"time"

	"github.com/norvik/billing-engine/audit"
	"github.com/norvik/billing-engine/billing"
	"github.com/norvik/billing-engine/rollback"
	"github.com/norvik/billing-engine/validation"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ReadingDTO represents a meter reading in requests and responses.
type ReadingDTO struct {
	ID            string `json:"id"`
	MeterID       string `json:"meter_id"`
	Zone          string `json:"zone,omitempty"`
	Value         string `json:"value"`
	ReadingDate   string `json:"reading_date"`
	Kind          string `json:"kind,omitempty"`
	EnteredBy     string `json:"entered_by,omitempty"`
	Status        string `json:"status,omitempty"`
	Correction    bool   `json:"correction,omitempty"`
	ChangeReason  string `json:"change_reason,omitempty"`
	InvoiceItemID string `json:"invoice_item_id,omitempty"`
}

// ConsumptionRequest computes consumption from reading pairs.
type ConsumptionRequest struct {
	Pairs []ReadingPairDTO `json:"pairs"`
}

// ReadingPairDTO couples the start and end readings for one meter zone.
type ReadingPairDTO struct {
	Start ReadingDTO `json:"start"`
	End   ReadingDTO `json:"end"`
}

// ConsumptionRecordDTO is one derived consumption delta.
type ConsumptionRecordDTO struct {
	MeterID     string `json:"meter_id"`
	Zone        string `json:"zone,omitempty"`
	Amount      string `json:"amount"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// SeasonalDTO configures summer/winter multipliers on a tariff model.
type SeasonalDTO struct {
	SummerMultiplier string `json:"summer_multiplier,omitempty"`
	WinterMultiplier string `json:"winter_multiplier,omitempty"`
}

// TierDTO is one bracket of a tiered schedule. A missing up_to marks the
// unbounded final bracket.
type TierDTO struct {
	UpTo *string `json:"up_to,omitempty"`
	Rate string  `json:"rate"`
}

// ZoneRateDTO is one time-of-use range. Boundaries are "HH:MM"; an end
// before the start means the range crosses midnight.
type ZoneRateDTO struct {
	Zone  string `json:"zone"`
	Start string `json:"start"`
	End   string `json:"end"`
	Rate  string `json:"rate"`
}

// TariffDTO represents a tariff configuration with its model union.
type TariffDTO struct {
	ID            string  `json:"id"`
	ServiceName   string  `json:"service_name"`
	Model         string  `json:"model"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to,omitempty"`
	LastChangedAt string  `json:"last_changed_at,omitempty"`

	// Model configuration; which fields apply depends on Model.
	MonthlyRate string            `json:"monthly_rate,omitempty"`
	UnitRate    string            `json:"unit_rate,omitempty"`
	BaseFee     string            `json:"base_fee,omitempty"`
	Tiers       []TierDTO         `json:"tiers,omitempty"`
	Zones       []ZoneRateDTO     `json:"zones,omitempty"`
	DefaultRate string            `json:"default_rate,omitempty"`
	Formula     string            `json:"formula,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Seasonal    *SeasonalDTO      `json:"seasonal,omitempty"`
}

// PriceRequest asks for one billing calculation.
type PriceRequest struct {
	Consumption string            `json:"consumption"`
	Zones       map[string]string `json:"zones,omitempty"`
	Tariff      TariffDTO         `json:"tariff"`
	PeriodStart string            `json:"period_start"`
	PeriodEnd   string            `json:"period_end"`
}

// AdjustmentDTO is one labeled delta on a calculation result.
type AdjustmentDTO struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// CalculationResultDTO is the priced outcome returned to clients.
type CalculationResultDTO struct {
	TotalAmount       string            `json:"total_amount"`
	BaseAmount        string            `json:"base_amount"`
	FixedAmount       string            `json:"fixed_amount"`
	ConsumptionAmount string            `json:"consumption_amount"`
	Adjustments       []AdjustmentDTO   `json:"adjustments"`
	Details           map[string]string `json:"details,omitempty"`
	Snapshot          TariffSnapshotDTO `json:"tariff_snapshot"`
}

// TariffSnapshotDTO is the frozen tariff a calculation priced against.
type TariffSnapshotDTO struct {
	TariffID      string            `json:"tariff_id"`
	ServiceName   string            `json:"service_name"`
	Model         string            `json:"model"`
	RateSchedule  map[string]string `json:"rate_schedule"`
	EffectiveFrom string            `json:"effective_from"`
	EffectiveTo   *string           `json:"effective_to,omitempty"`
	TakenAt       string            `json:"taken_at"`
}

// PropertyShareDTO describes one property's weights for distribution.
type PropertyShareDTO struct {
	PropertyID  string `json:"property_id"`
	Area        string `json:"area,omitempty"`
	Consumption string `json:"consumption,omitempty"`
}

// DistributeRequest splits a shared cost across properties.
type DistributeRequest struct {
	TotalCost  string             `json:"total_cost"`
	Method     string             `json:"method"`
	Properties []PropertyShareDTO `json:"properties"`
}

// DistributionResultDTO maps property ids to allocated amounts.
type DistributionResultDTO struct {
	Amounts   map[string]string `json:"amounts"`
	TotalCost string            `json:"total_cost"`
	Method    string            `json:"method"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ValidateReadingsRequest validates a batch of readings against history.
type ValidateReadingsRequest struct {
	Readings []ReadingDTO `json:"readings"`
	History  []ReadingDTO `json:"history,omitempty"`
}

// ViolationDTO is one failed or warned rule.
type ViolationDTO struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ValidationResultDTO is the outcome for one reading.
type ValidationResultDTO struct {
	EntityID   string         `json:"entity_id"`
	Status     string         `json:"status"`
	Violations []ViolationDTO `json:"violations,omitempty"`
}

// BatchValidationDTO aggregates a batch run.
type BatchValidationDTO struct {
	Results  []ValidationResultDTO `json:"results"`
	Valid    int                   `json:"valid"`
	Invalid  int                   `json:"invalid"`
	Warnings int                   `json:"warnings"`
}

// RateChangeRequest checks whether a tariff change date is admissible.
type RateChangeRequest struct {
	Tariff       TariffDTO   `json:"tariff"`
	ProposedFrom string      `json:"proposed_from"`
	Unbilled     []PeriodDTO `json:"unbilled_periods,omitempty"`
}

// PeriodDTO is an inclusive billing period.
type PeriodDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// StatusOverrideRequest bulk-transitions readings to a target status.
type StatusOverrideRequest struct {
	Readings []ReadingDTO `json:"readings"`
	Status   string       `json:"status"`
	Actor    string       `json:"actor"`
	Reason   string       `json:"reason"`
}

// StatusOverrideDTO reports an override run.
type StatusOverrideDTO struct {
	Updated []ReadingDTO        `json:"updated"`
	Skipped []SkippedReadingDTO `json:"skipped"`
	Audits  []string            `json:"audit_entries"`
}

// SkippedReadingDTO explains one untouched reading.
type SkippedReadingDTO struct {
	ReadingID string `json:"reading_id"`
	Reason    string `json:"reason"`
}

// AuditEntryDTO is one immutable audit record.
type AuditEntryDTO struct {
	ID         string            `json:"id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Action     string            `json:"action"`
	OldValues  map[string]string `json:"old_values,omitempty"`
	NewValues  map[string]string `json:"new_values,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Reverses   string            `json:"reverses,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

// RollbackRequest carries the actor and reason for a rollback.
type RollbackRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// RollbackValidationDTO is the outcome of a rollback safety check.
type RollbackValidationDTO struct {
	EntryID  string   `json:"entry_id"`
	OK       bool     `json:"ok"`
	Blockers []string `json:"blockers,omitempty"`
	Reasons  []string `json:"reasons,omitempty"`
}

// RollbackOutcomeDTO describes one performed rollback.
type RollbackOutcomeDTO struct {
	EntryID  string            `json:"entry_id"`
	Reverses string            `json:"reverses"`
	Restored map[string]string `json:"restored"`
}

// BulkRollbackRequest rolls back several entries in order.
type BulkRollbackRequest struct {
	EntryIDs []string `json:"entry_ids"`
	Actor    string   `json:"actor"`
	Reason   string   `json:"reason"`
}

// BulkRollbackDTO aggregates a bulk rollback run.
type BulkRollbackDTO struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []RollbackItemDTO `json:"items"`
}

// RollbackItemDTO is the per-entry result of a bulk rollback.
type RollbackItemDTO struct {
	EntryID string              `json:"entry_id"`
	Outcome *RollbackOutcomeDTO `json:"outcome,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toReadingDTO(r billing.Reading) ReadingDTO {
	return ReadingDTO{
		ID:            r.ID,
		MeterID:       string(r.MeterID),
		Zone:          string(r.Zone),
		Value:         r.Value.String(),
		ReadingDate:   r.ReadingDate.Format("2006-01-02"),
		Kind:          string(r.Kind),
		EnteredBy:     r.EnteredBy,
		Status:        string(r.Status),
		Correction:    r.Correction,
		ChangeReason:  r.ChangeReason,
		InvoiceItemID: r.InvoiceItemID,
	}
}

func toConsumptionRecordDTO(rec billing.ConsumptionRecord) ConsumptionRecordDTO {
	return ConsumptionRecordDTO{
		MeterID:     string(rec.MeterID),
		Zone:        string(rec.Zone),
		Amount:      rec.Amount.String(),
		PeriodStart: rec.PeriodStart().Format("2006-01-02"),
		PeriodEnd:   rec.PeriodEnd().Format("2006-01-02"),
	}
}

func toCalculationResultDTO(res billing.CalculationResult) CalculationResultDTO {
	adjustments := make([]AdjustmentDTO, len(res.Adjustments))
	for i, adj := range res.Adjustments {
		adjustments[i] = AdjustmentDTO{
			Type:        adj.Type,
			Description: adj.Description,
			Amount:      adj.Amount.StringFixed(2),
		}
	}
	return CalculationResultDTO{
		TotalAmount:       res.TotalAmount.StringFixed(2),
		BaseAmount:        res.BaseAmount.StringFixed(2),
		FixedAmount:       res.FixedAmount.StringFixed(2),
		ConsumptionAmount: res.ConsumptionAmount.StringFixed(2),
		Adjustments:       adjustments,
		Details:           res.Details,
		Snapshot:          toTariffSnapshotDTO(res.TariffSnapshot),
	}
}

func toTariffSnapshotDTO(snap billing.TariffSnapshot) TariffSnapshotDTO {
	dto := TariffSnapshotDTO{
		TariffID:      string(snap.TariffID),
		ServiceName:   snap.ServiceName,
		Model:         snap.Model,
		RateSchedule:  snap.RateSchedule,
		EffectiveFrom: snap.EffectiveFrom.Format("2006-01-02"),
		TakenAt:       snap.TakenAt.Format(time.RFC3339),
	}
	if snap.EffectiveUntil != nil {
		s := snap.EffectiveUntil.Format("2006-01-02")
		dto.EffectiveTo = &s
	}
	return dto
}

func toDistributionResultDTO(res billing.DistributionResult) DistributionResultDTO {
	amounts := make(map[string]string, len(res.Amounts))
	for id, amount := range res.Amounts {
		amounts[string(id)] = amount.StringFixed(2)
	}
	return DistributionResultDTO{
		Amounts:   amounts,
		TotalCost: res.TotalCost.StringFixed(2),
		Method:    string(res.Method),
		Metadata:  res.Metadata,
	}
}

func toValidationResultDTO(res validation.Result) ValidationResultDTO {
	violations := make([]ViolationDTO, len(res.Violations))
	for i, v := range res.Violations {
		violations[i] = ViolationDTO{
			Rule:     string(v.Rule),
			Severity: string(v.Severity),
			Message:  v.Message,
		}
	}
	return ValidationResultDTO{
		EntityID:   res.EntityID,
		Status:     string(res.Status),
		Violations: violations,
	}
}

func toBatchValidationDTO(batch validation.BatchResult) BatchValidationDTO {
	results := make([]ValidationResultDTO, len(batch.Results))
	for i, res := range batch.Results {
		results[i] = toValidationResultDTO(res)
	}
	return BatchValidationDTO{
		Results:  results,
		Valid:    batch.Valid,
		Invalid:  batch.Invalid,
		Warnings: batch.Warnings,
	}
}

func toAuditEntryDTO(entry audit.Entry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         string(entry.ID),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		Actor:      entry.Actor,
		Reason:     entry.Reason,
		Reverses:   string(entry.Reverses),
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339),
	}
}

func toAuditEntryDTOs(entries []audit.Entry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toAuditEntryDTO(entry)
	}
	return dtos
}

func toRollbackOutcomeDTO(outcome rollback.Outcome) RollbackOutcomeDTO {
	return RollbackOutcomeDTO{
		EntryID:  string(outcome.EntryID),
		Reverses: string(outcome.Reverses),
		Restored: outcome.Restored,
	}
}

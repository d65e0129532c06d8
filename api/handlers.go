/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the calculation, validation, and rollback engines via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Calculations:
    POST   /api/consumption            Compute consumption from reading pairs
    POST   /api/calculations/price     Price consumption under a tariff
    POST   /api/distributions          Distribute a shared cost

  Validation:
    POST   /api/readings/validate      Validate a reading batch
    POST   /api/readings/status        Bulk status override (audited)
    POST   /api/tariffs/validate-change Check a rate-change date

  Audit & rollback:
    GET    /api/audit/{entityType}/{entityID}            Audit trail
    GET    /api/audit/{entityType}/{entityID}/rollbacks  Rollback history
    POST   /api/rollbacks/{id}/validate                  Safety check only
    POST   /api/rollbacks/{id}                           Perform rollback
    POST   /api/rollbacks/bulk                           Bulk rollback

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Pricing: Tariff pricing engine
  - Validator: Reading/rate-change validation engine
  - Rollbacks: Rollback coordinator
  - Audits: Audit trail store

REQUEST FLOW:
  1. Parse HTTP request
  2. Decode DTOs into domain values (decimals from strings)
  3. Call domain logic
  4. Serialize response
  5. Map errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, client data errors (ordering, negative deltas)
  - 404: Audit entry not found
  - 409: Rollback blocked or already performed
  - 422: Tariff configuration errors (bad tiers, overlapping zones)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/norvik/billing-engine/audit"
	"github.com/norvik/billing-engine/billing"
	"github.com/norvik/billing-engine/rollback"
	"github.com/norvik/billing-engine/validation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Pricing   *billing.PricingEngine
	Validator *validation.Engine
	Rollbacks *rollback.Coordinator
	Audits    audit.Store
	Log       *slog.Logger
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(pricing *billing.PricingEngine, validator *validation.Engine, rollbacks *rollback.Coordinator, audits audit.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Pricing:   pricing,
		Validator: validator,
		Rollbacks: rollbacks,
		Audits:    audits,
		Log:       log,
	}
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// ComputeConsumption derives consumption deltas from reading pairs.
// POST /api/consumption
func (h *Handler) ComputeConsumption(w http.ResponseWriter, r *http.Request) {
	var req ConsumptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Pairs) == 0 {
		writeError(w, http.StatusBadRequest, "At least one reading pair is required", nil)
		return
	}

	pairs := make([]billing.ReadingPair, len(req.Pairs))
	for i, p := range req.Pairs {
		start, err := decodeReading(p.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start reading", err)
			return
		}
		end, err := decodeReading(p.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end reading", err)
			return
		}
		pairs[i] = billing.ReadingPair{Start: start, End: end}
	}

	records, err := billing.ComputeZones(pairs)
	if err != nil {
		h.writeDomainError(w, "compute consumption", err)
		return
	}

	dtos := make([]ConsumptionRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toConsumptionRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": dtos})
}

// PriceCalculation prices consumption under a tariff for a period.
// POST /api/calculations/price
func (h *Handler) PriceCalculation(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	consumption, err := decodeConsumption(req.Consumption, req.Zones)
	if err != nil {
		h.writeDomainError(w, "decode consumption", err)
		return
	}
	tariff, err := decodeTariff(req.Tariff)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tariff", err)
		return
	}
	period, err := decodePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid billing period", err)
		return
	}

	result, err := h.Pricing.Price(consumption, tariff, period)
	if err != nil {
		h.writeDomainError(w, "price calculation", err)
		return
	}

	writeJSON(w, http.StatusOK, toCalculationResultDTO(result.Rounded(2)))
}

// DistributeCosts splits a shared cost across properties.
// POST /api/distributions
func (h *Handler) DistributeCosts(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	totalCost, err := decimal.NewFromString(req.TotalCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_cost", err)
		return
	}

	properties := make([]billing.PropertyShare, len(req.Properties))
	for i, p := range req.Properties {
		share := billing.PropertyShare{PropertyID: billing.PropertyID(p.PropertyID)}
		if p.Area != "" {
			share.Area, err = decimal.NewFromString(p.Area)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid area for "+p.PropertyID, err)
				return
			}
		}
		if p.Consumption != "" {
			share.Consumption, err = decimal.NewFromString(p.Consumption)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid consumption for "+p.PropertyID, err)
				return
			}
		}
		properties[i] = share
	}

	result, err := billing.Distribute(totalCost, properties, billing.DistributionMethod(req.Method))
	if err != nil {
		h.writeDomainError(w, "distribute costs", err)
		return
	}

	writeJSON(w, http.StatusOK, toDistributionResultDTO(result))
}

// =============================================================================
// VALIDATION HANDLERS
// =============================================================================

// ValidateReadings runs the rule pipeline over a batch of readings.
// POST /api/readings/validate
func (h *Handler) ValidateReadings(w http.ResponseWriter, r *http.Request) {
	var req ValidateReadingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	maxBatch := h.Validator.Config().MaxBatchSize
	if len(req.Readings) > maxBatch {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Batch exceeds maximum size of %d readings", maxBatch), nil)
		return
	}

	readings, err := decodeReadings(req.Readings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reading", err)
		return
	}
	history, err := decodeReadings(req.History)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid history reading", err)
		return
	}

	batch := h.Validator.ValidateBatch(readings, validation.BatchOptions{History: history})
	writeJSON(w, http.StatusOK, toBatchValidationDTO(batch))
}

// OverrideStatus bulk-transitions readings to a target status with an
// audit entry per transition.
// POST /api/readings/status
func (h *Handler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	readings, err := decodeReadings(req.Readings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reading", err)
		return
	}

	outcome, err := h.Validator.BulkUpdateStatus(r.Context(), h.Audits, readings,
		billing.ReadingStatus(req.Status), req.Actor, req.Reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Status override rejected", err)
		return
	}

	dto := StatusOverrideDTO{
		Updated: make([]ReadingDTO, len(outcome.Updated)),
		Skipped: make([]SkippedReadingDTO, len(outcome.Skipped)),
		Audits:  make([]string, len(outcome.Audits)),
	}
	for i, reading := range outcome.Updated {
		dto.Updated[i] = toReadingDTO(reading)
	}
	for i, skipped := range outcome.Skipped {
		dto.Skipped[i] = SkippedReadingDTO{ReadingID: skipped.ReadingID, Reason: skipped.Reason}
	}
	for i, id := range outcome.Audits {
		dto.Audits[i] = string(id)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ValidateRateChange checks a proposed tariff change date against the
// cooldown window and unbilled periods.
// POST /api/tariffs/validate-change
func (h *Handler) ValidateRateChange(w http.ResponseWriter, r *http.Request) {
	var req RateChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tariff, err := decodeTariff(req.Tariff)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tariff", err)
		return
	}
	proposedFrom, err := parseDate(req.ProposedFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid proposed_from date", err)
		return
	}
	unbilled := make([]billing.BillingPeriod, len(req.Unbilled))
	for i, p := range req.Unbilled {
		unbilled[i], err = decodePeriod(p.Start, p.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unbilled period", err)
			return
		}
	}

	result := h.Validator.ValidateRateChange(tariff, proposedFrom, unbilled)
	writeJSON(w, http.StatusOK, toValidationResultDTO(result))
}

// =============================================================================
// AUDIT & ROLLBACK HANDLERS
// =============================================================================

// ListAuditEntries returns the audit trail for an entity, oldest first.
// GET /api/audit/{entityType}/{entityID}
func (h *Handler) ListAuditEntries(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")

	entries, err := h.Audits.ForEntity(r.Context(), entityType, entityID)
	if err != nil {
		h.internalError(w, "list audit entries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditEntryDTOs(entries)})
}

// ListRollbackHistory returns the rollback entries for an entity.
// GET /api/audit/{entityType}/{entityID}/rollbacks
func (h *Handler) ListRollbackHistory(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")

	entries, err := h.Rollbacks.RollbackHistory(r.Context(), entityType, entityID)
	if err != nil {
		h.internalError(w, "list rollback history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditEntryDTOs(entries)})
}

// ValidateRollback runs the safety check without restoring anything.
// POST /api/rollbacks/{id}/validate
func (h *Handler) ValidateRollback(w http.ResponseWriter, r *http.Request) {
	id := audit.EntryID(chi.URLParam(r, "id"))

	result, err := h.Rollbacks.ValidateRollback(r.Context(), id)
	if err != nil && !errors.Is(err, rollback.ErrRollbackBlocked) && !errors.Is(err, rollback.ErrAlreadyRolledBack) {
		h.writeRollbackError(w, "validate rollback", err)
		return
	}

	writeJSON(w, http.StatusOK, RollbackValidationDTO{
		EntryID:  string(id),
		OK:       result.OK,
		Blockers: result.Blockers,
		Reasons:  result.Reasons,
	})
}

// PerformRollback validates and atomically restores the entry's prior state.
// POST /api/rollbacks/{id}
func (h *Handler) PerformRollback(w http.ResponseWriter, r *http.Request) {
	id := audit.EntryID(chi.URLParam(r, "id"))

	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Actor == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "actor and reason are required", nil)
		return
	}

	outcome, err := h.Rollbacks.PerformRollback(r.Context(), id, req.Actor, req.Reason)
	if err != nil {
		h.writeRollbackError(w, "perform rollback", err)
		return
	}

	writeJSON(w, http.StatusOK, toRollbackOutcomeDTO(outcome))
}

// PerformBulkRollback rolls back several entries in order; one failure
// never stops the rest.
// POST /api/rollbacks/bulk
func (h *Handler) PerformBulkRollback(w http.ResponseWriter, r *http.Request) {
	var req BulkRollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.EntryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entry_ids is required", nil)
		return
	}
	if req.Actor == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "actor and reason are required", nil)
		return
	}

	ids := make([]audit.EntryID, len(req.EntryIDs))
	for i, id := range req.EntryIDs {
		ids[i] = audit.EntryID(id)
	}

	bulk := h.Rollbacks.PerformBulkRollback(r.Context(), ids, req.Actor, req.Reason)

	dto := BulkRollbackDTO{
		Succeeded: bulk.Succeeded,
		Failed:    bulk.Failed,
		Items:     make([]RollbackItemDTO, len(bulk.Items)),
	}
	for i, item := range bulk.Items {
		itemDTO := RollbackItemDTO{EntryID: string(item.EntryID), Error: item.Err}
		if item.Outcome != nil {
			outcome := toRollbackOutcomeDTO(*item.Outcome)
			itemDTO.Outcome = &outcome
		}
		dto.Items[i] = itemDTO
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// DECODING HELPERS
// =============================================================================

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return parseDate(s)
}

// parseMinute parses an "HH:MM" boundary. "24:00" marks end of day.
func parseMinute(s string) (billing.MinuteOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q (use HH:MM)", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return billing.Minute(hour, minute), nil
}

func decodeReading(dto ReadingDTO) (billing.Reading, error) {
	value, err := decimal.NewFromString(dto.Value)
	if err != nil {
		return billing.Reading{}, fmt.Errorf("reading %s: invalid value: %w", dto.ID, err)
	}
	date, err := parseDate(dto.ReadingDate)
	if err != nil {
		return billing.Reading{}, fmt.Errorf("reading %s: invalid reading_date: %w", dto.ID, err)
	}

	kind := billing.ReadingKind(dto.Kind)
	if kind == "" {
		kind = billing.KindActual
	}
	status := billing.ReadingStatus(dto.Status)
	if status == "" {
		status = billing.StatusPending
	}

	return billing.Reading{
		ID:            dto.ID,
		MeterID:       billing.MeterID(dto.MeterID),
		Zone:          billing.Zone(dto.Zone),
		Value:         value,
		ReadingDate:   date,
		Kind:          kind,
		EnteredBy:     dto.EnteredBy,
		Status:        status,
		Correction:    dto.Correction,
		ChangeReason:  dto.ChangeReason,
		InvoiceItemID: dto.InvoiceItemID,
	}, nil
}

func decodeReadings(dtos []ReadingDTO) ([]billing.Reading, error) {
	readings := make([]billing.Reading, len(dtos))
	for i, dto := range dtos {
		reading, err := decodeReading(dto)
		if err != nil {
			return nil, err
		}
		readings[i] = reading
	}
	return readings, nil
}

func decodeConsumption(total string, zones map[string]string) (billing.ConsumptionData, error) {
	totalAmount, err := decimal.NewFromString(total)
	if err != nil {
		return billing.ConsumptionData{}, fmt.Errorf("invalid consumption: %w", err)
	}
	if len(zones) == 0 {
		return billing.NewConsumption(totalAmount)
	}
	zoneAmounts := make(map[billing.Zone]decimal.Decimal, len(zones))
	for zone, raw := range zones {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return billing.ConsumptionData{}, fmt.Errorf("invalid zone %s consumption: %w", zone, err)
		}
		zoneAmounts[billing.Zone(zone)] = amount
	}
	return billing.NewZonedConsumption(totalAmount, zoneAmounts)
}

func decodePeriod(start, end string) (billing.BillingPeriod, error) {
	startDate, err := parseDate(start)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("invalid start: %w", err)
	}
	endDate, err := parseDate(end)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("invalid end: %w", err)
	}
	return billing.NewBillingPeriod(startDate, endDate)
}

func decodeSeasonal(dto *SeasonalDTO) (billing.SeasonalAdjustment, error) {
	var adj billing.SeasonalAdjustment
	if dto == nil {
		return adj, nil
	}
	var err error
	if dto.SummerMultiplier != "" {
		adj.SummerMultiplier, err = decimal.NewFromString(dto.SummerMultiplier)
		if err != nil {
			return adj, fmt.Errorf("invalid summer_multiplier: %w", err)
		}
	}
	if dto.WinterMultiplier != "" {
		adj.WinterMultiplier, err = decimal.NewFromString(dto.WinterMultiplier)
		if err != nil {
			return adj, fmt.Errorf("invalid winter_multiplier: %w", err)
		}
	}
	return adj, nil
}

// decodeModel is the single decoding point for the tariff model union.
func decodeModel(dto TariffDTO) (billing.PricingModel, error) {
	switch dto.Model {
	case "fixed_monthly":
		rate, err := decimal.NewFromString(dto.MonthlyRate)
		if err != nil {
			return nil, fmt.Errorf("invalid monthly_rate: %w", err)
		}
		seasonal, err := decodeSeasonal(dto.Seasonal)
		if err != nil {
			return nil, err
		}
		return billing.FixedMonthly{MonthlyRate: rate, Seasonal: seasonal}, nil

	case "consumption_based":
		rate, err := decimal.NewFromString(dto.UnitRate)
		if err != nil {
			return nil, fmt.Errorf("invalid unit_rate: %w", err)
		}
		return billing.ConsumptionBased{UnitRate: rate}, nil

	case "tiered":
		tiers := make([]billing.Tier, len(dto.Tiers))
		for i, t := range dto.Tiers {
			rate, err := decimal.NewFromString(t.Rate)
			if err != nil {
				return nil, fmt.Errorf("tier %d: invalid rate: %w", i, err)
			}
			tiers[i] = billing.Tier{Rate: rate}
			if t.UpTo != nil {
				upTo, err := decimal.NewFromString(*t.UpTo)
				if err != nil {
					return nil, fmt.Errorf("tier %d: invalid up_to: %w", i, err)
				}
				tiers[i].UpTo = &upTo
			}
		}
		return billing.Tiered{Tiers: tiers}, nil

	case "time_of_use":
		defaultRate, err := decimal.NewFromString(dto.DefaultRate)
		if err != nil {
			return nil, fmt.Errorf("invalid default_rate: %w", err)
		}
		zones := make([]billing.ZoneRate, len(dto.Zones))
		for i, z := range dto.Zones {
			start, err := parseMinute(z.Start)
			if err != nil {
				return nil, fmt.Errorf("zone %s: %w", z.Zone, err)
			}
			end, err := parseMinute(z.End)
			if err != nil {
				return nil, fmt.Errorf("zone %s: %w", z.Zone, err)
			}
			rate, err := decimal.NewFromString(z.Rate)
			if err != nil {
				return nil, fmt.Errorf("zone %s: invalid rate: %w", z.Zone, err)
			}
			zones[i] = billing.ZoneRate{Zone: billing.Zone(z.Zone), Start: start, End: end, Rate: rate}
		}
		return billing.TimeOfUse{Zones: zones, DefaultRate: defaultRate}, nil

	case "hybrid":
		baseFee, err := decimal.NewFromString(dto.BaseFee)
		if err != nil {
			return nil, fmt.Errorf("invalid base_fee: %w", err)
		}
		unitRate, err := decimal.NewFromString(dto.UnitRate)
		if err != nil {
			return nil, fmt.Errorf("invalid unit_rate: %w", err)
		}
		seasonal, err := decodeSeasonal(dto.Seasonal)
		if err != nil {
			return nil, err
		}
		return billing.Hybrid{BaseFee: baseFee, UnitRate: unitRate, Seasonal: seasonal}, nil

	case "custom_formula":
		if dto.Formula == "" {
			return nil, fmt.Errorf("formula is required")
		}
		variables := make(map[string]decimal.Decimal, len(dto.Variables))
		for name, raw := range dto.Variables {
			value, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("variable %s: invalid value: %w", name, err)
			}
			variables[name] = value
		}
		return billing.CustomFormula{Expression: dto.Formula, Variables: variables}, nil

	default:
		return nil, fmt.Errorf("unknown pricing model %q", dto.Model)
	}
}

func decodeTariff(dto TariffDTO) (billing.TariffConfiguration, error) {
	model, err := decodeModel(dto)
	if err != nil {
		return billing.TariffConfiguration{}, err
	}

	effectiveFrom, err := parseDate(dto.EffectiveFrom)
	if err != nil {
		return billing.TariffConfiguration{}, fmt.Errorf("invalid effective_from: %w", err)
	}

	cfg := billing.TariffConfiguration{
		ID:            billing.TariffID(dto.ID),
		ServiceName:   dto.ServiceName,
		Model:         model,
		EffectiveFrom: effectiveFrom,
		LastChangedAt: effectiveFrom,
	}
	if dto.EffectiveTo != nil {
		until, err := parseDate(*dto.EffectiveTo)
		if err != nil {
			return billing.TariffConfiguration{}, fmt.Errorf("invalid effective_to: %w", err)
		}
		cfg.EffectiveUntil = &until
	}
	if dto.LastChangedAt != "" {
		changed, err := parseInstant(dto.LastChangedAt)
		if err != nil {
			return billing.TariffConfiguration{}, fmt.Errorf("invalid last_changed_at: %w", err)
		}
		cfg.LastChangedAt = changed
	}
	return cfg, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps billing errors onto HTTP status codes: client
// data errors to 400, tariff configuration errors to 422.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid billing data", err)
	case billing.IsConfigurationError(err):
		writeError(w, http.StatusUnprocessableEntity, "Invalid tariff configuration", err)
	default:
		h.internalError(w, op, err)
	}
}

func (h *Handler) writeRollbackError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, audit.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "Audit entry not found", err)
	case errors.Is(err, rollback.ErrAlreadyRolledBack):
		writeError(w, http.StatusConflict, "Entry already rolled back", err)
	case errors.Is(err, rollback.ErrRollbackBlocked):
		writeError(w, http.StatusConflict, "Rollback blocked by finalized dependents", err)
	default:
		h.internalError(w, op, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.Log.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal error", err)
}

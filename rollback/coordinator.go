/*
Package rollback restores audited entities to a prior state, safely.

PURPOSE:
  Given an audit entry, the coordinator decides whether the recorded
  prior state can still be restored - nothing finalized may depend on the
  values being rolled back - and, if so, performs the restoration
  atomically together with a new audit entry describing the rollback.

SAFETY RULES:
  1. The target entry must exist and must not already be reversed.
  2. No finalized data built after the entry may depend on the entity
     (e.g. an invoice generated from the configuration being restored).
     Blocking entity ids are reported so a human can act on them.
  3. Restore + rollback-audit happen in one transaction: all or nothing.
  4. Rolling back twice fails with ErrAlreadyRolledBack; state after the
     second attempt equals state after the first.

  ValidateRollback is the single source of truth for "is this safe"; the
  store re-checks it inside the same transaction that performs the
  restore, so a finalization racing the rollback loses cleanly.

BULK MODE:
  PerformBulkRollback processes a bounded id list sequentially. Failures
  are collected per item and never stop the rest of the batch.

SEE ALSO:
  - audit: Entry and Store contracts
  - store/sqlite, store/memory: EntityStore implementations
*/
package rollback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/norvik/billing-engine/audit"
	"github.com/norvik/billing-engine/billing"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrAlreadyRolledBack is returned when the target entry has already
	// been reversed.
	ErrAlreadyRolledBack = errors.New("audit entry already rolled back")

	// ErrRollbackBlocked is returned when finalized data depends on the
	// state being rolled back.
	ErrRollbackBlocked = errors.New("rollback blocked by dependent entities")
)

// BlockedError lists the entities preventing a rollback.
type BlockedError struct {
	EntryID  audit.EntryID
	Blockers []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("rollback of %s blocked by %d finalized dependents: %v",
		e.EntryID, len(e.Blockers), e.Blockers)
}

func (e *BlockedError) Unwrap() error { return ErrRollbackBlocked }

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// EntityStore reads and restores audited entity state. RestoreState must
// apply the state and append the rollback audit entry atomically; if
// either write fails, neither is applied.
type EntityStore interface {
	CurrentState(ctx context.Context, entityType, entityID string) (map[string]string, error)
	RestoreState(ctx context.Context, entityType, entityID string, state map[string]string, entry audit.Entry) error
}

// DependencyChecker reports finalized data that depends on an entity's
// state as of the given instant. Non-empty means the rollback is blocked.
type DependencyChecker interface {
	FinalizedDependents(ctx context.Context, entityType, entityID string, since time.Time) ([]string, error)
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator validates and performs rollbacks.
type Coordinator struct {
	audits   audit.Store
	entities EntityStore
	deps     DependencyChecker
	clock    billing.Clock
}

// NewCoordinator wires the coordinator. A nil clock defaults to the
// system clock.
func NewCoordinator(audits audit.Store, entities EntityStore, deps DependencyChecker, clock billing.Clock) *Coordinator {
	if clock == nil {
		clock = billing.SystemClock{}
	}
	return &Coordinator{audits: audits, entities: entities, deps: deps, clock: clock}
}

// Validation is the outcome of a rollback safety check.
type Validation struct {
	Entry    audit.Entry
	OK       bool
	Blockers []string
	Reasons  []string
}

// Outcome describes a performed rollback.
type Outcome struct {
	// EntryID is the id of the new rollback audit entry.
	EntryID audit.EntryID

	// Reverses is the id of the entry that was rolled back.
	Reverses audit.EntryID

	// Restored is the state the entity was returned to.
	Restored map[string]string
}

// ValidateRollback checks whether the entry's prior state can be safely
// restored. A failed check returns both the matching error kind (for
// callers to branch on) and a Validation carrying the human-readable
// detail and blocking entity ids.
func (c *Coordinator) ValidateRollback(ctx context.Context, id audit.EntryID) (Validation, error) {
	entry, err := c.audits.Get(ctx, id)
	if err != nil {
		return Validation{}, err
	}

	v := Validation{Entry: entry, OK: true}

	if reversal, reversed, err := c.audits.ReversalOf(ctx, id); err != nil {
		return Validation{}, err
	} else if reversed {
		v.OK = false
		v.Reasons = append(v.Reasons, fmt.Sprintf("already reversed by %s", reversal.ID))
		return v, ErrAlreadyRolledBack
	}

	blockers, err := c.deps.FinalizedDependents(ctx, entry.EntityType, entry.EntityID, entry.CreatedAt)
	if err != nil {
		return Validation{}, err
	}
	if len(blockers) > 0 {
		v.OK = false
		v.Blockers = blockers
		v.Reasons = append(v.Reasons, fmt.Sprintf("%d finalized dependents", len(blockers)))
		return v, &BlockedError{EntryID: id, Blockers: blockers}
	}

	return v, nil
}

// PerformRollback restores the entry's prior state and writes the
// rollback audit entry atomically. The new entry records old=current
// state, new=restored state, and references the reversed entry.
func (c *Coordinator) PerformRollback(ctx context.Context, id audit.EntryID, actor, reason string) (Outcome, error) {
	validation, err := c.ValidateRollback(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	target := validation.Entry

	current, err := c.entities.CurrentState(ctx, target.EntityType, target.EntityID)
	if err != nil {
		return Outcome{}, err
	}

	entry := audit.Entry{
		ID:         audit.NewID(),
		EntityType: target.EntityType,
		EntityID:   target.EntityID,
		Action:     audit.ActionRollback,
		OldValues:  audit.CloneValues(current),
		NewValues:  audit.CloneValues(target.OldValues),
		Actor:      actor,
		Reason:     reason,
		Reverses:   target.ID,
		CreatedAt:  c.clock.Now(),
	}

	if err := c.entities.RestoreState(ctx, target.EntityType, target.EntityID, audit.CloneValues(target.OldValues), entry); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		EntryID:  entry.ID,
		Reverses: target.ID,
		Restored: audit.CloneValues(target.OldValues),
	}, nil
}

// =============================================================================
// BULK ROLLBACK
// =============================================================================

// ItemOutcome is the per-entry result of a bulk rollback.
type ItemOutcome struct {
	EntryID audit.EntryID
	Outcome *Outcome
	Err     string
}

// BulkOutcome aggregates a bulk rollback run.
type BulkOutcome struct {
	Succeeded int
	Failed    int
	Items     []ItemOutcome
}

// PerformBulkRollback rolls back a bounded list of entries sequentially,
// in the given order. One entry's failure never stops the rest; per-item
// outcomes and aggregate counts are returned.
func (c *Coordinator) PerformBulkRollback(ctx context.Context, ids []audit.EntryID, actor, reason string) BulkOutcome {
	bulk := BulkOutcome{}
	for _, id := range ids {
		outcome, err := c.PerformRollback(ctx, id, actor, reason)
		if err != nil {
			bulk.Failed++
			bulk.Items = append(bulk.Items, ItemOutcome{EntryID: id, Err: err.Error()})
			continue
		}
		bulk.Succeeded++
		result := outcome
		bulk.Items = append(bulk.Items, ItemOutcome{EntryID: id, Outcome: &result})
	}
	return bulk
}

// RollbackHistory lists the rollback entries recorded for an entity,
// oldest first.
func (c *Coordinator) RollbackHistory(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	entries, err := c.audits.ForEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	var rollbacks []audit.Entry
	for _, entry := range entries {
		if entry.Action == audit.ActionRollback {
			rollbacks = append(rollbacks, entry)
		}
	}
	return rollbacks, nil
}

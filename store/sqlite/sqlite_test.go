package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norvik/billing-engine/audit"
	"github.com/norvik/billing-engine/billing"
	"github.com/norvik/billing-engine/rollback"
	"github.com/norvik/billing-engine/store/sqlite"
)

var testNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(id audit.EntryID, entityID string, at time.Time) audit.Entry {
	return audit.Entry{
		ID:         id,
		EntityType: "tariff",
		EntityID:   entityID,
		Action:     audit.ActionUpdate,
		OldValues:  map[string]string{"unit_rate": "0.20"},
		NewValues:  map[string]string{"unit_rate": "0.25"},
		Actor:      "admin",
		Reason:     "scheduled rate revision",
		CreatedAt:  at,
	}
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func TestAppendAndGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	original := entry("audit-1", "t-1", testNow)

	require.NoError(t, store.Append(ctx, original))

	got, err := store.Get(ctx, "audit-1")
	require.NoError(t, err)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.OldValues, got.OldValues)
	assert.Equal(t, original.NewValues, got.NewValues)
	assert.Equal(t, original.Actor, got.Actor)
	assert.True(t, original.CreatedAt.Equal(got.CreatedAt))
}

func TestGet_Unknown_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "audit-missing")
	assert.ErrorIs(t, err, audit.ErrEntryNotFound)
}

func TestForEntity_OrderedOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, entry("audit-2", "t-1", testNow)))
	require.NoError(t, store.Append(ctx, entry("audit-1", "t-1", testNow.Add(-time.Hour))))
	require.NoError(t, store.Append(ctx, entry("audit-3", "t-other", testNow)))

	entries, err := store.ForEntity(ctx, "tariff", "t-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.EntryID("audit-1"), entries[0].ID)
	assert.Equal(t, audit.EntryID("audit-2"), entries[1].ID)
}

func TestReversalOf_FindsBackReference(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	original := entry("audit-1", "t-1", testNow)
	require.NoError(t, store.Append(ctx, original))

	_, reversed, err := store.ReversalOf(ctx, "audit-1")
	require.NoError(t, err)
	assert.False(t, reversed)

	reversal := entry("audit-2", "t-1", testNow.Add(time.Hour))
	reversal.Action = audit.ActionRollback
	reversal.Reverses = "audit-1"
	require.NoError(t, store.Append(ctx, reversal))

	got, reversed, err := store.ReversalOf(ctx, "audit-1")
	require.NoError(t, err)
	assert.True(t, reversed)
	assert.Equal(t, audit.EntryID("audit-2"), got.ID)
}

func TestAppend_DuplicateReversal_Rejected(t *testing.T) {
	// The unique index on reverses makes double rollback impossible at
	// the storage layer, whatever the coordinator does.
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, entry("audit-1", "t-1", testNow)))

	first := entry("audit-2", "t-1", testNow)
	first.Reverses = "audit-1"
	require.NoError(t, store.Append(ctx, first))

	second := entry("audit-3", "t-1", testNow)
	second.Reverses = "audit-1"
	assert.Error(t, store.Append(ctx, second))
}

// =============================================================================
// ENTITY STATE
// =============================================================================

func TestCurrentState_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	state := map[string]string{"unit_rate": "0.25", "service": "electricity"}

	require.NoError(t, store.PutState(ctx, "tariff", "t-1", state))

	got, err := store.CurrentState(ctx, "tariff", "t-1")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestRestoreState_AtomicWithAuditEntry(t *testing.T) {
	// GIVEN: Current state 0.25 and an audited update from 0.20
	// WHEN: Restoring via RestoreState
	// THEN: Both the state row and the rollback entry are visible

	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutState(ctx, "tariff", "t-1", map[string]string{"unit_rate": "0.25"}))
	require.NoError(t, store.Append(ctx, entry("audit-1", "t-1", testNow.Add(-time.Hour))))

	reversal := audit.Entry{
		ID:         "audit-2",
		EntityType: "tariff",
		EntityID:   "t-1",
		Action:     audit.ActionRollback,
		OldValues:  map[string]string{"unit_rate": "0.25"},
		NewValues:  map[string]string{"unit_rate": "0.20"},
		Actor:      "ops-user",
		Reason:     "rate revision entered in error",
		Reverses:   "audit-1",
		CreatedAt:  testNow,
	}
	require.NoError(t, store.RestoreState(ctx, "tariff", "t-1", map[string]string{"unit_rate": "0.20"}, reversal))

	state, err := store.CurrentState(ctx, "tariff", "t-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"unit_rate": "0.20"}, state)

	got, err := store.Get(ctx, "audit-2")
	require.NoError(t, err)
	assert.Equal(t, audit.EntryID("audit-1"), got.Reverses)
}

func TestRestoreState_SecondReversal_Rejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutState(ctx, "tariff", "t-1", map[string]string{"unit_rate": "0.25"}))
	require.NoError(t, store.Append(ctx, entry("audit-1", "t-1", testNow.Add(-time.Hour))))

	first := audit.Entry{
		ID: "audit-2", EntityType: "tariff", EntityID: "t-1",
		Action: audit.ActionRollback, Reverses: "audit-1", CreatedAt: testNow,
		NewValues: map[string]string{"unit_rate": "0.20"},
	}
	require.NoError(t, store.RestoreState(ctx, "tariff", "t-1", map[string]string{"unit_rate": "0.20"}, first))

	second := audit.Entry{
		ID: "audit-3", EntityType: "tariff", EntityID: "t-1",
		Action: audit.ActionRollback, Reverses: "audit-1", CreatedAt: testNow,
		NewValues: map[string]string{"unit_rate": "0.20"},
	}
	err := store.RestoreState(ctx, "tariff", "t-1", map[string]string{"unit_rate": "0.20"}, second)
	assert.ErrorIs(t, err, rollback.ErrAlreadyRolledBack)
}

// =============================================================================
// DEPENDENCY CHECKS
// =============================================================================

func TestFinalizedDependents_SinceFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.LinkFinalizedInvoice(ctx, "tariff", "t-1", "inv-old", testNow.Add(-10*time.Hour)))
	require.NoError(t, store.LinkFinalizedInvoice(ctx, "tariff", "t-1", "inv-new", testNow.Add(-time.Hour)))

	blockers, err := store.FinalizedDependents(ctx, "tariff", "t-1", testNow.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-new"}, blockers)
}

// =============================================================================
// FULL COORDINATOR ROUND TRIP ON SQLITE
// =============================================================================

func TestCoordinator_OnSqlite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	coordinator := rollback.NewCoordinator(store, store, store, billing.FixedClock{At: testNow})

	old := map[string]string{"unit_rate": "0.20"}
	require.NoError(t, store.PutState(ctx, "tariff", "t-1", map[string]string{"unit_rate": "0.25"}))
	original := entry("audit-1", "t-1", testNow.Add(-time.Hour))
	original.OldValues = old
	require.NoError(t, store.Append(ctx, original))

	outcome, err := coordinator.PerformRollback(ctx, "audit-1", "ops-user", "rate revision entered in error")
	require.NoError(t, err)
	assert.Equal(t, old, outcome.Restored)

	state, err := store.CurrentState(ctx, "tariff", "t-1")
	require.NoError(t, err)
	assert.Equal(t, old, state)

	_, err = coordinator.PerformRollback(ctx, "audit-1", "ops-user", "second attempt")
	assert.ErrorIs(t, err, rollback.ErrAlreadyRolledBack)
}

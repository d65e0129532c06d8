/*
Package audit defines the audit trail contract for the billing engine.

PURPOSE:
  Every mutating operation in the billing core - configuration changes,
  reading corrections, manual status overrides, rollbacks - produces an
  Entry capturing the before/after state, who did it, and why. Entries
  are immutable once written; a mistake is corrected by a rollback entry
  that references the entry it reverses, never by editing history.

BACK-REFERENCES:
  Rollback entries carry the reversed entry's id in Reverses. This keeps
  the audit graph an arena of plain ids rather than live object pointers,
  so there are no ownership cycles and the "already rolled back" check is
  a single indexed lookup.

STORAGE:
  The Store interface is implemented by store/sqlite for production and
  store/memory for tests. Both enforce append-only semantics: there is
  no update or delete operation, ever.

SEE ALSO:
  - rollback: Consumes and produces entries
  - store/sqlite, store/memory: Implementations
*/
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the billing core.
const (
	ActionUpdate         = "update"
	ActionRollback       = "rollback"
	ActionStatusOverride = "status_override"
)

// EntryID identifies one audit entry.
type EntryID string

// NewID generates a random entry id.
func NewID() EntryID {
	return EntryID("audit-" + uuid.NewString())
}

// Entry is one immutable audit record. Old and new values are flat
// field->value snapshots; field-for-field equality between a rollback's
// NewValues and the original's OldValues is the round-trip guarantee.
type Entry struct {
	ID         EntryID
	EntityType string
	EntityID   string
	Action     string

	OldValues map[string]string
	NewValues map[string]string

	Actor  string
	Reason string

	// Reverses references the entry this rollback undoes. Empty for
	// ordinary mutations.
	Reverses EntryID

	CreatedAt time.Time
}

// ErrEntryNotFound is returned when an entry id does not exist.
var ErrEntryNotFound = errors.New("audit entry not found")

// Store persists audit entries. Append-only: no update, no delete.
type Store interface {
	// Append writes one entry. The entry id must be unique.
	Append(ctx context.Context, entry Entry) error

	// Get returns the entry with the given id, or ErrEntryNotFound.
	Get(ctx context.Context, id EntryID) (Entry, error)

	// ForEntity returns all entries for an entity in chronological order.
	ForEntity(ctx context.Context, entityType, entityID string) ([]Entry, error)

	// ReversalOf returns the rollback entry that reverses the given id,
	// if one exists.
	ReversalOf(ctx context.Context, id EntryID) (Entry, bool, error)
}

// CloneValues deep-copies a value snapshot so stored entries never alias
// caller maps.
func CloneValues(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

/*
Package memory provides an in-memory implementation of the audit and
entity-state storage interfaces.

PURPOSE:
  Used by tests and demos. Implements the same contracts as store/sqlite:
  append-only audit log, current entity state, and finalized-invoice
  dependency links. All operations are guarded by a single mutex, which
  also makes RestoreState trivially atomic.

SEE ALSO:
  - store/sqlite: Production implementation
  - audit, rollback: Interface definitions
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/norvik/billing-engine/audit"
	"github.com/norvik/billing-engine/rollback"
)

type entityKey struct {
	entityType string
	entityID   string
}

type dependent struct {
	id          string
	finalizedAt time.Time
}

// Store holds everything in process memory.
type Store struct {
	mu         sync.RWMutex
	entries    map[audit.EntryID]audit.Entry
	order      []audit.EntryID
	states     map[entityKey]map[string]string
	dependents map[entityKey][]dependent
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries:    make(map[audit.EntryID]audit.Entry),
		states:     make(map[entityKey]map[string]string),
		dependents: make(map[entityKey][]dependent),
	}
}

// =============================================================================
// audit.Store
// =============================================================================

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(entry)
}

func (s *Store) appendLocked(entry audit.Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("audit entry missing id")
	}
	if _, exists := s.entries[entry.ID]; exists {
		return fmt.Errorf("audit entry %s already exists", entry.ID)
	}
	entry.OldValues = audit.CloneValues(entry.OldValues)
	entry.NewValues = audit.CloneValues(entry.NewValues)
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	return nil
}

func (s *Store) Get(ctx context.Context, id audit.EntryID) (audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return audit.Entry{}, audit.ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

func (s *Store) ForEntity(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, id := range s.order {
		entry := s.entries[id]
		if entry.EntityType == entityType && entry.EntityID == entityID {
			out = append(out, cloneEntry(entry))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ReversalOf(ctx context.Context, id audit.EntryID) (audit.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, candidate := range s.order {
		entry := s.entries[candidate]
		if entry.Reverses == id {
			return cloneEntry(entry), true, nil
		}
	}
	return audit.Entry{}, false, nil
}

// =============================================================================
// rollback.EntityStore
// =============================================================================

func (s *Store) CurrentState(ctx context.Context, entityType, entityID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[entityKey{entityType, entityID}]
	if !ok {
		return nil, fmt.Errorf("no state for %s/%s", entityType, entityID)
	}
	return audit.CloneValues(state), nil
}

// RestoreState applies the state and appends the rollback entry under one
// lock: all or nothing. The reversal check is repeated here so a racing
// rollback of the same entry cannot double-apply.
func (s *Store) RestoreState(ctx context.Context, entityType, entityID string, state map[string]string, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Reverses != "" {
		for _, id := range s.order {
			if s.entries[id].Reverses == entry.Reverses {
				return fmt.Errorf("%w: entry %s already reversed by %s", rollback.ErrAlreadyRolledBack, entry.Reverses, id)
			}
		}
	}
	if err := s.appendLocked(entry); err != nil {
		return err
	}
	s.states[entityKey{entityType, entityID}] = audit.CloneValues(state)
	return nil
}

// =============================================================================
// rollback.DependencyChecker
// =============================================================================

func (s *Store) FinalizedDependents(ctx context.Context, entityType, entityID string, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, dep := range s.dependents[entityKey{entityType, entityID}] {
		if !dep.finalizedAt.Before(since) {
			out = append(out, dep.id)
		}
	}
	return out, nil
}

// =============================================================================
// SEEDING HELPERS - used by tests and the API layer
// =============================================================================

// PutState sets the current state of an entity.
func (s *Store) PutState(entityType, entityID string, state map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[entityKey{entityType, entityID}] = audit.CloneValues(state)
}

// LinkFinalizedInvoice records that finalized data (an invoice item) was
// built from the entity's state at the given instant.
func (s *Store) LinkFinalizedInvoice(entityType, entityID, invoiceID string, finalizedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{entityType, entityID}
	s.dependents[key] = append(s.dependents[key], dependent{id: invoiceID, finalizedAt: finalizedAt})
}

func cloneEntry(entry audit.Entry) audit.Entry {
	entry.OldValues = audit.CloneValues(entry.OldValues)
	entry.NewValues = audit.CloneValues(entry.NewValues)
	return entry
}

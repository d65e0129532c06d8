/*
Package sqlite provides a SQLite-backed implementation of the audit and
entity-state storage interfaces.

PURPOSE:
  Implements audit.Store, rollback.EntityStore and
  rollback.DependencyChecker on SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The audit_entries table is append-only: no UPDATE, no DELETE. A unique
  index on reverses (where set) makes "roll back twice" fail at the
  database even under concurrent writers.

KEY TABLES:
  audit_entries:  Immutable audit log, value snapshots as JSON
  entity_states:  Current field->value state per audited entity
  invoice_links:  Finalized invoice items depending on an entity

TRANSACTIONS:
  RestoreState runs restore + audit append in one SQL transaction and
  re-checks the reversal inside it, so a rollback racing another rollback
  or a finalization loses cleanly (all-or-nothing).

WAL MODE:
  Opened with WAL and foreign keys on, matching the usual service
  deployment; use ":memory:" for tests.

SEE ALSO:
  - audit, rollback: Interface definitions
  - store/memory: In-memory twin for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/norvik/billing-engine/audit"
	"github.com/norvik/billing-engine/rollback"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		old_values TEXT,
		new_values TEXT,
		actor TEXT,
		reason TEXT,
		reverses TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_entries(entity_type, entity_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_reverses
		ON audit_entries(reverses) WHERE reverses IS NOT NULL AND reverses != '';

	-- Current state of audited entities
	CREATE TABLE IF NOT EXISTS entity_states (
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	);

	-- Finalized invoice items built from an entity's state
	CREATE TABLE IF NOT EXISTS invoice_links (
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		invoice_item_id TEXT NOT NULL,
		finalized_at TEXT NOT NULL,
		PRIMARY KEY (entity_type, entity_id, invoice_item_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// audit.Store
// =============================================================================

// Append writes one audit entry.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, entry)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendEntry(ctx context.Context, db execer, entry audit.Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("audit entry missing id")
	}
	oldJSON, err := json.Marshal(entry.OldValues)
	if err != nil {
		return fmt.Errorf("failed to marshal old values: %w", err)
	}
	newJSON, err := json.Marshal(entry.NewValues)
	if err != nil {
		return fmt.Errorf("failed to marshal new values: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_entries
			(id, entity_type, entity_id, action, old_values, new_values, actor, reason, reverses, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.ID), entry.EntityType, entry.EntityID, entry.Action,
		string(oldJSON), string(newJSON), entry.Actor, entry.Reason,
		string(entry.Reverses), entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id audit.EntryID) (audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_id, action, old_values, new_values, actor, reason, reverses, created_at
		FROM audit_entries WHERE id = ?`, string(id))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Entry{}, audit.ErrEntryNotFound
	}
	return entry, err
}

// ForEntity returns all entries for an entity, oldest first.
func (s *Store) ForEntity(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, old_values, new_values, actor, reason, reverses, created_at
		FROM audit_entries
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, id ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ReversalOf returns the rollback entry reversing the given id, if any.
func (s *Store) ReversalOf(ctx context.Context, id audit.EntryID) (audit.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_id, action, old_values, new_values, actor, reason, reverses, created_at
		FROM audit_entries WHERE reverses = ?`, string(id))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Entry{}, false, nil
	}
	if err != nil {
		return audit.Entry{}, false, err
	}
	return entry, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (audit.Entry, error) {
	var entry audit.Entry
	var id, reverses, oldJSON, newJSON, createdAt string
	if err := row.Scan(&id, &entry.EntityType, &entry.EntityID, &entry.Action,
		&oldJSON, &newJSON, &entry.Actor, &entry.Reason, &reverses, &createdAt); err != nil {
		return audit.Entry{}, err
	}
	entry.ID = audit.EntryID(id)
	entry.Reverses = audit.EntryID(reverses)
	if err := json.Unmarshal([]byte(oldJSON), &entry.OldValues); err != nil {
		return audit.Entry{}, fmt.Errorf("corrupt old values for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(newJSON), &entry.NewValues); err != nil {
		return audit.Entry{}, fmt.Errorf("corrupt new values for %s: %w", id, err)
	}
	at, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("corrupt timestamp for %s: %w", id, err)
	}
	entry.CreatedAt = at
	return entry, nil
}

// =============================================================================
// rollback.EntityStore
// =============================================================================

// CurrentState returns the entity's current field->value state.
func (s *Store) CurrentState(ctx context.Context, entityType, entityID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stateJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM entity_states WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no state for %s/%s", entityType, entityID)
	}
	if err != nil {
		return nil, err
	}

	var state map[string]string
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("corrupt state for %s/%s: %w", entityType, entityID, err)
	}
	return state, nil
}

// RestoreState applies the state and appends the rollback entry in one
// SQL transaction. The reversal check is repeated inside the transaction
// so concurrent rollbacks of the same entry cannot both commit (the
// unique index on reverses backs this up).
func (s *Store) RestoreState(ctx context.Context, entityType, entityID string, state map[string]string, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if entry.Reverses != "" {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM audit_entries WHERE reverses = ?`, string(entry.Reverses)).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%w: entry %s already reversed by %s", rollback.ErrAlreadyRolledBack, entry.Reverses, existing)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entity_states (entity_type, entity_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		entityType, entityID, string(stateJSON), entry.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}

	if err := appendEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// PutState sets an entity's current state. Used when the persistence
// layer hands the engine a fresh entity to track.
func (s *Store) PutState(ctx context.Context, entityType, entityID string, state map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_states (entity_type, entity_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		entityType, entityID, string(stateJSON), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// =============================================================================
// rollback.DependencyChecker
// =============================================================================

// FinalizedDependents lists invoice items finalized at or after the given
// instant that were built from the entity's state.
func (s *Store) FinalizedDependents(ctx context.Context, entityType, entityID string, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_item_id FROM invoice_links
		WHERE entity_type = ? AND entity_id = ? AND finalized_at >= ?
		ORDER BY invoice_item_id ASC`,
		entityType, entityID, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LinkFinalizedInvoice records a finalized invoice item built from the
// entity's state.
func (s *Store) LinkFinalizedInvoice(ctx context.Context, entityType, entityID, invoiceItemID string, finalizedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_links (entity_type, entity_id, invoice_item_id, finalized_at)
		VALUES (?, ?, ?, ?)`,
		entityType, entityID, invoiceItemID, finalizedAt.UTC().Format(time.RFC3339Nano))
	return err
}

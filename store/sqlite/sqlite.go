/*
Package sqlite provides the SQLite-backed contract store.

PURPOSE:
  Persists contract aggregates and their status-change history using
  SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

STORAGE MODEL:
  Contracts are stored as a JSON payload (the full aggregate, encoded
  by the factory codec) plus a handful of extracted columns used for
  filtering: tenant, code, status, is_active. All schedule and billing
  computation happens in the contract package against the decoded
  aggregate; SQL never interprets the payload.

KEY TABLES:
  contracts:      One row per contract, payload JSON + filter columns
  status_changes: Append-only audit of lifecycle transitions

APPEND-ONLY ENFORCEMENT:
  status_changes has no UPDATE or DELETE path. Contracts are never
  hard-deleted: SoftDelete flips is_active, and default listings
  exclude inactive rows.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/contracts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/factory"
)

// ErrNotFound is returned when a contract does not exist or has been
// soft-deleted.
var ErrNotFound = errors.New("contract not found")

// ErrDuplicateCode is returned when a contract code is already taken
// within the tenant.
var ErrDuplicateCode = errors.New("contract code already exists")

// Store persists contracts and their status history in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		status TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_tenant
		ON contracts(tenant_id, is_active);
	CREATE INDEX IF NOT EXISTS idx_contracts_status
		ON contracts(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_contracts_tenant_code
		ON contracts(tenant_id, code);

	-- Append-only lifecycle audit
	CREATE TABLE IF NOT EXISTS status_changes (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		reason TEXT,
		changed_at TEXT NOT NULL,
		FOREIGN KEY (contract_id) REFERENCES contracts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_status_changes_contract
		ON status_changes(contract_id, changed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONTRACT STORE
// =============================================================================

// SaveContract inserts or replaces a contract row. The full aggregate is
// serialized into the payload column; filter columns are extracted from it.
func (s *Store) SaveContract(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := factory.EncodeContract(c)
	if err != nil {
		return fmt.Errorf("failed to encode contract: %w", err)
	}

	query := `
		INSERT INTO contracts (id, tenant_id, code, status, is_active, payload_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			code = excluded.code,
			status = excluded.status,
			is_active = excluded.is_active,
			payload_json = excluded.payload_json,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		c.ID.String(),
		c.TenantID,
		c.Code,
		string(c.Status),
		c.IsActive,
		string(payload),
		c.CreatedAt.UTC().Format(time.RFC3339),
		c.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("code %q for tenant %q: %w", c.Code, c.TenantID, ErrDuplicateCode)
		}
		return fmt.Errorf("failed to save contract: %w", err)
	}

	return nil
}

// GetContract loads a contract by ID. Soft-deleted contracts are treated
// as missing.
func (s *Store) GetContract(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload_json FROM contracts WHERE id = ? AND is_active = TRUE",
		id.String(),
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	return factory.DecodeContract([]byte(payload))
}

// ListContracts returns all contracts for a tenant, newest first.
// Soft-deleted contracts are included only when includeInactive is set.
func (s *Store) ListContracts(ctx context.Context, tenantID string, includeInactive bool) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT payload_json FROM contracts
		WHERE tenant_id = ? AND is_active = TRUE
		ORDER BY created_at DESC, id
	`
	if includeInactive {
		query = `
			SELECT payload_json FROM contracts
			WHERE tenant_id = ?
			ORDER BY created_at DESC, id
		`
	}

	return s.queryContracts(ctx, query, tenantID)
}

// ListByStatus returns active contracts for a tenant in the given status.
func (s *Store) ListByStatus(ctx context.Context, tenantID string, status contract.Status) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT payload_json FROM contracts
		WHERE tenant_id = ? AND status = ? AND is_active = TRUE
		ORDER BY created_at DESC, id
	`

	return s.queryContracts(ctx, query, tenantID, string(status))
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...any) ([]*contract.Contract, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*contract.Contract
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c, err := factory.DecodeContract([]byte(payload))
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// ListTenants returns the tenants that own at least one live contract.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT tenant_id FROM contracts WHERE is_active = TRUE ORDER BY tenant_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SoftDelete marks a contract inactive without removing the row.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE contracts SET is_active = FALSE, updated_at = ? WHERE id = ? AND is_active = TRUE",
		time.Now().UTC().Format(time.RFC3339), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// STATUS CHANGE AUDIT
// =============================================================================

// StatusChange is one entry in a contract's lifecycle audit trail.
type StatusChange struct {
	ID         uuid.UUID
	ContractID uuid.UUID
	From       contract.Status
	To         contract.Status
	Reason     string
	ChangedAt  time.Time
}

// RecordStatusChange appends an audit entry. Entries are never updated
// or deleted.
func (s *Store) RecordStatusChange(ctx context.Context, change StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_changes (id, contract_id, from_status, to_status, reason, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		change.ID.String(),
		change.ContractID.String(),
		string(change.From),
		string(change.To),
		nullString(change.Reason),
		change.ChangedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}
	return nil
}

// ListStatusChanges returns a contract's audit trail, oldest first.
func (s *Store) ListStatusChanges(ctx context.Context, contractID uuid.UUID) ([]StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contract_id, from_status, to_status, reason, changed_at
		 FROM status_changes
		 WHERE contract_id = ?
		 ORDER BY changed_at ASC, id`,
		contractID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query status changes: %w", err)
	}
	defer rows.Close()

	var changes []StatusChange
	for rows.Next() {
		var (
			change            StatusChange
			id, cid, from, to string
			reason            sql.NullString
			changedAt         string
		)
		if err := rows.Scan(&id, &cid, &from, &to, &reason, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		change.ID, _ = uuid.Parse(id)
		change.ContractID, _ = uuid.Parse(cid)
		change.From = contract.Status(from)
		change.To = contract.Status(to)
		change.Reason = reason.String
		change.ChangedAt, _ = time.Parse(time.RFC3339, changedAt)
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"status_changes", "contracts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

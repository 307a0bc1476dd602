//go:build mlsffi_sqlite

// Package storage persists group state in SQLite. The schema keeps one
// snapshot row per group plus a bounded window of epoch records; writes are
// transactional so a snapshot and its epoch rows land together.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/groupwire/mls-ffi-go/pkg/mlsffi/engine"
)

// DefaultEpochRetention is how many trailing epoch records are kept per
// group.
const DefaultEpochRetention = 3

const schema = `
CREATE TABLE IF NOT EXISTS mls_group (
	group_id BLOB PRIMARY KEY,
	snapshot BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS epoch (
	group_id BLOB NOT NULL,
	epoch_id INTEGER NOT NULL,
	epoch_data BLOB NOT NULL,
	PRIMARY KEY (group_id, epoch_id)
) WITHOUT ROWID;
`

// Store implements engine.GroupStateStorage over a SQLite database file.
type Store struct {
	db        *sqlx.DB
	retention uint64
}

// Open opens or creates the database at path. The driver is selected at
// build time; with the encrypted variant the path may carry key parameters
// in its query string.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}
	// SQLite serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	return &Store{db: db, retention: DefaultEpochRetention}, nil
}

// SetEpochRetention overrides the per-group epoch window. Zero keeps every
// epoch.
func (s *Store) SetEpochRetention(n uint64) {
	s.retention = n
}

func (s *Store) State(ctx context.Context, groupID []byte) ([]byte, error) {
	var snapshot []byte
	err := s.db.GetContext(ctx, &snapshot,
		`SELECT snapshot FROM mls_group WHERE group_id = ?`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *Store) EpochData(ctx context.Context, groupID []byte, epochID uint64) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data,
		`SELECT epoch_data FROM epoch WHERE group_id = ? AND epoch_id = ?`, groupID, epochID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read epoch %d: %w", epochID, err)
	}
	return data, nil
}

func (s *Store) MaxEpochID(ctx context.Context, groupID []byte) (uint64, bool, error) {
	var maxID sql.NullInt64
	err := s.db.GetContext(ctx, &maxID,
		`SELECT MAX(epoch_id) FROM epoch WHERE group_id = ?`, groupID)
	if err != nil {
		return 0, false, fmt.Errorf("storage: max epoch: %w", err)
	}
	if !maxID.Valid {
		return 0, false, nil
	}
	return uint64(maxID.Int64), true, nil
}

func (s *Store) WriteState(ctx context.Context, groupID, snapshot []byte, inserts, updates []engine.EpochRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO mls_group (group_id, snapshot) VALUES (?, ?)
		 ON CONFLICT(group_id) DO UPDATE SET snapshot = excluded.snapshot`,
		groupID, snapshot); err != nil {
		return fmt.Errorf("storage: write snapshot: %w", err)
	}

	for _, rec := range inserts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO epoch (group_id, epoch_id, epoch_data) VALUES (?, ?, ?)`,
			groupID, rec.ID, rec.Data); err != nil {
			return fmt.Errorf("storage: insert epoch %d: %w", rec.ID, err)
		}
	}
	for _, rec := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE epoch SET epoch_data = ? WHERE group_id = ? AND epoch_id = ?`,
			rec.Data, groupID, rec.ID); err != nil {
			return fmt.Errorf("storage: update epoch %d: %w", rec.ID, err)
		}
	}

	if s.retention > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM epoch WHERE group_id = ? AND epoch_id <=
			 (SELECT MAX(epoch_id) FROM epoch WHERE group_id = ?) - ?`,
			groupID, groupID, s.retention); err != nil {
			return fmt.Errorf("storage: trim epochs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit write: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

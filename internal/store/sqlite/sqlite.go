// Package sqlite implements the domain store interfaces on a single local
// database file, for deployments that do not run PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/apexarb/arbengine/internal/domain"
)

// Store holds nonce state and the event journal in one SQLite file. A flock
// on a sidecar file guards against two daemons opening the same database;
// the lock is held for the lifetime of the Store.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

var schema = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
	`CREATE TABLE IF NOT EXISTS nonce_counters (
		signer TEXT PRIMARY KEY,
		counter INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS used_nonces (
		signer TEXT NOT NULL,
		nonce INTEGER NOT NULL,
		used_at INTEGER NOT NULL,
		PRIMARY KEY (signer, nonce)
	);`,
	`CREATE TABLE IF NOT EXISTS journal_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		unit_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL,
		occurred_at INTEGER NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0
	);`,
	"CREATE INDEX IF NOT EXISTS idx_journal_unarchived ON journal_events(archived, occurred_at);",
}

// Open opens (creating if needed) the database at path and acquires the
// exclusive process lock. It returns an error when another process already
// holds the lock.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create store directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("sqlite: lock store: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("sqlite: store %s is locked by another process", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("sqlite: init schema: %w", err)
		}
	}

	return &Store{db: db, lock: lock}, nil
}

// Close releases the database and the process lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

func addrKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// ---------------------------------------------------------------------------
// domain.NonceStore
// ---------------------------------------------------------------------------

// Snapshot loads the full persisted nonce state.
func (s *Store) Snapshot(ctx context.Context) (domain.NonceSnapshot, error) {
	snap := domain.NonceSnapshot{
		Counters: make(map[common.Address]uint64),
		Used:     make(map[common.Address][]uint64),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT signer, counter FROM nonce_counters")
	if err != nil {
		return snap, fmt.Errorf("sqlite: load nonce counters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var signer string
		var counter int64
		if err := rows.Scan(&signer, &counter); err != nil {
			return snap, fmt.Errorf("sqlite: scan nonce counter: %w", err)
		}
		snap.Counters[common.HexToAddress(signer)] = uint64(counter)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("sqlite: nonce counter rows: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT signer, nonce FROM used_nonces ORDER BY signer, nonce")
	if err != nil {
		return snap, fmt.Errorf("sqlite: load used nonces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var signer string
		var nonce int64
		if err := rows.Scan(&signer, &nonce); err != nil {
			return snap, fmt.Errorf("sqlite: scan used nonce: %w", err)
		}
		addr := common.HexToAddress(signer)
		snap.Used[addr] = append(snap.Used[addr], uint64(nonce))
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("sqlite: used nonce rows: %w", err)
	}

	return snap, nil
}

// SetCounter persists the counter value for a signer.
func (s *Store) SetCounter(ctx context.Context, signer common.Address, value uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nonce_counters (signer, counter, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(signer) DO UPDATE SET counter = excluded.counter, updated_at = excluded.updated_at`,
		addrKey(signer), int64(value), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: set nonce counter %s: %w", signer, err)
	}
	return nil
}

// MarkUsed records a consumed set-policy nonce. Marking the same nonce twice
// is a no-op.
func (s *Store) MarkUsed(ctx context.Context, signer common.Address, nonce uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO used_nonces (signer, nonce, used_at) VALUES (?, ?, ?)`,
		addrKey(signer), int64(nonce), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: mark nonce used %s/%d: %w", signer, nonce, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// domain.JournalStore
// ---------------------------------------------------------------------------

// Append inserts the given records in one transaction.
func (s *Store) Append(ctx context.Context, recs []domain.JournalRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin journal append: %w", err)
	}
	for _, rec := range recs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO journal_events (unit_id, seq, kind, payload, occurred_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.UnitID.String(), rec.Seq, rec.Kind, rec.Payload, rec.At.UnixNano())
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: append journal: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit journal append: %w", err)
	}
	return nil
}

// ListUnarchived returns up to limit unarchived records with occurred_at at
// or before the cutoff, oldest first.
func (s *Store) ListUnarchived(ctx context.Context, before time.Time, limit int) ([]domain.JournalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unit_id, seq, kind, payload, occurred_at
		FROM journal_events
		WHERE archived = 0 AND occurred_at <= ?
		ORDER BY id
		LIMIT ?`,
		before.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list unarchived journal: %w", err)
	}
	defer rows.Close()

	var recs []domain.JournalRecord
	for rows.Next() {
		var rec domain.JournalRecord
		var unitID string
		var at int64
		if err := rows.Scan(&rec.ID, &unitID, &rec.Seq, &rec.Kind, &rec.Payload, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan journal record: %w", err)
		}
		rec.UnitID, err = uuid.Parse(unitID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse journal unit id: %w", err)
		}
		rec.At = time.Unix(0, at)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: journal rows: %w", err)
	}
	return recs, nil
}

// MarkArchived flags the given record IDs as archived.
func (s *Store) MarkArchived(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin mark archived: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "UPDATE journal_events SET archived = 1 WHERE id = ?", id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: mark journal archived: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit mark archived: %w", err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.NonceStore   = (*Store)(nil)
	_ domain.JournalStore = (*Store)(nil)
)

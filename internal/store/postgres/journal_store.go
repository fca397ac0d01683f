package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apexarb/arbengine/internal/domain"
)

// JournalStore implements domain.JournalStore using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append inserts the given records in one batch. Record IDs are assigned by
// the database and not reported back; readers obtain them via ListUnarchived.
func (s *JournalStore) Append(ctx context.Context, recs []domain.JournalRecord) error {
	if len(recs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO journal_events (unit_id, seq, kind, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(query, rec.UnitID.String(), rec.Seq, rec.Kind, rec.Payload, rec.At)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append journal: %w", err)
		}
	}
	return nil
}

// ListUnarchived returns up to limit unarchived records with occurred_at at or
// before the cutoff, oldest first.
func (s *JournalStore) ListUnarchived(ctx context.Context, before time.Time, limit int) ([]domain.JournalRecord, error) {
	const query = `
		SELECT id, unit_id::text, seq, kind, payload, occurred_at
		FROM journal_events
		WHERE NOT archived AND occurred_at <= $1
		ORDER BY id
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unarchived journal: %w", err)
	}
	defer rows.Close()

	var recs []domain.JournalRecord
	for rows.Next() {
		var rec domain.JournalRecord
		var unitID string
		if err := rows.Scan(&rec.ID, &unitID, &rec.Seq, &rec.Kind, &rec.Payload, &rec.At); err != nil {
			return nil, fmt.Errorf("postgres: scan journal record: %w", err)
		}
		rec.UnitID, err = uuid.Parse(unitID)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse journal unit id: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unarchived journal rows: %w", err)
	}
	return recs, nil
}

// MarkArchived flags the given record IDs as archived.
func (s *JournalStore) MarkArchived(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE journal_events SET archived = TRUE WHERE id = ANY($1)`
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("postgres: mark journal archived: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.JournalStore = (*JournalStore)(nil)

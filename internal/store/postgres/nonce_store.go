package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apexarb/arbengine/internal/domain"
)

// NonceStore implements domain.NonceStore using PostgreSQL. Counters and the
// used-nonce set live in separate tables; both key on the lowercase hex
// signer address.
type NonceStore struct {
	pool *pgxpool.Pool
}

// NewNonceStore creates a NonceStore backed by the given connection pool.
func NewNonceStore(pool *pgxpool.Pool) *NonceStore {
	return &NonceStore{pool: pool}
}

func addrKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// Snapshot loads the full persisted nonce state.
func (s *NonceStore) Snapshot(ctx context.Context) (domain.NonceSnapshot, error) {
	snap := domain.NonceSnapshot{
		Counters: make(map[common.Address]uint64),
		Used:     make(map[common.Address][]uint64),
	}

	rows, err := s.pool.Query(ctx, `SELECT signer, counter FROM nonce_counters`)
	if err != nil {
		return snap, fmt.Errorf("postgres: load nonce counters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var signer string
		var counter int64
		if err := rows.Scan(&signer, &counter); err != nil {
			return snap, fmt.Errorf("postgres: scan nonce counter: %w", err)
		}
		snap.Counters[common.HexToAddress(signer)] = uint64(counter)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("postgres: load nonce counters rows: %w", err)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `SELECT signer, nonce FROM used_nonces ORDER BY signer, nonce`)
	if err != nil {
		return snap, fmt.Errorf("postgres: load used nonces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var signer string
		var nonce int64
		if err := rows.Scan(&signer, &nonce); err != nil {
			return snap, fmt.Errorf("postgres: scan used nonce: %w", err)
		}
		addr := common.HexToAddress(signer)
		snap.Used[addr] = append(snap.Used[addr], uint64(nonce))
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("postgres: load used nonces rows: %w", err)
	}

	return snap, nil
}

// SetCounter persists the counter value for a signer.
func (s *NonceStore) SetCounter(ctx context.Context, signer common.Address, value uint64) error {
	const query = `
		INSERT INTO nonce_counters (signer, counter) VALUES ($1, $2)
		ON CONFLICT (signer) DO UPDATE SET counter = EXCLUDED.counter, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, addrKey(signer), int64(value)); err != nil {
		return fmt.Errorf("postgres: set nonce counter %s: %w", signer, err)
	}
	return nil
}

// MarkUsed records a consumed set-policy nonce. Marking the same nonce twice
// is a no-op.
func (s *NonceStore) MarkUsed(ctx context.Context, signer common.Address, nonce uint64) error {
	const query = `
		INSERT INTO used_nonces (signer, nonce) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, addrKey(signer), int64(nonce)); err != nil {
		return fmt.Errorf("postgres: mark nonce used %s/%d: %w", signer, nonce, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.NonceStore = (*NonceStore)(nil)

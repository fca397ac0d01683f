// Package memory implements the domain store interfaces with process-local
// state. It backs the default configuration and paper mode, where durability
// across restarts is not required.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apexarb/arbengine/internal/domain"
)

// Store keeps nonce state and the journal in memory.
type Store struct {
	mu       sync.Mutex
	counters map[common.Address]uint64
	used     map[common.Address]map[uint64]struct{}
	journal  []domain.JournalRecord
	nextID   int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		counters: make(map[common.Address]uint64),
		used:     make(map[common.Address]map[uint64]struct{}),
		nextID:   1,
	}
}

// Snapshot returns a copy of the current nonce state.
func (s *Store) Snapshot(context.Context) (domain.NonceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.NonceSnapshot{
		Counters: make(map[common.Address]uint64, len(s.counters)),
		Used:     make(map[common.Address][]uint64, len(s.used)),
	}
	for addr, c := range s.counters {
		snap.Counters[addr] = c
	}
	for addr, set := range s.used {
		nonces := make([]uint64, 0, len(set))
		for n := range set {
			nonces = append(nonces, n)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		snap.Used[addr] = nonces
	}
	return snap, nil
}

// SetCounter stores the counter value for a signer.
func (s *Store) SetCounter(_ context.Context, signer common.Address, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[signer] = value
	return nil
}

// MarkUsed records a consumed set-policy nonce.
func (s *Store) MarkUsed(_ context.Context, signer common.Address, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.used[signer]
	if !ok {
		set = make(map[uint64]struct{})
		s.used[signer] = set
	}
	set[nonce] = struct{}{}
	return nil
}

// Append stores the given records, assigning sequential IDs.
func (s *Store) Append(_ context.Context, recs []domain.JournalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		rec.ID = s.nextID
		s.nextID++
		s.journal = append(s.journal, rec)
	}
	return nil
}

// ListUnarchived returns up to limit unarchived records at or before the
// cutoff, oldest first.
func (s *Store) ListUnarchived(_ context.Context, before time.Time, limit int) ([]domain.JournalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.JournalRecord
	for _, rec := range s.journal {
		if rec.Archived || rec.At.After(before) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MarkArchived flags the given record IDs as archived.
func (s *Store) MarkArchived(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		flag[id] = struct{}{}
	}
	for i := range s.journal {
		if _, ok := flag[s.journal[i].ID]; ok {
			s.journal[i].Archived = true
		}
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.NonceStore   = (*Store)(nil)
	_ domain.JournalStore = (*Store)(nil)
)

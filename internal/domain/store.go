package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// NonceSnapshot is the full persisted nonce state, loaded once at startup to
// seed the in-memory registry.
type NonceSnapshot struct {
	Counters map[common.Address]uint64
	Used     map[common.Address][]uint64
}

// NonceStore persists per-signer authorization nonce state across restarts.
// Consumptions are written through after each committed unit.
type NonceStore interface {
	Snapshot(ctx context.Context) (NonceSnapshot, error)
	SetCounter(ctx context.Context, signer common.Address, value uint64) error
	MarkUsed(ctx context.Context, signer common.Address, nonce uint64) error
}

// JournalRecord is one committed event as persisted by a JournalStore.
type JournalRecord struct {
	ID       int64
	UnitID   uuid.UUID
	Seq      int
	Kind     string
	Payload  []byte // JSON-encoded event
	At       time.Time
	Archived bool
}

// JournalStore persists the committed event journal.
type JournalStore interface {
	Append(ctx context.Context, recs []JournalRecord) error
	ListUnarchived(ctx context.Context, before time.Time, limit int) ([]JournalRecord, error)
	MarkArchived(ctx context.Context, ids []int64) error
}

// Locker provides mutual exclusion across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventBus fans committed events out to external observers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads archive objects to object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

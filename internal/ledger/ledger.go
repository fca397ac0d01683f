// Package ledger holds the engine's in-process asset state: balances,
// allowances, and per-signer nonce state. All mutation happens inside an
// execution unit obtained from Begin; a unit stages its writes privately and
// either commits them as one atomic batch or discards them so the outcome is
// indistinguishable from the unit never having run. Units are exclusive: a
// second Begin blocks until the open unit commits or discards, which is the
// serialization point for the whole engine.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
)

type balanceKey struct {
	holder common.Address
	asset  common.Address
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
	asset   common.Address
}

type nonceKey struct {
	signer common.Address
	nonce  uint64
}

// Ledger is the committed state. Base maps are only written by Unit.Commit
// while the unit semaphore is held; mu additionally guards them against
// concurrent read-only access from outside any unit.
type Ledger struct {
	sem chan struct{}

	mu         sync.RWMutex
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	counters   map[common.Address]uint64
	used       map[nonceKey]struct{}

	logger *slog.Logger
}

// New creates an empty ledger.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		sem:        make(chan struct{}, 1),
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		counters:   make(map[common.Address]uint64),
		used:       make(map[nonceKey]struct{}),
		logger:     logger.With(slog.String("component", "ledger")),
	}
}

// Begin opens a new execution unit, blocking until any open unit has closed
// or the context is cancelled.
func (l *Ledger) Begin(ctx context.Context) (*Unit, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("ledger: begin unit: %w", ctx.Err())
	}
	u := newUnit(l)
	l.logger.Debug("unit opened", slog.String("unit_id", u.ID().String()))
	return u, nil
}

// SeedBalance credits a holder outside any unit. Wiring and test fixtures
// only; refuses to run while a unit is open.
func (l *Ledger) SeedBalance(holder, asset common.Address, amount *uint256.Int) error {
	select {
	case l.sem <- struct{}{}:
	default:
		return fmt.Errorf("ledger: seed balance: %w", domain.ErrReentrantCall)
	}
	defer func() { <-l.sem }()

	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{holder: holder, asset: asset}
	cur, ok := l.balances[k]
	if !ok {
		cur = uint256.NewInt(0)
	}
	next, err := domain.AddAmount(cur, amount)
	if err != nil {
		return err
	}
	l.balances[k] = next
	return nil
}

// SeedAllowance sets a standing spending grant outside any unit. Wiring uses
// this for the fallback funder's allowance to the execution account. Refuses
// to run while a unit is open.
func (l *Ledger) SeedAllowance(owner, spender, asset common.Address, amount *uint256.Int) error {
	select {
	case l.sem <- struct{}{}:
	default:
		return fmt.Errorf("ledger: seed allowance: %w", domain.ErrReentrantCall)
	}
	defer func() { <-l.sem }()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner: owner, spender: spender, asset: asset}] = new(uint256.Int).Set(amount)
	return nil
}

// SeedNonces loads a persisted nonce snapshot, replacing any in-memory nonce
// state. Called once at startup before the first unit.
func (l *Ledger) SeedNonces(snap domain.NonceSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = make(map[common.Address]uint64, len(snap.Counters))
	for signer, c := range snap.Counters {
		l.counters[signer] = c
	}
	l.used = make(map[nonceKey]struct{})
	for signer, nonces := range snap.Used {
		for _, n := range nonces {
			l.used[nonceKey{signer: signer, nonce: n}] = struct{}{}
		}
	}
}

// BalanceOf reads a committed balance from outside any unit.
func (l *Ledger) BalanceOf(holder, asset common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.balances[balanceKey{holder: holder, asset: asset}]; ok {
		return new(uint256.Int).Set(v)
	}
	return uint256.NewInt(0)
}

// AllowanceOf reads a committed spending grant from outside any unit.
func (l *Ledger) AllowanceOf(owner, spender, asset common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.allowances[allowanceKey{owner: owner, spender: spender, asset: asset}]; ok {
		return new(uint256.Int).Set(v)
	}
	return uint256.NewInt(0)
}

// UsedNonces returns the committed used-nonce values for a signer, for
// set-based next-nonce scans outside a unit.
func (l *Ledger) UsedNonces(signer common.Address) map[uint64]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[uint64]bool)
	for k := range l.used {
		if k.signer == signer {
			out[k.nonce] = true
		}
	}
	return out
}

// NonceCounter reads a signer's committed counter from outside any unit.
func (l *Ledger) NonceCounter(signer common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counters[signer]
}

// NonceUsed reports whether a signer's nonce is committed as used.
func (l *Ledger) NonceUsed(signer common.Address, nonce uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.used[nonceKey{signer: signer, nonce: nonce}]
	return ok
}

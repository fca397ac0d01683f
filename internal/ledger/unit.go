package ledger

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
)

// Unit is one open execution unit. It overlays staged writes on the ledger's
// committed state: reads see the staged value if one exists, otherwise the
// committed value. Commit publishes all staged writes at once; Discard drops
// them. A unit is single-goroutine and not safe for concurrent use.
type Unit struct {
	id uuid.UUID
	lg *Ledger

	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	counters   map[common.Address]uint64
	used       map[nonceKey]struct{}
	events     []domain.Event

	closed bool
}

func newUnit(lg *Ledger) *Unit {
	return &Unit{
		id:         uuid.New(),
		lg:         lg,
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		counters:   make(map[common.Address]uint64),
		used:       make(map[nonceKey]struct{}),
	}
}

// ID returns the unit's unique identifier.
func (u *Unit) ID() uuid.UUID {
	return u.id
}

func (u *Unit) guard() error {
	if u.closed {
		return domain.ErrUnitClosed
	}
	return nil
}

// --- balances ---

func (u *Unit) readBalance(k balanceKey) *uint256.Int {
	if v, ok := u.balances[k]; ok {
		return new(uint256.Int).Set(v)
	}
	u.lg.mu.RLock()
	defer u.lg.mu.RUnlock()
	if v, ok := u.lg.balances[k]; ok {
		return new(uint256.Int).Set(v)
	}
	return uint256.NewInt(0)
}

// Balance returns the holder's balance of asset as seen inside the unit.
func (u *Unit) Balance(holder, asset common.Address) *uint256.Int {
	return u.readBalance(balanceKey{holder: holder, asset: asset})
}

// Credit adds amount to the holder's balance.
func (u *Unit) Credit(holder, asset common.Address, amount *uint256.Int) error {
	if err := u.guard(); err != nil {
		return err
	}
	k := balanceKey{holder: holder, asset: asset}
	next, err := domain.AddAmount(u.readBalance(k), amount)
	if err != nil {
		return err
	}
	u.balances[k] = next
	return nil
}

// Debit removes amount from the holder's balance, failing with
// ErrInsufficientBalance if the balance cannot cover it.
func (u *Unit) Debit(holder, asset common.Address, amount *uint256.Int) error {
	if err := u.guard(); err != nil {
		return err
	}
	k := balanceKey{holder: holder, asset: asset}
	cur := u.readBalance(k)
	if amount.Gt(cur) {
		return fmt.Errorf("ledger: debit %s of %s from %s, have %s: %w",
			amount, asset.Hex(), holder.Hex(), cur, domain.ErrInsufficientBalance)
	}
	u.balances[k] = new(uint256.Int).Sub(cur, amount)
	return nil
}

// Transfer moves amount from one holder to another.
func (u *Unit) Transfer(from, to, asset common.Address, amount *uint256.Int) error {
	if err := u.Debit(from, asset, amount); err != nil {
		return err
	}
	return u.Credit(to, asset, amount)
}

// Mint credits a holder with newly created balance. Venue seeding and the
// gasless principal intake in tests use this; the engine core never does.
func (u *Unit) Mint(to, asset common.Address, amount *uint256.Int) error {
	return u.Credit(to, asset, amount)
}

// --- allowances ---

func (u *Unit) readAllowance(k allowanceKey) *uint256.Int {
	if v, ok := u.allowances[k]; ok {
		return new(uint256.Int).Set(v)
	}
	u.lg.mu.RLock()
	defer u.lg.mu.RUnlock()
	if v, ok := u.lg.allowances[k]; ok {
		return new(uint256.Int).Set(v)
	}
	return uint256.NewInt(0)
}

// Allowance returns how much of owner's asset the spender may currently pull.
func (u *Unit) Allowance(owner, spender, asset common.Address) *uint256.Int {
	return u.readAllowance(allowanceKey{owner: owner, spender: spender, asset: asset})
}

// Approve sets the spender's allowance over owner's asset to exactly amount.
func (u *Unit) Approve(owner, spender, asset common.Address, amount *uint256.Int) error {
	if err := u.guard(); err != nil {
		return err
	}
	k := allowanceKey{owner: owner, spender: spender, asset: asset}
	u.allowances[k] = new(uint256.Int).Set(amount)
	return nil
}

// TransferFrom moves amount of from's asset to to, spending the allowance
// previously granted by from to spender. The allowance is decremented by the
// amount moved.
func (u *Unit) TransferFrom(spender, from, to, asset common.Address, amount *uint256.Int) error {
	if err := u.guard(); err != nil {
		return err
	}
	k := allowanceKey{owner: from, spender: spender, asset: asset}
	allowed := u.readAllowance(k)
	if amount.Gt(allowed) {
		return fmt.Errorf("ledger: transfer-from %s of %s, allowance %s: %w",
			amount, asset.Hex(), allowed, domain.ErrInsufficientAllowance)
	}
	if err := u.Transfer(from, to, asset, amount); err != nil {
		return err
	}
	u.allowances[k] = new(uint256.Int).Sub(allowed, amount)
	return nil
}

// --- nonces ---

// NonceCounter returns the signer's counter as seen inside the unit. Absent
// signers start at zero (lazy initialization on first use).
func (u *Unit) NonceCounter(signer common.Address) uint64 {
	if v, ok := u.counters[signer]; ok {
		return v
	}
	u.lg.mu.RLock()
	defer u.lg.mu.RUnlock()
	return u.lg.counters[signer]
}

// SetNonceCounter stages the signer's counter value.
func (u *Unit) SetNonceCounter(signer common.Address, value uint64) error {
	if err := u.guard(); err != nil {
		return err
	}
	u.counters[signer] = value
	return nil
}

// NonceUsed reports whether the signer has consumed the given nonce.
func (u *Unit) NonceUsed(signer common.Address, nonce uint64) bool {
	k := nonceKey{signer: signer, nonce: nonce}
	if _, ok := u.used[k]; ok {
		return true
	}
	u.lg.mu.RLock()
	defer u.lg.mu.RUnlock()
	_, ok := u.lg.used[k]
	return ok
}

// MarkNonceUsed stages the nonce as consumed.
func (u *Unit) MarkNonceUsed(signer common.Address, nonce uint64) error {
	if err := u.guard(); err != nil {
		return err
	}
	u.used[nonceKey{signer: signer, nonce: nonce}] = struct{}{}
	return nil
}

// --- events ---

// Emit stages an event. Staged events surface through Events only and reach
// observers after commit; a discarded unit's events are dropped with it.
func (u *Unit) Emit(ev domain.Event) {
	if u.closed {
		return
	}
	u.events = append(u.events, ev)
}

// Events returns the staged events in emission order. Valid after close as
// well, so callers can hand committed events to the journal.
func (u *Unit) Events() []domain.Event {
	out := make([]domain.Event, len(u.events))
	copy(out, u.events)
	return out
}

// --- lifecycle ---

// Commit publishes every staged write to the ledger atomically and closes
// the unit.
func (u *Unit) Commit() error {
	if u.closed {
		return domain.ErrUnitClosed
	}
	u.lg.mu.Lock()
	for k, v := range u.balances {
		u.lg.balances[k] = v
	}
	for k, v := range u.allowances {
		u.lg.allowances[k] = v
	}
	for k, v := range u.counters {
		u.lg.counters[k] = v
	}
	for k := range u.used {
		u.lg.used[k] = struct{}{}
	}
	u.lg.mu.Unlock()

	u.close()
	u.lg.logger.Debug("unit committed",
		slog.String("unit_id", u.id.String()),
		slog.Int("events", len(u.events)),
	)
	return nil
}

// Discard drops every staged write and closes the unit. Safe to defer after
// Begin: discarding an already-closed unit is a no-op.
func (u *Unit) Discard() {
	if u.closed {
		return
	}
	// Drop staged events along with state so a failed unit leaves no trace.
	u.events = nil
	u.close()
	u.lg.logger.Debug("unit discarded", slog.String("unit_id", u.id.String()))
}

func (u *Unit) close() {
	u.closed = true
	<-u.lg.sem
}

package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

// NonceReader reads nonce state. Both an open unit and the ledger itself
// satisfy it, so next-nonce queries work with or without a unit in flight.
type NonceReader interface {
	NonceCounter(signer common.Address) uint64
	NonceUsed(signer common.Address, nonce uint64) bool
}

// NoncePolicy decides which nonce an intent may carry and burns it inside
// the unit. Consume stages the burn; if the unit later discards, the nonce
// becomes valid again, matching the all-or-nothing contract of a failed
// dispatch.
type NoncePolicy interface {
	Name() string

	// Consume validates the nonce for signer and marks it used in the unit.
	// A nonce the policy will not accept fails with ErrNonceRejected.
	Consume(unit *ledger.Unit, signer common.Address, nonce uint64) error

	// Next reports the lowest nonce the policy would currently accept.
	Next(r NonceReader, signer common.Address) uint64

	// Persist records a consumed nonce in the durable store.
	Persist(ctx context.Context, st domain.NonceStore, signer common.Address, nonce uint64) error
}

// CounterPolicy accepts only the signer's current counter value and
// advances it by one. Intents must land in order; a gap or a stale value is
// rejected.
type CounterPolicy struct{}

func (CounterPolicy) Name() string { return "counter" }

func (CounterPolicy) Consume(unit *ledger.Unit, signer common.Address, nonce uint64) error {
	cur := unit.NonceCounter(signer)
	if nonce != cur {
		return fmt.Errorf("gateway: nonce %d for %s, expected %d: %w",
			nonce, signer.Hex(), cur, domain.ErrNonceRejected)
	}
	return unit.SetNonceCounter(signer, cur+1)
}

func (CounterPolicy) Next(r NonceReader, signer common.Address) uint64 {
	return r.NonceCounter(signer)
}

func (CounterPolicy) Persist(ctx context.Context, st domain.NonceStore, signer common.Address, nonce uint64) error {
	return st.SetCounter(ctx, signer, nonce+1)
}

// SetPolicy accepts any nonce the signer has not used before, letting
// independent intents be signed out of order without invalidating each
// other.
type SetPolicy struct{}

func (SetPolicy) Name() string { return "set" }

func (SetPolicy) Consume(unit *ledger.Unit, signer common.Address, nonce uint64) error {
	if unit.NonceUsed(signer, nonce) {
		return fmt.Errorf("gateway: nonce %d for %s already used: %w",
			nonce, signer.Hex(), domain.ErrNonceRejected)
	}
	return unit.MarkNonceUsed(signer, nonce)
}

// Next scans upward from zero for the first unused value, so a signer who
// used {0,1,3} is told 2.
func (SetPolicy) Next(r NonceReader, signer common.Address) uint64 {
	for n := uint64(0); ; n++ {
		if !r.NonceUsed(signer, n) {
			return n
		}
	}
}

func (SetPolicy) Persist(ctx context.Context, st domain.NonceStore, signer common.Address, nonce uint64) error {
	return st.MarkUsed(ctx, signer, nonce)
}

// PolicyByName maps a config value to its policy.
func PolicyByName(name string) (NoncePolicy, error) {
	switch name {
	case "counter", "":
		return CounterPolicy{}, nil
	case "set":
		return SetPolicy{}, nil
	default:
		return nil, fmt.Errorf("gateway: unknown nonce policy %q", name)
	}
}

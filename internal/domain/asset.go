// Package domain defines the core types shared across the engine: asset
// amounts, swap paths, loan requests, authorized intents, execution outcomes,
// and the error taxonomy. It has no dependencies on other internal packages.
package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NativeAsset is the sentinel asset handle denoting the chain-native asset
// (ETH, MATIC, ...) wherever a fungible asset is expected.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// IsNative reports whether the asset handle denotes the chain-native asset.
func IsNative(asset common.Address) bool {
	return asset == NativeAsset
}

// Amounts are non-negative 256-bit integers in the asset's smallest unit.
// All arithmetic goes through the checked helpers below; silent wraparound
// is never acceptable.

// Zero returns a fresh zero amount.
func Zero() *uint256.Int {
	return uint256.NewInt(0)
}

// AddAmount returns a+b, or ErrArithmeticOverflow if the sum exceeds 256 bits.
func AddAmount(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("domain: add %s + %s: %w", a, b, ErrArithmeticOverflow)
	}
	return sum, nil
}

// SubAmount returns a-b. Amounts are unsigned, so b > a is unrepresentable
// and fails with ErrArithmeticOverflow.
func SubAmount(a, b *uint256.Int) (*uint256.Int, error) {
	if b.Gt(a) {
		return nil, fmt.Errorf("domain: sub %s - %s: %w", a, b, ErrArithmeticOverflow)
	}
	return new(uint256.Int).Sub(a, b), nil
}

// PremiumOn returns amount*bps/10000, the lender fee on a borrowed amount.
func PremiumOn(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	p, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(bps))
	if overflow {
		return nil, fmt.Errorf("domain: premium on %s at %d bps: %w", amount, bps, ErrArithmeticOverflow)
	}
	return p.Div(p, uint256.NewInt(10_000)), nil
}

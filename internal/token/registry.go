// Package token carries asset metadata: symbols, decimals, and conversions
// between human-readable and base-unit amounts.
package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/apexarb/arbengine/internal/domain"
)

// Info describes one known asset.
type Info struct {
	Address  common.Address
	Symbol   string
	Decimals int32
}

// Registry maps addresses and symbols to asset metadata.
type Registry struct {
	byAddr   map[common.Address]Info
	bySymbol map[string]Info
}

// NewRegistry builds a registry from the given assets. Symbols are matched
// case-insensitively.
func NewRegistry(infos ...Info) *Registry {
	r := &Registry{
		byAddr:   make(map[common.Address]Info, len(infos)),
		bySymbol: make(map[string]Info, len(infos)),
	}
	for _, in := range infos {
		r.byAddr[in.Address] = in
		r.bySymbol[strings.ToUpper(in.Symbol)] = in
	}
	return r
}

// Polygon returns the registry for the default deployment: the major
// Polygon mainnet assets plus the native token sentinel.
func Polygon() *Registry {
	return NewRegistry(
		Info{Address: domain.NativeAsset, Symbol: "MATIC", Decimals: 18},
		Info{Address: common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"), Symbol: "WMATIC", Decimals: 18},
		Info{Address: common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"), Symbol: "WETH", Decimals: 18},
		Info{Address: common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"), Symbol: "DAI", Decimals: 18},
		Info{Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Symbol: "USDC", Decimals: 6},
		Info{Address: common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"), Symbol: "USDT", Decimals: 6},
		Info{Address: common.HexToAddress("0x1BFD67037B42Cf73acF2047067bd4F2C47D9BfD6"), Symbol: "WBTC", Decimals: 8},
	)
}

// ByAddress looks an asset up by address.
func (r *Registry) ByAddress(addr common.Address) (Info, bool) {
	in, ok := r.byAddr[addr]
	return in, ok
}

// BySymbol looks an asset up by symbol, case-insensitively.
func (r *Registry) BySymbol(symbol string) (Info, bool) {
	in, ok := r.bySymbol[strings.ToUpper(symbol)]
	return in, ok
}

// Symbol returns the asset's symbol, or the shortened address for assets the
// registry does not know.
func (r *Registry) Symbol(addr common.Address) string {
	if in, ok := r.byAddr[addr]; ok {
		return in.Symbol
	}
	hex := addr.Hex()
	return hex[:6] + ".." + hex[len(hex)-4:]
}

// Format renders a base-unit amount as a decimal string in the asset's
// display units. Unknown assets format at zero decimals.
func (r *Registry) Format(addr common.Address, amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	decimals := int32(0)
	if in, ok := r.byAddr[addr]; ok {
		decimals = in.Decimals
	}
	d := decimal.NewFromBigInt(amount.ToBig(), -decimals)
	return d.String()
}

// Parse converts a decimal string in display units to base units, rounding
// toward zero when the string has more precision than the asset carries.
func (r *Registry) Parse(addr common.Address, value string) (*uint256.Int, error) {
	in, ok := r.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("token: unknown asset %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("token: parse %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("token: negative amount %q", value)
	}
	base := d.Shift(in.Decimals).Truncate(0)
	amt, overflow := uint256.FromBig(base.BigInt())
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return amt, nil
}

package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
)

// SettlePolicy selects how the profit guard treats a final balance below the
// repayment obligation.
type SettlePolicy uint8

const (
	// SettleStrict aborts the unit on any shortfall.
	SettleStrict SettlePolicy = iota
	// SettleLenient covers the shortfall from the fallback funder and
	// reports the attempt as failed-with-reason while still settling.
	SettleLenient
)

func (p SettlePolicy) String() string {
	switch p {
	case SettleStrict:
		return "strict"
	case SettleLenient:
		return "lenient"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseSettlePolicy maps the configuration spelling back to its policy value.
func ParseSettlePolicy(s string) (SettlePolicy, error) {
	switch s {
	case "strict":
		return SettleStrict, nil
	case "lenient":
		return SettleLenient, nil
	default:
		return SettleStrict, fmt.Errorf("engine: unknown settle policy %q", s)
	}
}

// TradePlan is the application payload carried through the loan callback as
// opaque bytes: the swap path to run with the borrowed asset, the per-hop
// minimum-output floor (zero accepts any output), the swap deadline, and the
// settlement policy. The lender sees only the encoded form and must pass it
// through unchanged.
type TradePlan struct {
	Path         domain.SwapPath
	PerHopMinOut *uint256.Int
	Deadline     time.Time
	Policy       SettlePolicy
}

var planArgs = abi.Arguments{
	{Name: "path", Type: mustABIType("address[]")},
	{Name: "perHopMinOut", Type: mustABIType("uint256")},
	{Name: "deadline", Type: mustABIType("uint256")},
	{Name: "policy", Type: mustABIType("uint8")},
}

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Encode packs the plan into its opaque wire form.
func (p TradePlan) Encode() ([]byte, error) {
	if err := p.Path.Validate(); err != nil {
		return nil, err
	}
	minOut := p.PerHopMinOut
	if minOut == nil {
		minOut = uint256.NewInt(0)
	}
	packed, err := planArgs.Pack(
		p.Path.Assets(),
		minOut.ToBig(),
		big.NewInt(p.Deadline.Unix()),
		uint8(p.Policy),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: encode plan: %w", err)
	}
	return packed, nil
}

// DecodePlan unpacks plan bytes produced by Encode. Structural path problems
// surface as ErrInvalidPath.
func DecodePlan(data []byte) (TradePlan, error) {
	vals, err := planArgs.Unpack(data)
	if err != nil {
		return TradePlan{}, fmt.Errorf("engine: decode plan: %w", err)
	}
	vertices, ok := vals[0].([]common.Address)
	if !ok {
		return TradePlan{}, fmt.Errorf("engine: decode plan: path has type %T", vals[0])
	}
	path, err := domain.NewPath(vertices...)
	if err != nil {
		return TradePlan{}, err
	}
	minOutBig, ok := vals[1].(*big.Int)
	if !ok {
		return TradePlan{}, fmt.Errorf("engine: decode plan: minOut has type %T", vals[1])
	}
	minOut, overflow := uint256.FromBig(minOutBig)
	if overflow {
		return TradePlan{}, fmt.Errorf("engine: decode plan: minOut: %w", domain.ErrArithmeticOverflow)
	}
	deadlineBig, ok := vals[2].(*big.Int)
	if !ok {
		return TradePlan{}, fmt.Errorf("engine: decode plan: deadline has type %T", vals[2])
	}
	policyByte, ok := vals[3].(uint8)
	if !ok {
		return TradePlan{}, fmt.Errorf("engine: decode plan: policy has type %T", vals[3])
	}
	if policyByte > uint8(SettleLenient) {
		return TradePlan{}, fmt.Errorf("engine: decode plan: unknown settle policy %d", policyByte)
	}
	return TradePlan{
		Path:         path,
		PerHopMinOut: minOut,
		Deadline:     time.Unix(deadlineBig.Int64(), 0).UTC(),
		Policy:       SettlePolicy(policyByte),
	}, nil
}

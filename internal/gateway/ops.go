package gateway

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
)

// Authorized payloads are a one-byte operation tag followed by the ABI
// encoding of that operation's arguments. Selection is by tag against the
// closed set below; there is no open selector dispatch, so a payload can
// never reach code the gateway does not know about.

var (
	swapArgs = abi.Arguments{
		{Name: "path", Type: mustABIType("address[]")},
		{Name: "amountIn", Type: mustABIType("uint256")},
		{Name: "minOut", Type: mustABIType("uint256")},
		{Name: "deadline", Type: mustABIType("uint256")},
	}
	transferArgs = abi.Arguments{
		{Name: "asset", Type: mustABIType("address")},
		{Name: "to", Type: mustABIType("address")},
		{Name: "amount", Type: mustABIType("uint256")},
	}
	withdrawArgs = abi.Arguments{
		{Name: "asset", Type: mustABIType("address")},
		{Name: "amount", Type: mustABIType("uint256")},
		{Name: "all", Type: mustABIType("bool")},
	}
)

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// EncodeOperation packs an operation into its signed payload form.
func EncodeOperation(op domain.Operation) ([]byte, error) {
	switch op.Kind {
	case domain.OpSwap:
		if op.Swap == nil {
			return nil, fmt.Errorf("gateway: swap operation missing body: %w", domain.ErrUnknownOperation)
		}
		if err := op.Swap.Path.Validate(); err != nil {
			return nil, err
		}
		packed, err := swapArgs.Pack(
			op.Swap.Path.Assets(),
			valueOrZero(op.Swap.AmountIn),
			valueOrZero(op.Swap.MinOut),
			big.NewInt(op.Swap.Deadline.Unix()),
		)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode swap: %w", err)
		}
		return append([]byte{byte(domain.OpSwap)}, packed...), nil

	case domain.OpTransfer:
		if op.Transfer == nil {
			return nil, fmt.Errorf("gateway: transfer operation missing body: %w", domain.ErrUnknownOperation)
		}
		packed, err := transferArgs.Pack(
			op.Transfer.Asset,
			op.Transfer.To,
			valueOrZero(op.Transfer.Amount),
		)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode transfer: %w", err)
		}
		return append([]byte{byte(domain.OpTransfer)}, packed...), nil

	case domain.OpWithdraw:
		if op.Withdraw == nil {
			return nil, fmt.Errorf("gateway: withdraw operation missing body: %w", domain.ErrUnknownOperation)
		}
		all := op.Withdraw.Amount == nil
		packed, err := withdrawArgs.Pack(
			op.Withdraw.Asset,
			valueOrZero(op.Withdraw.Amount),
			all,
		)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode withdraw: %w", err)
		}
		return append([]byte{byte(domain.OpWithdraw)}, packed...), nil

	default:
		return nil, fmt.Errorf("gateway: operation kind %d: %w", op.Kind, domain.ErrUnknownOperation)
	}
}

// DecodeOperation unpacks a signed payload into its operation. Payloads with
// an unknown tag or malformed arguments are rejected with ErrUnknownOperation.
func DecodeOperation(payload []byte) (domain.Operation, error) {
	if len(payload) < 1 {
		return domain.Operation{}, fmt.Errorf("gateway: empty payload: %w", domain.ErrUnknownOperation)
	}
	tag, body := domain.OpKind(payload[0]), payload[1:]

	switch tag {
	case domain.OpSwap:
		vals, err := swapArgs.Unpack(body)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("gateway: decode swap: %w", domain.ErrUnknownOperation)
		}
		vertices, ok := vals[0].([]common.Address)
		if !ok {
			return domain.Operation{}, fmt.Errorf("gateway: decode swap path: %w", domain.ErrUnknownOperation)
		}
		path, err := domain.NewPath(vertices...)
		if err != nil {
			return domain.Operation{}, err
		}
		amountIn, err := toAmount(vals[1])
		if err != nil {
			return domain.Operation{}, err
		}
		minOut, err := toAmount(vals[2])
		if err != nil {
			return domain.Operation{}, err
		}
		deadline, ok := vals[3].(*big.Int)
		if !ok {
			return domain.Operation{}, fmt.Errorf("gateway: decode swap deadline: %w", domain.ErrUnknownOperation)
		}
		return domain.Operation{Kind: domain.OpSwap, Swap: &domain.SwapOperation{
			Path:     path,
			AmountIn: amountIn,
			MinOut:   minOut,
			Deadline: time.Unix(deadline.Int64(), 0).UTC(),
		}}, nil

	case domain.OpTransfer:
		vals, err := transferArgs.Unpack(body)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("gateway: decode transfer: %w", domain.ErrUnknownOperation)
		}
		asset, ok1 := vals[0].(common.Address)
		to, ok2 := vals[1].(common.Address)
		if !ok1 || !ok2 {
			return domain.Operation{}, fmt.Errorf("gateway: decode transfer addresses: %w", domain.ErrUnknownOperation)
		}
		amount, err := toAmount(vals[2])
		if err != nil {
			return domain.Operation{}, err
		}
		return domain.Operation{Kind: domain.OpTransfer, Transfer: &domain.TransferOperation{
			Asset:  asset,
			To:     to,
			Amount: amount,
		}}, nil

	case domain.OpWithdraw:
		vals, err := withdrawArgs.Unpack(body)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("gateway: decode withdraw: %w", domain.ErrUnknownOperation)
		}
		asset, ok1 := vals[0].(common.Address)
		all, ok2 := vals[2].(bool)
		if !ok1 || !ok2 {
			return domain.Operation{}, fmt.Errorf("gateway: decode withdraw fields: %w", domain.ErrUnknownOperation)
		}
		w := &domain.WithdrawOperation{Asset: asset}
		if !all {
			amount, err := toAmount(vals[1])
			if err != nil {
				return domain.Operation{}, err
			}
			w.Amount = amount
		}
		return domain.Operation{Kind: domain.OpWithdraw, Withdraw: w}, nil

	default:
		return domain.Operation{}, fmt.Errorf("gateway: payload tag %d: %w", payload[0], domain.ErrUnknownOperation)
	}
}

func valueOrZero(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func toAmount(v any) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("gateway: amount has type %T: %w", v, domain.ErrUnknownOperation)
	}
	amt, overflow := uint256.FromBig(b)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return amt, nil
}

package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// AuthorizedIntent is a signed instruction to execute one operation on behalf
// of Signer, submitted by a party that need not be Signer. The signature
// binds signer, verifying target, payload, and nonce as a single tuple under
// the gateway's signing domain; binding any weaker subset would allow the
// payload to be replayed in another context.
type AuthorizedIntent struct {
	Signer  common.Address
	Target  common.Address
	Payload []byte
	Nonce   uint64
	Sig     []byte // 65 bytes, r||s||v
}

// OpKind tags the closed set of operations an authorized payload may select.
// Payloads never carry open function selectors; anything outside this set is
// rejected before dispatch.
type OpKind uint8

const (
	OpSwap OpKind = iota + 1
	OpTransfer
	OpWithdraw
)

func (k OpKind) String() string {
	switch k {
	case OpSwap:
		return "swap"
	case OpTransfer:
		return "transfer"
	case OpWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// SwapOperation runs a swap path funded by the signer's own principal. The
// principal moves into engine custody for the duration of the chain and the
// output returns to the signer in the same unit.
type SwapOperation struct {
	Path     SwapPath
	AmountIn *uint256.Int
	MinOut   *uint256.Int // zero accepts any output
	Deadline time.Time
}

// TransferOperation moves part of the signer's balance to a recipient.
type TransferOperation struct {
	Asset  common.Address
	To     common.Address
	Amount *uint256.Int
}

// WithdrawOperation returns the signer's custody balance to the signer. A
// nil Amount withdraws the full balance.
type WithdrawOperation struct {
	Asset  common.Address
	Amount *uint256.Int
}

// Operation is the decoded form of an authorized payload: the kind tag plus
// exactly one populated variant.
type Operation struct {
	Kind     OpKind
	Swap     *SwapOperation
	Transfer *TransferOperation
	Withdraw *WithdrawOperation
}

// DispatchReceipt summarizes one dispatched authorized intent.
type DispatchReceipt struct {
	UnitID    uuid.UUID
	Signer    common.Address
	Operation OpKind
	Nonce     uint64
	Output    *uint256.Int // swap or withdraw output, nil for transfers
	Digest    string       // hex keccak hash of the dispatched payload
}

package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// HopRecord reports one executed hop of a swap chain.
type HopRecord struct {
	From      common.Address
	To        common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// WithdrawSpec describes one owner withdrawal from engine custody. Asset set
// to NativeAsset withdraws the chain-native balance.
type WithdrawSpec struct {
	Asset  common.Address
	Amount *uint256.Int // ignored when All
	All    bool
}

// ExecutionOutcome is the write-once result of one loan attempt. Exactly one
// of Profit and Deficit is meaningful: Profit when the attempt cleared its
// obligation, Deficit when the lenient policy covered a shortfall from the
// fallback funder.
type ExecutionOutcome struct {
	UnitID    uuid.UUID
	Asset     common.Address
	Borrowed  *uint256.Int
	Profit    *uint256.Int
	Deficit   *uint256.Int
	Succeeded bool
	Reason    string // populated when Succeeded is false
	Hops      []HopRecord
	At        time.Time
}

// Package engine implements the atomic borrow-swap-repay pipeline: the loan
// coordinator, the swap-path executor, and the profit guard, plus the runner
// that serializes submitted work. External liquidity is consumed through the
// LendingVenue and SwapRouter interfaces; the engine never implements a pool
// or router itself.
package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

// LoanGrant is what the lending capability delivers to the single loan
// callback: the per-asset amounts actually sourced, the premiums owed on
// them, the identity that initiated the loan, and the opaque plan bytes
// passed through unchanged. Lender carries the capability token the venue
// was issued at wiring time; the callback refuses grants presented without
// it.
type LoanGrant struct {
	Assets    []common.Address
	Amounts   []*uint256.Int
	Premiums  []*uint256.Int
	Initiator common.Address
	Params    []byte
	Lender    domain.Capability
}

// LoanHandler receives the loan callback. RequestLoan must invoke it exactly
// once, synchronously, after crediting the borrower.
type LoanHandler interface {
	OnLoan(ctx context.Context, unit *ledger.Unit, grant LoanGrant) error
}

// LendingVenue sources flash liquidity. RequestLoan credits the borrower
// with every requested amount, invokes the handler exactly once, and then
// pulls amount+premium per asset through the allowance the handler granted.
// If the venue cannot source the requested liquidity the call fails without
// invoking the handler.
type LendingVenue interface {
	RequestLoan(ctx context.Context, unit *ledger.Unit, req domain.LoanRequest, borrower common.Address, params []byte, handler LoanHandler) error

	// Account is the identity that holds the venue's reserves and pulls
	// repayment.
	Account() common.Address
}

// SwapRouter executes exact-input swaps against external liquidity. The
// returned slice reports the amount at every path vertex, input first, so
// the final element is the output credited to recipient. A zero minOut
// accepts any output.
type SwapRouter interface {
	SwapExactInput(ctx context.Context, unit *ledger.Unit, amountIn, minOut *uint256.Int, path []common.Address, recipient common.Address, deadline time.Time) ([]*uint256.Int, error)

	// Account is the identity the router pulls swap inputs from, meaning
	// approvals must name it as spender.
	Account() common.Address
}

package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DebtMode describes how a borrowed asset is settled at unit end. The engine
// only ever uses DebtModeNone: the full amount plus premium is repaid within
// the unit, never converted to ongoing debt.
type DebtMode uint8

const (
	DebtModeNone DebtMode = 0
)

// LoanLeg is one borrowed asset within a LoanRequest.
type LoanLeg struct {
	Asset  common.Address
	Amount *uint256.Int
	Mode   DebtMode
}

// LoanRequest describes the liquidity to borrow for one execution unit. It is
// built at call time, consumed by the single loan callback, and never stored.
type LoanRequest struct {
	Legs []LoanLeg
}

// NewLoanRequest builds a single-asset request with DebtModeNone.
func NewLoanRequest(asset common.Address, amount *uint256.Int) LoanRequest {
	return LoanRequest{Legs: []LoanLeg{{Asset: asset, Amount: amount, Mode: DebtModeNone}}}
}

// Validate rejects empty requests, zero amounts, duplicate assets, and any
// debt mode other than full in-unit settlement.
func (r LoanRequest) Validate() error {
	if len(r.Legs) == 0 {
		return fmt.Errorf("domain: loan request has no legs: %w", ErrInvalidLoanRequest)
	}
	seen := make(map[common.Address]bool, len(r.Legs))
	for i, leg := range r.Legs {
		if leg.Amount == nil || leg.Amount.IsZero() {
			return fmt.Errorf("domain: loan leg %d has zero amount: %w", i, ErrInvalidLoanRequest)
		}
		if leg.Mode != DebtModeNone {
			return fmt.Errorf("domain: loan leg %d mode %d, only full settlement supported: %w", i, leg.Mode, ErrInvalidLoanRequest)
		}
		if seen[leg.Asset] {
			return fmt.Errorf("domain: loan leg %d duplicates asset %s: %w", i, leg.Asset.Hex(), ErrInvalidLoanRequest)
		}
		seen[leg.Asset] = true
	}
	return nil
}

// RepaymentObligation is what one loan leg costs to settle: the borrowed
// principal plus the lender's premium. Computed by the lending capability and
// immutable once received by the callback.
type RepaymentObligation struct {
	Asset    common.Address
	Borrowed *uint256.Int
	Premium  *uint256.Int
}

// Total returns borrowed+premium with overflow checking.
func (o RepaymentObligation) Total() (*uint256.Int, error) {
	return AddAmount(o.Borrowed, o.Premium)
}

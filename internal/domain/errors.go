package domain

import "errors"

// Execution taxonomy. Every one of these aborts the enclosing unit
// atomically; the lenient profit policy's fallback pull is the only local
// recovery, and an unfundable fallback escalates to
// ErrFallbackFundingInsufficient.
var (
	ErrInvalidPath                 = errors.New("invalid swap path")
	ErrUnauthorizedCaller          = errors.New("unauthorized caller")
	ErrInvalidSignature            = errors.New("invalid signature")
	ErrNonceRejected               = errors.New("nonce rejected")
	ErrInsufficientOutput          = errors.New("insufficient swap output")
	ErrInsufficientRepayment       = errors.New("insufficient repayment balance")
	ErrArithmeticOverflow          = errors.New("amount arithmetic overflow")
	ErrFallbackFundingInsufficient = errors.New("fallback funding insufficient")
)

// Ledger and venue conditions.
var (
	ErrInvalidLoanRequest    = errors.New("invalid loan request")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientLiquidity = errors.New("insufficient lender liquidity")
	ErrDeadlineExpired       = errors.New("deadline expired")
	ErrReentrantCall         = errors.New("reentrant call")
	ErrUnitClosed            = errors.New("execution unit closed")
	ErrUnknownOperation      = errors.New("unknown operation")
)

// Infrastructure.
var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
	ErrDuplicate   = errors.New("duplicate submission")
)

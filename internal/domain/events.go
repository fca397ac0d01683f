package domain

import "github.com/ethereum/go-ethereum/common"

// Event kinds as persisted in the journal and published on the event bus.
const (
	EventLoanExecuted          = "loan_executed"
	EventArbitrageFailed       = "arbitrage_failed"
	EventHopSwapped            = "hop_swapped"
	EventAuthorizationExecuted = "authorization_executed"
	EventWithdrawal            = "withdrawal"
)

// Event is an auditable record emitted inside an execution unit. Events are
// staged by the unit and become visible to observers only after the unit
// commits; a discarded unit leaves no events behind.
type Event interface {
	EventKind() string
}

// LoanExecutedEvent records a loan attempt that cleared its obligation.
// Amounts are decimal strings in the asset's smallest unit.
type LoanExecutedEvent struct {
	Asset  common.Address `json:"asset"`
	Amount string         `json:"amount"`
	Profit string         `json:"profit"`
}

func (LoanExecutedEvent) EventKind() string { return EventLoanExecuted }

// ArbitrageFailedEvent records an attempt whose final balance fell short of
// the obligation and was settled from the fallback funder.
type ArbitrageFailedEvent struct {
	Asset  common.Address `json:"asset"`
	Amount string         `json:"amount"`
	Reason string         `json:"reason"`
}

func (ArbitrageFailedEvent) EventKind() string { return EventArbitrageFailed }

// HopSwappedEvent records one executed swap hop.
type HopSwappedEvent struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	AmountIn  string         `json:"amount_in"`
	AmountOut string         `json:"amount_out"`
}

func (HopSwappedEvent) EventKind() string { return EventHopSwapped }

// AuthorizationExecutedEvent records a dispatched authorized intent. Digest
// is the hex keccak hash of the dispatched payload.
type AuthorizationExecutedEvent struct {
	Signer    common.Address `json:"signer"`
	Submitter string         `json:"submitter"`
	Operation string         `json:"operation"`
	Nonce     uint64         `json:"nonce"`
	Digest    string         `json:"digest"`
}

func (AuthorizationExecutedEvent) EventKind() string { return EventAuthorizationExecuted }

// WithdrawalEvent records funds leaving engine custody.
type WithdrawalEvent struct {
	Asset  common.Address `json:"asset"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

func (WithdrawalEvent) EventKind() string { return EventWithdrawal }

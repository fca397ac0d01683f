package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

// Recorder receives the events of a committed unit. Implemented by the
// journal; recording is post-commit and best-effort.
type Recorder interface {
	Record(ctx context.Context, unitID uuid.UUID, events []domain.Event)
}

// CoordinatorConfig carries the identities and capability tokens the
// coordinator checks callers against.
type CoordinatorConfig struct {
	// Account is the execution identity that holds borrowed funds, runs
	// swaps, and settles obligations.
	Account common.Address

	// InitiatorCap must be presented by callers of Initiate.
	InitiatorCap domain.Capability

	// LenderCap must be presented by the lending venue inside the loan
	// grant; a callback without it is treated as an unauthorized caller.
	LenderCap domain.Capability
}

// Coordinator owns the borrow-swap-repay unit. Initiate opens a unit,
// requests the loan, and lets the venue's synchronous callback drive the
// swap chain and settlement; the unit commits only if the whole pipeline
// succeeded, so a failed attempt leaves balances, allowances, nonces, and
// events exactly as they were.
type Coordinator struct {
	cfg     CoordinatorConfig
	ledger  *ledger.Ledger
	venue   LendingVenue
	exec    *PathExecutor
	guard   *ProfitGuard
	journal Recorder
	logger  *slog.Logger
}

// NewCoordinator wires a coordinator. journal may be nil in tests.
func NewCoordinator(cfg CoordinatorConfig, lg *ledger.Ledger, venue LendingVenue, exec *PathExecutor, guard *ProfitGuard, journal Recorder, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		ledger:  lg,
		venue:   venue,
		exec:    exec,
		guard:   guard,
		journal: journal,
		logger:  logger.With(slog.String("component", "coordinator")),
	}
}

// Account returns the coordinator's execution identity.
func (c *Coordinator) Account() common.Address {
	return c.cfg.Account
}

// Initiate runs one loan attempt. The caller must present the initiator
// capability. The plan's path must be closed and start at the first
// borrowed asset, since the loan must come back as the asset it left as.
func (c *Coordinator) Initiate(ctx context.Context, cap domain.Capability, req domain.LoanRequest, plan TradePlan) (domain.ExecutionOutcome, error) {
	if !c.cfg.InitiatorCap.Matches(cap) {
		return domain.ExecutionOutcome{}, fmt.Errorf("engine: initiate: %w", domain.ErrUnauthorizedCaller)
	}
	if err := req.Validate(); err != nil {
		return domain.ExecutionOutcome{}, err
	}
	if err := plan.Path.RequireClosed(); err != nil {
		return domain.ExecutionOutcome{}, err
	}
	if plan.Path.Input() != req.Legs[0].Asset {
		return domain.ExecutionOutcome{}, fmt.Errorf("engine: path starts at %s, borrowing %s: %w",
			plan.Path.Input().Hex(), req.Legs[0].Asset.Hex(), domain.ErrInvalidPath)
	}
	params, err := plan.Encode()
	if err != nil {
		return domain.ExecutionOutcome{}, err
	}

	unit, err := c.ledger.Begin(ctx)
	if err != nil {
		return domain.ExecutionOutcome{}, err
	}
	defer unit.Discard()

	attempt := &loanAttempt{coord: c}
	if err := c.venue.RequestLoan(ctx, unit, req, c.cfg.Account, params, attempt); err != nil {
		outcome := domain.ExecutionOutcome{
			UnitID:    unit.ID(),
			Asset:     req.Legs[0].Asset,
			Borrowed:  req.Legs[0].Amount,
			Succeeded: false,
			Reason:    err.Error(),
			At:        time.Now().UTC(),
		}
		c.logger.Warn("attempt aborted",
			slog.String("unit_id", unit.ID().String()),
			slog.String("path", plan.Path.String()),
			slog.String("error", err.Error()),
		)
		return outcome, err
	}

	if err := unit.Commit(); err != nil {
		return domain.ExecutionOutcome{}, err
	}
	if c.journal != nil {
		c.journal.Record(ctx, unit.ID(), unit.Events())
	}

	outcome := attempt.outcome
	outcome.UnitID = unit.ID()
	outcome.At = time.Now().UTC()
	c.logger.Info("attempt committed",
		slog.String("unit_id", unit.ID().String()),
		slog.String("path", plan.Path.String()),
		slog.Bool("succeeded", outcome.Succeeded),
	)
	return outcome, nil
}

// loanAttempt is the per-attempt loan callback target. It exists so a
// malicious or buggy venue invoking the callback twice is caught by the
// entered flag rather than silently re-running the chain.
type loanAttempt struct {
	coord   *Coordinator
	entered bool
	outcome domain.ExecutionOutcome
}

// OnLoan is the single synchronous loan callback. Validation order matters:
// the lender capability is checked before the plan is even decoded, so an
// unauthorized caller learns nothing about payload handling.
func (a *loanAttempt) OnLoan(ctx context.Context, unit *ledger.Unit, grant LoanGrant) error {
	c := a.coord
	if a.entered {
		return fmt.Errorf("engine: loan callback entered twice: %w", domain.ErrReentrantCall)
	}
	a.entered = true

	if !c.cfg.LenderCap.Matches(grant.Lender) {
		return fmt.Errorf("engine: loan callback: %w", domain.ErrUnauthorizedCaller)
	}
	if grant.Initiator != c.cfg.Account {
		return fmt.Errorf("engine: loan initiated by %s, not this engine: %w",
			grant.Initiator.Hex(), domain.ErrUnauthorizedCaller)
	}
	if len(grant.Assets) == 0 || len(grant.Assets) != len(grant.Amounts) || len(grant.Assets) != len(grant.Premiums) {
		return fmt.Errorf("engine: malformed loan grant: %d assets, %d amounts, %d premiums",
			len(grant.Assets), len(grant.Amounts), len(grant.Premiums))
	}

	plan, err := DecodePlan(grant.Params)
	if err != nil {
		return err
	}

	_, hops, err := c.exec.Run(ctx, unit, plan.Path, grant.Amounts[0], plan.PerHopMinOut, plan.Deadline)
	if err != nil {
		return err
	}

	// Settle every borrowed leg. The plan's path trades the first leg; any
	// further legs must clear their obligations from balances already held.
	var first Settlement
	for i := range grant.Assets {
		ob := domain.RepaymentObligation{
			Asset:    grant.Assets[i],
			Borrowed: grant.Amounts[i],
			Premium:  grant.Premiums[i],
		}
		st, err := c.guard.Settle(unit, c.venue.Account(), ob, plan.Policy)
		if err != nil {
			return err
		}
		if i == 0 {
			first = st
		}
	}

	a.outcome = domain.ExecutionOutcome{
		Asset:     grant.Assets[0],
		Borrowed:  grant.Amounts[0],
		Profit:    first.Profit,
		Deficit:   first.Deficit,
		Succeeded: !first.FellBack,
		Reason:    first.Reason,
		Hops:      hops,
	}
	return nil
}

// Package custody manages funds held by the engine: the operator's
// withdrawal rights over the execution account, and the principal signers
// hand over for the duration of an authorized operation. Every movement
// happens inside a unit, so a failed operation leaves principal exactly
// where it started.
package custody

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/ledger"
)

// Recorder receives a committed unit's events.
type Recorder interface {
	Record(ctx context.Context, unitID uuid.UUID, events []domain.Event)
}

// Config fixes the custodian's accounts and the owner capability.
type Config struct {
	// Account is the execution account all engine funds sit under.
	Account common.Address

	// Owner is where owner withdrawals are paid out.
	Owner common.Address

	// OwnerCap must be presented on every owner-restricted call.
	OwnerCap domain.Capability
}

// Custodian owns movements in and out of the execution account.
type Custodian struct {
	cfg    Config
	ledger *ledger.Ledger
	exec   *engine.PathExecutor
	jrnl   Recorder
	logger *slog.Logger
}

// New creates a Custodian. journal may be nil.
func New(cfg Config, lg *ledger.Ledger, exec *engine.PathExecutor, journal Recorder, logger *slog.Logger) *Custodian {
	return &Custodian{
		cfg:    cfg,
		ledger: lg,
		exec:   exec,
		jrnl:   journal,
		logger: logger.With(slog.String("component", "custody")),
	}
}

// Account returns the execution account address.
func (c *Custodian) Account() common.Address {
	return c.cfg.Account
}

// OwnerWithdraw pays part or all of the execution account's balance in one
// asset out to the owner. The native balance moves the same way as any
// token, keyed by the native sentinel address. Returns the amount paid.
func (c *Custodian) OwnerWithdraw(ctx context.Context, cap domain.Capability, spec domain.WithdrawSpec) (*uint256.Int, error) {
	if !c.cfg.OwnerCap.Matches(cap) {
		return nil, fmt.Errorf("custody: owner withdraw: %w", domain.ErrUnauthorizedCaller)
	}

	unit, err := c.ledger.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer unit.Discard()

	amount := spec.Amount
	if spec.All {
		amount = unit.Balance(c.cfg.Account, spec.Asset)
	}
	if amount == nil || amount.IsZero() {
		return uint256.NewInt(0), nil
	}

	if err := unit.Transfer(c.cfg.Account, c.cfg.Owner, spec.Asset, amount); err != nil {
		return nil, fmt.Errorf("custody: owner withdraw %s: %w", spec.Asset.Hex(), err)
	}
	unit.Emit(domain.WithdrawalEvent{
		Asset:  spec.Asset,
		To:     c.cfg.Owner,
		Amount: amount.String(),
	})

	if err := unit.Commit(); err != nil {
		return nil, err
	}
	if c.jrnl != nil {
		c.jrnl.Record(ctx, unit.ID(), unit.Events())
	}
	c.logger.Info("owner withdrawal",
		slog.String("asset", spec.Asset.Hex()),
		slog.String("amount", amount.String()),
		slog.Bool("all", spec.All),
	)
	return new(uint256.Int).Set(amount), nil
}

// UserSwap runs a swap chain funded by the signer's principal. The input
// moves into the execution account, the chain runs hop by hop, and the
// final output goes back to the signer in the same unit. The minimum-output
// floor applies to the end of the chain, not to individual hops.
func (c *Custodian) UserSwap(ctx context.Context, unit *ledger.Unit, signer common.Address, op *domain.SwapOperation) (*uint256.Int, error) {
	if !op.Deadline.IsZero() && time.Now().After(op.Deadline) {
		return nil, fmt.Errorf("custody: swap deadline %s: %w",
			op.Deadline.Format(time.RFC3339), domain.ErrDeadlineExpired)
	}
	if err := unit.Transfer(signer, c.cfg.Account, op.Path.Input(), op.AmountIn); err != nil {
		return nil, fmt.Errorf("custody: take principal: %w", err)
	}

	final, _, err := c.exec.Run(ctx, unit, op.Path, op.AmountIn, nil, op.Deadline)
	if err != nil {
		return nil, err
	}
	if op.MinOut != nil && !op.MinOut.IsZero() && final.Lt(op.MinOut) {
		return nil, fmt.Errorf("custody: swap output %s below floor %s: %w",
			final, op.MinOut, domain.ErrInsufficientOutput)
	}

	if err := unit.Transfer(c.cfg.Account, signer, op.Path.Output(), final); err != nil {
		return nil, fmt.Errorf("custody: return output: %w", err)
	}
	return final, nil
}

// UserTransfer moves part of the signer's balance to another holder.
func (c *Custodian) UserTransfer(ctx context.Context, unit *ledger.Unit, signer common.Address, op *domain.TransferOperation) error {
	if op.Amount == nil || op.Amount.IsZero() {
		return nil
	}
	if err := unit.Transfer(signer, op.To, op.Asset, op.Amount); err != nil {
		return fmt.Errorf("custody: transfer to %s: %w", op.To.Hex(), err)
	}
	return nil
}

// UserWithdraw removes the signer's balance from engine custody. A nil
// amount takes everything. Returns the amount withdrawn.
func (c *Custodian) UserWithdraw(ctx context.Context, unit *ledger.Unit, signer common.Address, op *domain.WithdrawOperation) (*uint256.Int, error) {
	amount := op.Amount
	if amount == nil {
		amount = unit.Balance(signer, op.Asset)
	}
	if amount.IsZero() {
		return uint256.NewInt(0), nil
	}
	if err := unit.Debit(signer, op.Asset, amount); err != nil {
		return nil, fmt.Errorf("custody: withdraw %s: %w", op.Asset.Hex(), err)
	}
	unit.Emit(domain.WithdrawalEvent{
		Asset:  op.Asset,
		To:     signer,
		Amount: amount.String(),
	})
	return new(uint256.Int).Set(amount), nil
}

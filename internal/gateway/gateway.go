package gateway

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

// Dispatcher executes a decoded operation against custody balances inside
// the gateway's unit. Implemented by the custodian.
type Dispatcher interface {
	UserSwap(ctx context.Context, unit *ledger.Unit, signer common.Address, op *domain.SwapOperation) (*uint256.Int, error)
	UserTransfer(ctx context.Context, unit *ledger.Unit, signer common.Address, op *domain.TransferOperation) error
	UserWithdraw(ctx context.Context, unit *ledger.Unit, signer common.Address, op *domain.WithdrawOperation) (*uint256.Int, error)
}

// Recorder receives a committed unit's events.
type Recorder interface {
	Record(ctx context.Context, unitID uuid.UUID, events []domain.Event)
}

// Config fixes the gateway's verification parameters.
type Config struct {
	// Signing is the EIP-712 domain intents must be signed under.
	Signing SigningDomain

	// Target is the verifying identity this gateway executes for. Intents
	// addressed elsewhere are rejected outright.
	Target common.Address

	// Policy picks how nonces are validated and consumed.
	Policy NoncePolicy
}

// Gateway verifies signed intents and dispatches them. Every accepted
// intent runs in its own unit: the nonce burn, the operation's writes and
// its events commit together or not at all. The nonce is consumed before
// the operation runs, so anything the dispatch reaches sees it spent.
type Gateway struct {
	cfg    Config
	ledger *ledger.Ledger
	disp   Dispatcher
	nonces domain.NonceStore // optional write-through persistence
	jrnl   Recorder          // optional
	logger *slog.Logger
}

// New creates a Gateway. nonces and journal may be nil.
func New(cfg Config, lg *ledger.Ledger, disp Dispatcher, nonces domain.NonceStore, journal Recorder, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		ledger: lg,
		disp:   disp,
		nonces: nonces,
		jrnl:   journal,
		logger: logger.With(slog.String("component", "gateway")),
	}
}

// NextNonce reports the lowest nonce the gateway would accept from signer.
func (g *Gateway) NextNonce(signer common.Address) uint64 {
	return g.cfg.Policy.Next(g.ledger, signer)
}

// PolicyName reports the active nonce policy.
func (g *Gateway) PolicyName() string {
	return g.cfg.Policy.Name()
}

// Authorize verifies an intent and executes its operation on behalf of the
// signer. Rejections happen in a fixed order: target, signature, payload
// shape, then nonce; a replayed intent therefore fails on its nonce, not its
// signature. submitter identifies the relaying party for the audit trail
// only and confers no authority.
func (g *Gateway) Authorize(ctx context.Context, intent domain.AuthorizedIntent, submitter string) (domain.DispatchReceipt, error) {
	if intent.Target != g.cfg.Target {
		return domain.DispatchReceipt{}, fmt.Errorf("gateway: intent targets %s, this gateway verifies %s: %w",
			intent.Target.Hex(), g.cfg.Target.Hex(), domain.ErrInvalidSignature)
	}

	recovered, err := RecoverIntentSigner(g.cfg.Signing, intent)
	if err != nil {
		return domain.DispatchReceipt{}, err
	}
	if recovered != intent.Signer {
		return domain.DispatchReceipt{}, fmt.Errorf("gateway: signature recovers %s, intent claims %s: %w",
			recovered.Hex(), intent.Signer.Hex(), domain.ErrInvalidSignature)
	}

	op, err := DecodeOperation(intent.Payload)
	if err != nil {
		return domain.DispatchReceipt{}, err
	}

	unit, err := g.ledger.Begin(ctx)
	if err != nil {
		return domain.DispatchReceipt{}, err
	}
	defer unit.Discard()

	// Burn the nonce first. If the dispatch below re-enters with the same
	// intent it finds the nonce spent; if the dispatch fails the discard
	// restores it, and the intent may be resubmitted.
	if err := g.cfg.Policy.Consume(unit, intent.Signer, intent.Nonce); err != nil {
		return domain.DispatchReceipt{}, err
	}

	output, err := g.dispatch(ctx, unit, intent.Signer, op)
	if err != nil {
		g.logger.Warn("dispatch failed",
			slog.String("signer", intent.Signer.Hex()),
			slog.String("operation", op.Kind.String()),
			slog.Uint64("nonce", intent.Nonce),
			slog.String("error", err.Error()),
		)
		return domain.DispatchReceipt{}, err
	}

	digest := hex.EncodeToString(IntentDigest(g.cfg.Signing, intent))
	unit.Emit(domain.AuthorizationExecutedEvent{
		Signer:    intent.Signer,
		Submitter: submitter,
		Operation: op.Kind.String(),
		Nonce:     intent.Nonce,
		Digest:    digest,
	})

	// Persist the burned nonce before publishing the unit. Failing here
	// leaves nothing changed; crashing between the two steps burns the
	// nonce durably without executing, which is the safe side.
	if g.nonces != nil {
		if err := g.cfg.Policy.Persist(ctx, g.nonces, intent.Signer, intent.Nonce); err != nil {
			return domain.DispatchReceipt{}, fmt.Errorf("gateway: persist nonce: %w", err)
		}
	}
	if err := unit.Commit(); err != nil {
		return domain.DispatchReceipt{}, err
	}
	if g.jrnl != nil {
		g.jrnl.Record(ctx, unit.ID(), unit.Events())
	}

	g.logger.Info("intent executed",
		slog.String("signer", intent.Signer.Hex()),
		slog.String("submitter", submitter),
		slog.String("operation", op.Kind.String()),
		slog.Uint64("nonce", intent.Nonce),
	)
	return domain.DispatchReceipt{
		UnitID:    unit.ID(),
		Signer:    intent.Signer,
		Operation: op.Kind,
		Nonce:     intent.Nonce,
		Output:    output,
		Digest:    digest,
	}, nil
}

// dispatch routes the operation to its handler. The kind set is closed; the
// default arm is unreachable for payloads DecodeOperation accepted.
func (g *Gateway) dispatch(ctx context.Context, unit *ledger.Unit, signer common.Address, op domain.Operation) (*uint256.Int, error) {
	switch op.Kind {
	case domain.OpSwap:
		return g.disp.UserSwap(ctx, unit, signer, op.Swap)
	case domain.OpTransfer:
		return nil, g.disp.UserTransfer(ctx, unit, signer, op.Transfer)
	case domain.OpWithdraw:
		return g.disp.UserWithdraw(ctx, unit, signer, op.Withdraw)
	default:
		return nil, fmt.Errorf("gateway: dispatch kind %d: %w", op.Kind, domain.ErrUnknownOperation)
	}
}

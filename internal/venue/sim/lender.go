package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/ledger"
)

// DefaultPremiumBps is the flash premium charged on each borrowed amount,
// 9 basis points.
const DefaultPremiumBps = 9

// LenderConfig tunes the simulated flash lender.
type LenderConfig struct {
	Account    common.Address
	PremiumBps uint64 // 0 means DefaultPremiumBps
}

// Lender sources flash loans from its ledger balance. It credits the
// borrower, invokes the callback exactly once with its badge, and pulls
// amount plus premium back through the allowance the callback granted.
type Lender struct {
	cfg    LenderConfig
	badge  domain.Capability
	logger *slog.Logger
}

// NewLender creates a Lender presenting badge on every grant. The badge
// must be the same capability the loan coordinator was wired to trust.
func NewLender(cfg LenderConfig, badge domain.Capability, logger *slog.Logger) *Lender {
	if cfg.PremiumBps == 0 {
		cfg.PremiumBps = DefaultPremiumBps
	}
	return &Lender{
		cfg:    cfg,
		badge:  badge,
		logger: logger.With(slog.String("component", "sim_lender")),
	}
}

// Account returns the identity holding the lender's reserves.
func (l *Lender) Account() common.Address {
	return l.cfg.Account
}

// Fund deposits reserves. Wiring only.
func (l *Lender) Fund(lg *ledger.Ledger, asset common.Address, amount *uint256.Int) error {
	return lg.SeedBalance(l.cfg.Account, asset, amount)
}

// RequestLoan implements the flash loan protocol: reserve check, credit,
// single callback, repayment pull. Any failure surfaces to the caller whose
// unit discard undoes the credits.
func (l *Lender) RequestLoan(ctx context.Context, unit *ledger.Unit, req domain.LoanRequest, borrower common.Address, params []byte, handler engine.LoanHandler) error {
	if err := req.Validate(); err != nil {
		return err
	}

	grant := engine.LoanGrant{
		Initiator: borrower,
		Params:    params,
		Lender:    l.badge,
	}
	for _, leg := range req.Legs {
		if unit.Balance(l.cfg.Account, leg.Asset).Lt(leg.Amount) {
			return fmt.Errorf("sim: reserve %s short of %s: %w",
				leg.Asset.Hex(), leg.Amount, domain.ErrInsufficientLiquidity)
		}
		premium, err := domain.PremiumOn(leg.Amount, l.cfg.PremiumBps)
		if err != nil {
			return err
		}
		if err := unit.Transfer(l.cfg.Account, borrower, leg.Asset, leg.Amount); err != nil {
			return err
		}
		grant.Assets = append(grant.Assets, leg.Asset)
		grant.Amounts = append(grant.Amounts, new(uint256.Int).Set(leg.Amount))
		grant.Premiums = append(grant.Premiums, premium)
	}

	if err := handler.OnLoan(ctx, unit, grant); err != nil {
		return err
	}

	for i := range grant.Assets {
		owed, err := domain.AddAmount(grant.Amounts[i], grant.Premiums[i])
		if err != nil {
			return err
		}
		if err := unit.TransferFrom(l.cfg.Account, borrower, l.cfg.Account, grant.Assets[i], owed); err != nil {
			if errors.Is(err, domain.ErrInsufficientAllowance) || errors.Is(err, domain.ErrInsufficientBalance) {
				return fmt.Errorf("sim: repayment of %s %s not covered: %w",
					owed, grant.Assets[i].Hex(), domain.ErrInsufficientRepayment)
			}
			return err
		}
	}

	l.logger.Debug("loan served",
		slog.Int("legs", len(grant.Assets)),
		slog.String("borrower", borrower.Hex()),
	)
	return nil
}

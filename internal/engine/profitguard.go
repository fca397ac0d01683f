package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

// ProfitGuard decides, at the end of the loan callback, whether the unit's
// final balance covers the repayment obligation and settles accordingly.
// Under SettleStrict any shortfall aborts the unit. Under SettleLenient the
// shortfall is pulled from the fallback funder (through the funder's
// standing allowance to the execution account) and the attempt is reported
// as failed-with-reason while the obligation still settles. Both branches
// grant the lender an allowance of exactly the obligation before returning,
// which is how repayment actually happens.
type ProfitGuard struct {
	account common.Address
	funder  common.Address
	logger  *slog.Logger
}

// Settlement reports how one obligation was cleared.
type Settlement struct {
	Obligation *uint256.Int
	Profit     *uint256.Int // set when the balance covered the obligation
	Deficit    *uint256.Int // set when the fallback funder covered a shortfall
	FellBack   bool
	Reason     string // populated when FellBack
}

// NewProfitGuard creates a guard settling from account, with funder as the
// lenient policy's fallback source.
func NewProfitGuard(account, funder common.Address, logger *slog.Logger) *ProfitGuard {
	return &ProfitGuard{
		account: account,
		funder:  funder,
		logger:  logger.With(slog.String("component", "profitguard")),
	}
}

// Settle checks the execution account's final balance against the obligation
// and applies the policy. On success the lender holds an allowance of
// exactly borrowed+premium and the outcome event has been emitted.
func (g *ProfitGuard) Settle(unit *ledger.Unit, lender common.Address, ob domain.RepaymentObligation, policy SettlePolicy) (Settlement, error) {
	obligation, err := ob.Total()
	if err != nil {
		return Settlement{}, err
	}
	final := unit.Balance(g.account, ob.Asset)

	var st Settlement
	st.Obligation = obligation

	if final.Lt(obligation) {
		deficit := new(uint256.Int).Sub(obligation, final)
		if policy == SettleStrict {
			return Settlement{}, fmt.Errorf("engine: final balance %s below obligation %s: %w",
				final, obligation, domain.ErrInsufficientRepayment)
		}

		// Lenient: top up from the fallback funder before repaying. The
		// pull itself must be covered, else the unit fails for good.
		if err := unit.TransferFrom(g.account, g.funder, g.account, ob.Asset, deficit); err != nil {
			if errors.Is(err, domain.ErrInsufficientAllowance) || errors.Is(err, domain.ErrInsufficientBalance) {
				return Settlement{}, fmt.Errorf("engine: fallback pull of %s: %w",
					deficit, domain.ErrFallbackFundingInsufficient)
			}
			return Settlement{}, fmt.Errorf("engine: fallback pull: %w", err)
		}
		st.Deficit = deficit
		st.FellBack = true
		st.Reason = fmt.Sprintf("final balance %s below obligation %s", final, obligation)
		unit.Emit(domain.ArbitrageFailedEvent{
			Asset:  ob.Asset,
			Amount: ob.Borrowed.String(),
			Reason: st.Reason,
		})
		g.logger.Warn("shortfall covered by fallback funder",
			slog.String("asset", ob.Asset.Hex()),
			slog.String("deficit", deficit.String()),
		)
	} else {
		profit := new(uint256.Int).Sub(final, obligation)
		st.Profit = profit
		unit.Emit(domain.LoanExecutedEvent{
			Asset:  ob.Asset,
			Amount: ob.Borrowed.String(),
			Profit: profit.String(),
		})
		g.logger.Info("obligation cleared",
			slog.String("asset", ob.Asset.Hex()),
			slog.String("borrowed", ob.Borrowed.String()),
			slog.String("profit", profit.String()),
		)
	}

	if err := unit.Approve(g.account, lender, ob.Asset, obligation); err != nil {
		return Settlement{}, fmt.Errorf("engine: authorize repayment: %w", err)
	}
	return st, nil
}

// Package sim provides in-process liquidity for paper trading and tests: a
// constant-product swap router and a flash lender that charges the standard
// premium. Pool reserves and lender funds live on the ledger like any other
// balance, so a discarded unit rolls venue state back along with everything
// else.
package sim

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

const (
	feeNumerator   = 997
	feeDenominator = 1000
)

// PoolAccount derives the deterministic ledger identity holding a pair's
// reserves. The pair is unordered; both asset orders map to one account.
func PoolAccount(a, b common.Address) common.Address {
	x, y := a, b
	if bytes.Compare(x.Bytes(), y.Bytes()) > 0 {
		x, y = y, x
	}
	h := ethcrypto.Keccak256(x.Bytes(), y.Bytes())
	return common.BytesToAddress(h[12:])
}

// AmountOut prices an exact-input swap against constant-product reserves
// with a 0.3% fee, rounding down.
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, domain.ErrInsufficientLiquidity
	}
	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(feeNumerator))
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(inWithFee, reserveOut)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	scaledReserve, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(feeDenominator))
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	denominator, carry := new(uint256.Int).AddOverflow(scaledReserve, inWithFee)
	if carry {
		return nil, domain.ErrArithmeticOverflow
	}
	return new(uint256.Int).Div(numerator, denominator), nil
}

// AMM is a constant-product exchange over ledger-held pool reserves.
type AMM struct {
	account common.Address
	logger  *slog.Logger
}

// NewAMM creates an AMM whose router identity is account. Swap inputs are
// pulled through allowances granted to that identity.
func NewAMM(account common.Address, logger *slog.Logger) *AMM {
	return &AMM{
		account: account,
		logger:  logger.With(slog.String("component", "sim_amm")),
	}
}

// Account returns the router identity approvals must name.
func (m *AMM) Account() common.Address {
	return m.account
}

// SeedPool deposits initial reserves for a pair. Wiring only.
func (m *AMM) SeedPool(lg *ledger.Ledger, a, b common.Address, reserveA, reserveB *uint256.Int) error {
	pool := PoolAccount(a, b)
	if err := lg.SeedBalance(pool, a, reserveA); err != nil {
		return err
	}
	return lg.SeedBalance(pool, b, reserveB)
}

// Reserves reads a pair's committed reserves.
func (m *AMM) Reserves(lg *ledger.Ledger, a, b common.Address) (*uint256.Int, *uint256.Int) {
	pool := PoolAccount(a, b)
	return lg.BalanceOf(pool, a), lg.BalanceOf(pool, b)
}

// SwapExactInput trades along path, one pool per adjacent pair, and credits
// the final output to recipient. The returned slice holds the amount at
// every path vertex. minOut bounds the final output only.
func (m *AMM) SwapExactInput(ctx context.Context, unit *ledger.Unit, amountIn, minOut *uint256.Int, path []common.Address, recipient common.Address, deadline time.Time) ([]*uint256.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("sim: swap path has %d vertices: %w", len(path), domain.ErrInvalidPath)
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		return nil, fmt.Errorf("sim: swap deadline %s: %w", deadline.Format(time.RFC3339), domain.ErrDeadlineExpired)
	}

	amounts := make([]*uint256.Int, len(path))
	amounts[0] = new(uint256.Int).Set(amountIn)

	for i := 0; i+1 < len(path); i++ {
		in, out := path[i], path[i+1]
		pool := PoolAccount(in, out)
		reserveIn := unit.Balance(pool, in)
		reserveOut := unit.Balance(pool, out)

		amt, err := AmountOut(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, fmt.Errorf("sim: pool %s/%s: %w", in.Hex(), out.Hex(), err)
		}
		if amt.IsZero() || !amt.Lt(reserveOut) {
			return nil, fmt.Errorf("sim: pool %s/%s drained: %w", in.Hex(), out.Hex(), domain.ErrInsufficientLiquidity)
		}

		if i == 0 {
			// The input leg is pulled through the recipient's approval.
			if err := unit.TransferFrom(m.account, recipient, pool, in, amounts[i]); err != nil {
				return nil, fmt.Errorf("sim: pull input: %w", err)
			}
		} else {
			if err := unit.Transfer(PoolAccount(path[i-1], in), pool, in, amounts[i]); err != nil {
				return nil, fmt.Errorf("sim: forward leg: %w", err)
			}
		}
		amounts[i+1] = amt
	}

	final := amounts[len(amounts)-1]
	if minOut != nil && !minOut.IsZero() && final.Lt(minOut) {
		return nil, fmt.Errorf("sim: output %s below floor %s: %w", final, minOut, domain.ErrInsufficientOutput)
	}

	lastPool := PoolAccount(path[len(path)-2], path[len(path)-1])
	if err := unit.Transfer(lastPool, recipient, path[len(path)-1], final); err != nil {
		return nil, fmt.Errorf("sim: pay output: %w", err)
	}

	m.logger.Debug("swap filled",
		slog.String("in", path[0].Hex()),
		slog.String("out", path[len(path)-1].Hex()),
		slog.String("amount_in", amountIn.String()),
		slog.String("amount_out", final.String()),
	)
	return amounts, nil
}

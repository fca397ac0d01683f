package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

// PathExecutor runs an ordered swap chain against the exchange router. For
// each hop it grants the router spending rights over exactly the current
// input amount, invokes a 2-asset exact-input swap, and carries the reported
// output forward as the next hop's input. Any hop failure aborts the run;
// the enclosing unit's discard removes the partial swaps.
type PathExecutor struct {
	router  SwapRouter
	account common.Address
	logger  *slog.Logger

	running atomic.Bool
}

// NewPathExecutor creates a PathExecutor that swaps from account's balance.
func NewPathExecutor(router SwapRouter, account common.Address, logger *slog.Logger) *PathExecutor {
	return &PathExecutor{
		router:  router,
		account: account,
		logger:  logger.With(slog.String("component", "pathexec")),
	}
}

// Run executes the path with amountIn and returns the final output amount
// and one record per executed hop. perHopMinOut applies to every hop; zero
// accepts any output. A second entry while a run is active fails with
// ErrReentrantCall.
func (x *PathExecutor) Run(ctx context.Context, unit *ledger.Unit, path domain.SwapPath, amountIn, perHopMinOut *uint256.Int, deadline time.Time) (*uint256.Int, []domain.HopRecord, error) {
	if !x.running.CompareAndSwap(false, true) {
		return nil, nil, fmt.Errorf("engine: path run already active: %w", domain.ErrReentrantCall)
	}
	defer x.running.Store(false)

	if err := path.Validate(); err != nil {
		return nil, nil, err
	}
	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, fmt.Errorf("engine: nothing to swap: %w", domain.ErrInvalidPath)
	}
	minOut := perHopMinOut
	if minOut == nil {
		minOut = uint256.NewInt(0)
	}

	cur := new(uint256.Int).Set(amountIn)
	records := make([]domain.HopRecord, 0, len(path.Hops))
	for i, hop := range path.Hops {
		if err := unit.Approve(x.account, x.router.Account(), hop.From, cur); err != nil {
			return nil, nil, fmt.Errorf("engine: hop %d approve: %w", i, err)
		}
		amounts, err := x.router.SwapExactInput(ctx, unit, cur, minOut, []common.Address{hop.From, hop.To}, x.account, deadline)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: hop %d %s: %w", i, hop.From.Hex(), err)
		}
		if len(amounts) < 2 {
			return nil, nil, fmt.Errorf("engine: hop %d: router reported %d amounts", i, len(amounts))
		}
		out := new(uint256.Int).Set(amounts[len(amounts)-1])

		records = append(records, domain.HopRecord{
			From:      hop.From,
			To:        hop.To,
			AmountIn:  new(uint256.Int).Set(cur),
			AmountOut: out,
		})
		unit.Emit(domain.HopSwappedEvent{
			From:      hop.From,
			To:        hop.To,
			AmountIn:  cur.String(),
			AmountOut: out.String(),
		})
		x.logger.Debug("hop swapped",
			slog.Int("hop", i),
			slog.String("from", hop.From.Hex()),
			slog.String("to", hop.To.Hex()),
			slog.String("amount_in", cur.String()),
			slog.String("amount_out", out.String()),
		)
		cur = out
	}
	return cur, records, nil
}

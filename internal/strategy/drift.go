package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/ledger"
	"github.com/apexarb/arbengine/internal/venue/sim"
)

// defaultDriftBps caps a drift trade at 0.5% of the input reserve.
const defaultDriftBps = 50

// Drifter nudges pool prices between scans by pushing a small random swap
// through the venue, so repeated scans face moving reserves instead of a
// frozen book.
type Drifter struct {
	venue  *sim.AMM
	lg     *ledger.Ledger
	trader common.Address
	pairs  [][2]common.Address
	maxBps uint64
	rng    *rand.Rand
	logger *slog.Logger
}

// NewDrifter builds a drifter that trades as trader across the given pairs.
// maxBps bounds trade size in basis points of the input reserve; zero means
// the default.
func NewDrifter(venue *sim.AMM, lg *ledger.Ledger, trader common.Address, pairs [][2]common.Address, maxBps uint64, logger *slog.Logger) *Drifter {
	if maxBps == 0 {
		maxBps = defaultDriftBps
	}
	return &Drifter{
		venue:  venue,
		lg:     lg,
		trader: trader,
		pairs:  pairs,
		maxBps: maxBps,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger: logger.With(slog.String("component", "pool_drift")),
	}
}

// Step trades a random fraction of one pool's input reserve in a random
// direction. The trade runs in its own unit, so a failed nudge leaves no
// trace.
func (d *Drifter) Step(ctx context.Context) error {
	if len(d.pairs) == 0 {
		return nil
	}
	pair := d.pairs[d.rng.IntN(len(d.pairs))]
	from, to := pair[0], pair[1]
	if d.rng.IntN(2) == 1 {
		from, to = to, from
	}

	reserveIn, _ := d.venue.Reserves(d.lg, from, to)
	if reserveIn.IsZero() {
		return nil
	}
	bps := uint256.NewInt(d.rng.Uint64N(d.maxBps) + 1)
	amountIn, overflow := new(uint256.Int).MulDivOverflow(reserveIn, bps, uint256.NewInt(10_000))
	if overflow || amountIn.IsZero() {
		return nil
	}

	unit, err := d.lg.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin drift unit: %w", err)
	}
	defer unit.Discard()

	if err := unit.Mint(d.trader, from, amountIn); err != nil {
		return fmt.Errorf("fund drift trade: %w", err)
	}
	if err := unit.Approve(d.trader, d.venue.Account(), from, amountIn); err != nil {
		return fmt.Errorf("approve drift trade: %w", err)
	}
	if _, err := d.venue.SwapExactInput(ctx, unit, amountIn, uint256.NewInt(0), []common.Address{from, to}, d.trader, time.Time{}); err != nil {
		return fmt.Errorf("drift swap: %w", err)
	}
	if err := unit.Commit(); err != nil {
		return fmt.Errorf("commit drift unit: %w", err)
	}

	d.logger.Debug("pool drifted",
		slog.String("in", from.Hex()),
		slog.String("out", to.Hex()),
		slog.String("amount_in", amountIn.Dec()),
	)
	return nil
}

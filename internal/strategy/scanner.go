// Package strategy drives paper trading: it scans the simulated venue for
// closed swap cycles whose estimated output covers the flash premium plus a
// configured profit floor, and submits the best candidate to the engine on a
// fixed cadence.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/ledger"
	"github.com/apexarb/arbengine/internal/token"
	"github.com/apexarb/arbengine/internal/venue/sim"
)

const (
	defaultScanInterval = 5 * time.Second
	defaultMaxHops      = 4
	defaultPlanDeadline = 30 * time.Second
)

// PlanSubmitter runs one borrow-swap-repay attempt end to end.
type PlanSubmitter interface {
	SubmitPlan(ctx context.Context, cap domain.Capability, req domain.LoanRequest, plan engine.TradePlan) (domain.ExecutionOutcome, error)
}

// ScannerConfig tunes the scan loop. Zero values fall back to defaults;
// BorrowAsset and BorrowAmount must be set by the caller.
type ScannerConfig struct {
	Interval     time.Duration
	BorrowAsset  common.Address
	BorrowAmount *uint256.Int
	MinProfit    *uint256.Int
	PremiumBps   uint64
	MaxHops      int
	Deadline     time.Duration
	Policy       engine.SettlePolicy
	Assets       []common.Address
}

func (c *ScannerConfig) normalize() {
	if c.Interval <= 0 {
		c.Interval = defaultScanInterval
	}
	if c.MaxHops <= 0 {
		c.MaxHops = defaultMaxHops
	}
	if c.Deadline <= 0 {
		c.Deadline = defaultPlanDeadline
	}
	if c.MinProfit == nil {
		c.MinProfit = uint256.NewInt(0)
	}
	if c.PremiumBps == 0 {
		c.PremiumBps = sim.DefaultPremiumBps
	}
	if !slices.Contains(c.Assets, c.BorrowAsset) {
		c.Assets = append(c.Assets, c.BorrowAsset)
	}
}

// Scanner repeatedly searches the venue's pools for a profitable cycle and
// hands the winner to the engine.
type Scanner struct {
	cfg    ScannerConfig
	runner PlanSubmitter
	cap    domain.Capability
	venue  *sim.AMM
	lg     *ledger.Ledger
	tokens *token.Registry
	drift  *Drifter
	logger *slog.Logger
}

// NewScanner builds a scanner over the given venue and ledger. The
// capability authorizes plan submission on the runner.
func NewScanner(cfg ScannerConfig, runner PlanSubmitter, cap domain.Capability, venue *sim.AMM, lg *ledger.Ledger, tokens *token.Registry, logger *slog.Logger) *Scanner {
	cfg.normalize()
	return &Scanner{
		cfg:    cfg,
		runner: runner,
		cap:    cap,
		venue:  venue,
		lg:     lg,
		tokens: tokens,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// WithDrifter nudges pool reserves before every scan so consecutive passes
// see moving prices.
func (s *Scanner) WithDrifter(d *Drifter) *Scanner {
	s.drift = d
	return s
}

// Run scans on every tick until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scanner started",
		slog.Duration("interval", s.cfg.Interval),
		slog.String("borrow", s.tokens.Format(s.cfg.BorrowAsset, s.cfg.BorrowAmount)),
		slog.String("asset", s.tokens.Symbol(s.cfg.BorrowAsset)),
	)
	defer s.logger.Info("scanner stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.drift != nil {
				if err := s.drift.Step(ctx); err != nil {
					s.logger.Warn("pool drift failed", slog.String("error", err.Error()))
				}
			}
			if err := s.scanOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// scanOnce estimates every closed cycle from the borrow asset and submits
// the most profitable one, if any clears the premium and the profit floor.
func (s *Scanner) scanOnce(ctx context.Context) error {
	premium, err := domain.PremiumOn(s.cfg.BorrowAmount, s.cfg.PremiumBps)
	if err != nil {
		return fmt.Errorf("size premium: %w", err)
	}
	owed := new(uint256.Int).Add(s.cfg.BorrowAmount, premium)
	floor := new(uint256.Int).Add(owed, s.cfg.MinProfit)

	best, ok := s.bestCycle()
	if !ok || best.out.Lt(floor) {
		s.logger.Debug("no cycle above floor",
			slog.String("floor", floor.Dec()),
		)
		return nil
	}

	path, err := domain.NewPath(best.assets...)
	if err != nil {
		return fmt.Errorf("build path: %w", err)
	}
	plan := engine.TradePlan{
		Path:         path,
		PerHopMinOut: uint256.NewInt(0),
		Deadline:     time.Now().Add(s.cfg.Deadline),
		Policy:       s.cfg.Policy,
	}
	req := domain.NewLoanRequest(s.cfg.BorrowAsset, s.cfg.BorrowAmount)

	estimated := new(uint256.Int).Sub(best.out, owed)
	s.logger.Info("submitting cycle",
		slog.String("path", s.pathLabel(best.assets)),
		slog.String("estimated_profit", s.tokens.Format(s.cfg.BorrowAsset, estimated)),
	)

	outcome, err := s.runner.SubmitPlan(ctx, s.cap, req, plan)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			s.logger.Debug("attempt suppressed by cooldown", slog.String("path", s.pathLabel(best.assets)))
			return nil
		}
		return fmt.Errorf("submit plan: %w", err)
	}

	if outcome.Succeeded {
		s.logger.Info("cycle captured",
			slog.String("unit_id", outcome.UnitID),
			slog.String("profit", s.tokens.Format(s.cfg.BorrowAsset, outcome.Profit)),
		)
	} else {
		s.logger.Info("cycle missed",
			slog.String("unit_id", outcome.UnitID),
			slog.String("reason", outcome.Reason),
		)
	}
	return nil
}

func (s *Scanner) pathLabel(assets []common.Address) string {
	label := ""
	for i, a := range assets {
		if i > 0 {
			label += "->"
		}
		label += s.tokens.Symbol(a)
	}
	return label
}

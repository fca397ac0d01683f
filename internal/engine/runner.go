package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
)

// IntentAuthorizer verifies and dispatches a signed intent on behalf of a
// submitter. Implemented by the authorization gateway.
type IntentAuthorizer interface {
	Authorize(ctx context.Context, intent domain.AuthorizedIntent, submitter string) (domain.DispatchReceipt, error)
}

// CustodyWithdrawer moves engine funds out to the operator. Implemented by
// the custodian.
type CustodyWithdrawer interface {
	OwnerWithdraw(ctx context.Context, cap domain.Capability, spec domain.WithdrawSpec) (*uint256.Int, error)
}

// AttemptObserver receives the outcome and duration of each executed work
// item. Implemented by the metrics collector.
type AttemptObserver interface {
	ObserveWork(kind string, success bool, elapsed time.Duration)
}

// RunnerConfig tunes the submission queue.
type RunnerConfig struct {
	QueueSize     int           // buffered task slots, default 64
	LockKey       string        // distributed lock key, default "arbd:unit"
	LockTTL       time.Duration // lock expiry, default 30s
	LockRetry     time.Duration // poll interval while the lock is held elsewhere, default 100ms
	PlanCooldown  time.Duration // duplicate plan suppression window, default 2m
	SweepInterval time.Duration // cooldown sweep cadence, default 1m
}

func (c *RunnerConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.LockKey == "" {
		c.LockKey = "arbd:unit"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.LockRetry <= 0 {
		c.LockRetry = 100 * time.Millisecond
	}
	if c.PlanCooldown <= 0 {
		c.PlanCooldown = 2 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

type taskResult struct {
	val any
	err error
}

type task struct {
	kind  string
	run   func(ctx context.Context) (any, error)
	reply chan taskResult
}

// Runner serializes all state-changing work (loan attempts, gasless intents,
// operator withdrawals) through a single goroutine. The ledger already
// serializes units; the runner adds queueing, duplicate plan suppression and
// an optional cross-process lock on top, so concurrent API calls line up
// instead of blocking inside the ledger.
type Runner struct {
	cfg    RunnerConfig
	coord  *Coordinator
	auth   IntentAuthorizer
	cust   CustodyWithdrawer
	locker domain.Locker
	obs    AttemptObserver
	cool   *Cooldown
	queue  chan task
	logger *slog.Logger
}

// NewRunner creates a Runner. locker and obs may be nil; auth and cust may
// be nil when the corresponding submission kind is not served.
func NewRunner(
	cfg RunnerConfig,
	coord *Coordinator,
	auth IntentAuthorizer,
	cust CustodyWithdrawer,
	locker domain.Locker,
	obs AttemptObserver,
	logger *slog.Logger,
) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:    cfg,
		coord:  coord,
		auth:   auth,
		cust:   cust,
		locker: locker,
		obs:    obs,
		cool:   NewCooldown(cfg.PlanCooldown),
		queue:  make(chan task, cfg.QueueSize),
		logger: logger.With(slog.String("component", "runner")),
	}
}

// Run processes queued work until ctx is cancelled. Pending tasks are drained
// with a short deadline on shutdown so callers blocked on a reply are not
// abandoned.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started",
		slog.Int("queue_size", r.cfg.QueueSize),
		slog.Bool("distributed_lock", r.locker != nil))
	defer r.logger.Info("runner stopped")

	sweep := time.NewTicker(r.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case t, ok := <-r.queue:
			if !ok {
				return nil
			}
			r.execute(ctx, t)
		case <-sweep.C:
			r.cool.Sweep()
		}
	}
}

// execute runs one task under the distributed lock and reports its duration.
func (r *Runner) execute(ctx context.Context, t task) {
	start := time.Now()

	unlock, err := r.acquireLock(ctx)
	if err != nil {
		t.reply <- taskResult{err: fmt.Errorf("engine: acquire unit lock: %w", err)}
		return
	}

	val, err := t.run(ctx)
	unlock()

	elapsed := time.Since(start)
	if r.obs != nil {
		r.obs.ObserveWork(t.kind, err == nil, elapsed)
	}
	r.logger.Debug("task executed",
		slog.String("kind", t.kind),
		slog.Bool("success", err == nil),
		slog.Duration("elapsed", elapsed))

	t.reply <- taskResult{val: val, err: err}
}

// acquireLock polls the cross-process lock until it is held or ctx expires.
// Without a locker it is a no-op.
func (r *Runner) acquireLock(ctx context.Context) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	for {
		unlock, err := r.locker.Acquire(ctx, r.cfg.LockKey, r.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.LockRetry):
		}
	}
}

// drain processes whatever is still queued with a short per-task deadline.
func (r *Runner) drain() {
	for {
		select {
		case t, ok := <-r.queue:
			if !ok {
				return
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.execute(drainCtx, t)
			cancel()
		default:
			return
		}
	}
}

// submit enqueues fn and waits for its reply.
func (r *Runner) submit(ctx context.Context, kind string, fn func(ctx context.Context) (any, error)) (any, error) {
	t := task{kind: kind, run: fn, reply: make(chan taskResult, 1)}
	select {
	case r.queue <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-t.reply:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitPlan queues a flash loan attempt. An identical plan submitted within
// the cooldown window is rejected with ErrDuplicate without touching the
// ledger.
func (r *Runner) SubmitPlan(ctx context.Context, cap domain.Capability, req domain.LoanRequest, plan TradePlan) (domain.ExecutionOutcome, error) {
	if digest, err := planDigest(req, plan); err == nil && r.cool.Active(digest) {
		r.logger.Debug("duplicate plan suppressed", slog.String("digest", digest))
		return domain.ExecutionOutcome{}, fmt.Errorf("engine: plan submitted within cooldown: %w", domain.ErrDuplicate)
	}
	val, err := r.submit(ctx, "loan_attempt", func(ctx context.Context) (any, error) {
		return r.coord.Initiate(ctx, cap, req, plan)
	})
	out, _ := val.(domain.ExecutionOutcome)
	return out, err
}

// SubmitIntent queues a signed intent for verification and dispatch. No
// cooldown applies; the nonce registry is the replay gate and its rejection
// must reach the submitter.
func (r *Runner) SubmitIntent(ctx context.Context, intent domain.AuthorizedIntent, submitter string) (domain.DispatchReceipt, error) {
	if r.auth == nil {
		return domain.DispatchReceipt{}, fmt.Errorf("engine: no intent authorizer configured: %w", domain.ErrUnknownOperation)
	}
	val, err := r.submit(ctx, "intent", func(ctx context.Context) (any, error) {
		return r.auth.Authorize(ctx, intent, submitter)
	})
	rec, _ := val.(domain.DispatchReceipt)
	return rec, err
}

// SubmitWithdraw queues an operator withdrawal.
func (r *Runner) SubmitWithdraw(ctx context.Context, cap domain.Capability, spec domain.WithdrawSpec) (*uint256.Int, error) {
	if r.cust == nil {
		return nil, fmt.Errorf("engine: no custodian configured: %w", domain.ErrUnknownOperation)
	}
	val, err := r.submit(ctx, "withdraw", func(ctx context.Context) (any, error) {
		return r.cust.OwnerWithdraw(ctx, cap, spec)
	})
	amt, _ := val.(*uint256.Int)
	return amt, err
}

// planDigest derives a stable identifier for a request/plan pair from the
// packed plan bytes and the loan legs.
func planDigest(req domain.LoanRequest, plan TradePlan) (string, error) {
	packed, err := plan.Encode()
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, len(packed)+len(req.Legs)*52)
	buf = append(buf, packed...)
	for _, leg := range req.Legs {
		buf = append(buf, leg.Asset.Bytes()...)
		amt := leg.Amount.Bytes32()
		buf = append(buf, amt[:]...)
	}
	return hex.EncodeToString(crypto.Keccak256(buf)), nil
}

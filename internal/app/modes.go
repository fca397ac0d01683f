package app

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	s3blob "github.com/apexarb/arbengine/internal/blob/s3"
	"github.com/apexarb/arbengine/internal/crypto"
	"github.com/apexarb/arbengine/internal/custody"
	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/gateway"
	"github.com/apexarb/arbengine/internal/journal"
	"github.com/apexarb/arbengine/internal/ledger"
	"github.com/apexarb/arbengine/internal/pipeline"
	"github.com/apexarb/arbengine/internal/server"
	"github.com/apexarb/arbengine/internal/server/handler"
	"github.com/apexarb/arbengine/internal/server/ws"
	"github.com/apexarb/arbengine/internal/strategy"
	"github.com/apexarb/arbengine/internal/token"
	"github.com/apexarb/arbengine/internal/venue/sim"
)

// core bundles the executable heart of the daemon: the ledger world, the
// simulated venue, the loan engine, the authorization gateway, and the
// serialized submission queue in front of them.
type core struct {
	lg      *ledger.Ledger
	venue   *sim.AMM
	lender  *sim.Lender
	runner  *engine.Runner
	gateway *gateway.Gateway
	tokens  *token.Registry

	engineAcct common.Address
	ownerAcct  common.Address
	funderAcct common.Address

	initiatorCap domain.Capability
	ownerCap     domain.Capability
}

// ServeMode runs the engine queue and the HTTP API without a scanner. Work
// arrives only through the API: relayed intents, manual attempts, and owner
// withdrawals.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(a.logger)
	orch.Add("runner", c.runner.Run)
	if a.cfg.Archive.Enabled {
		a.addArchiveLoop(orch, deps)
	}
	if a.cfg.Server.Enabled {
		a.addServerLoops(orch, deps, c)
	}
	return orch.Run(ctx)
}

// PaperMode runs everything ServeMode does plus the cycle scanner and the
// pool drifter, so the daemon hunts the seeded venue on its own.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("paper mode: %w", err)
	}
	scan, err := a.buildScanner(c)
	if err != nil {
		return fmt.Errorf("paper mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(a.logger)
	orch.Add("runner", c.runner.Run)
	orch.Add("scanner", scan.Run)
	if a.cfg.Archive.Enabled {
		a.addArchiveLoop(orch, deps)
	}
	if a.cfg.Server.Enabled {
		a.addServerLoops(orch, deps, c)
	}
	return orch.Run(ctx)
}

// ArchiveMode performs one archival sweep of the journal into S3 and exits.
// Meant for cron-style scheduling against a shared store.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.BlobWriter == nil {
		return fmt.Errorf("archive mode: s3 is not enabled")
	}
	arch := s3blob.NewArchiver(deps.BlobWriter, deps.JournalStore, a.cfg.S3.Prefix, a.cfg.Archive.BatchSize, a.logger)
	count, err := arch.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive sweep complete", slog.Int("records", count))
	return nil
}

// FullMode runs the engine queue, the scanner, the archive loop, and the
// HTTP API together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	scan, err := a.buildScanner(c)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	orch := pipeline.NewOrchestrator(a.logger)
	orch.Add("runner", c.runner.Run)
	orch.Add("scanner", scan.Run)
	if deps.BlobWriter != nil {
		if !a.cfg.Archive.Enabled {
			a.logger.InfoContext(ctx, "archive.enabled is false, full mode archives anyway")
		}
		a.addArchiveLoop(orch, deps)
	}
	if a.cfg.Server.Enabled {
		a.addServerLoops(orch, deps, c)
	}
	return orch.Run(ctx)
}

// buildCore assembles the ledger, the simulated venue, the engine, the
// gateway, and the runner, then seeds the configured world state.
func (a *App) buildCore(ctx context.Context, deps *Dependencies) (*core, error) {
	lg := ledger.New(a.logger)

	engineAcct := resolveAccount(a.cfg.Accounts.Engine)
	ownerAcct := resolveAccount(a.cfg.Accounts.Owner)
	funderAcct := resolveAccount(a.cfg.Accounts.Funder)

	initiatorCap := domain.NewCapability()
	ownerCap := domain.NewCapability()
	lenderCap := domain.NewCapability()

	venue := sim.NewAMM(throwawayAccount(), a.logger)
	lender := sim.NewLender(sim.LenderConfig{
		Account:    throwawayAccount(),
		PremiumBps: a.cfg.Engine.PremiumBps,
	}, lenderCap, a.logger)

	jopts := make([]journal.Option, 0, 4)
	if deps.JournalStore != nil {
		jopts = append(jopts, journal.WithStore(deps.JournalStore))
	}
	if deps.Bus != nil {
		jopts = append(jopts, journal.WithBus(deps.Bus, "events"))
	}
	notifiers := make([]journal.Notifier, 0, 2)
	if deps.Metrics != nil {
		notifiers = append(notifiers, deps.Metrics)
		jopts = append(jopts, journal.WithObserver(deps.Metrics))
	}
	if deps.Notifier != nil {
		notifiers = append(notifiers, deps.Notifier)
	}
	if len(notifiers) > 0 {
		jopts = append(jopts, journal.WithNotifier(journal.MultiNotifier(notifiers...)))
	}
	jrnl := journal.New(a.logger, jopts...)

	exec := engine.NewPathExecutor(venue, engineAcct, a.logger)
	guard := engine.NewProfitGuard(engineAcct, funderAcct, a.logger)
	coord := engine.NewCoordinator(engine.CoordinatorConfig{
		Account:      engineAcct,
		InitiatorCap: initiatorCap,
		LenderCap:    lenderCap,
	}, lg, lender, exec, guard, jrnl, a.logger)

	cust := custody.New(custody.Config{
		Account:  engineAcct,
		Owner:    ownerAcct,
		OwnerCap: ownerCap,
	}, lg, exec, jrnl, a.logger)

	policy, err := gateway.PolicyByName(a.cfg.Gateway.NoncePolicy)
	if err != nil {
		return nil, err
	}
	gw := gateway.New(gateway.Config{
		Signing: gateway.SigningDomain{
			Name:    a.cfg.Gateway.DomainName,
			Version: a.cfg.Gateway.DomainVersion,
			ChainID: a.cfg.Gateway.ChainID,
		},
		Target: engineAcct,
		Policy: policy,
	}, lg, cust, deps.NonceStore, jrnl, a.logger)

	// Restore nonce state so a restart cannot resurrect burned nonces.
	snap, err := deps.NonceStore.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore nonces: %w", err)
	}
	lg.SeedNonces(snap)

	var obs engine.AttemptObserver
	if deps.Metrics != nil {
		obs = deps.Metrics
	}
	runner := engine.NewRunner(engine.RunnerConfig{
		QueueSize:    a.cfg.Engine.QueueSize,
		LockKey:      a.cfg.Engine.LockKey,
		LockTTL:      a.cfg.Engine.LockTTL.Duration,
		PlanCooldown: a.cfg.Engine.PlanCooldown.Duration,
	}, coord, gw, cust, deps.Locker, obs, a.logger)

	c := &core{
		lg:           lg,
		venue:        venue,
		lender:       lender,
		runner:       runner,
		gateway:      gw,
		tokens:       deps.Tokens,
		engineAcct:   engineAcct,
		ownerAcct:    ownerAcct,
		funderAcct:   funderAcct,
		initiatorCap: initiatorCap,
		ownerCap:     ownerCap,
	}

	if err := a.seedWorld(c); err != nil {
		return nil, fmt.Errorf("seed world: %w", err)
	}

	a.logger.InfoContext(ctx, "core assembled",
		slog.String("engine", engineAcct.Hex()),
		slog.String("owner", ownerAcct.Hex()),
		slog.String("settle_policy", a.cfg.Engine.SettlePolicy),
		slog.String("nonce_policy", gw.PolicyName()),
	)
	return c, nil
}

// seedWorld loads the configured pools, lender reserves, and funder balances
// into the fresh ledger. All amounts in the config are human units of the
// named token.
func (a *App) seedWorld(c *core) error {
	for _, p := range a.cfg.Paper.Pools {
		ta, ok := c.tokens.BySymbol(p.TokenA)
		if !ok {
			return fmt.Errorf("unknown token %q", p.TokenA)
		}
		tb, ok := c.tokens.BySymbol(p.TokenB)
		if !ok {
			return fmt.Errorf("unknown token %q", p.TokenB)
		}
		ra, err := c.tokens.Parse(ta.Address, p.ReserveA)
		if err != nil {
			return fmt.Errorf("pool %s/%s reserve_a: %w", p.TokenA, p.TokenB, err)
		}
		rb, err := c.tokens.Parse(tb.Address, p.ReserveB)
		if err != nil {
			return fmt.Errorf("pool %s/%s reserve_b: %w", p.TokenA, p.TokenB, err)
		}
		if err := c.venue.SeedPool(c.lg, ta.Address, tb.Address, ra, rb); err != nil {
			return fmt.Errorf("seed pool %s/%s: %w", p.TokenA, p.TokenB, err)
		}
	}

	for _, r := range a.cfg.Paper.LenderReserves {
		info, ok := c.tokens.BySymbol(r.Asset)
		if !ok {
			return fmt.Errorf("unknown lender asset %q", r.Asset)
		}
		amt, err := c.tokens.Parse(info.Address, r.Amount)
		if err != nil {
			return fmt.Errorf("lender reserve %s: %w", r.Asset, err)
		}
		if err := c.lender.Fund(c.lg, info.Address, amt); err != nil {
			return fmt.Errorf("fund lender %s: %w", r.Asset, err)
		}
	}

	if a.cfg.Paper.FunderBalance != "" {
		borrow, ok := c.tokens.BySymbol(a.cfg.Paper.BorrowAsset)
		if !ok {
			return fmt.Errorf("unknown borrow asset %q", a.cfg.Paper.BorrowAsset)
		}
		bal, err := c.tokens.Parse(borrow.Address, a.cfg.Paper.FunderBalance)
		if err != nil {
			return fmt.Errorf("funder balance: %w", err)
		}
		if err := c.lg.SeedBalance(c.funderAcct, borrow.Address, bal); err != nil {
			return fmt.Errorf("seed funder balance: %w", err)
		}
		if a.cfg.Paper.FunderAllowance != "" {
			allow, err := c.tokens.Parse(borrow.Address, a.cfg.Paper.FunderAllowance)
			if err != nil {
				return fmt.Errorf("funder allowance: %w", err)
			}
			if err := c.lg.SeedAllowance(c.funderAcct, c.engineAcct, borrow.Address, allow); err != nil {
				return fmt.Errorf("seed funder allowance: %w", err)
			}
		}
	}

	return nil
}

// buildScanner assembles the cycle scanner and its pool drifter from the
// paper config. Every token appearing in a seeded pool joins the search set.
func (a *App) buildScanner(c *core) (*strategy.Scanner, error) {
	borrow, ok := c.tokens.BySymbol(a.cfg.Paper.BorrowAsset)
	if !ok {
		return nil, fmt.Errorf("unknown borrow asset %q", a.cfg.Paper.BorrowAsset)
	}
	borrowAmt, err := c.tokens.Parse(borrow.Address, a.cfg.Paper.Borrow)
	if err != nil {
		return nil, fmt.Errorf("borrow amount: %w", err)
	}
	minProfit := uint256.NewInt(0)
	if a.cfg.Paper.MinProfit != "" {
		minProfit, err = c.tokens.Parse(borrow.Address, a.cfg.Paper.MinProfit)
		if err != nil {
			return nil, fmt.Errorf("min profit: %w", err)
		}
	}
	policy, err := engine.ParseSettlePolicy(a.cfg.Engine.SettlePolicy)
	if err != nil {
		return nil, err
	}

	seen := make(map[common.Address]bool)
	assets := make([]common.Address, 0, 8)
	pairs := make([][2]common.Address, 0, len(a.cfg.Paper.Pools))
	for _, p := range a.cfg.Paper.Pools {
		ta, okA := c.tokens.BySymbol(p.TokenA)
		tb, okB := c.tokens.BySymbol(p.TokenB)
		if !okA || !okB {
			continue
		}
		pairs = append(pairs, [2]common.Address{ta.Address, tb.Address})
		for _, addr := range []common.Address{ta.Address, tb.Address} {
			if !seen[addr] {
				seen[addr] = true
				assets = append(assets, addr)
			}
		}
	}

	scan := strategy.NewScanner(strategy.ScannerConfig{
		Interval:     a.cfg.Paper.ScanInterval.Duration,
		BorrowAsset:  borrow.Address,
		BorrowAmount: borrowAmt,
		MinProfit:    minProfit,
		PremiumBps:   a.cfg.Engine.PremiumBps,
		Policy:       policy,
		Assets:       assets,
	}, c.runner, c.initiatorCap, c.venue, c.lg, c.tokens, a.logger)

	drift := strategy.NewDrifter(c.venue, c.lg, throwawayAccount(), pairs, 0, a.logger)
	return scan.WithDrifter(drift), nil
}

// addServerLoops registers the WebSocket hub and the HTTP server on the
// orchestrator.
func (a *App) addServerLoops(orch *pipeline.Orchestrator, deps *Dependencies, c *core) {
	health := handler.NewHealthHandler(a.logger)
	if deps.Redis != nil {
		health.AddCheck("redis", deps.Redis.Ping)
	}
	if deps.PG != nil {
		health.AddCheck("postgres", deps.PG.Pool().Ping)
	}
	if deps.S3 != nil {
		health.AddCheck("s3", deps.S3.Health)
	}

	intents := handler.NewIntentHandler(c.runner, a.logger)
	if deps.Receipts != nil {
		intents = intents.WithReceiptCache(deps.Receipts)
	}
	if deps.Metrics != nil {
		intents = intents.WithRejectionObserver(deps.Metrics)
	}

	handlers := server.Handlers{
		Health: health,
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:         a.cfg.Mode,
			SettlePolicy: a.cfg.Engine.SettlePolicy,
			NoncePolicy:  c.gateway.PolicyName(),
			Owner:        c.ownerAcct.Hex(),
			StoreBackend: a.cfg.Store.Backend,
		}),
		Intents:     intents,
		Attempts:    handler.NewAttemptHandler(c.runner, c.initiatorCap, c.tokens, a.logger),
		Nonce:       handler.NewNonceHandler(c.gateway),
		Withdrawals: handler.NewWithdrawHandler(c.runner, c.ownerCap, c.tokens, a.logger),
	}
	if deps.Receipts != nil {
		handlers.Receipts = handler.NewReceiptHandler(deps.Receipts, a.logger)
	}
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	if deps.Metrics != nil {
		hub = hub.WithGauge(deps.Metrics)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		BearerToken: a.cfg.Server.AuthToken,
		HMACKey:     a.cfg.Server.APIKey,
		HMACSecret:  a.cfg.Server.APISecret,
		RateLimit:   a.cfg.Server.RatePerMin,
		RateWindow:  time.Minute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	orch.Add("ws_hub", hub.Run)
	orch.Add("http", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		}
	})
}

// addArchiveLoop registers the periodic journal archiver when S3 is wired.
func (a *App) addArchiveLoop(orch *pipeline.Orchestrator, deps *Dependencies) {
	if deps.BlobWriter == nil {
		return
	}
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	arch := s3blob.NewArchiver(deps.BlobWriter, deps.JournalStore, a.cfg.S3.Prefix, a.cfg.Archive.BatchSize, a.logger)
	loop := pipeline.NewArchiver(arch, interval, a.logger)
	orch.Add("archiver", loop.RunLoop)
}

// SignMode reads one operation spec from stdin, signs it with the configured
// wallet key, and prints the wire-ready intent to stdout. The output matches
// the body POST /api/intents expects, so it pipes straight into curl.
func (a *App) SignMode(ctx context.Context) error {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("sign mode: %w", err)
	}
	signer, err := gateway.NewIntentSigner(keyHex, gateway.SigningDomain{
		Name:    a.cfg.Gateway.DomainName,
		Version: a.cfg.Gateway.DomainVersion,
		ChainID: a.cfg.Gateway.ChainID,
	})
	if err != nil {
		return fmt.Errorf("sign mode: %w", err)
	}

	var req signRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		return fmt.Errorf("sign mode: decode request: %w", err)
	}
	if !common.IsHexAddress(req.Target) {
		return fmt.Errorf("sign mode: invalid target %q", req.Target)
	}
	op, err := req.operation()
	if err != nil {
		return fmt.Errorf("sign mode: %w", err)
	}

	intent, err := signer.SignOperation(common.HexToAddress(req.Target), op, req.Nonce)
	if err != nil {
		return fmt.Errorf("sign mode: %w", err)
	}

	out := signedIntent{
		Signer:    intent.Signer.Hex(),
		Target:    intent.Target.Hex(),
		Payload:   hexutil.Encode(intent.Payload),
		Nonce:     intent.Nonce,
		Signature: hexutil.Encode(intent.Sig),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("sign mode: %w", err)
	}
	a.logger.InfoContext(ctx, "intent signed",
		slog.String("signer", out.Signer),
		slog.Uint64("nonce", out.Nonce),
	)
	return nil
}

// signRequest is the stdin form of a sign request: the operation to
// authorize plus the target and nonce binding it. Amounts are base units of
// the asset.
type signRequest struct {
	Target   string        `json:"target"`
	Nonce    uint64        `json:"nonce"`
	Kind     string        `json:"kind"`
	Swap     *signSwap     `json:"swap,omitempty"`
	Transfer *signTransfer `json:"transfer,omitempty"`
	Withdraw *signWithdraw `json:"withdraw,omitempty"`
}

type signSwap struct {
	Path     []string `json:"path"`
	AmountIn string   `json:"amount_in"`
	MinOut   string   `json:"min_out,omitempty"`
	Deadline string   `json:"deadline,omitempty"` // RFC 3339; empty means no deadline
}

type signTransfer struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type signWithdraw struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount,omitempty"` // empty withdraws the full balance
}

// signedIntent mirrors the POST /api/intents request body.
type signedIntent struct {
	Signer    string `json:"signer"`
	Target    string `json:"target"`
	Payload   string `json:"payload"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

func (r signRequest) operation() (domain.Operation, error) {
	switch strings.ToLower(r.Kind) {
	case "swap":
		if r.Swap == nil {
			return domain.Operation{}, fmt.Errorf("swap spec missing")
		}
		assets := make([]common.Address, 0, len(r.Swap.Path))
		for _, s := range r.Swap.Path {
			if !common.IsHexAddress(s) {
				return domain.Operation{}, fmt.Errorf("invalid path address %q", s)
			}
			assets = append(assets, common.HexToAddress(s))
		}
		path, err := domain.NewPath(assets...)
		if err != nil {
			return domain.Operation{}, err
		}
		amountIn, err := parseAmount(r.Swap.AmountIn)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("amount_in: %w", err)
		}
		minOut := uint256.NewInt(0)
		if r.Swap.MinOut != "" {
			if minOut, err = parseAmount(r.Swap.MinOut); err != nil {
				return domain.Operation{}, fmt.Errorf("min_out: %w", err)
			}
		}
		var deadline time.Time
		if r.Swap.Deadline != "" {
			if deadline, err = time.Parse(time.RFC3339, r.Swap.Deadline); err != nil {
				return domain.Operation{}, fmt.Errorf("deadline: %w", err)
			}
		}
		return domain.Operation{Kind: domain.OpSwap, Swap: &domain.SwapOperation{
			Path:     path,
			AmountIn: amountIn,
			MinOut:   minOut,
			Deadline: deadline,
		}}, nil

	case "transfer":
		if r.Transfer == nil {
			return domain.Operation{}, fmt.Errorf("transfer spec missing")
		}
		if !common.IsHexAddress(r.Transfer.Asset) {
			return domain.Operation{}, fmt.Errorf("invalid asset %q", r.Transfer.Asset)
		}
		if !common.IsHexAddress(r.Transfer.To) {
			return domain.Operation{}, fmt.Errorf("invalid recipient %q", r.Transfer.To)
		}
		amount, err := parseAmount(r.Transfer.Amount)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("amount: %w", err)
		}
		return domain.Operation{Kind: domain.OpTransfer, Transfer: &domain.TransferOperation{
			Asset:  common.HexToAddress(r.Transfer.Asset),
			To:     common.HexToAddress(r.Transfer.To),
			Amount: amount,
		}}, nil

	case "withdraw":
		if r.Withdraw == nil {
			return domain.Operation{}, fmt.Errorf("withdraw spec missing")
		}
		if !common.IsHexAddress(r.Withdraw.Asset) {
			return domain.Operation{}, fmt.Errorf("invalid asset %q", r.Withdraw.Asset)
		}
		var amount *uint256.Int
		if r.Withdraw.Amount != "" {
			var err error
			if amount, err = parseAmount(r.Withdraw.Amount); err != nil {
				return domain.Operation{}, fmt.Errorf("amount: %w", err)
			}
		}
		return domain.Operation{Kind: domain.OpWithdraw, Withdraw: &domain.WithdrawOperation{
			Asset:  common.HexToAddress(r.Withdraw.Asset),
			Amount: amount,
		}}, nil

	default:
		return domain.Operation{}, fmt.Errorf("unknown operation kind %q", r.Kind)
	}
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// resolveAccount parses a configured account address, generating a throwaway
// account when none is configured. Validation has already rejected malformed
// addresses for the modes that require configured ones.
func resolveAccount(s string) common.Address {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return throwawayAccount()
}

// throwawayAccount returns a random address for identities that only exist
// inside the in-process ledger.
func throwawayAccount() common.Address {
	var addr common.Address
	if _, err := cryptorand.Read(addr[:]); err != nil {
		panic(err)
	}
	return addr
}

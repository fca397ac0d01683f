// Package config defines the top-level configuration for the arbitrage
// engine daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBD_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Engine   EngineConfig   `toml:"engine"`
	Accounts AccountsConfig `toml:"accounts"`
	Paper    PaperConfig    `toml:"paper"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the signing key used by the intent-signing CLI mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// GatewayConfig holds the typed-data signing domain and the nonce policy the
// authorization gateway enforces.
type GatewayConfig struct {
	DomainName    string `toml:"domain_name"`
	DomainVersion string `toml:"domain_version"`
	ChainID       uint64 `toml:"chain_id"`
	NoncePolicy   string `toml:"nonce_policy"`
}

// EngineConfig holds loan execution parameters.
type EngineConfig struct {
	SettlePolicy string   `toml:"settle_policy"`
	PremiumBps   uint64   `toml:"premium_bps"`
	QueueSize    int      `toml:"queue_size"`
	PlanCooldown duration `toml:"plan_cooldown"`
	LockKey      string   `toml:"lock_key"`
	LockTTL      duration `toml:"lock_ttl"`
}

// AccountsConfig holds the well-known ledger accounts the daemon operates.
// Addresses are 0x-prefixed hex. Empty values are filled with generated
// throwaway accounts in paper mode.
type AccountsConfig struct {
	Engine string `toml:"engine"`
	Owner  string `toml:"owner"`
	Funder string `toml:"funder"`
}

// PoolSeed describes one constant-product pool to seed in paper mode.
// Reserves are decimal strings in human units of the named token.
type PoolSeed struct {
	TokenA   string `toml:"token_a"`
	TokenB   string `toml:"token_b"`
	ReserveA string `toml:"reserve_a"`
	ReserveB string `toml:"reserve_b"`
}

// AssetAmount pairs a token symbol with a decimal amount in human units.
type AssetAmount struct {
	Asset  string `toml:"asset"`
	Amount string `toml:"amount"`
}

// PaperConfig holds the simulated-venue world used by paper mode: seeded
// pools, lender reserves, and the cycle scanner cadence.
type PaperConfig struct {
	ScanInterval    duration      `toml:"scan_interval"`
	BorrowAsset     string        `toml:"borrow_asset"`
	Borrow          string        `toml:"borrow"`
	MinProfit       string        `toml:"min_profit"`
	Pools           []PoolSeed    `toml:"pools"`
	LenderReserves  []AssetAmount `toml:"lender_reserves"`
	FunderBalance   string        `toml:"funder_balance"`
	FunderAllowance string        `toml:"funder_allowance"`
}

// StoreConfig selects the durable backend for nonces and the journal.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the single-file store parameters.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. Redis backs the unit lock,
// the event fan-out channel, and API rate limiting; when disabled the daemon
// falls back to in-process equivalents.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters for journal
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the journal archiver cadence.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
}

// ServerConfig holds HTTP API parameters. Requests authenticate with either
// the bearer token or an HMAC key pair; when both are empty the API is open.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AuthToken   string   `toml:"auth_token"`
	APIKey      string   `toml:"api_key"`
	APISecret   string   `toml:"api_secret"`
	RatePerMin  int      `toml:"rate_per_min"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			DomainName:    "ApexArb",
			DomainVersion: "1",
			ChainID:       137,
			NoncePolicy:   "counter",
		},
		Engine: EngineConfig{
			SettlePolicy: "strict",
			PremiumBps:   9,
			QueueSize:    64,
			PlanCooldown: duration{2 * time.Minute},
			LockKey:      "arbd:unit",
			LockTTL:      duration{30 * time.Second},
		},
		Paper: PaperConfig{
			ScanInterval: duration{5 * time.Second},
			BorrowAsset:  "USDC",
			Borrow:       "10000",
			MinProfit:    "1",
			Pools: []PoolSeed{
				{TokenA: "USDC", TokenB: "WETH", ReserveA: "10000000", ReserveB: "2500"},
				{TokenA: "WETH", TokenB: "DAI", ReserveA: "2000", ReserveB: "8200000"},
				{TokenA: "DAI", TokenB: "USDC", ReserveA: "9000000", ReserveB: "9050000"},
			},
			LenderReserves:  []AssetAmount{{Asset: "USDC", Amount: "1000000"}},
			FunderBalance:   "1000",
			FunderAllowance: "1000",
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "arbd.db",
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			KeyPrefix:  "arbd:",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbd-journal",
			Prefix:         "journal/",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Interval:  duration{time.Hour},
			BatchSize: 256,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			RatePerMin:  120,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"loan_executed", "arbitrage_failed", "withdrawal"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"paper":   true,
	"archive": true,
	"sign":    true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validNoncePolicies enumerates the accepted values for Gateway.NoncePolicy.
var validNoncePolicies = map[string]bool{
	"counter": true,
	"set":     true,
}

// validSettlePolicies enumerates the accepted values for Engine.SettlePolicy.
var validSettlePolicies = map[string]bool{
	"strict":  true,
	"lenient": true,
}

// validStoreBackends enumerates the accepted values for Store.Backend.
var validStoreBackends = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
}

// validAmount reports whether s parses as a strictly positive decimal.
func validAmount(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsPositive()
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, paper, archive, sign, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is required only for the signing CLI mode.
	if c.Mode == "sign" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode sign")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Gateway
	if c.Gateway.DomainName == "" {
		errs = append(errs, "gateway: domain_name must not be empty")
	}
	if c.Gateway.DomainVersion == "" {
		errs = append(errs, "gateway: domain_version must not be empty")
	}
	if c.Gateway.ChainID == 0 {
		errs = append(errs, "gateway: chain_id must be positive")
	}
	if !validNoncePolicies[c.Gateway.NoncePolicy] {
		errs = append(errs, fmt.Sprintf("gateway: unknown nonce_policy %q (valid: counter, set)", c.Gateway.NoncePolicy))
	}

	// Engine
	if !validSettlePolicies[c.Engine.SettlePolicy] {
		errs = append(errs, fmt.Sprintf("engine: unknown settle_policy %q (valid: strict, lenient)", c.Engine.SettlePolicy))
	}
	if c.Engine.PremiumBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("engine: premium_bps must be below 10000, got %d", c.Engine.PremiumBps))
	}
	if c.Engine.QueueSize < 1 {
		errs = append(errs, "engine: queue_size must be >= 1")
	}
	if c.Engine.PlanCooldown.Duration < 0 {
		errs = append(errs, "engine: plan_cooldown must not be negative")
	}
	if c.Engine.LockKey == "" {
		errs = append(errs, "engine: lock_key must not be empty")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}

	// Serve and full modes run against operator-supplied accounts; paper
	// mode generates throwaway accounts for any left empty.
	needsAccounts := c.Mode == "serve" || c.Mode == "full"
	if needsAccounts {
		if !common.IsHexAddress(c.Accounts.Engine) {
			errs = append(errs, fmt.Sprintf("accounts: engine %q is not a valid address", c.Accounts.Engine))
		}
		if !common.IsHexAddress(c.Accounts.Owner) {
			errs = append(errs, fmt.Sprintf("accounts: owner %q is not a valid address", c.Accounts.Owner))
		}
		if c.Engine.SettlePolicy == "lenient" && c.Accounts.Funder == "" {
			errs = append(errs, "accounts: funder is required when engine.settle_policy is lenient")
		}
	}
	if c.Accounts.Funder != "" && !common.IsHexAddress(c.Accounts.Funder) {
		errs = append(errs, fmt.Sprintf("accounts: funder %q is not a valid address", c.Accounts.Funder))
	}

	// Paper
	if c.Mode == "paper" || c.Mode == "full" {
		if c.Paper.ScanInterval.Duration <= 0 {
			errs = append(errs, "paper: scan_interval must be > 0")
		}
		if c.Paper.BorrowAsset == "" {
			errs = append(errs, "paper: borrow_asset must not be empty")
		}
		if !validAmount(c.Paper.Borrow) {
			errs = append(errs, fmt.Sprintf("paper: borrow %q must be a positive decimal", c.Paper.Borrow))
		}
		if c.Paper.MinProfit != "" && !validAmount(c.Paper.MinProfit) {
			errs = append(errs, fmt.Sprintf("paper: min_profit %q must be a positive decimal", c.Paper.MinProfit))
		}
		if len(c.Paper.Pools) == 0 {
			errs = append(errs, "paper: at least one pool must be seeded")
		}
		for i, p := range c.Paper.Pools {
			if p.TokenA == "" || p.TokenB == "" {
				errs = append(errs, fmt.Sprintf("paper: pools[%d] must name both tokens", i))
				continue
			}
			if strings.EqualFold(p.TokenA, p.TokenB) {
				errs = append(errs, fmt.Sprintf("paper: pools[%d] pairs %s with itself", i, p.TokenA))
			}
			if !validAmount(p.ReserveA) || !validAmount(p.ReserveB) {
				errs = append(errs, fmt.Sprintf("paper: pools[%d] reserves must be positive decimals", i))
			}
		}
		for i, r := range c.Paper.LenderReserves {
			if r.Asset == "" || !validAmount(r.Amount) {
				errs = append(errs, fmt.Sprintf("paper: lender_reserves[%d] must name an asset and a positive decimal amount", i))
			}
		}
		if c.Paper.FunderBalance != "" && !validAmount(c.Paper.FunderBalance) {
			errs = append(errs, fmt.Sprintf("paper: funder_balance %q must be a positive decimal", c.Paper.FunderBalance))
		}
		if c.Paper.FunderAllowance != "" && !validAmount(c.Paper.FunderAllowance) {
			errs = append(errs, fmt.Sprintf("paper: funder_allowance %q must be a positive decimal", c.Paper.FunderAllowance))
		}
	}

	// Store
	if !validStoreBackends[c.Store.Backend] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, sqlite, postgres)", c.Store.Backend))
	}
	if c.Store.Backend == "sqlite" && c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}
	if c.Store.Backend == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 / Archive
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Archive.Enabled || c.Mode == "archive" {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RatePerMin < 0 {
			errs = append(errs, "server: rate_per_min must not be negative")
		}
		ak := c.Server.APIKey != ""
		as := c.Server.APISecret != ""
		if ak != as {
			errs = append(errs, "server: api_key and api_secret must be set together")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ARBD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBD_WALLET_KEY_PASSWORD")

	// ── Gateway ──
	setStr(&cfg.Gateway.DomainName, "ARBD_GATEWAY_DOMAIN_NAME")
	setStr(&cfg.Gateway.DomainVersion, "ARBD_GATEWAY_DOMAIN_VERSION")
	setUint64(&cfg.Gateway.ChainID, "ARBD_GATEWAY_CHAIN_ID")
	setStr(&cfg.Gateway.NoncePolicy, "ARBD_GATEWAY_NONCE_POLICY")

	// ── Engine ──
	setStr(&cfg.Engine.SettlePolicy, "ARBD_ENGINE_SETTLE_POLICY")
	setUint64(&cfg.Engine.PremiumBps, "ARBD_ENGINE_PREMIUM_BPS")
	setInt(&cfg.Engine.QueueSize, "ARBD_ENGINE_QUEUE_SIZE")
	setDuration(&cfg.Engine.PlanCooldown, "ARBD_ENGINE_PLAN_COOLDOWN")
	setStr(&cfg.Engine.LockKey, "ARBD_ENGINE_LOCK_KEY")
	setDuration(&cfg.Engine.LockTTL, "ARBD_ENGINE_LOCK_TTL")

	// ── Accounts ──
	setStr(&cfg.Accounts.Engine, "ARBD_ACCOUNTS_ENGINE")
	setStr(&cfg.Accounts.Owner, "ARBD_ACCOUNTS_OWNER")
	setStr(&cfg.Accounts.Funder, "ARBD_ACCOUNTS_FUNDER")

	// ── Paper ──
	setDuration(&cfg.Paper.ScanInterval, "ARBD_PAPER_SCAN_INTERVAL")
	setStr(&cfg.Paper.BorrowAsset, "ARBD_PAPER_BORROW_ASSET")
	setStr(&cfg.Paper.Borrow, "ARBD_PAPER_BORROW")
	setStr(&cfg.Paper.MinProfit, "ARBD_PAPER_MIN_PROFIT")
	setStr(&cfg.Paper.FunderBalance, "ARBD_PAPER_FUNDER_BALANCE")
	setStr(&cfg.Paper.FunderAllowance, "ARBD_PAPER_FUNDER_ALLOWANCE")

	// ── Store ──
	setStr(&cfg.Store.Backend, "ARBD_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "ARBD_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBD_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "ARBD_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "ARBD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBD_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "ARBD_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBD_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARBD_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBD_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBD_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ARBD_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ARBD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ARBD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "ARBD_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBD_SERVER_PORT")
	setStr(&cfg.Server.AuthToken, "ARBD_SERVER_AUTH_TOKEN")
	setStr(&cfg.Server.APIKey, "ARBD_SERVER_API_KEY")
	setStr(&cfg.Server.APISecret, "ARBD_SERVER_API_SECRET")
	setInt(&cfg.Server.RatePerMin, "ARBD_SERVER_RATE_PER_MIN")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBD_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBD_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "ARBD_METRICS_ENABLED")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBD_MODE")
	setStr(&cfg.LogLevel, "ARBD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

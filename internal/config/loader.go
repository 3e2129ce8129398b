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
// built-in defaults, applies CARDTRADER_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CARDTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CARDTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CARDTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CARDTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CARDTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CARDTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CARDTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CARDTRADER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CARDTRADER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CARDTRADER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CARDTRADER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CARDTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CARDTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CARDTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CARDTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CARDTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CARDTRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CARDTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CARDTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "CARDTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CARDTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CARDTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CARDTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CARDTRADER_S3_FORCE_PATH_STYLE")

	// ── eBay ──
	setStr(&cfg.Ebay.ClientID, "CARDTRADER_EBAY_CLIENT_ID")
	setStr(&cfg.Ebay.ClientSecret, "CARDTRADER_EBAY_CLIENT_SECRET")
	setStr(&cfg.Ebay.BaseURL, "CARDTRADER_EBAY_BASE_URL")
	setStr(&cfg.Ebay.TokenURL, "CARDTRADER_EBAY_TOKEN_URL")
	setStr(&cfg.Ebay.MarketplaceID, "CARDTRADER_EBAY_MARKETPLACE_ID")
	setInt(&cfg.Ebay.SearchLimit, "CARDTRADER_EBAY_SEARCH_LIMIT")
	setInt(&cfg.Ebay.RateLimit, "CARDTRADER_EBAY_RATE_LIMIT")
	setDuration(&cfg.Ebay.RateWindow, "CARDTRADER_EBAY_RATE_WINDOW")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinProfitMargin, "CARDTRADER_DETECTOR_MIN_PROFIT_MARGIN")
	setFloat64(&cfg.Detector.MinProfitAmount, "CARDTRADER_DETECTOR_MIN_PROFIT_AMOUNT")
	setFloat64(&cfg.Detector.MaxRiskScore, "CARDTRADER_DETECTOR_MAX_RISK_SCORE")
	setInt(&cfg.Detector.MaxOpportunitiesPerCard, "CARDTRADER_DETECTOR_MAX_OPPORTUNITIES_PER_CARD")
	setFloat64(&cfg.Detector.MaxPriceRatio, "CARDTRADER_DETECTOR_MAX_PRICE_RATIO")
	setInt(&cfg.Detector.MaxCandidatesPerSide, "CARDTRADER_DETECTOR_MAX_CANDIDATES_PER_SIDE")
	setInt(&cfg.Detector.ConditionTolerance, "CARDTRADER_DETECTOR_CONDITION_TOLERANCE")
	setDuration(&cfg.Detector.FreshnessWindow, "CARDTRADER_DETECTOR_FRESHNESS_WINDOW")
	setDuration(&cfg.Detector.OpportunityTTL, "CARDTRADER_DETECTOR_OPPORTUNITY_TTL")
	setDuration(&cfg.Detector.ListingTTL, "CARDTRADER_DETECTOR_LISTING_TTL")
	setInt(&cfg.Detector.MaxAttempts, "CARDTRADER_DETECTOR_MAX_ATTEMPTS")
	setDuration(&cfg.Detector.RetryBackoff, "CARDTRADER_DETECTOR_RETRY_BACKOFF")

	// ── Scheduler ──
	setStringSlice(&cfg.Scheduler.PriorityCards, "CARDTRADER_SCHEDULER_PRIORITY_CARDS")
	setStringSlice(&cfg.Scheduler.PopularCards, "CARDTRADER_SCHEDULER_POPULAR_CARDS")
	setDuration(&cfg.Scheduler.HourlyInterval, "CARDTRADER_SCHEDULER_HOURLY_INTERVAL")
	setDuration(&cfg.Scheduler.DailyInterval, "CARDTRADER_SCHEDULER_DAILY_INTERVAL")
	setDuration(&cfg.Scheduler.PriorityInterval, "CARDTRADER_SCHEDULER_PRIORITY_INTERVAL")
	setInt(&cfg.Scheduler.HourlyTopN, "CARDTRADER_SCHEDULER_HOURLY_TOP_N")
	setInt(&cfg.Scheduler.PriorityTopN, "CARDTRADER_SCHEDULER_PRIORITY_TOP_N")
	setInt(&cfg.Scheduler.MinActiveOpportunities, "CARDTRADER_SCHEDULER_MIN_ACTIVE_OPPORTUNITIES")
	setFloat64(&cfg.Scheduler.PriorityMaxPrice, "CARDTRADER_SCHEDULER_PRIORITY_MAX_PRICE")
	setFloat64(&cfg.Scheduler.DefaultMaxPrice, "CARDTRADER_SCHEDULER_DEFAULT_MAX_PRICE")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.ScrapeEnabled, "CARDTRADER_PIPELINE_SCRAPE_ENABLED")
	setDuration(&cfg.Pipeline.ScrapeInterval, "CARDTRADER_PIPELINE_SCRAPE_INTERVAL")
	setDuration(&cfg.Pipeline.SweepInterval, "CARDTRADER_PIPELINE_SWEEP_INTERVAL")
	setDuration(&cfg.Pipeline.ArchiveInterval, "CARDTRADER_PIPELINE_ARCHIVE_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "CARDTRADER_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Pipeline.SearchCooldown, "CARDTRADER_PIPELINE_SEARCH_COOLDOWN")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CARDTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CARDTRADER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "CARDTRADER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "CARDTRADER_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CARDTRADER_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CARDTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CARDTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CARDTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CARDTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CARDTRADER_MODE")
	setStr(&cfg.LogLevel, "CARDTRADER_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

// Package config defines the top-level configuration for the card trader
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CARDTRADER_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Ebay      EbayConfig      `toml:"ebay"`
	Detector  DetectorConfig  `toml:"detector"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EbayConfig holds eBay Browse API credentials and request parameters.
type EbayConfig struct {
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	BaseURL       string `toml:"base_url"`
	TokenURL      string `toml:"token_url"`
	MarketplaceID string `toml:"marketplace_id"`
	SearchLimit   int    `toml:"search_limit"`
	// RateLimit requests per RateWindow across all scraper workers.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// DetectorConfig holds the arbitrage detection thresholds. The defaults are
// reference values; the ratio, candidate and tolerance bounds are performance
// heuristics and deliberately tunable.
type DetectorConfig struct {
	MinProfitMargin         float64  `toml:"min_profit_margin"`
	MinProfitAmount         float64  `toml:"min_profit_amount"`
	MaxRiskScore            float64  `toml:"max_risk_score"`
	MaxOpportunitiesPerCard int      `toml:"max_opportunities_per_card"`
	MaxPriceRatio           float64  `toml:"max_price_ratio"`
	MaxCandidatesPerSide    int      `toml:"max_candidates_per_side"`
	ConditionTolerance      int      `toml:"condition_tolerance"`
	FreshnessWindow         duration `toml:"freshness_window"`
	OpportunityTTL          duration `toml:"opportunity_ttl"`
	ListingTTL              duration `toml:"listing_ttl"`
	// Retry policy for workflow-level detection retries.
	MaxAttempts  int      `toml:"max_attempts"`
	RetryBackoff duration `toml:"retry_backoff"`
}

// SchedulerConfig holds the card watchlists and check cadences.
type SchedulerConfig struct {
	PriorityCards          []string `toml:"priority_cards"`
	PopularCards           []string `toml:"popular_cards"`
	HourlyInterval         duration `toml:"hourly_interval"`
	DailyInterval          duration `toml:"daily_interval"`
	PriorityInterval       duration `toml:"priority_interval"`
	HourlyTopN             int      `toml:"hourly_top_n"`
	PriorityTopN           int      `toml:"priority_top_n"`
	MinActiveOpportunities int      `toml:"min_active_opportunities"`
	PriorityMaxPrice       float64  `toml:"priority_max_price"`
	DefaultMaxPrice        float64  `toml:"default_max_price"`
}

// PipelineConfig holds scraping, sweeping and archiving parameters.
type PipelineConfig struct {
	ScrapeEnabled        bool     `toml:"scrape_enabled"`
	ScrapeInterval       duration `toml:"scrape_interval"`
	SweepInterval        duration `toml:"sweep_interval"`
	ArchiveInterval      duration `toml:"archive_interval"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	SearchCooldown       duration `toml:"search_cooldown"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit requests per minute per client IP. Zero disables limiting.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "cardtrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "cardtrader-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Ebay: EbayConfig{
			BaseURL:       "https://api.ebay.com/buy/browse/v1",
			TokenURL:      "https://api.ebay.com/identity/v1/oauth2/token",
			MarketplaceID: "EBAY_US",
			SearchLimit:   100,
			RateLimit:     5,
			RateWindow:    duration{time.Second},
		},
		Detector: DetectorConfig{
			MinProfitMargin:         0.15,
			MinProfitAmount:         5.00,
			MaxRiskScore:            2.0,
			MaxOpportunitiesPerCard: 10,
			MaxPriceRatio:           0.8,
			MaxCandidatesPerSide:    50,
			ConditionTolerance:      1,
			FreshnessWindow:         duration{4 * time.Hour},
			OpportunityTTL:          duration{24 * time.Hour},
			ListingTTL:              duration{24 * time.Hour},
			MaxAttempts:             3,
			RetryBackoff:            duration{2 * time.Second},
		},
		Scheduler: SchedulerConfig{
			PriorityCards: []string{
				"Charizard Base Set",
				"Pikachu Illustrator",
				"Black Lotus Alpha",
			},
			PopularCards: []string{
				"Charizard Base Set",
				"Blastoise Base Set",
				"Venusaur Base Set",
				"Black Lotus Alpha",
				"Mox Ruby Alpha",
			},
			HourlyInterval:         duration{time.Hour},
			DailyInterval:          duration{24 * time.Hour},
			PriorityInterval:       duration{15 * time.Minute},
			HourlyTopN:             3,
			PriorityTopN:           5,
			MinActiveOpportunities: 2,
			PriorityMaxPrice:       5000,
			DefaultMaxPrice:        1000,
		},
		Pipeline: PipelineConfig{
			ScrapeEnabled:        true,
			ScrapeInterval:       duration{5 * time.Minute},
			SweepInterval:        duration{10 * time.Minute},
			ArchiveInterval:      duration{24 * time.Hour},
			ArchiveRetentionDays: 30,
			SearchCooldown:       duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"detect":   true,
	"scrape":   true,
	"schedule": true,
	"server":   true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, scrape, schedule, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// eBay — credentials required whenever scraping can run.
	needsEbay := c.Mode == "scrape" || (c.Mode == "full" && c.Pipeline.ScrapeEnabled)
	if needsEbay {
		if c.Ebay.ClientID == "" || c.Ebay.ClientSecret == "" {
			errs = append(errs, "ebay: client_id and client_secret are required for mode "+c.Mode)
		}
	}
	if c.Ebay.SearchLimit < 1 || c.Ebay.SearchLimit > 200 {
		errs = append(errs, fmt.Sprintf("ebay: search_limit must be 1-200, got %d", c.Ebay.SearchLimit))
	}

	// Detector
	if c.Detector.MinProfitMargin < 0 {
		errs = append(errs, "detector: min_profit_margin must be >= 0")
	}
	if c.Detector.MinProfitAmount < 0 {
		errs = append(errs, "detector: min_profit_amount must be >= 0")
	}
	if c.Detector.MaxRiskScore < 1.0 || c.Detector.MaxRiskScore > 5.0 {
		errs = append(errs, fmt.Sprintf("detector: max_risk_score must be within 1.0-5.0, got %g", c.Detector.MaxRiskScore))
	}
	if c.Detector.MaxOpportunitiesPerCard < 1 {
		errs = append(errs, "detector: max_opportunities_per_card must be >= 1")
	}
	if c.Detector.MaxPriceRatio <= 0 || c.Detector.MaxPriceRatio > 1 {
		errs = append(errs, fmt.Sprintf("detector: max_price_ratio must be within (0,1], got %g", c.Detector.MaxPriceRatio))
	}
	if c.Detector.MaxCandidatesPerSide < 1 {
		errs = append(errs, "detector: max_candidates_per_side must be >= 1")
	}
	if c.Detector.ConditionTolerance < 0 {
		errs = append(errs, "detector: condition_tolerance must be >= 0")
	}
	if c.Detector.FreshnessWindow.Duration <= 0 {
		errs = append(errs, "detector: freshness_window must be > 0")
	}
	if c.Detector.OpportunityTTL.Duration <= 0 {
		errs = append(errs, "detector: opportunity_ttl must be > 0")
	}
	if c.Detector.MaxAttempts < 1 {
		errs = append(errs, "detector: max_attempts must be >= 1")
	}

	// Scheduler
	if c.Mode == "schedule" || c.Mode == "full" {
		if len(c.Scheduler.PriorityCards) == 0 && len(c.Scheduler.PopularCards) == 0 {
			errs = append(errs, "scheduler: at least one of priority_cards or popular_cards must be set for mode "+c.Mode)
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

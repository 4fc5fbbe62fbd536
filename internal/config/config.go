package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/accumwatch/engine/internal/secrets"
)

// AuthMode represents the authentication mode for the transfer feed
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeAPIKey AuthMode = "api_key"
)

// Thresholds is the immutable detection configuration handed to the
// aggregator and every detector call. Loaded once at startup; the system
// refuses to run detectors with undefined core thresholds.
type Thresholds struct {
	// Score floors
	SignalThreshold            float64 // global floor, signals below are never emitted
	WhaleInflowScoreFloor      float64 // per-type persistence floor
	ConcentratedBuysScoreFloor float64

	// Volume triggers (token units, $-equivalent)
	WhaleBuyThreshold           float64
	WhaleSellThreshold          float64
	ExchangeDepositThreshold    float64
	ExchangeWithdrawalThreshold float64
	LPInflowThreshold           float64

	// Breakout flag for the derived token metrics
	BreakoutVolumeThreshold      float64
	BreakoutPriceChangeThreshold float64

	// Detector shape parameters
	ConcentrationGini         float64 // Gini floor for CONCENTRATED_BUYS
	ConcentratedBuysMinVolume float64
	HoldRatio                 float64 // held-volume ratio floor for HOLDING_PATTERNS
	HoldingMinVolume          float64
	MinBuyTransfers           int // minimum buy count for CONCENTRATED_BUYS

	// Downstream floors
	AlertScoreFloor  float64 // signals at or above are alert-eligible
	SmartWalletScore float64 // performance score making a wallet "smart"
}

// Validate rejects undefined or non-positive core thresholds. Missing
// safety-critical values are fatal at load time, never defaulted per-sweep.
func (t *Thresholds) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"SIGNAL_THRESHOLD", t.SignalThreshold},
		{"WHALE_INFLOW_SCORE_FLOOR", t.WhaleInflowScoreFloor},
		{"CONCENTRATED_BUYS_SCORE_FLOOR", t.ConcentratedBuysScoreFloor},
		{"WHALE_BUY_THRESHOLD", t.WhaleBuyThreshold},
		{"WHALE_SELL_THRESHOLD", t.WhaleSellThreshold},
		{"EXCHANGE_DEPOSIT_THRESHOLD", t.ExchangeDepositThreshold},
		{"EXCHANGE_WITHDRAWAL_THRESHOLD", t.ExchangeWithdrawalThreshold},
		{"LP_INFLOW_THRESHOLD", t.LPInflowThreshold},
		{"BREAKOUT_VOLUME_THRESHOLD", t.BreakoutVolumeThreshold},
		{"BREAKOUT_PRICE_CHANGE_THRESHOLD", t.BreakoutPriceChangeThreshold},
		{"CONCENTRATION_GINI", t.ConcentrationGini},
		{"CONCENTRATED_BUYS_MIN_VOLUME", t.ConcentratedBuysMinVolume},
		{"HOLD_RATIO", t.HoldRatio},
		{"HOLDING_MIN_VOLUME", t.HoldingMinVolume},
		{"MIN_BUY_TRANSFERS", float64(t.MinBuyTransfers)},
		{"ALERT_SCORE_FLOOR", t.AlertScoreFloor},
		{"SMART_WALLET_SCORE", t.SmartWalletScore},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return fmt.Errorf("%s must be set to a positive value", c.name)
		}
	}
	if t.SignalThreshold >= 95 {
		return fmt.Errorf("SIGNAL_THRESHOLD must be below the 95 score ceiling")
	}
	if t.ConcentrationGini >= 1 || t.HoldRatio > 1 {
		return fmt.Errorf("CONCENTRATION_GINI and HOLD_RATIO are ratios in (0, 1]")
	}
	return nil
}

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Transfer feed
	FeedBaseURL      string
	FeedAuthMode     AuthMode
	FeedBearerToken  string
	FeedAPIKey       string
	FeedExtraHeaders map[string]string
	FeedTransfersRPS float64
	FeedStatsRPS     float64
	FeedBatchLimit   int

	// Detection
	Thresholds Thresholds

	// Sweep scheduling
	SweepIntervalSec  int
	SweepLookbackHrs  int
	SweepCooldownMins int
	SweepWorkers      int

	// Dedup tolerance
	DedupWalletOverlap   float64 // minimum Jaccard overlap of wallet sets
	DedupVolumeTolerance float64 // relative volume difference treated as identical

	// Ingestion
	IngestIntervalSec int

	// Wallet performance
	PerfHistoryLimit int

	// Alerts
	AlertMode        string // log, telegram, smtp, comma-separated for multi
	TelegramBotToken string
	TelegramChatID   string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	SMTPFrom         string
	SMTPTo           []string

	// Metrics/Health
	HealthPort int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:         getEnv("ENVIRONMENT", "production"),
		DatabaseDSN:         secrets.GetOptionalSecret("DATABASE_DSN", "accumwatch:accumwatch@tcp(mysql:3306)/accumwatch?parseTime=true"),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime: time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		FeedBaseURL:         getEnv("FEED_BASE_URL", "https://feed.accumwatch.io"),
		FeedAuthMode:        AuthMode(getEnv("FEED_AUTH_MODE", "none")),
		FeedBearerToken:     secrets.GetOptionalSecret("FEED_BEARER_TOKEN", ""),
		FeedAPIKey:          secrets.GetOptionalSecret("FEED_API_KEY", ""),
		FeedTransfersRPS:    getEnvFloat("FEED_TRANSFERS_RPS", 2.0),
		FeedStatsRPS:        getEnvFloat("FEED_STATS_RPS", 5.0),
		FeedBatchLimit:      getEnvInt("FEED_BATCH_LIMIT", 5000),
		Thresholds: Thresholds{
			SignalThreshold:              getEnvFloat("SIGNAL_THRESHOLD", 60),
			WhaleInflowScoreFloor:        getEnvFloat("WHALE_INFLOW_SCORE_FLOOR", 80),
			ConcentratedBuysScoreFloor:   getEnvFloat("CONCENTRATED_BUYS_SCORE_FLOOR", 70),
			WhaleBuyThreshold:            getEnvFloat("WHALE_BUY_THRESHOLD", 100000),
			WhaleSellThreshold:           getEnvFloat("WHALE_SELL_THRESHOLD", 100000),
			ExchangeDepositThreshold:     getEnvFloat("EXCHANGE_DEPOSIT_THRESHOLD", 50000),
			ExchangeWithdrawalThreshold:  getEnvFloat("EXCHANGE_WITHDRAWAL_THRESHOLD", 50000),
			LPInflowThreshold:            getEnvFloat("LP_INFLOW_THRESHOLD", 50000),
			BreakoutVolumeThreshold:      getEnvFloat("BREAKOUT_VOLUME_THRESHOLD", 2.0),
			BreakoutPriceChangeThreshold: getEnvFloat("BREAKOUT_PRICE_CHANGE_THRESHOLD", 0.15),
			ConcentrationGini:            getEnvFloat("CONCENTRATION_GINI", 0.6),
			ConcentratedBuysMinVolume:    getEnvFloat("CONCENTRATED_BUYS_MIN_VOLUME", 25000),
			HoldRatio:                    getEnvFloat("HOLD_RATIO", 0.8),
			HoldingMinVolume:             getEnvFloat("HOLDING_MIN_VOLUME", 25000),
			MinBuyTransfers:              getEnvInt("MIN_BUY_TRANSFERS", 3),
			AlertScoreFloor:              getEnvFloat("ALERT_SCORE_FLOOR", 75),
			SmartWalletScore:             getEnvFloat("SMART_WALLET_SCORE", 70),
		},
		SweepIntervalSec:     getEnvInt("SWEEP_INTERVAL_SEC", 300),
		SweepLookbackHrs:     getEnvInt("SWEEP_LOOKBACK_HRS", 24),
		SweepCooldownMins:    getEnvInt("SWEEP_COOLDOWN_MINS", 60),
		SweepWorkers:         getEnvInt("SWEEP_WORKERS", 8),
		DedupWalletOverlap:   getEnvFloat("DEDUP_WALLET_OVERLAP", 0.8),
		DedupVolumeTolerance: getEnvFloat("DEDUP_VOLUME_TOLERANCE", 0.1),
		IngestIntervalSec:    getEnvInt("INGEST_INTERVAL_SEC", 30),
		PerfHistoryLimit:     getEnvInt("PERF_HISTORY_LIMIT", 2000),
		AlertMode:            getEnv("ALERT_MODE", "log"),
		TelegramBotToken:     secrets.GetOptionalSecret("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:       getEnv("TELEGRAM_CHAT_ID", ""),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getEnvInt("SMTP_PORT", 587),
		SMTPUser:             getEnv("SMTP_USER", ""),
		SMTPPassword:         secrets.GetOptionalSecret("SMTP_PASSWORD", ""),
		SMTPFrom:             getEnv("SMTP_FROM", "accumwatch@example.com"),
		HealthPort:           getEnvInt("HEALTH_PORT", 8080),
	}

	// Parse SMTP_TO (comma-separated)
	smtpTo := getEnv("SMTP_TO", "")
	if smtpTo != "" {
		cfg.SMTPTo = parseCSV(smtpTo)
	}

	// Parse extra headers JSON
	extraHeadersJSON := getEnv("FEED_EXTRA_HEADERS", "{}")
	if err := json.Unmarshal([]byte(extraHeadersJSON), &cfg.FeedExtraHeaders); err != nil {
		return nil, fmt.Errorf("invalid FEED_EXTRA_HEADERS JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	if err := c.Thresholds.Validate(); err != nil {
		return err
	}

	if c.SweepLookbackHrs*60 <= c.SweepCooldownMins {
		return fmt.Errorf("SWEEP_LOOKBACK_HRS must exceed SWEEP_COOLDOWN_MINS")
	}
	if c.SweepWorkers <= 0 {
		return fmt.Errorf("SWEEP_WORKERS must be positive")
	}
	if c.DedupWalletOverlap <= 0 || c.DedupWalletOverlap > 1 {
		return fmt.Errorf("DEDUP_WALLET_OVERLAP must be in (0, 1]")
	}
	if c.DedupVolumeTolerance < 0 || c.DedupVolumeTolerance >= 1 {
		return fmt.Errorf("DEDUP_VOLUME_TOLERANCE must be in [0, 1)")
	}

	// Validate feed auth mode
	switch c.FeedAuthMode {
	case AuthModeNone:
		// No validation needed
	case AuthModeBearer:
		if c.FeedBearerToken == "" {
			return fmt.Errorf("FEED_BEARER_TOKEN is required when FEED_AUTH_MODE is bearer")
		}
	case AuthModeAPIKey:
		if c.FeedAPIKey == "" {
			return fmt.Errorf("FEED_API_KEY is required when FEED_AUTH_MODE is api_key")
		}
	default:
		return fmt.Errorf("invalid FEED_AUTH_MODE: %s (must be none, bearer, or api_key)", c.FeedAuthMode)
	}

	// Validate alert mode (comma-separated list)
	modes := strings.Split(c.AlertMode, ",")
	hasTelegram := false
	hasSMTP := false

	for _, mode := range modes {
		mode = strings.TrimSpace(mode)
		switch mode {
		case "log", "telegram", "smtp":
			if mode == "telegram" {
				hasTelegram = true
			}
			if mode == "smtp" {
				hasSMTP = true
			}
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log, telegram, smtp)", mode)
		}
	}

	if hasTelegram && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when telegram is in ALERT_MODE")
	}

	if hasSMTP && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when smtp is in ALERT_MODE")
	}

	return nil
}

// SweepWindow returns the detection window [now-lookback, now-cooldown).
// The cooldown keeps data still eligible for revision out of scoring.
func (c *Config) SweepWindow(now time.Time) (start, end int64) {
	start = now.Add(-time.Duration(c.SweepLookbackHrs) * time.Hour).Unix()
	end = now.Add(-time.Duration(c.SweepCooldownMins) * time.Minute).Unix()
	return start, end
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

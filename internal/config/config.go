package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
	"gopkg.in/yaml.v3"

	"EquityWatch/internal/logging"
	"EquityWatch/internal/model"
	"EquityWatch/internal/screener"
	"EquityWatch/internal/watchlist"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider    string `yaml:"provider"` // "yahoo", "financego", "csv" or "mock"
		BaseURL     string `yaml:"base_url"`
		CSVDir      string `yaml:"csv_dir"`
		HistoryDays int    `yaml:"history_days"`
	} `yaml:"data_source"`
	Schedule struct {
		SyncCron      string `yaml:"sync_cron"`
		ReconcileCron string `yaml:"reconcile_cron"`
		RefreshCron   string `yaml:"refresh_cron"`
		SweepCron     string `yaml:"sweep_cron"`
		ValuationCron string `yaml:"valuation_cron"`
	} `yaml:"schedule"`
	Screening struct {
		Policy           string  `yaml:"policy"` // "simple" or "strict"
		Drop             float64 `yaml:"drop"`
		Recovery         float64 `yaml:"recovery"`
		VolumeMultiplier float64 `yaml:"volume_multiplier"`
		LookbackMonths   int     `yaml:"lookback_months"`
	} `yaml:"screening"`
	Watchlist struct {
		RefreshWindowHours int    `yaml:"refresh_window_hours"`
		MaxAgeMonths       int    `yaml:"max_age_months"`
		ExpiryBasis        string `yaml:"expiry_basis"` // "refreshed" or "added"
	} `yaml:"watchlist"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log        logging.LogConfig `yaml:"log"`
	Owners     []string          `yaml:"owners"`
	Portfolios []string          `yaml:"portfolios"`
	Currency   string            `yaml:"currency"`
	Proxy      string            `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{Log: logging.DefaultLogConfig()}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("YAHOO_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCREENING_POLICY"); v != "" {
		cfg.Screening.Policy = v
	}
	if v := os.Getenv("WATCHLIST_MAX_AGE_MONTHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watchlist.MaxAgeMonths = n
		}
	}
	if v := os.Getenv("CRON_RECONCILE"); v != "" {
		cfg.Schedule.ReconcileCron = v
	}

	// Defaults
	if cfg.DataSource.Provider == "" {
		cfg.DataSource.Provider = "yahoo"
	}
	if cfg.DataSource.BaseURL == "" {
		cfg.DataSource.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.DataSource.CSVDir == "" {
		cfg.DataSource.CSVDir = "data/bars"
	}
	if cfg.DataSource.HistoryDays == 0 {
		cfg.DataSource.HistoryDays = 800
	}
	if cfg.Schedule.SyncCron == "" {
		cfg.Schedule.SyncCron = "0 30 22 * * 1-5"
	}
	if cfg.Schedule.ReconcileCron == "" {
		cfg.Schedule.ReconcileCron = "0 0 23 * * 1-5"
	}
	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "0 0 * * * *"
	}
	if cfg.Schedule.SweepCron == "" {
		cfg.Schedule.SweepCron = "0 0 3 * * 0"
	}
	if cfg.Schedule.ValuationCron == "" {
		cfg.Schedule.ValuationCron = "0 15 23 * * 1-5"
	}
	if cfg.Screening.Policy == "" {
		cfg.Screening.Policy = screener.SimplePolicy.Name
	}
	if cfg.Watchlist.RefreshWindowHours == 0 {
		cfg.Watchlist.RefreshWindowHours = 24
	}
	if cfg.Watchlist.MaxAgeMonths == 0 {
		cfg.Watchlist.MaxAgeMonths = 6
	}
	if cfg.Watchlist.ExpiryBasis == "" {
		cfg.Watchlist.ExpiryBasis = string(model.ExpireByRefresh)
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/equitywatch.db"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	return cfg, nil
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	switch c.DataSource.Provider {
	case "yahoo", "financego", "csv", "mock":
	default:
		return fmt.Errorf("data_source.provider must be yahoo, financego, csv or mock, got %q", c.DataSource.Provider)
	}
	if c.DataSource.HistoryDays < 0 {
		return fmt.Errorf("data_source.history_days must not be negative")
	}
	if _, err := c.ScreeningPolicy(); err != nil {
		return fmt.Errorf("screening: %w", err)
	}
	if c.Watchlist.RefreshWindowHours < 0 {
		return fmt.Errorf("watchlist.refresh_window_hours must not be negative")
	}
	if c.Watchlist.MaxAgeMonths < 0 {
		return fmt.Errorf("watchlist.max_age_months must not be negative")
	}
	switch model.ExpiryBasis(c.Watchlist.ExpiryBasis) {
	case model.ExpireByRefresh, model.ExpireByAdded:
	default:
		return fmt.Errorf("watchlist.expiry_basis must be refreshed or added, got %q", c.Watchlist.ExpiryBasis)
	}
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required")
	}
	if money.GetCurrency(c.Currency) == nil {
		return fmt.Errorf("currency %q is not a known ISO code", c.Currency)
	}
	return nil
}

// TelegramEnabled reports whether notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// ScreeningPolicy resolves the named preset and applies any non-zero overrides.
func (c *Config) ScreeningPolicy() (screener.Policy, error) {
	p, err := screener.PolicyByName(c.Screening.Policy)
	if err != nil {
		return screener.Policy{}, err
	}
	if c.Screening.Drop != 0 {
		p.Drop = c.Screening.Drop
	}
	if c.Screening.Recovery != 0 {
		p.Recovery = c.Screening.Recovery
	}
	if c.Screening.VolumeMultiplier != 0 {
		p.VolumeMultiplier = c.Screening.VolumeMultiplier
	}
	if c.Screening.LookbackMonths != 0 {
		p.LookbackMonths = c.Screening.LookbackMonths
	}
	if err := p.Validate(); err != nil {
		return screener.Policy{}, err
	}
	return p, nil
}

// WatchlistConfig converts the watchlist section for the lifecycle manager.
func (c *Config) WatchlistConfig() watchlist.Config {
	return watchlist.Config{
		RefreshWindow: time.Duration(c.Watchlist.RefreshWindowHours) * time.Hour,
		MaxAgeMonths:  c.Watchlist.MaxAgeMonths,
		ExpiryBasis:   model.ExpiryBasis(c.Watchlist.ExpiryBasis),
		Reason:        model.DefaultWatchReason,
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Amazon   AmazonConfig   `yaml:"amazon"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Advisor  AdvisorConfig  `yaml:"advisor"`
	Telegram TelegramConfig `yaml:"telegram"`
	Web      WebConfig      `yaml:"web"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AmazonConfig struct {
	Endpoint        string                       `yaml:"endpoint"`
	LWAClientID     string                       `yaml:"lwa_client_id"`
	LWAClientSecret string                       `yaml:"lwa_client_secret"`
	RefreshToken    string                       `yaml:"refresh_token"`
	SellerID        string                       `yaml:"seller_id"`
	Sandbox         bool                         `yaml:"sandbox"`
	Marketplaces    map[string]MarketplaceConfig `yaml:"marketplaces"`
}

type MarketplaceConfig struct {
	Currency string `yaml:"currency"`
	Region   string `yaml:"region"`
}

type PricingConfig struct {
	Interval             string  `yaml:"interval"`
	RiskThresholdPct     float64 `yaml:"risk_threshold_pct"`
	UndercutAmount       float64 `yaml:"undercut_amount"`
	MinCompetitors       int     `yaml:"min_competitors"`
	CostRatio            float64 `yaml:"cost_ratio"`
	HistoryRetentionDays int     `yaml:"history_retention_days"`
	AutoPublish          bool    `yaml:"auto_publish"`
	PublishMethod        string  `yaml:"publish_method"`
}

type AdvisorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func SetDefaults(cfg *Config) {
	if cfg.Amazon.Endpoint == "" {
		if cfg.Amazon.Sandbox {
			cfg.Amazon.Endpoint = "https://sandbox.sellingpartnerapi-na.amazon.com"
		} else {
			cfg.Amazon.Endpoint = "https://sellingpartnerapi-na.amazon.com"
		}
	}
	if cfg.Amazon.Marketplaces == nil {
		cfg.Amazon.Marketplaces = map[string]MarketplaceConfig{
			"ATVPDKIKX0DER": {Currency: "USD", Region: "na"},
		}
	}
	if cfg.Pricing.Interval == "" {
		cfg.Pricing.Interval = "15m"
	}
	if cfg.Pricing.RiskThresholdPct == 0 {
		cfg.Pricing.RiskThresholdPct = 5.0
	}
	if cfg.Pricing.UndercutAmount == 0 {
		cfg.Pricing.UndercutAmount = 0.01
	}
	if cfg.Pricing.MinCompetitors == 0 {
		cfg.Pricing.MinCompetitors = 3
	}
	if cfg.Pricing.CostRatio == 0 {
		cfg.Pricing.CostRatio = 0.7
	}
	if cfg.Pricing.HistoryRetentionDays == 0 {
		cfg.Pricing.HistoryRetentionDays = 90
	}
	if cfg.Pricing.PublishMethod == "" {
		cfg.Pricing.PublishMethod = "listings_items"
	}
	if cfg.Advisor.Model == "" {
		cfg.Advisor.Model = "gpt-4o-mini"
	}
	if cfg.Advisor.TimeoutSeconds == 0 {
		cfg.Advisor.TimeoutSeconds = 60
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Amazon.SellerID == "" {
		return fmt.Errorf("amazon.seller_id is required")
	}
	if c.Amazon.RefreshToken == "" {
		return fmt.Errorf("amazon.refresh_token is required")
	}
	if c.Amazon.LWAClientID == "" || c.Amazon.LWAClientSecret == "" {
		return fmt.Errorf("amazon.lwa_client_id and amazon.lwa_client_secret are required")
	}
	if _, err := time.ParseDuration(c.Pricing.Interval); err != nil {
		return fmt.Errorf("invalid pricing.interval %q: %w", c.Pricing.Interval, err)
	}
	if c.Pricing.PublishMethod != "listings_items" && c.Pricing.PublishMethod != "feeds" {
		return fmt.Errorf("invalid pricing.publish_method %q", c.Pricing.PublishMethod)
	}
	if c.Advisor.Enabled && c.Advisor.APIKey == "" {
		return fmt.Errorf("advisor.api_key is required when advisor is enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func (c *Config) IsSandbox() bool {
	return c.Amazon.Sandbox
}

// Currency returns the listing currency for a marketplace, defaulting to USD
// for marketplaces absent from the config table.
func (c *Config) Currency(marketplaceID string) string {
	if m, ok := c.Amazon.Marketplaces[marketplaceID]; ok && m.Currency != "" {
		return m.Currency
	}
	return "USD"
}

func (c *Config) PricingInterval() time.Duration {
	d, _ := time.ParseDuration(c.Pricing.Interval)
	return d
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Pricing.HistoryRetentionDays) * 24 * time.Hour
}

func (c *Config) AdvisorTimeout() time.Duration {
	return time.Duration(c.Advisor.TimeoutSeconds) * time.Second
}

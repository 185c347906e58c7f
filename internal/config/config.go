// Package config provides configuration management for the TradeLens service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"tradelens/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          logging.LogConfig  `mapstructure:"log"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Billing      BillingConfig      `mapstructure:"billing"`
	Email        EmailConfig        `mapstructure:"email"`
	Cron         CronConfig         `mapstructure:"cron"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Credentials  Credentials        `mapstructure:"-"` // Loaded separately
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	PublicURL    string        `mapstructure:"public_url"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second per user
	RateBurst    int           `mapstructure:"rate_burst"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds the SQL store configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite3, postgres
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig holds cache configuration. An empty RedisURL selects the in-memory cache.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StorageConfig holds journal image storage configuration.
type StorageConfig struct {
	ImagesDir     string `mapstructure:"images_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	MaxImageBytes int64  `mapstructure:"max_image_bytes"`
}

// BillingConfig holds payment provider configuration.
type BillingConfig struct {
	ReturnURL   string            `mapstructure:"return_url"`
	CancelURL   string            `mapstructure:"cancel_url"`
	PayPal      PayPalConfig      `mapstructure:"paypal"`
	Cashfree    CashfreeConfig    `mapstructure:"cashfree"`
	NOWPayments NOWPaymentsConfig `mapstructure:"nowpayments"`
	Plans       []PlanConfig      `mapstructure:"plans"`
}

// PayPalConfig holds non-secret PayPal settings.
type PayPalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	WebhookID string `mapstructure:"webhook_id"`
}

// CashfreeConfig holds non-secret Cashfree settings.
type CashfreeConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	APIVersion string `mapstructure:"api_version"`
}

// NOWPaymentsConfig holds non-secret NOWPayments settings.
type NOWPaymentsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

// PlanConfig describes a purchasable subscription plan.
type PlanConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Price        string `mapstructure:"price"`
	Currency     string `mapstructure:"currency"`
	DurationDays int    `mapstructure:"duration_days"`
}

// EmailConfig holds transactional email configuration.
type EmailConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	SenderName     string        `mapstructure:"sender_name"`
	SenderEmail    string        `mapstructure:"sender_email"`
	BatchSize      int           `mapstructure:"batch_size"`
	Concurrency    int           `mapstructure:"concurrency"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// CronConfig holds schedules for background jobs (six-field cron with seconds).
type CronConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	EmailDispatch     string `mapstructure:"email_dispatch"`
	SubscriptionSweep string `mapstructure:"subscription_sweep"`
	ProfileRefresh    string `mapstructure:"profile_refresh"`
	TradeDigest       string `mapstructure:"trade_digest"`
}

// SubscriptionConfig holds trial and reminder settings.
type SubscriptionConfig struct {
	TrialDays    int `mapstructure:"trial_days"`
	ReminderDays int `mapstructure:"reminder_days"`
}

// NotifyConfig holds the level filter of each notification channel:
// "all", "important" (account, billing and digest events) or "off".
type NotifyConfig struct {
	InApp string `mapstructure:"in_app"`
	Email string `mapstructure:"email"`
}

// Credentials holds API secrets.
type Credentials struct {
	JWTSecret   string                 `mapstructure:"jwt_secret"`
	PayPal      PayPalCredentials      `mapstructure:"paypal"`
	Cashfree    CashfreeCredentials    `mapstructure:"cashfree"`
	NOWPayments NOWPaymentsCredentials `mapstructure:"nowpayments"`
	Brevo       BrevoCredentials       `mapstructure:"brevo"`
}

// PayPalCredentials holds PayPal REST app credentials.
type PayPalCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// CashfreeCredentials holds Cashfree PG credentials.
type CashfreeCredentials struct {
	AppID     string `mapstructure:"app_id"`
	SecretKey string `mapstructure:"secret_key"`
}

// NOWPaymentsCredentials holds NOWPayments credentials.
type NOWPaymentsCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	IPNSecret string `mapstructure:"ipn_secret"`
}

// BrevoCredentials holds the Brevo API key.
type BrevoCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tradelens"
	}
	return filepath.Join(home, ".config", "tradelens")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files are
// replaced by commented templates and defaults are used for that run.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Database.Driver == "sqlite3" && cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(configDir, "tradelens.db")
	}
	if cfg.Storage.ImagesDir == "" {
		cfg.Storage.ImagesDir = filepath.Join(configDir, "images")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("storage.public_base_url", "http://localhost:8080/files")
	v.SetDefault("storage.max_image_bytes", 5<<20)

	v.SetDefault("billing.return_url", "http://localhost:3000/billing/success")
	v.SetDefault("billing.cancel_url", "http://localhost:3000/billing/cancel")
	v.SetDefault("billing.paypal.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("billing.cashfree.base_url", "https://sandbox.cashfree.com")
	v.SetDefault("billing.cashfree.api_version", "2023-08-01")
	v.SetDefault("billing.nowpayments.base_url", "https://api.nowpayments.io")
	v.SetDefault("billing.plans", []map[string]interface{}{
		{"id": "pro_monthly", "name": "Pro Monthly", "price": "19.00", "currency": "USD", "duration_days": 30},
		{"id": "pro_yearly", "name": "Pro Yearly", "price": "190.00", "currency": "USD", "duration_days": 365},
	})

	v.SetDefault("email.base_url", "https://api.brevo.com")
	v.SetDefault("email.sender_name", "TradeLens")
	v.SetDefault("email.sender_email", "no-reply@tradelens.app")
	v.SetDefault("email.batch_size", 25)
	v.SetDefault("email.concurrency", 4)
	v.SetDefault("email.max_attempts", 5)
	v.SetDefault("email.initial_backoff", "1m")
	v.SetDefault("email.max_backoff", "1h")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.email_dispatch", "*/30 * * * * *")
	v.SetDefault("cron.subscription_sweep", "0 0 * * * *")
	v.SetDefault("cron.profile_refresh", "0 */15 * * * *")
	v.SetDefault("cron.trade_digest", "0 0 21 * * *")

	v.SetDefault("subscription.trial_days", 7)
	v.SetDefault("subscription.reminder_days", 3)

	v.SetDefault("notify.in_app", "all")
	v.SetDefault("notify.email", "important")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Use restricted permissions for credentials file
		if err := createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600); err != nil {
			return err
		}
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADELENS_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TRADELENS_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TRADELENS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TRADELENS_JWT_SECRET"); v != "" {
		cfg.Credentials.JWTSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}

	// Payment providers
	if v := os.Getenv("PAYPAL_CLIENT_ID"); v != "" {
		cfg.Credentials.PayPal.ClientID = v
	}
	if v := os.Getenv("PAYPAL_CLIENT_SECRET"); v != "" {
		cfg.Credentials.PayPal.ClientSecret = v
	}
	if v := os.Getenv("CASHFREE_APP_ID"); v != "" {
		cfg.Credentials.Cashfree.AppID = v
	}
	if v := os.Getenv("CASHFREE_SECRET_KEY"); v != "" {
		cfg.Credentials.Cashfree.SecretKey = v
	}
	if v := os.Getenv("NOWPAYMENTS_API_KEY"); v != "" {
		cfg.Credentials.NOWPayments.APIKey = v
	}
	if v := os.Getenv("NOWPAYMENTS_IPN_SECRET"); v != "" {
		cfg.Credentials.NOWPayments.IPNSecret = v
	}

	// Email
	if v := os.Getenv("BREVO_API_KEY"); v != "" {
		cfg.Credentials.Brevo.APIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s (must be 'sqlite3' or 'postgres')", c.Database.Driver)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("rate_limit and rate_burst must be non-negative")
	}
	if c.Subscription.TrialDays < 0 {
		return fmt.Errorf("trial_days must be non-negative")
	}
	if c.Subscription.ReminderDays < 0 {
		return fmt.Errorf("reminder_days must be non-negative")
	}
	if c.Email.MaxAttempts < 1 {
		return fmt.Errorf("email max_attempts must be at least 1")
	}
	for name, level := range map[string]string{"in_app": c.Notify.InApp, "email": c.Notify.Email} {
		switch level {
		case "all", "important", "off":
		default:
			return fmt.Errorf("invalid notify.%s level: %q (must be 'all', 'important' or 'off')", name, level)
		}
	}

	seen := make(map[string]bool)
	for _, p := range c.Billing.Plans {
		if p.ID == "" {
			return fmt.Errorf("plan id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate plan id: %s", p.ID)
		}
		seen[p.ID] = true

		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			return fmt.Errorf("plan %s: price must be a positive decimal", p.ID)
		}
		if p.DurationDays <= 0 {
			return fmt.Errorf("plan %s: duration_days must be positive", p.ID)
		}
		if p.Currency == "" {
			return fmt.Errorf("plan %s: currency is required", p.ID)
		}
	}

	return nil
}

// ValidateServe checks the settings that are only required to run the HTTP API.
func (c *Config) ValidateServe() error {
	if c.Credentials.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required to serve the API (set TRADELENS_JWT_SECRET)")
	}
	return nil
}

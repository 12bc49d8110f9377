// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/settings"
)

// Account modes.
const (
	AccountModeTest = "test"
	AccountModeReal = "real"
)

// Config holds application configuration
type Config struct {
	Port      int    `envconfig:"PORT" default:"8001"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
	DevMode   bool   `envconfig:"DEV_MODE" default:"false"`

	DataDir  string `envconfig:"REBALANCER_DATA_DIR" default:"./data"` // Always absolute after Load
	SeedFile string `envconfig:"SEED_FILE"`                          // Optional YAML portfolio seed

	Account    AccountConfig
	Broker     BrokerConfig
	Alpaca     AlpacaConfig
	Currency   CurrencyConfig
	Limits     LimitsConfig
	Wait       WaitConfig
	Scheduler  SchedulerConfig
	Archive    ArchiveConfig
	Allocation domain.AllocationSettings `ignored:"true"`
}

// AccountConfig selects the brokerage account.
type AccountConfig struct {
	Mode         string `envconfig:"ACCOUNT_MODE" default:"test"`
	TestNumber   string `envconfig:"ACCOUNT_TEST_NUMBER"`
	TestPassword string `envconfig:"ACCOUNT_TEST_PASSWORD"`
	RealNumber   string `envconfig:"ACCOUNT_REAL_NUMBER"`
	RealPassword string `envconfig:"ACCOUNT_REAL_PASSWORD"`
}

// IsTest reports whether orders go to the test account.
func (a AccountConfig) IsTest() bool {
	return a.Mode != AccountModeReal
}

// Number returns the account number for the active mode.
func (a AccountConfig) Number() string {
	if a.IsTest() {
		return a.TestNumber
	}
	return a.RealNumber
}

// Password returns the account password for the active mode.
func (a AccountConfig) Password() string {
	if a.IsTest() {
		return a.TestPassword
	}
	return a.RealPassword
}

// BrokerConfig configures the domestic brokerage gateway.
type BrokerConfig struct {
	BaseURL   string        `envconfig:"BROKER_BASE_URL" default:"http://localhost:9100"`
	AppKey    string        `envconfig:"BROKER_APP_KEY"`
	AppSecret string        `envconfig:"BROKER_APP_SECRET"`
	RateLimit time.Duration `envconfig:"BROKER_RATE_LIMIT" default:"1500ms"`
	Timeout   time.Duration `envconfig:"BROKER_TIMEOUT" default:"30s"`
}

// AlpacaConfig configures the overseas broker.
type AlpacaConfig struct {
	APIKey    string `envconfig:"APCA_API_KEY_ID"`
	APISecret string `envconfig:"APCA_API_SECRET_KEY"`
	BaseURL   string `envconfig:"APCA_API_BASE_URL" default:"https://paper-api.alpaca.markets"`
	DataURL   string `envconfig:"APCA_DATA_URL"`
}

// Enabled reports whether Alpaca credentials are configured.
func (a AlpacaConfig) Enabled() bool {
	return a.APIKey != "" && a.APISecret != ""
}

// CurrencyConfig configures the USD/KRW rate chain.
type CurrencyConfig struct {
	FXURL        string  `envconfig:"FX_URL" default:"https://api.exchangerate-api.com/v4/latest"`
	FallbackRate float64 `envconfig:"FX_FALLBACK_RATE" default:"1186.50"`
}

// LimitsConfig holds the raw allocation fractions.
type LimitsConfig struct {
	Available float64 `envconfig:"AMOUNT_LIMIT_AVAILABLE" default:"0.9"`
	Domestic  float64 `envconfig:"AMOUNT_LIMIT_DOMESTIC" default:"0.19"`
	Overseas  float64 `envconfig:"AMOUNT_LIMIT_OVERSEAS" default:"0.27"`
}

// WaitConfig holds the reconciler defaults.
type WaitConfig struct {
	RetryDelay time.Duration `envconfig:"WAIT_RETRY_DELAY" default:"60s"`
	Timeout    time.Duration `envconfig:"WAIT_TIMEOUT" default:"30m"`
}

// SchedulerConfig holds cron expressions (with seconds).
type SchedulerConfig struct {
	PriceRefresh string `envconfig:"PRICE_REFRESH_SCHEDULE" default:"0 30 8 * * 1-5"`
	CacheCleanup string `envconfig:"CACHE_CLEANUP_SCHEDULE" default:"0 0 3 * * *"`
	Maintenance  string `envconfig:"MAINTENANCE_SCHEDULE" default:"0 0 2 * * *"`
	Vacuum       string `envconfig:"VACUUM_SCHEDULE" default:"0 0 4 * * 0"`
}

// ArchiveConfig configures report archive uploads to S3-compatible storage.
type ArchiveConfig struct {
	Enabled   bool   `envconfig:"ARCHIVE_ENABLED" default:"false"`
	Bucket    string `envconfig:"ARCHIVE_BUCKET"`
	Endpoint  string `envconfig:"ARCHIVE_ENDPOINT"`
	Region    string `envconfig:"ARCHIVE_REGION" default:"auto"`
	AccessKey string `envconfig:"ARCHIVE_ACCESS_KEY"`
	SecretKey string `envconfig:"ARCHIVE_SECRET_KEY"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	cfg.Account.Mode = strings.ToLower(strings.TrimSpace(cfg.Account.Mode))
	cfg.Allocation = domain.AllocationSettings{
		Usable:   cfg.Limits.Available,
		Domestic: cfg.Limits.Domestic,
		Overseas: cfg.Limits.Overseas,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SettingsSource is the read side of the settings table.
type SettingsSource interface {
	GetAll() (map[string]string, error)
}

// UpdateFromSettings applies overrides stored in the settings table.
// Settings DB values take precedence over environment variables; the
// result is validated again.
func (c *Config) UpdateFromSettings(source SettingsSource) error {
	values, err := source.GetAll()
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	allocation, err := settings.AllocationFrom(c.Allocation, values)
	if err != nil {
		return err
	}
	c.Allocation = allocation

	if raw, ok := values[settings.KeyAccountTest]; ok && raw != "" {
		isTest, err := strconv.ParseBool(raw)
		if err != nil {
			return &domain.ConfigurationError{Field: settings.KeyAccountTest, Reason: fmt.Sprintf("not a boolean: %q", raw)}
		}
		if isTest {
			c.Account.Mode = AccountModeTest
		} else {
			c.Account.Mode = AccountModeReal
		}
	}

	return c.Validate()
}

// Validate validates configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Account.Mode != AccountModeTest && c.Account.Mode != AccountModeReal {
		return &domain.ConfigurationError{Field: "ACCOUNT_MODE", Reason: fmt.Sprintf("must be test or real, got %q", c.Account.Mode)}
	}
	if err := c.Allocation.Validate(); err != nil {
		return err
	}
	if c.Currency.FallbackRate <= 0 {
		return &domain.ConfigurationError{Field: "FX_FALLBACK_RATE", Reason: "must be positive"}
	}
	if c.Wait.RetryDelay <= 0 {
		return &domain.ConfigurationError{Field: "WAIT_RETRY_DELAY", Reason: "must be positive"}
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return &domain.ConfigurationError{Field: "ARCHIVE_BUCKET", Reason: "required when ARCHIVE_ENABLED is set"}
	}
	return nil
}

// DatabasePath returns the file path of a named database in DataDir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

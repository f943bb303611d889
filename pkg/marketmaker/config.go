package marketmaker

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every market maker setting, e.g. TINYME_MM_ISIN
const EnvPrefix = "TINYME_MM"

// Config holds all configuration for the market maker service
type Config struct {
	// Engine connection settings
	ServerURL      string
	RequestTimeout time.Duration

	// Market settings
	ISIN          string
	BrokerID      int64
	ShareholderID int64
	FallbackPrice int64 // quoted around until the security has traded

	// Market making parameters
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         int64
	UpdateInterval    time.Duration
	OrderIDBase       int64

	// HTTP client settings
	HTTPTimeout time.Duration
	MaxRetries  int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)

	v.SetDefault("SERVER_URL", "http://localhost:8080")
	v.SetDefault("REQUEST_TIMEOUT", 5*time.Second)
	v.SetDefault("ISIN", "ABC")
	v.SetDefault("BROKER_ID", 1)
	v.SetDefault("SHAREHOLDER_ID", 1)
	v.SetDefault("FALLBACK_PRICE", 1000)
	v.SetDefault("NUM_LEVELS", 3)
	v.SetDefault("BASE_SPREAD_PERCENT", 0.1)
	v.SetDefault("PRICE_STEP_PERCENT", 0.05)
	v.SetDefault("ORDER_SIZE", 10)
	v.SetDefault("UPDATE_INTERVAL", 10*time.Second)
	v.SetDefault("ORDER_ID_BASE", 1_000_000_000)
	v.SetDefault("HTTP_TIMEOUT", 5*time.Second)
	v.SetDefault("MAX_RETRIES", 3)

	v.AutomaticEnv()

	cfg := &Config{
		ServerURL:         v.GetString("SERVER_URL"),
		RequestTimeout:    v.GetDuration("REQUEST_TIMEOUT"),
		ISIN:              v.GetString("ISIN"),
		BrokerID:          v.GetInt64("BROKER_ID"),
		ShareholderID:     v.GetInt64("SHAREHOLDER_ID"),
		FallbackPrice:     v.GetInt64("FALLBACK_PRICE"),
		NumLevels:         v.GetInt("NUM_LEVELS"),
		BaseSpreadPercent: v.GetFloat64("BASE_SPREAD_PERCENT"),
		PriceStepPercent:  v.GetFloat64("PRICE_STEP_PERCENT"),
		OrderSize:         v.GetInt64("ORDER_SIZE"),
		UpdateInterval:    v.GetDuration("UPDATE_INTERVAL"),
		OrderIDBase:       v.GetInt64("ORDER_ID_BASE"),
		HTTPTimeout:       v.GetDuration("HTTP_TIMEOUT"),
		MaxRetries:        v.GetInt("MAX_RETRIES"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("SERVER_URL must not be empty")
	}
	if cfg.ISIN == "" {
		return fmt.Errorf("ISIN must not be empty")
	}
	if cfg.BrokerID <= 0 || cfg.ShareholderID <= 0 {
		return fmt.Errorf("BROKER_ID and SHAREHOLDER_ID must be positive")
	}
	if cfg.FallbackPrice <= 0 {
		return fmt.Errorf("FALLBACK_PRICE must be positive")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("NUM_LEVELS must be positive")
	}
	if cfg.BaseSpreadPercent <= 0 {
		return fmt.Errorf("BASE_SPREAD_PERCENT must be positive")
	}
	if cfg.PriceStepPercent <= 0 {
		return fmt.Errorf("PRICE_STEP_PERCENT must be positive")
	}
	if cfg.OrderSize <= 0 {
		return fmt.Errorf("ORDER_SIZE must be positive")
	}
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL must be positive")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive")
	}
	return nil
}

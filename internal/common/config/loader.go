// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like MARKETPLACE_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the YAML
// left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Marketplace.APIKey == "" {
		if val := os.Getenv("MARKETPLACE_API_KEY"); val != "" {
			cfg.Marketplace.APIKey = val
		}
	}
	if cfg.Affordability.APIKey == "" {
		if val := os.Getenv("AFFORDABILITY_API_KEY"); val != "" {
			cfg.Affordability.APIKey = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.ListenAddr == "" {
		cfg.App.ListenAddr = ":8080"
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.PlanIndex == "" {
		cfg.Database.Elasticsearch.PlanIndex = "marketplace-plans"
	}

	// Marketplace defaults
	if cfg.Marketplace.Timeout == 0 {
		cfg.Marketplace.Timeout = 10000
	}
	if cfg.Marketplace.CatalogBackend == "" {
		cfg.Marketplace.CatalogBackend = "http"
	}
	if cfg.Marketplace.GeoCacheTTL == 0 {
		cfg.Marketplace.GeoCacheTTL = 86400
	}

	// Affordability defaults
	if cfg.Affordability.Timeout == 0 {
		cfg.Affordability.Timeout = 30000
	}
	if cfg.Affordability.SyncWait == 0 {
		cfg.Affordability.SyncWait = 5000
	}
	if cfg.Affordability.BackgroundRetries == 0 {
		cfg.Affordability.BackgroundRetries = 3
	}

	// Scheduler defaults: 100 calls/minute, 10 in flight, 50ms spacing.
	if cfg.Scheduler.ReservoirSize == 0 {
		cfg.Scheduler.ReservoirSize = 100
	}
	if cfg.Scheduler.RefillInterval == 0 {
		cfg.Scheduler.RefillInterval = 60000
	}
	if cfg.Scheduler.MaxConcurrent == 0 {
		cfg.Scheduler.MaxConcurrent = 10
	}
	if cfg.Scheduler.MinSpacing == 0 {
		cfg.Scheduler.MinSpacing = 50
	}
	if cfg.Scheduler.MaxRetries == 0 {
		cfg.Scheduler.MaxRetries = 3
	}
	if cfg.Scheduler.RetryBase == 0 {
		cfg.Scheduler.RetryBase = 500
	}

	// Quote defaults
	if cfg.Quote.CacheTTL == 0 {
		cfg.Quote.CacheTTL = 300 // 5 minutes
	}
	if cfg.Quote.ExpiryDays == 0 {
		cfg.Quote.ExpiryDays = 30
	}
	if cfg.Quote.MemberFanOut == 0 {
		cfg.Quote.MemberFanOut = 8
	}
	if cfg.Quote.RecommendedPlans == 0 {
		cfg.Quote.RecommendedPlans = 10
	}
	if cfg.Quote.FPLYear == 0 {
		cfg.Quote.FPLYear = 2024
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Marketplace.GeoURL == "" {
		return fmt.Errorf("marketplace.geo_url is required")
	}
	if cfg.Marketplace.PricingURL == "" {
		return fmt.Errorf("marketplace.pricing_url is required")
	}
	if cfg.Marketplace.CatalogBackend == "http" && cfg.Marketplace.CatalogURL == "" {
		return fmt.Errorf("marketplace.catalog_url is required for http catalog backend")
	}
	if cfg.Marketplace.CatalogBackend == "elasticsearch" && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required for elasticsearch catalog backend")
	}

	if cfg.Affordability.BaseURL == "" {
		return fmt.Errorf("affordability.base_url is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

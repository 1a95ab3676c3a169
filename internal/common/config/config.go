// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Marketplace   MarketplaceConfig   `mapstructure:"marketplace"`
	Affordability AffordabilityConfig `mapstructure:"affordability"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Quote         QuoteConfig         `mapstructure:"quote"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	ListenAddr  string `mapstructure:"listen_addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	PlanIndex string   `mapstructure:"plan_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MarketplaceConfig holds endpoints for the geography, plan catalog and
// pricing collaborators.
type MarketplaceConfig struct {
	GeoURL     string `mapstructure:"geo_url"`
	CatalogURL string `mapstructure:"catalog_url"`
	PricingURL string `mapstructure:"pricing_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds

	// CatalogBackend selects the plan catalog implementation:
	// "http" (default) or "elasticsearch".
	CatalogBackend string `mapstructure:"catalog_backend"`

	// GeoCacheTTL controls how long resolved rating geography stays
	// cached per zip, in seconds. Zero uses the default.
	GeoCacheTTL int `mapstructure:"geo_cache_ttl"`
}

// AffordabilityConfig holds settings for the external affordability API.
type AffordabilityConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  int    `mapstructure:"timeout"`   // milliseconds
	SyncWait int    `mapstructure:"sync_wait"` // milliseconds, bounded blocking window

	// LifetimeLimit caps total affordability calls for constrained trial
	// deployments. Zero means unlimited.
	LifetimeLimit     int `mapstructure:"lifetime_limit"`
	BackgroundRetries int `mapstructure:"background_retries"`
}

// SchedulerConfig tunes the reservoir limiter gating all external calls.
type SchedulerConfig struct {
	ReservoirSize  int `mapstructure:"reservoir_size"`
	RefillInterval int `mapstructure:"refill_interval"` // milliseconds
	MaxConcurrent  int `mapstructure:"max_concurrent"`
	MinSpacing     int `mapstructure:"min_spacing"` // milliseconds
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBase      int `mapstructure:"retry_base"` // milliseconds
}

// QuoteConfig tunes quote generation itself.
type QuoteConfig struct {
	CacheTTL         int `mapstructure:"cache_ttl"`  // seconds
	ExpiryDays       int `mapstructure:"expiry_days"`
	MemberFanOut     int `mapstructure:"member_fan_out"`
	RecommendedPlans int `mapstructure:"recommended_plans"`
	FPLYear          int `mapstructure:"fpl_year"`

	// FPLDataPath optionally points at a reference dataset overriding
	// the built-in poverty guideline tables.
	FPLDataPath string `mapstructure:"fpl_data_path"`
}

// NotificationConfig holds settings for quote-ready notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"market_data_hub/services/cache"
	"market_data_hub/services/provider"
	"market_data_hub/services/realtime"
	"market_data_hub/services/timeseries"
)

type Config struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`

	DBDriver   string `mapstructure:"db_driver"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`

	// CacheStore selects the durable cache tier: sql, redis or mongo.
	CacheStore    string `mapstructure:"cache_store"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	MongoURI      string `mapstructure:"mongodb_uri"`
	MongoDatabase string `mapstructure:"mongodb_database"`
	JWTSecret     string `mapstructure:"jwt_secret"`

	ProviderBaseURL    string  `mapstructure:"provider_base_url"`
	ProviderAPIKey     string  `mapstructure:"provider_api_key"`
	ProviderRatePerSec float64 `mapstructure:"provider_rate_per_sec"`

	BroadcastInterval  time.Duration `mapstructure:"broadcast_interval"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	BroadcastBatchSize int           `mapstructure:"broadcast_batch_size"`
	MaxWSClients       int           `mapstructure:"max_ws_clients"`

	CoverageThreshold  float64 `mapstructure:"coverage_threshold"`
	StalenessGraceDays int     `mapstructure:"staleness_grace_days"`
	MarketTimezone     string  `mapstructure:"market_timezone"`
	MarketClose        string  `mapstructure:"market_close"`

	APIRatePerSec float64 `mapstructure:"api_rate_per_sec"`
	APIRateBurst  int     `mapstructure:"api_rate_burst"`

	// CachePolicies is DefaultPolicies with any CACHE_<RESOURCE>_*_TTL overrides applied.
	CachePolicies cache.Policies `mapstructure:"-"`
}

var AppConfig *Config
var DB *gorm.DB

var defaults = map[string]any{
	"port":                  "8080",
	"environment":           "development",
	"db_driver":             "sqlite",
	"db_host":               "localhost",
	"db_port":               "5432",
	"db_user":               "postgres",
	"db_password":           "",
	"db_name":               "market_data_hub",
	"db_sslmode":            "require",
	"sqlite_path":           "market_data_hub.db",
	"cache_store":           "sql",
	"redis_addr":            "localhost:6379",
	"redis_password":        "",
	"redis_db":              0,
	"mongodb_uri":           "mongodb://localhost:27017",
	"mongodb_database":      "market_data_hub",
	"jwt_secret":            "your-secret-key",
	"provider_base_url":     "https://financialmodelingprep.com/api/v3",
	"provider_api_key":      "",
	"provider_rate_per_sec": 5.0,
	"broadcast_interval":    realtime.DefaultBroadcastInterval,
	"heartbeat_interval":    realtime.DefaultHeartbeatInterval,
	"broadcast_batch_size":  realtime.DefaultBatchSize,
	"max_ws_clients":        realtime.DefaultMaxClients,
	"coverage_threshold":    0.8,
	"staleness_grace_days":  1,
	"market_timezone":       "America/New_York",
	"market_close":          "16:00",
	"api_rate_per_sec":      10.0,
	"api_rate_burst":        20,
}

// LoadConfig loads .env, then environment variables and an optional
// config.yaml. Environment variables win over the file.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	policies, err := loadPolicies(v)
	if err != nil {
		return nil, err
	}
	config.CachePolicies = policies

	if err := config.validate(); err != nil {
		return nil, err
	}

	AppConfig = config
	return config, nil
}

// loadPolicies applies CACHE_<RESOURCE>_DURABLE_TTL and CACHE_<RESOURCE>_HOT_TTL.
func loadPolicies(v *viper.Viper) (cache.Policies, error) {
	policies := cache.DefaultPolicies()
	for _, rt := range cache.AllResourceTypes() {
		policy := policies.For(rt)
		prefix := "cache_" + rt.String()

		for suffix, target := range map[string]*time.Duration{
			"_durable_ttl": &policy.DurableTTL,
			"_hot_ttl":     &policy.HotTTL,
		} {
			key := prefix + suffix
			_ = v.BindEnv(key, strings.ToUpper(key))
			raw := v.GetString(key)
			if raw == "" {
				continue
			}
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("invalid %s %q", strings.ToUpper(key), raw)
			}
			*target = d
		}
		policies[rt] = policy
	}
	return policies, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.CacheStore {
	case "sql", "redis", "mongo":
	default:
		return fmt.Errorf("unsupported CACHE_STORE %q", c.CacheStore)
	}
	if c.CoverageThreshold <= 0 || c.CoverageThreshold > 1 {
		return fmt.Errorf("COVERAGE_THRESHOLD must be in (0, 1], got %v", c.CoverageThreshold)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.MarketCloseOffset(); err != nil {
		return err
	}
	return nil
}

// Location resolves MARKET_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.MarketTimezone, err)
	}
	return loc, nil
}

// MarketCloseOffset parses MARKET_CLOSE ("HH:MM") as an offset from local midnight.
func (c *Config) MarketCloseOffset() (time.Duration, error) {
	t, err := time.Parse("15:04", c.MarketClose)
	if err != nil {
		return 0, fmt.Errorf("invalid MARKET_CLOSE %q: %w", c.MarketClose, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) ProviderConfig() provider.Config {
	cfg := provider.DefaultConfig(c.ProviderBaseURL, c.ProviderAPIKey)
	if c.ProviderRatePerSec > 0 {
		cfg.RatePerSecond = c.ProviderRatePerSec
	}
	if loc, err := c.Location(); err == nil {
		cfg.Location = loc
	}
	return cfg
}

func (c *Config) HubConfig() realtime.Config {
	cfg := realtime.DefaultConfig()
	if c.BroadcastInterval > 0 {
		cfg.BroadcastInterval = c.BroadcastInterval
	}
	if c.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = c.HeartbeatInterval
	}
	if c.BroadcastBatchSize > 0 {
		cfg.BatchSize = c.BroadcastBatchSize
	}
	if c.MaxWSClients > 0 {
		cfg.MaxClients = c.MaxWSClients
	}
	return cfg
}

func (c *Config) TimeseriesConfig() timeseries.Config {
	cfg := timeseries.DefaultConfig()
	cfg.CoverageThreshold = c.CoverageThreshold
	if c.StalenessGraceDays > 0 {
		cfg.StalenessGraceDays = c.StalenessGraceDays
	}
	if loc, err := c.Location(); err == nil {
		cfg.Location = loc
	}
	if offset, err := c.MarketCloseOffset(); err == nil {
		cfg.MarketClose = offset
	}
	return cfg
}

// InitDB opens the relational database selected by DB_DRIVER.
func InitDB(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		log.Printf("Opening sqlite database: %s", cfg.SQLitePath)
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		// Log connection info (masked for security)
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(cfg.DBHost),
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBName,
		)
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)
		dialector = postgres.Open(dsn)
	}

	var logLevel logger.LogLevel
	if cfg.IsProduction() {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		// sqlite serialises writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"towtrace-backend/internal/hos"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	HOS      HOSConfig      `mapstructure:"hos"`
}

// ServerConfig defines the HTTP listener
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	IngestTimeout string `mapstructure:"ingest_timeout"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// DatabaseConfig selects and configures the interval store
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // "postgres" or "memory"
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	SeedDemo     bool   `mapstructure:"seed_demo"`
}

// RedisConfig defines the device-resolution cache
type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	PoolSize    int    `mapstructure:"pool_size"`
	DeviceTTL   string `mapstructure:"device_ttl"`
	NegativeTTL string `mapstructure:"negative_ttl"`
}

// AuthConfig holds the JWT verification secret
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// HOSConfig holds the regulatory limits and transition retry settings
type HOSConfig struct {
	WindowHours           int    `mapstructure:"window_hours"`
	MaxDrivingMinutes     int    `mapstructure:"max_driving_minutes"`
	MaxDutyMinutes        int    `mapstructure:"max_duty_minutes"`
	CycleDays             int    `mapstructure:"cycle_days"`
	MaxCycleDutyMinutes   int    `mapstructure:"max_cycle_duty_minutes"`
	BreakAfterDriving     int    `mapstructure:"break_after_driving_minutes"`
	MinBreakMinutes       int    `mapstructure:"min_break_minutes"`
	MaxTransitionAttempts int    `mapstructure:"max_transition_attempts"`
	RetryInitialBackoff   string `mapstructure:"retry_initial_backoff"`
	MaxFutureSkew         string `mapstructure:"max_future_skew"`
	ReportMaxDays         int    `mapstructure:"report_max_days"`
}

// Load reads configuration from an optional YAML file and the environment.
// TOWTRACE_<SECTION>_<KEY> overrides any file value; DATABASE_URL, PORT,
// REDIS_ADDR and APP_JWT_SECRET are honored for existing deployments.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TOWTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	bindLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.ingest_timeout", "5s")
	v.SetDefault("server.allowed_origin", "*")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.seed_demo", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.device_ttl", "5m")
	v.SetDefault("redis.negative_ttl", "30s")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("hos.window_hours", 24)
	v.SetDefault("hos.max_driving_minutes", 660)
	v.SetDefault("hos.max_duty_minutes", 840)
	v.SetDefault("hos.cycle_days", 8)
	v.SetDefault("hos.max_cycle_duty_minutes", 4200)
	v.SetDefault("hos.break_after_driving_minutes", 480)
	v.SetDefault("hos.min_break_minutes", 30)
	v.SetDefault("hos.max_transition_attempts", 3)
	v.SetDefault("hos.retry_initial_backoff", "20ms")
	v.SetDefault("hos.max_future_skew", "5m")
	v.SetDefault("hos.report_max_days", 90)
}

func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"DATABASE_URL":   "database.url",
		"PORT":           "server.port",
		"REDIS_ADDR":     "redis.addr",
		"APP_JWT_SECRET": "auth.jwt_secret",
	}
	for env, key := range legacy {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		prefixed := "TOWTRACE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(prefixed) == "" {
			v.Set(key, val)
		}
	}
}

// Validate checks the values that would otherwise fail at first use
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (or DATABASE_URL) is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if _, err := time.ParseDuration(c.Server.IngestTimeout); err != nil {
		return fmt.Errorf("invalid server.ingest_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.HOS.MaxFutureSkew); err != nil {
		return fmt.Errorf("invalid hos.max_future_skew: %w", err)
	}
	if c.HOS.MaxTransitionAttempts < 1 {
		return fmt.Errorf("hos.max_transition_attempts must be at least 1")
	}
	if c.HOS.WindowHours < 1 || c.HOS.CycleDays < 1 {
		return fmt.Errorf("hos.window_hours and hos.cycle_days must be positive")
	}
	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Limits converts the HOS section into detector thresholds
func (h HOSConfig) Limits() hos.Limits {
	return hos.Limits{
		Window:              time.Duration(h.WindowHours) * time.Hour,
		MaxDrivingMinutes:   h.MaxDrivingMinutes,
		MaxDutyMinutes:      h.MaxDutyMinutes,
		CycleWindow:         time.Duration(h.CycleDays) * 24 * time.Hour,
		MaxCycleDutyMinutes: h.MaxCycleDutyMinutes,
		BreakAfterDriving:   h.BreakAfterDriving,
		MinBreakMinutes:     h.MinBreakMinutes,
	}
}

// ManagerConfig converts the HOS section into interval manager retry settings
func (h HOSConfig) ManagerConfig() hos.ManagerConfig {
	cfg := hos.DefaultManagerConfig()
	cfg.MaxAttempts = h.MaxTransitionAttempts
	cfg.InitialBackoff = ParseDuration(h.RetryInitialBackoff, cfg.InitialBackoff)
	return cfg
}

// IngestorConfig converts the server and HOS sections into ingest bounds
func (c *Config) IngestorConfig() hos.IngestorConfig {
	cfg := hos.DefaultIngestorConfig()
	cfg.Timeout = ParseDuration(c.Server.IngestTimeout, cfg.Timeout)
	cfg.MaxFutureSkew = ParseDuration(c.HOS.MaxFutureSkew, cfg.MaxFutureSkew)
	return cfg
}

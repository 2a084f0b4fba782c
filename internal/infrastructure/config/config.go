package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Log           LogConfig
	HTTP          HTTPConfig
	Idempotency   IdempotencyConfig
	Governance    GovernanceConfig
	Authorization AuthorizationConfig
	Storage       StorageConfig
	Telemetry     TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// ReplicaDSN points dashboard budget reads at a read replica (pgx pool).
	// Empty means budget data is read through the primary gorm connection.
	ReplicaDSN      string
	ReplicaMaxConns int32
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	Issuer                string
	AccessTokenExpiration time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// IdempotencyConfig holds idempotency guard settings
type IdempotencyConfig struct {
	Store           string        // redis, database or memory
	Retention       time.Duration // how long committed responses are replayed
	InFlightTTL     time.Duration // lease held by an executing request
	WaitTimeout     time.Duration // max wait for a concurrent duplicate
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	KeyPrefix       string
}

// GovernanceConfig holds dashboard and policy settings
type GovernanceConfig struct {
	RiskWindow         time.Duration
	TopProjectsLimit   int
	RecentEventsLimit  int
	PolicyCacheTTL     time.Duration
	PolicyCacheEnabled bool
}

// AuthorizationConfig selects the authorization gate
type AuthorizationConfig struct {
	Gate            string // claims or roles
	RolePermissions string // path to the role permission YAML file
}

// StorageConfig holds object storage settings for audit archives
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	LogsEnabled       bool
	// Database tracing options
	DBTraceEnabled bool // Enable database query tracing (otelgorm)
	DBLogFullSQL   bool // Log full SQL statements (dev only)
	// Continuous profiling (Pyroscope)
	ProfilingEnabled       bool
	ProfilingServerAddress string   // e.g. "http://pyroscope:4040"
	ProfileTypes           []string // cpu, alloc_space, inuse_space, goroutines, mutex_count, block_count ...
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with COSTGOV_ prefix (e.g., COSTGOV_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("COSTGOV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			ReplicaDSN:      v.GetString("database.replica_dsn"),
			ReplicaMaxConns: v.GetInt32("database.replica_max_conns"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			Issuer:                v.GetString("jwt.issuer"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Idempotency: IdempotencyConfig{
			Store:           v.GetString("idempotency.store"),
			Retention:       v.GetDuration("idempotency.retention"),
			InFlightTTL:     v.GetDuration("idempotency.in_flight_ttl"),
			WaitTimeout:     v.GetDuration("idempotency.wait_timeout"),
			PollInterval:    v.GetDuration("idempotency.poll_interval"),
			MaxPollInterval: v.GetDuration("idempotency.max_poll_interval"),
			KeyPrefix:       v.GetString("idempotency.key_prefix"),
		},
		Governance: GovernanceConfig{
			RiskWindow:         v.GetDuration("governance.risk_window"),
			TopProjectsLimit:   v.GetInt("governance.top_projects_limit"),
			RecentEventsLimit:  v.GetInt("governance.recent_events_limit"),
			PolicyCacheTTL:     v.GetDuration("governance.policy_cache_ttl"),
			PolicyCacheEnabled: v.GetBool("governance.policy_cache_enabled"),
		},
		Authorization: AuthorizationConfig{
			Gate:            v.GetString("authorization.gate"),
			RolePermissions: v.GetString("authorization.role_permissions"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
		},
		Telemetry: TelemetryConfig{
			Enabled:                v.GetBool("telemetry.enabled"),
			CollectorEndpoint:      v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:          v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:            v.GetString("telemetry.service_name"),
			Insecure:               v.GetBool("telemetry.insecure"),
			MetricsEnabled:         v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:            v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:         v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:           v.GetBool("telemetry.db_log_full_sql"),
			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
			ProfileTypes:           v.GetStringSlice("telemetry.profile_types"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "costgov-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "costgov"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.ReplicaMaxConns == 0 {
		cfg.Database.ReplicaMaxConns = 10
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "costgov-backend"
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// idempotent requests may wait up to the idempotency wait timeout
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 45 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID", "Idempotency-Key"}
	}
	if cfg.Idempotency.Store == "" {
		cfg.Idempotency.Store = "database"
	}
	if cfg.Idempotency.Retention == 0 {
		cfg.Idempotency.Retention = 10 * time.Minute
	}
	if cfg.Idempotency.InFlightTTL == 0 {
		cfg.Idempotency.InFlightTTL = 2 * time.Minute
	}
	if cfg.Idempotency.WaitTimeout == 0 {
		cfg.Idempotency.WaitTimeout = 30 * time.Second
	}
	if cfg.Idempotency.PollInterval == 0 {
		cfg.Idempotency.PollInterval = 50 * time.Millisecond
	}
	if cfg.Idempotency.MaxPollInterval == 0 {
		cfg.Idempotency.MaxPollInterval = time.Second
	}
	if cfg.Governance.RiskWindow == 0 {
		cfg.Governance.RiskWindow = 30 * 24 * time.Hour
	}
	if cfg.Governance.TopProjectsLimit == 0 {
		cfg.Governance.TopProjectsLimit = 10
	}
	if cfg.Governance.RecentEventsLimit == 0 {
		cfg.Governance.RecentEventsLimit = 20
	}
	if cfg.Governance.PolicyCacheTTL == 0 {
		cfg.Governance.PolicyCacheTTL = time.Minute
	}
	if cfg.Authorization.Gate == "" {
		cfg.Authorization.Gate = "claims"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "costgov-audit-archive"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 15 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "costgov-backend"
	}
	if len(cfg.Telemetry.ProfileTypes) == 0 {
		cfg.Telemetry.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space"}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Idempotency.Store {
	case "redis", "database", "memory":
	default:
		return fmt.Errorf("idempotency.store must be one of redis, database, memory, got %q", c.Idempotency.Store)
	}
	if c.Idempotency.Store == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("idempotency.store=redis requires redis.enabled")
	}
	if c.Idempotency.WaitTimeout <= 0 || c.Idempotency.Retention <= 0 || c.Idempotency.InFlightTTL <= 0 {
		return fmt.Errorf("idempotency durations must be positive")
	}
	if c.Idempotency.InFlightTTL < c.Idempotency.WaitTimeout {
		return fmt.Errorf("idempotency.in_flight_ttl (%s) must not be shorter than idempotency.wait_timeout (%s)",
			c.Idempotency.InFlightTTL, c.Idempotency.WaitTimeout)
	}

	switch c.Authorization.Gate {
	case "claims":
	case "roles":
		if c.Authorization.RolePermissions == "" {
			return fmt.Errorf("authorization.role_permissions is required when authorization.gate=roles")
		}
	default:
		return fmt.Errorf("authorization.gate must be claims or roles, got %q", c.Authorization.Gate)
	}

	if c.Governance.TopProjectsLimit < 0 || c.Governance.RecentEventsLimit < 0 {
		return fmt.Errorf("governance limits cannot be negative")
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Idempotency.Store == "memory" {
			return fmt.Errorf("idempotency.store=memory is not allowed in production (state is not shared across instances)")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServerAddress == "" {
		return fmt.Errorf("telemetry.profiling_server_address is required when profiling is enabled")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

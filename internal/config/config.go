package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Dispatch  DispatchConfig
	Broadcast BroadcastConfig
	Registry  RegistryConfig
	Telemetry TelemetryConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how bearer tokens from the identity provider are verified.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// DispatchConfig tunes the dispatch engine.
type DispatchConfig struct {
	OperationTimeoutMS int
	MaxClaimAttempts   int
	CandidateBatchSize int
	DefaultTimezone    string
}

// BroadcastConfig tunes event fan-out.
type BroadcastConfig struct {
	ChannelPrefix    string
	SubscriberBuffer int
}

// RegistryConfig locates reference data.
type RegistryConfig struct {
	CatalogPath        string
	BranchCacheTTLSecs int
}

// TelemetryConfig configures trace export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
}

// Load reads configuration from environment variables, applying defaults where
// possible. envFiles are loaded first when present; a missing default .env is ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "branch-queue"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
		},
		Dispatch: DispatchConfig{
			OperationTimeoutMS: getEnvAsInt("DISPATCH_OPERATION_TIMEOUT_MS", 5000),
			MaxClaimAttempts:   getEnvAsInt("DISPATCH_MAX_CLAIM_ATTEMPTS", 5),
			CandidateBatchSize: getEnvAsInt("DISPATCH_CANDIDATE_BATCH_SIZE", 20),
			DefaultTimezone:    getEnv("DISPATCH_DEFAULT_TIMEZONE", "UTC"),
		},
		Broadcast: BroadcastConfig{
			ChannelPrefix:    getEnv("BROADCAST_CHANNEL_PREFIX", "branch-queue:events"),
			SubscriberBuffer: getEnvAsInt("BROADCAST_SUBSCRIBER_BUFFER", 64),
		},
		Registry: RegistryConfig{
			CatalogPath:        os.Getenv("REGISTRY_CATALOG_PATH"),
			BranchCacheTTLSecs: getEnvAsInt("REGISTRY_BRANCH_CACHE_TTL_SECONDS", 300),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:     getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}

	if _, err := time.LoadLocation(cfg.Dispatch.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_DEFAULT_TIMEZONE: %w", err)
	}
	if cfg.Dispatch.MaxClaimAttempts <= 0 {
		return nil, fmt.Errorf("DISPATCH_MAX_CLAIM_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// OperationTimeout bounds every engine operation.
func (d DispatchConfig) OperationTimeout() time.Duration {
	if d.OperationTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.OperationTimeoutMS) * time.Millisecond
}

// BranchCacheTTL returns how long branch records stay cached in Redis.
func (r RegistryConfig) BranchCacheTTL() time.Duration {
	return time.Duration(r.BranchCacheTTLSecs) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

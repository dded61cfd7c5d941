package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ServiceName    = "inventory-service"
	ServiceVersion = "0.1.0"
)

const (
	EnvLocal      = "local"
	EnvProduction = "production"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultGRPCAddr        = ":50051"
	defaultKafkaTopic      = "inventory-events"
	defaultMaxSpaces       = 10
	defaultRetryAttempts   = 5
	defaultShutdownTimeout = 5 * time.Second
	localJWTSecret         = "local-development-secret"
)

// Config holds everything that changes between environments.
type Config struct {
	AppEnv   string
	HTTPAddr string
	GRPCAddr string

	DBDriver    string
	DatabaseDSN string

	RedisAddr     string
	RedisPassword string

	KafkaBroker string
	KafkaTopic  string

	OtelEndpoint   string
	OtelAuthHeader string

	JWTSecret string

	// TrustProxyHeaders takes the client IP from X-Forwarded-For/X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool

	MaxSpacesPerOwner  int
	StockRetryAttempts int
	ShutdownTimeout    time.Duration
}

// LoadEnv loads .env into the process environment when the file exists.
// Variables already set win over the file.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:         get("APP_ENV", EnvLocal),
		HTTPAddr:       get("HTTP_ADDR", defaultHTTPAddr),
		GRPCAddr:       get("GRPC_ADDR", defaultGRPCAddr),
		DBDriver:       strings.ToLower(get("DB_DRIVER", DriverMemory)),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		KafkaBroker:    os.Getenv("KAFKA_BROKER"),
		KafkaTopic:     get("KAFKA_TOPIC", defaultKafkaTopic),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.MaxSpacesPerOwner, err = getInt("MAX_SPACES_PER_OWNER", defaultMaxSpaces); err != nil {
		return nil, err
	}
	if cfg.StockRetryAttempts, err = getInt("STOCK_RETRY_ATTEMPTS", defaultRetryAttempts); err != nil {
		return nil, err
	}
	if cfg.TrustProxyHeaders, err = getBool("TRUST_PROXY_HEADERS", false); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" && cfg.IsLocal() {
		cfg.JWTSecret = localJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsLocal() bool {
	return c.AppEnv == EnvLocal
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, fmt.Errorf("DATABASE_DSN is required when DB_DRIVER is %s", c.DBDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be one of memory, mysql, postgres; got %q", c.DBDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.MaxSpacesPerOwner <= 0 {
		errs = append(errs, errors.New("MAX_SPACES_PER_OWNER must be positive"))
	}
	if c.StockRetryAttempts <= 0 {
		errs = append(errs, errors.New("STOCK_RETRY_ATTEMPTS must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func get(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := get(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := get(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "store-inventory"
	ServiceVersion = "0.1.0"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// TracesPath is appended to OTEL_ENDPOINT by the trace exporter.
const TracesPath = "/v1/traces"

type Config struct {
	HTTPAddr string
	GRPCAddr string

	DBDriver       string
	MySQLDSN       string
	DatabaseURL    string
	DBMaxOpenConns int
	AutoMigrate    bool

	RedisAddr string

	OtelEndpoint   string
	OtelAuthHeader string

	LogLevel string
	AppEnv   string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":50051"),
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", DriverMySQL)),
		MySQLDSN:       getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/inventory?parseTime=true"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		OtelEndpoint:   strings.TrimSpace(os.Getenv("OTEL_ENDPOINT")),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		AppEnv:         getenv("APP_ENV", "production"),
	}

	var err error
	if cfg.DBMaxOpenConns, err = getenvInt("DB_MAX_OPEN_CONNS", 100); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate, err = getenvBool("AUTO_MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getenvMillis("REQUEST_TIMEOUT_MS", 5000); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getenvMillis("SHUTDOWN_TIMEOUT_MS", 10000); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN environment variable is required for driver %s", c.DBDriver)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for driver %s", c.DBDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_MS must be positive")
	}
	return nil
}

// Development reports whether APP_ENV selects the human-readable log format.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getenvMillis(key string, fallback int) (time.Duration, error) {
	ms, err := getenvInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

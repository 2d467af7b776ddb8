package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                string
	DatabaseURL         string
	JWTSecret           string
	Environment         string
	RedisAddress        string
	RedisPassword       string
	RunMigrations       bool
	MigrationsDir       string
	MaxBodyBytes        int64
	PayrollWorkers      int
	PayrollRounding     string
	DefinitionsCacheTTL time.Duration
	ApprovalLockTTL     time.Duration
	CORSAllowedOrigins  []string
	MetricsEnabled      bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Addr:                getEnv("APP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		Environment:         getEnv("APP_ENV", "development"),
		RedisAddress:        getEnv("REDIS_ADDRESS", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RunMigrations:       getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:       getEnv("MIGRATIONS_DIR", "migrations"),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		PayrollWorkers:      getEnvInt("PAYROLL_WORKERS", 4),
		PayrollRounding:     getEnv("PAYROLL_ROUNDING", "half_up"),
		DefinitionsCacheTTL: getEnvDuration("DEFINITIONS_CACHE_TTL", 10*time.Minute),
		ApprovalLockTTL:     getEnvDuration("APPROVAL_LOCK_TTL", 15*time.Second),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("REDIS_ADDRESS must be set in production so approvals are locked across replicas")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.PayrollWorkers <= 0 {
		return fmt.Errorf("PAYROLL_WORKERS must be positive")
	}
	switch c.PayrollRounding {
	case "half_up", "bankers":
	default:
		return fmt.Errorf("PAYROLL_ROUNDING must be half_up or bankers")
	}
	if c.ApprovalLockTTL <= 0 {
		return fmt.Errorf("APPROVAL_LOCK_TTL must be positive")
	}
	return nil
}

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

type Config struct {
	HTTPHost string
	HTTPPort string

	MySQLDSN       string
	MigrationsPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret          string
	JWTAccessTokenTTL  time.Duration
	JWTRefreshTokenTTL time.Duration

	Argon2  Argon2Config
	Lockout LockoutConfig

	// SessionMatchTolerance bounds how far apart a refresh token and its
	// session may have been created and still be treated as one login.
	SessionMatchTolerance time.Duration

	CleanupInterval time.Duration

	RateLimit RateLimitConfig
}

type Argon2Config struct {
	MemoryKiB   int
	Iterations  int
	Parallelism int
}

type LockoutConfig struct {
	// Tiers is an ordered "attempts:duration" list, e.g. "5:15m,10:30m,15:60m".
	Tiers string
}

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	Prefix  string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		HTTPHost:           getEnv("HTTP_HOST", ""),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		MySQLDSN:           mysqlDSN,
		MigrationsPath:     getEnv("MIGRATIONS_PATH", "migrations"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getIntEnv("REDIS_DB", 0),
		JWTSecret:          jwtSecret,
		JWTAccessTokenTTL:  getDurationEnv("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
		JWTRefreshTokenTTL: getDurationEnv("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		Argon2: Argon2Config{
			MemoryKiB:   getIntEnv("ARGON2_MEMORY_KIB", 64*1024),
			Iterations:  getIntEnv("ARGON2_ITERATIONS", 3),
			Parallelism: getIntEnv("ARGON2_PARALLELISM", 4),
		},
		Lockout: LockoutConfig{
			Tiers: getEnv("LOCKOUT_TIERS", "5:15m,10:30m,15:60m"),
		},
		SessionMatchTolerance: getDurationEnv("SESSION_MATCH_TOLERANCE", 5*time.Second),
		CleanupInterval:       getDurationEnv("CLEANUP_INTERVAL", time.Hour),
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
			Limit:   getIntEnv("RATE_LIMIT_MAX", 10),
			Window:  getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			Prefix:  getEnv("RATE_LIMIT_PREFIX", "accounts:rl"),
		},
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

// ParseLockoutTiers turns the "attempts:duration" list into tier values.
func (c LockoutConfig) ParseLockoutTiers() ([]Tier, error) {
	var tiers []Tier
	for _, part := range strings.Split(c.Tiers, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid lockout tier %q", part)
		}

		attempts, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || attempts <= 0 {
			return nil, fmt.Errorf("invalid lockout tier attempts %q", fields[0])
		}

		duration, err := time.ParseDuration(strings.TrimSpace(fields[1]))
		if err != nil || duration <= 0 {
			return nil, fmt.Errorf("invalid lockout tier duration %q", fields[1])
		}

		tiers = append(tiers, Tier{Attempts: attempts, Duration: duration})
	}

	if len(tiers) == 0 {
		return nil, errors.New("lockout tier list is empty")
	}
	return tiers, nil
}

// Tier mirrors service.LockoutTier without importing the service package.
type Tier struct {
	Attempts int
	Duration time.Duration
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

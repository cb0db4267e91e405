// Package config reads server settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	// Optional infrastructure. Empty means in-process fallbacks.
	RedisURL         string
	LockTTL          time.Duration
	RabbitMQURL      string
	RabbitMQExchange string

	StoreTimeout      time.Duration
	StoreMaxAttempts  int
	StoreRetryBackoff time.Duration

	SweepInterval time.Duration
	SweepBatch    int
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getenvDefault("PORT", "8080"),
		CORSOrigins:      splitList(getenvDefault("CORS_ORIGINS", "*")),
		DBHost:           getenvDefault("DB_HOST", "localhost"),
		DBPort:           getenvDefault("DB_PORT", "5432"),
		DBUser:           getenvDefault("DB_USER", "examprep"),
		DBPassword:       getenvDefault("DB_PASSWORD", "examprep"),
		DBName:           getenvDefault("DB_NAME", "examprep"),
		DBSSLMode:        getenvDefault("DB_SSLMODE", "disable"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RabbitMQExchange: getenvDefault("RABBITMQ_EXCHANGE", "assessment.events"),
	}

	var errs []error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
		{"LOCK_TTL", 15 * time.Second, &cfg.LockTTL},
		{"STORE_TIMEOUT", 5 * time.Second, &cfg.StoreTimeout},
		{"STORE_RETRY_BACKOFF", 100 * time.Millisecond, &cfg.StoreRetryBackoff},
		{"SWEEP_INTERVAL", 5 * time.Second, &cfg.SweepInterval},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.fallback)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.dst = v
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"STORE_MAX_ATTEMPTS", 3, &cfg.StoreMaxAttempts},
		{"SWEEP_BATCH", 100, &cfg.SweepBatch},
	}
	for _, n := range ints {
		v, err := getInt(n.key, n.fallback)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*n.dst = v
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireJWTSecret fails when no signing key is configured. Only the HTTP
// server needs one.
func (c *Config) RequireJWTSecret() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is not set")
	}
	return nil
}

// DSN is the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// MigrateURL is the same database as a postgres:// URL for golang-migrate.
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

func getenvDefault(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}

func getDuration(k string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a valid duration: %w", k, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s=%q must be positive", k, v)
	}
	return d, nil
}

func getInt(k string, fallback int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", k, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("config: %s=%q must be positive", k, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

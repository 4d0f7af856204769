// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/eloledger/internal/events"
	"github.com/jason-s-yu/eloledger/internal/ledger"
	"github.com/jason-s-yu/eloledger/internal/rating"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is everything the server reads from the environment.
type Config struct {
	Port        string
	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32

	// RedisAddr empty disables the Redis event queue.
	RedisAddr      string
	RedisDB        int
	RatingQueue    string
	LogLevel       logrus.Level
	Rating         rating.Config
	Ledger         ledger.Config
	BotSeedRatings map[string]int
}

// Load reads an optional .env file and then the process environment. Values
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RatingQueue: getEnv("RATING_QUEUE_NAME", events.DefaultQueueName),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.RedisDB, err = getEnvInt("REDIS_DB", 0)
	collect(err)

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	collect(err)
	cfg.DBMaxConns = int32(maxConns)

	cfg.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)

	cfg.Rating = rating.DefaultConfig()
	cfg.Rating.UserKFactor, err = getEnvInt("ELO_K_FACTOR", rating.DefaultKFactor)
	collect(err)
	cfg.Rating.BotKFactor, err = getEnvInt("ELO_BOT_K_FACTOR", cfg.Rating.UserKFactor)
	collect(err)
	collect(cfg.Rating.Validate())

	cfg.Ledger = ledger.DefaultConfig()
	cfg.Ledger.MaxRetries, err = getEnvInt("LEDGER_MAX_RETRIES", cfg.Ledger.MaxRetries)
	collect(err)
	cfg.Ledger.RetryBackoff, err = getEnvDuration("LEDGER_RETRY_BACKOFF", cfg.Ledger.RetryBackoff)
	collect(err)
	cfg.Ledger.MaxPayloadBytes, err = getEnvInt("MAX_PAYLOAD_BYTES", cfg.Ledger.MaxPayloadBytes)
	collect(err)
	if cfg.Ledger.MaxRetries < 0 {
		collect(fmt.Errorf("LEDGER_MAX_RETRIES must be >= 0, got %d", cfg.Ledger.MaxRetries))
	}
	if cfg.Ledger.MaxPayloadBytes < 0 {
		collect(fmt.Errorf("MAX_PAYLOAD_BYTES must be >= 0, got %d", cfg.Ledger.MaxPayloadBytes))
	}

	cfg.BotSeedRatings, err = ParseSeedRatings(os.Getenv("BOT_SEED_RATINGS"))
	collect(err)

	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		cfg.DatabaseURL = databaseURL()
	default:
		collect(fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.StoreDriver))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// databaseURL prefers DATABASE_URL, else assembles one from the POSTGRES_* and PG_* parts.
func databaseURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD")),
		Host:   getEnv("PG_HOST", "localhost") + ":" + getEnv("PG_PORT", "5432"),
		Path:   "/" + getEnv("PG_DATABASE", "postgres"),
	}
	return u.String()
}

// ParseSeedRatings parses "bot-a=500,bot-b=2500".
func ParseSeedRatings(s string) (map[string]int, error) {
	seeds := make(map[string]int)
	if strings.TrimSpace(s) == "" {
		return seeds, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, val, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("BOT_SEED_RATINGS: malformed entry %q", pair)
		}
		r, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || r < 0 || r > rating.MaxRating {
			return nil, fmt.Errorf("BOT_SEED_RATINGS: bad rating for %q: %q", id, val)
		}
		seeds[id] = r
	}
	return seeds, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, s)
	}
	return v, nil
}

// getEnvDuration accepts Go durations ("10ms") or bare milliseconds ("10").
func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a duration", key, s)
	}
	return d, nil
}

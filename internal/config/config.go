package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL is empty when no database is configured; results are then
	// not persisted.
	DatabaseURL  string
	DatabaseName string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	MetricsAddr string
	Location    *time.Location
	LogLevel    slog.Level

	SchedulesDir       string
	InfrastructureFile string
	RollingStockFile   string
	ParamsFile         string
	Workers            int
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	// when PGDATABASE is set.
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	} else {
		cfg.DatabaseURL = dsn
	}
	// Optional database override applied on top of the DSN
	cfg.DatabaseName = os.Getenv("DB_NAME")

	// Empty NATS_URL disables conflict publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "blockocc.conflicts")
	if strings.HasSuffix(cfg.NATSSubjectPrefix, ".") || strings.ContainsAny(cfg.NATSSubjectPrefix, " *>") {
		return nil, fmt.Errorf("invalid NATS_SUBJECT_PREFIX: %q", cfg.NATSSubjectPrefix)
	}
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Redis interval cache. Empty REDIS_ADDR disables it.
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		cfg.RedisDB = n
	}
	if v := os.Getenv("REDIS_TTL_MIN"); v != "" {
		mins, err := strconv.Atoi(v)
		if err != nil || mins < 0 {
			return nil, fmt.Errorf("invalid REDIS_TTL_MIN: %q", v)
		}
		cfg.CacheTTL = time.Duration(mins) * time.Minute
	} else {
		cfg.CacheTTL = 24 * time.Hour
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Time zone of the schedule timestamps
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %q", v)
		}
	}

	// Input files
	cfg.SchedulesDir = getenvDefault("SCHEDULES_DIR", "data/schedules")
	cfg.InfrastructureFile = getenvDefault("INFRASTRUCTURE_FILE", "data/infrastructure.xml")
	cfg.RollingStockFile = getenvDefault("ROLLING_STOCK_FILE", "data/Model_Trains.xlsx")
	cfg.ParamsFile = os.Getenv("PARAMS_FILE")

	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WORKERS: %q", v)
		}
		cfg.Workers = n
	} else {
		cfg.Workers = runtime.NumCPU()
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

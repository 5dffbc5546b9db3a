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
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store           string
	DatabaseURL     string
	NATSURL         string
	SubjectPrefix   string
	LogNATSSubjects bool
	RedisURL        string
	LocationTTL     time.Duration
	HTTPAddr        string
	JWTSecret       string
	CORSOrigins     []string
	RequestTimeout  time.Duration
	MetricsAddr     string

	SessionSyncInterval time.Duration
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Store = strings.ToLower(getenvDefault("STORE", StorePostgres))
	switch cfg.Store {
	case StorePostgres, StoreMemory:
	default:
		return nil, fmt.Errorf("invalid STORE: %q (want postgres or memory)", cfg.Store)
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && cfg.Store == StorePostgres {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (or STORE=memory)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// Empty NATS_URL keeps change events in process.
	cfg.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.SubjectPrefix = getenvDefault("SUBJECT_PREFIX", "transit")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Empty REDIS_URL disables location telemetry.
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := os.Getenv("LOCATION_TTL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid LOCATION_TTL_SEC: %q", v)
		}
		cfg.LocationTTL = time.Duration(sec) * time.Second
	} else {
		cfg.LocationTTL = 5 * time.Minute
	}

	// HTTP listen address; PORT alone is accepted for PaaS style deployments.
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":" + getenvDefault("PORT", "8080")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}

	cfg.CORSOrigins = splitList(getenvDefault("CORS_ORIGINS", "http://localhost:5173"))

	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT_MS: %q", v)
		}
		cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
	} else {
		cfg.RequestTimeout = 10 * time.Second
	}

	// Active-session gauge resync period; 0 disables the background loop.
	if v := os.Getenv("SESSION_SYNC_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid SESSION_SYNC_INTERVAL_SEC: %q", v)
		}
		cfg.SessionSyncInterval = time.Duration(sec) * time.Second
	} else {
		cfg.SessionSyncInterval = 60 * time.Second
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

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

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

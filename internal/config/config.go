package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"firmledger/internal/db"
)

type APIConfig struct {
	Addr          string
	DBDialect     db.Dialect
	DatabaseURL   string
	SQLitePath    string
	AdminToken    string
	CatalogPath   string
	AuditDir      string
	SeedOnStartup bool
	SamplerSeed   int64
	MonthEvery    time.Duration
}

type CLIConfig struct {
	APIBaseURL string
	AdminToken string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("FIRMLEDGER_API_ADDR", ":8080")
	}

	dialect, err := db.ParseDialect(os.Getenv("DB_DIALECT"))
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:          addr,
		DBDialect:     dialect,
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:    envDefault("DB_SQLITE_PATH", "tmp/firmledger.sqlite"),
		AdminToken:    strings.TrimSpace(os.Getenv("FIRMLEDGER_ADMIN_TOKEN")),
		CatalogPath:   strings.TrimSpace(os.Getenv("FIRMLEDGER_CATALOG")),
		AuditDir:      strings.TrimSpace(os.Getenv("FIRMLEDGER_AUDIT_DIR")),
		SeedOnStartup: envBoolDefault("FIRMLEDGER_SEED_ON_STARTUP", true),
		SamplerSeed:   envInt64Default("FIRMLEDGER_SAMPLER_SEED", time.Now().UnixNano()),
		MonthEvery:    envDurationDefault("FIRMLEDGER_MONTH_EVERY", 24*time.Hour),
	}
	if cfg.DBDialect == db.Postgres && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required when DB_DIALECT=postgres")
	}
	if cfg.MonthEvery <= 0 {
		return cfg, fmt.Errorf("FIRMLEDGER_MONTH_EVERY must be positive")
	}
	return cfg, nil
}

// DSN is the connection string for the configured dialect.
func (c APIConfig) DSN() string {
	if c.DBDialect == db.Postgres {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("FL_API_BASE_URL", "http://localhost:8080"), "/"),
		AdminToken: strings.TrimSpace(os.Getenv("FL_ADMIN_TOKEN")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

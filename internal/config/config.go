// Package config loads service configuration from CLI flags with
// environment-variable overrides (PASTEKEEP_*).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the pastekeep service.
type Config struct {
	Addr        string
	DBPath      string
	CacheDir    string
	LimiterPath string
	MaxBytes    int
	TrustProxy  bool

	// CacheTTL bounds the staleness of cached listing pages.
	CacheTTL time.Duration
	// Quota operations per QuotaWindow, per actor and per action.
	Quota       int
	QuotaWindow time.Duration

	// IdentityHeader names the proxy-supplied header carrying the
	// authenticated user id; sessions are managed outside this service.
	IdentityHeader string
}

// Load parses args (without the program name) and applies env overrides.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		Addr:           ":8080",
		DBPath:         "./pastekeep.db",
		CacheDir:       "./pastekeep-cache",
		LimiterPath:    "./pastekeep-limits.db",
		MaxBytes:       1_048_576,
		CacheTTL:       time.Minute,
		Quota:          30,
		QuotaWindow:    time.Minute,
		IdentityHeader: "X-User-ID",
	}

	fs := flag.NewFlagSet("pastekeep", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite database")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for the listing cache (empty disables)")
	fs.StringVar(&cfg.LimiterPath, "limits-db", cfg.LimiterPath, "path to the rate-limit counter store (empty disables)")
	fs.IntVar(&cfg.MaxBytes, "max-bytes", cfg.MaxBytes, "maximum paste size in bytes")
	fs.BoolVar(&cfg.TrustProxy, "behind-proxy", cfg.TrustProxy, "trust proxy headers for client identity")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "listing cache time to live")
	fs.IntVar(&cfg.Quota, "quota", cfg.Quota, "mutating operations allowed per actor per window")
	fs.DurationVar(&cfg.QuotaWindow, "quota-window", cfg.QuotaWindow, "rate limit window")
	fs.StringVar(&cfg.IdentityHeader, "identity-header", cfg.IdentityHeader, "header carrying the authenticated user id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	applyEnv(cfg)

	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("max-bytes must be positive, got %d", cfg.MaxBytes)
	}
	if cfg.Quota <= 0 {
		return nil, fmt.Errorf("quota must be positive, got %d", cfg.Quota)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PASTEKEEP_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("PASTEKEEP_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PASTEKEEP_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("PASTEKEEP_LIMITS_DB"); v != "" {
		cfg.LimiterPath = v
	}
	if v := os.Getenv("PASTEKEEP_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxBytes = n
		}
	}
	if v := os.Getenv("PASTEKEEP_BEHIND_PROXY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TrustProxy = b
		}
	}
	if v := os.Getenv("PASTEKEEP_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("PASTEKEEP_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota = n
		}
	}
	if v := os.Getenv("PASTEKEEP_QUOTA_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.QuotaWindow = d
		}
	}
	if v := os.Getenv("PASTEKEEP_IDENTITY_HEADER"); v != "" {
		cfg.IdentityHeader = v
	}
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when path is
// empty), merges it on top of the built-in defaults, applies KLASH_*
// environment variable overrides, and returns the final Config. The
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KLASH_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Port, "KLASH_SERVER_PORT")
	setStr(&cfg.Server.Port, "PORT") // platform convention

	setStr(&cfg.Database.URL, "KLASH_DATABASE_URL")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setInt(&cfg.Database.PoolMaxConns, "KLASH_DATABASE_POOL_MAX_CONNS")

	setStr(&cfg.Redis.URL, "KLASH_REDIS_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "KLASH_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "KLASH_REDIS_LOCK_TTL")

	setStr(&cfg.Ledger.NodeURL, "KLASH_LEDGER_NODE_URL")
	setStr(&cfg.Ledger.PrivateKey, "KLASH_LEDGER_PRIVATE_KEY")
	setStr(&cfg.Ledger.ModuleAddress, "KLASH_LEDGER_MODULE_ADDRESS")

	setDuration(&cfg.Resolver.Interval, "KLASH_RESOLVER_INTERVAL")
	setFloat64(&cfg.Resolver.FeeRate, "KLASH_RESOLVER_FEE_RATE")

	setFloat64(&cfg.Limits.MaxStakePerJoin, "KLASH_LIMITS_MAX_STAKE_PER_JOIN")
	setFloat64(&cfg.Limits.MaxStakePerWallet, "KLASH_LIMITS_MAX_STAKE_PER_WALLET")

	setStr(&cfg.LogLevel, "KLASH_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

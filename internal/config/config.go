// Package config defines the engine configuration and provides
// validation helpers.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by KLASH_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Resolver ResolverConfig `toml:"resolver"`
	Limits   LimitsConfig   `toml:"limits"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP listener parameters.
type ServerConfig struct {
	Port         string        `toml:"port"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters. An empty URL
// falls back to the in-memory store.
type DatabaseConfig struct {
	URL          string `toml:"url"`
	PoolMaxConns int    `toml:"pool_max_conns"`
}

// RedisConfig holds Redis connection parameters. An empty URL disables
// the cache layer and the distributed join lock.
type RedisConfig struct {
	URL      string        `toml:"url"`
	CacheTTL time.Duration `toml:"cache_ttl"`
	LockTTL  time.Duration `toml:"lock_ttl"`
}

// LedgerConfig holds the settlement-ledger connection and the custodial
// signer key.
type LedgerConfig struct {
	NodeURL       string `toml:"node_url"`
	PrivateKey    string `toml:"private_key"`
	ModuleAddress string `toml:"module_address"` // defaults to the signer's account
}

// ResolverConfig holds the resolution scheduler parameters.
type ResolverConfig struct {
	Interval time.Duration `toml:"interval"`
	FeeRate  float64       `toml:"fee_rate"`
}

// LimitsConfig holds custodial stake limits.
type LimitsConfig struct {
	MaxStakePerJoin   float64 `toml:"max_stake_per_join"`
	MaxStakePerWallet float64 `toml:"max_stake_per_wallet"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			PoolMaxConns: 10,
		},
		Redis: RedisConfig{
			CacheTTL: 30 * time.Second,
			LockTTL:  2 * time.Minute,
		},
		Resolver: ResolverConfig{
			Interval: 30 * time.Second,
			FeeRate:  0.02,
		},
		Limits: LimitsConfig{
			MaxStakePerJoin:   1000,
			MaxStakePerWallet: 5000,
		},
		LogLevel: "info",
	}
}

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.Ledger.NodeURL == "" {
		return fmt.Errorf("config: ledger node_url is required")
	}
	if c.Ledger.PrivateKey == "" {
		return fmt.Errorf("config: ledger private_key is required")
	}
	if c.Resolver.FeeRate < 0 || c.Resolver.FeeRate >= 1 {
		return fmt.Errorf("config: resolver fee_rate must be in [0, 1)")
	}
	if c.Resolver.Interval <= 0 {
		return fmt.Errorf("config: resolver interval must be positive")
	}
	if c.Limits.MaxStakePerJoin <= 0 || c.Limits.MaxStakePerWallet <= 0 {
		return fmt.Errorf("config: stake limits must be positive")
	}
	return nil
}

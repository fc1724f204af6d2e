package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Resolver.FeeRate != 0.02 {
		t.Errorf("fee_rate = %v, want 0.02", cfg.Resolver.FeeRate)
	}
	if cfg.Resolver.Interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", cfg.Resolver.Interval)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
log_level = "debug"

[server]
port = "9090"

[ledger]
node_url = "http://localhost:8081"
private_key = "0xdeadbeef"

[resolver]
fee_rate = 0.05
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %s, want 9090", cfg.Server.Port)
	}
	if cfg.Resolver.FeeRate != 0.05 {
		t.Errorf("fee_rate = %v, want 0.05", cfg.Resolver.FeeRate)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %s, want debug", cfg.LogLevel)
	}
	// Untouched sections keep their defaults.
	if cfg.Limits.MaxStakePerJoin != 1000 {
		t.Errorf("max_stake_per_join = %v, want default 1000", cfg.Limits.MaxStakePerJoin)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = "9090"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("KLASH_SERVER_PORT", "7070")
	t.Setenv("KLASH_LEDGER_PRIVATE_KEY", "0xsecret")
	t.Setenv("KLASH_RESOLVER_INTERVAL", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env must win over file: port = %s, want 7070", cfg.Server.Port)
	}
	if cfg.Ledger.PrivateKey != "0xsecret" {
		t.Errorf("private_key = %s, want 0xsecret", cfg.Ledger.PrivateKey)
	}
	if cfg.Resolver.Interval != 5*time.Second {
		t.Errorf("interval = %v, want 5s", cfg.Resolver.Interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.toml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.Ledger.NodeURL = "http://localhost:8081"
	valid.Ledger.PrivateKey = "0xdeadbeef"
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing node url", func(c *Config) { c.Ledger.NodeURL = "" }},
		{"missing private key", func(c *Config) { c.Ledger.PrivateKey = "" }},
		{"fee rate too high", func(c *Config) { c.Resolver.FeeRate = 1 }},
		{"negative fee rate", func(c *Config) { c.Resolver.FeeRate = -0.1 }},
		{"zero interval", func(c *Config) { c.Resolver.Interval = 0 }},
		{"zero join limit", func(c *Config) { c.Limits.MaxStakePerJoin = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

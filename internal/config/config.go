// Package config loads and validates daovoter's runtime configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can accept human readable strings
// ("30s", "5m") as well as plain millisecond integers.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			d.Duration = time.Duration(ms) * time.Millisecond
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", raw, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("duration must be a scalar")
	}
}

// Config captures every recognized option from the spec's external
// interfaces section, plus the ambient options needed to run the binary.
type Config struct {
	RPCURL             string   `yaml:"rpc_url"`
	DAOGovernorAddress string   `yaml:"dao_governor_address"`
	VotingAgentAddress string   `yaml:"voting_agent_address"`
	BackendPrivateKey  string   `yaml:"backend_private_key"`
	ChainID            int64    `yaml:"chain_id"`
	StartBlock         uint64   `yaml:"start_block"`
	MaxBlockBatch      uint64   `yaml:"max_block_batch"`
	ReconnectDelay     Duration `yaml:"reconnect_delay_ms"`
	ExecutorConcurrency int     `yaml:"executor_concurrency"`
	JobRetryAttempts   int      `yaml:"job_retry_attempts"`
	JobStallTimeout    Duration `yaml:"job_stall_timeout_ms"`
	ShutdownGrace      Duration `yaml:"shutdown_grace_ms"`
	RPCDeadline        Duration `yaml:"rpc_deadline_ms"`

	// Ambient stack.
	RedisAddr     string `yaml:"redis_addr"`
	DatabaseDSN   string `yaml:"database_dsn"`
	ListenAddress string `yaml:"listen_address"`
	LogFile       string `yaml:"log_file"`
	OTELEndpoint  string `yaml:"otel_endpoint"`
	Environment   string `yaml:"environment"`
}

// Defaults mirrors the documented defaults in §6 of the spec.
func Defaults() Config {
	return Config{
		MaxBlockBatch:        10_000,
		ReconnectDelay:       Duration{5 * time.Second},
		ExecutorConcurrency:  8,
		JobRetryAttempts:     3,
		JobStallTimeout:      Duration{30 * time.Second},
		ShutdownGrace:        Duration{30 * time.Second},
		RPCDeadline:          Duration{30 * time.Second},
		ListenAddress:        ":9090",
		Environment:          "production",
	}
}

// Load reads YAML configuration from path, applies defaults for unset
// fields, overlays environment variables for secrets, and validates the
// result. Configuration errors are fatal at startup (§7).
func Load(path string) (Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverlay(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverlay lets secrets and deployment-specific values be supplied
// without committing them to the YAML file.
func applyEnvOverlay(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DAOVOTER_BACKEND_PRIVATE_KEY")); v != "" {
		cfg.BackendPrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("DAOVOTER_RPC_URL")); v != "" {
		cfg.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DAOVOTER_REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("DAOVOTER_DATABASE_DSN")); v != "" {
		cfg.DatabaseDSN = v
	}
}

// Validate checks that every required field is present and well formed.
// A missing required key or malformed address is a fatal startup error
// per §7; the scanner never enters "starting" when this returns an error.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if !isHexAddress(c.DAOGovernorAddress) {
		return fmt.Errorf("dao_governor_address must be a hex address")
	}
	if !isHexAddress(c.VotingAgentAddress) {
		return fmt.Errorf("voting_agent_address must be a hex address")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive")
	}
	if c.MaxBlockBatch == 0 {
		return fmt.Errorf("max_block_batch must be positive")
	}
	if c.ExecutorConcurrency <= 0 {
		return fmt.Errorf("executor_concurrency must be positive")
	}
	if c.JobRetryAttempts <= 0 {
		return fmt.Errorf("job_retry_attempts must be positive")
	}
	if strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("redis_addr is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database_dsn is required")
	}
	return nil
}

// VotingEnabled reports whether a signer key was supplied. Voting is
// disabled (read-only mode) when absent, per §6.
func (c Config) VotingEnabled() bool {
	return strings.TrimSpace(c.BackendPrivateKey) != ""
}

func isHexAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return false
	}
	addr = addr[2:]
	if len(addr) != 40 {
		return false
	}
	for _, r := range addr {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

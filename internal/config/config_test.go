package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	// Use proper 40-hex-char addresses.
	body := `
rpc_url: "wss://node.example/ws"
dao_governor_address: "0x1111111111111111111111111111111111111111"
voting_agent_address: "0x2222222222222222222222222222222222222222"
chain_id: 1
redis_addr: "localhost:6379"
database_dsn: "postgres://localhost/daovoter"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000), cfg.MaxBlockBatch)
	assert.Equal(t, 8, cfg.ExecutorConcurrency)
	assert.Equal(t, 3, cfg.JobRetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace.Duration)
	assert.False(t, cfg.VotingEnabled())
}

func TestLoadRejectsMalformedAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
rpc_url: "wss://node.example/ws"
dao_governor_address: "not-an-address"
voting_agent_address: "0x2222222222222222222222222222222222222222"
chain_id: 1
redis_addr: "localhost:6379"
database_dsn: "postgres://localhost/daovoter"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresChainID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
rpc_url: "wss://node.example/ws"
dao_governor_address: "0x1111111111111111111111111111111111111111"
voting_agent_address: "0x2222222222222222222222222222222222222222"
redis_addr: "localhost:6379"
database_dsn: "postgres://localhost/daovoter"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDurationUnmarshalAcceptsMillisecondIntegers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
rpc_url: "wss://node.example/ws"
dao_governor_address: "0x1111111111111111111111111111111111111111"
voting_agent_address: "0x2222222222222222222222222222222222222222"
chain_id: 5
redis_addr: "localhost:6379"
database_dsn: "postgres://localhost/daovoter"
job_stall_timeout_ms: 45000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.JobStallTimeout.Duration)
}

func TestEnvOverlayOverridesPrivateKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
rpc_url: "wss://node.example/ws"
dao_governor_address: "0x1111111111111111111111111111111111111111"
voting_agent_address: "0x2222222222222222222222222222222222222222"
chain_id: 1
redis_addr: "localhost:6379"
database_dsn: "postgres://localhost/daovoter"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("DAOVOTER_BACKEND_PRIVATE_KEY", "deadbeef")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.VotingEnabled())
}

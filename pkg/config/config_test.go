package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"admin_address": "0x1000000000000000000000000000000000000001",
		"admin_token": "secret"
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, int64(11155111), cfg.ChainID)
	assert.Equal(t, "strict", cfg.OracleFailurePolicy)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestValidateRejectsBadAdminAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdminAddress = "not-an-address"
	cfg.AdminToken = "secret"

	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdminAddress = "0x1000000000000000000000000000000000000001"
	cfg.AdminToken = "secret"
	cfg.OracleFailurePolicy = "optimistic"

	require.Error(t, cfg.Validate())
}

func TestEnvOverridesSecrets(t *testing.T) {
	path := writeConfig(t, `{
		"admin_address": "0x1000000000000000000000000000000000000001",
		"admin_token": "from-file"
	}`)

	t.Setenv("TOKENGATE_ADMIN_TOKEN", "from-env")
	t.Setenv("TOKENGATE_ETH_RPC", "https://example.invalid/rpc")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.AdminToken)
	assert.Equal(t, "https://example.invalid/rpc", cfg.EthereumRPC)
}

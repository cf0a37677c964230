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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)

	assert.Equal(t, "json", settings.OutputMode)
	assert.Equal(t, 30*time.Second, settings.QuoteTTL)
	assert.Equal(t, 12*time.Second, settings.SourceTimeout)
	assert.Equal(t, time.Second, settings.DebounceWindow)
	assert.Equal(t, time.Minute, settings.RateWindow)
	assert.Equal(t, 30, settings.SourceRateLimit)
	assert.Equal(t, uint16(50), settings.DefaultSlippageBps)
	assert.Equal(t, int64(1), settings.EVMChainID)
	assert.True(t, settings.CacheEnabled)
}

func TestFileConfigApplies(t *testing.T) {
	path := writeConfig(t, `
output: plain
log_level: debug
timeout: 20s
quotes:
  ttl: 45s
  debounce: 250ms
  rate_limit: 10
  slippage_bps: 100
chains:
  evm_chain_id: 8453
sources:
  oneinch:
    api_key: file-key
wallets:
  evm:
    address: "0x1111111111111111111111111111111111111111"
    name: main
`)

	settings, err := Load(GlobalFlags{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "plain", settings.OutputMode)
	assert.Equal(t, "debug", settings.LogLevel)
	assert.Equal(t, 20*time.Second, settings.Timeout)
	assert.Equal(t, 45*time.Second, settings.QuoteTTL)
	assert.Equal(t, 250*time.Millisecond, settings.DebounceWindow)
	assert.Equal(t, 10, settings.SourceRateLimit)
	assert.Equal(t, uint16(100), settings.DefaultSlippageBps)
	assert.Equal(t, int64(8453), settings.EVMChainID)
	assert.Equal(t, "file-key", settings.OneInchAPIKey)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", settings.EVMWalletAddress)
	assert.Equal(t, "main", settings.EVMWalletName)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
timeout: 20s
sources:
  oneinch:
    api_key: file-key
`)
	t.Setenv("TRADEDESK_TIMEOUT", "5s")
	t.Setenv("TRADEDESK_1INCH_API_KEY", "env-key")
	t.Setenv("TRADEDESK_QUOTE_TTL", "10s")
	t.Setenv("TRADEDESK_SOL_WALLET", "So11111111111111111111111111111111111111112")

	settings, err := Load(GlobalFlags{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, settings.Timeout)
	assert.Equal(t, "env-key", settings.OneInchAPIKey)
	assert.Equal(t, 10*time.Second, settings.QuoteTTL)
	assert.Equal(t, "So11111111111111111111111111111111111111112", settings.SolWalletAddress)
}

func TestFlagsOverrideEverything(t *testing.T) {
	path := writeConfig(t, "output: plain\n")
	t.Setenv("TRADEDESK_OUTPUT", "plain")

	settings, err := Load(GlobalFlags{
		ConfigPath: path,
		JSON:       true,
		Timeout:    "3s",
		Select:     "source, to_amount",
		NoCache:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "json", settings.OutputMode)
	assert.Equal(t, 3*time.Second, settings.Timeout)
	assert.Equal(t, []string{"source", "to_amount"}, settings.SelectFields)
	assert.False(t, settings.CacheEnabled)
}

func TestConflictingOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		JSON:       true,
		Plain:      true,
	})
	require.Error(t, err)
}

func TestInvalidSlippageRejected(t *testing.T) {
	path := writeConfig(t, "quotes:\n  slippage_bps: 9999\n")
	_, err := Load(GlobalFlags{ConfigPath: path})
	require.Error(t, err)
}

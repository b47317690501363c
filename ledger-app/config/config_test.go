package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/harberger/x/asset"
)

const minimalConfig = `
ledger:
  authority: "0x1000000000000000000000000000000000000001"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.API.ReadHeaderTimeout)
	assert.Equal(t, int64(65536), cfg.API.MaxBodyBytes)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "X-Signature", cfg.Auth.SignatureHeader)
	assert.Equal(t, "X-Caller", cfg.Auth.CallerHeader)
	assert.Equal(t, "X-Nonce", cfg.Auth.NonceHeader)
	assert.Equal(t, "X-Expiry", cfg.Auth.ExpiryHeader)
	assert.Equal(t, 5*time.Minute, cfg.Auth.MaxValidity)
	assert.Equal(t, 1<<20, cfg.Auth.NonceCapacity)

	assert.Equal(t, uint64(100), cfg.Ledger.TaxRateBps)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.CycleDuration)
	assert.Equal(t, uint64(1000), cfg.Ledger.MinIncreaseBps)
	assert.False(t, cfg.Ledger.StrictCollect)

	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, time.Hour, cfg.Sweeper.Period)
}

func TestLoadReadsSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
api:
  listen_addr: "127.0.0.1:9000"
  enable_cors: true
auth:
  enabled: false
ledger:
  authority: "0x1000000000000000000000000000000000000001"
  tax_rate_bps: 250
  cycle_duration: 1h
  allowed_currencies:
    - "0x2000000000000000000000000000000000000002"
  strict_collect: true
journal:
  path: /tmp/events.journal
sweeper:
  period: 10m
  genesis_time: "2025-01-01T00:00:00Z"
bank:
  tokens:
    - "0x2000000000000000000000000000000000000002"
  genesis:
    - holder: "0x3000000000000000000000000000000000000003"
      currency: native
      amount: "5000"
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.API.ListenAddr)
	assert.True(t, cfg.API.EnableCORS)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, uint64(250), cfg.Ledger.TaxRateBps)
	assert.Equal(t, time.Hour, cfg.Ledger.CycleDuration)
	assert.True(t, cfg.Ledger.StrictCollect)
	assert.Equal(t, "/tmp/events.journal", cfg.Journal.Path)
	assert.Equal(t, 10*time.Minute, cfg.Sweeper.Period)
	assert.True(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Equal(cfg.Sweeper.GenesisTime))

	allowed, err := cfg.AllowedCurrencies()
	require.NoError(t, err)
	require.Len(t, allowed, 1)
	assert.False(t, allowed[0].IsNative())

	require.Len(t, cfg.Bank.Genesis, 1)
	assert.Equal(t, "native", cfg.Bank.Genesis[0].Currency)
	assert.Equal(t, "5000", cfg.Bank.Genesis[0].Amount)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LEDGER_TAX_RATE_BPS", "700")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, uint64(700), cfg.Ledger.TaxRateBps)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "missing authority",
			mutate: func(c *Config) { c.Ledger.Authority = "" },
			errMsg: "ledger.authority",
		},
		{
			name:   "no replay window",
			mutate: func(c *Config) { c.Auth.MaxValidity = 0 },
			errMsg: "auth.max_validity",
		},
		{
			name:   "missing nonce header",
			mutate: func(c *Config) { c.Auth.NonceHeader = "" },
			errMsg: "auth.nonce_header",
		},
		{
			name:   "bad custody",
			mutate: func(c *Config) { c.Ledger.Custody = "nope" },
			errMsg: "ledger.custody",
		},
		{
			name:   "tax rate out of range",
			mutate: func(c *Config) { c.Ledger.TaxRateBps = 1_000_001 },
			errMsg: "tax_rate_bps",
		},
		{
			name:   "bad allowed currency",
			mutate: func(c *Config) { c.Ledger.AllowedCurrencies = []string{"0x12"} },
			errMsg: "ledger.allowed_currencies",
		},
		{
			name:   "native token",
			mutate: func(c *Config) { c.Bank.Tokens = []string{"native"} },
			errMsg: "native",
		},
		{
			name: "bad genesis amount",
			mutate: func(c *Config) {
				c.Bank.Genesis = []GenesisBalance{{
					Holder:   "0x3000000000000000000000000000000000000003",
					Currency: "native",
					Amount:   "-1",
				}}
			},
			errMsg: "bank.genesis[0].amount",
		},
		{
			name:   "zero sweep period",
			mutate: func(c *Config) { c.Sweeper.Period = 0 },
			errMsg: "sweeper.period",
		},
		{
			name:   "empty listen address",
			mutate: func(c *Config) { c.API.ListenAddr = " " },
			errMsg: "api.listen_addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("disabled sweeper ignores period", func(t *testing.T) {
		cfg := valid()
		cfg.Sweeper.Enabled = false
		cfg.Sweeper.Period = 0
		require.NoError(t, cfg.Validate())
	})
}

func TestTokensParsesAddresses(t *testing.T) {
	cfg := &Config{Bank: BankConfig{Tokens: []string{"0x2000000000000000000000000000000000000002"}}}
	tokens, err := cfg.Tokens()
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.NotEqual(t, asset.Native, tokens[0])
}

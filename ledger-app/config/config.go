package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/auth"
	"github.com/compose-network/harberger/x/patronage"
)

// Config holds the complete application configuration
type Config struct {
	API     APIServerConfig `mapstructure:"api"     yaml:"api"`
	Metrics MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig       `mapstructure:"log"     yaml:"log"`
	Auth    auth.Config     `mapstructure:"auth"    yaml:"auth"`
	Ledger  LedgerConfig    `mapstructure:"ledger"  yaml:"ledger"`
	Journal JournalConfig   `mapstructure:"journal" yaml:"journal"`
	Sweeper SweeperConfig   `mapstructure:"sweeper" yaml:"sweeper"`
	Bank    BankConfig      `mapstructure:"bank"    yaml:"bank"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"    yaml:"shutdown_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      yaml:"max_body_bytes"`
	EnableCORS        bool          `mapstructure:"enable_cors"         yaml:"enable_cors"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// LedgerConfig holds the slot ledger economics and persistence
type LedgerConfig struct {
	Authority         string        `mapstructure:"authority"          yaml:"authority"          env:"LEDGER_AUTHORITY"`
	Custody           string        `mapstructure:"custody"            yaml:"custody"`
	TaxRateBps        uint64        `mapstructure:"tax_rate_bps"       yaml:"tax_rate_bps"`
	CycleDuration     time.Duration `mapstructure:"cycle_duration"     yaml:"cycle_duration"`
	MinIncreaseBps    uint64        `mapstructure:"min_increase_bps"   yaml:"min_increase_bps"`
	AllowedCurrencies []string      `mapstructure:"allowed_currencies" yaml:"allowed_currencies"`
	StrictCollect     bool          `mapstructure:"strict_collect"     yaml:"strict_collect"`
	StateFile         string        `mapstructure:"state_file"         yaml:"state_file"         env:"LEDGER_STATE_FILE"`
}

// JournalConfig holds the event journal location; empty keeps events in memory
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path" env:"JOURNAL_PATH"`
}

// SweeperConfig holds periodic collection settings
type SweeperConfig struct {
	Enabled     bool          `mapstructure:"enabled"      yaml:"enabled"`
	Period      time.Duration `mapstructure:"period"       yaml:"period"`
	GenesisTime time.Time     `mapstructure:"genesis_time" yaml:"genesis_time"`
}

// BankConfig configures the in-process asset router
type BankConfig struct {
	Tokens  []string         `mapstructure:"tokens"  yaml:"tokens"`
	Genesis []GenesisBalance `mapstructure:"genesis" yaml:"genesis"`
}

// GenesisBalance seeds a balance at startup
type GenesisBalance struct {
	Holder   string `mapstructure:"holder"   yaml:"holder"`
	Currency string `mapstructure:"currency" yaml:"currency"`
	Amount   string `mapstructure:"amount"   yaml:"amount"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.shutdown_timeout", "10s")
	v.SetDefault("api.max_header_bytes", 1048576)
	v.SetDefault("api.max_body_bytes", 65536)
	v.SetDefault("api.enable_cors", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.signature_header", "X-Signature")
	v.SetDefault("auth.nonce_header", "X-Nonce")
	v.SetDefault("auth.expiry_header", "X-Expiry")
	v.SetDefault("auth.max_validity", "5m")
	v.SetDefault("auth.nonce_capacity", 1<<20)
	v.SetDefault("auth.caller_header", "X-Caller")

	v.SetDefault("ledger.authority", "")
	v.SetDefault("ledger.custody", "")
	v.SetDefault("ledger.tax_rate_bps", 100)
	v.SetDefault("ledger.cycle_duration", "24h")
	v.SetDefault("ledger.min_increase_bps", 1000)
	v.SetDefault("ledger.allowed_currencies", []string{})
	v.SetDefault("ledger.strict_collect", false)
	v.SetDefault("ledger.state_file", "")

	v.SetDefault("journal.path", "")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.period", "1h")

	v.SetDefault("bank.tokens", []string{})
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateSweeper(); err != nil {
		return err
	}
	if err := c.validateBank(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.ListenAddr) == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	if c.API.MaxBodyBytes <= 0 {
		return fmt.Errorf("api.max_body_bytes must be positive, got %d", c.API.MaxBodyBytes)
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.SignatureHeader) == "" {
		return fmt.Errorf("auth.signature_header is required when auth is enabled")
	}
	if c.Auth.Enabled && (strings.TrimSpace(c.Auth.NonceHeader) == "" || strings.TrimSpace(c.Auth.ExpiryHeader) == "") {
		return fmt.Errorf("auth.nonce_header and auth.expiry_header are required when auth is enabled")
	}
	if c.Auth.Enabled && c.Auth.MaxValidity <= 0 {
		return fmt.Errorf("auth.max_validity must be positive, got %s", c.Auth.MaxValidity)
	}
	if c.Auth.NonceCapacity < 0 {
		return fmt.Errorf("auth.nonce_capacity must not be negative")
	}
	if !c.Auth.Enabled && strings.TrimSpace(c.Auth.CallerHeader) == "" {
		return fmt.Errorf("auth.caller_header is required when auth is disabled")
	}
	return nil
}

func (c *Config) validateLedger() error {
	if !common.IsHexAddress(c.Ledger.Authority) {
		return fmt.Errorf("ledger.authority must be a hex address, got %q", c.Ledger.Authority)
	}
	if c.Ledger.Custody != "" && !common.IsHexAddress(c.Ledger.Custody) {
		return fmt.Errorf("ledger.custody must be a hex address, got %q", c.Ledger.Custody)
	}
	if c.Ledger.TaxRateBps > 100*patronage.BasisPoints {
		return fmt.Errorf("ledger.tax_rate_bps %d is out of range", c.Ledger.TaxRateBps)
	}
	if c.Ledger.CycleDuration < 0 {
		return fmt.Errorf("ledger.cycle_duration must not be negative")
	}
	if _, err := c.AllowedCurrencies(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSweeper() error {
	if c.Sweeper.Enabled && c.Sweeper.Period <= 0 {
		return fmt.Errorf("sweeper.period must be positive when the sweeper is enabled")
	}
	return nil
}

func (c *Config) validateBank() error {
	if _, err := c.Tokens(); err != nil {
		return err
	}
	for i, g := range c.Bank.Genesis {
		if !common.IsHexAddress(g.Holder) {
			return fmt.Errorf("bank.genesis[%d].holder must be a hex address", i)
		}
		if _, err := asset.ParseCurrency(g.Currency); err != nil {
			return fmt.Errorf("bank.genesis[%d]: %w", i, err)
		}
		if _, err := uint256.FromDecimal(g.Amount); err != nil {
			return fmt.Errorf("bank.genesis[%d].amount: %w", i, err)
		}
	}
	return nil
}

// AllowedCurrencies parses ledger.allowed_currencies.
func (c *Config) AllowedCurrencies() ([]asset.Currency, error) {
	return parseCurrencies("ledger.allowed_currencies", c.Ledger.AllowedCurrencies)
}

// Tokens parses bank.tokens.
func (c *Config) Tokens() ([]asset.Currency, error) {
	out, err := parseCurrencies("bank.tokens", c.Bank.Tokens)
	if err != nil {
		return nil, err
	}
	for _, t := range out {
		if t.IsNative() {
			return nil, fmt.Errorf("bank.tokens must not list the native asset")
		}
	}
	return out, nil
}

func parseCurrencies(field string, raw []string) ([]asset.Currency, error) {
	out := make([]asset.Currency, 0, len(raw))
	for _, s := range raw {
		c, err := asset.ParseCurrency(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, c)
	}
	return out, nil
}

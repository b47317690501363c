package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/patronage"
)

const (
	// DefaultTaxRateBps is 1% of the price per year.
	DefaultTaxRateBps = 100
	// DefaultCycleDuration is the minimum tenure after a claim.
	DefaultCycleDuration = 24 * time.Hour
	// DefaultMinIncreaseBps is the minimum bid increase (10%).
	DefaultMinIncreaseBps = 1000
)

// DefaultCustody is the identity holding escrowed deposits when none is configured.
var DefaultCustody = common.BytesToAddress(crypto.Keccak256([]byte("harberger.ledger.custody")))

// Config is fixed at construction and held by the Ledger.
type Config struct {
	// Authority is the initial controlling principal.
	Authority common.Address
	// Custody is the ledger's own escrow identity on the asset router.
	Custody common.Address

	TaxRateBps     uint64
	CycleDuration  time.Duration
	MinIncreaseBps uint64

	// AllowedCurrencies seeds the allow-list; the native asset is always allowed.
	AllowedCurrencies []asset.Currency

	// StrictCollect makes Collect fail with ErrNothingToCollect when nothing is owed.
	StrictCollect bool

	// Now returns the current time. Defaults to time.Now.
	Now     func() time.Time
	Logger  zerolog.Logger
	Sink    EventSink
	Metrics *Metrics
}

// DefaultConfig returns a config with default economics for authority.
func DefaultConfig(authority common.Address) Config {
	return Config{
		Authority:      authority,
		Custody:        DefaultCustody,
		TaxRateBps:     DefaultTaxRateBps,
		CycleDuration:  DefaultCycleDuration,
		MinIncreaseBps: DefaultMinIncreaseBps,
		Now:            time.Now,
		Logger:         zerolog.Nop(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Authority == (common.Address{}) {
		return errors.New("ledger: authority is required")
	}
	if c.Custody == (common.Address{}) {
		return errors.New("ledger: custody identity is required")
	}
	if c.Custody == c.Authority {
		return errors.New("ledger: custody and authority must differ")
	}
	if c.CycleDuration < 0 {
		return fmt.Errorf("ledger: cycle duration must not be negative, got %s", c.CycleDuration)
	}
	if c.TaxRateBps > 100*patronage.BasisPoints {
		return fmt.Errorf("ledger: tax rate %d bps exceeds 10000%% per year", c.TaxRateBps)
	}
	return nil
}

func (c *Config) apply() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger.GetLevel() == zerolog.NoLevel {
		c.Logger = zerolog.Nop()
	}
	if c.Sink == nil {
		c.Sink = NopSink{}
	}
}

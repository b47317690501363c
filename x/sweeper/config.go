package sweeper

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultPeriod is the interval between two sweeps.
const DefaultPeriod = time.Hour

// Config configures a Sweeper.
type Config struct {
	// Period is the interval between sweeps.
	Period time.Duration
	// GenesisTime anchors sweep K at GenesisTime + K*Period. Zero means the
	// time Start is called.
	GenesisTime time.Time
	// Now returns the current time. Defaults to time.Now if nil.
	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *Metrics
}

// DefaultConfig returns a config with an hourly period.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		Period: DefaultPeriod,
		Now:    time.Now,
		Logger: logger,
	}
}

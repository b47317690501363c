// Package sweeper periodically collects tax on every held slot so that
// overdrawn slots are foreclosed without waiting for a bid.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/harberger/x/ledger"
)

// Collector is the part of the ledger a sweep needs.
type Collector interface {
	Authority() common.Address
	HeldIDs() []ledger.SlotID
	Collect(ctx context.Context, caller common.Address, id ledger.SlotID) (ledger.CollectResult, error)
}

// Result summarizes one sweep. Failed counts slots whose collection was
// rejected; they are retried on the next sweep.
type Result struct {
	Collected  int
	Foreclosed int
	Failed     int
}

// Sweeper runs a collection sweep at GenesisTime + K*Period for K = 0,1,2,...
// Periods missed while a sweep ran long, or while the process was suspended,
// are coalesced into a single sweep.
type Sweeper struct {
	mu      sync.Mutex
	log     zerolog.Logger
	metrics *Metrics
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	ledger Collector
	period time.Duration
	now    func() time.Time

	genesis  time.Time
	last     uint64
	hasSwept bool
}

// New constructs a Sweeper over l.
func New(cfg Config, l Collector) (*Sweeper, error) {
	if l == nil {
		return nil, errors.New("sweeper: collector is required")
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Sweeper{
		log:     cfg.Logger.With().Str("component", "sweeper").Logger(),
		metrics: cfg.Metrics,
		ledger:  l,
		period:  cfg.Period,
		now:     cfg.Now,
		genesis: cfg.GenesisTime,
	}, nil
}

// Start begins sweeping until the context is canceled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	if s.genesis.IsZero() {
		s.genesis = s.now()
	}

	s.log.Info().
		Dur("period", s.period).
		Time("genesis", s.genesis).
		Msg("Sweeper started")

	go s.run(runCtx, s.done)
	return nil
}

// Stop halts the sweeper and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			now := s.now()
			if !now.Before(s.genesis) {
				period, start := s.PeriodForTime(now)
				if !s.hasSwept || period > s.last {
					s.sweep(ctx, period, start)
				}
			}
			timer.Reset(s.untilNext())
		}
	}
}

// untilNext is the delay before the next period that has not been swept.
func (s *Sweeper) untilNext() time.Duration {
	now := s.now()
	next := s.genesis
	if s.hasSwept {
		next = s.periodStart(s.last + 1)
	} else if !now.Before(s.genesis) {
		return 0
	}
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (s *Sweeper) sweep(ctx context.Context, period uint64, start time.Time) {
	if s.hasSwept && period > s.last+1 {
		s.log.Warn().
			Uint64("from", s.last+1).
			Uint64("to", period).
			Msg("Coalescing missed sweep periods")
	}
	s.log.Debug().Uint64("period", period).Time("period_start", start).Msg("Sweep period started")

	// Failures are logged by Sweep; the next period retries.
	_, _ = s.Sweep(ctx)
	s.last = period
	s.hasSwept = true
}

// Sweep collects tax on every held slot immediately, acting as the ledger's
// current authority. Each slot is collected on its own, so one slot that
// cannot be collected does not hold back the rest. Sweep only fails when
// ctx ends or the authority itself is rejected.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	caller := s.ledger.Authority()

	var res Result
	for _, id := range s.ledger.HeldIDs() {
		if err := ctx.Err(); err != nil {
			s.metrics.record(start, res, err)
			return res, err
		}

		r, err := s.ledger.Collect(ctx, caller, id)
		switch {
		case errors.Is(err, ledger.ErrNothingToCollect), errors.Is(err, ledger.ErrSlotNotFound):
			continue
		case errors.Is(err, ledger.ErrUnauthorized):
			s.metrics.record(start, res, err)
			s.log.Error().Err(err).Msg("Collection sweep rejected")
			return res, err
		case err != nil:
			res.Failed++
			s.log.Warn().Err(err).Uint64("slot_id", uint64(id)).Msg("Slot collection failed, will retry next sweep")
			continue
		}

		if r.Collected.IsZero() {
			continue
		}
		res.Collected++
		if r.Foreclosed {
			res.Foreclosed++
		}
	}
	s.metrics.record(start, res, nil)

	s.log.Info().
		Int("collected", res.Collected).
		Int("foreclosed", res.Foreclosed).
		Int("failed", res.Failed).
		Dur("duration", time.Since(start)).
		Msg("Collection sweep completed")
	return res, nil
}

// PeriodForTime returns the period ID and the period start time for t.
func (s *Sweeper) PeriodForTime(t time.Time) (uint64, time.Time) {
	if t.Before(s.genesis) {
		return 0, s.genesis
	}
	id := uint64(t.Sub(s.genesis) / s.period)
	return id, s.periodStart(id)
}

func (s *Sweeper) periodStart(id uint64) time.Time {
	return s.genesis.Add(time.Duration(id) * s.period)
}

// Package ledger implements the Harberger-tax slot ledger: claims and re-bids
// against self-assessed prices, continuous tax accrual, collection and
// foreclosure, and forced removal by the authority.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/gate"
	"github.com/compose-network/harberger/x/patronage"
)

// Ledger owns all slot state. Operations are serialized: each one runs to
// completion against a consistent view and either commits entirely or
// leaves no trace.
type Ledger struct {
	mu sync.Mutex
	// pubMu is taken before mu is released so sinks see events in Seq order.
	pubMu sync.Mutex

	cfg     Config
	engine  patronage.Engine
	gate    *gate.Gate
	router  asset.Router
	store   Store
	allowed map[asset.Currency]struct{}
	nextID  SlotID
	lastNow time.Time
	seq     uint64

	log     zerolog.Logger
	metrics *Metrics
}

// New creates an empty ledger settling through router.
func New(cfg Config, router asset.Router) (*Ledger, error) {
	return newLedger(cfg, router, NewMemoryStore(), 1)
}

func newLedger(cfg Config, router asset.Router, store Store, nextID SlotID) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if router == nil {
		return nil, fmt.Errorf("ledger: asset router is required")
	}
	if nextID == 0 {
		return nil, fmt.Errorf("ledger: next id must be positive")
	}
	cfg.apply()

	g, err := gate.New(cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	l := &Ledger{
		cfg:     cfg,
		engine:  patronage.New(cfg.TaxRateBps),
		gate:    g,
		router:  router,
		store:   store,
		allowed: map[asset.Currency]struct{}{asset.Native: {}},
		nextID:  nextID,
		log:     cfg.Logger.With().Str("component", "slot-ledger").Logger(),
		metrics: cfg.Metrics,
	}
	for _, c := range cfg.AllowedCurrencies {
		l.allowed[c] = struct{}{}
	}
	l.metrics.setActive(store.Len())

	l.log.Info().
		Str("authority", cfg.Authority.Hex()).
		Str("custody", cfg.Custody.Hex()).
		Uint64("tax_rate_bps", cfg.TaxRateBps).
		Dur("cycle_duration", cfg.CycleDuration).
		Uint64("min_increase_bps", cfg.MinIncreaseBps).
		Int("allowed_currencies", len(l.allowed)).
		Msg("Slot ledger initialized")

	return l, nil
}

// run executes op atomically and publishes its events once committed.
func (l *Ledger) run(ctx context.Context, op string, fn func(tx *txn) error) error {
	start := time.Now()

	l.mu.Lock()
	tx := l.begin()
	err := fn(tx)
	var events []Event
	if err != nil {
		tx.rollback()
	} else {
		events = tx.commit()
		for i := range events {
			l.seq++
			events[i].Seq = l.seq
		}
		l.metrics.setActive(l.store.Len())
	}
	if len(events) > 0 {
		l.pubMu.Lock()
	}
	l.mu.Unlock()

	l.metrics.recordOperation(op, start, err)
	if err != nil {
		l.log.Debug().Err(err).
			Str("operation", op).
			Str("kind", KindOf(err).String()).
			Msg("Operation aborted")
		return err
	}

	if len(events) > 0 {
		perr := l.cfg.Sink.Publish(ctx, events)
		l.pubMu.Unlock()
		if perr != nil {
			l.log.Warn().Err(perr).Str("operation", op).Int("events", len(events)).
				Msg("Failed to publish ledger events")
		}
	}
	return nil
}

// tick returns the ledger clock truncated to seconds and never moving backwards.
func (l *Ledger) tick() time.Time {
	now := l.cfg.Now().UTC().Truncate(time.Second)
	if now.Before(l.lastNow) {
		return l.lastNow
	}
	l.lastNow = now
	return now
}

func (l *Ledger) checkID(id SlotID) error {
	if id == NewSlotID || id >= l.nextID {
		return newError(KindSlotNotFound, fmt.Sprintf("slot %d has never been allocated", id)).WithSlot(id)
	}
	return nil
}

// checkReadID accepts any id except the creation sentinel. Ids never
// allocated read as the default record.
func checkReadID(id SlotID) error {
	if id == NewSlotID {
		return newError(KindSlotNotFound, "slot 0 is the creation sentinel").WithSlot(id)
	}
	return nil
}

func (l *Ledger) requireAuthority(caller common.Address) error {
	if err := l.gate.Require(caller); err != nil {
		return newError(KindUnauthorized, "administrative operation").WithCause(err)
	}
	return nil
}

// Slot returns the record for id. Foreclosed and never-claimed slots read as
// the default record.
func (l *Ledger) Slot(id SlotID) (Slot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := checkReadID(id); err != nil {
		return Slot{}, err
	}
	s, ok := l.store.Get(id)
	if !ok {
		return Slot{}.normalize(), nil
	}
	return s, nil
}

// Owed returns the tax owed on id as of the ledger clock.
func (l *Ledger) Owed(id SlotID) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := checkReadID(id); err != nil {
		return nil, err
	}
	s, _ := l.store.Get(id)
	s = s.normalize()
	return l.engine.Owed(s.Price, s.LastTaxSettledAt, l.tick()), nil
}

// View returns id with its tax position.
func (l *Ledger) View(id SlotID) (SlotView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := checkReadID(id); err != nil {
		return SlotView{}, err
	}
	s, _ := l.store.Get(id)
	return l.view(id, s.normalize(), l.tick()), nil
}

// HeldIDs lists the identifiers of held slots in ascending order.
func (l *Ledger) HeldIDs() []SlotID {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]SlotID, 0, l.store.Len())
	l.store.Ascend(func(id SlotID, _ Slot) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Slots lists every held slot in identifier order.
func (l *Ledger) Slots() []SlotView {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.tick()
	out := make([]SlotView, 0, l.store.Len())
	l.store.Ascend(func(id SlotID, s Slot) bool {
		out = append(out, l.view(id, s, now))
		return true
	})
	return out
}

func (l *Ledger) view(id SlotID, s Slot, now time.Time) SlotView {
	owed := l.engine.Owed(s.Price, s.LastTaxSettledAt, now)
	v := SlotView{
		ID:           id,
		Slot:         s,
		Owed:         owed,
		Foreclosable: !s.IsDefault() && !owed.IsZero() && !owed.Lt(s.Deposit),
	}
	if !s.IsDefault() {
		v.BiddableAt = s.LastClaimedAt.Add(l.cfg.CycleDuration)
		if at, ok := l.engine.ForeclosureTime(s.Price, s.Deposit, s.LastTaxSettledAt); ok {
			v.ForeclosesAt = at
		}
	}
	return v
}

// Params returns the ledger-wide configuration and counters.
func (l *Ledger) Params() Params {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Params{
		Authority:         l.gate.Authority(),
		Custody:           l.cfg.Custody,
		TaxRateBps:        l.cfg.TaxRateBps,
		CycleDuration:     l.cfg.CycleDuration,
		MinIncreaseBps:    l.cfg.MinIncreaseBps,
		AllowedCurrencies: l.allowedList(),
		NextID:            l.nextID,
		Now:               l.tick(),
	}
}

// Authority returns the current authority.
func (l *Ledger) Authority() common.Address {
	return l.gate.Authority()
}

// IsCurrencyAllowed reports whether c may be used for new slots.
func (l *Ledger) IsCurrencyAllowed(c asset.Currency) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.allowed[c]
	return ok
}

func (l *Ledger) allowedList() []asset.Currency {
	out := make([]asset.Currency, 0, len(l.allowed))
	for c := range l.allowed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Cmp(out[j].Address()) < 0
	})
	return out
}

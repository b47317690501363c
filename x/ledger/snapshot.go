package ledger

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/renameio/v2"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/harberger/x/asset"
)

// State is the persisted layout of a ledger: slot records keyed by id, the
// currency allow-list, the authority and the next-id counter. Amounts are
// decimal strings.
type State struct {
	Authority         string      `yaml:"authority"`
	NextID            uint64      `yaml:"next_id"`
	AllowedCurrencies []string    `yaml:"allowed_currencies"`
	Clock             time.Time   `yaml:"clock,omitempty"`
	EventSeq          uint64      `yaml:"event_seq,omitempty"`
	Slots             []SlotState `yaml:"slots"`
}

// SlotState is one held slot in State.
type SlotState struct {
	ID               uint64    `yaml:"id"`
	Content          string    `yaml:"content"`
	Price            string    `yaml:"price"`
	Deposit          string    `yaml:"deposit"`
	Holder           string    `yaml:"holder"`
	Currency         string    `yaml:"currency"`
	LastClaimedAt    time.Time `yaml:"last_claimed_at"`
	LastTaxSettledAt time.Time `yaml:"last_tax_settled_at"`
}

// Snapshot captures the ledger state.
func (l *Ledger) Snapshot() *State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := &State{
		Authority: l.gate.Authority().Hex(),
		NextID:    uint64(l.nextID),
		Clock:     l.lastNow,
		EventSeq:  l.seq,
		Slots:     make([]SlotState, 0, l.store.Len()),
	}
	for _, c := range l.allowedList() {
		st.AllowedCurrencies = append(st.AllowedCurrencies, c.String())
	}
	l.store.Ascend(func(id SlotID, s Slot) bool {
		st.Slots = append(st.Slots, SlotState{
			ID:               uint64(id),
			Content:          s.Content,
			Price:            s.Price.Dec(),
			Deposit:          s.Deposit.Dec(),
			Holder:           s.Holder.Hex(),
			Currency:         s.Currency.String(),
			LastClaimedAt:    s.LastClaimedAt.UTC(),
			LastTaxSettledAt: s.LastTaxSettledAt.UTC(),
		})
		return true
	})
	return st
}

// Restore rebuilds a ledger from st. The authority and allow-list in st take
// precedence over cfg; the economics come from cfg.
func Restore(cfg Config, router asset.Router, st *State) (*Ledger, error) {
	if st == nil {
		return nil, fmt.Errorf("ledger: nil state")
	}
	if !common.IsHexAddress(st.Authority) {
		return nil, fmt.Errorf("ledger: invalid authority %q in state", st.Authority)
	}
	cfg.Authority = common.HexToAddress(st.Authority)

	cfg.AllowedCurrencies = nil
	for _, raw := range st.AllowedCurrencies {
		c, err := asset.ParseCurrency(raw)
		if err != nil {
			return nil, fmt.Errorf("ledger: allow-list: %w", err)
		}
		cfg.AllowedCurrencies = append(cfg.AllowedCurrencies, c)
	}

	store := NewMemoryStore()
	for _, ss := range st.Slots {
		id, slot, err := ss.decode()
		if err != nil {
			return nil, err
		}
		if id == NewSlotID || uint64(id) >= st.NextID {
			return nil, fmt.Errorf("ledger: slot %d outside allocated range [1, %d)", id, st.NextID)
		}
		store.Put(id, slot)
	}

	l, err := newLedger(cfg, router, store, SlotID(st.NextID))
	if err != nil {
		return nil, err
	}
	l.lastNow = st.Clock.UTC()
	l.seq = st.EventSeq
	return l, nil
}

func (ss SlotState) decode() (SlotID, Slot, error) {
	id := SlotID(ss.ID)
	price, err := uint256.FromDecimal(ss.Price)
	if err != nil {
		return id, Slot{}, fmt.Errorf("ledger: slot %d price: %w", id, err)
	}
	deposit, err := uint256.FromDecimal(ss.Deposit)
	if err != nil {
		return id, Slot{}, fmt.Errorf("ledger: slot %d deposit: %w", id, err)
	}
	if !common.IsHexAddress(ss.Holder) {
		return id, Slot{}, fmt.Errorf("ledger: slot %d holder %q is not an address", id, ss.Holder)
	}
	currency, err := asset.ParseCurrency(ss.Currency)
	if err != nil {
		return id, Slot{}, fmt.Errorf("ledger: slot %d: %w", id, err)
	}
	return id, Slot{
		Content:          ss.Content,
		Price:            price,
		Deposit:          deposit,
		Holder:           common.HexToAddress(ss.Holder),
		Currency:         currency,
		LastClaimedAt:    ss.LastClaimedAt.UTC(),
		LastTaxSettledAt: ss.LastTaxSettledAt.UTC(),
	}, nil
}

// SaveStateFile atomically writes st to path as YAML.
func SaveStateFile(path string, st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("ledger: encode state: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("ledger: write state file: %w", err)
	}
	return nil
}

// LoadStateFile reads a state written by SaveStateFile. A missing file
// yields an error matching os.ErrNotExist.
func LoadStateFile(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: read state file: %w", err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("ledger: decode state file %s: %w", path, err)
	}
	return &st, nil
}

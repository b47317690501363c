package asset

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var _ Router = (*Bank)(nil)

// Bank is an in-process Router keeping native and token balances for every
// identity. Balance changes are journaled so a snapshot can be reverted.
type Bank struct {
	mu sync.Mutex

	balances  map[Currency]map[common.Address]*uint256.Int
	tokens    map[Currency]struct{}
	rejecting map[common.Address]struct{}

	journal        []balanceChange
	validRevisions []revision
	nextRevisionID int

	metrics *Metrics
	log     zerolog.Logger
}

type balanceChange struct {
	currency Currency
	holder   common.Address
	prev     *uint256.Int // nil when the holder had no entry
}

type revision struct {
	id           int
	journalIndex int
}

// NewBank returns an empty bank. Metrics may be nil.
func NewBank(log zerolog.Logger, metrics *Metrics) *Bank {
	return &Bank{
		balances:  map[Currency]map[common.Address]*uint256.Int{Native: {}},
		tokens:    make(map[Currency]struct{}),
		rejecting: make(map[common.Address]struct{}),
		metrics:   metrics,
		log:       log.With().Str("component", "asset-bank").Logger(),
	}
}

// RegisterToken makes an external token transferable.
func (b *Bank) RegisterToken(c Currency) error {
	if c.IsNative() {
		return fmt.Errorf("cannot register native asset as a token")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens[c] = struct{}{}
	if b.balances[c] == nil {
		b.balances[c] = make(map[common.Address]*uint256.Int)
	}
	return nil
}

// Tokens lists registered tokens in address order.
func (b *Bank) Tokens() []Currency {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Currency, 0, len(b.tokens))
	for c := range b.tokens {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Cmp(out[j].Address()) < 0
	})
	return out
}

// SetRejectNative marks holder as refusing (or accepting) native payments,
// like a contract without a payable fallback.
func (b *Bank) SetRejectNative(holder common.Address, reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reject {
		b.rejecting[holder] = struct{}{}
		return
	}
	delete(b.rejecting, holder)
}

// Mint credits holder out of thin air. Intended for genesis balances.
func (b *Bank) Mint(c Currency, holder common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	defer b.compact()

	l, err := b.legFor(c)
	if err != nil {
		return err
	}
	if _, ok := l.(nativeLeg); ok {
		// Minting is not a payment; bypass the rejection check.
		return b.add(Native, holder, amount)
	}
	return l.credit(holder, amount)
}

// Balance returns the holder's balance in c.
func (b *Bank) Balance(c Currency, holder common.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bal, ok := b.balances[c][holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Transfer moves amount of c from one holder to another. Zero amounts and
// self-transfers succeed without touching balances.
func (b *Bank) Transfer(c Currency, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	if amount.IsZero() || from == to {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.transfer(c, from, to, amount)
	b.compact()
	if b.metrics != nil {
		b.metrics.RecordTransfer(c, err)
	}
	if err != nil {
		b.log.Debug().Err(err).
			Str("currency", c.String()).
			Str("from", from.Hex()).
			Str("to", to.Hex()).
			Str("amount", amount.Dec()).
			Msg("Transfer failed")
		return err
	}

	b.log.Trace().
		Str("currency", c.String()).
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Str("amount", amount.Dec()).
		Msg("Transfer applied")
	return nil
}

func (b *Bank) transfer(c Currency, from, to common.Address, amount *uint256.Int) error {
	l, err := b.legFor(c)
	if err != nil {
		return err
	}

	// Stage both legs so a failing credit leaves no partial debit behind.
	mark := len(b.journal)
	if err := l.debit(from, amount); err != nil {
		return err
	}
	if err := l.credit(to, amount); err != nil {
		b.unwind(mark)
		return err
	}
	return nil
}

func (b *Bank) legFor(c Currency) (leg, error) {
	if c.IsNative() {
		return nativeLeg{b: b}, nil
	}
	if _, ok := b.tokens[c]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, c)
	}
	return tokenLeg{b: b, currency: c}, nil
}

// Snapshot returns an identifier for the current balance revision.
func (b *Bank) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextRevisionID
	b.nextRevisionID++
	b.validRevisions = append(b.validRevisions, revision{id: id, journalIndex: len(b.journal)})
	return id
}

// RevertToSnapshot undoes every balance change made since the snapshot id.
func (b *Bank) RevertToSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.revisionIndex(id)
	if idx < 0 {
		panic(fmt.Errorf("revision id %v cannot be reverted", id))
	}
	b.unwind(b.validRevisions[idx].journalIndex)
	b.validRevisions = b.validRevisions[:idx]
	b.compact()
}

// DiscardSnapshot keeps the changes made since id and forgets the snapshot.
func (b *Bank) DiscardSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.revisionIndex(id)
	if idx < 0 {
		return
	}
	b.validRevisions = b.validRevisions[:idx]
	b.compact()
}

func (b *Bank) revisionIndex(id int) int {
	idx := sort.Search(len(b.validRevisions), func(i int) bool {
		return b.validRevisions[i].id >= id
	})
	if idx == len(b.validRevisions) || b.validRevisions[idx].id != id {
		return -1
	}
	return idx
}

// compact drops the journal once no snapshot can reach it.
func (b *Bank) compact() {
	if len(b.validRevisions) == 0 {
		b.journal = b.journal[:0]
	}
}

func (b *Bank) unwind(mark int) {
	for i := len(b.journal) - 1; i >= mark; i-- {
		ch := b.journal[i]
		if ch.prev == nil {
			delete(b.balances[ch.currency], ch.holder)
			continue
		}
		b.balances[ch.currency][ch.holder] = ch.prev
	}
	b.journal = b.journal[:mark]
}

func (b *Bank) set(c Currency, holder common.Address, v *uint256.Int) {
	book := b.balances[c]
	if book == nil {
		book = make(map[common.Address]*uint256.Int)
		b.balances[c] = book
	}

	var prev *uint256.Int
	if old, ok := book[holder]; ok {
		prev = old
	}
	b.journal = append(b.journal, balanceChange{currency: c, holder: holder, prev: prev})
	book[holder] = v
}

func (b *Bank) add(c Currency, holder common.Address, amount *uint256.Int) error {
	cur := b.balances[c][holder]
	if cur == nil {
		cur = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	b.set(c, holder, next)
	return nil
}

func (b *Bank) sub(c Currency, holder common.Address, amount *uint256.Int) error {
	cur := b.balances[c][holder]
	if cur == nil || cur.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s",
			ErrInsufficientBalance, holder.Hex(), balanceString(cur), amount.Dec())
	}
	b.set(c, holder, new(uint256.Int).Sub(cur, amount))
	return nil
}

// nativeLeg moves the native settlement asset by direct balance credit.
type nativeLeg struct {
	b *Bank
}

func (l nativeLeg) debit(holder common.Address, amount *uint256.Int) error {
	return l.b.sub(Native, holder, amount)
}

func (l nativeLeg) credit(holder common.Address, amount *uint256.Int) error {
	if _, ok := l.b.rejecting[holder]; ok {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, holder.Hex())
	}
	return l.b.add(Native, holder, amount)
}

// tokenLeg moves a registered external token held in escrow.
type tokenLeg struct {
	b        *Bank
	currency Currency
}

func (l tokenLeg) debit(holder common.Address, amount *uint256.Int) error {
	return l.b.sub(l.currency, holder, amount)
}

func (l tokenLeg) credit(holder common.Address, amount *uint256.Int) error {
	return l.b.add(l.currency, holder, amount)
}

func balanceString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

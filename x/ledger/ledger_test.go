package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/patronage"
)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000a0a0a")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	token     = asset.TokenCurrency(common.HexToAddress("0x00000000000000000000000000000000000070c0"))

	genesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	year    = time.Duration(patronage.SecondsPerYear) * time.Second
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) Publish(_ context.Context, events []Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, events...)
	return nil
}

func (e *eventLog) kinds() []EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EventKind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

type harness struct {
	ledger *Ledger
	bank   *asset.Bank
	clock  *testClock
	events *eventLog
	cfg    Config
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	bank := asset.NewBank(zerolog.Nop(), nil)
	require.NoError(t, bank.RegisterToken(token))
	for _, who := range []common.Address{alice, bob, carol} {
		require.NoError(t, bank.Mint(asset.Native, who, uint256.NewInt(1_000_000)))
		require.NoError(t, bank.Mint(token, who, uint256.NewInt(1_000_000)))
	}

	clock := &testClock{now: genesis}
	events := &eventLog{}

	cfg := DefaultConfig(authority)
	cfg.Now = clock.Now
	cfg.Sink = events
	for _, opt := range opts {
		opt(&cfg)
	}

	l, err := New(cfg, bank)
	require.NoError(t, err)

	return &harness{ledger: l, bank: bank, clock: clock, events: events, cfg: cfg}
}

func noMinIncrease(cfg *Config) { cfg.MinIncreaseBps = 0 }

func (h *harness) balance(c asset.Currency, who common.Address) uint64 {
	return h.bank.Balance(c, who).Uint64()
}

func (h *harness) create(t *testing.T, who common.Address, price uint64) SlotID {
	t.Helper()
	res, err := h.ledger.Claim(t.Context(), ClaimRequest{
		ID:       NewSlotID,
		Content:  "ad:" + who.Hex(),
		Currency: asset.Native,
		NewPrice: uint256.NewInt(price),
		Funds:    uint256.NewInt(price),
		Caller:   who,
	})
	require.NoError(t, err)
	return res.ID
}

func bid(id SlotID, who common.Address, declared, price, funds uint64) ClaimRequest {
	return ClaimRequest{
		ID:                   id,
		Content:              "bid:" + who.Hex(),
		Currency:             asset.Native,
		DeclaredCurrentPrice: uint256.NewInt(declared),
		NewPrice:             uint256.NewInt(price),
		Funds:                uint256.NewInt(funds),
		Caller:               who,
	}
}

func TestNew_Validation(t *testing.T) {
	bank := asset.NewBank(zerolog.Nop(), nil)

	_, err := New(Config{}, bank)
	require.Error(t, err)

	cfg := DefaultConfig(authority)
	_, err = New(cfg, nil)
	require.Error(t, err)

	cfg.Custody = authority
	_, err = New(cfg, bank)
	require.Error(t, err)
}

func TestClaim_CreateAllocatesSequentialIDs(t *testing.T) {
	h := newHarness(t)

	first := h.create(t, alice, 1000)
	second := h.create(t, bob, 50)
	require.Equal(t, SlotID(1), first)
	require.Equal(t, SlotID(2), second)

	s, err := h.ledger.Slot(first)
	require.NoError(t, err)
	require.Equal(t, alice, s.Holder)
	require.Equal(t, uint64(1000), s.Price.Uint64())
	require.Equal(t, uint64(1000), s.Deposit.Uint64())
	require.Equal(t, genesis, s.LastClaimedAt)
	require.Equal(t, genesis, s.LastTaxSettledAt)
	require.True(t, s.Currency.IsNative())

	require.Equal(t, uint64(1050), h.balance(asset.Native, h.cfg.Custody))
	require.Equal(t, uint64(999_000), h.balance(asset.Native, alice))
	require.Equal(t, SlotID(3), h.ledger.Params().NextID)
	require.Equal(t, []EventKind{EventClaimed, EventClaimed}, h.events.kinds())
}

func TestClaim_CreateRejections(t *testing.T) {
	h := newHarness(t)

	_, err := h.ledger.Claim(t.Context(), ClaimRequest{
		Currency: asset.Native,
		NewPrice: uint256.NewInt(100),
		Funds:    uint256.NewInt(99),
		Caller:   alice,
	})
	require.ErrorIs(t, err, ErrInvalidNewPrice)

	_, err = h.ledger.Claim(t.Context(), ClaimRequest{
		Currency: token,
		NewPrice: uint256.NewInt(100),
		Funds:    uint256.NewInt(100),
		Caller:   alice,
	})
	require.ErrorIs(t, err, ErrInvalidCurrency)

	// funds the caller does not have
	_, err = h.ledger.Claim(t.Context(), ClaimRequest{
		Currency: asset.Native,
		NewPrice: uint256.NewInt(2_000_000),
		Funds:    uint256.NewInt(2_000_000),
		Caller:   alice,
	})
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, asset.ErrInsufficientBalance)

	require.Equal(t, SlotID(1), h.ledger.Params().NextID)
	require.Empty(t, h.events.kinds())
}

func TestClaim_BidSettlesTaxAndRefundsHolder(t *testing.T) {
	h := newHarness(t, noMinIncrease)
	id := h.create(t, alice, 1000)

	h.clock.Advance(year)

	res, err := h.ledger.Claim(t.Context(), bid(id, bob, 1000, 1010, 1010))
	require.NoError(t, err)
	require.Equal(t, id, res.ID)
	require.Equal(t, uint64(10), res.TaxPaid.Uint64())
	require.Equal(t, uint64(990), res.Refunded.Uint64())
	require.False(t, res.Foreclosed)

	require.Equal(t, uint64(10), h.balance(asset.Native, authority))
	require.Equal(t, uint64(999_000+990), h.balance(asset.Native, alice))
	require.Equal(t, uint64(1_000_000-1010), h.balance(asset.Native, bob))
	require.Equal(t, uint64(1010), h.balance(asset.Native, h.cfg.Custody))

	s, err := h.ledger.Slot(id)
	require.NoError(t, err)
	require.Equal(t, bob, s.Holder)
	require.Equal(t, uint64(1010), s.Price.Uint64())
	require.Equal(t, uint64(1010), s.Deposit.Uint64())
	require.Equal(t, genesis.Add(year), s.LastClaimedAt)
	require.Equal(t, genesis.Add(year), s.LastTaxSettledAt)

	require.Equal(t, []EventKind{EventClaimed, EventCollected, EventClaimed}, h.events.kinds())
}

func TestClaim_BidRejections(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, alice, 1000)

	t.Run("cycle lock", func(t *testing.T) {
		h.clock.Advance(h.cfg.CycleDuration - time.Second)
		_, err := h.ledger.Claim(t.Context(), bid(id, bob, 1000, 2000, 2000))
		require.ErrorIs(t, err, ErrNotAvailable)
		h.clock.Advance(time.Second)
	})

	t.Run("stale declared price", func(t *testing.T) {
		_, err := h.ledger.Claim(t.Context(), bid(id, bob, 900, 2000, 900))
		require.ErrorIs(t, err, ErrInvalidCurrentPrice)
	})

	t.Run("below minimum increase", func(t *testing.T) {
		_, err := h.ledger.Claim(t.Context(), bid(id, bob, 1000, 1099, 1099))
		require.ErrorIs(t, err, ErrInvalidNewPrice)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		req := bid(id, bob, 1000, 1100, 1100)
		req.Currency = token
		_, err := h.ledger.Claim(t.Context(), req)
		require.ErrorIs(t, err, ErrInvalidCurrency)
	})

	t.Run("never allocated", func(t *testing.T) {
		_, err := h.ledger.Claim(t.Context(), bid(42, bob, 0, 10, 10))
		require.ErrorIs(t, err, ErrSlotNotFound)
	})

	s, err := h.ledger.Slot(id)
	require.NoError(t, err)
	require.Equal(t, alice, s.Holder)
	require.Equal(t, uint64(1_000_000), h.balance(asset.Native, bob))
}

func TestClaim_RejectsCustodyAndZeroCaller(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, alice, 1000)
	h.create(t, bob, 5000)
	h.clock.Advance(h.cfg.CycleDuration)

	custodyBefore := h.balance(asset.Native, h.cfg.Custody)
	eventsBefore := len(h.events.kinds())

	_, err := h.ledger.Claim(t.Context(), bid(id, h.cfg.Custody, 1000, 1100, 1100))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.ledger.Claim(t.Context(), ClaimRequest{
		Currency: asset.Native,
		NewPrice: uint256.NewInt(10),
		Funds:    uint256.NewInt(10),
		Caller:   h.cfg.Custody,
	})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = h.ledger.Claim(t.Context(), ClaimRequest{
		Currency: asset.Native,
		NewPrice: uint256.NewInt(10),
		Funds:    uint256.NewInt(10),
	})
	require.ErrorIs(t, err, ErrInvalidArgument)

	s, err := h.ledger.Slot(id)
	require.NoError(t, err)
	require.Equal(t, alice, s.Holder)
	require.Equal(t, uint64(1000), s.Deposit.Uint64())
	require.Equal(t, custodyBefore, h.balance(asset.Native, h.cfg.Custody))
	require.Equal(t, uint64(999_000), h.balance(asset.Native, alice))
	require.Equal(t, SlotID(3), h.ledger.Params().NextID)
	require.Len(t, h.events.kinds(), eventsBefore)
}

func TestClaim_StaleDeclaredPriceToleratedWhenOverbidding(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, alice, 1000)
	h.clock.Advance(h.cfg.CycleDuration)

	// declared 900 is wrong, but funds exceed it; minimum is computed on 900
	res, err := h.ledger.Claim(t.Context(), bid(id, bob, 900, 990, 901))
	require.NoError(t, err)
	require.Equal(t, id, res.ID)

	s, err := h.ledger.Slot(id)
	require.NoError(t, err)
	require.Equal(t, uint64(990), s.Price.Uint64())
	require.Equal(t, uint64(901), s.Deposit.Uint64())
}

func TestClaim_OverdrawnSlotIsForeclosedDuringBid(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, alice, 1000)
	h.clock.Advance(h.cfg.CycleDuration)

	// bob posts a high price with a tiny deposit
	_, err := h.ledger.Claim(t.Context(), bid(id, bob, 1000, 100_000, 10))
	require.NoError(t, err)
	authorityBefore := h.balance(asset.Native, authority)

	h.clock.Advance(year)

	res, err := h.ledger.Claim(t.Context(), bid(id, carol, 100_000, 110_000, 110_000))
	require.NoError(t, err)
	require.True(t, res.Foreclosed)
	require.Equal(t, uint64(10), res.TaxPaid.Uint64())
	require.Zero(t, res.Refunded.Uint64())

	require.Equal(t, authorityBefore+10, h.balance(asset.Native, authority))
	require.Equal(t, uint64(1_000_000-10), h.balance(asset.Native, bob))
	require.Equal(t, uint64(110_000), h.balance(asset.Native, h.cfg.Custody))

	kinds := h.events.kinds()
	require.Equal(t, []EventKind{EventForeclosed, EventClaimed}, kinds[len(kinds)-2:])
}

func TestClaim_RefundFailureRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, alice, 1000)
	h.bank.SetRejectNative(alice, true)
	h.clock.Advance(h.cfg.CycleDuration)

	h.ledger.Params() // sync the ledger clock
	before := h.ledger.Snapshot()
	eventsBefore := len(h.events.kinds())

	_, err := h.ledger.Claim(t.Context(), bid(id, bob, 1000, 1100, 1100))
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, asset.ErrRecipientRejected)

	require.Equal(t, before, h.ledger.Snapshot())
	require.Equal(t, uint64(1_000_000), h.balance(asset.Native, bob))
	require.Equal(t, uint64(1000), h.balance(asset.Native, h.cfg.Custody))
	require.Zero(t, h.balance(asset.Native, authority))
	require.Len(t, h.events.kinds(), eventsBefore)
}

func TestClaim_ReclaimForeclosedSlot(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.AllowedCurrencies = []asset.Currency{token} })

	res, err := h.ledger.Claim(t.Context(), ClaimRequest{
		Currency: token,
		NewPrice: uint256.NewInt(100),
		Funds:    uint256.NewInt(100),
		Caller:   alice,
	})
	require.NoError(t, err)
	id := res.ID

	h.clock.Advance(100 * year)
	collected, err := h.ledger.Collect(t.Context(), authority, id)
	require.NoError(t, err)
	require.True(t, collected.Foreclosed)
	require.Equal(t, uint64(100), h.balance(token, authority))

	// foreclosure forgets the token; the slot now settles in the native asset
	req := bid(id, bob, 0, 0, 0)
	req.Currency = token
	_, err = h.ledger.Claim(t.Context(), req)
	require.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = h.ledger.Claim(t.Context(), bid(id, bob, 0, 500, 500))
	require.NoError(t, err)

	s, err := h.ledger.Slot(id)
	require.NoError(t, err)
	require.Equal(t, bob, s.Holder)
	require.True(t, s.Currency.IsNative())
}

func TestLedger_Reads(t *testing.T) {
	h := newHarness(t)

	_, err := h.ledger.Slot(NewSlotID)
	require.ErrorIs(t, err, ErrSlotNotFound)

	// never claimed reads as the default record
	unclaimed, err := h.ledger.Slot(7)
	require.NoError(t, err)
	require.True(t, unclaimed.IsDefault())
	require.True(t, unclaimed.Currency.IsNative())
	owedUnclaimed, err := h.ledger.Owed(7)
	require.NoError(t, err)
	require.True(t, owedUnclaimed.IsZero())
	unclaimedView, err := h.ledger.View(7)
	require.NoError(t, err)
	require.False(t, unclaimedView.Foreclosable)
	require.True(t, unclaimedView.BiddableAt.IsZero())

	id := h.create(t, alice, 1000)
	h.clock.Advance(year / 2)

	owed, err := h.ledger.Owed(id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), owed.Uint64())

	v, err := h.ledger.View(id)
	require.NoError(t, err)
	require.False(t, v.Foreclosable)
	require.Equal(t, genesis.Add(h.cfg.CycleDuration), v.BiddableAt)
	require.Equal(t, genesis.Add(100*year), v.ForeclosesAt)

	views := h.ledger.Slots()
	require.Len(t, views, 1)
	require.Equal(t, id, views[0].ID)
	require.Equal(t, []SlotID{id}, h.ledger.HeldIDs())

	p := h.ledger.Params()
	require.Equal(t, authority, p.Authority)
	require.Equal(t, uint64(DefaultTaxRateBps), p.TaxRateBps)
	require.Equal(t, []asset.Currency{asset.Native}, p.AllowedCurrencies)
	require.Equal(t, genesis.Add(year/2), p.Now)
}

func TestLedger_ClockNeverMovesBackwards(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, alice, 1000)

	h.clock.Set(genesis.Add(-time.Hour))
	s, err := h.ledger.Slot(id)
	require.NoError(t, err)
	require.Equal(t, genesis, h.ledger.Params().Now)
	require.Equal(t, genesis, s.LastClaimedAt)

	h.clock.Set(genesis.Add(1500 * time.Millisecond))
	require.Equal(t, genesis.Add(time.Second), h.ledger.Params().Now)
}

func TestLedger_EventSequence(t *testing.T) {
	h := newHarness(t)
	h.create(t, alice, 10)
	h.create(t, bob, 20)

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.Len(t, h.events.events, 2)
	require.Equal(t, uint64(1), h.events.events[0].Seq)
	require.Equal(t, uint64(2), h.events.events[1].Seq)
	require.Equal(t, "10", h.events.events[0].Attrs["new_price"])
	require.NotEqual(t, h.events.events[0].ID, h.events.events[1].ID)
}

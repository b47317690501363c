package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/harberger/x/asset"
)

// SlotID identifies a slot. Zero is the "create a new slot" sentinel.
type SlotID uint64

// NewSlotID is the sentinel passed to Claim to allocate a new slot.
const NewSlotID SlotID = 0

// Slot is the record held for each identifier. The zero value is the
// default (unclaimed or foreclosed) record.
type Slot struct {
	Content          string
	Price            *uint256.Int
	Deposit          *uint256.Int
	Holder           common.Address
	Currency         asset.Currency
	LastClaimedAt    time.Time
	LastTaxSettledAt time.Time
}

// IsDefault reports whether s is the default record.
func (s Slot) IsDefault() bool {
	return s.Holder == (common.Address{}) &&
		s.Currency.IsNative() &&
		s.Content == "" &&
		isZero(s.Price) &&
		isZero(s.Deposit) &&
		s.LastClaimedAt.IsZero() &&
		s.LastTaxSettledAt.IsZero()
}

// normalize deep-copies s and replaces nil amounts with zero.
func (s Slot) normalize() Slot {
	s.Price = amountOrZero(s.Price)
	s.Deposit = amountOrZero(s.Deposit)
	return s
}

// ClaimRequest carries the arguments of a create-or-bid call.
type ClaimRequest struct {
	ID                   SlotID
	Content              string
	Currency             asset.Currency
	DeclaredCurrentPrice *uint256.Int
	NewPrice             *uint256.Int
	// Funds is the value attached by the caller; it becomes the new deposit.
	Funds  *uint256.Int
	Caller common.Address
}

// ClaimResult describes a committed claim.
type ClaimResult struct {
	ID SlotID
	// TaxPaid and Refunded are the settlement legs of the outgoing holder.
	TaxPaid  *uint256.Int
	Refunded *uint256.Int
	// Foreclosed is set when the outgoing holder owed at least their deposit.
	Foreclosed bool
}

// CollectResult is the outcome of a tax collection on one slot.
type CollectResult struct {
	ID         SlotID
	Currency   asset.Currency
	Collected  *uint256.Int
	Remaining  *uint256.Int
	Foreclosed bool
}

// RemoveResult is the outcome of a forced removal.
type RemoveResult struct {
	ID        SlotID
	Holder    common.Address
	Collected *uint256.Int
	Refunded  *uint256.Int
}

// SlotView is a slot together with its tax position at the ledger's clock.
type SlotView struct {
	ID   SlotID
	Slot Slot
	Owed *uint256.Int
	// ForeclosesAt is when owed tax reaches the deposit; zero if never.
	ForeclosesAt time.Time
	Foreclosable bool
	// BiddableAt is when the bidding-cycle lock expires.
	BiddableAt time.Time
}

// Params is the ledger-wide configuration and counters.
type Params struct {
	Authority         common.Address
	Custody           common.Address
	TaxRateBps        uint64
	CycleDuration     time.Duration
	MinIncreaseBps    uint64
	AllowedCurrencies []asset.Currency
	NextID            SlotID
	Now               time.Time
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

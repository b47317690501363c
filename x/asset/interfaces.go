package asset

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Router moves value between identities for either currency variant.
//
// Snapshot, RevertToSnapshot and DiscardSnapshot bracket a multi-leg
// operation so that a failure in any leg can undo the legs before it.
type Router interface {
	// Transfer debits from and credits to by amount in currency.
	Transfer(currency Currency, from, to common.Address, amount *uint256.Int) error
	// Balance returns the holder's balance in currency.
	Balance(currency Currency, holder common.Address) *uint256.Int

	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// leg is the per-variant balance book a transfer is executed against.
type leg interface {
	debit(holder common.Address, amount *uint256.Int) error
	credit(holder common.Address, amount *uint256.Int) error
}

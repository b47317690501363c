package ledger

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/harberger/x/asset"
)

// txn is the all-or-nothing scope of one ledger operation. Every write goes
// through it so that a failure can restore slot records, counters, the
// allow-list, the authority and router balances to their state at begin.
type txn struct {
	l        *Ledger
	now      time.Time
	routerID int
	undo     []func()
	events   []Event
}

func (l *Ledger) begin() *txn {
	return &txn{
		l:        l,
		now:      l.tick(),
		routerID: l.router.Snapshot(),
	}
}

func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.l.router.RevertToSnapshot(tx.routerID)
}

func (tx *txn) commit() []Event {
	tx.l.router.DiscardSnapshot(tx.routerID)
	return tx.events
}

// get reads the record for id, the default record if none is stored.
func (tx *txn) get(id SlotID) Slot {
	s, ok := tx.l.store.Get(id)
	if !ok {
		return Slot{}.normalize()
	}
	return s
}

func (tx *txn) put(id SlotID, s Slot) {
	prev, existed := tx.l.store.Get(id)
	tx.undo = append(tx.undo, func() {
		if existed {
			tx.l.store.Put(id, prev)
			return
		}
		tx.l.store.Delete(id)
	})
	if s.IsDefault() {
		tx.l.store.Delete(id)
		return
	}
	tx.l.store.Put(id, s)
}

// reset reverts id to the default record.
func (tx *txn) reset(id SlotID) {
	tx.put(id, Slot{})
}

func (tx *txn) allocate() SlotID {
	id := tx.l.nextID
	tx.l.nextID++
	tx.undo = append(tx.undo, func() { tx.l.nextID = id })
	return id
}

func (tx *txn) setAllowed(c asset.Currency, allowed bool) {
	_, was := tx.l.allowed[c]
	tx.undo = append(tx.undo, func() {
		if was {
			tx.l.allowed[c] = struct{}{}
			return
		}
		delete(tx.l.allowed, c)
	})
	if allowed {
		tx.l.allowed[c] = struct{}{}
		return
	}
	delete(tx.l.allowed, c)
}

// pull escrows amount from payer into the ledger's custody.
func (tx *txn) pull(id SlotID, c asset.Currency, payer common.Address, amount *uint256.Int) error {
	return tx.move(id, c, payer, tx.l.cfg.Custody, amount)
}

// pay releases amount from custody to payee.
func (tx *txn) pay(id SlotID, c asset.Currency, payee common.Address, amount *uint256.Int) error {
	return tx.move(id, c, tx.l.cfg.Custody, payee, amount)
}

func (tx *txn) move(id SlotID, c asset.Currency, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.l.router.Transfer(c, from, to, amount); err != nil {
		return newError(KindTransferFailed, fmt.Sprintf("move %s %s to %s", amount.Dec(), c, to.Hex())).
			WithSlot(id).
			WithCause(err)
	}
	return nil
}

func (tx *txn) emit(kind EventKind, id SlotID, attrs map[string]string) {
	tx.events = append(tx.events, newEvent(kind, id, tx.now, attrs))
}

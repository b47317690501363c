package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/harberger/x/patronage"
)

// Claim creates a new slot (req.ID == NewSlotID) or bids on an existing one.
//
// A bid settles the outgoing holder first: tax owed goes to the authority and
// the rest of their deposit is refunded. If the tax owed has consumed the
// whole deposit, the deposit goes to the authority, nothing is refunded and
// the slot is foreclosed in the same step before passing to the bidder.
func (l *Ledger) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	var res ClaimResult
	err := l.run(ctx, "claim", func(tx *txn) error {
		if err := l.checkClaimant(req.Caller); err != nil {
			return err
		}
		var err error
		if req.ID == NewSlotID {
			res, err = l.create(tx, req)
		} else {
			res, err = l.bid(tx, req)
		}
		return err
	})
	if err != nil {
		return ClaimResult{}, err
	}

	l.metrics.recordClaim(req.ID == NewSlotID)
	l.metrics.recordTax(req.Currency, res.TaxPaid)
	if res.Foreclosed {
		l.metrics.recordForeclosure()
	}
	l.log.Info().
		Uint64("slot", uint64(res.ID)).
		Str("holder", req.Caller.Hex()).
		Str("currency", req.Currency.String()).
		Str("price", amountOrZero(req.NewPrice).Dec()).
		Str("deposit", amountOrZero(req.Funds).Dec()).
		Str("tax_paid", res.TaxPaid.Dec()).
		Str("refunded", res.Refunded.Dec()).
		Bool("foreclosed", res.Foreclosed).
		Msg("Slot claimed")
	return res, nil
}

// checkClaimant rejects identities that cannot escrow a deposit. A pull
// from custody into custody moves nothing.
func (l *Ledger) checkClaimant(caller common.Address) error {
	switch caller {
	case common.Address{}:
		return newError(KindInvalidArgument, "caller is required")
	case l.cfg.Custody:
		return newError(KindInvalidArgument, "custody cannot hold a slot")
	}
	return nil
}

func (l *Ledger) create(tx *txn, req ClaimRequest) (ClaimResult, error) {
	if _, ok := l.allowed[req.Currency]; !ok {
		return ClaimResult{}, newError(KindInvalidCurrency,
			fmt.Sprintf("currency %s is not allow-listed", req.Currency))
	}

	funds := amountOrZero(req.Funds)
	price := amountOrZero(req.NewPrice)
	if !funds.Eq(price) {
		return ClaimResult{}, newError(KindInvalidNewPrice,
			fmt.Sprintf("first deposit %s must equal the declared price %s", funds.Dec(), price.Dec()))
	}

	if err := tx.pull(NewSlotID, req.Currency, req.Caller, funds); err != nil {
		return ClaimResult{}, err
	}

	id := tx.allocate()
	l.assign(tx, id, req, price, funds)

	return ClaimResult{
		ID:       id,
		TaxPaid:  new(uint256.Int),
		Refunded: new(uint256.Int),
	}, nil
}

func (l *Ledger) bid(tx *txn, req ClaimRequest) (ClaimResult, error) {
	id := req.ID
	if err := l.checkID(id); err != nil {
		return ClaimResult{}, err
	}
	slot := tx.get(id)

	if tx.now.Before(slot.LastClaimedAt.Add(l.cfg.CycleDuration)) {
		return ClaimResult{}, newError(KindNotAvailable,
			fmt.Sprintf("slot is locked until %s", slot.LastClaimedAt.Add(l.cfg.CycleDuration).Format("2006-01-02T15:04:05Z07:00"))).
			WithSlot(id)
	}

	declared := amountOrZero(req.DeclaredCurrentPrice)
	funds := amountOrZero(req.Funds)
	price := amountOrZero(req.NewPrice)

	if !declared.Eq(slot.Price) && !funds.Gt(declared) {
		return ClaimResult{}, newError(KindInvalidCurrentPrice,
			fmt.Sprintf("declared %s but price is %s; funds %s must exceed the declared price",
				declared.Dec(), slot.Price.Dec(), funds.Dec())).
			WithSlot(id)
	}

	if minPrice := patronage.MinNextPrice(declared, l.cfg.MinIncreaseBps); price.Lt(minPrice) {
		return ClaimResult{}, newError(KindInvalidNewPrice,
			fmt.Sprintf("new price %s is below the minimum %s", price.Dec(), minPrice.Dec())).
			WithSlot(id)
	}

	if req.Currency != slot.Currency {
		return ClaimResult{}, newError(KindInvalidCurrency,
			fmt.Sprintf("slot settles in %s, not %s", slot.Currency, req.Currency)).
			WithSlot(id)
	}

	if err := tx.pull(id, slot.Currency, req.Caller, funds); err != nil {
		return ClaimResult{}, err
	}

	res := ClaimResult{ID: id}
	owed := l.engine.Owed(slot.Price, slot.LastTaxSettledAt, tx.now)
	if !owed.IsZero() && !owed.Lt(slot.Deposit) {
		res.TaxPaid = new(uint256.Int).Set(slot.Deposit)
		res.Refunded = new(uint256.Int)
		res.Foreclosed = true
	} else {
		res.TaxPaid = owed
		res.Refunded = new(uint256.Int).Sub(slot.Deposit, owed)
	}

	if err := tx.pay(id, slot.Currency, l.gate.Authority(), res.TaxPaid); err != nil {
		return ClaimResult{}, err
	}
	if err := tx.pay(id, slot.Currency, slot.Holder, res.Refunded); err != nil {
		return ClaimResult{}, err
	}

	if res.Foreclosed {
		tx.emit(EventForeclosed, id, map[string]string{
			"holder":   slot.Holder.Hex(),
			"amount":   res.TaxPaid.Dec(),
			"currency": slot.Currency.String(),
			"owed":     owed.Dec(),
		})
	} else if !res.TaxPaid.IsZero() {
		tx.emit(EventCollected, id, map[string]string{
			"amount":    res.TaxPaid.Dec(),
			"remaining": res.Refunded.Dec(),
			"currency":  slot.Currency.String(),
		})
	}
	l.assign(tx, id, req, price, funds)
	return res, nil
}

// assign overwrites id with a fresh occupancy for the caller.
func (l *Ledger) assign(tx *txn, id SlotID, req ClaimRequest, price, funds *uint256.Int) {
	tx.put(id, Slot{
		Content:          req.Content,
		Price:            price,
		Deposit:          funds,
		Holder:           req.Caller,
		Currency:         req.Currency,
		LastClaimedAt:    tx.now,
		LastTaxSettledAt: tx.now,
	})
	tx.emit(EventClaimed, id, map[string]string{
		"new_price": price.Dec(),
		"content":   req.Content,
		"holder":    req.Caller.Hex(),
		"currency":  req.Currency.String(),
		"deposit":   funds.Dec(),
	})
}

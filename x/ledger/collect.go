package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Collect settles the tax owed on id to the authority. When the tax owed has
// reached the deposit the slot is foreclosed: the whole deposit goes to the
// authority and the record reverts to default.
func (l *Ledger) Collect(ctx context.Context, caller common.Address, id SlotID) (CollectResult, error) {
	var res CollectResult
	err := l.run(ctx, "collect", func(tx *txn) error {
		if err := l.requireAuthority(caller); err != nil {
			return err
		}
		if err := l.checkID(id); err != nil {
			return err
		}
		var err error
		res, err = l.collect(tx, id, l.cfg.StrictCollect)
		return err
	})
	if err != nil {
		return CollectResult{}, err
	}
	l.recordCollected(res)
	return res, nil
}

// CollectAll collects on every held slot in identifier order as a single
// operation. Slots owing nothing are skipped.
func (l *Ledger) CollectAll(ctx context.Context, caller common.Address) ([]CollectResult, error) {
	var out []CollectResult
	err := l.run(ctx, "collect_all", func(tx *txn) error {
		if err := l.requireAuthority(caller); err != nil {
			return err
		}

		var ids []SlotID
		l.store.Ascend(func(id SlotID, _ Slot) bool {
			ids = append(ids, id)
			return true
		})

		out = make([]CollectResult, 0, len(ids))
		for _, id := range ids {
			res, err := l.collect(tx, id, false)
			if err != nil {
				return err
			}
			if res.Collected.IsZero() {
				continue
			}
			out = append(out, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, res := range out {
		l.recordCollected(res)
	}
	return out, nil
}

// Remove takes id down on behalf of the authority. Owed tax is settled
// first; whatever deposit remains is refunded to the evicted holder.
func (l *Ledger) Remove(ctx context.Context, caller common.Address, id SlotID) (RemoveResult, error) {
	var res RemoveResult
	err := l.run(ctx, "remove", func(tx *txn) error {
		if err := l.requireAuthority(caller); err != nil {
			return err
		}
		if err := l.checkID(id); err != nil {
			return err
		}
		slot := tx.get(id)
		if slot.IsDefault() {
			return newError(KindSlotNotFound, "slot is not held").WithSlot(id)
		}

		settled, err := l.collect(tx, id, false)
		if err != nil {
			return err
		}
		res = RemoveResult{
			ID:        id,
			Holder:    slot.Holder,
			Collected: settled.Collected,
			Refunded:  settled.Remaining,
		}

		tx.reset(id)
		if err := tx.pay(id, slot.Currency, slot.Holder, res.Refunded); err != nil {
			return err
		}
		tx.emit(EventRemoved, id, map[string]string{
			"holder":    slot.Holder.Hex(),
			"collected": res.Collected.Dec(),
			"refund":    res.Refunded.Dec(),
			"currency":  slot.Currency.String(),
		})
		return nil
	})
	if err != nil {
		return RemoveResult{}, err
	}

	l.metrics.recordRemoval()
	l.log.Info().
		Uint64("slot", uint64(id)).
		Str("holder", res.Holder.Hex()).
		Str("collected", res.Collected.Dec()).
		Str("refunded", res.Refunded.Dec()).
		Msg("Slot removed")
	return res, nil
}

func (l *Ledger) collect(tx *txn, id SlotID, strict bool) (CollectResult, error) {
	slot := tx.get(id)
	owed := l.engine.Owed(slot.Price, slot.LastTaxSettledAt, tx.now)

	if owed.IsZero() {
		if strict {
			return CollectResult{}, newError(KindNothingToCollect, "no tax owed").WithSlot(id)
		}
		return CollectResult{
			ID:        id,
			Currency:  slot.Currency,
			Collected: new(uint256.Int),
			Remaining: slot.Deposit,
		}, nil
	}

	if !owed.Lt(slot.Deposit) {
		tx.reset(id)
		if err := tx.pay(id, slot.Currency, l.gate.Authority(), slot.Deposit); err != nil {
			return CollectResult{}, err
		}
		tx.emit(EventForeclosed, id, map[string]string{
			"holder":   slot.Holder.Hex(),
			"amount":   slot.Deposit.Dec(),
			"currency": slot.Currency.String(),
			"owed":     owed.Dec(),
		})
		return CollectResult{
			ID:         id,
			Currency:   slot.Currency,
			Collected:  slot.Deposit,
			Remaining:  new(uint256.Int),
			Foreclosed: true,
		}, nil
	}

	if err := tx.pay(id, slot.Currency, l.gate.Authority(), owed); err != nil {
		return CollectResult{}, err
	}
	slot.Deposit = new(uint256.Int).Sub(slot.Deposit, owed)
	slot.LastTaxSettledAt = tx.now
	tx.put(id, slot)
	tx.emit(EventCollected, id, map[string]string{
		"amount":    owed.Dec(),
		"remaining": slot.Deposit.Dec(),
		"currency":  slot.Currency.String(),
	})

	return CollectResult{
		ID:        id,
		Currency:  slot.Currency,
		Collected: owed,
		Remaining: slot.Deposit,
	}, nil
}

func (l *Ledger) recordCollected(res CollectResult) {
	if res.Collected.IsZero() {
		return
	}
	if res.Foreclosed {
		l.metrics.recordForeclosure()
	}

	ev := l.log.Info().
		Uint64("slot", uint64(res.ID)).
		Str("collected", res.Collected.Dec()).
		Str("remaining", res.Remaining.Dec()).
		Str("currency", res.Currency.String())
	if res.Foreclosed {
		ev.Msg("Slot foreclosed")
	} else {
		ev.Msg("Tax collected")
	}
	l.metrics.recordTax(res.Currency, res.Collected)
}

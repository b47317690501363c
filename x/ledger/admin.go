package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/gate"
)

// SetAuthority hands the authority role to next.
func (l *Ledger) SetAuthority(ctx context.Context, caller, next common.Address) error {
	var previous common.Address
	err := l.run(ctx, "set_authority", func(tx *txn) error {
		if next == l.cfg.Custody {
			return newError(KindInvalidArgument, "custody cannot hold the authority role")
		}
		var err error
		previous, err = l.gate.Transfer(caller, next)
		switch {
		case errors.Is(err, gate.ErrUnauthorized):
			return newError(KindUnauthorized, "administrative operation").WithCause(err)
		case err != nil:
			return newError(KindInvalidArgument, "transfer authority").WithCause(err)
		}
		tx.undo = append(tx.undo, func() {
			_, _ = l.gate.Transfer(next, previous)
		})
		tx.emit(EventAuthorityChanged, NewSlotID, map[string]string{
			"previous": previous.Hex(),
			"next":     next.Hex(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	l.log.Info().
		Str("previous", previous.Hex()).
		Str("next", next.Hex()).
		Msg("Authority changed")
	return nil
}

// SetCurrencyAllowed adds or removes c from the allow-list for new slots.
// Slots already settling in a removed currency keep it. The native asset
// cannot be removed.
func (l *Ledger) SetCurrencyAllowed(ctx context.Context, caller common.Address, c asset.Currency, allowed bool) error {
	err := l.run(ctx, "set_currency_allowed", func(tx *txn) error {
		if err := l.requireAuthority(caller); err != nil {
			return err
		}
		if c.IsNative() && !allowed {
			return newError(KindInvalidCurrency, "the native asset is always allowed")
		}
		tx.setAllowed(c, allowed)
		tx.emit(EventCurrencyAllowed, NewSlotID, map[string]string{
			"currency": c.String(),
			"allowed":  strconv.FormatBool(allowed),
		})
		return nil
	})
	if err != nil {
		return err
	}

	l.log.Info().
		Str("currency", c.String()).
		Bool("allowed", allowed).
		Msg("Currency allow-list updated")
	return nil
}

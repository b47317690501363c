package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/harberger/x/asset"
)

func TestSetAuthority(t *testing.T) {
	h := newHarness(t)

	err := h.ledger.SetAuthority(t.Context(), alice, bob)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = h.ledger.SetAuthority(t.Context(), authority, common.Address{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = h.ledger.SetAuthority(t.Context(), authority, h.cfg.Custody)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, authority, h.ledger.Authority())

	require.NoError(t, h.ledger.SetAuthority(t.Context(), authority, carol))
	require.Equal(t, carol, h.ledger.Authority())

	// the previous authority lost its rights, tax now flows to carol
	id := h.create(t, alice, 1000)
	h.clock.Advance(year)
	_, err = h.ledger.Collect(t.Context(), authority, id)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.ledger.Collect(t.Context(), carol, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000+10), h.balance(asset.Native, carol))

	require.Equal(t, EventAuthorityChanged, h.events.kinds()[0])
}

func TestSetCurrencyAllowed(t *testing.T) {
	h := newHarness(t)

	err := h.ledger.SetCurrencyAllowed(t.Context(), alice, token, true)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = h.ledger.SetCurrencyAllowed(t.Context(), authority, asset.Native, false)
	require.ErrorIs(t, err, ErrInvalidCurrency)
	require.True(t, h.ledger.IsCurrencyAllowed(asset.Native))

	require.NoError(t, h.ledger.SetCurrencyAllowed(t.Context(), authority, token, true))
	require.True(t, h.ledger.IsCurrencyAllowed(token))

	res, err := h.ledger.Claim(t.Context(), ClaimRequest{
		Currency: token,
		NewPrice: uint256.NewInt(300),
		Funds:    uint256.NewInt(300),
		Caller:   alice,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(300), h.balance(token, h.cfg.Custody))

	require.NoError(t, h.ledger.SetCurrencyAllowed(t.Context(), authority, token, false))
	require.False(t, h.ledger.IsCurrencyAllowed(token))

	// existing token slots keep settling in the token
	h.clock.Advance(h.cfg.CycleDuration)
	req := bid(res.ID, bob, 300, 330, 330)
	req.Currency = token
	_, err = h.ledger.Claim(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000+300), h.balance(token, alice))
}

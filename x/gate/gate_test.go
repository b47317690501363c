package gate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	root := common.HexToAddress("0x0000000000000000000000000000000000000001")
	other := common.HexToAddress("0x0000000000000000000000000000000000000002")

	_, err := New(common.Address{})
	require.ErrorIs(t, err, ErrInvalidAuthority)

	g, err := New(root)
	require.NoError(t, err)
	require.NoError(t, g.Require(root))
	require.ErrorIs(t, g.Require(other), ErrUnauthorized)

	_, err = g.Transfer(other, other)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = g.Transfer(root, common.Address{})
	require.ErrorIs(t, err, ErrInvalidAuthority)

	prev, err := g.Transfer(root, other)
	require.NoError(t, err)
	require.Equal(t, root, prev)
	require.Equal(t, other, g.Authority())
	require.ErrorIs(t, g.Require(root), ErrUnauthorized)
}

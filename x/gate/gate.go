// Package gate restricts administrative operations to a single authority.
package gate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnauthorized     = errors.New("caller is not the authority")
	ErrInvalidAuthority = errors.New("authority cannot be the zero address")
)

// Gate stores the controlling principal.
type Gate struct {
	mu        sync.RWMutex
	authority common.Address
}

// New returns a gate controlled by authority.
func New(authority common.Address) (*Gate, error) {
	if authority == (common.Address{}) {
		return nil, ErrInvalidAuthority
	}
	return &Gate{authority: authority}, nil
}

// Authority returns the current authority.
func (g *Gate) Authority() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authority
}

// Require fails with ErrUnauthorized unless caller is the authority.
func (g *Gate) Require(caller common.Address) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if caller != g.authority {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// Transfer hands authority to next. Only the current authority may call it.
func (g *Gate) Transfer(caller, next common.Address) (previous common.Address, err error) {
	if next == (common.Address{}) {
		return common.Address{}, ErrInvalidAuthority
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if caller != g.authority {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	previous = g.authority
	g.authority = next
	return previous, nil
}

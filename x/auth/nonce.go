package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrMissingHeader  = errors.New("missing or malformed auth header")
	ErrRequestExpired = errors.New("request expired")
	ErrExpiryTooFar   = errors.New("expiry exceeds validity window")
	ErrNonceReused    = errors.New("nonce already used")
	ErrNonceCapacity  = errors.New("too many outstanding nonces")
)

type nonceKey struct {
	caller common.Address
	nonce  uint64
}

// NonceGuard admits each (caller, nonce) pair once within the validity
// window. A pair is remembered for the full window, which outlives any
// expiry the guard accepts.
type NonceGuard struct {
	window   time.Duration
	capacity int
	now      func() time.Time

	mu   sync.Mutex
	seen *expirable.LRU[nonceKey, time.Time]
}

func NewNonceGuard(window time.Duration, capacity int, now func() time.Time) *NonceGuard {
	if now == nil {
		now = time.Now
	}
	return &NonceGuard{
		window:   window,
		capacity: capacity,
		now:      now,
		seen:     expirable.NewLRU[nonceKey, time.Time](0, nil, window),
	}
}

// Accept records nonce for caller. It fails if expiry has passed, lies past
// the window, or the pair was already accepted.
func (g *NonceGuard) Accept(caller common.Address, nonce uint64, expiry time.Time) error {
	now := g.now()
	if !now.Before(expiry) {
		return fmt.Errorf("%w at %s", ErrRequestExpired, expiry.UTC().Format(time.RFC3339))
	}
	if expiry.Sub(now) > g.window {
		return fmt.Errorf("%w of %s", ErrExpiryTooFar, g.window)
	}

	key := nonceKey{caller: caller, nonce: nonce}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen.Get(key); ok {
		return fmt.Errorf("%w: %d", ErrNonceReused, nonce)
	}
	if g.capacity > 0 && g.seen.Len() >= g.capacity {
		return ErrNonceCapacity
	}
	g.seen.Add(key, expiry)
	return nil
}

// Outstanding is the number of remembered nonces.
func (g *NonceGuard) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Len()
}

// Package patronage computes the tax accrued against a self-assessed price.
//
// All arithmetic is done on 256-bit unsigned integers with a 512-bit
// intermediate product, so no realistic price or elapsed time can overflow.
package patronage

import (
	"math"
	"time"

	"github.com/holiman/uint256"
)

const (
	// BasisPoints is the denominator for every rate expressed in basis points.
	BasisPoints = 10_000
	// SecondsPerYear is the length of the tax year (365 days).
	SecondsPerYear = 365 * 24 * 60 * 60
)

// yearDenominator is BasisPoints * SecondsPerYear.
var yearDenominator = uint256.NewInt(BasisPoints * SecondsPerYear)

// Engine evaluates patronage for a fixed yearly tax rate.
type Engine struct {
	rateBps uint64
}

// New returns an engine taxing rateBps basis points of the price per year.
func New(rateBps uint64) Engine {
	return Engine{rateBps: rateBps}
}

// RateBps returns the yearly tax rate in basis points.
func (e Engine) RateBps() uint64 {
	return e.rateBps
}

// Owed returns floor(price * elapsed * rate / 10000 / secondsPerYear), where
// elapsed is the whole number of seconds from settledAt to now. A zero price
// or a non-positive interval owes nothing. Results that do not fit in 256 bits
// saturate at the maximum value.
func (e Engine) Owed(price *uint256.Int, settledAt, now time.Time) *uint256.Int {
	elapsed := elapsedSeconds(settledAt, now)
	if price == nil || price.IsZero() || elapsed == 0 || e.rateBps == 0 {
		return new(uint256.Int)
	}

	factor := new(uint256.Int).Mul(uint256.NewInt(elapsed), uint256.NewInt(e.rateBps))
	owed, overflow := new(uint256.Int).MulDivOverflow(price, factor, yearDenominator)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return owed
}

// ForeclosureTime returns the first instant at which the tax owed since
// settledAt reaches deposit. ok is false when the price or rate is zero (the
// deposit is never consumed) or the instant is beyond any representable time.
func (e Engine) ForeclosureTime(price, deposit *uint256.Int, settledAt time.Time) (at time.Time, ok bool) {
	if price == nil || price.IsZero() || e.rateBps == 0 {
		return time.Time{}, false
	}
	if deposit == nil || deposit.IsZero() {
		return settledAt.Truncate(time.Second), true
	}

	num, overflow := new(uint256.Int).MulOverflow(deposit, yearDenominator)
	if overflow {
		return time.Time{}, false
	}
	den, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(e.rateBps))
	if overflow {
		// price*rate beyond 2^256 means a single second already consumes the deposit.
		return settledAt.Truncate(time.Second).Add(time.Second), true
	}

	// ceil(num / den)
	secs, rem := new(uint256.Int).DivMod(num, den, new(uint256.Int))
	if !rem.IsZero() {
		secs.AddUint64(secs, 1)
	}
	if !secs.IsUint64() || secs.Uint64() > math.MaxInt64/uint64(time.Second) {
		return time.Time{}, false
	}
	return settledAt.Truncate(time.Second).Add(time.Duration(secs.Uint64()) * time.Second), true
}

// MinNextPrice returns price + price*minIncreaseBps/10000, the smallest price a
// new bid may declare against an assessment of price.
func MinNextPrice(price *uint256.Int, minIncreaseBps uint64) *uint256.Int {
	if price == nil {
		return new(uint256.Int)
	}
	inc, overflow := new(uint256.Int).MulDivOverflow(price, uint256.NewInt(minIncreaseBps), uint256.NewInt(BasisPoints))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	next, overflow := new(uint256.Int).AddOverflow(price, inc)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return next
}

func elapsedSeconds(from, to time.Time) uint64 {
	d := to.Unix() - from.Unix()
	if d <= 0 {
		return 0
	}
	return uint64(d)
}

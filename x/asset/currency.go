package asset

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// nativeName is the textual form of the native settlement asset.
const nativeName = "native"

// Currency identifies a payment asset. The zero value is the native
// settlement asset; any other value is an external token keyed by its address.
type Currency common.Address

// Native is the native settlement asset.
var Native Currency

// TokenCurrency returns the external token currency at addr.
func TokenCurrency(addr common.Address) Currency {
	return Currency(addr)
}

// IsNative reports whether c is the native settlement asset.
func (c Currency) IsNative() bool {
	return c == Native
}

// Address returns the token address, or the zero address for the native asset.
func (c Currency) Address() common.Address {
	return common.Address(c)
}

// String renders "native" or the checksummed token address.
func (c Currency) String() string {
	if c.IsNative() {
		return nativeName
	}
	return common.Address(c).Hex()
}

// Kind returns "native" or "token" for labeling metrics and logs.
func (c Currency) Kind() string {
	if c.IsNative() {
		return nativeName
	}
	return "token"
}

// MarshalText implements encoding.TextMarshaler.
func (c Currency) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Currency) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCurrency accepts "native", an empty string, or a 0x-prefixed address.
func ParseCurrency(s string) (Currency, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, nativeName) {
		return Native, nil
	}
	if !common.IsHexAddress(s) {
		return Native, fmt.Errorf("invalid currency %q: expect %q or a hex address", s, nativeName)
	}
	return Currency(common.HexToAddress(s)), nil
}

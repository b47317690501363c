// Package auth signs and verifies ledger requests with secp256k1 keys. The
// identity of a signer is its Ethereum address.
package auth

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Signer signs messages with ECDSA
type Signer interface {
	Sign(data []byte) ([]byte, error)
	Address() common.Address
}

// Verifier recovers the identity behind a signature
type Verifier interface {
	RecoverAddress(data, signature []byte) (common.Address, error)
	Verify(data, signature []byte, expected common.Address) error
}

// Config holds auth configuration
type Config struct {
	// Enabled requires mutating requests to be signed.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// SignatureHeader carries the hex signature over Request.Payload.
	SignatureHeader string `mapstructure:"signature_header" yaml:"signature_header"`
	// NonceHeader carries the caller-chosen decimal nonce.
	NonceHeader string `mapstructure:"nonce_header" yaml:"nonce_header"`
	// ExpiryHeader carries the unix second after which the request is void.
	ExpiryHeader string `mapstructure:"expiry_header" yaml:"expiry_header"`
	// MaxValidity bounds how far in the future an expiry may lie.
	MaxValidity time.Duration `mapstructure:"max_validity" yaml:"max_validity"`
	// NonceCapacity bounds the remembered nonces; 0 means unbounded.
	NonceCapacity int `mapstructure:"nonce_capacity" yaml:"nonce_capacity"`
	// CallerHeader names the caller directly when Enabled is false.
	CallerHeader string `mapstructure:"caller_header" yaml:"caller_header"`
}

// DefaultConfig returns the header names used by the HTTP API.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		SignatureHeader: "X-Signature",
		NonceHeader:     "X-Nonce",
		ExpiryHeader:    "X-Expiry",
		MaxValidity:     5 * time.Minute,
		NonceCapacity:   1 << 20,
		CallerHeader:    "X-Caller",
	}
}

package auth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureMismatch = errors.New("signature does not match expected signer")
)

var _ Verifier = KeyVerifier{}

// KeyVerifier recovers secp256k1 signers. It is stateless.
type KeyVerifier struct{}

func NewKeyVerifier() KeyVerifier { return KeyVerifier{} }

// RecoverAddress returns the address whose key signed keccak256(data).
// Recovery ids 0/1 and 27/28 are both accepted.
func (KeyVerifier) RecoverAddress(data, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(signature))
	}
	sig := append([]byte(nil), signature...)
	if v := sig[crypto.RecoveryIDOffset]; v == 27 || v == 28 {
		sig[crypto.RecoveryIDOffset] = v - 27
	}

	pub, err := crypto.Ecrecover(crypto.Keccak256(data), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	key, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*key), nil
}

// Verify fails unless expected produced signature over data.
func (v KeyVerifier) Verify(data, signature []byte, expected common.Address) error {
	got, err := v.RecoverAddress(data, signature)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%w: got %s, want %s", ErrSignatureMismatch, got.Hex(), expected.Hex())
	}
	return nil
}

// RecoverRequest returns the signer of req.
func RecoverRequest(v Verifier, req Request, signature []byte) (common.Address, error) {
	return v.RecoverAddress(req.Payload(), signature)
}

package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/renameio/v2"
)

var _ Signer = (*KeySigner)(nil)

// KeySigner holds a secp256k1 key and signs ledger requests with it.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// GenerateKey returns a signer over a fresh random key.
func GenerateKey() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeySigner(key), nil
}

// ParseKey reads a hex private key, with or without 0x.
func ParseKey(s string) (*KeySigner, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	return newKeySigner(key), nil
}

// LoadKey reads a key file written by SaveKey.
func LoadKey(path string) (*KeySigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("key file is empty")
	}
	return ParseKey(string(raw))
}

// SaveKey writes the key as hex to path, owner-readable only. An existing
// file is replaced atomically.
func (s *KeySigner) SaveKey(path string) error {
	data := []byte(hexutil.Encode(crypto.FromECDSA(s.key)) + "\n")
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Sign returns a 65-byte [R || S || V] signature over keccak256(data), V in {0,1}.
func (s *KeySigner) Sign(data []byte) ([]byte, error) {
	sig, err := crypto.Sign(crypto.Keccak256(data), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// SignRequest signs req.Payload.
func (s *KeySigner) SignRequest(req Request) ([]byte, error) {
	return s.Sign(req.Payload())
}

func (s *KeySigner) Address() common.Address {
	return s.addr
}

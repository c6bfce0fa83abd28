package kms

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/teefetch/interfaces"
)

// KeyMaterialLength is the length of a raw secp256k1 private key.
const KeyMaterialLength = 32

// SigningKey is the immutable signing context of the oracle. It is built once
// from key material at startup and only read afterwards, so it is safe for
// concurrent use.
type SigningKey struct {
	privkey *ecdsa.PrivateKey
	pubkey  interfaces.PublicKey
}

// NewSigningKey builds a signing context from key material: either 32 raw
// bytes or 64 hex characters (optional 0x prefix, surrounding whitespace ignored).
func NewSigningKey(material []byte) (*SigningKey, error) {
	raw, err := ParseKeyMaterial(material)
	if err != nil {
		return nil, err
	}

	privkey, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidKey, err)
	}

	pubkey, err := interfaces.NewPublicKeyFromBytes(crypto.FromECDSAPub(&privkey.PublicKey))
	if err != nil {
		return nil, err
	}

	return &SigningKey{privkey: privkey, pubkey: pubkey}, nil
}

// ParseKeyMaterial normalizes raw or hex-encoded key material to 32 bytes.
func ParseKeyMaterial(material []byte) ([]byte, error) {
	if len(material) == KeyMaterialLength {
		raw := make([]byte, KeyMaterialLength)
		copy(raw, material)
		return raw, nil
	}

	clean := bytes.TrimPrefix(bytes.TrimSpace(material), []byte("0x"))
	if len(clean) != 2*KeyMaterialLength {
		return nil, fmt.Errorf("%w: expected %d raw bytes or %d hex characters, got %d bytes", interfaces.ErrInvalidKey, KeyMaterialLength, 2*KeyMaterialLength, len(material))
	}

	raw := make([]byte, KeyMaterialLength)
	if _, err := hex.Decode(raw, clean); err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %v", interfaces.ErrInvalidKey, err)
	}
	return raw, nil
}

// GenerateKeyMaterial returns fresh raw key material suitable for NewSigningKey.
func GenerateKeyMaterial(rnd io.Reader) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}

	privkey, err := ecdsa.GenerateKey(crypto.S256(), rnd)
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return crypto.FromECDSA(privkey), nil
}

// Sign produces r || s || (recovery id + 27) over the digest. Nonces are
// derived deterministically (RFC 6979) by the underlying secp256k1 implementation.
func (k *SigningKey) Sign(digest interfaces.Digest) (interfaces.Signature, error) {
	sig, err := crypto.Sign(digest[:], k.privkey)
	if err != nil {
		return interfaces.Signature{}, fmt.Errorf("could not sign digest: %w", err)
	}

	var res interfaces.Signature
	copy(res[:], sig)
	res[64] += interfaces.RecoveryMarkerOffset
	return res, nil
}

// PublicKey returns the 64-byte x || y public key.
func (k *SigningKey) PublicKey() interfaces.PublicKey {
	return k.pubkey
}

// Address returns the Ethereum address of the signing key.
func (k *SigningKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.privkey.PublicKey)
}

// Package interfaces defines the core types and collaborator interfaces of the attested fetch oracle.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FetchRequest is the caller's fetch intent as received on the wire.
//
// Headers and Body are committed to the signing digest. ExcludedHeaders and
// ExcludedBody are sent upstream but never committed. ResponseHeaders names the
// upstream response headers to disclose and commit, in caller order.
type FetchRequest struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers"`
	ExcludedHeaders map[string]string `json:"excluded_headers"`
	Body            string            `json:"body"`
	ExcludedBody    string            `json:"excluded_body"`
	ResponseHeaders []string          `json:"response_headers"`
}

// FetchResponse is the proxy-observed outcome of a fetch together with the
// signature over the signing digest. It is immutable once signed.
type FetchResponse struct {
	Handler   uint8             `json:"handler"`
	Status    uint16            `json:"status"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	Timestamp uint64            `json:"timestamp"`
	Signature string            `json:"signature"`
}

// Digest is the 32-byte signing digest of a request/response pair.
type Digest [32]byte

// String returns the 0x-prefixed hex representation.
func (d Digest) String() string {
	return "0x" + hex.EncodeToString(d[:])
}

// Bytes returns the raw digest.
func (d Digest) Bytes() []byte {
	return d[:]
}

// SignatureLength is r || s || recovery marker.
const SignatureLength = 65

// RecoveryMarkerOffset is added to the recovery id in the serialized signature.
const RecoveryMarkerOffset = 27

// Signature is a recoverable secp256k1 signature in r || s || (recovery id + 27) form.
type Signature [SignatureLength]byte

// NewSignatureFromHex decodes a hex-encoded signature, with or without a 0x prefix.
// Only the length is checked; the recovery marker is validated by the verifier.
func NewSignatureFromHex(sig string) (Signature, error) {
	clean := strings.TrimPrefix(sig, "0x")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: invalid hex: %v", ErrMalformedSignature, err)
	}
	if len(raw) != SignatureLength {
		return Signature{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, SignatureLength, len(raw))
	}

	var res Signature
	copy(res[:], raw)
	return res, nil
}

// String returns the hex encoding used on the wire (no 0x prefix).
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// RecoveryID returns the recovery id encoded in the last byte.
// It fails unless the marker is 27 or 28.
func (s Signature) RecoveryID() (byte, error) {
	marker := s[SignatureLength-1]
	if marker != RecoveryMarkerOffset && marker != RecoveryMarkerOffset+1 {
		return 0, fmt.Errorf("%w: recovery marker %d not in {27, 28}", ErrMalformedSignature, marker)
	}
	return marker - RecoveryMarkerOffset, nil
}

// PublicKeyLength is the uncompressed secp256k1 point without the 0x04 format byte.
const PublicKeyLength = 64

// PublicKey is an uncompressed secp256k1 public key as x || y.
type PublicKey [PublicKeyLength]byte

// NewPublicKeyFromBytes accepts either 64 bytes (x || y) or 65 bytes with the 0x04 prefix.
func NewPublicKeyFromBytes(key []byte) (PublicKey, error) {
	switch {
	case len(key) == PublicKeyLength:
	case len(key) == PublicKeyLength+1 && key[0] == 0x04:
		key = key[1:]
	default:
		return PublicKey{}, fmt.Errorf("%w: unexpected public key length %d", ErrInvalidKey, len(key))
	}

	var res PublicKey
	copy(res[:], key)
	return res, nil
}

// NewPublicKeyFromHex decodes a hex-encoded public key, with or without a 0x prefix.
func NewPublicKeyFromHex(key string) (PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: invalid hex: %v", ErrInvalidKey, err)
	}
	return NewPublicKeyFromBytes(raw)
}

// String returns the hex string representation of the key (no format byte, no 0x prefix).
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// Bytes returns the raw 64-byte key.
func (k PublicKey) Bytes() []byte {
	return k[:]
}

// Equal compares two public keys for equality.
func (k PublicKey) Equal(other PublicKey) bool {
	return k == other
}

// Address derives the Ethereum address of the key.
func (k PublicKey) Address() common.Address {
	return common.BytesToAddress(crypto.Keccak256(k[:])[12:])
}

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

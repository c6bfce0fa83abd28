package interfaces

import (
	"context"
	"time"
)

// Measurements maps measurement register indices to hex-encoded values
// (PCRs for Nitro, MRTD/RTMRs for TDX).
type Measurements map[int]string

// AttestationReport is a decoded and signature-checked attestation document.
type AttestationReport struct {
	// Type is the attestation type string id, e.g. "nitro".
	Type string

	// Measurements of the TEE image as reported by the platform.
	Measurements Measurements

	// Timestamp of the document. Zero when the platform does not report one.
	Timestamp time.Time

	// PublicKey is the signing key bound into the document.
	PublicKey PublicKey
}

// AttestationProvider produces attestation documents that bind the given
// public key on the TEE host.
type AttestationProvider interface {
	AttestationType() string
	Attest(pubkey PublicKey) ([]byte, error)
}

// AttestationGateway supplies the attested public key of a TEE instance.
// Implementations fetch the document on every call and must fail rather
// than return a cached or default key.
type AttestationGateway interface {
	AttestedPublicKey(ctx context.Context) (PublicKey, error)
}

package interfaces

import "errors"

// Request and encoding errors. Rejected before any upstream call is made.
var (
	ErrInvalidRequest  = errors.New("invalid fetch request")
	ErrInvalidEncoding = errors.New("invalid encoding")
)

// Transport errors. The proxy could not complete the fetch.
var (
	ErrUpstream     = errors.New("upstream fetch failed")
	ErrBodyTooLarge = errors.New("upstream body exceeds limit")
)

// Cryptographic errors. All are terminal verification failures.
var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrKeyRecovery        = errors.New("public key recovery failed")
	ErrSignatureMismatch  = errors.New("signature does not match attested key")
	ErrInvalidKey         = errors.New("invalid key material")
)

// Attestation errors. Never substituted with a cached or default key.
var (
	ErrAttestation         = errors.New("attestation verification failed")
	ErrMeasurementMismatch = errors.New("measurement mismatch")
	ErrStaleAttestation    = errors.New("attestation document is stale")
)

// Key source errors.
var (
	ErrKeyNotFound        = errors.New("key material not found")
	ErrBackendUnavailable = errors.New("key source unavailable")
	ErrInvalidLocationURI = errors.New("invalid key source URI")
)

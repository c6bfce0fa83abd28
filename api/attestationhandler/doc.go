// Package attestationhandler serves and consumes the attestation documents
// that bind an instance's signing key to its TEE measurements.
//
// On the TEE host, Handler exposes GET /attestation/raw on the attestation
// listener (port 1301 by default). Each request produces a fresh document from
// the configured interfaces.AttestationProvider: an AWS Nitro document with
// the key in its public_key field, a TDX quote with the key as report data, or
// a JSON document for development.
//
// On the verifier side, Gateway fetches that document, checks its platform
// signature, compares the expected measurements and the timestamp, and only
// then returns the bound key.
package attestationhandler

// Package interfaces defines the data model and collaborator contracts of the
// attested fetch oracle, separating definitions from implementations.
//
// # Data Model
//
// FetchRequest: the caller's request. Headers and Body are committed to the
// signing digest; ExcludedHeaders and ExcludedBody travel upstream but are never
// committed; ResponseHeaders selects which response headers are disclosed.
//
// FetchResponse: status, disclosed headers, body text, completion timestamp and
// the hex signature produced inside the TEE.
//
// Digest, Signature and PublicKey are fixed-size byte arrays with hex helpers.
//
// # Collaborators
//
// Signer: holds the device-bound secp256k1 key.
//
// AttestationProvider: produces an attestation document binding the signer's
// public key on the TEE host.
//
// AttestationGateway: on the verifier side, yields the attested public key or fails.
//
// KeySource: loads raw key material from a file, Vault or S3.
//
// # Errors
//
// Sentinel errors group failures into request/encoding, transport,
// cryptographic, attestation and key loading classes. Wrap with %w and test with
// errors.Is.
package interfaces

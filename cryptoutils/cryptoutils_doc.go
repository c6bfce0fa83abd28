// Package cryptoutils implements the cryptographic core of the attested fetch
// protocol.
//
// # Canonical Encoding
//
// A fetch is committed as the EIP-712 typed structure
//
//	RequestData         { string url; string method; string[] headerKeys; string[] headerValues; string body; string[] responseHeaders }
//	ResponseData        { uint8 handler; uint16 status; string[] headerKeys; string[] headerValues; string body; uint64 timestamp }
//	RequestResponseData { RequestData requestData; ResponseData responseData }
//
// under the domain {name: "Teefetch", version: "1"}. Header mappings are
// flattened into parallel key/value arrays sorted ascending by key, so signer and
// verifier agree regardless of map iteration order. The handler field is always
// HandlerVersion. Excluded headers, the excluded body and the signature itself
// never enter the encoding. Strings must be valid UTF-8.
//
// SigningDigest returns the EIP-712 signing hash; EncodeABI returns the ABI
// encoding of the same data for on-chain consumers.
//
// # Signatures
//
// Signatures are 65 bytes: r || s || (recovery id + 27), hex-encoded on the
// wire. RecoverPublicKey rejects markers outside {27, 28} before recovery.
// VerifyFetch recomputes the digest from the caller's own copy of the request
// and response and compares the recovered key with the attested key.
//
// # Attestation
//
// AttestationProviderFor returns the provider that binds the signing key into a
// platform document (Nitro public_key field, TDX report data, or a development
// dummy). DecodeAttestation checks the platform signature and extracts
// measurements, timestamp and key; VerifyAttestation applies the caller's
// measurement and freshness policy.
package cryptoutils

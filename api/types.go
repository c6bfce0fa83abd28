package api

// Well-known ports of a TEE instance.
const (
	DefaultFetchPort       = 3000
	DefaultAttestationPort = 1301
)

// AttestationTypeHeader carries the attestation type string id of the
// document served by the attestation endpoint.
const AttestationTypeHeader = "X-Attestation-Type"

// SignerInfoResponse describes the signing key of a running instance.
// It is informational only: verifiers must take the key from the attestation document.
type SignerInfoResponse struct {
	// PublicKey is the hex-encoded 64-byte x || y public key.
	PublicKey string `json:"public_key"`

	// Address is the checksummed Ethereum address of the key.
	Address string `json:"address"`

	// AttestationType is the attestation type the instance serves.
	AttestationType string `json:"attestation_type,omitempty"`
}

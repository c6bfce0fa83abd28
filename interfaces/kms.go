package interfaces

// Signer produces recoverable signatures over signing digests with a
// process-wide key that never changes after construction.
type Signer interface {
	// Sign returns r || s || (recovery id + 27) over the digest.
	Sign(digest Digest) (Signature, error)

	// PublicKey returns the key that signatures recover to.
	PublicKey() PublicKey
}

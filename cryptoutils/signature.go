package cryptoutils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/teefetch/interfaces"
)

// RecoverPublicKey recovers the signer's public key from a digest and a
// signature in r || s || (recovery id + 27) form. The recovery marker is
// checked before any curve arithmetic.
func RecoverPublicKey(digest interfaces.Digest, sig interfaces.Signature) (interfaces.PublicKey, error) {
	recoveryID, err := sig.RecoveryID()
	if err != nil {
		return interfaces.PublicKey{}, err
	}

	// go-ethereum expects the raw recovery id in the last byte.
	ethSig := make([]byte, interfaces.SignatureLength)
	copy(ethSig, sig[:64])
	ethSig[64] = recoveryID

	pubkey, err := crypto.SigToPub(digest[:], ethSig)
	if err != nil {
		return interfaces.PublicKey{}, fmt.Errorf("%w: %v", interfaces.ErrKeyRecovery, err)
	}

	return interfaces.NewPublicKeyFromBytes(crypto.FromECDSAPub(pubkey))
}

// VerifyDigest checks that sig over digest was made by the attested key.
func VerifyDigest(digest interfaces.Digest, sig interfaces.Signature, attested interfaces.PublicKey) error {
	if attested.IsZero() {
		return fmt.Errorf("%w: empty attested key", interfaces.ErrInvalidKey)
	}

	recovered, err := RecoverPublicKey(digest, sig)
	if err != nil {
		return err
	}

	if !recovered.Equal(attested) {
		return fmt.Errorf("%w: recovered %s, attested %s", interfaces.ErrSignatureMismatch, recovered, attested)
	}
	return nil
}

// VerifyFetch recomputes the signing digest from the request and response the
// caller holds and checks that the response signature recovers to the attested key.
// The result is binary: nil means verified, any error means not verified.
func VerifyFetch(req *interfaces.FetchRequest, resp *interfaces.FetchResponse, attested interfaces.PublicKey) error {
	digest, err := SigningDigest(req, resp)
	if err != nil {
		return err
	}

	sig, err := interfaces.NewSignatureFromHex(resp.Signature)
	if err != nil {
		return err
	}

	return VerifyDigest(digest, sig, attested)
}

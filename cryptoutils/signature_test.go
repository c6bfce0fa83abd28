package cryptoutils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testKey(t *testing.T) (*ecdsa.PrivateKey, interfaces.PublicKey) {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	pubkey, err := interfaces.NewPublicKeyFromBytes(crypto.FromECDSAPub(&key.PublicKey))
	require.NoError(t, err)
	return key, pubkey
}

// signFetch signs the way the proxy does: r || s || (v + 27).
func signFetch(t *testing.T, key *ecdsa.PrivateKey, req *interfaces.FetchRequest, resp *interfaces.FetchResponse) {
	t.Helper()
	digest, err := SigningDigest(req, resp)
	require.NoError(t, err)

	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)
	sig[64] += interfaces.RecoveryMarkerOffset

	resp.Signature = hex.EncodeToString(sig)
}

func TestVerifyFetch_RoundTrip(t *testing.T) {
	key, pubkey := testKey(t)

	req := exampleRequest()
	resp := exampleResponse()
	signFetch(t, key, req, resp)

	require.NoError(t, VerifyFetch(req, resp, pubkey))

	// A 0x prefix on the signature is tolerated.
	prefixed := *resp
	prefixed.Signature = "0x" + resp.Signature
	require.NoError(t, VerifyFetch(req, &prefixed, pubkey))
}

func TestRecoverPublicKey_ConcreteScenario(t *testing.T) {
	key, pubkey := testKey(t)

	req := exampleRequest()
	resp := exampleResponse()
	signFetch(t, key, req, resp)

	digest, err := SigningDigest(req, resp)
	require.NoError(t, err)
	sig, err := interfaces.NewSignatureFromHex(resp.Signature)
	require.NoError(t, err)

	recovered, err := RecoverPublicKey(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, pubkey, recovered)

	// Moving the timestamp by one second changes the digest and breaks the signature.
	resp.Timestamp = 1700000001
	moved, err := SigningDigest(req, resp)
	require.NoError(t, err)
	assert.NotEqual(t, digest, moved)
	assert.ErrorIs(t, VerifyFetch(req, resp, pubkey), interfaces.ErrSignatureMismatch)
}

func TestVerifyFetch_TamperDetection(t *testing.T) {
	key, pubkey := testKey(t)

	req := exampleRequest()
	req.Headers = map[string]string{"Host": "example.com"}
	req.ResponseHeaders = []string{"Content-Type"}
	resp := exampleResponse()
	resp.Headers = map[string]string{"Content-Type": "text/html"}
	signFetch(t, key, req, resp)

	t.Run("committed fields", func(t *testing.T) {
		tampered := []func(req *interfaces.FetchRequest, resp *interfaces.FetchResponse){
			func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.URL = "https://evil.example.com" },
			func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Headers["Host"] = "evil.example.com" },
			func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.ResponseHeaders = nil },
			func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Status = 500 },
			func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Body = "<html>forged</html>" },
			func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Headers["Content-Type"] = "text/plain" },
		}
		for _, mutate := range tampered {
			req2 := *req
			req2.Headers = map[string]string{"Host": "example.com"}
			resp2 := *resp
			resp2.Headers = map[string]string{"Content-Type": "text/html"}
			mutate(&req2, &resp2)

			err := VerifyFetch(&req2, &resp2, pubkey)
			require.Error(t, err)
		}
	})

	t.Run("signature bit flips", func(t *testing.T) {
		raw, err := hex.DecodeString(resp.Signature)
		require.NoError(t, err)

		for i := 0; i < len(raw)*8; i += 7 {
			flipped := make([]byte, len(raw))
			copy(flipped, raw)
			flipped[i/8] ^= 1 << (i % 8)

			resp2 := *resp
			resp2.Signature = hex.EncodeToString(flipped)
			assert.Error(t, VerifyFetch(req, &resp2, pubkey), "bit %d", i)
		}
	})

	t.Run("other key", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		otherPub, err := interfaces.NewPublicKeyFromBytes(crypto.FromECDSAPub(&other.PublicKey))
		require.NoError(t, err)

		assert.ErrorIs(t, VerifyFetch(req, resp, otherPub), interfaces.ErrSignatureMismatch)
	})

	t.Run("zero key", func(t *testing.T) {
		assert.ErrorIs(t, VerifyFetch(req, resp, interfaces.PublicKey{}), interfaces.ErrInvalidKey)
	})
}

func TestRecoverPublicKey_RecoveryMarkerBounds(t *testing.T) {
	key, _ := testKey(t)
	digest, err := SigningDigest(exampleRequest(), exampleResponse())
	require.NoError(t, err)

	raw, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)

	for _, marker := range []byte{0, 1, 26, 29, 30, 255} {
		var sig interfaces.Signature
		copy(sig[:], raw)
		sig[64] = marker

		_, err := RecoverPublicKey(digest, sig)
		assert.ErrorIs(t, err, interfaces.ErrMalformedSignature, "marker %d", marker)
	}

	for _, marker := range []byte{27, 28} {
		var sig interfaces.Signature
		copy(sig[:], raw)
		sig[64] = marker

		_, err := RecoverPublicKey(digest, sig)
		assert.NotErrorIs(t, err, interfaces.ErrMalformedSignature)
	}
}

func TestVerifyFetch_MalformedSignature(t *testing.T) {
	_, pubkey := testKey(t)

	for name, sig := range map[string]string{
		"empty":     "",
		"not hex":   "zz",
		"too short": hex.EncodeToString(make([]byte, 64)),
		"too long":  hex.EncodeToString(make([]byte, 66)),
	} {
		t.Run(name, func(t *testing.T) {
			resp := exampleResponse()
			resp.Signature = sig
			assert.ErrorIs(t, VerifyFetch(exampleRequest(), resp, pubkey), interfaces.ErrMalformedSignature)
		})
	}
}

func TestRecoverPublicKey_InvalidScalars(t *testing.T) {
	digest, err := SigningDigest(exampleRequest(), exampleResponse())
	require.NoError(t, err)

	// r = s = 0 with a valid marker cannot be recovered.
	var sig interfaces.Signature
	sig[64] = 27

	_, err = RecoverPublicKey(digest, sig)
	assert.ErrorIs(t, err, interfaces.ErrKeyRecovery)
}

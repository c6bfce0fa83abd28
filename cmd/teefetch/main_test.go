package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/ruteri/teefetch/kms"
	"github.com/ruteri/teefetch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeygenAndPubkey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")

	var keygenOut bytes.Buffer
	require.NoError(t, runKeygen(path, 0, 0, &keygenOut))
	assert.Contains(t, keygenOut.String(), "address: 0x")

	// Never overwrites an existing key
	assert.Error(t, runKeygen(path, 0, 0, io.Discard))

	var pubkeyOut bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, runPubkey(context.Background(), storage.NewFileKeySource(path, logger), &pubkeyOut))

	// Both commands describe the same key
	assert.Contains(t, keygenOut.String(), pubkeyOut.String())
}

func TestKeygenShares(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var keygenOut bytes.Buffer
	require.NoError(t, runKeygen(path, 3, 2, &keygenOut))
	assert.Contains(t, keygenOut.String(), "threshold: 2 of 3")

	// Any two shares give the same key
	source, err := kms.NewShareKeySource([]interfaces.KeySource{
		storage.NewFileKeySource(path+".share-3", logger),
		storage.NewFileKeySource(path+".share-1", logger),
	}, 2, logger)
	require.NoError(t, err)

	var pubkeyOut bytes.Buffer
	require.NoError(t, runPubkey(context.Background(), source, &pubkeyOut))
	assert.Contains(t, keygenOut.String(), pubkeyOut.String())

	assert.Error(t, runKeygen(filepath.Join(t.TempDir(), "other.key"), 3, 4, io.Discard))
}

func TestPrintFetch(t *testing.T) {
	signer, err := kms.NewSigningKey([]byte("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"))
	require.NoError(t, err)

	req := &interfaces.FetchRequest{URL: "https://example.com", Method: "GET"}
	resp := &interfaces.FetchResponse{
		Handler:   cryptoutils.HandlerVersion,
		Status:    200,
		Body:      "<html>...</html>",
		Timestamp: 1700000000,
	}

	digest, err := cryptoutils.SigningDigest(req, resp)
	require.NoError(t, err)
	sig, err := signer.Sign(digest)
	require.NoError(t, err)
	resp.Signature = sig.String()

	var out bytes.Buffer
	require.NoError(t, printFetch(&out, req, resp))

	var printed fetchOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, digest.String(), printed.Digest)
	assert.Equal(t, signer.Address().Hex(), printed.Signer)
	assert.Equal(t, "0x"+sig.String(), printed.Signature)

	encoded, err := cryptoutils.EncodeABI(req, resp)
	require.NoError(t, err)
	assert.Equal(t, len(encoded)*2+2, len(printed.ABI))
}

// Package kms holds the oracle's signing key.
//
// SigningKey is constructed once from raw key material loaded at startup (see
// package storage for the sources) and is read-only afterwards. It implements
// interfaces.Signer: Sign returns a 65-byte recoverable secp256k1 signature
// r || s || (recovery id + 27) over a 32-byte signing digest.
//
// Key material can be split into Shamir shares with SplitKeyMaterial and held
// in separate secret stores. ShareKeySource reads one share per source and
// combines them once the threshold is reached:
//
//	source, err := kms.NewShareKeySource([]interfaces.KeySource{vaultShare, s3Share, fileShare}, 2, logger)
//	material, err := source.Fetch(ctx)
//	signer, err := kms.NewSigningKey(material)
//
// The key material is never logged and never persisted by this package.
package kms

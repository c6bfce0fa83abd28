// Package storage loads the oracle's signing key material from pluggable
// secret stores.
//
// Key sources are addressed by location URIs:
//
//	/etc/teefetch/signing.key
//	file:///etc/teefetch/signing.key
//	vault://vault.internal:8200/secret/teefetch/signer?field=key
//	s3://bucket/teefetch/signing.key?region=eu-west-1
//
// A plain path is treated as a file. Vault sources read a field of a KV v2
// secret and authenticate with VAULT_TOKEN. S3 sources use embedded
// credentials when present and the default AWS credential chain otherwise.
//
// Several locations can be combined into a MultiKeySource, which returns the
// material from the first reachable source:
//
//	factory := storage.NewKeySourceFactory(logger)
//	source, err := factory.CreateMultiSource([]string{
//	    "vault://vault.internal:8200/secret/teefetch/signer",
//	    "/etc/teefetch/signing.key",
//	})
//	if err != nil {
//	    return err
//	}
//	material, err := source.Fetch(ctx)
//
// The fetched bytes are handed to kms.NewSigningKey and are never logged.
package storage

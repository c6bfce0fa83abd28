/*
Package api provides the network surface of the attested fetch oracle.

This package is organized into two subpackages:

1. fetchhandler - The proxy endpoint that performs, commits and signs fetches,
   and the caller-side client that submits and verifies them
2. attestationhandler - The endpoint serving the raw attestation document, and
   the gateway that fetches and verifies it to yield the attested public key

The package itself holds the shared server configuration and wire types.

# Trust Flow

 1. The caller POSTs a fetch request to the proxy (port 3000 by default).
 2. The proxy performs the upstream call, timestamps the response, computes the
    signing digest and signs it with the instance key.
 3. The caller recomputes the digest from the request it sent and the response
    it received, recovers the signer and compares it with the key bound into the
    attestation document served on port 1301.

No partial or unsigned response is ever returned with a success status.
*/
package api

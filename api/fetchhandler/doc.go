// Package fetchhandler implements the proxy endpoint of the attested fetch
// oracle and the client that talks to it.
//
// The Handler accepts a JSON FetchRequest, sends it upstream with both the
// committed and the excluded headers, captures the status, the requested
// response headers and the body, stamps the completion time and signs the
// EIP-712 digest of the committed fields. Only the committed request fields
// (url, method, headers, body, response_headers) and the captured response
// enter the digest.
//
// On the wire, excluded headers are applied before committed ones, so a name
// present in both is sent with the committed value. The excluded body is
// appended to the body.
//
// The Client posts requests to /json and verifies responses by recovering the
// signer and comparing it with the key from an interfaces.AttestationGateway:
//
//	gateway := &attestationhandler.Gateway{Endpoint: "http://10.0.0.5:1301", Type: cryptoutils.NitroAttestation}
//	client := fetchhandler.NewClient("http://10.0.0.5:3000", gateway)
//	resp, err := client.FetchAndVerify(ctx, &interfaces.FetchRequest{
//	    URL:    "https://example.com",
//	    Method: "GET",
//	})
package fetchhandler

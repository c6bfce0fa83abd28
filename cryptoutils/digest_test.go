package cryptoutils

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleRequest() *interfaces.FetchRequest {
	return &interfaces.FetchRequest{
		URL:             "https://example.com",
		Method:          "GET",
		Headers:         map[string]string{},
		ExcludedHeaders: map[string]string{},
		Body:            "",
		ResponseHeaders: []string{},
	}
}

func exampleResponse() *interfaces.FetchResponse {
	return &interfaces.FetchResponse{
		Handler:   HandlerVersion,
		Status:    200,
		Headers:   map[string]string{},
		Body:      "<html>...</html>",
		Timestamp: 1700000000,
	}
}

// referenceDigest is an independent EIP-712 encoding of the fetch statement
// built from keccak256 primitives only.
func referenceDigest(req *interfaces.FetchRequest, resp *interfaces.FetchResponse) []byte {
	const (
		requestType  = "RequestData(string url,string method,string[] headerKeys,string[] headerValues,string body,string[] responseHeaders)"
		responseType = "ResponseData(uint8 handler,uint16 status,string[] headerKeys,string[] headerValues,string body,uint64 timestamp)"
		rootType     = "RequestResponseData(RequestData requestData,ResponseData responseData)" + requestType + responseType
		domainType   = "EIP712Domain(string name,string version)"
	)

	str := func(s string) []byte { return crypto.Keccak256([]byte(s)) }
	strs := func(list []string) []byte {
		var buf []byte
		for _, s := range list {
			buf = append(buf, str(s)...)
		}
		return crypto.Keccak256(buf)
	}
	uint256 := func(v uint64) []byte {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		return common.LeftPadBytes(b[:], 32)
	}
	hashStruct := func(typ string, fields ...[]byte) []byte {
		buf := str(typ)
		for _, f := range fields {
			buf = append(buf, f...)
		}
		return crypto.Keccak256(buf)
	}

	reqKeys, reqValues := SortedHeaders(req.Headers)
	respKeys, respValues := SortedHeaders(resp.Headers)

	requestHash := hashStruct(requestType,
		str(req.URL), str(req.Method), strs(reqKeys), strs(reqValues), str(req.Body), strs(req.ResponseHeaders))
	responseHash := hashStruct(responseType,
		uint256(1), uint256(uint64(resp.Status)), strs(respKeys), strs(respValues), str(resp.Body), uint256(resp.Timestamp))
	rootHash := hashStruct(rootType, requestHash, responseHash)
	domainSeparator := hashStruct(domainType, str(DomainName), str(DomainVersion))

	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, rootHash)
}

func TestSigningDigest_MatchesReferenceEncoding(t *testing.T) {
	testCases := []struct {
		name string
		req  *interfaces.FetchRequest
		resp *interfaces.FetchResponse
	}{
		{
			name: "empty headers",
			req:  exampleRequest(),
			resp: exampleResponse(),
		},
		{
			name: "committed and disclosed headers",
			req: &interfaces.FetchRequest{
				URL:             "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd",
				Method:          "POST",
				Headers:         map[string]string{"Host": "api.coingecko.com", "Accept": "application/json", "X-B": "2"},
				Body:            `{"q":1}`,
				ResponseHeaders: []string{"Content-Type", "Date"},
			},
			resp: &interfaces.FetchResponse{
				Status:    404,
				Headers:   map[string]string{"Date": "Tue, 14 Nov 2023 22:13:20 GMT", "Content-Type": "application/json"},
				Body:      `{"error":"not found"}`,
				Timestamp: 1700000000,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			digest, err := SigningDigest(tc.req, tc.resp)
			require.NoError(t, err)
			assert.Equal(t, referenceDigest(tc.req, tc.resp), digest.Bytes())
		})
	}
}

func TestSigningDigest_Deterministic(t *testing.T) {
	headers := map[string]string{}
	for _, k := range []string{"Zeta", "Alpha", "Mid", "Beta", "Omega", "Gamma"} {
		headers[k] = k + "-value"
	}

	req := exampleRequest()
	req.Headers = headers

	first, err := SigningDigest(req, exampleResponse())
	require.NoError(t, err)

	// Map iteration order varies between runs; the digest must not.
	for i := 0; i < 50; i++ {
		copied := map[string]string{}
		for k, v := range headers {
			copied[k] = v
		}
		req := exampleRequest()
		req.Headers = copied

		digest, err := SigningDigest(req, exampleResponse())
		require.NoError(t, err)
		require.Equal(t, first, digest)
	}
}

func TestSigningDigest_Sensitivity(t *testing.T) {
	base, err := SigningDigest(exampleRequest(), exampleResponse())
	require.NoError(t, err)

	mutations := map[string]func(req *interfaces.FetchRequest, resp *interfaces.FetchResponse){
		"url":                   func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.URL = "https://example.org" },
		"method":                func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Method = "get" },
		"committed header key":  func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Headers["Host"] = "" },
		"committed header":      func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Headers["Host"] = "example.com" },
		"request body":          func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Body = " " },
		"disclosed header name": func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.ResponseHeaders = []string{"Date"} },
		"status":                func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Status = 201 },
		"response header":       func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Headers["Date"] = "x" },
		"response body":         func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Body = "<html></html>" },
		"timestamp":             func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Timestamp = 1700000001 },
	}

	seen := map[interfaces.Digest]string{base: "base"}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			req, resp := exampleRequest(), exampleResponse()
			mutate(req, resp)

			digest, err := SigningDigest(req, resp)
			require.NoError(t, err)
			assert.NotEqual(t, base, digest)

			prev, dup := seen[digest]
			assert.False(t, dup, "digest collides with %s", prev)
			seen[digest] = name
		})
	}
}

func TestSigningDigest_ExcludedFieldsNotCommitted(t *testing.T) {
	base, err := SigningDigest(exampleRequest(), exampleResponse())
	require.NoError(t, err)

	req := exampleRequest()
	req.ExcludedHeaders = map[string]string{"Authorization": "Bearer secret"}
	req.ExcludedBody = "api_key=secret"

	resp := exampleResponse()
	resp.Signature = "deadbeef"
	// The handler is always the encoding scheme version, whatever the response says.
	resp.Handler = 7

	digest, err := SigningDigest(req, resp)
	require.NoError(t, err)
	assert.Equal(t, base, digest)
}

func TestSigningDigest_NilHeadersEqualEmpty(t *testing.T) {
	base, err := SigningDigest(exampleRequest(), exampleResponse())
	require.NoError(t, err)

	req := exampleRequest()
	req.Headers = nil
	req.ResponseHeaders = nil
	resp := exampleResponse()
	resp.Headers = nil

	digest, err := SigningDigest(req, resp)
	require.NoError(t, err)
	assert.Equal(t, base, digest)
}

func TestSigningDigest_RejectsInvalidUTF8(t *testing.T) {
	invalid := string([]byte{0xff, 0xfe})

	testCases := map[string]func(req *interfaces.FetchRequest, resp *interfaces.FetchResponse){
		"url":           func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.URL = invalid },
		"method":        func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Method = invalid },
		"header key":    func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Headers[invalid] = "v" },
		"header value":  func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Headers["k"] = invalid },
		"request body":  func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.Body = invalid },
		"response name": func(req *interfaces.FetchRequest, _ *interfaces.FetchResponse) { req.ResponseHeaders = []string{invalid} },
		"response body": func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Body = invalid },
		"resp header":   func(_ *interfaces.FetchRequest, resp *interfaces.FetchResponse) { resp.Headers["k"] = invalid },
	}

	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			req, resp := exampleRequest(), exampleResponse()
			mutate(req, resp)

			_, err := SigningDigest(req, resp)
			assert.ErrorIs(t, err, interfaces.ErrInvalidEncoding)
		})
	}
}

func TestSigningDigest_NilInputs(t *testing.T) {
	_, err := SigningDigest(nil, exampleResponse())
	assert.ErrorIs(t, err, interfaces.ErrInvalidEncoding)

	_, err = SigningDigest(exampleRequest(), nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidEncoding)
}

func TestSortedHeaders(t *testing.T) {
	keys, values := SortedHeaders(map[string]string{"b": "2", "a": "1", "B": "3"})
	assert.Equal(t, []string{"B", "a", "b"}, keys)
	assert.Equal(t, []string{"3", "1", "2"}, values)

	keys, values = SortedHeaders(nil)
	assert.NotNil(t, keys)
	assert.NotNil(t, values)
	assert.Empty(t, keys)
}

func TestEncodeABI_RoundTrip(t *testing.T) {
	req := exampleRequest()
	req.Headers = map[string]string{"Host": "example.com"}
	req.ResponseHeaders = []string{"Content-Type"}
	resp := exampleResponse()
	resp.Headers = map[string]string{"Content-Type": "text/html"}

	encoded, err := EncodeABI(req, resp)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	requestData, responseData, err := DecodeABI(encoded)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", requestData.Url)
	assert.Equal(t, []string{"Host"}, requestData.HeaderKeys)
	assert.Equal(t, []string{"example.com"}, requestData.HeaderValues)
	assert.Equal(t, []string{"Content-Type"}, requestData.ResponseHeaders)
	assert.Equal(t, HandlerVersion, responseData.Handler)
	assert.Equal(t, uint16(200), responseData.Status)
	assert.Equal(t, []string{"text/html"}, responseData.HeaderValues)
	assert.Equal(t, uint64(1700000000), responseData.Timestamp)
}

package cryptoutils

import (
	"fmt"
	"math/big"
	"sort"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ruteri/teefetch/interfaces"
)

const (
	// DomainName and DomainVersion form the EIP-712 domain separator.
	DomainName    = "Teefetch"
	DomainVersion = "1"

	// HandlerVersion identifies the encoding scheme. It is committed in place
	// of whatever handler value the response carries.
	HandlerVersion uint8 = 1
)

// fetchTypes are the EIP-712 types of the signed statement. Field order is part
// of the protocol.
var fetchTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
	},
	"RequestData": {
		{Name: "url", Type: "string"},
		{Name: "method", Type: "string"},
		{Name: "headerKeys", Type: "string[]"},
		{Name: "headerValues", Type: "string[]"},
		{Name: "body", Type: "string"},
		{Name: "responseHeaders", Type: "string[]"},
	},
	"ResponseData": {
		{Name: "handler", Type: "uint8"},
		{Name: "status", Type: "uint16"},
		{Name: "headerKeys", Type: "string[]"},
		{Name: "headerValues", Type: "string[]"},
		{Name: "body", Type: "string"},
		{Name: "timestamp", Type: "uint64"},
	},
	"RequestResponseData": {
		{Name: "requestData", Type: "RequestData"},
		{Name: "responseData", Type: "ResponseData"},
	},
}

// RequestData holds the committed request fields in encoding order.
type RequestData struct {
	Url             string
	Method          string
	HeaderKeys      []string
	HeaderValues    []string
	Body            string
	ResponseHeaders []string
}

// ResponseData holds the committed response fields in encoding order.
type ResponseData struct {
	Handler      uint8
	Status       uint16
	HeaderKeys   []string
	HeaderValues []string
	Body         string
	Timestamp    uint64
}

// SortedHeaders flattens a header mapping into parallel key/value slices
// ordered ascending by key. Both slices are non-nil.
func SortedHeaders(headers map[string]string) (keys []string, values []string) {
	keys = make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values = make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, headers[k])
	}
	return keys, values
}

// CommittedData extracts the committed fields of a request/response pair.
// Uncommitted headers, the excluded body and the signature never take part.
// All strings must be valid UTF-8.
func CommittedData(req *interfaces.FetchRequest, resp *interfaces.FetchResponse) (RequestData, ResponseData, error) {
	if req == nil || resp == nil {
		return RequestData{}, ResponseData{}, fmt.Errorf("%w: missing request or response", interfaces.ErrInvalidEncoding)
	}

	reqKeys, reqValues := SortedHeaders(req.Headers)
	respKeys, respValues := SortedHeaders(resp.Headers)

	responseHeaders := make([]string, len(req.ResponseHeaders))
	copy(responseHeaders, req.ResponseHeaders)

	requestData := RequestData{
		Url:             req.URL,
		Method:          req.Method,
		HeaderKeys:      reqKeys,
		HeaderValues:    reqValues,
		Body:            req.Body,
		ResponseHeaders: responseHeaders,
	}
	responseData := ResponseData{
		Handler:      HandlerVersion,
		Status:       resp.Status,
		HeaderKeys:   respKeys,
		HeaderValues: respValues,
		Body:         resp.Body,
		Timestamp:    resp.Timestamp,
	}

	if err := requestData.validate(); err != nil {
		return RequestData{}, ResponseData{}, fmt.Errorf("request data: %w", err)
	}
	if err := responseData.validate(); err != nil {
		return RequestData{}, ResponseData{}, fmt.Errorf("response data: %w", err)
	}

	return requestData, responseData, nil
}

// TypedData builds the EIP-712 document for a request/response pair.
func TypedData(req *interfaces.FetchRequest, resp *interfaces.FetchResponse) (apitypes.TypedData, error) {
	requestData, responseData, err := CommittedData(req, resp)
	if err != nil {
		return apitypes.TypedData{}, err
	}

	return apitypes.TypedData{
		Types:       fetchTypes,
		PrimaryType: "RequestResponseData",
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
		},
		Message: apitypes.TypedDataMessage{
			"requestData":  requestData.message(),
			"responseData": responseData.message(),
		},
	}, nil
}

// SigningDigest computes the EIP-712 signing hash of a request/response pair:
// keccak256(0x19 0x01 || domainSeparator || hashStruct(RequestResponseData)).
func SigningDigest(req *interfaces.FetchRequest, resp *interfaces.FetchResponse) (interfaces.Digest, error) {
	typedData, err := TypedData(req, resp)
	if err != nil {
		return interfaces.Digest{}, err
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return interfaces.Digest{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidEncoding, err)
	}

	var digest interfaces.Digest
	copy(digest[:], hash)
	return digest, nil
}

func (d RequestData) message() map[string]interface{} {
	return map[string]interface{}{
		"url":             d.Url,
		"method":          d.Method,
		"headerKeys":      stringArray(d.HeaderKeys),
		"headerValues":    stringArray(d.HeaderValues),
		"body":            d.Body,
		"responseHeaders": stringArray(d.ResponseHeaders),
	}
}

func (d ResponseData) message() map[string]interface{} {
	return map[string]interface{}{
		"handler":      new(big.Int).SetUint64(uint64(d.Handler)),
		"status":       new(big.Int).SetUint64(uint64(d.Status)),
		"headerKeys":   stringArray(d.HeaderKeys),
		"headerValues": stringArray(d.HeaderValues),
		"body":         d.Body,
		"timestamp":    new(big.Int).SetUint64(d.Timestamp),
	}
}

func (d RequestData) validate() error {
	if err := validUTF8("url", d.Url); err != nil {
		return err
	}
	if err := validUTF8("method", d.Method); err != nil {
		return err
	}
	if err := validUTF8All("header", d.HeaderKeys, d.HeaderValues); err != nil {
		return err
	}
	if err := validUTF8("body", d.Body); err != nil {
		return err
	}
	return validUTF8All("response header name", d.ResponseHeaders)
}

func (d ResponseData) validate() error {
	if err := validUTF8All("header", d.HeaderKeys, d.HeaderValues); err != nil {
		return err
	}
	return validUTF8("body", d.Body)
}

// apitypes expects []interface{} for array members; an empty array must not be nil.
func stringArray(values []string) []interface{} {
	res := make([]interface{}, 0, len(values))
	for _, v := range values {
		res = append(res, v)
	}
	return res
}

func validUTF8(field, value string) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %s is not valid UTF-8", interfaces.ErrInvalidEncoding, field)
	}
	return nil
}

func validUTF8All(field string, lists ...[]string) error {
	for _, list := range lists {
		for _, v := range list {
			if err := validUTF8(field, v); err != nil {
				return err
			}
		}
	}
	return nil
}

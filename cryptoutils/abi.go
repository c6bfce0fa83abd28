package cryptoutils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ruteri/teefetch/interfaces"
)

var (
	requestDataTy, _ = abi.NewType("tuple", "RequestData", []abi.ArgumentMarshaling{
		{Name: "url", Type: "string"},
		{Name: "method", Type: "string"},
		{Name: "headerKeys", Type: "string[]"},
		{Name: "headerValues", Type: "string[]"},
		{Name: "body", Type: "string"},
		{Name: "responseHeaders", Type: "string[]"},
	})

	responseDataTy, _ = abi.NewType("tuple", "ResponseData", []abi.ArgumentMarshaling{
		{Name: "handler", Type: "uint8"},
		{Name: "status", Type: "uint16"},
		{Name: "headerKeys", Type: "string[]"},
		{Name: "headerValues", Type: "string[]"},
		{Name: "body", Type: "string"},
		{Name: "timestamp", Type: "uint64"},
	})

	requestResponseArgs = abi.Arguments{
		{Name: "requestData", Type: requestDataTy},
		{Name: "responseData", Type: responseDataTy},
	}
)

// EncodeABI returns the Solidity ABI parameter encoding of (RequestData, ResponseData),
// the form in which an on-chain verifier receives the attested data alongside the signature.
func EncodeABI(req *interfaces.FetchRequest, resp *interfaces.FetchResponse) ([]byte, error) {
	requestData, responseData, err := CommittedData(req, resp)
	if err != nil {
		return nil, err
	}

	packed, err := requestResponseArgs.Pack(requestData, responseData)
	if err != nil {
		return nil, fmt.Errorf("%w: abi pack: %v", interfaces.ErrInvalidEncoding, err)
	}
	return packed, nil
}

// DecodeABI reverses EncodeABI.
func DecodeABI(data []byte) (RequestData, ResponseData, error) {
	values, err := requestResponseArgs.Unpack(data)
	if err != nil {
		return RequestData{}, ResponseData{}, fmt.Errorf("%w: abi unpack: %v", interfaces.ErrInvalidEncoding, err)
	}

	var decoded struct {
		RequestData  RequestData
		ResponseData ResponseData
	}
	if err := requestResponseArgs.Copy(&decoded, values); err != nil {
		return RequestData{}, ResponseData{}, fmt.Errorf("%w: abi copy: %v", interfaces.ErrInvalidEncoding, err)
	}
	return decoded.RequestData, decoded.ResponseData, nil
}

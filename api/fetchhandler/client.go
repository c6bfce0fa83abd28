package fetchhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ruteri/teefetch/api"
	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/interfaces"
)

// maxResponseBytes bounds the proxy response read by the client.
const maxResponseBytes = 32 << 20

// Client submits fetches to a TEE proxy and verifies the signed responses
// against the key attested by the instance.
type Client struct {
	// Endpoint is the base URL of the proxy, e.g. http://10.0.0.5:3000
	Endpoint string

	// Gateway supplies the attested public key at verification time.
	Gateway interfaces.AttestationGateway

	// HTTPClient is used for requests to the proxy. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewClient creates a client for the proxy at endpoint.
func NewClient(endpoint string, gateway interfaces.AttestationGateway) *Client {
	return &Client{
		Endpoint:   strings.TrimSuffix(endpoint, "/"),
		Gateway:    gateway,
		HTTPClient: http.DefaultClient,
	}
}

// Fetch submits the request to the proxy and returns its response unverified.
// Any non-2xx status from the proxy is an error.
func (c *Client) Fetch(ctx context.Context, req *interfaces.FetchRequest) (*interfaces.FetchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not encode fetch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not request fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("could not read fetch response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("proxy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var fetchResp interfaces.FetchResponse
	if err := json.Unmarshal(respBody, &fetchResp); err != nil {
		return nil, fmt.Errorf("could not parse fetch response: %w", err)
	}

	return &fetchResp, nil
}

// Verify checks that resp was signed by the key currently attested by the
// instance. The attestation is fetched on every call.
func (c *Client) Verify(ctx context.Context, req *interfaces.FetchRequest, resp *interfaces.FetchResponse) error {
	if c.Gateway == nil {
		return fmt.Errorf("%w: no attestation gateway configured", interfaces.ErrAttestation)
	}

	attested, err := c.Gateway.AttestedPublicKey(ctx)
	if err != nil {
		return fmt.Errorf("could not obtain attested key: %w", err)
	}

	return cryptoutils.VerifyFetch(req, resp, attested)
}

// FetchAndVerify submits the request and only returns the response once it verifies.
func (c *Client) FetchAndVerify(ctx context.Context, req *interfaces.FetchRequest) (*interfaces.FetchResponse, error) {
	resp, err := c.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.Verify(ctx, req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// SignerInfo retrieves the informational signer description of the instance.
func (c *Client) SignerInfo(ctx context.Context) (*api.SignerInfoResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/api/public/signer", nil)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not request signer info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy returned %d", resp.StatusCode)
	}

	var info api.SignerInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("could not parse signer info: %w", err)
	}

	return &info, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

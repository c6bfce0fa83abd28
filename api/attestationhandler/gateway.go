package attestationhandler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/teefetch/api"
	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/interfaces"
)

const (
	// DefaultTimeout bounds a single attestation retrieval.
	DefaultTimeout = 10 * time.Second

	maxDocumentBytes = 1 << 20
)

// Gateway retrieves and verifies the attestation document of one TEE instance
// and yields the public key bound into it. It implements interfaces.AttestationGateway.
//
// The document is fetched on every call. Any failure is returned as an error;
// there is no fallback key.
type Gateway struct {
	// Endpoint is the base URL of the attestation listener, e.g. http://10.0.0.5:1301
	Endpoint string

	// Type is the attestation type the verifier accepts. The document is always
	// decoded as this type; a server announcing a different type is rejected.
	Type string

	// ExpectedMeasurements lists the registers that must match. Registers not
	// listed are not checked.
	ExpectedMeasurements interfaces.Measurements

	// MaxAge rejects documents older than this. Zero disables the check.
	MaxAge time.Duration

	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client

	// Now overrides the clock used for timestamp checks.
	Now func() time.Time
}

// AttestedPublicKey fetches, decodes and verifies the document.
func (g *Gateway) AttestedPublicKey(ctx context.Context) (interfaces.PublicKey, error) {
	report, err := g.Report(ctx)
	if err != nil {
		return interfaces.PublicKey{}, err
	}
	return report.PublicKey, nil
}

// Report fetches, decodes and verifies the document, returning the full report.
func (g *Gateway) Report(ctx context.Context) (*interfaces.AttestationReport, error) {
	if _, err := cryptoutils.AttestationTypeFromString(g.Type); err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrAttestation, err)
	}

	doc, err := g.FetchDocument(ctx)
	if err != nil {
		return nil, err
	}

	report, err := cryptoutils.DecodeAttestation(g.Type, doc)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	if err := cryptoutils.VerifyAttestation(report, g.ExpectedMeasurements, now(), g.MaxAge); err != nil {
		return nil, err
	}

	return report, nil
}

// FetchDocument retrieves the raw document without verifying it.
func (g *Gateway) FetchDocument(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(g.Endpoint, "/")+"/attestation/raw", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not initialize request: %v", interfaces.ErrAttestation, err)
	}

	client := g.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: could not request attestation: %v", interfaces.ErrAttestation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: attestation endpoint returned %d", interfaces.ErrAttestation, resp.StatusCode)
	}

	if announced := resp.Header.Get(api.AttestationTypeHeader); announced != "" && announced != g.Type {
		return nil, fmt.Errorf("%w: instance serves %q attestations, expected %q", interfaces.ErrAttestation, announced, g.Type)
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: could not read attestation: %v", interfaces.ErrAttestation, err)
	}

	return doc, nil
}

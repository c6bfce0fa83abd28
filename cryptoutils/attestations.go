package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anjuna-security/go-nitro-attestation/attestdoc"
	"github.com/anjuna-security/go-nitro-attestation/attester"
	"github.com/anjuna-security/go-nitro-attestation/verifier"
	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_client "github.com/google/go-tdx-guest/client"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
	"github.com/ruteri/teefetch/interfaces"
)

// Attestation type string ids.
const (
	NitroAttestation = "nitro"
	DCAPAttestation  = "qemu-tdx"
	DummyAttestation = "dummy"
)

// MaxClockSkew is how far in the future a document timestamp may lie.
const MaxClockSkew = time.Minute

func AttestationTypeFromString(str string) (string, error) {
	switch str {
	case NitroAttestation, DCAPAttestation, DummyAttestation:
		return str, nil
	default:
		return "", fmt.Errorf("attestation type %q: %w", str, errors.ErrUnsupported)
	}
}

// AttestationProviderFor returns the provider producing documents of the given type on this host.
func AttestationProviderFor(attestationType string) (interfaces.AttestationProvider, error) {
	switch attestationType {
	case NitroAttestation:
		return &NitroAttestationProvider{}, nil
	case DCAPAttestation:
		return &DCAPAttestationProvider{}, nil
	case DummyAttestation:
		return &DummyAttestationProvider{}, nil
	default:
		return nil, fmt.Errorf("attestation type %q: %w", attestationType, errors.ErrUnsupported)
	}
}

// NitroAttestationProvider requests a document from the Nitro Secure Module
// with the signing key in the public_key field.
type NitroAttestationProvider struct{}

func (NitroAttestationProvider) AttestationType() string { return NitroAttestation }

func (NitroAttestationProvider) Attest(pubkey interfaces.PublicKey) ([]byte, error) {
	docReader, err := attester.GetAttestationReport(pubkey.Bytes(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("requesting nitro attestation: %w", err)
	}
	defer docReader.Close()

	doc, err := io.ReadAll(docReader)
	if err != nil {
		return nil, fmt.Errorf("reading nitro attestation: %w", err)
	}
	return doc, nil
}

// DCAPAttestationProvider produces a TDX quote whose 64-byte report data is the signing key.
type DCAPAttestationProvider struct{}

func (DCAPAttestationProvider) AttestationType() string { return DCAPAttestation }

func (DCAPAttestationProvider) Attest(pubkey interfaces.PublicKey) ([]byte, error) {
	reportData := [64]byte(pubkey)

	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// RemoteAttestationProvider obtains TDX quotes from a quote-provider sidecar.
type RemoteAttestationProvider struct {
	Address string
	Client  *http.Client
}

func (*RemoteAttestationProvider) AttestationType() string { return DCAPAttestation }

func (p *RemoteAttestationProvider) Attest(pubkey interfaces.PublicKey) ([]byte, error) {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	url := fmt.Sprintf("%s/attest/%s", p.Address, pubkey.String())
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}

// DummyDocument is the development attestation format. It carries no hardware
// evidence and is only accepted by verifiers explicitly configured for it.
type DummyDocument struct {
	Type         string                  `json:"type"`
	PublicKey    string                  `json:"public_key"`
	Timestamp    int64                   `json:"timestamp"`
	Measurements interfaces.Measurements `json:"measurements,omitempty"`
}

// DummyAttestationProvider produces DummyDocuments.
type DummyAttestationProvider struct {
	Measurements interfaces.Measurements
	Now          func() time.Time
}

func (*DummyAttestationProvider) AttestationType() string { return DummyAttestation }

func (p *DummyAttestationProvider) Attest(pubkey interfaces.PublicKey) ([]byte, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	return json.Marshal(DummyDocument{
		Type:         DummyAttestation,
		PublicKey:    pubkey.String(),
		Timestamp:    now().Unix(),
		Measurements: p.Measurements,
	})
}

// DecodeAttestation parses and checks the platform signature of an attestation
// document, returning the measurements, timestamp and bound public key. It does
// not judge the measurements; see VerifyAttestation.
func DecodeAttestation(attestationType string, doc []byte) (*interfaces.AttestationReport, error) {
	var (
		report *interfaces.AttestationReport
		err    error
	)

	switch attestationType {
	case NitroAttestation:
		report, err = decodeNitroAttestation(doc)
	case DCAPAttestation:
		report, err = decodeDCAPAttestation(doc)
	case DummyAttestation:
		report, err = decodeDummyAttestation(doc)
	default:
		return nil, fmt.Errorf("%w: unsupported attestation type %q", interfaces.ErrAttestation, attestationType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAttestation, err)
	}

	report.Type = attestationType
	return report, nil
}

func decodeNitroAttestation(doc []byte) (*interfaces.AttestationReport, error) {
	sr, err := verifier.NewSignedAttestationReport(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("could not parse nitro attestation document: %w", err)
	}

	if err := verifier.Validate(sr, nil); err != nil {
		return nil, fmt.Errorf("nitro attestation validation failed: %w", err)
	}

	return nitroReport(sr.Document)
}

// nitroReport extracts the bound key, PCRs and timestamp of a validated document.
func nitroReport(doc *attestdoc.AttestDoc) (*interfaces.AttestationReport, error) {
	pubkey, err := interfaces.NewPublicKeyFromBytes(doc.UserPublicKey)
	if err != nil {
		return nil, fmt.Errorf("nitro attestation public key: %w", err)
	}

	measurements := interfaces.Measurements{}
	for idx, pcr := range doc.PCRs {
		measurements[int(idx)] = hex.EncodeToString(pcr)
	}

	return &interfaces.AttestationReport{
		Measurements: measurements,
		Timestamp:    doc.Timestamp,
		PublicKey:    pubkey,
	}, nil
}

func decodeDCAPAttestation(doc []byte) (*interfaces.AttestationReport, error) {
	protoQuote, err := tdx_abi.QuoteToProto(doc)
	if err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type: %T", protoQuote)
	}

	// TODO: fetch collateral before verifying to distinguish the error better
	if err := verify.TdxQuote(protoQuote, verify.DefaultOptions()); err != nil {
		return nil, fmt.Errorf("quote verification failed: %w", err)
	}

	pubkey, err := interfaces.NewPublicKeyFromBytes(v4Quote.TdQuoteBody.ReportData)
	if err != nil {
		return nil, fmt.Errorf("quote report data: %w", err)
	}

	measurements := interfaces.Measurements{
		0: hex.EncodeToString(v4Quote.TdQuoteBody.MrTd),
		1: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[0]),
		2: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[1]),
		3: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[2]),
		4: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[3]),
		5: hex.EncodeToString(v4Quote.TdQuoteBody.MrConfigId),
		6: hex.EncodeToString(v4Quote.TdQuoteBody.MrOwner),
		7: hex.EncodeToString(v4Quote.TdQuoteBody.MrOwnerConfig),
	}

	// TDX quotes carry no timestamp.
	return &interfaces.AttestationReport{
		Measurements: measurements,
		PublicKey:    pubkey,
	}, nil
}

func decodeDummyAttestation(doc []byte) (*interfaces.AttestationReport, error) {
	var dummy DummyDocument
	if err := json.Unmarshal(doc, &dummy); err != nil {
		return nil, fmt.Errorf("could not parse dummy attestation: %w", err)
	}
	if dummy.Type != DummyAttestation {
		return nil, fmt.Errorf("unexpected dummy attestation type %q", dummy.Type)
	}

	pubkey, err := interfaces.NewPublicKeyFromHex(dummy.PublicKey)
	if err != nil {
		return nil, err
	}

	measurements := dummy.Measurements
	if measurements == nil {
		measurements = interfaces.Measurements{}
	}

	return &interfaces.AttestationReport{
		Measurements: measurements,
		Timestamp:    time.Unix(dummy.Timestamp, 0),
		PublicKey:    pubkey,
	}, nil
}

// VerifyAttestation checks a decoded report against the expected measurements
// and timestamp policy. Every expected register must be present and equal
// (hex, case-insensitive). A zero maxAge disables the staleness check; documents
// from the future beyond MaxClockSkew are always rejected.
func VerifyAttestation(report *interfaces.AttestationReport, expected interfaces.Measurements, now time.Time, maxAge time.Duration) error {
	if report == nil {
		return fmt.Errorf("%w: missing report", interfaces.ErrAttestation)
	}

	for idx, want := range expected {
		got, ok := report.Measurements[idx]
		if !ok {
			return fmt.Errorf("%w: register %d missing from report", interfaces.ErrMeasurementMismatch, idx)
		}

		wantBytes, err := hex.DecodeString(want)
		if err != nil {
			return fmt.Errorf("%w: expected register %d is not hex: %v", interfaces.ErrMeasurementMismatch, idx, err)
		}
		gotBytes, err := hex.DecodeString(got)
		if err != nil || !bytes.Equal(wantBytes, gotBytes) {
			return fmt.Errorf("%w: register %d is %s, expected %s", interfaces.ErrMeasurementMismatch, idx, got, want)
		}
	}

	if report.Timestamp.IsZero() {
		return nil
	}

	if report.Timestamp.After(now.Add(MaxClockSkew)) {
		return fmt.Errorf("%w: timestamp %s is in the future", interfaces.ErrStaleAttestation, report.Timestamp.UTC())
	}
	if maxAge > 0 && now.Sub(report.Timestamp) > maxAge {
		return fmt.Errorf("%w: issued %s, max age %s", interfaces.ErrStaleAttestation, report.Timestamp.UTC(), maxAge)
	}

	return nil
}

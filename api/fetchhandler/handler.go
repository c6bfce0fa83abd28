package fetchhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/teefetch/api"
	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/ruteri/teefetch/metrics"
	"golang.org/x/net/http/httpguts"
)

// Defaults for Options fields left zero.
const (
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 10 << 20

	// maxRequestBytes bounds the inbound JSON document.
	maxRequestBytes = 10 << 20
)

// Options configures the upstream side of the proxy.
type Options struct {
	// UpstreamTimeout bounds the whole upstream exchange including the body.
	UpstreamTimeout time.Duration

	// MaxBodyBytes is the largest upstream body that will be captured and signed.
	MaxBodyBytes int64

	// FollowRedirects makes the proxy follow upstream redirects. When false the
	// redirect response itself is committed and returned.
	FollowRedirects bool

	// AttestationType is reported by the signer info endpoint.
	AttestationType string

	// Transport overrides the upstream round tripper.
	Transport http.RoundTripper

	// Now overrides the clock used for response timestamps.
	Now func() time.Time

	// Metrics receives fetch outcomes. May be nil.
	Metrics *metrics.FetchMetrics
}

// Handler is the proxy endpoint of the oracle. It executes the caller's
// request, commits the observed response and signs the digest.
//
// Handler holds no per-request state; the signer is read-only so concurrent
// fetches need no locking.
type Handler struct {
	signer          interfaces.Signer
	client          *http.Client
	maxBodyBytes    int64
	attestationType string
	now             func() time.Time
	metrics         *metrics.FetchMetrics
	log             *slog.Logger
}

// NewHandler creates the proxy handler.
//
// Parameters:
//   - signer: Holds the instance signing key
//   - opts: Upstream configuration; zero values select the defaults
//   - log: Structured logger for operational insights
func NewHandler(signer interfaces.Signer, opts Options, log *slog.Logger) *Handler {
	timeout := opts.UpstreamTimeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}

	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	client := &http.Client{
		Transport: opts.Transport,
		Timeout:   timeout,
	}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Handler{
		signer:          signer,
		client:          client,
		maxBodyBytes:    maxBodyBytes,
		attestationType: opts.AttestationType,
		now:             now,
		metrics:         opts.Metrics,
		log:             log,
	}
}

// RegisterRoutes configures the HTTP router with the proxy endpoints:
//   - POST / - Perform a signed fetch
//   - POST /json - Same as above, the path used by clients
//   - GET /api/public/signer - Describe the signing key
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleFetch)
	r.Post("/json", h.HandleFetch)
	r.Get("/api/public/signer", h.HandleSignerInfo)
}

// HandleFetch decodes a FetchRequest, performs it and returns the signed FetchResponse.
//
// Status codes:
//   - 200 OK: Fetch performed and signed, whatever the upstream status
//   - 400 Bad Request: Malformed JSON, method, URL, headers or non UTF-8 committed data
//   - 502 Bad Gateway: Upstream unreachable, timed out, body too large or not UTF-8
//   - 500 Internal Server Error: Digest or signature could not be produced
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	var req interfaces.FetchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&req); err != nil {
		h.log.Error("Failed to decode fetch request", "err", err)
		h.metrics.ObserveFetch(metrics.OutcomeInvalidRequest)
		http.Error(w, "Invalid fetch request", http.StatusBadRequest)
		return
	}

	resp, err := h.Fetch(r.Context(), &req)
	if err != nil {
		status := statusFor(err)
		h.log.Error("Fetch failed", "err", err, "status", status)
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", "err", err)
		return
	}
}

// Fetch performs the request and returns the signed response. Cancelling ctx
// abandons the upstream call; no signature is produced in that case.
func (h *Handler) Fetch(ctx context.Context, req *interfaces.FetchRequest) (*interfaces.FetchResponse, error) {
	target, err := validateRequest(req)
	if err != nil {
		h.metrics.ObserveFetch(metrics.OutcomeInvalidRequest)
		return nil, err
	}

	start := time.Now()
	resp, err := h.doUpstream(ctx, req, target)
	if err != nil {
		h.metrics.ObserveFetch(metrics.OutcomeUpstreamFailure)
		return nil, err
	}
	took := time.Since(start)
	h.metrics.ObserveUpstream(int(resp.Status), took)

	digest, err := cryptoutils.SigningDigest(req, resp)
	if err != nil {
		// Request fields were validated above, so this is the response side.
		h.metrics.ObserveFetch(metrics.OutcomeUpstreamFailure)
		return nil, fmt.Errorf("%w: %w", interfaces.ErrUpstream, err)
	}

	sig, err := h.signer.Sign(digest)
	if err != nil {
		h.metrics.ObserveFetch(metrics.OutcomeSigningFailure)
		return nil, fmt.Errorf("could not sign fetch: %w", err)
	}
	resp.Signature = sig.String()

	h.metrics.ObserveFetch(metrics.OutcomeSigned)
	h.log.Info("Fetch signed",
		slog.String("method", req.Method),
		slog.String("host", target.Host),
		slog.Int("status", int(resp.Status)),
		slog.Duration("duration", took),
		slog.String("digest", digest.String()))

	return resp, nil
}

// doUpstream sends the request and captures the committed parts of the response.
// Uncommitted headers are applied first and committed headers last, so that on
// a collision of canonical names the committed value is the one sent.
func (h *Handler) doUpstream(ctx context.Context, req *interfaces.FetchRequest, target *url.URL) (*interfaces.FetchResponse, error) {
	var body io.Reader
	if len(req.Body)+len(req.ExcludedBody) > 0 {
		body = strings.NewReader(req.Body + req.ExcludedBody)
	}

	outbound, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidRequest, err)
	}

	applyHeaders(outbound, req.ExcludedHeaders)
	applyHeaders(outbound, req.Headers)

	upstream, err := h.client.Do(outbound)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUpstream, err)
	}
	defer upstream.Body.Close()

	data, err := io.ReadAll(io.LimitReader(upstream.Body, h.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", interfaces.ErrUpstream, err)
	}
	if int64(len(data)) > h.maxBodyBytes {
		return nil, fmt.Errorf("%w: %w: limit %d bytes", interfaces.ErrUpstream, interfaces.ErrBodyTooLarge, h.maxBodyBytes)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: response body is not valid UTF-8", interfaces.ErrUpstream)
	}

	disclosed := DisclosedHeaders(upstream.Header, req.ResponseHeaders)
	for _, name := range req.ResponseHeaders {
		if _, ok := disclosed[name]; !ok && name != http.CanonicalHeaderKey(name) {
			h.log.Debug("Response header not disclosed, name is not in canonical form",
				slog.String("name", name),
				slog.String("canonical", http.CanonicalHeaderKey(name)))
		}
	}

	return &interfaces.FetchResponse{
		Handler:   cryptoutils.HandlerVersion,
		Status:    uint16(upstream.StatusCode),
		Headers:   disclosed,
		Body:      string(data),
		Timestamp: uint64(h.now().Unix()),
	}, nil
}

// HandleSignerInfo returns the public key and address of the signing key.
func (h *Handler) HandleSignerInfo(w http.ResponseWriter, r *http.Request) {
	pubkey := h.signer.PublicKey()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.SignerInfoResponse{
		PublicKey:       pubkey.String(),
		Address:         pubkey.Address().Hex(),
		AttestationType: h.attestationType,
	}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// DisclosedHeaders restricts the observed response headers to the requested
// names. Names are matched case-sensitively against the observed (canonical)
// names; repeated values are joined with ", " and absent names are omitted.
func DisclosedHeaders(observed http.Header, names []string) map[string]string {
	disclosed := make(map[string]string, len(names))
	for _, name := range names {
		values, ok := observed[name]
		if !ok {
			continue
		}
		disclosed[name] = strings.Join(values, ", ")
	}
	return disclosed
}

// validateRequest rejects anything that cannot be sent or committed before
// the upstream call is made.
func validateRequest(req *interfaces.FetchRequest) (*url.URL, error) {
	if !httpguts.ValidHeaderFieldName(req.Method) {
		return nil, fmt.Errorf("%w: invalid method %q", interfaces.ErrInvalidRequest, req.Method)
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", interfaces.ErrInvalidRequest, err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute http or https", interfaces.ErrInvalidRequest)
	}

	for _, headers := range []map[string]string{req.Headers, req.ExcludedHeaders} {
		seen := make(map[string]string, len(headers))
		for k, v := range headers {
			if !httpguts.ValidHeaderFieldName(k) {
				return nil, fmt.Errorf("%w: invalid header name %q", interfaces.ErrInvalidRequest, k)
			}
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, fmt.Errorf("%w: invalid value for header %q", interfaces.ErrInvalidRequest, k)
			}

			// Only one value per canonical name reaches the wire.
			canonical := http.CanonicalHeaderKey(k)
			if other, ok := seen[canonical]; ok {
				return nil, fmt.Errorf("%w: headers %q and %q differ only in case", interfaces.ErrInvalidRequest, other, k)
			}
			seen[canonical] = k
		}
	}

	// Committed request fields must encode; the response side is checked after the fetch.
	if _, _, err := cryptoutils.CommittedData(req, &interfaces.FetchResponse{}); err != nil {
		return nil, err
	}

	return target, nil
}

func applyHeaders(r *http.Request, headers map[string]string) {
	for k, v := range headers {
		if strings.EqualFold(k, "Host") {
			r.Host = v
			continue
		}
		r.Header.Set(k, v)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrInvalidRequest), errors.Is(err, interfaces.ErrInvalidEncoding):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

package attestationhandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/teefetch/api"
	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/ruteri/teefetch/metrics"
)

// Handler serves attestation documents binding the instance signing key.
type Handler struct {
	provider interfaces.AttestationProvider
	pubkey   interfaces.PublicKey
	metrics  *metrics.FetchMetrics
	log      *slog.Logger
}

// NewHandler creates the attestation endpoint handler.
//
// Parameters:
//   - provider: Produces documents on this TEE host
//   - pubkey: The signing key to bind into every document
//   - m: Metrics collectors, may be nil
//   - log: Structured logger for operational insights
func NewHandler(provider interfaces.AttestationProvider, pubkey interfaces.PublicKey, m *metrics.FetchMetrics, log *slog.Logger) *Handler {
	return &Handler{
		provider: provider,
		pubkey:   pubkey,
		metrics:  m,
		log:      log,
	}
}

// RegisterRoutes configures the HTTP router with the attestation endpoint:
//   - GET /attestation/raw - A freshly produced attestation document
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/attestation/raw", h.HandleRawAttestation)
}

// HandleRawAttestation produces a new document for every request so that the
// platform timestamp reflects the time of retrieval.
//
// Status codes:
//   - 200 OK: Raw document in the body, type in the X-Attestation-Type header
//   - 500 Internal Server Error: The platform could not produce a document
func (h *Handler) HandleRawAttestation(w http.ResponseWriter, r *http.Request) {
	doc, err := h.provider.Attest(h.pubkey)
	h.metrics.ObserveAttestation(err)
	if err != nil {
		h.log.Error("Failed to produce attestation", "err", err, "type", h.provider.AttestationType())
		http.Error(w, "Failed to produce attestation", http.StatusInternalServerError)
		return
	}

	contentType := "application/octet-stream"
	if h.provider.AttestationType() == cryptoutils.DummyAttestation {
		contentType = "application/json"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set(api.AttestationTypeHeader, h.provider.AttestationType())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		h.log.Error("Failed to write attestation", "err", err)
	}
}

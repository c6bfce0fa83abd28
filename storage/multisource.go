package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/teefetch/interfaces"
)

// MultiKeySource tries several key sources in order and returns the material
// from the first one that succeeds.
type MultiKeySource struct {
	sources []interfaces.KeySource
	log     *slog.Logger
}

// NewMultiKeySource creates a key source with ordered fallback.
func NewMultiKeySource(sources []interfaces.KeySource, logger *slog.Logger) *MultiKeySource {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiKeySource{
		sources: sources,
		log:     logger,
	}
}

func (m *MultiKeySource) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, source := range m.sources {
		if !source.Available(ctx) {
			m.log.Debug("Key source unavailable", slog.String("source", source.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", source.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := source.Fetch(ctx)
		if err == nil {
			m.log.Info("Loaded key material",
				slog.String("source", source.Name()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", source.Name(), err))
		m.log.Debug("Failed to fetch from key source",
			slog.String("source", source.Name()),
			"err", err)
	}

	m.log.Error("All key sources failed",
		slog.Int("failed_sources", len(errs)),
		slog.Duration("duration", time.Since(start)))

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no key sources configured", interfaces.ErrKeyNotFound)
	}
	return nil, fmt.Errorf("all key sources failed: %w", errors.Join(errs...))
}

// Available checks if any source is available.
func (m *MultiKeySource) Available(ctx context.Context) bool {
	for _, source := range m.sources {
		if source.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiKeySource) Name() string {
	return "multi-source"
}

func (m *MultiKeySource) LocationURI() string {
	var locations []string
	for _, source := range m.sources {
		locations = append(locations, source.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}

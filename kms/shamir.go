package kms

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/teefetch/interfaces"
)

// ShareLength is the length of one share of 32-byte key material. Shares carry
// one extra byte holding their x coordinate.
const ShareLength = KeyMaterialLength + 1

// SplitKeyMaterial splits signing key material into parts shares, any
// threshold of which reconstruct it. Shares are returned raw; callers hex
// encode them for storage.
func SplitKeyMaterial(material []byte, parts, threshold int) ([][]byte, error) {
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if parts < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	raw, err := ParseKeyMaterial(material)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(raw)

	shares, err := shamir.Split(raw, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split key material: %w", err)
	}
	return shares, nil
}

// CombineKeyShares reconstructs key material from shares. Duplicate shares
// count once. Combining fewer shares than the split threshold yields the wrong
// key, which callers detect by comparing the resulting address.
func CombineKeyShares(shares [][]byte) ([]byte, error) {
	unique := make(map[byte][]byte, len(shares))
	for _, share := range shares {
		parsed, err := ParseKeyShare(share)
		if err != nil {
			return nil, err
		}
		unique[parsed[len(parsed)-1]] = parsed
	}
	if len(unique) < 2 {
		return nil, fmt.Errorf("%w: at least 2 distinct shares required, got %d", interfaces.ErrInvalidKey, len(unique))
	}

	parts := make([][]byte, 0, len(unique))
	for _, share := range unique {
		parts = append(parts, share)
	}
	defer func() {
		for _, share := range parts {
			wipeBytes(share)
		}
	}()

	material, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidKey, err)
	}
	return material, nil
}

// ParseKeyShare accepts a share as raw bytes or hex (optional 0x prefix).
func ParseKeyShare(share []byte) ([]byte, error) {
	if len(share) == ShareLength {
		raw := make([]byte, ShareLength)
		copy(raw, share)
		return raw, nil
	}

	clean := bytes.TrimPrefix(bytes.TrimSpace(share), []byte("0x"))
	if len(clean) != 2*ShareLength {
		return nil, fmt.Errorf("%w: expected a %d byte share, got %d bytes", interfaces.ErrInvalidKey, ShareLength, len(share))
	}

	raw := make([]byte, ShareLength)
	if _, err := hex.Decode(raw, clean); err != nil {
		return nil, fmt.Errorf("%w: share: %v", interfaces.ErrInvalidKey, err)
	}
	return raw, nil
}

// ShareKeySource reconstructs signing key material from shares held in
// separate key sources. It collects shares in order and combines them as soon
// as threshold distinct shares were read.
type ShareKeySource struct {
	sources   []interfaces.KeySource
	threshold int
	log       *slog.Logger
}

// NewShareKeySource creates a key source backed by one share per source.
func NewShareKeySource(sources []interfaces.KeySource, threshold int, logger *slog.Logger) (*ShareKeySource, error) {
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if len(sources) < threshold {
		return nil, fmt.Errorf("%d share sources configured, threshold is %d", len(sources), threshold)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ShareKeySource{
		sources:   sources,
		threshold: threshold,
		log:       logger,
	}, nil
}

func (s *ShareKeySource) Fetch(ctx context.Context) ([]byte, error) {
	receivedShares := make(map[byte][]byte, s.threshold)
	defer func() {
		for _, share := range receivedShares {
			wipeBytes(share)
		}
	}()

	var errs []error
	for _, source := range s.sources {
		if len(receivedShares) >= s.threshold {
			break
		}

		data, err := source.Fetch(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", source.Name(), err))
			continue
		}

		share, err := ParseKeyShare(data)
		wipeBytes(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", source.Name(), err))
			continue
		}

		index := share[len(share)-1]
		if _, exists := receivedShares[index]; exists {
			s.log.Warn("Duplicate key share ignored", slog.String("source", source.Name()))
			wipeBytes(share)
			continue
		}
		receivedShares[index] = share
		s.log.Debug("Key share loaded", slog.String("source", source.Name()), slog.Int("received", len(receivedShares)))
	}

	if len(receivedShares) < s.threshold {
		errs = append(errs, fmt.Errorf("%w: %d of %d shares available", interfaces.ErrKeyNotFound, len(receivedShares), s.threshold))
		return nil, errors.Join(errs...)
	}

	shares := make([][]byte, 0, len(receivedShares))
	for _, share := range receivedShares {
		shares = append(shares, share)
	}

	material, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidKey, err)
	}

	s.log.Info("Reconstructed key material from shares", slog.Int("shares", len(shares)))
	return material, nil
}

// Available reports whether at least threshold sources are reachable.
func (s *ShareKeySource) Available(ctx context.Context) bool {
	available := 0
	for _, source := range s.sources {
		if source.Available(ctx) {
			available++
		}
	}
	return available >= s.threshold
}

func (s *ShareKeySource) Name() string {
	return fmt.Sprintf("shares-%d-of-%d", s.threshold, len(s.sources))
}

func (s *ShareKeySource) LocationURI() string {
	uris := make([]string, len(s.sources))
	for i, source := range s.sources {
		uris[i] = source.LocationURI()
	}
	return fmt.Sprintf("shares(%d):[%s]", s.threshold, strings.Join(uris, ","))
}

// wipeBytes zeroes secret material once it is no longer needed.
func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

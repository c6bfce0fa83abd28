package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/teefetch/interfaces"
)

// FileKeySource reads key material from a file on the local filesystem.
type FileKeySource struct {
	path        string
	log         *slog.Logger
	locationURI string
}

// NewFileKeySource creates a key source backed by the file at path.
// The file does not need to exist yet; Fetch reports ErrKeyNotFound if it doesn't.
func NewFileKeySource(path string, log *slog.Logger) *FileKeySource {
	return &FileKeySource{
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", path),
	}
}

// Fetch reads the whole file. Group or world readable key files are accepted
// but reported, as the material they hold is the oracle's identity.
func (s *FileKeySource) Fetch(ctx context.Context) ([]byte, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrKeyNotFound, s.path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}

	if info.Mode().Perm()&0o077 != 0 {
		s.log.Warn("Key file is accessible by other users",
			slog.String("path", s.path),
			slog.String("mode", info.Mode().Perm().String()))
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	s.log.Debug("Loaded key material from file", slog.String("path", s.path))
	return data, nil
}

// Available checks if the key file exists.
func (s *FileKeySource) Available(ctx context.Context) bool {
	_, err := os.Stat(s.path)
	if err != nil {
		s.log.Debug("File key source unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this key source.
func (s *FileKeySource) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.path))
}

// LocationURI returns the URI that identifies this key source.
func (s *FileKeySource) LocationURI() string {
	return s.locationURI
}

// WriteKeyFile persists key material with owner-only permissions. It refuses
// to overwrite an existing file.
func WriteKeyFile(path string, material []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}

	if _, err := f.Write(material); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return f.Close()
}

package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/ruteri/teefetch/interfaces"
)

// KeySourceFactory creates key sources from location URIs.
type KeySourceFactory struct {
	log *slog.Logger
}

// NewKeySourceFactory creates a new factory instance.
func NewKeySourceFactory(logger *slog.Logger) *KeySourceFactory {
	return &KeySourceFactory{
		log: logger,
	}
}

// KeySourceFor creates a key source from a location URI.
//
// Supported forms:
//   - /path/to/key or ./key - plain filesystem path
//   - file:///absolute/path/key or file://./relative/key
//   - vault://host:port/mount/path/to/secret?field=key&tls=false
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/path/to/key?region=us-east-1&endpoint=http://minio:9000
//
// Returns ErrInvalidLocationURI if the URI is invalid or the scheme is unsupported.
func (f *KeySourceFactory) KeySourceFor(location string) (interfaces.KeySource, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", interfaces.ErrInvalidLocationURI)
	}

	if !strings.Contains(location, "://") {
		return NewFileKeySource(location, f.log), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.createFileSource(u)
	case "vault":
		return f.createVaultSource(u)
	case "s3":
		return f.createS3Source(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiSource creates a fallback key source from a list of location URIs.
// Invalid locations are skipped; at least one must be valid.
func (f *KeySourceFactory) CreateMultiSource(locations []string) (interfaces.KeySource, error) {
	sources := make([]interfaces.KeySource, 0, len(locations))

	for _, location := range locations {
		source, err := f.KeySourceFor(location)
		if err != nil {
			f.log.Warn("Failed to create key source",
				"err", err,
				slog.String("location", redactLocation(location)))
			continue
		}
		sources = append(sources, source)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no valid key sources", interfaces.ErrInvalidLocationURI)
	}

	if len(sources) == 1 {
		return sources[0], nil
	}

	return NewMultiKeySource(sources, f.log), nil
}

// createFileSource handles file:///absolute/path and file://./relative/path.
func (f *KeySourceFactory) createFileSource(u *url.URL) (interfaces.KeySource, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}

	return NewFileKeySource(path, f.log), nil
}

// createVaultSource handles vault://host:port/mount/secret/path?field=key.
// The Vault token is read from VAULT_TOKEN.
func (f *KeySourceFactory) createVaultSource(u *url.URL) (interfaces.KeySource, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault host", interfaces.ErrInvalidLocationURI)
	}

	mount, secretPath, found := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if !found || mount == "" || secretPath == "" {
		return nil, fmt.Errorf("%w: expected vault://host/mount/path", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	scheme := "https"
	if query.Get("tls") == "false" {
		scheme = "http"
	}

	f.log.Debug("Creating Vault key source",
		slog.String("host", u.Host),
		slog.String("mount", mount),
		slog.String("path", secretPath))

	return NewVaultKeySource(scheme+"://"+u.Host, mount, secretPath, query.Get("field"), os.Getenv("VAULT_TOKEN"), f.log)
}

// createS3Source handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/key?region=...&endpoint=...
func (f *KeySourceFactory) createS3Source(u *url.URL) (interfaces.KeySource, error) {
	bucketName := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucketName == "" || key == "" {
		return nil, fmt.Errorf("%w: expected s3://bucket/key", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
		f.log.Debug("Using embedded S3 credentials")
	}

	return NewS3KeySource(bucketName, key, region, query.Get("endpoint"), accessKey, secretKey, f.log)
}

// redactLocation strips userinfo so that embedded credentials never reach logs.
func redactLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.User == nil {
		return location
	}
	u.User = url.User("redacted")
	return u.String()
}

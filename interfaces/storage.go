package interfaces

import "context"

// KeySource loads signing key material from a secret store.
type KeySource interface {
	// Fetch returns the raw key material. The bytes must not be logged.
	Fetch(ctx context.Context) ([]byte, error)

	// Available checks if the source is currently reachable.
	Available(ctx context.Context) bool

	// Name returns a short identifier for logs.
	Name() string

	// LocationURI returns the URI of the source with credentials redacted.
	LocationURI() string
}

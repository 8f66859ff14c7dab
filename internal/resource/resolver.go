// Package resource builds absolute, authenticated URLs for streaming,
// downloading and artwork against the currently active server.
package resource

import (
	"errors"
	"fmt"

	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
)

// ErrResolution indicates a URL could not be built, usually because no
// server is active. It wraps the underlying cause.
var ErrResolution = errors.New("resource resolution failed")

// APIProvider hands out the client for the active binding.
type APIProvider interface {
	API() (*subsonic.Client, error)
}

// Resolver resolves resource URLs. It never caches a client, so every call is
// answered under the binding active at call time.
type Resolver struct {
	provider APIProvider
}

// NewResolver creates a resolver over provider.
func NewResolver(provider APIProvider) *Resolver {
	return &Resolver{provider: provider}
}

// StreamURL returns the stream URL for a song.
func (r *Resolver) StreamURL(songID string) (string, error) {
	api, err := r.api()
	if err != nil {
		return "", err
	}
	return api.StreamURL(songID), nil
}

// DownloadURL returns the download URL for a song.
func (r *Resolver) DownloadURL(songID string) (string, error) {
	api, err := r.api()
	if err != nil {
		return "", err
	}
	return api.DownloadURL(songID), nil
}

// CoverArtURL returns the artwork URL for a cover art reference. An empty
// reference yields an empty URL without touching the provider.
func (r *Resolver) CoverArtURL(coverArtRef string) (string, error) {
	if coverArtRef == "" {
		return "", nil
	}
	api, err := r.api()
	if err != nil {
		return "", err
	}
	return api.CoverArtURL(coverArtRef), nil
}

// Binding resolves the current client so several URLs can be built under one
// binding generation.
func (r *Resolver) Binding() (*subsonic.Client, error) {
	return r.api()
}

func (r *Resolver) api() (*subsonic.Client, error) {
	api, err := r.provider.API()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolution, err)
	}
	return api, nil
}

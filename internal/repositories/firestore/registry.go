package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/hanko-field/cms/internal/platform/firestore"
	"github.com/hanko-field/cms/internal/repositories"
)

// Registry bundles the Firestore repositories around one shared client provider.
type Registry struct {
	provider *pfirestore.Provider
	content  *ContentRepository
	overlays *OverlayRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires the content and overlay repositories to the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	content, err := NewContentRepository(provider)
	if err != nil {
		return nil, err
	}
	overlays, err := NewOverlayRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, content: content, overlays: overlays}, nil
}

func (r *Registry) Content() repositories.ContentRepository  { return r.content }
func (r *Registry) Overlays() repositories.OverlayRepository { return r.overlays }

// Ping confirms the content collection is readable.
func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx, contentCollection)
}

// Close releases the shared client.
func (r *Registry) Close() error {
	return r.provider.Close()
}

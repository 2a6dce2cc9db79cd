package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hanko-field/cms/internal/repositories"
)

// Registry bundles the PostgreSQL repositories around one connection pool.
type Registry struct {
	db       *sql.DB
	content  *ContentRepository
	overlays *OverlayRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories; Close releases the pool.
func NewRegistry(db *sql.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry: database is required")
	}
	content, err := NewContentRepository(db)
	if err != nil {
		return nil, err
	}
	overlays, err := NewOverlayRepository(db)
	if err != nil {
		return nil, err
	}
	return &Registry{db: db, content: content, overlays: overlays}, nil
}

func (r *Registry) Content() repositories.ContentRepository  { return r.content }
func (r *Registry) Overlays() repositories.OverlayRepository { return r.overlays }

func (r *Registry) Ping(ctx context.Context) error {
	return classify("postgres.ping", r.db.PingContext(ctx))
}

func (r *Registry) Close() error {
	return r.db.Close()
}

package repositories

import (
	"context"
	"errors"

	"github.com/hanko-field/cms/internal/domain"
)

// Registry exposes the repositories of one store backend and releases its resources on Close.
type Registry interface {
	Content() ContentRepository
	Overlays() OverlayRepository
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ContentQuery selects rows for dictionary resolution.
type ContentQuery struct {
	// KeyPrefix is matched as a raw string prefix. Empty matches every key.
	KeyPrefix string
	// Languages restricts rows to these language codes. Empty means all languages.
	Languages []string
}

// ContentSearch filters the flat editor listing.
type ContentSearch struct {
	// Text is matched case-insensitively against key and value.
	Text     string
	Language string
}

// ContentRepository persists localized content rows keyed by (key, language, region).
type ContentRepository interface {
	List(ctx context.Context, query ContentQuery) ([]domain.ContentEntry, error)
	Search(ctx context.Context, search ContentSearch) ([]domain.ContentEntry, error)
	// FindExact returns the row for the tuple. A nil region only matches the global row.
	// Missing rows yield a RepositoryError with IsNotFound.
	FindExact(ctx context.Context, key, language string, region *string) (domain.ContentEntry, error)
	// Insert creates a row and reports IsConflict when the tuple already exists.
	Insert(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error)
	// Update replaces value, content type and updatedAt of the row identified by entry.ID.
	Update(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error)
}

// OverlayQuery narrows overlay candidates for a visitor.
type OverlayQuery struct {
	Language string
	// Region limits results to global overlays and overlays for that region. Nil returns all regions.
	Region *string
}

// OverlayRepository reads overlay definitions. Authoring happens outside this service.
type OverlayRepository interface {
	// ListCandidates returns overlays for the language ordered by createdAt descending.
	ListCandidates(ctx context.Context, query OverlayQuery) ([]domain.Overlay, error)
	FindByID(ctx context.Context, id string) (domain.Overlay, error)
}

// HealthRepository collects dependency status for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err carries a not-found classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict classification.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries an unavailable classification.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// MatchesRegionFilter reports whether an overlay region passes a query region filter.
func MatchesRegionFilter(overlayRegion, filter *string) bool {
	if filter == nil || overlayRegion == nil {
		return true
	}
	return *overlayRegion == *filter
}

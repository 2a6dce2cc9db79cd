// Package memory keeps content and overlays in process memory for local development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/repositories"
)

// Store implements repositories.Registry over mutex-guarded slices. Rows keep insertion order.
type Store struct {
	mu       sync.RWMutex
	entries  []domain.ContentEntry
	overlays []domain.Overlay
	now      func() time.Time
}

var (
	_ repositories.Registry          = (*Store)(nil)
	_ repositories.ContentRepository = (*contentRepository)(nil)
	_ repositories.OverlayRepository = (*overlayRepository)(nil)
)

// Option customises the Store.
type Option func(*Store)

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEntries seeds content rows as-is.
func WithEntries(entries ...domain.ContentEntry) Option {
	return func(s *Store) {
		s.entries = append(s.entries, entries...)
	}
}

// WithOverlays seeds overlay definitions.
func WithOverlays(overlays ...domain.Overlay) Option {
	return func(s *Store) {
		s.overlays = append(s.overlays, overlays...)
	}
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Content() repositories.ContentRepository  { return &contentRepository{store: s} }
func (s *Store) Overlays() repositories.OverlayRepository { return &overlayRepository{store: s} }
func (s *Store) Ping(context.Context) error               { return nil }
func (s *Store) Close() error                             { return nil }

// PutOverlay inserts or replaces an overlay by id.
func (s *Store) PutOverlay(overlay domain.Overlay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.overlays {
		if s.overlays[i].ID == overlay.ID {
			s.overlays[i] = overlay
			return
		}
	}
	s.overlays = append(s.overlays, overlay)
}

type contentRepository struct {
	store *Store
}

func (r *contentRepository) List(ctx context.Context, query repositories.ContentQuery) ([]domain.ContentEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	languages := make(map[string]struct{}, len(query.Languages))
	for _, lang := range query.Languages {
		languages[lang] = struct{}{}
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]domain.ContentEntry, 0)
	for _, entry := range r.store.entries {
		if !strings.HasPrefix(entry.Key, query.KeyPrefix) {
			continue
		}
		if len(languages) > 0 {
			if _, ok := languages[entry.Language]; !ok {
				continue
			}
		}
		out = append(out, cloneEntry(entry))
	}
	return out, nil
}

func (r *contentRepository) Search(ctx context.Context, search repositories.ContentSearch) ([]domain.ContentEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(search.Text))

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]domain.ContentEntry, 0)
	for _, entry := range r.store.entries {
		if search.Language != "" && entry.Language != search.Language {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(entry.Key), needle) && !strings.Contains(strings.ToLower(entry.Value), needle) {
			continue
		}
		out = append(out, cloneEntry(entry))
	}
	return out, nil
}

func (r *contentRepository) FindExact(ctx context.Context, key, language string, region *string) (domain.ContentEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContentEntry{}, err
	}
	probe := domain.ContentEntry{Key: key, Language: language, Region: region}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, entry := range r.store.entries {
		if entry.SameTuple(probe) {
			return cloneEntry(entry), nil
		}
	}
	return domain.ContentEntry{}, repositories.NewNotFoundError("memory.content.find", errors.New("content entry not found"))
}

func (r *contentRepository) Insert(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContentEntry{}, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.entries {
		if existing.SameTuple(entry) {
			return domain.ContentEntry{}, repositories.NewConflictError("memory.content.insert", errors.New("content entry already exists"))
		}
	}
	now := r.store.now().UTC()
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	entry = cloneEntry(entry)
	r.store.entries = append(r.store.entries, entry)
	return cloneEntry(entry), nil
}

func (r *contentRepository) Update(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContentEntry{}, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i := range r.store.entries {
		if r.store.entries[i].ID != entry.ID {
			continue
		}
		current := r.store.entries[i]
		current.Value = entry.Value
		current.ContentType = entry.ContentType
		current.UpdatedAt = entry.UpdatedAt
		if current.UpdatedAt.IsZero() {
			current.UpdatedAt = r.store.now().UTC()
		}
		r.store.entries[i] = current
		return cloneEntry(current), nil
	}
	return domain.ContentEntry{}, repositories.NewNotFoundError("memory.content.update", errors.New("content entry not found"))
}

type overlayRepository struct {
	store *Store
}

func (r *overlayRepository) ListCandidates(ctx context.Context, query repositories.OverlayQuery) ([]domain.Overlay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	out := make([]domain.Overlay, 0, len(r.store.overlays))
	for _, overlay := range r.store.overlays {
		if query.Language != "" && overlay.Language != query.Language {
			continue
		}
		if !repositories.MatchesRegionFilter(overlay.Region, query.Region) {
			continue
		}
		out = append(out, cloneOverlay(overlay))
	}
	r.store.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *overlayRepository) FindByID(ctx context.Context, id string) (domain.Overlay, error) {
	if err := ctx.Err(); err != nil {
		return domain.Overlay{}, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, overlay := range r.store.overlays {
		if overlay.ID == id {
			return cloneOverlay(overlay), nil
		}
	}
	return domain.Overlay{}, repositories.NewNotFoundError("memory.overlays.find", errors.New("overlay not found"))
}

func cloneEntry(entry domain.ContentEntry) domain.ContentEntry {
	if entry.Region != nil {
		region := *entry.Region
		entry.Region = &region
	}
	return entry
}

func cloneOverlay(overlay domain.Overlay) domain.Overlay {
	if overlay.Region != nil {
		region := *overlay.Region
		overlay.Region = &region
	}
	if overlay.StartAt != nil {
		start := *overlay.StartAt
		overlay.StartAt = &start
	}
	if overlay.EndAt != nil {
		end := *overlay.EndAt
		overlay.EndAt = &end
	}
	overlay.TargetPages = append([]string(nil), overlay.TargetPages...)
	return overlay
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/platform/metrics"
	"github.com/hanko-field/cms/internal/repositories"
	"github.com/hanko-field/cms/internal/repositories/memory"
)

func strPtr(v string) *string { return &v }

func testLocales(t *testing.T) *locale.Set {
	t.Helper()
	set, err := locale.NewSet([]string{"en", "fr", "es"})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

func newTestContentService(t *testing.T, repo repositories.ContentRepository, m *metrics.Metrics) ContentService {
	t.Helper()
	service, err := NewContentService(ContentServiceDeps{
		Repository:   repo,
		Locales:      testLocales(t),
		Metrics:      m,
		RetryBackoff: 0,
	})
	if err != nil {
		t.Fatalf("NewContentService: %v", err)
	}
	return service
}

func TestNewContentServiceRequiresDependencies(t *testing.T) {
	if _, err := NewContentService(ContentServiceDeps{}); !errors.Is(err, ErrContentRepositoryMissing) {
		t.Fatalf("expected ErrContentRepositoryMissing, got %v", err)
	}
	if _, err := NewContentService(ContentServiceDeps{Repository: memory.New().Content()}); !errors.Is(err, ErrContentLocalesMissing) {
		t.Fatalf("expected ErrContentLocalesMissing, got %v", err)
	}
}

func TestResolvePrefersRegionThenLanguageThenFallback(t *testing.T) {
	store := memory.New(memory.WithEntries(
		domain.ContentEntry{ID: "1", Key: "home.hero.title", Language: "fr", Region: strPtr("HT"), Value: "Bonjou"},
		domain.ContentEntry{ID: "2", Key: "home.hero.title", Language: "fr", Value: "Bonjour"},
		domain.ContentEntry{ID: "3", Key: "home.hero.title", Language: "en", Value: "Hello"},
	))
	m := metrics.New()
	service := newTestContentService(t, store.Content(), m)
	ctx := context.Background()

	cases := []struct {
		language string
		region   *string
		want     string
	}{
		{"fr", strPtr("HT"), "Bonjou"},
		{"fr", strPtr("DO"), "Bonjour"},
		{"es", strPtr("DO"), "Hello"},
		{"fr-HT", strPtr("ht"), "Bonjou"},
		{"", nil, "Hello"},
	}
	for _, tc := range cases {
		dict := service.Resolve(ctx, ResolveContentQuery{Language: tc.language, Region: tc.region})
		if got := dict["home.hero.title"]; got != tc.want {
			t.Errorf("Resolve(%q, %v) = %q, want %q", tc.language, tc.region, got, tc.want)
		}
	}

	if got := testutil.ToFloat64(m.ResolveFallbackHits); got != 1 {
		t.Fatalf("expected one fallback hit, got %v", got)
	}
}

func TestResolveUsesRawStringPrefix(t *testing.T) {
	store := memory.New(memory.WithEntries(
		domain.ContentEntry{Key: "home.hero.title", Language: "en", Value: "Hello"},
		domain.ContentEntry{Key: "homepage.banner", Language: "en", Value: "Banner"},
		domain.ContentEntry{Key: "about.team", Language: "en", Value: "Team"},
	))
	service := newTestContentService(t, store.Content(), nil)

	dict := service.Resolve(context.Background(), ResolveContentQuery{Prefix: "home", Language: "en"})
	if len(dict) != 2 || dict["homepage.banner"] != "Banner" {
		t.Fatalf("expected raw prefix to match both home keys, got %v", dict)
	}
	dict = service.Resolve(context.Background(), ResolveContentQuery{Prefix: "home.", Language: "en"})
	if len(dict) != 1 {
		t.Fatalf("expected segment prefix to match one key, got %v", dict)
	}
}

func TestResolveTieBreaksOnMostRecentUpdate(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	repo := &stubContentRepository{listRows: []domain.ContentEntry{
		{Key: "k", Language: "en", Value: "old", UpdatedAt: older},
		{Key: "k", Language: "en", Value: "new", UpdatedAt: newer},
		{Key: "j", Language: "en", Value: "first", UpdatedAt: older},
		{Key: "j", Language: "en", Value: "second", UpdatedAt: older},
	}}
	service := newTestContentService(t, repo, nil)

	dict := service.Resolve(context.Background(), ResolveContentQuery{Language: "en"})
	if dict["k"] != "new" {
		t.Fatalf("expected most recent row to win, got %q", dict["k"])
	}
	if dict["j"] != "first" {
		t.Fatalf("expected first-seen row on equal timestamps, got %q", dict["j"])
	}
}

func TestResolveIgnoresUnrelatedRegions(t *testing.T) {
	repo := &stubContentRepository{listRows: []domain.ContentEntry{
		{Key: "k", Language: "fr", Region: strPtr("DO"), Value: "dominican"},
	}}
	service := newTestContentService(t, repo, nil)

	dict := service.Resolve(context.Background(), ResolveContentQuery{Language: "fr", Region: strPtr("HT")})
	if _, ok := dict["k"]; ok {
		t.Fatalf("expected score-zero row to be dropped, got %v", dict)
	}
	if len(repo.listQueries) != 1 {
		t.Fatalf("expected one list call, got %d", len(repo.listQueries))
	}
	if langs := repo.listQueries[0].Languages; len(langs) != 2 || langs[0] != "fr" || langs[1] != "en" {
		t.Fatalf("expected requested and fallback languages, got %v", langs)
	}
}

func TestResolveFailsOpen(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	m := metrics.New()
	service, err := NewContentService(ContentServiceDeps{
		Repository: &stubContentRepository{listErr: repositories.NewUnavailableError("list", errors.New("down"))},
		Locales:    testLocales(t),
		Logger:     zap.New(core),
		Metrics:    m,
	})
	if err != nil {
		t.Fatalf("NewContentService: %v", err)
	}

	dict := service.Resolve(context.Background(), ResolveContentQuery{Language: "fr"})
	if dict == nil || len(dict) != 0 {
		t.Fatalf("expected empty dictionary, got %v", dict)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected failure to be logged, got %d entries", logs.Len())
	}
	if got := testutil.ToFloat64(m.ResolveRequests.WithLabelValues("store_error")); got != 1 {
		t.Fatalf("expected store_error metric, got %v", got)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := memory.New()
	service := newTestContentService(t, store.Content(), nil)
	ctx := context.Background()
	cmd := UpsertContentCommand{Key: "home.hero.title", Language: "fr", Region: strPtr("HT"), Value: "Bonjou"}

	first, err := service.Upsert(ctx, cmd)
	if err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	second, err := service.Upsert(ctx, cmd)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if first.Action != domain.ContentCreated || second.Action != domain.ContentUpdated {
		t.Fatalf("expected create then update, got %s then %s", first.Action, second.Action)
	}
	if first.Entry.ID != second.Entry.ID {
		t.Fatalf("expected same row, got %s and %s", first.Entry.ID, second.Entry.ID)
	}

	rows, err := store.Content().List(ctx, repositories.ContentQuery{KeyPrefix: "home.hero.title"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(rows))
	}
}

func TestUpsertKeepsGlobalAndRegionalRowsDistinct(t *testing.T) {
	store := memory.New()
	service := newTestContentService(t, store.Content(), nil)
	ctx := context.Background()

	if _, err := service.Upsert(ctx, UpsertContentCommand{Key: "k.s", Language: "fr", Value: "global"}); err != nil {
		t.Fatalf("Upsert global: %v", err)
	}
	if _, err := service.Upsert(ctx, UpsertContentCommand{Key: "k.s", Language: "fr", Region: strPtr(" "), Value: "blank region"}); err != nil {
		t.Fatalf("Upsert blank region: %v", err)
	}
	if _, err := service.Upsert(ctx, UpsertContentCommand{Key: "k.s", Language: "fr", Region: strPtr("ht"), Value: "regional"}); err != nil {
		t.Fatalf("Upsert regional: %v", err)
	}

	rows, _ := store.Content().List(ctx, repositories.ContentQuery{})
	if len(rows) != 2 {
		t.Fatalf("expected global and HT rows, got %+v", rows)
	}
	global, err := store.Content().FindExact(ctx, "k.s", "fr", nil)
	if err != nil || global.Value != "blank region" {
		t.Fatalf("expected blank region to address the global row, got %+v %v", global, err)
	}
}

func TestUpsertRetriesInsertConflict(t *testing.T) {
	repo := &stubContentRepository{
		findResults: []findResult{
			{err: repositories.NewNotFoundError("find", errors.New("missing"))},
			{entry: domain.ContentEntry{ID: "row-1", Key: "k.s", Language: "en", Value: "theirs"}},
		},
		insertErr: repositories.NewConflictError("insert", errors.New("duplicate")),
	}
	m := metrics.New()
	service := newTestContentService(t, repo, m)

	result, err := service.Upsert(context.Background(), UpsertContentCommand{Key: "k.s", Language: "en", Value: "mine"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if result.Action != domain.ContentUpdated || result.Entry.Value != "mine" || result.Entry.ID != "row-1" {
		t.Fatalf("expected retry to update the concurrent row, got %+v", result)
	}
	if got := testutil.ToFloat64(m.UpsertConflictRetries); got != 1 {
		t.Fatalf("expected one retry, got %v", got)
	}
}

func TestUpsertSurfacesStoreFailure(t *testing.T) {
	storeErr := repositories.NewUnavailableError("find", errors.New("down"))
	repo := &stubContentRepository{findResults: []findResult{{err: storeErr}}}
	service := newTestContentService(t, repo, nil)

	_, err := service.Upsert(context.Background(), UpsertContentCommand{Key: "k.s", Language: "en", Value: "v"})
	if !repositories.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if repo.findCalls != 1 {
		t.Fatalf("expected no retry for non-conflict errors, got %d lookups", repo.findCalls)
	}
}

func TestUpsertValidatesAndSanitises(t *testing.T) {
	store := memory.New()
	service := newTestContentService(t, store.Content(), nil)
	ctx := context.Background()

	if _, err := service.Upsert(ctx, UpsertContentCommand{Key: " ", Language: "en"}); !errors.Is(err, ErrInvalidContentKey) {
		t.Fatalf("expected ErrInvalidContentKey, got %v", err)
	}
	if _, err := service.Upsert(ctx, UpsertContentCommand{Key: "a.b", Language: "de"}); !errors.Is(err, ErrInvalidContentLanguage) {
		t.Fatalf("expected ErrInvalidContentLanguage, got %v", err)
	}
	if _, err := service.Upsert(ctx, UpsertContentCommand{Key: "a.b", Language: "en", ContentType: "video"}); !errors.Is(err, ErrInvalidContentType) {
		t.Fatalf("expected ErrInvalidContentType, got %v", err)
	}
	for _, region := range []string{"*", "H", "HT-1", "EUROPE"} {
		if _, err := service.Upsert(ctx, UpsertContentCommand{Key: "a.b", Language: "en", Region: strPtr(region), Value: "x"}); !errors.Is(err, ErrInvalidContentRegion) {
			t.Fatalf("expected ErrInvalidContentRegion for %q, got %v", region, err)
		}
	}
	if _, err := service.Upsert(ctx, UpsertContentCommand{Key: "a.b", Language: "es", Region: strPtr("419"), Value: "x"}); err != nil {
		t.Fatalf("expected numeric region to be accepted, got %v", err)
	}

	result, err := service.Upsert(ctx, UpsertContentCommand{
		Key: "about.story.body", Language: "EN", ContentType: domain.ContentTypeHTML,
		Value: `<p>Hi<script>alert(1)</script></p>`,
	})
	if err != nil {
		t.Fatalf("Upsert html: %v", err)
	}
	if result.Entry.Value != "<p>Hi</p>" || result.Entry.Language != "en" {
		t.Fatalf("expected sanitised html in en, got %+v", result.Entry)
	}
}

func TestListAndTree(t *testing.T) {
	store := memory.New(memory.WithEntries(
		domain.ContentEntry{Key: "home.hero.title", Language: "fr", Region: strPtr("HT"), Value: "Bonjou"},
		domain.ContentEntry{Key: "home.hero.title", Language: "en", Value: "Hello"},
		domain.ContentEntry{Key: "home.hero", Language: "en", Value: "Section"},
	))
	service := newTestContentService(t, store.Content(), nil)
	ctx := context.Background()

	rows, err := service.List(ctx, ContentListFilter{Search: "HELLO"})
	if err != nil || len(rows) != 1 || rows[0].Value != "Hello" {
		t.Fatalf("unexpected list result %+v %v", rows, err)
	}

	tree, err := service.Tree(ctx)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	leaves := tree["home"]["hero"]
	if len(leaves) != 2 {
		t.Fatalf("expected root and title leaves, got %+v", leaves)
	}
}

type findResult struct {
	entry domain.ContentEntry
	err   error
}

type stubContentRepository struct {
	listRows    []domain.ContentEntry
	listErr     error
	listQueries []repositories.ContentQuery

	findResults []findResult
	findCalls   int
	insertErr   error
}

func (s *stubContentRepository) List(_ context.Context, query repositories.ContentQuery) ([]domain.ContentEntry, error) {
	s.listQueries = append(s.listQueries, query)
	return s.listRows, s.listErr
}

func (s *stubContentRepository) Search(context.Context, repositories.ContentSearch) ([]domain.ContentEntry, error) {
	return s.listRows, s.listErr
}

func (s *stubContentRepository) FindExact(context.Context, string, string, *string) (domain.ContentEntry, error) {
	idx := min(s.findCalls, len(s.findResults)-1)
	s.findCalls++
	if idx < 0 {
		return domain.ContentEntry{}, repositories.NewNotFoundError("find", errors.New("missing"))
	}
	return s.findResults[idx].entry, s.findResults[idx].err
}

func (s *stubContentRepository) Insert(_ context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	if s.insertErr != nil {
		return domain.ContentEntry{}, s.insertErr
	}
	entry.ID = "inserted"
	return entry, nil
}

func (s *stubContentRepository) Update(_ context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	return entry, nil
}

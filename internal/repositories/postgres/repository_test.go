package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/repositories"
)

var contentRowColumns = []string{"id", "key", "language", "region", "content_type", "value", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
	return db, mock
}

func TestContentListFiltersByPrefixAndLanguages(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewContentRepository(db)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM content_entries WHERE key LIKE \$1 ESCAPE '\\' AND language = ANY\(\$2\) ORDER BY key`).
		WithArgs(`home\_page.%`, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(contentRowColumns).
			AddRow("c1", "home_page.hero", "fr", "HT", "text", "Bonjou", ts, ts).
			AddRow("c2", "home_page.hero", "fr", nil, "text", "Bonjour", ts, ts))

	rows, err := repo.List(context.Background(), repositories.ContentQuery{KeyPrefix: "home_page.", Languages: []string{"fr", "en"}})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Region == nil || *rows[0].Region != "HT" {
		t.Fatalf("expected regional row first, got %+v", rows[0])
	}
	if rows[1].Region != nil {
		t.Fatalf("expected NULL region to stay nil, got %v", *rows[1].Region)
	}
}

func TestContentListWithoutFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewContentRepository(db)

	mock.ExpectQuery(`SELECT .* FROM content_entries ORDER BY key, created_at`).
		WillReturnRows(sqlmock.NewRows(contentRowColumns))

	rows, err := repo.List(context.Background(), repositories.ContentQuery{})
	if err != nil || len(rows) != 0 {
		t.Fatalf("unexpected result %v %v", rows, err)
	}
}

func TestContentFindExactGlobalRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewContentRepository(db)

	mock.ExpectQuery(`region IS NOT DISTINCT FROM \$3`).
		WithArgs("home.hero.title", "fr", nil).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindExact(context.Background(), "home.hero.title", "fr", nil)
	if !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContentInsertConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewContentRepository(db)

	mock.ExpectExec(`INSERT INTO content_entries`).
		WithArgs(sqlmock.AnyArg(), "home.hero.title", "fr", "HT", "text", "Bonjou", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	region := "HT"
	_, err := repo.Insert(context.Background(), domain.ContentEntry{
		Key: "home.hero.title", Language: "fr", Region: &region, ContentType: domain.ContentTypeText, Value: "Bonjou",
	})
	if !repositories.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestContentInsertAssignsIdentity(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewContentRepository(db)
	fixed := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	mock.ExpectExec(`INSERT INTO content_entries`).
		WithArgs(sqlmock.AnyArg(), "home.hero.title", "en", nil, "text", "Hello", fixed, fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := repo.Insert(context.Background(), domain.ContentEntry{
		Key: "home.hero.title", Language: "en", ContentType: domain.ContentTypeText, Value: "Hello",
	})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if saved.ID == "" || !saved.CreatedAt.Equal(fixed) {
		t.Fatalf("expected id and timestamps, got %+v", saved)
	}
}

func TestContentUpdateMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewContentRepository(db)

	mock.ExpectQuery(`UPDATE content_entries SET value`).
		WithArgs("c9", "x", "text", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(contentRowColumns))

	_, err := repo.Update(context.Background(), domain.ContentEntry{ID: "c9", Value: "x", ContentType: domain.ContentTypeText})
	if !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContentSearchEscapesWildcards(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewContentRepository(db)

	mock.ExpectQuery(`key ILIKE \$1 .* OR value ILIKE \$1 .* AND language = \$2`).
		WithArgs(`%50\%%`, "en").
		WillReturnRows(sqlmock.NewRows(contentRowColumns))

	if _, err := repo.Search(context.Background(), repositories.ContentSearch{Text: "50%", Language: "en"}); err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
}

func TestOverlayListCandidatesDecodesRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo, _ := NewOverlayRepository(db)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	columns := []string{"id", "is_active", "start_at", "end_at", "frequency_hours", "language", "region", "display_style",
		"target_pages", "title", "body", "image_url", "cta_text", "cta_url", "created_at"}
	mock.ExpectQuery(`FROM overlays WHERE language = \$1 AND \(region IS NULL OR region = \$2\) ORDER BY created_at DESC`).
		WithArgs("fr", "HT").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("o1", true, "2026-01-01T00:00:00Z", nil, 24, "fr", nil, "banner", []byte(`["*"]`), "Don", "", nil, "Donner", "/fr/donate", created).
			AddRow("o2", true, "next tuesday", nil, 0, "fr", "HT", "modal", []byte(`{"bad":true}`), "Bad", "", nil, nil, nil, created))

	region := "HT"
	overlays, err := repo.ListCandidates(context.Background(), repositories.OverlayQuery{Language: "fr", Region: &region})
	if err != nil {
		t.Fatalf("ListCandidates returned error: %v", err)
	}
	if len(overlays) != 2 {
		t.Fatalf("expected 2 overlays, got %d", len(overlays))
	}
	first := overlays[0]
	if first.StartAt == nil || first.EndAt != nil || first.InvalidSchedule {
		t.Fatalf("unexpected schedule for first overlay %+v", first)
	}
	if len(first.TargetPages) != 1 || first.TargetPages[0] != "*" || first.CTAURL != "/fr/donate" {
		t.Fatalf("unexpected first overlay %+v", first)
	}
	second := overlays[1]
	if !second.InvalidSchedule || second.TargetPages != nil {
		t.Fatalf("expected bad schedule and pages to be flagged, got %+v", second)
	}
}

func TestClassifyErrors(t *testing.T) {
	if err := classify("op", &pq.Error{Code: "08006"}); !repositories.IsUnavailable(err) {
		t.Fatalf("expected connection failure to be unavailable, got %v", err)
	}
	if err := classify("op", context.Canceled); !errors.Is(err, context.Canceled) || repositories.IsUnavailable(err) {
		t.Fatalf("expected cancellation to pass through, got %v", err)
	}
	if err := classify("op", &pq.Error{Code: "22001"}); repositories.IsConflict(err) || repositories.IsUnavailable(err) || repositories.IsNotFound(err) {
		t.Fatalf("expected unclassified error, got %v", err)
	}
	if classify("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestRegistryPing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	mock.ExpectClose()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	if err := registry.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if err := registry.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

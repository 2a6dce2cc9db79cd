package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/avast/retry-go"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/platform/metrics"
	"github.com/hanko-field/cms/internal/repositories"
)

const (
	defaultWriteAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

var (
	// ErrContentRepositoryMissing signals that the content repository dependency is absent.
	ErrContentRepositoryMissing = errors.New("content service: content repository is not configured")
	// ErrContentLocalesMissing signals that no supported locale set was provided.
	ErrContentLocalesMissing = errors.New("content service: supported locales are not configured")
	// ErrInvalidContentKey is returned for blank keys or keys containing whitespace.
	ErrInvalidContentKey = errors.New("content service: key is required and must not contain whitespace")
	// ErrInvalidContentLanguage is returned for blank or unsupported languages.
	ErrInvalidContentLanguage = errors.New("content service: language is not supported")
	// ErrInvalidContentType is returned for content types other than text, image and html.
	ErrInvalidContentType = errors.New("content service: unknown content type")
	// ErrInvalidContentRegion is returned for region codes that are not 2-3 letters or digits.
	ErrInvalidContentRegion = errors.New("content service: region code is invalid")
)

// ContentServiceDeps groups constructor parameters for the content service.
type ContentServiceDeps struct {
	Repository    repositories.ContentRepository
	Locales       *locale.Set
	Clock         func() time.Time
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	WriteAttempts int
	RetryBackoff  time.Duration
}

type contentService struct {
	repo          repositories.ContentRepository
	locales       *locale.Set
	clock         func() time.Time
	logger        *zap.Logger
	metrics       *metrics.Metrics
	writeAttempts uint
	retryBackoff  time.Duration
	sanitizer     *bluemonday.Policy
	tracer        trace.Tracer
}

// NewContentService constructs the content service with the supplied dependencies.
func NewContentService(deps ContentServiceDeps) (ContentService, error) {
	if deps.Repository == nil {
		return nil, ErrContentRepositoryMissing
	}
	if deps.Locales == nil || deps.Locales.Fallback() == "" {
		return nil, ErrContentLocalesMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := deps.WriteAttempts
	if attempts <= 0 {
		attempts = defaultWriteAttempts
	}
	backoff := deps.RetryBackoff
	if backoff < 0 {
		backoff = defaultRetryBackoff
	}
	return &contentService{
		repo:          deps.Repository,
		locales:       deps.Locales,
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger.Named("content"),
		metrics:       deps.Metrics,
		writeAttempts: uint(attempts),
		retryBackoff:  backoff,
		sanitizer:     newContentHTMLPolicy(),
		tracer:        otel.Tracer("github.com/hanko-field/cms/internal/services"),
	}, nil
}

func newContentHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "strong", "em")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

type candidate struct {
	entry ContentEntry
	score int
}

func (s *contentService) Resolve(ctx context.Context, query ResolveContentQuery) EffectiveDictionary {
	fallback := s.locales.Fallback()
	language := locale.NormalizeLanguage(query.Language)
	if language == "" {
		language = fallback
	}
	region := locale.NormalizeRegion(query.Region)

	ctx, span := s.tracer.Start(ctx, "content.resolve", trace.WithAttributes(
		attribute.String("cms.prefix", query.Prefix),
		attribute.String("cms.language", language),
	))
	defer span.End()

	languages := []string{language}
	if fallback != language {
		languages = append(languages, fallback)
	}

	rows, err := s.repo.List(ctx, repositories.ContentQuery{KeyPrefix: query.Prefix, Languages: languages})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
		s.metrics.IncResolve("store_error")
		s.logger.Error("content resolve failed, serving defaults",
			zap.String("prefix", query.Prefix),
			zap.String("language", language),
			zap.Error(err),
		)
		return EffectiveDictionary{}
	}

	best := make(map[string]candidate, len(rows))
	for _, row := range rows {
		score := priority(row, language, region, fallback)
		if score == 0 {
			continue
		}
		current, ok := best[row.Key]
		if !ok || score > current.score || (score == current.score && row.UpdatedAt.After(current.entry.UpdatedAt)) {
			best[row.Key] = candidate{entry: row, score: score}
		}
	}

	dict := make(EffectiveDictionary, len(best))
	fallbackHits := 0
	for key, winner := range best {
		dict[key] = winner.entry.Value
		if winner.score == 1 {
			fallbackHits++
		}
	}

	s.metrics.IncResolve("ok")
	s.metrics.AddFallbackHits(fallbackHits)
	span.SetAttributes(attribute.Int("cms.keys", len(dict)), attribute.Int("cms.fallback_hits", fallbackHits))
	return dict
}

// priority scores a row: 3 exact language and region, 2 exact language global row,
// 1 any fallback-language row, 0 otherwise.
func priority(row ContentEntry, language string, region *string, fallback string) int {
	switch {
	case row.Language == language && region != nil && row.Region != nil && *row.Region == *region:
		return 3
	case row.Language == language && row.Region == nil:
		return 2
	case row.Language == fallback:
		return 1
	}
	return 0
}

func (s *contentService) Upsert(ctx context.Context, cmd UpsertContentCommand) (ContentWriteResult, error) {
	entry, err := s.normalizeCommand(cmd)
	if err != nil {
		return ContentWriteResult{}, err
	}

	ctx, span := s.tracer.Start(ctx, "content.upsert", trace.WithAttributes(
		attribute.String("cms.key", entry.Key),
		attribute.String("cms.language", entry.Language),
	))
	defer span.End()

	var result ContentWriteResult
	err = retry.Do(
		func() error {
			written, err := s.writeOnce(ctx, entry)
			if err != nil {
				return err
			}
			result = written
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.writeAttempts),
		retry.Delay(s.retryBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(repositories.IsConflict),
		retry.OnRetry(func(n uint, err error) {
			s.metrics.IncUpsertRetry()
			s.logger.Debug("content insert conflicted, retrying as update",
				zap.String("key", entry.Key),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		s.metrics.IncUpsert("error")
		return ContentWriteResult{}, err
	}

	s.metrics.IncUpsert(string(result.Action))
	return result, nil
}

// writeOnce performs one lookup-then-write pass. A conflicting insert is returned as-is so the
// caller can retry the whole pass, which then finds the row and updates it.
func (s *contentService) writeOnce(ctx context.Context, entry ContentEntry) (ContentWriteResult, error) {
	now := s.clock()
	existing, err := s.repo.FindExact(ctx, entry.Key, entry.Language, entry.Region)
	switch {
	case err == nil:
		existing.Value = entry.Value
		existing.ContentType = entry.ContentType
		existing.UpdatedAt = now
		saved, err := s.repo.Update(ctx, existing)
		if err != nil {
			return ContentWriteResult{}, err
		}
		return ContentWriteResult{Entry: saved, Action: domain.ContentUpdated}, nil
	case repositories.IsNotFound(err):
		entry.CreatedAt = now
		entry.UpdatedAt = now
		saved, err := s.repo.Insert(ctx, entry)
		if err != nil {
			return ContentWriteResult{}, err
		}
		return ContentWriteResult{Entry: saved, Action: domain.ContentCreated}, nil
	default:
		return ContentWriteResult{}, err
	}
}

func (s *contentService) normalizeCommand(cmd UpsertContentCommand) (ContentEntry, error) {
	key := strings.TrimSpace(cmd.Key)
	if key == "" || strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return ContentEntry{}, ErrInvalidContentKey
	}
	language := locale.NormalizeLanguage(cmd.Language)
	if language == "" || !s.locales.Supports(language) {
		return ContentEntry{}, fmt.Errorf("%w: %q", ErrInvalidContentLanguage, cmd.Language)
	}
	contentType := domain.ContentType(strings.ToLower(strings.TrimSpace(string(cmd.ContentType))))
	if contentType == "" {
		contentType = domain.ContentTypeText
	}
	if !contentType.Valid() {
		return ContentEntry{}, fmt.Errorf("%w: %q", ErrInvalidContentType, cmd.ContentType)
	}
	region := locale.NormalizeRegion(cmd.Region)
	if region != nil && !locale.ValidRegion(*region) {
		return ContentEntry{}, fmt.Errorf("%w: %q", ErrInvalidContentRegion, *cmd.Region)
	}

	value := cmd.Value
	switch contentType {
	case domain.ContentTypeHTML:
		value = s.sanitizer.Sanitize(value)
	case domain.ContentTypeImage:
		value = strings.TrimSpace(value)
	}

	return ContentEntry{
		Key:         key,
		Language:    language,
		Region:      region,
		ContentType: contentType,
		Value:       value,
	}, nil
}

func (s *contentService) List(ctx context.Context, filter ContentListFilter) ([]ContentEntry, error) {
	rows, err := s.repo.Search(ctx, repositories.ContentSearch{
		Text:     strings.TrimSpace(filter.Search),
		Language: locale.NormalizeLanguage(filter.Language),
	})
	if err != nil {
		return nil, err
	}
	sortEntries(rows)
	return rows, nil
}

func (s *contentService) Tree(ctx context.Context) (ContentTree, error) {
	rows, err := s.repo.List(ctx, repositories.ContentQuery{})
	if err != nil {
		return nil, err
	}
	return BuildContentTree(rows), nil
}

// sortEntries orders rows by key, language, then region with the global row first.
func sortEntries(rows []ContentEntry) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		if a.Region == nil || b.Region == nil {
			return a.Region == nil && b.Region != nil
		}
		return *a.Region < *b.Region
	})
}

package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/firestore"

	"github.com/hanko-field/cms/internal/domain"
	pfirestore "github.com/hanko-field/cms/internal/platform/firestore"
	"github.com/hanko-field/cms/internal/repositories"
)

const (
	contentCollection = "content_entries"
	// maxInValues is the Firestore limit on "in" filter operands.
	maxInValues = 30
)

type contentDocument struct {
	Key         string    `firestore:"key"`
	Language    string    `firestore:"language"`
	Region      *string   `firestore:"region"`
	ContentType string    `firestore:"contentType"`
	Value       string    `firestore:"value"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// ContentRepository stores content rows in the content_entries collection. Document ids are
// derived from the (key, language, region) tuple so concurrent inserts of one tuple collide.
type ContentRepository struct {
	docs *pfirestore.Collection[contentDocument]
	now  func() time.Time
}

var _ repositories.ContentRepository = (*ContentRepository)(nil)

// NewContentRepository constructs a Firestore-backed content repository.
func NewContentRepository(provider *pfirestore.Provider) (*ContentRepository, error) {
	if provider == nil {
		return nil, errors.New("content repository requires firestore provider")
	}
	return &ContentRepository{
		docs: pfirestore.NewCollection[contentDocument](provider, contentCollection),
		now:  time.Now,
	}, nil
}

// ContentDocumentID returns the deterministic document id for a tuple.
func ContentDocumentID(key, language string, region *string) string {
	regionPart := "\x01global"
	if region != nil {
		regionPart = *region
	}
	sum := sha256.Sum256([]byte(key + "\x00" + language + "\x00" + regionPart))
	return hex.EncodeToString(sum[:20])
}

// prefixUpperBound returns the smallest string greater than every string starting with prefix,
// found by incrementing the last code point that can still grow. Firestore orders strings by
// UTF-8 bytes, which matches code point order. ok is false when no bound exists.
func prefixUpperBound(prefix string) (string, bool) {
	runes := []rune(prefix)
	for i := len(runes) - 1; i >= 0; i-- {
		next := runes[i] + 1
		if next >= 0xD800 && next <= 0xDFFF {
			next = 0xE000
		}
		if next > unicode.MaxRune {
			continue
		}
		return string(append(runes[:i:i], next)), true
	}
	return "", false
}

func (r *ContentRepository) List(ctx context.Context, query repositories.ContentQuery) ([]domain.ContentEntry, error) {
	languages := query.Languages
	if len(languages) > maxInValues {
		languages = nil
	}
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		if query.KeyPrefix != "" {
			q = q.Where("key", ">=", query.KeyPrefix)
			if upper, ok := prefixUpperBound(query.KeyPrefix); ok {
				q = q.Where("key", "<", upper)
			}
		}
		if len(languages) > 0 {
			q = q.Where("language", "in", languages)
		}
		return q.OrderBy("key", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ContentEntry, 0, len(docs))
	for _, doc := range docs {
		entry := decodeContent(doc)
		if len(languages) == 0 && len(query.Languages) > 0 && !contains(query.Languages, entry.Language) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Search loads the collection (optionally one language) and filters in memory;
// Firestore has no substring matching.
func (r *ContentRepository) Search(ctx context.Context, search repositories.ContentSearch) ([]domain.ContentEntry, error) {
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		if search.Language != "" {
			q = q.Where("language", "==", search.Language)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(search.Text))
	out := make([]domain.ContentEntry, 0, len(docs))
	for _, doc := range docs {
		entry := decodeContent(doc)
		if needle != "" && !strings.Contains(strings.ToLower(entry.Key), needle) && !strings.Contains(strings.ToLower(entry.Value), needle) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *ContentRepository) FindExact(ctx context.Context, key, language string, region *string) (domain.ContentEntry, error) {
	doc, err := r.docs.Get(ctx, ContentDocumentID(key, language, region))
	if err != nil {
		return domain.ContentEntry{}, err
	}
	return decodeContent(doc), nil
}

func (r *ContentRepository) Insert(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	now := r.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	entry.ID = ContentDocumentID(entry.Key, entry.Language, entry.Region)

	if _, err := r.docs.Create(ctx, entry.ID, encodeContent(entry)); err != nil {
		return domain.ContentEntry{}, err
	}
	return entry, nil
}

func (r *ContentRepository) Update(ctx context.Context, entry domain.ContentEntry) (domain.ContentEntry, error) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = r.now().UTC()
	}
	_, err := r.docs.Update(ctx, entry.ID, []firestore.Update{
		{Path: "value", Value: entry.Value},
		{Path: "contentType", Value: string(entry.ContentType)},
		{Path: "updatedAt", Value: entry.UpdatedAt},
	})
	if err != nil {
		return domain.ContentEntry{}, err
	}
	return r.get(ctx, entry.ID)
}

func (r *ContentRepository) get(ctx context.Context, id string) (domain.ContentEntry, error) {
	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		return domain.ContentEntry{}, err
	}
	return decodeContent(doc), nil
}

func encodeContent(entry domain.ContentEntry) contentDocument {
	return contentDocument{
		Key:         entry.Key,
		Language:    entry.Language,
		Region:      entry.Region,
		ContentType: string(entry.ContentType),
		Value:       entry.Value,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

func decodeContent(doc pfirestore.Document[contentDocument]) domain.ContentEntry {
	data := doc.Data
	contentType := domain.ContentType(data.ContentType)
	if !contentType.Valid() {
		contentType = domain.ContentTypeText
	}
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = doc.CreateTime
	}
	updatedAt := data.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = doc.UpdateTime
	}
	return domain.ContentEntry{
		ID:          doc.ID,
		Key:         data.Key,
		Language:    data.Language,
		Region:      data.Region,
		ContentType: contentType,
		Value:       data.Value,
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   updatedAt.UTC(),
	}
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/hanko-field/cms/internal/domain"
	pfirestore "github.com/hanko-field/cms/internal/platform/firestore"
	"github.com/hanko-field/cms/internal/repositories"
)

const overlayCollection = "overlays"

// overlayDocument keeps schedule bounds and target pages untyped: editors may store
// timestamps or strings, and malformed values must disable the overlay instead of failing the query.
type overlayDocument struct {
	IsActive       bool      `firestore:"isActive"`
	StartAt        any       `firestore:"startAt"`
	EndAt          any       `firestore:"endAt"`
	FrequencyHours int64     `firestore:"frequencyHours"`
	Language       string    `firestore:"language"`
	Region         *string   `firestore:"region"`
	DisplayStyle   string    `firestore:"displayStyle"`
	TargetPages    any       `firestore:"targetPages"`
	Title          string    `firestore:"title"`
	Body           string    `firestore:"body"`
	ImageURL       string    `firestore:"imageUrl"`
	CTAText        string    `firestore:"ctaText"`
	CTAURL         string    `firestore:"ctaUrl"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// OverlayRepository reads overlay definitions from the overlays collection.
type OverlayRepository struct {
	docs *pfirestore.Collection[overlayDocument]
}

var _ repositories.OverlayRepository = (*OverlayRepository)(nil)

// NewOverlayRepository constructs a Firestore-backed overlay repository.
func NewOverlayRepository(provider *pfirestore.Provider) (*OverlayRepository, error) {
	if provider == nil {
		return nil, errors.New("overlay repository requires firestore provider")
	}
	return &OverlayRepository{docs: pfirestore.NewCollection[overlayDocument](provider, overlayCollection)}, nil
}

func (r *OverlayRepository) ListCandidates(ctx context.Context, query repositories.OverlayQuery) ([]domain.Overlay, error) {
	docs, err := r.docs.Query(ctx, func(q firestore.Query) firestore.Query {
		if query.Language != "" {
			q = q.Where("language", "==", query.Language)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Overlay, 0, len(docs))
	for _, doc := range docs {
		overlay := decodeOverlay(doc)
		if !repositories.MatchesRegionFilter(overlay.Region, query.Region) {
			continue
		}
		out = append(out, overlay)
	}
	return out, nil
}

func (r *OverlayRepository) FindByID(ctx context.Context, id string) (domain.Overlay, error) {
	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		return domain.Overlay{}, err
	}
	return decodeOverlay(doc), nil
}

func decodeOverlay(doc pfirestore.Document[overlayDocument]) domain.Overlay {
	data := doc.Data
	overlay := domain.Overlay{
		ID:             doc.ID,
		IsActive:       data.IsActive,
		FrequencyHours: int(max(data.FrequencyHours, 0)),
		Language:       data.Language,
		Region:         data.Region,
		DisplayStyle:   domain.DisplayStyle(data.DisplayStyle),
		TargetPages:    repositories.DecodeTargetPages(data.TargetPages),
		Title:          data.Title,
		Body:           data.Body,
		ImageURL:       data.ImageURL,
		CTAText:        data.CTAText,
		CTAURL:         data.CTAURL,
		CreatedAt:      data.CreatedAt.UTC(),
	}
	if overlay.CreatedAt.IsZero() {
		overlay.CreatedAt = doc.CreateTime.UTC()
	}

	start, startErr := repositories.ParseOverlayTime(data.StartAt)
	end, endErr := repositories.ParseOverlayTime(data.EndAt)
	overlay.StartAt, overlay.EndAt = start, end
	overlay.InvalidSchedule = startErr != nil || endErr != nil
	return overlay
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/repositories"
)

const overlayColumns = `id, is_active, start_at, end_at, frequency_hours, language, region, display_style,
	target_pages, title, body, image_url, cta_text, cta_url, created_at`

// OverlayRepository reads overlay definitions from the overlays table.
type OverlayRepository struct {
	db *sql.DB
}

// NewOverlayRepository wraps an open database handle.
func NewOverlayRepository(db *sql.DB) (*OverlayRepository, error) {
	if db == nil {
		return nil, errors.New("overlay repository: database is required")
	}
	return &OverlayRepository{db: db}, nil
}

func (r *OverlayRepository) ListCandidates(ctx context.Context, query repositories.OverlayQuery) ([]domain.Overlay, error) {
	stmt := "SELECT " + overlayColumns + " FROM overlays WHERE language = $1"
	args := []any{query.Language}
	if query.Region != nil {
		stmt += " AND (region IS NULL OR region = $2)"
		args = append(args, *query.Region)
	}
	stmt += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify("postgres.overlays.list", err)
	}
	defer rows.Close()

	var overlays []domain.Overlay
	for rows.Next() {
		overlay, err := scanOverlay(rows)
		if err != nil {
			return nil, classify("postgres.overlays.list", err)
		}
		overlays = append(overlays, overlay)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("postgres.overlays.list", err)
	}
	return overlays, nil
}

func (r *OverlayRepository) FindByID(ctx context.Context, id string) (domain.Overlay, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+overlayColumns+" FROM overlays WHERE id = $1", id)
	overlay, err := scanOverlay(row)
	if err != nil {
		return domain.Overlay{}, classify("postgres.overlays.find", err)
	}
	return overlay, nil
}

func scanOverlay(row scanner) (domain.Overlay, error) {
	var (
		overlay          domain.Overlay
		startAt, endAt   sql.NullString
		region           sql.NullString
		style            string
		targetPages      []byte
		imageURL, ctaTxt sql.NullString
		ctaURL           sql.NullString
	)
	if err := row.Scan(
		&overlay.ID, &overlay.IsActive, &startAt, &endAt, &overlay.FrequencyHours,
		&overlay.Language, &region, &style, &targetPages, &overlay.Title, &overlay.Body,
		&imageURL, &ctaTxt, &ctaURL, &overlay.CreatedAt,
	); err != nil {
		return domain.Overlay{}, err
	}

	overlay.Region = stringPointer(region)
	overlay.DisplayStyle = domain.DisplayStyle(style)
	overlay.TargetPages = repositories.DecodeTargetPages(targetPages)
	overlay.ImageURL = imageURL.String
	overlay.CTAText = ctaTxt.String
	overlay.CTAURL = ctaURL.String
	overlay.CreatedAt = overlay.CreatedAt.UTC()
	overlay.FrequencyHours = max(overlay.FrequencyHours, 0)

	startTime, startErr := repositories.ParseOverlayTime(scheduleValue(startAt))
	endTime, endErr := repositories.ParseOverlayTime(scheduleValue(endAt))
	overlay.StartAt, overlay.EndAt = startTime, endTime
	overlay.InvalidSchedule = startErr != nil || endErr != nil
	return overlay, nil
}

func scheduleValue(value sql.NullString) any {
	if !value.Valid {
		return nil
	}
	return value.String
}

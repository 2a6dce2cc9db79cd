package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/overlay"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/platform/metrics"
	"github.com/hanko-field/cms/internal/repositories"
)

var (
	// ErrOverlayRepositoryMissing signals that the overlay repository dependency is absent.
	ErrOverlayRepositoryMissing = errors.New("overlay service: overlay repository is not configured")
	// ErrOverlayIDRequired is returned when dismissing without an overlay id.
	ErrOverlayIDRequired = errors.New("overlay service: overlay id is required")
)

// OverlayServiceDeps groups constructor parameters for the overlay service.
type OverlayServiceDeps struct {
	Repository repositories.OverlayRepository
	Locales    *locale.Set
	// Ledger stores dismissals server-side. Nil leaves dismissal tracking to cookies.
	Ledger     overlay.Ledger
	ModalDelay time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type overlayService struct {
	repo       repositories.OverlayRepository
	locales    *locale.Set
	engine     *overlay.Engine
	ledger     overlay.Ledger
	modalDelay time.Duration
	clock      func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewOverlayService constructs the overlay service with the supplied dependencies.
func NewOverlayService(deps OverlayServiceDeps) (OverlayService, error) {
	if deps.Repository == nil {
		return nil, ErrOverlayRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := deps.ModalDelay
	if delay <= 0 {
		delay = overlay.DefaultModalDelay
	}
	return &overlayService{
		repo:       deps.Repository,
		locales:    deps.Locales,
		engine:     overlay.NewEngine(deps.Locales),
		ledger:     deps.Ledger,
		modalDelay: delay,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger.Named("overlays"),
		metrics:    deps.Metrics,
	}, nil
}

func (s *overlayService) Select(ctx context.Context, query OverlaySelectionQuery) (OverlaySelection, error) {
	language := locale.NormalizeLanguage(query.Language)
	if language == "" {
		language = s.locales.Fallback()
	}
	candidates, err := s.repo.ListCandidates(ctx, repositories.OverlayQuery{
		Language: language,
		Region:   locale.NormalizeRegion(query.Region),
	})
	if err != nil {
		return OverlaySelection{}, err
	}

	now := s.clock()
	dismissed := query.Dismissed
	if s.ledger != nil && query.VisitorID != "" {
		stored, err := s.ledger.Dismissed(ctx, query.VisitorID, now)
		if err != nil {
			s.logger.Warn("dismissal ledger read failed", zap.Error(err))
		} else {
			dismissed = dismissed.Merge(stored)
		}
	}

	selection := s.engine.Select(candidates, query.Path, dismissed, now)
	if selection.Banner != nil {
		s.metrics.IncOverlaySelection(string(selection.Banner.DisplayStyle))
	}
	if selection.Modal != nil {
		s.metrics.IncOverlaySelection(string(selection.Modal.DisplayStyle))
	}
	return OverlaySelection{
		Banner:     selection.Banner,
		Modal:      selection.Modal,
		ModalDelay: s.modalDelay,
	}, nil
}

func (s *overlayService) Dismiss(ctx context.Context, cmd DismissOverlayCommand) (DismissOverlayResult, error) {
	id := strings.TrimSpace(cmd.OverlayID)
	if id == "" {
		return DismissOverlayResult{}, ErrOverlayIDRequired
	}
	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return DismissOverlayResult{}, err
	}
	if s.ledger != nil && cmd.VisitorID != "" {
		if err := s.ledger.Dismiss(ctx, cmd.VisitorID, found, s.clock()); err != nil {
			return DismissOverlayResult{}, err
		}
	}
	s.metrics.IncOverlayDismissal()
	return DismissOverlayResult{Overlay: found, Cooldown: found.Cooldown()}, nil
}

package handlers

import (
	"context"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/services"
)

type stubContentService struct {
	resolveFunc func(ctx context.Context, query services.ResolveContentQuery) services.EffectiveDictionary
	upsertFunc  func(ctx context.Context, cmd services.UpsertContentCommand) (services.ContentWriteResult, error)
	listFunc    func(ctx context.Context, filter services.ContentListFilter) ([]services.ContentEntry, error)
	treeFunc    func(ctx context.Context) (services.ContentTree, error)
}

func (s *stubContentService) Resolve(ctx context.Context, query services.ResolveContentQuery) services.EffectiveDictionary {
	if s.resolveFunc == nil {
		return services.EffectiveDictionary{}
	}
	return s.resolveFunc(ctx, query)
}

func (s *stubContentService) Upsert(ctx context.Context, cmd services.UpsertContentCommand) (services.ContentWriteResult, error) {
	if s.upsertFunc == nil {
		return services.ContentWriteResult{}, nil
	}
	return s.upsertFunc(ctx, cmd)
}

func (s *stubContentService) List(ctx context.Context, filter services.ContentListFilter) ([]services.ContentEntry, error) {
	if s.listFunc == nil {
		return nil, nil
	}
	return s.listFunc(ctx, filter)
}

func (s *stubContentService) Tree(ctx context.Context) (services.ContentTree, error) {
	if s.treeFunc == nil {
		return services.ContentTree{}, nil
	}
	return s.treeFunc(ctx)
}

type stubOverlayService struct {
	selectFunc  func(ctx context.Context, query services.OverlaySelectionQuery) (services.OverlaySelection, error)
	dismissFunc func(ctx context.Context, cmd services.DismissOverlayCommand) (services.DismissOverlayResult, error)
}

func (s *stubOverlayService) Select(ctx context.Context, query services.OverlaySelectionQuery) (services.OverlaySelection, error) {
	if s.selectFunc == nil {
		return services.OverlaySelection{}, nil
	}
	return s.selectFunc(ctx, query)
}

func (s *stubOverlayService) Dismiss(ctx context.Context, cmd services.DismissOverlayCommand) (services.DismissOverlayResult, error) {
	if s.dismissFunc == nil {
		return services.DismissOverlayResult{}, nil
	}
	return s.dismissFunc(ctx, cmd)
}

type stubPublisher struct {
	events []domain.ContentChangedEvent
	err    error
}

func (p *stubPublisher) PublishContentChanged(_ context.Context, event domain.ContentChangedEvent) (string, error) {
	p.events = append(p.events, event)
	return "msg-1", p.err
}

type stubHealthReporter struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthReporter) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func testLocales(t interface{ Fatalf(string, ...any) }) *locale.Set {
	set, err := locale.NewSet([]string{"en", "fr", "es"})
	if err != nil {
		t.Fatalf("locale set: %v", err)
	}
	return set
}

func strPtr(v string) *string { return &v }

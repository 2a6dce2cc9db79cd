package services

import (
	"context"
	"time"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/overlay"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	ContentEntry        = domain.ContentEntry
	ContentTree         = domain.ContentTree
	EffectiveDictionary = domain.EffectiveDictionary
	Overlay             = domain.Overlay
)

// ContentService resolves, writes and indexes localized content.
type ContentService interface {
	// Resolve returns the effective dictionary for keys with the raw string prefix.
	// Store failures yield an empty dictionary; they are logged, never returned.
	Resolve(ctx context.Context, query ResolveContentQuery) EffectiveDictionary
	// Upsert updates the row for the exact (key, language, region) tuple or inserts it.
	Upsert(ctx context.Context, cmd UpsertContentCommand) (ContentWriteResult, error)
	// List returns rows for the flat editor listing.
	List(ctx context.Context, filter ContentListFilter) ([]ContentEntry, error)
	// Tree loads every row and indexes keys as page, section and leaf.
	Tree(ctx context.Context) (ContentTree, error)
}

// OverlayService picks overlays for a page view and records dismissals.
type OverlayService interface {
	Select(ctx context.Context, query OverlaySelectionQuery) (OverlaySelection, error)
	Dismiss(ctx context.Context, cmd DismissOverlayCommand) (DismissOverlayResult, error)
}

// ResolveContentQuery identifies the visitor context for resolution.
type ResolveContentQuery struct {
	// Prefix is matched against the raw key, so "home" also matches "homepage.x".
	Prefix   string
	Language string
	Region   *string
}

// UpsertContentCommand carries one value for an exact tuple. A nil Region targets the global row.
type UpsertContentCommand struct {
	Key         string
	Language    string
	Region      *string
	Value       string
	ContentType domain.ContentType
}

// ContentWriteResult reports the stored row and whether it was created or updated.
type ContentWriteResult struct {
	Entry  ContentEntry
	Action domain.ContentChangeAction
}

// ContentListFilter narrows the flat listing. Search matches key or value case-insensitively.
type ContentListFilter struct {
	Search   string
	Language string
}

// OverlaySelectionQuery describes one page view.
type OverlaySelectionQuery struct {
	Path      string
	Language  string
	Region    *string
	VisitorID string
	// Dismissed holds ids read from the visitor's dismissal cookies.
	Dismissed overlay.Dismissed
}

// OverlaySelection is the chosen banner and modal plus the delay before the modal shows.
type OverlaySelection struct {
	Banner     *Overlay
	Modal      *Overlay
	ModalDelay time.Duration
}

// DismissOverlayCommand closes an overlay for a visitor.
type DismissOverlayCommand struct {
	OverlayID string
	VisitorID string
}

// DismissOverlayResult returns the overlay so callers can set a cookie for its cooldown.
type DismissOverlayResult struct {
	Overlay  Overlay
	Cooldown time.Duration
}

// Package overlay decides which promotional banner and modal a page view shows and
// remembers dismissals for each overlay's cooldown.
package overlay

import (
	"strings"
	"time"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/platform/locale"
)

// Selection holds at most one overlay per display style.
type Selection struct {
	Banner *domain.Overlay
	Modal  *domain.Overlay
}

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool {
	return s.Banner == nil && s.Modal == nil
}

// Dismissed is the set of overlay ids with a live cooldown.
type Dismissed map[string]struct{}

// NewDismissed builds a set from ids.
func NewDismissed(ids ...string) Dismissed {
	set := make(Dismissed, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is dismissed. A nil set contains nothing.
func (d Dismissed) Has(id string) bool {
	_, ok := d[id]
	return ok
}

// Merge returns the union of both sets.
func (d Dismissed) Merge(other Dismissed) Dismissed {
	out := make(Dismissed, len(d)+len(other))
	for id := range d {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Engine filters overlay candidates for a path. Locale prefixes are stripped with Locales.
type Engine struct {
	locales *locale.Set
}

// NewEngine returns an engine that recognises the given locale path prefixes.
func NewEngine(locales *locale.Set) *Engine {
	return &Engine{locales: locales}
}

// Select returns the first eligible banner and the first eligible modal in input order.
func (e *Engine) Select(candidates []domain.Overlay, currentPath string, dismissed Dismissed, now time.Time) Selection {
	path := e.NormalizePath(currentPath)

	var selection Selection
	for i := range candidates {
		candidate := candidates[i]
		if !Eligible(candidate, path, dismissed, now) {
			continue
		}
		switch candidate.DisplayStyle {
		case domain.DisplayStyleBanner:
			if selection.Banner == nil {
				selection.Banner = &candidate
			}
		case domain.DisplayStyleModal:
			if selection.Modal == nil {
				selection.Modal = &candidate
			}
		}
		if selection.Banner != nil && selection.Modal != nil {
			break
		}
	}
	return selection
}

// NormalizePath strips a recognised locale segment and drops the query string.
func (e *Engine) NormalizePath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if e == nil || e.locales == nil {
		raw = strings.TrimSpace(raw)
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		return raw
	}
	return e.locales.StripPrefix(raw)
}

// Eligible applies the checks in order: active, inside the schedule window, page match, not dismissed.
// path must already be normalised.
func Eligible(overlay domain.Overlay, path string, dismissed Dismissed, now time.Time) bool {
	if !overlay.IsActive {
		return false
	}
	if !ActiveAt(overlay, now) {
		return false
	}
	if !MatchesPage(overlay.TargetPages, path) {
		return false
	}
	return !dismissed.Has(overlay.ID)
}

// ActiveAt reports whether now falls inside [StartAt, EndAt]. Nil bounds are open.
// An overlay whose stored schedule failed to parse is never active.
func ActiveAt(overlay domain.Overlay, now time.Time) bool {
	if overlay.InvalidSchedule {
		return false
	}
	if overlay.StartAt != nil && now.Before(*overlay.StartAt) {
		return false
	}
	if overlay.EndAt != nil && now.After(*overlay.EndAt) {
		return false
	}
	return true
}

// MatchesPage reports whether any target is the wildcard, equals path, or is a
// non-root prefix of path. An empty target list never matches.
func MatchesPage(targets []string, path string) bool {
	for _, target := range targets {
		target = strings.TrimSpace(target)
		switch {
		case target == "":
			continue
		case target == domain.OverlayWildcardPage:
			return true
		case target == path:
			return true
		case target != "/" && strings.HasPrefix(path, target):
			return true
		}
	}
	return false
}

package overlay

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hanko-field/cms/internal/domain"
)

// CookiePrefix starts every dismissal cookie name.
const CookiePrefix = "cms_closed_"

// CookieName returns the dismissal cookie for an overlay id.
func CookieName(overlayID string) string {
	return CookiePrefix + overlayID
}

// DismissalCookie builds the cooldown cookie for overlay. It returns nil when the
// overlay has no cooldown, so the dismissal is not remembered at all.
func DismissalCookie(overlay domain.Overlay, now time.Time, secure bool) *http.Cookie {
	cooldown := overlay.Cooldown()
	if cooldown <= 0 {
		return nil
	}
	return &http.Cookie{
		Name:     CookieName(overlay.ID),
		Value:    "1",
		Path:     "/",
		MaxAge:   int(cooldown / time.Second),
		Expires:  now.Add(cooldown).UTC(),
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// DismissedFromCookies collects overlay ids from live dismissal cookies. Browsers drop
// expired cookies, so presence means the cooldown is still running.
func DismissedFromCookies(cookies []*http.Cookie) Dismissed {
	set := Dismissed{}
	for _, cookie := range cookies {
		if cookie == nil || cookie.Value == "" {
			continue
		}
		id, ok := strings.CutPrefix(cookie.Name, CookiePrefix)
		if !ok || id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Ledger records dismissals server-side for a visitor id.
type Ledger interface {
	// Dismiss starts the overlay's cooldown. Overlays without a cooldown are ignored.
	Dismiss(ctx context.Context, visitorID string, overlay domain.Overlay, now time.Time) error
	// Dismissed returns overlays whose cooldown has not ended at now. The end instant is still inside the window.
	Dismissed(ctx context.Context, visitorID string, now time.Time) (Dismissed, error)
}

// MemoryLedger keeps dismissals in process memory.
type MemoryLedger struct {
	mu      sync.Mutex
	expires map[string]map[string]time.Time
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{expires: make(map[string]map[string]time.Time)}
}

func (l *MemoryLedger) Dismiss(_ context.Context, visitorID string, overlay domain.Overlay, now time.Time) error {
	cooldown := overlay.Cooldown()
	if cooldown <= 0 || visitorID == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.expires[visitorID]
	if entries == nil {
		entries = make(map[string]time.Time)
		l.expires[visitorID] = entries
	}
	entries[overlay.ID] = now.Add(cooldown)
	return nil
}

func (l *MemoryLedger) Dismissed(_ context.Context, visitorID string, now time.Time) (Dismissed, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := Dismissed{}
	for id, expiry := range l.expires[visitorID] {
		if now.After(expiry) {
			delete(l.expires[visitorID], id)
			continue
		}
		set[id] = struct{}{}
	}
	return set, nil
}

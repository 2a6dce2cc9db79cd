package handlers

import (
	"crypto/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/overlay"
	"github.com/hanko-field/cms/internal/platform/httpx"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/services"
)

const (
	// DefaultVisitorCookie identifies a browser for the server-side dismissal ledger.
	DefaultVisitorCookie = "cms_visitor"

	visitorCookieMaxAge = 365 * 24 * time.Hour
)

// OverlayHandlers serves overlay selection and dismissal.
type OverlayHandlers struct {
	overlays      services.OverlayService
	locales       *locale.Set
	clock         func() time.Time
	visitorCookie string
	secureCookies bool
	trackVisitors bool
}

// OverlayOption customises OverlayHandlers.
type OverlayOption func(*OverlayHandlers)

// WithSecureCookies marks dismissal and visitor cookies Secure.
func WithSecureCookies(secure bool) OverlayOption {
	return func(h *OverlayHandlers) {
		h.secureCookies = secure
	}
}

// WithVisitorTracking issues a visitor cookie on dismissal so the server-side ledger can
// recognise the browser on later page views.
func WithVisitorTracking(enabled bool) OverlayOption {
	return func(h *OverlayHandlers) {
		h.trackVisitors = enabled
	}
}

// WithVisitorCookie overrides the visitor cookie name.
func WithVisitorCookie(name string) OverlayOption {
	return func(h *OverlayHandlers) {
		if name = strings.TrimSpace(name); name != "" {
			h.visitorCookie = name
		}
	}
}

// WithOverlayClock injects a clock for cookie expiry.
func WithOverlayClock(clock func() time.Time) OverlayOption {
	return func(h *OverlayHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewOverlayHandlers constructs overlay handlers.
func NewOverlayHandlers(overlays services.OverlayService, locales *locale.Set, opts ...OverlayOption) *OverlayHandlers {
	h := &OverlayHandlers{overlays: overlays, locales: locales, clock: time.Now, visitorCookie: DefaultVisitorCookie}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers overlay endpoints.
func (h *OverlayHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(LocaleMiddleware(h.locales))
	r.Get("/", h.selectOverlays)
	r.Post("/{overlayId}/dismiss", h.dismissOverlay)
}

type overlayPayload struct {
	ID             string   `json:"id"`
	DisplayStyle   string   `json:"displayStyle"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	CTAText        string   `json:"ctaText,omitempty"`
	CTAURL         string   `json:"ctaUrl,omitempty"`
	FrequencyHours int      `json:"frequencyHours"`
	TargetPages    []string `json:"targetPages"`
}

type overlaySelectionResponse struct {
	Banner       *overlayPayload `json:"banner"`
	Modal        *overlayPayload `json:"modal"`
	ModalDelayMS int64           `json:"modalDelayMs"`
}

func (h *OverlayHandlers) selectOverlays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.overlays == nil {
		httpx.WriteError(ctx, w, httpx.NewError("overlays_unavailable", "overlay service is not configured", http.StatusServiceUnavailable))
		return
	}

	loc := localeFromRequest(h.locales, r)
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		path = "/"
	}

	selection, err := h.overlays.Select(ctx, services.OverlaySelectionQuery{
		Path:      path,
		Language:  loc.Language,
		Region:    loc.Region,
		VisitorID: h.visitorID(r),
		Dismissed: overlay.DismissedFromCookies(r.Cookies()),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Cache-Control", "private, no-store")
	httpx.WriteJSON(w, http.StatusOK, overlaySelectionResponse{
		Banner:       toOverlayPayload(selection.Banner),
		Modal:        toOverlayPayload(selection.Modal),
		ModalDelayMS: selection.ModalDelay.Milliseconds(),
	})
}

func (h *OverlayHandlers) dismissOverlay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.overlays == nil {
		httpx.WriteError(ctx, w, httpx.NewError("overlays_unavailable", "overlay service is not configured", http.StatusServiceUnavailable))
		return
	}

	now := h.clock()
	visitor := h.visitorID(r)
	if visitor == "" && h.trackVisitors {
		visitor = ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
		http.SetCookie(w, &http.Cookie{
			Name:     h.visitorCookie,
			Value:    visitor,
			Path:     "/",
			MaxAge:   int(visitorCookieMaxAge / time.Second),
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}

	result, err := h.overlays.Dismiss(ctx, services.DismissOverlayCommand{
		OverlayID: chi.URLParam(r, "overlayId"),
		VisitorID: visitor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	if cookie := overlay.DismissalCookie(result.Overlay, now, h.secureCookies); cookie != nil {
		http.SetCookie(w, cookie)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OverlayHandlers) visitorID(r *http.Request) string {
	cookie, err := r.Cookie(h.visitorCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func toOverlayPayload(o *domain.Overlay) *overlayPayload {
	if o == nil {
		return nil
	}
	pages := o.TargetPages
	if pages == nil {
		pages = []string{}
	}
	return &overlayPayload{
		ID:             o.ID,
		DisplayStyle:   string(o.DisplayStyle),
		Title:          o.Title,
		Body:           o.Body,
		ImageURL:       o.ImageURL,
		CTAText:        o.CTAText,
		CTAURL:         o.CTAURL,
		FrequencyHours: o.FrequencyHours,
		TargetPages:    pages,
	}
}

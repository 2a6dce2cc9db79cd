package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/cms/internal/platform/httpx"
	"github.com/hanko-field/cms/internal/platform/locale"
	"github.com/hanko-field/cms/internal/services"
)

// ContentHandlers serves the public content listing, tree and dictionary endpoints.
type ContentHandlers struct {
	content services.ContentService
	locales *locale.Set
}

// NewContentHandlers constructs content handlers.
func NewContentHandlers(content services.ContentService, locales *locale.Set) *ContentHandlers {
	return &ContentHandlers{content: content, locales: locales}
}

// Routes registers content endpoints against the provided router.
func (h *ContentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(LocaleMiddleware(h.locales))
	r.Get("/", h.listContent)
	r.Get("/dictionary", h.resolveDictionary)
}

type contentEntryPayload struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Language    string  `json:"language"`
	Region      *string `json:"region"`
	ContentType string  `json:"contentType"`
	Value       string  `json:"value"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

type contentListResponse struct {
	Items []contentEntryPayload `json:"items"`
}

type dictionaryResponse struct {
	Language   string            `json:"language"`
	Region     *string           `json:"region"`
	Prefix     string            `json:"prefix"`
	Dictionary map[string]string `json:"dictionary"`
}

func (h *ContentHandlers) listContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_unavailable", "content service is not configured", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	switch strings.ToLower(strings.TrimSpace(query.Get("type"))) {
	case "tree":
		tree, err := h.content.Tree(ctx)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, tree)
	case "", "list":
		filter := services.ContentListFilter{
			Search:   strings.TrimSpace(query.Get("search")),
			Language: strings.TrimSpace(query.Get(languageQueryParam)),
		}
		entries, err := h.content.List(ctx, filter)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		items := make([]contentEntryPayload, 0, len(entries))
		for _, entry := range entries {
			items = append(items, toContentEntryPayload(entry))
		}
		httpx.WriteJSON(w, http.StatusOK, contentListResponse{Items: items})
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_type", "type must be list or tree", http.StatusBadRequest).OnField("type"))
	}
}

func (h *ContentHandlers) resolveDictionary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_unavailable", "content service is not configured", http.StatusServiceUnavailable))
		return
	}

	loc := localeFromRequest(h.locales, r)
	prefix := r.URL.Query().Get("prefix")
	dict := h.content.Resolve(ctx, services.ResolveContentQuery{
		Prefix:   prefix,
		Language: loc.Language,
		Region:   loc.Region,
	})
	if dict == nil {
		dict = services.EffectiveDictionary{}
	}

	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, dictionaryResponse{
		Language:   loc.Language,
		Region:     loc.Region,
		Prefix:     prefix,
		Dictionary: dict,
	})
}

func toContentEntryPayload(entry services.ContentEntry) contentEntryPayload {
	return contentEntryPayload{
		ID:          entry.ID,
		Key:         entry.Key,
		Language:    entry.Language,
		Region:      entry.Region,
		ContentType: string(entry.ContentType),
		Value:       entry.Value,
		CreatedAt:   formatTime(entry.CreatedAt),
		UpdatedAt:   formatTime(entry.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

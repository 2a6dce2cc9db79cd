package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/platform/httpx"
	"github.com/hanko-field/cms/internal/platform/requestctx"
	"github.com/hanko-field/cms/internal/services"
)

// ContentEventPublisher announces committed content writes.
type ContentEventPublisher interface {
	PublishContentChanged(ctx context.Context, event domain.ContentChangedEvent) (string, error)
}

// RequireSession rejects requests that do not carry the admin session cookie.
func RequireSession(cookieName string) func(http.Handler) http.Handler {
	cookieName = strings.TrimSpace(cookieName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookieName == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "admin session is not configured", http.StatusUnauthorized))
				return
			}
			cookie, err := r.Cookie(cookieName)
			if err != nil || strings.TrimSpace(cookie.Value) == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "admin session required", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminContentHandlers serves content writes for editors.
type AdminContentHandlers struct {
	content   services.ContentService
	publisher ContentEventPublisher
	clock     func() time.Time
}

// AdminContentOption customises AdminContentHandlers.
type AdminContentOption func(*AdminContentHandlers)

// WithContentEventPublisher publishes a change event after every successful write.
func WithContentEventPublisher(publisher ContentEventPublisher) AdminContentOption {
	return func(h *AdminContentHandlers) {
		h.publisher = publisher
	}
}

// WithAdminClock injects a clock for event timestamps.
func WithAdminClock(clock func() time.Time) AdminContentOption {
	return func(h *AdminContentHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewAdminContentHandlers constructs admin content handlers.
func NewAdminContentHandlers(content services.ContentService, opts ...AdminContentOption) *AdminContentHandlers {
	h := &AdminContentHandlers{content: content, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin content endpoints.
func (h *AdminContentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Put("/content", h.upsertContent)
}

type upsertContentRequest struct {
	Key         string  `json:"key"`
	Language    string  `json:"language"`
	Region      *string `json:"region"`
	Value       *string `json:"value"`
	ContentType string  `json:"contentType"`
}

type upsertContentResponse struct {
	Action string              `json:"action"`
	Entry  contentEntryPayload `json:"entry"`
}

func (h *AdminContentHandlers) upsertContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		httpx.WriteError(ctx, w, httpx.NewError("content_unavailable", "content service is not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := httpx.ReadLimitedBody(r, maxJSONBodySize)
	if err != nil {
		if errors.Is(err, httpx.ErrBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	var req upsertContentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_json", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Value == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "value is required", http.StatusBadRequest).OnField("value"))
		return
	}
	contentType := domain.ContentType(strings.ToLower(strings.TrimSpace(req.ContentType)))
	if contentType == "" {
		contentType = domain.ContentTypeText
	}

	result, err := h.content.Upsert(ctx, services.UpsertContentCommand{
		Key:         req.Key,
		Language:    req.Language,
		Region:      req.Region,
		Value:       *req.Value,
		ContentType: contentType,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	h.publish(ctx, result)

	status := http.StatusOK
	if result.Action == domain.ContentCreated {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, upsertContentResponse{
		Action: string(result.Action),
		Entry:  toContentEntryPayload(result.Entry),
	})
}

func (h *AdminContentHandlers) publish(ctx context.Context, result services.ContentWriteResult) {
	if h.publisher == nil {
		return
	}
	event := domain.ContentChangedEvent{
		Key:         result.Entry.Key,
		Language:    result.Entry.Language,
		Region:      result.Entry.Region,
		ContentType: result.Entry.ContentType,
		Action:      result.Action,
		OccurredAt:  h.clock().UTC(),
	}
	if _, err := h.publisher.PublishContentChanged(ctx, event); err != nil {
		requestctx.Logger(ctx).Warn("content change event not published",
			zap.String("key", event.Key),
			zap.String("language", event.Language),
			zap.Error(err),
		)
	}
}

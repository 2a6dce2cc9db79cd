package httpx

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/cms/internal/platform/requestctx"
)

const (
	maxCodeLen    = 64
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is an API failure with a stable machine code and the HTTP status it maps to.
type Error struct {
	Status  int
	Code    string
	Message string
	// Field names the request field that failed validation, if any.
	Field string
}

// NewError builds an Error, defaulting a zero status to 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Status:  status,
		Code:    clip(code, maxCodeLen),
		Message: clip(message, maxMessageLen),
	}
}

// OnField returns a copy of e pointing at the named request field.
func (e Error) OnField(field string) Error {
	e.Field = clip(field, maxCodeLen)
	return e
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError renders e as the JSON error body, tagging it with the chi request id and the
// trace id carried by ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	WriteJSON(w, e.Status, errorBody{
		Error:     e.Code,
		Message:   e.Message,
		Status:    e.Status,
		Field:     e.Field,
		RequestID: clip(middleware.GetReqID(ctx), maxIDLen),
		TraceID:   clip(requestctx.TraceID(ctx), maxIDLen),
	})
}

// clip collapses whitespace runs to single spaces and truncates to limit bytes on a rune boundary.
func clip(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

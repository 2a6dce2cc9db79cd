package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/cms/internal/platform/requestctx"
)

func TestWriteErrorBody(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-1")
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("invalid_key", "key must have\nat least  two segments", http.StatusBadRequest).OnField("key"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := errorBody{
		Error:     "invalid_key",
		Message:   "key must have at least two segments",
		Status:    http.StatusBadRequest,
		Field:     "key",
		RequestID: "req-1",
		TraceID:   "abc123",
	}
	if body != want {
		t.Fatalf("unexpected body\n got %+v\nwant %+v", body, want)
	}
}

func TestWriteErrorOmitsEmptyIdentifiers(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, Error{Code: "boom"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for zero status, got %d", rec.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"field", "request_id", "trace_id"} {
		if _, ok := raw[key]; ok {
			t.Errorf("expected %s to be omitted, got %v", key, raw)
		}
	}
}

func TestClipKeepsRuneBoundary(t *testing.T) {
	if got := clip("ab日本", 4); got != "ab" {
		t.Fatalf("expected truncation before a partial rune, got %q", got)
	}
	if got := clip("  spaced\tout  ", 64); got != "spaced out" {
		t.Fatalf("unexpected clip %q", got)
	}
	err := NewError("conflict", strings.Repeat("x", 600), http.StatusConflict)
	if len(err.Message) != maxMessageLen {
		t.Fatalf("expected message clipped to %d, got %d", maxMessageLen, len(err.Message))
	}
	if err.Error() != "conflict: "+err.Message {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestReadLimitedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("0123456789"))
	if _, err := ReadLimitedBody(req, 5); err != ErrBodyTooLarge {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader("01234"))
	body, err := ReadLimitedBody(req, 5)
	if err != nil || string(body) != "01234" {
		t.Fatalf("unexpected result %q %v", body, err)
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/platform/httpx"
	"github.com/hanko-field/cms/internal/platform/requestctx"
	"github.com/hanko-field/cms/internal/repositories"
	"github.com/hanko-field/cms/internal/services"
)

const maxJSONBodySize int64 = 64 * 1024

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidContentKey),
		errors.Is(err, services.ErrInvalidContentLanguage),
		errors.Is(err, services.ErrInvalidContentType),
		errors.Is(err, services.ErrInvalidContentRegion),
		errors.Is(err, services.ErrOverlayIDRequired):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case repositories.IsNotFound(err):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case repositories.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "content was modified concurrently, retry the request", http.StatusConflict))
	case repositories.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "content store is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
	default:
		requestctx.Logger(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PreviewRoutes mounts the preview relay socket at /ws.
func PreviewRoutes(hub http.Handler) RouteRegistrar {
	return func(r chi.Router) {
		if hub == nil {
			return
		}
		r.Method(http.MethodGet, "/ws", hub)
	}
}

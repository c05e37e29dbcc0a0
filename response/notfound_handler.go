package response

import (
	"fmt"
	"log/slog"
	"net/http"
)

var (
	ErrRouteNotFound    = fmt.Errorf("requested resource does not exist")
	ErrMethodNotAllowed = fmt.Errorf("method not allowed")
)

// NewNotFoundHandler renders unknown routes as a JSON 404.
func NewNotFoundHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Warn("Resource not found", "method", r.Method, "path", r.URL.Path)
		RenderError(w, ErrRouteNotFound, http.StatusNotFound)
	}
}

// NewMethodNotAllowedHandler renders a JSON 405. The router sets the Allow
// header before calling it.
func NewMethodNotAllowedHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Warn("Method not allowed", "method", r.Method, "path", r.URL.Path, "allow", w.Header().Get("Allow"))
		RenderError(w, fmt.Errorf("%w: %s %s", ErrMethodNotAllowed, r.Method, r.URL.Path), http.StatusMethodNotAllowed)
	}
}

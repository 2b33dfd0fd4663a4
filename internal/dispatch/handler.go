package dispatch

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mkurov/postqueue/internal/pkg/ctxlog"
	"github.com/mkurov/postqueue/internal/pkg/httputil"
)

// Handler exposes the dispatch trigger over HTTP.
type Handler struct {
	engine *Engine
	gate   *Gate
}

// NewHandler creates a new dispatch handler.
func NewHandler(engine *Engine, gate *Gate) *Handler {
	return &Handler{engine: engine, gate: gate}
}

// RegisterRoutes registers the dispatch trigger route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/dispatch/run", h.RunCycle)
}

// RunCycle handles POST /dispatch/run.
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Authorize(bearerToken(r)) {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.engine.RunCycle(r.Context(), time.Now().UTC())
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("dispatch cycle failed to start", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "dispatch cycle failed")
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

package posts

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mkurov/postqueue/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrPostNotFound, Status: http.StatusNotFound, Message: "post not found"},
	{Error: ErrPostNotPending, Status: http.StatusConflict, Message: "only pending posts can be deleted"},
	{Error: ErrContentEmpty, Status: http.StatusBadRequest, Message: "content is required"},
	{Error: ErrContentTooLong, Status: http.StatusBadRequest},
	{Error: ErrScheduleAtRequired, Status: http.StatusBadRequest, Message: "scheduled_at is required"},
}

// Handler handles HTTP requests for the posts module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new posts handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers post record routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/posts", func(r chi.Router) {
		r.Get("/", h.ListPosts)
		r.Post("/", h.CreatePost)
		r.Get("/stuck", h.ListStuck)
		r.Get("/{id}", h.GetPost)
		r.Delete("/{id}", h.DeletePost)
	})
}

// CreatePostRequest represents request body for scheduling a post.
type CreatePostRequest struct {
	Content     string    `json:"content" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// CreatePost handles POST /posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	post, err := h.service.CreatePost(r.Context(), CreatePostInput{
		Content:     req.Content,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, post)
}

// ListPosts handles GET /posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPosts(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// GetPost handles GET /posts/{id}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, post)
}

// DeletePost handles DELETE /posts/{id}.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePost(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListStuck handles GET /posts/stuck.
func (h *Handler) ListStuck(w http.ResponseWriter, r *http.Request) {
	stuck, err := h.service.ListStuck(r.Context(), time.Now().UTC())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stuck)
}

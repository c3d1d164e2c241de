package handler

import (
	"net/http"

	"jazzfeed/internal/httputil"
	"jazzfeed/internal/model"
	"jazzfeed/internal/service"
)

type PostHandler struct {
	postService       *service.PostService
	engagementService *service.EngagementService
}

func NewPostHandler(postService *service.PostService, engagementService *service.EngagementService) *PostHandler {
	return &PostHandler{
		postService:       postService,
		engagementService: engagementService,
	}
}

// Create handles POST /posts
// Creates a new post for the authenticated user.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.CreatePostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.postService.Create(r.Context(), uid, req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

// GetByID handles GET /posts/{id}
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	post, err := h.postService.GetByID(r.Context(), postID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// ToggleLike handles POST /posts/{id}/like
// Likes the post, or unlikes it when the viewer already liked it.
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.engagementService.ToggleLike(r.Context(), uid, postID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

package handler

import (
	"net/http"

	"jazzfeed/internal/httputil"
	"jazzfeed/internal/model"
	"jazzfeed/internal/service"
)

type CommentHandler struct {
	engagementService *service.EngagementService
}

func NewCommentHandler(engagementService *service.EngagementService) *CommentHandler {
	return &CommentHandler{engagementService: engagementService}
}

// Create handles POST /posts/{id}/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req model.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.engagementService.AddComment(r.Context(), uid, postID, req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, comment)
}

// List handles GET /posts/{id}/comments
// Returns all comments of a post, oldest first.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	comments, err := h.engagementService.GetComments(r.Context(), postID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

package handler

import (
	"net/http"
	"strings"

	"jazzfeed/internal/httputil"
	"jazzfeed/internal/model"
	"jazzfeed/internal/service"
)

type MediaHandler struct {
	mediaService *service.MediaService
}

// NewMediaHandler accepts a nil service; uploads then answer 503.
func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// PresignPostUpload handles POST /media/posts/presign
// Returns a presigned URL for uploading a post image directly to R2.
func (h *MediaHandler) PresignPostUpload(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.mediaService == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, httputil.ErrCodeUnavailable, "Media uploads are not configured")
		return
	}

	var req model.PresignPostUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.ContentType = strings.TrimSpace(req.ContentType)
	if req.ContentType == "" {
		httputil.WriteBadRequest(w, "content_type is required")
		return
	}

	res, err := h.mediaService.PresignPostUpload(r.Context(), uid, &req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}

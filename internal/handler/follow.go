package handler

import (
	"net/http"

	"jazzfeed/internal/httputil"
	"jazzfeed/internal/service"
)

type FollowHandler struct {
	followService *service.FollowService
}

func NewFollowHandler(followService *service.FollowService) *FollowHandler {
	return &FollowHandler{followService: followService}
}

// Follow handles POST /users/{uid}/follow
// Sends a follow request. Repeats answer 200 with an informational message.
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	resp, err := h.followService.RequestFollow(r.Context(), uid, target)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Unfollow handles DELETE /users/{uid}/follow
// Removes the follow edge or withdraws a pending request.
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	resp, err := h.followService.Unfollow(r.Context(), uid, target)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Accept handles POST /me/requests/{uid}/accept
func (h *FollowHandler) Accept(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	requester, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	resp, err := h.followService.Accept(r.Context(), uid, requester)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Decline handles POST /me/requests/{uid}/decline
func (h *FollowHandler) Decline(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	requester, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	resp, err := h.followService.Decline(r.Context(), uid, requester)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

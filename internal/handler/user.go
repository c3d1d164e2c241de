package handler

import (
	"net/http"

	"jazzfeed/internal/httputil"
	"jazzfeed/internal/model"
	"jazzfeed/internal/service"
)

// UserHandler serves profiles, profile edits and follow lists.
type UserHandler struct {
	profileService *service.ProfileService
}

func NewUserHandler(profileService *service.ProfileService) *UserHandler {
	return &UserHandler{profileService: profileService}
}

// Signup handles POST /me/signup
// Creates the user document for the authenticated uid. Repeats return the stored user.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.profileService.Signup(r.Context(), uid, req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, user)
}

// GetProfile handles GET /users/{uid}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	view, err := h.profileService.GetProfile(r.Context(), uid, target)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, view)
}

// UpdateProfile handles PUT /me/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.profileService.UpdateProfile(r.Context(), uid, &req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// ListRequests handles GET /me/requests
// Returns the users waiting for the authenticated user to accept them.
func (h *UserHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}

	resp, err := h.profileService.ListFollowRequests(r.Context(), uid)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GetFollowers handles GET /users/{uid}/followers
func (h *UserHandler) GetFollowers(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	resp, err := h.profileService.ListFollowers(r.Context(), uid, target)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GetFollowing handles GET /users/{uid}/following
func (h *UserHandler) GetFollowing(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "uid")
	if !ok {
		return
	}

	resp, err := h.profileService.ListFollowing(r.Context(), uid, target)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"jazzfeed/internal/httputil"
	"jazzfeed/internal/transport/http/middleware"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// currentUser returns the authenticated uid or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return "", false
	}
	return uid, true
}

// pathID reads a non-empty path parameter or writes 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, name))
	if id == "" {
		httputil.WriteBadRequest(w, "Missing "+name)
		return "", false
	}
	return id, true
}

// decodeJSON decodes the request body into dst or writes 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

package httputil

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"jazzfeed/internal/model"
)

// Error codes returned in error bodies
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeStaleFeed      = "STALE_FEED"
	ErrCodePartialUpdate  = "PARTIAL_GRAPH_UPDATE"
	ErrCodeUnavailable    = "BACKEND_UNAVAILABLE"
	ErrCodeTooManyRequest = "RATE_LIMITED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent.
			log.Printf("[HTTP] Failed to encode response: %v", err)
		}
	}
}

// WriteError writes an error response in the format:
// {"error": {"code": "ERROR_CODE", "message": "Human readable message"}}
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	response := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
	WriteJSON(w, status, response)
}

// Common error response helpers

// WriteBadRequest writes a 400 Bad Request error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// WriteBadRequestWithCode writes a 400 Bad Request error with a custom code
func WriteBadRequestWithCode(w http.ResponseWriter, code string, message string) {
	WriteError(w, http.StatusBadRequest, code, message)
}

// WriteUnauthorized writes a 401 Unauthorized error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// WriteUnauthorizedWithCode writes a 401 Unauthorized error with a custom code
func WriteUnauthorizedWithCode(w http.ResponseWriter, code string, message string) {
	WriteError(w, http.StatusUnauthorized, code, message)
}

// WriteForbidden writes a 403 Forbidden error
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// WriteNotFound writes a 404 Not Found error
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteConflict writes a 409 Conflict error
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, ErrCodeConflict, message)
}

// WriteInternalError writes a 500 Internal Server Error
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// WriteServiceError maps a core error kind onto its status code. Unknown errors are
// logged and reported as 500 without their text. Partial graph updates are matched
// first: they also wrap the cause of the failed side, which may be a NotFound.
func WriteServiceError(w http.ResponseWriter, err error) {
	var partial *model.PartialGraphUpdateError
	switch {
	case errors.As(err, &partial):
		log.Printf("[HTTP] PARTIAL GRAPH UPDATE surfaced to client: %v", err)
		message := "The change was only partly saved and is being repaired. Please retry."
		if !partial.Repairable() {
			message = "The change was only partly saved and cannot be repaired automatically."
		}
		WriteError(w, http.StatusInternalServerError, ErrCodePartialUpdate, message)
	case errors.Is(err, model.ErrPartialGraphUpdate):
		log.Printf("[HTTP] PARTIAL GRAPH UPDATE surfaced to client: %v", err)
		WriteError(w, http.StatusInternalServerError, ErrCodePartialUpdate,
			"The change was only partly saved and is being repaired. Please retry.")
	case errors.Is(err, model.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrPrivateProfile):
		WriteForbidden(w, err.Error())
	case errors.Is(err, model.ErrInvalidOperation):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrFileTooLarge):
		WriteBadRequestWithCode(w, model.CodeFileTooLarge, err.Error())
	case errors.Is(err, model.ErrInvalidImageType):
		WriteBadRequestWithCode(w, model.CodeInvalidImageType, err.Error())
	case errors.Is(err, model.ErrStaleFeed):
		WriteError(w, http.StatusConflict, ErrCodeStaleFeed, err.Error())
	case errors.Is(err, model.ErrBackendUnavailable):
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "Service temporarily unavailable, please retry")
	default:
		log.Printf("[HTTP] Unhandled error: %v", err)
		WriteInternalError(w, "Internal server error")
	}
}

// WriteTooManyRequests writes a 429 Too Many Requests error
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ErrCodeTooManyRequest, message)
}

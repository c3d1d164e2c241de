package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jazzfeed/internal/model"
)

func TestWriteServiceError(t *testing.T) {
	partial := func(cause error) error {
		return &model.PartialGraphUpdateError{
			Op:      "accept request",
			Applied: model.GraphSide{UID: "owner"},
			Failed:  model.GraphSide{UID: "requester"},
			Err:     cause,
		}
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing user", model.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"private profile", model.ErrPrivateProfile, http.StatusForbidden, ErrCodeForbidden},
		{"self like", model.ErrSelfLike, http.StatusBadRequest, ErrCodeBadRequest},
		{"stale feed", model.ErrStaleFeed, http.StatusConflict, ErrCodeStaleFeed},
		{"backend down", fmt.Errorf("get: %w", model.ErrBackendUnavailable), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"partial with transient cause", partial(model.ErrBackendUnavailable), http.StatusInternalServerError, ErrCodePartialUpdate},
		{"partial with missing side", partial(model.ErrUserNotFound), http.StatusInternalServerError, ErrCodePartialUpdate},
		{"wrapped partial", fmt.Errorf("Accept: %w", partial(model.ErrUserNotFound)), http.StatusInternalServerError, ErrCodePartialUpdate},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestWriteServiceError_UnrepairablePartialSaysSo(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, &model.PartialGraphUpdateError{
		Op:     "request follow",
		Failed: model.GraphSide{UID: "gone"},
		Err:    model.ErrUserNotFound,
	})

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error.Message, "cannot be repaired")
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Sibusisongondo/Tdone/internal/util"
	"github.com/Sibusisongondo/Tdone/services/magazine/internal/app"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var appErrors = []errorMapping{
	{app.ErrNotFound, http.StatusNotFound, "MAGAZINE_NOT_FOUND"},
	{app.ErrArtistNotFound, http.StatusNotFound, "ARTIST_NOT_FOUND"},
	{app.ErrForbidden, http.StatusForbidden, "MAGAZINE_FORBIDDEN"},
	{app.ErrNotReadableOnline, http.StatusForbidden, "MAGAZINE_NOT_READABLE_ONLINE"},
	{app.ErrNotDownloadable, http.StatusForbidden, "MAGAZINE_NOT_DOWNLOADABLE"},
	{app.ErrTitleRequired, http.StatusBadRequest, "MAGAZINE_TITLE_REQUIRED"},
	{app.ErrDescriptionRequired, http.StatusBadRequest, "MAGAZINE_DESCRIPTION_REQUIRED"},
	{app.ErrCategoryRequired, http.StatusBadRequest, "MAGAZINE_CATEGORY_REQUIRED"},
	{app.ErrUnknownCategory, http.StatusBadRequest, "MAGAZINE_UNKNOWN_CATEGORY"},
	{app.ErrFileRequired, http.StatusBadRequest, "MAGAZINE_FILE_REQUIRED"},
	{app.ErrInvalidFileType, http.StatusBadRequest, "MAGAZINE_UNSUPPORTED_FILE_TYPE"},
	{app.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "MAGAZINE_FILE_TOO_LARGE"},
	{app.ErrInvalidCover, http.StatusBadRequest, "MAGAZINE_INVALID_COVER"},
	{app.ErrCoverTooLarge, http.StatusRequestEntityTooLarge, "MAGAZINE_COVER_TOO_LARGE"},
	{app.ErrUnknownAction, http.StatusBadRequest, "VIEWER_UNKNOWN_ACTION"},
	{app.ErrRetriesExhausted, http.StatusConflict, "VIEWER_RETRIES_EXHAUSTED"},
}

// writeAppError maps core errors to status and code. Unknown errors are logged
// and reported as 500 without their message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range appErrors {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.err.Error())
			return
		}
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

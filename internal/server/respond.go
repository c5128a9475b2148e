package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/theirongolddev/emiscope/internal/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail carries the coded error.
type ErrorDetail struct {
	Code    apperr.Code            `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeArtifactMissing, apperr.CodeArtifactInvalid:
		return http.StatusServiceUnavailable
	case apperr.CodeInvalidProfile:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := ErrorBody{RequestID: middleware.GetReqID(r.Context())}

	var e *apperr.Error
	if errors.As(err, &e) {
		body.Error = ErrorDetail{Code: e.Code, Message: e.Message, Details: e.Details}
	} else {
		body.Error = ErrorDetail{Code: apperr.CodeInternal, Message: err.Error()}
	}

	status := StatusFor(body.Error.Code)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed", map[string]interface{}{
			"path":       r.URL.Path,
			"code":       string(body.Error.Code),
			"request_id": body.RequestID,
		})
	}
	writeJSON(w, status, body)
}

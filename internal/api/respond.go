package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"carevisit/internal/metrics"
	"carevisit/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// statusFor maps operation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPastDate), errors.Is(err, model.ErrOutsideWindow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrDateLocked),
		errors.Is(err, model.ErrDateUnavailable),
		errors.Is(err, model.ErrAlreadyFinalized),
		errors.Is(err, model.ErrHistoryExists),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNothingToConfirm),
		errors.Is(err, model.ErrEmptyRoster):
		return http.StatusConflict
	case errors.Is(err, model.ErrNetworkFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrNothingToConfirm):
		return "nothing_to_confirm"
	case errors.Is(err, model.ErrEmptyRoster):
		return "empty_roster"
	case errors.Is(err, model.ErrInvalidRule):
		return "invalid_input"
	}
	return metrics.Result(err)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("Operation failed")
	}
	writeError(w, status, errorCode(err), err.Error())
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

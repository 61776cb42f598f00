package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mercator-hq/apilog/pkg/audit"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// localDateTime is accepted in addition to RFC 3339 and interpreted as UTC.
const localDateTime = "2006-01-02T15:04:05"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to a status code. Validation failures are 400; anything
// else is logged and reported as 500 without internal details.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if audit.IsValidation(err) {
		var qerr *audit.QueryError
		msg := err.Error()
		if errors.As(err, &qerr) {
			msg = qerr.Cause.Error()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Status: http.StatusBadRequest})
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:  "failed to read audit logs",
		Status: http.StatusInternalServerError,
	})
}

// ParseTime parses an RFC 3339 timestamp or an ISO local date-time in UTC.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation(localDateTime, value, time.UTC)
}

func parseInt(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, audit.ValidationError("%s must be an integer, got %q", name, value)
	}
	return n, nil
}

func optionalInt(q url.Values, name string) (*int, error) {
	value := q.Get(name)
	if value == "" {
		return nil, nil
	}
	n, err := parseInt(name, value)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optionalTime(q url.Values, name string) (*time.Time, error) {
	value := q.Get(name)
	if value == "" {
		return nil, nil
	}
	t, err := ParseTime(value)
	if err != nil {
		return nil, audit.ValidationError("%s must be an ISO date-time, got %q", name, value)
	}
	return &t, nil
}

func requiredTime(q url.Values, name string) (time.Time, error) {
	t, err := optionalTime(q, name)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, audit.ValidationError("%s is required", name)
	}
	return *t, nil
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"fiftythirty/internal/core"
	"fiftythirty/internal/log"
	"fiftythirty/internal/sheets"
	"fiftythirty/internal/tracker"
)

// errBadRequest marks payloads that could not be read at all.
var errBadRequest = errors.New("malformed request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error onto the response status.
func statusFor(err error) int {
	var verr validator.ValidationErrors
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &verr),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidRatio),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrUnknownBucket),
		errors.Is(err, core.ErrDescriptionSize),
		errors.Is(err, errRatiosSum):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracker.ErrExpenseNotFound):
		return http.StatusNotFound
	case errors.Is(err, sheets.ErrNotConfigured):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {"error": ...}. Server errors are logged and their text
// is not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Fields = make(map[string]string, len(verr))
		for _, fe := range verr {
			body.Fields[fe.Field()] = fieldMessage(fe)
		}
	}
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "is too long (max " + fe.Param() + ")"
	case "expense_date":
		return "must be a date like 2006-01-02"
	case "amount":
		return "must be a non-negative amount like 12.50 or 12,50"
	case "month_key":
		return "must be a month like 2006-01"
	case "bucket":
		return "must be one of 50, 30, 20, Needs, Wants, Savings"
	case "ratio":
		return "must be a number between 0 and 1"
	default:
		return "is invalid"
	}
}

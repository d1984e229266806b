package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/auth"
	"github.com/sells-group/tailorreach/internal/drafting"
	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/onboarding"
	"github.com/sells-group/tailorreach/internal/runlock"
	"github.com/sells-group/tailorreach/internal/scoring"
	"github.com/sells-group/tailorreach/internal/store"
)

// maxBody caps request bodies; chat histories are the largest payloads.
const maxBody = 4 << 20

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = eris.New("api: bad request")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

// writeError maps err onto a status code. Client errors carry the error
// text; server errors carry a generic message and are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalid),
		errors.Is(err, scoring.ErrEmptyResults),
		errors.Is(err, onboarding.ErrMissingFields),
		errors.Is(err, onboarding.ErrInvalidStyle),
		errors.Is(err, onboarding.ErrNoMessages):
		return http.StatusBadRequest, clientMessage(err)
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, scoring.ErrNoCustomers):
		return http.StatusNotFound, "No customers found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, runlock.ErrLocked):
		return http.StatusConflict, "A scoring run for this item is already in progress"
	case errors.Is(err, drafting.ErrProfile):
		return http.StatusInternalServerError, "Failed to fetch user data"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// clientMessage drops the sentinel suffix from a wrapped validation error.
func clientMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{errBadRequest, model.ErrInvalid} {
		msg = strings.TrimSuffix(msg, ": "+sentinel.Error())
	}
	return msg
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return eris.Wrap(errBadRequest, "request body is required")
		}
		return eris.Wrapf(errBadRequest, "invalid request body: %v", err)
	}
	return nil
}

func errBadRequestf(format string, args ...any) error {
	return eris.Wrapf(errBadRequest, format, args...)
}

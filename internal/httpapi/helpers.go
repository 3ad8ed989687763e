package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response body failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, clientMsg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(clientMsg, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": clientMsg})
}

// statusFor maps pkg/errors' typed errors onto the status codes spec.md's
// pipeline endpoints document (200/202/404/500), generalized to the rest
// of the REST surface.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var notFound *gobbyerrors.NotFoundError
	if gobbyerrors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var approval *gobbyerrors.ApprovalRequiredError
	if gobbyerrors.As(err, &approval) {
		return http.StatusAccepted
	}
	var conflict *gobbyerrors.ConflictError
	if gobbyerrors.As(err, &conflict) {
		return http.StatusConflict
	}
	var validation *gobbyerrors.ValidationError
	if gobbyerrors.As(err, &validation) {
		return http.StatusBadRequest
	}
	var depth *gobbyerrors.DepthExceededError
	if gobbyerrors.As(err, &depth) {
		return http.StatusBadRequest
	}
	var uncommitted *gobbyerrors.UncommittedChangesError
	if gobbyerrors.As(err, &uncommitted) {
		return http.StatusConflict
	}
	var timeout *gobbyerrors.TimeoutError
	if gobbyerrors.As(err, &timeout) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func notFoundErr(resource, id string) error {
	return gobbyerrors.NewNotFoundError(resource, id)
}

func validationErr(field, message string) error {
	return gobbyerrors.NewValidationError(field, message, "")
}

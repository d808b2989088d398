package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body and runs the struct's validate tags.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	if err := validate.Struct(v); err != nil {
		return errors.Wrap(err, "invalid request")
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDanglingReference):
		return http.StatusConflict, "dangling_reference"
	case errors.Is(err, domain.ErrStructural):
		return http.StatusUnprocessableEntity, "structural"
	case errors.Is(err, domain.ErrUnknownRule):
		return http.StatusUnprocessableEntity, "unknown_rule"
	case errors.Is(err, domain.ErrQuery):
		return http.StatusBadRequest, "query"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, ""
}

func writeDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, kind := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

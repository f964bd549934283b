// Package httpx holds the JSON request/response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/apperr"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 1 << 20

var validate = validator.New()

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error from the service layer to an HTTP status.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyEnrolled), errors.Is(err, apperr.ErrMobileTaken):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidRole), errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs err and writes a JSON error body. Internal errors are not
// echoed to the client.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Errorw("request failed", "err", err)
		msg = "internal error"
		if errors.Is(err, apperr.ErrHierarchyCycle) {
			msg = "hierarchy integrity error"
		}
	} else {
		logger.Debugw("request rejected", "status", status, "err", err)
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// Decode reads at most MaxBodyBytes of JSON body into v and runs struct
// validation on it.
func Decode(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, apperr.ErrInvalidArgument)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrInvalidArgument)
	}
	return nil
}

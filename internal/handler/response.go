package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"mivoto/internal/middleware"
	apperrors "mivoto/pkg/errors"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 64 << 10

func respondJSON(w http.ResponseWriter, status int, data interface{}, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError renders err. Errors that are not AppErrors become 500s with
// a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error, log *zap.Logger) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("Internal server error", err)
	}
	middleware.WriteError(w, r, appErr, log)
}

// decodeJSON reads a JSON body into dest
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError(fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
		}
		return apperrors.NewValidationError("Invalid request body", map[string]interface{}{"cause": err.Error()})
	}
	return nil
}

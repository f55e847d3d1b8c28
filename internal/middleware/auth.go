package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mivoto/pkg/errors"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// InternalAuth guards operator endpoints with a static bearer token. An
// empty token leaves the endpoints open, which config only allows outside
// production.
func InternalAuth(token string, logger *zap.Logger) func(http.Handler) http.Handler {
	if token == "" {
		logger.Warn("INTERNAL_API_TOKEN not set, internal endpoints are unauthenticated")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, r, errors.NewAuthenticationError("Authorization header is required"), logger)
				return
			}

			presented, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || presented == "" {
				WriteError(w, r, errors.NewAuthenticationError("Invalid authorization header format"), logger)
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				WriteError(w, r, errors.NewAuthenticationError("Invalid internal token"), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetRequestID returns the request ID stored by RequestID
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// WriteError renders appErr as the standard error body
func WriteError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *zap.Logger) {
	requestID := GetRequestID(r.Context())

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("type", string(appErr.Type)),
		zap.Int("status", appErr.StatusCode),
		zap.String("path", r.URL.Path),
	}
	if appErr.Internal != nil {
		fields = append(fields, zap.Error(appErr.Internal))
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error(appErr.Message, fields...)
	} else {
		logger.Info(appErr.Message, fields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := errors.NewErrorResponse(appErr, requestID, time.Now().UTC().Format(time.RFC3339))
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}
}

package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mivoto/internal/container"
	"mivoto/internal/service/identity"
	"mivoto/pkg/errors"
)

// AuthHandler trades OAuth authorization codes for identity assertions
type AuthHandler struct {
	exchanger identity.CodeExchanger
	log       *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(container *container.Container) *AuthHandler {
	return &AuthHandler{
		exchanger: container.Exchanger,
		log:       container.GetLogger().Component("auth"),
	}
}

// CallbackRequest carries the authorization code returned by the provider
type CallbackRequest struct {
	Code string `json:"code"`
}

// CallbackResponse carries the identity assertion for eligibility requests
type CallbackResponse struct {
	IDToken string `json:"idToken"`
}

// Callback handles POST /api/auth/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, h.log)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondError(w, r, errors.NewValidationError("Authorization code is required", nil), h.log)
		return
	}

	idToken, err := h.exchanger.Exchange(r.Context(), req.Code)
	if err != nil {
		respondError(w, r, errors.NewEligibilityError("Authorization code could not be exchanged", err), h.log)
		return
	}

	respondJSON(w, http.StatusOK, CallbackResponse{IDToken: idToken}, h.log)
}

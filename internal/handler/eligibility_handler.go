package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mivoto/internal/container"
	"mivoto/internal/domain"
	"mivoto/internal/service"
	"mivoto/pkg/errors"
)

type EligibilityHandler struct {
	eligibility service.EligibilityService
	log         *zap.Logger
}

func NewEligibilityHandler(container *container.Container) *EligibilityHandler {
	return &EligibilityHandler{
		eligibility: container.Services.Eligibility,
		log:         container.GetLogger().Component("eligibility-handler"),
	}
}

// Issue handles POST /api/eligibility
func (h *EligibilityHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, h.log)
		return
	}
	if strings.TrimSpace(req.IdentityAssertion) == "" {
		respondError(w, r, errors.NewValidationError("idToken is required", nil), h.log)
		return
	}

	cred, err := h.eligibility.IssueEligibility(r.Context(), req)
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}

	respondJSON(w, http.StatusCreated, cred, h.log)
}

package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mivoto/internal/container"
	"mivoto/internal/domain"
	"mivoto/internal/service"
	"mivoto/pkg/errors"
)

// maxStatusSubjects bounds one vote-status query
const maxStatusSubjects = 100

type VotingHandler struct {
	voting service.VotingService
	log    *zap.Logger
}

func NewVotingHandler(container *container.Container) *VotingHandler {
	return &VotingHandler{
		voting: container.Services.Voting,
		log:    container.GetLogger().Component("voting-handler"),
	}
}

// CastVote handles POST /api/votes/cast
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req domain.CastVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, h.log)
		return
	}
	if err := validateCastVoteRequest(&req); err != nil {
		respondError(w, r, err, h.log)
		return
	}

	result, err := h.voting.CastVote(r.Context(), req)
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}

	respondJSON(w, http.StatusAccepted, result, h.log)
}

// VerifyReceipt handles GET /api/votes/{receipt}/verify
func (h *VotingHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	verification, err := h.voting.VerifyReceipt(r.Context(), chi.URLParam(r, "receipt"))
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}

	respondJSON(w, http.StatusOK, verification, h.log)
}

// VoteStatus handles GET /internal/vote-status?subjects=a,b
func (h *VotingHandler) VoteStatus(w http.ResponseWriter, r *http.Request) {
	var subjects []string
	for _, s := range strings.Split(r.URL.Query().Get("subjects"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	if len(subjects) == 0 {
		respondError(w, r, errors.NewValidationError("subjects query parameter is required", nil), h.log)
		return
	}
	if len(subjects) > maxStatusSubjects {
		respondError(w, r, errors.NewValidationError("Too many subjects", map[string]interface{}{"max": maxStatusSubjects}), h.log)
		return
	}

	statuses, err := h.voting.VoteStatus(r.Context(), subjects)
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"statuses": statuses}, h.log)
}

func validateCastVoteRequest(req *domain.CastVoteRequest) error {
	details := map[string]interface{}{}
	if strings.TrimSpace(req.BallotID) == "" {
		details["ballotId"] = "required"
	}
	if strings.TrimSpace(req.EligibilityToken) == "" {
		details["eligibilityToken"] = "required"
	}
	if strings.TrimSpace(req.Selection.InstitutionID) == "" {
		details["selection.institutionId"] = "required"
	}
	if len(req.Selection.CandidateIDs) == 0 {
		details["selection.candidateIds"] = "required"
	}
	if len(details) > 0 {
		return errors.NewValidationError("Invalid vote request", details)
	}
	return nil
}

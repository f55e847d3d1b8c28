package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mivoto/internal/container"
	"mivoto/internal/service"
)

// BallotHandler serves ballots, tallies and final results
type BallotHandler struct {
	ballots service.BallotService
	tally   service.TallyService
	log     *zap.Logger
}

func NewBallotHandler(container *container.Container) *BallotHandler {
	return &BallotHandler{
		ballots: container.Services.Ballots,
		tally:   container.Services.Tally,
		log:     container.GetLogger().Component("ballot-handler"),
	}
}

// List handles GET /api/ballots
func (h *BallotHandler) List(w http.ResponseWriter, r *http.Request) {
	ballots, err := h.ballots.ListBallots(r.Context())
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ballots": ballots}, h.log)
}

// Get handles GET /api/ballots/{id}
func (h *BallotHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.ballots.GetBallotDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}
	respondJSON(w, http.StatusOK, detail, h.log)
}

// Tally handles GET /api/ballots/{id}/tally
func (h *BallotHandler) Tally(w http.ResponseWriter, r *http.Request) {
	tally, err := h.tally.Tally(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=10")
	respondJSON(w, http.StatusOK, tally, h.log)
}

// Finalize handles POST /api/ballots/{id}/finalize
func (h *BallotHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	result, err := h.tally.FinalizeBallot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}
	respondJSON(w, http.StatusOK, result, h.log)
}

// Result handles GET /api/ballots/{id}/result
func (h *BallotHandler) Result(w http.ResponseWriter, r *http.Request) {
	result, err := h.tally.GetFinalResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}
	respondJSON(w, http.StatusOK, result, h.log)
}

// VerifyResult handles GET /api/ballots/{id}/result/verify
func (h *BallotHandler) VerifyResult(w http.ResponseWriter, r *http.Request) {
	verification, err := h.tally.VerifyResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, h.log)
		return
	}
	respondJSON(w, http.StatusOK, verification, h.log)
}

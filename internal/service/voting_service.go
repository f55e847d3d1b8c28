package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mivoto/internal/domain"
	"mivoto/internal/ledger"
	"mivoto/internal/repository"
	apperrors "mivoto/pkg/errors"
	"mivoto/pkg/hashing"
)

// VoteCastingEngine validates selections against credentials, anchors votes
// on the ledger and records them
type VoteCastingEngine struct {
	ballots     BallotService
	candidates  repository.CandidateRepository
	eligibility repository.EligibilityRepository
	votes       repository.VoteRecordRepository
	credentials EligibilityService
	hasher      *hashing.Hasher
	gateway     *ledger.Gateway
	cache       *CacheService
	audit       *AuditService
	logger      *zap.Logger
	now         func() time.Time
}

// NewVotingService wires the vote casting engine
func NewVotingService(
	ballots BallotService,
	repos *repository.Repositories,
	credentials EligibilityService,
	hasher *hashing.Hasher,
	gateway *ledger.Gateway,
	cache *CacheService,
	audit *AuditService,
	logger *zap.Logger,
) *VoteCastingEngine {
	return &VoteCastingEngine{
		ballots:     ballots,
		candidates:  repos.Candidates,
		eligibility: repos.Eligibility,
		votes:       repos.Votes,
		credentials: credentials,
		hasher:      hasher,
		gateway:     gateway,
		cache:       cache,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source
func (s *VoteCastingEngine) WithClock(now func() time.Time) *VoteCastingEngine {
	s.now = now
	return s
}

// CastVote spends a credential on a ballot. Nothing is written unless the
// ledger accepted the vote, so a failed cast can be retried with the same
// credential.
func (s *VoteCastingEngine) CastVote(ctx context.Context, req domain.CastVoteRequest) (*domain.CastVoteResult, error) {
	ballot, err := s.ballots.GetBallot(ctx, strings.TrimSpace(req.BallotID))
	if err != nil {
		return nil, err
	}
	if !ballot.IsOpen(s.now()) {
		return nil, apperrors.NewVotingError("Ballot is not open", domain.ErrBallotNotOpen)
	}

	decoded, err := s.credentials.DecodeToken(req.EligibilityToken)
	if err != nil {
		return nil, err
	}

	tokenHash := s.hasher.HashToken(decoded.RawSecret, decoded.Salt)
	eligibility, err := s.eligibility.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to look up eligibility", err)
	}
	if eligibility == nil || !eligibility.IsActive() {
		return nil, apperrors.NewEligibilityError("Credential is not recognized or no longer active", domain.ErrCredentialNotActive)
	}
	if eligibility.WalletAddress == "" {
		return nil, apperrors.NewEligibilityError("Credential has no wallet bound", domain.ErrInvalidWallet)
	}

	log := s.logger.With(
		zap.String("ballot_id", ballot.ID),
		zap.String("eligibility_id", eligibility.ID))

	voted, err := s.votes.ExistsByBallotIDAndSubjectHash(ctx, ballot.ID, eligibility.SubjectHash)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to check vote status", err)
	}
	if voted {
		return nil, apperrors.NewVotingError("Already voted on this ballot", domain.ErrAlreadyVoted)
	}

	acquired, release := s.cache.AcquireCastLock(ctx, tokenHash)
	if !acquired {
		return nil, apperrors.NewVotingError("A vote with this credential is already being processed", domain.ErrCastInProgress)
	}
	defer release()

	selection, err := s.canonicalSelection(ctx, ballot, req.Selection)
	if err != nil {
		return nil, err
	}

	numericID, err := ballot.NumericID()
	if err != nil {
		return nil, apperrors.NewVotingError(fmt.Sprintf("Ballot %s cannot be anchored on the ledger", ballot.ID), err)
	}

	voteHash, err := s.hasher.HashVotePayload(ballot.ID, hashing.VotePayload{
		InstitutionID: selection.InstitutionID,
		CandidateIDs:  selection.CandidateIDs,
	})
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to fingerprint vote", err)
	}
	castAt := s.now().UTC()
	receipt := s.hasher.DeriveReceipt(ballot.ID, voteHash, castAt)

	tx, err := s.gateway.CastVote(ctx, numericID, tokenHash, voteHash, receipt).Wait(ctx)
	if err != nil {
		log.Warn("Ledger did not accept vote", zap.Error(err))
		return nil, castFailure(err)
	}

	if err := s.eligibility.MarkConsumed(ctx, tokenHash); err != nil {
		log.Error("Failed to consume eligibility after ledger cast",
			zap.String("tx_hash", tx.TxHash),
			zap.Error(err))
	}

	var sbtTokenID *string
	if id, ok := s.gateway.ExtractSBTTokenID(tx, receipt); ok {
		sbtTokenID = &id
	}

	record := &domain.VoteRecord{
		ID:            uuid.NewString(),
		BallotID:      ballot.ID,
		InstitutionID: selection.InstitutionID,
		CandidateIDs:  selection.CandidateIDs,
		VoteHash:      voteHash,
		TokenHash:     tokenHash,
		SubjectHash:   eligibility.SubjectHash,
		Receipt:       receipt,
		TxHash:        tx.TxHash,
		SBTTokenID:    sbtTokenID,
		CreatedAt:     castAt,
	}
	if err := s.votes.Save(ctx, record); err != nil {
		if errors.Is(err, domain.ErrAlreadyVoted) {
			return nil, apperrors.NewVotingError("Already voted on this ballot", err)
		}
		log.Error("Failed to persist vote after ledger cast",
			zap.String("tx_hash", tx.TxHash),
			zap.Error(err))
		return nil, apperrors.NewInternalError("Failed to record vote", err)
	}

	s.audit.Record(ctx, domain.ActorVotingService, domain.AuditVoteCast, map[string]string{
		"ballotId": ballot.ID,
		"receipt":  receipt,
		"txHash":   tx.TxHash,
	})
	s.cache.Invalidate(ctx, s.cache.Keys().KeyTally(ballot.ID))

	log.Info("Vote cast", zap.String("receipt", receipt), zap.String("tx_hash", tx.TxHash))

	return &domain.CastVoteResult{Receipt: receipt, TxHash: tx.TxHash, SBTTokenID: sbtTokenID}, nil
}

// canonicalSelection checks the selection against the ballot and returns it
// in ballot candidate order without duplicates
func (s *VoteCastingEngine) canonicalSelection(ctx context.Context, ballot *domain.Ballot, sel domain.Selection) (*domain.Selection, error) {
	institutionID := strings.TrimSpace(sel.InstitutionID)
	if institutionID != ballot.InstitutionID {
		return nil, apperrors.NewVotingError(
			fmt.Sprintf("Institution %s does not match ballot %s", institutionID, ballot.ID),
			domain.ErrInstitutionMismatch)
	}

	chosen := make(map[string]struct{}, len(sel.CandidateIDs))
	for _, id := range sel.CandidateIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !ballot.HasCandidate(id) {
			return nil, apperrors.NewVotingError(
				fmt.Sprintf("Candidate %s is not part of ballot %s", id, ballot.ID),
				domain.ErrCandidateNotOnBallot)
		}
		chosen[id] = struct{}{}
	}

	if len(chosen) == 0 {
		return nil, apperrors.NewVotingError("At least one candidate must be selected", domain.ErrEmptySelection)
	}
	if !ballot.AllowMultipleSelection && len(chosen) > 1 {
		return nil, apperrors.NewVotingError("Ballot allows a single candidate only", domain.ErrMultipleSelection)
	}

	ordered := make([]string, 0, len(chosen))
	for _, id := range ballot.CandidateIDs {
		if _, ok := chosen[id]; ok {
			ordered = append(ordered, id)
		}
	}

	found, err := s.candidates.FindByIDs(ctx, ordered)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to load candidates", err)
	}
	for _, id := range ordered {
		c, ok := found[id]
		if !ok || !c.Active || c.InstitutionID != ballot.InstitutionID {
			return nil, apperrors.NewVotingError(
				fmt.Sprintf("Candidate %s is not eligible", id),
				domain.ErrCandidateInvalid)
		}
	}

	return &domain.Selection{InstitutionID: institutionID, CandidateIDs: ordered}, nil
}

// castFailure classifies a ledger error. A spent or unknown token is a
// voting error; everything else is a ledger error.
func castFailure(err error) error {
	switch {
	case errors.Is(err, ledger.ErrTokenAlreadyUsed):
		return apperrors.NewVotingError("Credential was already spent on the ledger", err)
	case errors.Is(err, ledger.ErrTokenNotIssued):
		return apperrors.NewVotingError("Credential is not registered on the ledger", err)
	case errors.Is(err, ledger.ErrRejected):
		return apperrors.NewVotingError("Ledger rejected the vote", err)
	default:
		return apperrors.NewLedgerError("Failed to submit vote to ledger", err, ledger.IsRetryable(err))
	}
}

func (s *VoteCastingEngine) VerifyReceipt(ctx context.Context, receipt string) (*domain.ReceiptVerification, error) {
	receipt = strings.TrimSpace(receipt)
	if receipt == "" {
		return nil, apperrors.NewValidationError("Receipt is required", nil)
	}

	record, err := s.votes.FindByReceipt(ctx, receipt)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to look up receipt", err)
	}

	onChain, err := s.gateway.IsReceiptRegistered(ctx, receipt)
	if err != nil {
		s.logger.Warn("Ledger receipt lookup failed", zap.String("receipt", receipt), zap.Error(err))
		onChain = false
	}

	result := &domain.ReceiptVerification{
		Receipt:  receipt,
		BallotID: domain.UnknownBallot,
		OnChain:  onChain,
		OffChain: record != nil,
	}
	if record != nil {
		result.BallotID = record.BallotID
		result.TxHash = record.TxHash
	}
	return result, nil
}

// VoteStatus reports, per raw subject, whether any vote was recorded
func (s *VoteCastingEngine) VoteStatus(ctx context.Context, subjects []string) ([]domain.SubjectVoteStatus, error) {
	statuses := make([]domain.SubjectVoteStatus, 0, len(subjects))
	for _, subject := range subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		voted, err := s.votes.ExistsBySubjectHash(ctx, s.hasher.HashSubject(subject))
		if err != nil {
			return nil, apperrors.NewInternalError("Failed to check vote status", err)
		}
		statuses = append(statuses, domain.SubjectVoteStatus{Subject: subject, HasVoted: voted})
	}
	return statuses, nil
}

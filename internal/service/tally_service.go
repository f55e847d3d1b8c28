package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mivoto/internal/domain"
	"mivoto/internal/repository"
	apperrors "mivoto/pkg/errors"
	"mivoto/pkg/hashing"
	"mivoto/pkg/redis"
)

// TallyEngine computes live tallies and the final result of closed ballots
type TallyEngine struct {
	ballots    BallotService
	candidates repository.CandidateRepository
	votes      repository.VoteRecordRepository
	results    repository.BallotResultRepository
	hasher     *hashing.Hasher
	cache      *CacheService
	audit      *AuditService
	logger     *zap.Logger
	now        func() time.Time
}

// NewTallyService wires the tally engine
func NewTallyService(
	ballots BallotService,
	repos *repository.Repositories,
	hasher *hashing.Hasher,
	cache *CacheService,
	audit *AuditService,
	logger *zap.Logger,
) *TallyEngine {
	return &TallyEngine{
		ballots:    ballots,
		candidates: repos.Candidates,
		votes:      repos.Votes,
		results:    repos.Results,
		hasher:     hasher,
		cache:      cache,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source
func (s *TallyEngine) WithClock(now func() time.Time) *TallyEngine {
	s.now = now
	return s
}

// Tally returns the live count for every ballot candidate. It is safe to
// call while the ballot is open.
func (s *TallyEngine) Tally(ctx context.Context, ballotID string) (*domain.Tally, error) {
	key := s.cache.Keys().KeyTally(ballotID)

	var cached domain.Tally
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	ballot, err := s.ballots.GetBallot(ctx, ballotID)
	if err != nil {
		return nil, err
	}

	counts, err := s.countVotes(ctx, ballot)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries(ctx, ballot, counts)
	if err != nil {
		return nil, err
	}

	tally := &domain.Tally{
		BallotID:   ballot.ID,
		Entries:    entries,
		ComputedAt: s.now().UTC(),
	}
	s.cache.SetJSON(ctx, key, tally, redis.TTLTally)
	return tally, nil
}

// entries orders counts by ballot candidate order and attaches candidate
// names. Counted candidates missing from the ballot follow, sorted by id.
func (s *TallyEngine) entries(ctx context.Context, ballot *domain.Ballot, counts map[string]int64) ([]domain.TallyEntry, error) {
	ids := append([]string(nil), ballot.CandidateIDs...)
	var extra []string
	for id := range counts {
		if !ballot.HasCandidate(id) {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	ids = append(ids, extra...)

	found, err := s.candidates.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to load candidates", err)
	}

	entries := make([]domain.TallyEntry, 0, len(ids))
	for _, id := range ids {
		entry := domain.TallyEntry{CandidateID: id, Votes: counts[id]}
		if c, ok := found[id]; ok {
			entry.DisplayName = c.DisplayName
			entry.ListName = c.ListName
			entry.InstitutionID = c.InstitutionID
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// countVotes returns counts for every ballot candidate, zero when absent
func (s *TallyEngine) countVotes(ctx context.Context, ballot *domain.Ballot) (map[string]int64, error) {
	raw, err := s.votes.TallyByBallot(ctx, ballot.ID)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to count votes", err)
	}

	counts := make(map[string]int64, len(ballot.CandidateIDs))
	for _, id := range ballot.CandidateIDs {
		counts[id] = raw[id]
	}
	for id, n := range raw {
		if _, ok := counts[id]; !ok {
			s.logger.Warn("Votes recorded for candidate not on ballot",
				zap.String("ballot_id", ballot.ID),
				zap.String("candidate_id", id),
				zap.Int64("votes", n))
		}
	}
	return counts, nil
}

// FinalizeBallot writes the single authoritative result of a closed ballot.
// Calling it again returns the stored snapshot unchanged.
func (s *TallyEngine) FinalizeBallot(ctx context.Context, ballotID string) (*domain.BallotResultView, error) {
	ballot, err := s.ballots.GetBallot(ctx, ballotID)
	if err != nil {
		return nil, err
	}
	if ballot.IsOpen(s.now()) {
		return nil, apperrors.NewVotingError("Ballot is still open", domain.ErrBallotStillOpen)
	}

	existing, err := s.results.FindByBallotID(ctx, ballot.ID)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to load result", err)
	}
	if existing != nil {
		return s.resultView(ctx, ballot, existing)
	}

	counts, err := s.countVotes(ctx, ballot)
	if err != nil {
		return nil, err
	}

	// checksum covers millisecond precision only
	computedAt := s.now().UTC().Truncate(time.Millisecond)
	checksum, err := s.hasher.HashTally(ballot.ID, counts, computedAt)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to checksum result", err)
	}

	result := &domain.BallotResult{
		ID:             uuid.NewString(),
		BallotID:       ballot.ID,
		InstitutionID:  ballot.InstitutionID,
		CandidateVotes: counts,
		ComputedAt:     computedAt,
		Checksum:       checksum,
	}

	if err := s.results.Save(ctx, result); err != nil {
		if errors.Is(err, repository.ErrResultExists) {
			s.logger.Info("Ballot finalized concurrently, returning stored result", zap.String("ballot_id", ballot.ID))
			stored, findErr := s.results.FindByBallotID(ctx, ballot.ID)
			if findErr != nil || stored == nil {
				return nil, apperrors.NewInternalError("Failed to load result", findErr)
			}
			return s.resultView(ctx, ballot, stored)
		}
		return nil, apperrors.NewInternalError("Failed to store result", err)
	}

	s.audit.Record(ctx, domain.ActorTallyService, domain.AuditBallotFinalized, map[string]string{
		"ballotId": ballot.ID,
		"resultId": result.ID,
		"checksum": checksum,
	})

	keys := s.cache.Keys()
	s.cache.SetJSON(ctx, keys.KeyResult(ballot.ID), result, redis.TTLResult)
	s.cache.Invalidate(ctx, keys.KeyTally(ballot.ID))

	s.logger.Info("Ballot finalized",
		zap.String("ballot_id", ballot.ID),
		zap.String("result_id", result.ID),
		zap.String("checksum", checksum))

	return s.resultView(ctx, ballot, result)
}

// GetFinalResult returns the finalized result or a not-found error
func (s *TallyEngine) GetFinalResult(ctx context.Context, ballotID string) (*domain.BallotResultView, error) {
	result, err := s.storedResult(ctx, ballotID)
	if err != nil {
		return nil, err
	}

	ballot, err := s.ballots.GetBallot(ctx, result.BallotID)
	if err != nil {
		return nil, err
	}
	return s.resultView(ctx, ballot, result)
}

func (s *TallyEngine) resultView(ctx context.Context, ballot *domain.Ballot, result *domain.BallotResult) (*domain.BallotResultView, error) {
	entries, err := s.entries(ctx, ballot, result.CandidateVotes)
	if err != nil {
		return nil, err
	}

	return &domain.BallotResultView{
		ResultID:       result.ID,
		BallotID:       result.BallotID,
		InstitutionID:  result.InstitutionID,
		Entries:        entries,
		CandidateVotes: result.CandidateVotes,
		ComputedAt:     result.ComputedAt,
		Checksum:       result.Checksum,
		FinalResult:    true,
	}, nil
}

// storedResult reads the snapshot through the cache
func (s *TallyEngine) storedResult(ctx context.Context, ballotID string) (*domain.BallotResult, error) {
	key := s.cache.Keys().KeyResult(ballotID)

	var cached domain.BallotResult
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	result, err := s.results.FindByBallotID(ctx, ballotID)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to load result", err)
	}
	if result == nil {
		notFound := apperrors.NewNotFoundError(fmt.Sprintf("Ballot %s has not been finalized", ballotID))
		notFound.Internal = domain.ErrResultNotFound
		return nil, notFound
	}

	s.cache.SetJSON(ctx, key, result, redis.TTLResult)
	return result, nil
}

// VerifyResult recomputes the checksum of the stored snapshot
func (s *TallyEngine) VerifyResult(ctx context.Context, ballotID string) (*domain.ResultVerification, error) {
	result, err := s.storedResult(ctx, ballotID)
	if err != nil {
		return nil, err
	}

	computed, err := s.hasher.HashTally(result.BallotID, result.CandidateVotes, result.ComputedAt)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to checksum result", err)
	}

	return &domain.ResultVerification{
		BallotID:         result.BallotID,
		StoredChecksum:   result.Checksum,
		ComputedChecksum: computed,
		Valid:            computed == result.Checksum,
	}, nil
}

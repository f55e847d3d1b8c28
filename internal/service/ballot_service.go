package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mivoto/internal/domain"
	"mivoto/internal/repository"
	"mivoto/pkg/errors"
	"mivoto/pkg/redis"
)

// BallotCatalog serves ballots with a read-through cache
type BallotCatalog struct {
	ballots      repository.BallotRepository
	candidates   repository.CandidateRepository
	institutions repository.InstitutionRepository
	cache        *CacheService
	logger       *zap.Logger
	now          func() time.Time
}

// NewBallotService creates the read-only ballot service
func NewBallotService(repos *repository.Repositories, cache *CacheService, logger *zap.Logger) *BallotCatalog {
	return &BallotCatalog{
		ballots:      repos.Ballots,
		candidates:   repos.Candidates,
		institutions: repos.Institutions,
		cache:        cache,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source
func (s *BallotCatalog) WithClock(now func() time.Time) *BallotCatalog {
	s.now = now
	return s
}

// GetBallot returns the ballot or a not-found error
func (s *BallotCatalog) GetBallot(ctx context.Context, ballotID string) (*domain.Ballot, error) {
	key := s.cache.Keys().KeyBallotByID(ballotID)

	var cached domain.Ballot
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	ballot, err := s.ballots.FindByID(ctx, ballotID)
	if err != nil {
		return nil, errors.NewInternalError("Failed to load ballot", err)
	}
	if ballot == nil {
		return nil, ballotNotFound(ballotID)
	}

	s.cache.SetJSON(ctx, key, ballot, redis.TTLBallot)
	return ballot, nil
}

func (s *BallotCatalog) GetBallotDetail(ctx context.Context, ballotID string) (*domain.BallotDetail, error) {
	ballot, err := s.GetBallot(ctx, ballotID)
	if err != nil {
		return nil, err
	}

	institution, err := s.institutions.FindByID(ctx, ballot.InstitutionID)
	if err != nil {
		return nil, errors.NewInternalError("Failed to load institution", err)
	}

	found, err := s.candidates.FindByIDs(ctx, ballot.CandidateIDs)
	if err != nil {
		return nil, errors.NewInternalError("Failed to load candidates", err)
	}

	candidates := make([]domain.Candidate, 0, len(ballot.CandidateIDs))
	for _, id := range ballot.CandidateIDs {
		if c, ok := found[id]; ok {
			candidates = append(candidates, *c)
		} else {
			s.logger.Warn("Ballot references unknown candidate",
				zap.String("ballot_id", ballot.ID),
				zap.String("candidate_id", id))
		}
	}

	return &domain.BallotDetail{
		BallotView:  domain.BallotView{Ballot: *ballot, IsOpen: ballot.IsOpen(s.now())},
		Institution: institution,
		Candidates:  candidates,
	}, nil
}

func (s *BallotCatalog) ListBallots(ctx context.Context) ([]domain.BallotView, error) {
	key := s.cache.Keys().KeyBallotsAll()

	var ballots []*domain.Ballot
	if !s.cache.GetJSON(ctx, key, &ballots) {
		var err error
		ballots, err = s.ballots.List(ctx)
		if err != nil {
			return nil, errors.NewInternalError("Failed to list ballots", err)
		}
		s.cache.SetJSON(ctx, key, ballots, redis.TTLBallots)
	}

	now := s.now()
	views := make([]domain.BallotView, 0, len(ballots))
	for _, b := range ballots {
		views = append(views, domain.BallotView{Ballot: *b, IsOpen: b.IsOpen(now)})
	}
	return views, nil
}

func ballotNotFound(ballotID string) error {
	err := errors.NewNotFoundError(fmt.Sprintf("Ballot %s not found", ballotID))
	err.Internal = domain.ErrBallotNotFound
	return err
}

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mivoto/internal/domain"
)

func TestMemoryEligibilityRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEligibilityRepository()

	e := &domain.VoterEligibility{
		ID:          "e-1",
		SubjectHash: "subject-hash",
		TokenHash:   "token-hash",
		Status:      domain.EligibilityActive,
		IssuedAt:    time.Now(),
	}
	require.NoError(t, repo.Save(ctx, e))

	active, err := repo.FindActiveBySubjectHash(ctx, "subject-hash")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "e-1", active.ID)

	require.NoError(t, repo.MarkConsumed(ctx, "token-hash"))
	require.NoError(t, repo.MarkConsumed(ctx, "token-hash"), "consuming twice is a no-op")

	active, err = repo.FindActiveBySubjectHash(ctx, "subject-hash")
	require.NoError(t, err)
	assert.Nil(t, active)

	byToken, err := repo.FindByTokenHash(ctx, "token-hash")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, domain.EligibilityConsumed, byToken.Status)

	missing, err := repo.FindByTokenHash(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryEligibilityRepository_OneActivePerSubject(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEligibilityRepository()

	require.NoError(t, repo.Save(ctx, &domain.VoterEligibility{SubjectHash: "s", TokenHash: "t-1", Status: domain.EligibilityActive}))
	err := repo.Save(ctx, &domain.VoterEligibility{SubjectHash: "s", TokenHash: "t-2", Status: domain.EligibilityActive})
	assert.ErrorIs(t, err, ErrActiveEligibilityExists)

	require.NoError(t, repo.MarkConsumed(ctx, "t-1"))
	require.NoError(t, repo.Save(ctx, &domain.VoterEligibility{SubjectHash: "s", TokenHash: "t-2", Status: domain.EligibilityActive}))
}

func TestMemoryEligibilityRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEligibilityRepository()
	require.NoError(t, repo.Save(ctx, &domain.VoterEligibility{TokenHash: "t", Status: domain.EligibilityActive}))

	found, err := repo.FindByTokenHash(ctx, "t")
	require.NoError(t, err)
	found.Status = domain.EligibilityConsumed

	again, err := repo.FindByTokenHash(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityActive, again.Status)
}

func TestMemoryVoteRecordRepository_OneVotePerSubject(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVoteRecordRepository()

	first := &domain.VoteRecord{BallotID: "1", SubjectHash: "s", Receipt: "r-1", CandidateIDs: []string{"cand-1"}}
	require.NoError(t, repo.Save(ctx, first))

	second := &domain.VoteRecord{BallotID: "1", SubjectHash: "s", Receipt: "r-2", CandidateIDs: []string{"cand-2"}}
	assert.ErrorIs(t, repo.Save(ctx, second), domain.ErrAlreadyVoted)

	otherBallot := &domain.VoteRecord{BallotID: "2", SubjectHash: "s", Receipt: "r-3", CandidateIDs: []string{"cand-9"}}
	require.NoError(t, repo.Save(ctx, otherBallot))

	exists, err := repo.ExistsByBallotIDAndSubjectHash(ctx, "1", "s")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByBallotIDAndSubjectHash(ctx, "3", "s")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsBySubjectHash(ctx, "s")
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := repo.FindByReceipt(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "1", found.BallotID)

	notFound, err := repo.FindByReceipt(ctx, "r-2")
	require.NoError(t, err)
	assert.Nil(t, notFound)
}

func TestMemoryVoteRecordRepository_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVoteRecordRepository()

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Save(ctx, &domain.VoteRecord{
				BallotID:     "1",
				SubjectHash:  "same-subject",
				Receipt:      fmt.Sprintf("r-%d", i),
				CandidateIDs: []string{"cand-1"},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, repo.Count())
}

func TestMemoryVoteRecordRepository_TallyByBallot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVoteRecordRepository()

	require.NoError(t, repo.Save(ctx, &domain.VoteRecord{BallotID: "1", SubjectHash: "a", Receipt: "1", CandidateIDs: []string{"cand-1", "cand-2"}}))
	require.NoError(t, repo.Save(ctx, &domain.VoteRecord{BallotID: "1", SubjectHash: "b", Receipt: "2", CandidateIDs: []string{"cand-1"}}))
	require.NoError(t, repo.Save(ctx, &domain.VoteRecord{BallotID: "2", SubjectHash: "a", Receipt: "3", CandidateIDs: []string{"cand-9"}}))

	counts, err := repo.TallyByBallot(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"cand-1": 2, "cand-2": 1}, counts)
}

func TestMemoryCatalog(t *testing.T) {
	ctx := context.Background()
	catalog := NewMemoryCatalog()
	catalog.PutBallot(&domain.Ballot{ID: "2", CandidateIDs: []string{"cand-3"}})
	catalog.PutBallot(&domain.Ballot{ID: "1", CandidateIDs: []string{"cand-1", "cand-2"}})
	catalog.PutCandidate(&domain.Candidate{ID: "cand-1", Active: true})
	catalog.PutInstitution(&domain.Institution{ID: "inst-1", Name: "Institution"})

	ballots, err := catalog.Ballots().List(ctx)
	require.NoError(t, err)
	require.Len(t, ballots, 2)
	assert.Equal(t, "1", ballots[0].ID)

	ballot, err := catalog.Ballots().FindByID(ctx, "1")
	require.NoError(t, err)
	ballot.CandidateIDs[0] = "mutated"
	again, err := catalog.Ballots().FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "cand-1", again.CandidateIDs[0])

	found, err := catalog.Candidates().FindByIDs(ctx, []string{"cand-1", "cand-9"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, "cand-1")

	inst, err := catalog.Institutions().FindByID(ctx, "inst-1")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "Institution", inst.Name)
}

func TestMemoryBallotResultRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBallotResultRepository()

	res := &domain.BallotResult{BallotID: "1", CandidateVotes: map[string]int64{"cand-1": 1}}
	require.NoError(t, repo.Save(ctx, res))
	assert.ErrorIs(t, repo.Save(ctx, res), ErrResultExists)
	assert.Equal(t, 1, repo.Saves())

	found, err := repo.FindByBallotID(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.CandidateVotes["cand-1"])

	missing, err := repo.FindByBallotID(ctx, "2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

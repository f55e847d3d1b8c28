package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mivoto/internal/domain"
	"mivoto/internal/ledger"
	apperrors "mivoto/pkg/errors"
	"mivoto/pkg/hashing"
)

func TestVoteCastingEngine_CastVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.issue(t, "voter-1")

	res, err := f.cast("1", token, "cand-2", " cand-1 ", "cand-2", "")
	require.NoError(t, err)

	voteHash, err := f.hasher.HashVotePayload("1", hashing.VotePayload{
		InstitutionID: "inst-1",
		CandidateIDs:  []string{"cand-1", "cand-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, f.hasher.DeriveReceipt("1", voteHash, baseTime), res.Receipt)
	assert.NotEmpty(t, res.TxHash)
	require.NotNil(t, res.SBTTokenID)
	assert.Equal(t, "1", *res.SBTTokenID)

	record, err := f.votes.FindByReceipt(ctx, res.Receipt)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, []string{"cand-1", "cand-2"}, record.CandidateIDs)
	assert.Equal(t, voteHash, record.VoteHash)
	assert.Equal(t, res.TxHash, record.TxHash)
	assert.Equal(t, f.hasher.HashSubject("voter-1"), record.SubjectHash)

	eligibility, err := f.eligibility.FindByTokenHash(ctx, record.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityConsumed, eligibility.Status)

	events := f.auditLog.Events()
	require.Len(t, events, 2)
	cast := events[1]
	assert.Equal(t, domain.AuditVoteCast, cast.Action)
	assert.Equal(t, domain.ActorVotingService, cast.Actor)
	assert.Equal(t, map[string]string{
		"ballotId": "1",
		"receipt":  res.Receipt,
		"txHash":   res.TxHash,
	}, cast.Metadata)
}

func TestVoteCastingEngine_DeduplicatesSelection(t *testing.T) {
	f := newFixture(t)
	token := f.issue(t, "voter-1")

	res, err := f.cast("2", token, "cand-2", "cand-2")
	require.NoError(t, err)

	record, err := f.votes.FindByReceipt(context.Background(), res.Receipt)
	require.NoError(t, err)
	assert.Equal(t, []string{"cand-2"}, record.CandidateIDs)
}

func TestVoteCastingEngine_SelectionOrderDoesNotChangeFingerprint(t *testing.T) {
	f := newFixture(t)

	first, err := f.cast("1", f.issue(t, "voter-1"), "cand-2", "cand-1")
	require.NoError(t, err)
	second, err := f.cast("1", f.issue(t, "voter-2"), "cand-1", "cand-2")
	require.NoError(t, err)

	a, err := f.votes.FindByReceipt(context.Background(), first.Receipt)
	require.NoError(t, err)
	b, err := f.votes.FindByReceipt(context.Background(), second.Receipt)
	require.NoError(t, err)
	assert.Equal(t, a.VoteHash, b.VoteHash)
}

func TestVoteCastingEngine_RejectsInvalidCasts(t *testing.T) {
	tests := []struct {
		name        string
		ballotID    string
		institution string
		candidates  []string
		wantErr     error
		wantType    apperrors.ErrorType
		wantMessage string
	}{
		{
			name:        "candidate not on ballot",
			ballotID:    "1",
			candidates:  []string{"cand-1", "cand-3"},
			wantErr:     domain.ErrCandidateNotOnBallot,
			wantType:    apperrors.ErrorTypeVoting,
			wantMessage: "Candidate cand-3 is not part of ballot 1",
		},
		{
			name:       "candidate of another institution",
			ballotID:   "1",
			candidates: []string{"cand-x"},
			wantErr:    domain.ErrCandidateNotOnBallot,
			wantType:   apperrors.ErrorTypeVoting,
		},
		{
			name:       "inactive candidate",
			ballotID:   "1",
			candidates: []string{"cand-4"},
			wantErr:    domain.ErrCandidateInvalid,
			wantType:   apperrors.ErrorTypeVoting,
		},
		{
			name:        "institution mismatch",
			ballotID:    "1",
			institution: "inst-2",
			candidates:  []string{"cand-1"},
			wantErr:     domain.ErrInstitutionMismatch,
			wantType:    apperrors.ErrorTypeVoting,
		},
		{
			name:       "empty selection",
			ballotID:   "1",
			candidates: []string{" ", ""},
			wantErr:    domain.ErrEmptySelection,
			wantType:   apperrors.ErrorTypeVoting,
		},
		{
			name:       "multiple on single selection ballot",
			ballotID:   "2",
			candidates: []string{"cand-1", "cand-2"},
			wantErr:    domain.ErrMultipleSelection,
			wantType:   apperrors.ErrorTypeVoting,
		},
		{
			name:       "closed ballot",
			ballotID:   "4",
			candidates: []string{"cand-1"},
			wantErr:    domain.ErrBallotNotOpen,
			wantType:   apperrors.ErrorTypeVoting,
		},
		{
			name:       "ballot not yet open",
			ballotID:   "5",
			candidates: []string{"cand-1"},
			wantErr:    domain.ErrBallotNotOpen,
			wantType:   apperrors.ErrorTypeVoting,
		},
		{
			name:       "unknown ballot",
			ballotID:   "99",
			candidates: []string{"cand-1"},
			wantErr:    domain.ErrBallotNotFound,
			wantType:   apperrors.ErrorTypeNotFound,
		},
		{
			name:       "ballot id the ledger cannot address",
			ballotID:   "abc",
			candidates: []string{"cand-1"},
			wantType:   apperrors.ErrorTypeVoting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			token := f.issue(t, "voter-1")

			institution := tt.institution
			if institution == "" {
				institution = "inst-1"
			}
			_, err := f.voting.CastVote(context.Background(), domain.CastVoteRequest{
				BallotID:         tt.ballotID,
				EligibilityToken: token,
				Selection:        domain.Selection{InstitutionID: institution, CandidateIDs: tt.candidates},
			})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, appErr.Type)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, appErr.Message)
			}

			assert.Equal(t, 0, f.votes.Count())
			active, err := f.eligibility.FindActiveBySubjectHash(context.Background(), f.hasher.HashSubject("voter-1"))
			require.NoError(t, err)
			assert.NotNil(t, active)
		})
	}
}

func TestVoteCastingEngine_SecondCastRejected(t *testing.T) {
	f := newFixture(t)
	token := f.issue(t, "voter-1")

	_, err := f.cast("1", token, "cand-1")
	require.NoError(t, err)

	_, err = f.cast("1", token, "cand-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCredentialNotActive)

	_, err = f.cast("1", f.issue(t, "voter-1"), "cand-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeVoting))

	assert.Equal(t, 1, f.votes.Count())
}

func TestVoteCastingEngine_SameSubjectMayVoteOnOtherBallots(t *testing.T) {
	f := newFixture(t)

	_, err := f.cast("1", f.issue(t, "voter-1"), "cand-1")
	require.NoError(t, err)
	_, err = f.cast("2", f.issue(t, "voter-1"), "cand-1")
	require.NoError(t, err)

	assert.Equal(t, 2, f.votes.Count())
}

func TestVoteCastingEngine_LedgerFailureLeavesNoWrites(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      apperrors.ErrorType
		wantRetryable interface{}
	}{
		{name: "unavailable", err: ledger.ErrUnavailable, wantType: apperrors.ErrorTypeLedger, wantRetryable: true},
		{name: "receipt timeout", err: ledger.ErrReceiptTimeout, wantType: apperrors.ErrorTypeLedger, wantRetryable: true},
		{name: "double spend", err: ledger.ErrTokenAlreadyUsed, wantType: apperrors.ErrorTypeVoting},
		{name: "reverted", err: ledger.ErrRejected, wantType: apperrors.ErrorTypeVoting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			token := f.issue(t, "voter-1")

			f.ledger.setCastErr(tt.err)
			_, err := f.cast("1", token, "cand-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)

			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, appErr.Type)
			if tt.wantRetryable != nil {
				assert.Equal(t, tt.wantRetryable, appErr.Details["retryable"])
			}

			assert.Equal(t, 0, f.votes.Count())
			active, err := f.eligibility.FindActiveBySubjectHash(ctx, f.hasher.HashSubject("voter-1"))
			require.NoError(t, err)
			assert.NotNil(t, active)
			assert.NotContains(t, f.auditActions(), domain.AuditVoteCast)

			f.ledger.setCastErr(nil)
			_, err = f.cast("1", token, "cand-1")
			require.NoError(t, err)
			assert.Equal(t, 1, f.votes.Count())
		})
	}
}

func TestVoteCastingEngine_ConcurrentCastsWithOneCredential(t *testing.T) {
	tests := []struct {
		name string
		opts []fixtureOption
	}{
		{name: "without redis"},
		{name: "with redis lock", opts: []fixtureOption{withRedis()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts...)
			token := f.issue(t, "voter-1")

			const workers = 10
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := f.cast("1", token, "cand-1"); err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, 1, f.votes.Count())
		})
	}
}

func TestVoteCastingEngine_CastLock(t *testing.T) {
	f := newFixture(t, withRedis())
	token := f.issue(t, "voter-1")

	decoded, err := f.issuer.DecodeToken(token)
	require.NoError(t, err)
	lockKey := f.cache.Keys().KeyCastLock(f.hasher.HashToken(decoded.RawSecret, decoded.Salt))

	require.NoError(t, f.redis.Set(lockKey, "another-request"))
	_, err = f.cast("1", token, "cand-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCastInProgress)
	assert.Equal(t, 0, f.votes.Count())

	f.redis.Del(lockKey)
	_, err = f.cast("1", token, "cand-1")
	require.NoError(t, err)
	assert.False(t, f.redis.Exists(lockKey))
}

func TestVoteCastingEngine_VerifyReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.cast("1", f.issue(t, "voter-1"), "cand-1")
	require.NoError(t, err)

	t.Run("recorded everywhere", func(t *testing.T) {
		v, err := f.voting.VerifyReceipt(ctx, res.Receipt)
		require.NoError(t, err)
		assert.Equal(t, &domain.ReceiptVerification{
			Receipt:  res.Receipt,
			BallotID: "1",
			OnChain:  true,
			OffChain: true,
			TxHash:   res.TxHash,
		}, v)
	})

	t.Run("unknown receipt", func(t *testing.T) {
		v, err := f.voting.VerifyReceipt(ctx, strings.Repeat("0", 64))
		require.NoError(t, err)
		assert.Equal(t, domain.UnknownBallot, v.BallotID)
		assert.False(t, v.OnChain)
		assert.False(t, v.OffChain)
	})

	t.Run("only on chain", func(t *testing.T) {
		tokenHash := strings.Repeat("a", 64)
		receipt := strings.Repeat("b", 64)
		_, err := f.ledger.Simulated.IssueToken(ctx, tokenHash, testWallet)
		require.NoError(t, err)
		_, err = f.ledger.Simulated.CastVote(ctx, 1, tokenHash, strings.Repeat("c", 64), receipt)
		require.NoError(t, err)

		v, err := f.voting.VerifyReceipt(ctx, receipt)
		require.NoError(t, err)
		assert.True(t, v.OnChain)
		assert.False(t, v.OffChain)
		assert.Equal(t, domain.UnknownBallot, v.BallotID)
	})

	t.Run("malformed receipt", func(t *testing.T) {
		v, err := f.voting.VerifyReceipt(ctx, "not-hex")
		require.NoError(t, err)
		assert.False(t, v.OnChain)
	})

	t.Run("ledger lookup failure", func(t *testing.T) {
		f.ledger.setLookupErr(ledger.ErrUnavailable)
		defer f.ledger.setLookupErr(nil)

		v, err := f.voting.VerifyReceipt(ctx, res.Receipt)
		require.NoError(t, err)
		assert.False(t, v.OnChain)
		assert.True(t, v.OffChain)
		assert.Equal(t, "1", v.BallotID)
	})

	t.Run("empty receipt", func(t *testing.T) {
		_, err := f.voting.VerifyReceipt(ctx, " ")
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestVoteCastingEngine_VoteStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.cast("1", f.issue(t, "voter-1"), "cand-1")
	require.NoError(t, err)

	statuses, err := f.voting.VoteStatus(context.Background(), []string{"voter-1", " ", "voter-2"})
	require.NoError(t, err)
	assert.Equal(t, []domain.SubjectVoteStatus{
		{Subject: "voter-1", HasVoted: true},
		{Subject: "voter-2", HasVoted: false},
	}, statuses)
}

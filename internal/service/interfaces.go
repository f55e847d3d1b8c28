package service

import (
	"context"

	"mivoto/internal/domain"
)

// EligibilityService issues and decodes voting credentials
type EligibilityService interface {
	// IssueEligibility turns a verified identity into a single-use credential
	IssueEligibility(ctx context.Context, req domain.IssueRequest) (*domain.IssuedCredential, error)

	// DecodeToken opens a credential and rejects it once expired
	DecodeToken(token string) (*domain.DecodedCredential, error)
}

// VotingService casts and verifies votes
type VotingService interface {
	CastVote(ctx context.Context, req domain.CastVoteRequest) (*domain.CastVoteResult, error)
	VerifyReceipt(ctx context.Context, receipt string) (*domain.ReceiptVerification, error)
	VoteStatus(ctx context.Context, subjects []string) ([]domain.SubjectVoteStatus, error)
}

// TallyService counts votes and manages final results
type TallyService interface {
	Tally(ctx context.Context, ballotID string) (*domain.Tally, error)
	FinalizeBallot(ctx context.Context, ballotID string) (*domain.BallotResultView, error)
	GetFinalResult(ctx context.Context, ballotID string) (*domain.BallotResultView, error)
	VerifyResult(ctx context.Context, ballotID string) (*domain.ResultVerification, error)
}

// BallotService exposes read-only ballot data
type BallotService interface {
	GetBallot(ctx context.Context, ballotID string) (*domain.Ballot, error)
	GetBallotDetail(ctx context.Context, ballotID string) (*domain.BallotDetail, error)
	ListBallots(ctx context.Context) ([]domain.BallotView, error)
}

// Services aggregates all service interfaces
type Services struct {
	Eligibility EligibilityService
	Voting      VotingService
	Tally       TallyService
	Ballots     BallotService
}

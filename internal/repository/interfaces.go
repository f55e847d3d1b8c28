package repository

import (
	"context"
	"errors"

	"mivoto/internal/domain"
	"mivoto/pkg/database"
)

var (
	// ErrResultExists is returned when a ballot already has a stored result
	ErrResultExists = errors.New("ballot result already exists")

	// ErrActiveEligibilityExists is returned when saving a second ACTIVE
	// credential for one subject
	ErrActiveEligibilityExists = errors.New("subject already holds an active credential")
)

// Find methods return (nil, nil) when nothing matches.

// EligibilityRepository stores issued credentials
type EligibilityRepository interface {
	// FindActiveBySubjectHash returns the subject's ACTIVE credential
	FindActiveBySubjectHash(ctx context.Context, subjectHash string) (*domain.VoterEligibility, error)

	// FindByTokenHash returns the credential with the given digest in any state
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.VoterEligibility, error)

	// Save inserts a new credential record. It fails with
	// ErrActiveEligibilityExists when the subject already holds an ACTIVE one.
	Save(ctx context.Context, eligibility *domain.VoterEligibility) error

	// MarkConsumed flips an ACTIVE credential to CONSUMED. It is a no-op for
	// credentials already consumed.
	MarkConsumed(ctx context.Context, tokenHash string) error
}

// VoteRecordRepository stores accepted votes
type VoteRecordRepository interface {
	// Save inserts a vote. A second vote for the same ballot and subject
	// fails with domain.ErrAlreadyVoted.
	Save(ctx context.Context, record *domain.VoteRecord) error

	FindByReceipt(ctx context.Context, receipt string) (*domain.VoteRecord, error)

	ExistsByBallotIDAndSubjectHash(ctx context.Context, ballotID, subjectHash string) (bool, error)

	// ExistsBySubjectHash reports whether the subject voted on any ballot
	ExistsBySubjectHash(ctx context.Context, subjectHash string) (bool, error)

	// TallyByBallot counts votes per candidate. Candidates without votes are
	// absent from the map.
	TallyByBallot(ctx context.Context, ballotID string) (map[string]int64, error)
}

// BallotRepository is a read-only view of ballots
type BallotRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Ballot, error)
	List(ctx context.Context) ([]*domain.Ballot, error)
}

// CandidateRepository is a read-only view of candidates
type CandidateRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Candidate, error)

	// FindByIDs returns the candidates that exist, keyed by id
	FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Candidate, error)
}

// InstitutionRepository is a read-only view of institutions
type InstitutionRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Institution, error)
}

// BallotResultRepository stores finalized results
type BallotResultRepository interface {
	FindByBallotID(ctx context.Context, ballotID string) (*domain.BallotResult, error)

	// Save inserts a result. A second result for the same ballot fails with
	// ErrResultExists.
	Save(ctx context.Context, result *domain.BallotResult) error
}

// AuditRepository is the append-only audit log
type AuditRepository interface {
	Save(ctx context.Context, event *domain.AuditEvent) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Eligibility  EligibilityRepository
	Votes        VoteRecordRepository
	Ballots      BallotRepository
	Candidates   CandidateRepository
	Institutions InstitutionRepository
	Results      BallotResultRepository
	Audit        AuditRepository
}

// NewPostgresRepositories wires every Postgres repository
func NewPostgresRepositories(db *database.PostgresDB) *Repositories {
	return &Repositories{
		Eligibility:  NewEligibilityRepository(db),
		Votes:        NewVoteRecordRepository(db),
		Ballots:      NewBallotRepository(db),
		Candidates:   NewCandidateRepository(db),
		Institutions: NewInstitutionRepository(db),
		Results:      NewBallotResultRepository(db),
		Audit:        NewAuditRepository(db),
	}
}

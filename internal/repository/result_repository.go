package repository

import (
	"context"
	"fmt"

	"mivoto/internal/domain"
	"mivoto/pkg/database"
)

const constraintOneResultPerBallot = "ballot_results_ballot_id_key"

type BallotResultPostgresRepository struct {
	db *database.PostgresDB
}

func NewBallotResultRepository(db *database.PostgresDB) *BallotResultPostgresRepository {
	return &BallotResultPostgresRepository{db: db}
}

func (r *BallotResultPostgresRepository) FindByBallotID(ctx context.Context, ballotID string) (*domain.BallotResult, error) {
	var res domain.BallotResult
	query := `
		SELECT id, ballot_id, institution_id, candidate_votes, computed_at, checksum
		FROM ballot_results
		WHERE ballot_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, ballotID).Scan(
		&res.ID,
		&res.BallotID,
		&res.InstitutionID,
		&res.CandidateVotes,
		&res.ComputedAt,
		&res.Checksum,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ballot result: %w", err)
	}
	return &res, nil
}

func (r *BallotResultPostgresRepository) Save(ctx context.Context, res *domain.BallotResult) error {
	query := `
		INSERT INTO ballot_results (id, ballot_id, institution_id, candidate_votes, computed_at, checksum)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		res.ID,
		res.BallotID,
		res.InstitutionID,
		res.CandidateVotes,
		res.ComputedAt,
		res.Checksum,
	)
	if database.IsUniqueViolation(err, constraintOneResultPerBallot) {
		return ErrResultExists
	}
	if err != nil {
		return fmt.Errorf("failed to save ballot result: %w", err)
	}
	return nil
}

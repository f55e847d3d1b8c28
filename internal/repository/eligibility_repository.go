package repository

import (
	"context"
	"fmt"

	"mivoto/internal/domain"
	"mivoto/pkg/database"
)

// ConstraintOneActivePerSubject is the partial unique index allowing a single
// ACTIVE credential per subject
const ConstraintOneActivePerSubject = "voter_eligibilities_one_active_per_subject"

type EligibilityPostgresRepository struct {
	db *database.PostgresDB
}

func NewEligibilityRepository(db *database.PostgresDB) *EligibilityPostgresRepository {
	return &EligibilityPostgresRepository{db: db}
}

const eligibilityColumns = `id, subject_hash, issued_at, expires_at, token_hash, wallet_address, status, issued_by`

func (r *EligibilityPostgresRepository) FindActiveBySubjectHash(ctx context.Context, subjectHash string) (*domain.VoterEligibility, error) {
	query := `SELECT ` + eligibilityColumns + `
		FROM voter_eligibilities
		WHERE subject_hash = $1 AND status = 'ACTIVE'`

	e, err := r.scanOne(ctx, query, subjectHash)
	if err != nil {
		return nil, fmt.Errorf("failed to find active eligibility: %w", err)
	}
	return e, nil
}

func (r *EligibilityPostgresRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.VoterEligibility, error) {
	query := `SELECT ` + eligibilityColumns + `
		FROM voter_eligibilities
		WHERE token_hash = $1`

	e, err := r.scanOne(ctx, query, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to find eligibility by token: %w", err)
	}
	return e, nil
}

func (r *EligibilityPostgresRepository) scanOne(ctx context.Context, query string, arg string) (*domain.VoterEligibility, error) {
	var e domain.VoterEligibility
	err := r.db.Pool.QueryRow(ctx, query, arg).Scan(
		&e.ID,
		&e.SubjectHash,
		&e.IssuedAt,
		&e.ExpiresAt,
		&e.TokenHash,
		&e.WalletAddress,
		&e.Status,
		&e.IssuedBy,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EligibilityPostgresRepository) Save(ctx context.Context, e *domain.VoterEligibility) error {
	query := `
		INSERT INTO voter_eligibilities (
			id, subject_hash, issued_at, expires_at, token_hash, wallet_address, status, issued_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		e.ID,
		e.SubjectHash,
		e.IssuedAt,
		e.ExpiresAt,
		e.TokenHash,
		e.WalletAddress,
		string(e.Status),
		e.IssuedBy,
	)
	if database.IsUniqueViolation(err, ConstraintOneActivePerSubject) {
		return ErrActiveEligibilityExists
	}
	if err != nil {
		return fmt.Errorf("failed to save eligibility: %w", err)
	}
	return nil
}

func (r *EligibilityPostgresRepository) MarkConsumed(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE voter_eligibilities
		SET status = 'CONSUMED'
		WHERE token_hash = $1 AND status = 'ACTIVE'
	`

	if _, err := r.db.Pool.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("failed to mark eligibility consumed: %w", err)
	}
	return nil
}

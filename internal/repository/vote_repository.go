package repository

import (
	"context"
	"fmt"

	"mivoto/internal/domain"
	"mivoto/pkg/database"
)

// ConstraintOneVotePerSubject enforces exactly-once participation per ballot
const ConstraintOneVotePerSubject = "vote_records_ballot_subject_key"

type VoteRecordPostgresRepository struct {
	db *database.PostgresDB
}

func NewVoteRecordRepository(db *database.PostgresDB) *VoteRecordPostgresRepository {
	return &VoteRecordPostgresRepository{db: db}
}

// Save relies on the (ballot_id, subject_hash) unique constraint so that
// concurrent casts by one subject produce exactly one row
func (r *VoteRecordPostgresRepository) Save(ctx context.Context, v *domain.VoteRecord) error {
	query := `
		INSERT INTO vote_records (
			id, ballot_id, institution_id, candidate_ids, vote_hash, token_hash,
			subject_hash, receipt, tx_hash, sbt_token_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		v.ID,
		v.BallotID,
		v.InstitutionID,
		v.CandidateIDs,
		v.VoteHash,
		v.TokenHash,
		v.SubjectHash,
		v.Receipt,
		v.TxHash,
		v.SBTTokenID,
		v.CreatedAt,
	)
	if database.IsUniqueViolation(err, ConstraintOneVotePerSubject) {
		return domain.ErrAlreadyVoted
	}
	if err != nil {
		return fmt.Errorf("failed to save vote record: %w", err)
	}
	return nil
}

func (r *VoteRecordPostgresRepository) FindByReceipt(ctx context.Context, receipt string) (*domain.VoteRecord, error) {
	var v domain.VoteRecord
	query := `
		SELECT id, ballot_id, institution_id, candidate_ids, vote_hash, token_hash,
		       subject_hash, receipt, tx_hash, sbt_token_id, created_at
		FROM vote_records
		WHERE receipt = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, receipt).Scan(
		&v.ID,
		&v.BallotID,
		&v.InstitutionID,
		&v.CandidateIDs,
		&v.VoteHash,
		&v.TokenHash,
		&v.SubjectHash,
		&v.Receipt,
		&v.TxHash,
		&v.SBTTokenID,
		&v.CreatedAt,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vote record: %w", err)
	}
	return &v, nil
}

func (r *VoteRecordPostgresRepository) ExistsByBallotIDAndSubjectHash(ctx context.Context, ballotID, subjectHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM vote_records WHERE ballot_id = $1 AND subject_hash = $2)`

	if err := r.db.Pool.QueryRow(ctx, query, ballotID, subjectHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check vote existence: %w", err)
	}
	return exists, nil
}

func (r *VoteRecordPostgresRepository) ExistsBySubjectHash(ctx context.Context, subjectHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM vote_records WHERE subject_hash = $1)`

	if err := r.db.Pool.QueryRow(ctx, query, subjectHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check vote existence: %w", err)
	}
	return exists, nil
}

func (r *VoteRecordPostgresRepository) TallyByBallot(ctx context.Context, ballotID string) (map[string]int64, error) {
	query := `
		SELECT candidate_id, COUNT(*)
		FROM vote_records, unnest(candidate_ids) AS candidate_id
		WHERE ballot_id = $1
		GROUP BY candidate_id
	`

	rows, err := r.db.Pool.Query(ctx, query, ballotID)
	if err != nil {
		return nil, fmt.Errorf("failed to tally ballot: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var candidateID string
		var votes int64
		if err := rows.Scan(&candidateID, &votes); err != nil {
			return nil, fmt.Errorf("failed to scan tally row: %w", err)
		}
		counts[candidateID] = votes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tally rows: %w", err)
	}

	return counts, nil
}

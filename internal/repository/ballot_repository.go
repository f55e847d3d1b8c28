package repository

import (
	"context"
	"fmt"

	"mivoto/internal/domain"
	"mivoto/pkg/database"
)

type BallotPostgresRepository struct {
	db *database.PostgresDB
}

func NewBallotRepository(db *database.PostgresDB) *BallotPostgresRepository {
	return &BallotPostgresRepository{db: db}
}

const ballotColumns = `id, institution_id, title, candidate_ids, opens_at, closes_at, allow_multiple_selection`

func (r *BallotPostgresRepository) FindByID(ctx context.Context, id string) (*domain.Ballot, error) {
	var b domain.Ballot
	query := `SELECT ` + ballotColumns + ` FROM ballots WHERE id = $1`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.InstitutionID,
		&b.Title,
		&b.CandidateIDs,
		&b.OpensAt,
		&b.ClosesAt,
		&b.AllowMultipleSelection,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ballot: %w", err)
	}
	return &b, nil
}

func (r *BallotPostgresRepository) List(ctx context.Context) ([]*domain.Ballot, error) {
	query := `SELECT ` + ballotColumns + ` FROM ballots ORDER BY opens_at NULLS FIRST, id`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ballots: %w", err)
	}
	defer rows.Close()

	var ballots []*domain.Ballot
	for rows.Next() {
		var b domain.Ballot
		if err := rows.Scan(
			&b.ID,
			&b.InstitutionID,
			&b.Title,
			&b.CandidateIDs,
			&b.OpensAt,
			&b.ClosesAt,
			&b.AllowMultipleSelection,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ballot: %w", err)
		}
		ballots = append(ballots, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ballots: %w", err)
	}

	return ballots, nil
}

type CandidatePostgresRepository struct {
	db *database.PostgresDB
}

func NewCandidateRepository(db *database.PostgresDB) *CandidatePostgresRepository {
	return &CandidatePostgresRepository{db: db}
}

const candidateColumns = `id, institution_id, display_name, list_name, biography, active, created_at, updated_at`

func (r *CandidatePostgresRepository) FindByID(ctx context.Context, id string) (*domain.Candidate, error) {
	found, err := r.FindByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return found[id], nil
}

func (r *CandidatePostgresRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Candidate, error) {
	found := make(map[string]*domain.Candidate, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE id = ANY($1)`

	rows, err := r.db.Pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(
			&c.ID,
			&c.InstitutionID,
			&c.DisplayName,
			&c.ListName,
			&c.Biography,
			&c.Active,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		found[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	return found, nil
}

type InstitutionPostgresRepository struct {
	db *database.PostgresDB
}

func NewInstitutionRepository(db *database.PostgresDB) *InstitutionPostgresRepository {
	return &InstitutionPostgresRepository{db: db}
}

func (r *InstitutionPostgresRepository) FindByID(ctx context.Context, id string) (*domain.Institution, error) {
	var i domain.Institution
	query := `SELECT id, name, description, active FROM institutions WHERE id = $1`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&i.ID, &i.Name, &i.Description, &i.Active)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find institution: %w", err)
	}
	return &i, nil
}

package repository

import (
	"context"
	"fmt"

	"mivoto/internal/domain"
	"mivoto/pkg/database"
)

type AuditPostgresRepository struct {
	db *database.PostgresDB
}

func NewAuditRepository(db *database.PostgresDB) *AuditPostgresRepository {
	return &AuditPostgresRepository{db: db}
}

func (r *AuditPostgresRepository) Save(ctx context.Context, event *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, actor, action, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.Actor,
		event.Action,
		event.Metadata,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mivoto/internal/domain"
	"mivoto/internal/repository"
)

// AuditService appends audit events. Failures are logged and never reach
// the caller.
type AuditService struct {
	repo   repository.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditService(repo repository.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger, now: time.Now}
}

// WithClock overrides the time source
func (s *AuditService) WithClock(now func() time.Time) *AuditService {
	s.now = now
	return s
}

// Record stores an event
func (s *AuditService) Record(ctx context.Context, actor, action string, metadata map[string]string) {
	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		Actor:      actor,
		Action:     action,
		Metadata:   metadata,
		OccurredAt: s.now().UTC(),
	}

	if err := s.repo.Save(ctx, event); err != nil {
		s.logger.Error("Failed to record audit event",
			zap.String("action", action),
			zap.String("actor", actor),
			zap.Error(err))
		return
	}

	s.logger.Debug("Audit event recorded", zap.String("action", action), zap.String("event_id", event.ID))
}

package app

import (
	"context"
	"strings"
	"time"

	"cortex/internal/model"
	"cortex/internal/repository"
)

type AuditService struct {
	repo      *repository.AuditLogRepository
	publisher PersistPublisher
}

func NewAuditService(repo *repository.AuditLogRepository, publisher PersistPublisher) *AuditService {
	return &AuditService{repo: repo, publisher: publisher}
}

// Record enqueues one append-only audit row.
func (s *AuditService) Record(ctx context.Context, userID uint, action, details string) (*model.AuditLog, error) {
	action = strings.ToUpper(strings.TrimSpace(action))
	if userID == 0 || action == "" {
		return nil, ErrInvalidInput
	}
	entry := model.AuditLog{
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: time.Now(),
	}
	if s.publisher == nil {
		return nil, ErrEnqueue
	}
	if err := s.publisher.PublishAuditLog(ctx, entry); err != nil {
		return nil, ErrEnqueue
	}
	return &entry, nil
}

func (s *AuditService) Recent(userID uint, limit int) ([]model.AuditLog, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.repo.ListRecentByUserID(userID, limit)
}

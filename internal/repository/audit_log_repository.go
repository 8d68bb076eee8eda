package repository

import (
	"fmt"

	"gorm.io/gorm"

	"cortex/internal/model"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(entry *model.AuditLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("create audit log failed: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) ListRecentByUserID(userID uint, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 5
	}
	var logs []model.AuditLog
	if err := r.db.Where("user_id = ?", userID).Order("timestamp DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs failed: %w", err)
	}
	return logs, nil
}

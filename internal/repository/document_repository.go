package repository

import (
	"fmt"

	"gorm.io/gorm"

	"cortex/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) CreateBatch(docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := r.db.Create(&docs).Error; err != nil {
		return fmt.Errorf("create documents batch failed: %w", err)
	}
	return nil
}

// ListByUserID returns the user's rows newest first without embeddings.
func (r *DocumentRepository) ListByUserID(userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Select("id", "user_id", "content", "metadata", "created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// ListForRetrieval returns every row of the user including embeddings.
func (r *DocumentRepository) ListForRetrieval(userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Where("user_id = ?", userID).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents for retrieval failed: %w", err)
	}
	return list, nil
}

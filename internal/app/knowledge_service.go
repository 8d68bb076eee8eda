package app

import (
	"cortex/internal/model"
	"cortex/internal/repository"
)

type KnowledgeService struct {
	docRepo *repository.DocumentRepository
}

func NewKnowledgeService(docRepo *repository.DocumentRepository) *KnowledgeService {
	return &KnowledgeService{docRepo: docRepo}
}

// ListDocuments returns raw chunk rows newest first; grouping is the client's job.
func (s *KnowledgeService) ListDocuments(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"

	"cortex/internal/model"
	"cortex/internal/repository"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageEmpty         = errors.New("message content is empty")
	ErrInvalidRole          = errors.New("message role must be user or system")
	ErrEnqueue              = errors.New("persist enqueue failed")
)

const defaultConversationTitle = "New Chat"

type PersistPublisher interface {
	PublishMessage(ctx context.Context, msg model.Message) error
	PublishAuditLog(ctx context.Context, entry model.AuditLog) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID uint) error
	MarkDirty(ctx context.Context, conversationID uint) error
	IsDirty(ctx context.Context, conversationID uint) (bool, error)
}

type ConversationService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	publisher        PersistPublisher
	historyCache     HistoryCache
}

type CreateConversationInput struct {
	UserID uint
	Title  string
}

type AppendMessageInput struct {
	UserID         uint
	ConversationID uint
	Role           string
	Content        string
	Sources        []string
}

func NewConversationService(
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	publisher PersistPublisher,
	historyCache HistoryCache,
) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		publisher:        publisher,
		historyCache:     historyCache,
	}
}

func (s *ConversationService) Create(input CreateConversationInput) (*model.Conversation, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultConversationTitle
	}
	if len([]rune(title)) > 128 {
		title = string([]rune(title)[:128])
	}

	conversation := &model.Conversation{
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ConversationService) List(userID uint) ([]model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.conversationRepo.ListByUserID(userID)
}

func (s *ConversationService) Delete(ctx context.Context, userID, conversationID uint) error {
	if userID == 0 || conversationID == 0 {
		return ErrInvalidInput
	}
	if _, err := s.owned(userID, conversationID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteByConversationID(conversationID); err != nil {
		return err
	}
	if err := s.conversationRepo.DeleteByIDAndUserID(conversationID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, conversationID)
	}
	return nil
}

// AppendMessage enqueues the write and returns the message as it will be stored.
func (s *ConversationService) AppendMessage(ctx context.Context, input AppendMessageInput) (*model.Message, error) {
	if input.UserID == 0 || input.ConversationID == 0 {
		return nil, ErrInvalidInput
	}
	if input.Role != model.RoleUser && input.Role != model.RoleSystem {
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrMessageEmpty
	}
	if _, err := s.owned(input.UserID, input.ConversationID); err != nil {
		return nil, err
	}

	msg := model.Message{
		ConversationID: input.ConversationID,
		UserID:         input.UserID,
		Role:           input.Role,
		Content:        input.Content,
		CreatedAt:      time.Now(),
	}
	if len(input.Sources) > 0 {
		meta, err := json.Marshal(model.MessageMetadata{Sources: input.Sources})
		if err != nil {
			return nil, err
		}
		msg.Metadata = datatypes.JSON(meta)
	}

	if s.publisher == nil {
		return nil, ErrEnqueue
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.ConversationID)
	}
	if err := s.publisher.PublishMessage(ctx, msg); err != nil {
		return nil, ErrEnqueue
	}
	return &msg, nil
}

// Messages returns the transcript oldest first, served from redis when clean.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID uint, limit int) ([]model.Message, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.owned(userID, conversationID); err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, conversationID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, conversationID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListByConversationID(conversationID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, conversationID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, conversationID, messages)
		}
	}
	return messages, nil
}

func (s *ConversationService) owned(userID, conversationID uint) (*model.Conversation, error) {
	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

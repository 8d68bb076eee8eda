package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser   = "user"
	RoleSystem = "system"
)

type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	Role           string         `gorm:"size:16;not null" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
}

// MessageMetadata is the shape stored in Message.Metadata.
type MessageMetadata struct {
	Sources []string `json:"sources,omitempty"`
}

// Sources returns the cited sources recorded on a system message.
func (m *Message) Sources() []string {
	if len(m.Metadata) == 0 {
		return nil
	}
	var meta MessageMetadata
	if err := json.Unmarshal(m.Metadata, &meta); err != nil {
		return nil
	}
	return meta.Sources
}

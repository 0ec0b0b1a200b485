package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn inside a chat. Messages are written in question/answer
// pairs and never updated; they disappear only when their chat is deleted.
// Ordering within a chat is (created_at, id) - ids are UUIDv7 so the
// tiebreaker is itself chronological.
type Message struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ChatID    uuid.UUID `gorm:"type:char(36);not null;index:ix_chat_created,priority:1" json:"chat_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:ix_chat_created,priority:2" json:"created_at"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	return nil
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chat is a named conversation thread owned by one user. A user cannot hold
// two chats with the same title at the same time.
type Chat struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:ux_user_title" json:"user_id"`
	Title     string    `gorm:"size:128;not null;uniqueIndex:ux_user_title" json:"chat_title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUIDv7 primary key. Version 7 ids are time-ordered,
// so index inserts stay append-like even with several writers and no
// coordination between service instances.
func (c *Chat) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return nil
}

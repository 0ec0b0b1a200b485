package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chatrelay/internal/app"
	"chatrelay/internal/model"
)

// ChatRepository is the gorm implementation of app.ChatRepo. The database
// must be opened with TranslateError so duplicate-key violations surface as
// gorm.ErrDuplicatedKey regardless of driver.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return app.ErrChatExists
		}
		return &app.StorageError{Op: "create chat", Err: err}
	}
	return nil
}

func (r *ChatRepository) GetByUserAndTitle(ctx context.Context, userID, title string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND title = ?", userID, title).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &app.StorageError{Op: "get chat", Err: err}
	}
	return &chat, nil
}

func (r *ChatRepository) ListByUser(ctx context.Context, userID string) ([]model.Chat, error) {
	var chats []model.Chat
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, &app.StorageError{Op: "list chats", Err: err}
	}
	return chats, nil
}

func (r *ChatRepository) UpdateTitle(ctx context.Context, chatID uuid.UUID, newTitle string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", chatID).First(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return app.ErrChatNotFound
			}
			return &app.StorageError{Op: "get chat for rename", Err: err}
		}
		chat.Title = newTitle
		if err := tx.Save(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return app.ErrChatExists
			}
			return &app.StorageError{Op: "rename chat", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// DeleteWithMessages drops the chat and everything it owns in a single
// transaction - messages first, then the chat row.
func (r *ChatRepository) DeleteWithMessages(ctx context.Context, chatID uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", chatID).Delete(&model.Chat{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return app.ErrChatNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, app.ErrChatNotFound) {
			return err
		}
		return &app.StorageError{Op: "delete chat", Err: err}
	}
	return nil
}

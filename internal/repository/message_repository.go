package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chatrelay/internal/app"
	"chatrelay/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendTurn persists one question/answer pair and bumps the owning chat's
// updated_at, all inside one transaction. On any failure nothing is written,
// so a half-recorded turn can never exist.
func (r *MessageRepository) AppendTurn(ctx context.Context, chatID uuid.UUID, question, answer string) (*model.Message, *model.Message, error) {
	userMsg := &model.Message{
		ChatID:  chatID,
		Role:    model.RoleUser,
		Content: question,
	}
	assistantMsg := &model.Message{
		ChatID:  chatID,
		Role:    model.RoleAssistant,
		Content: answer,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		if err := tx.Create(assistantMsg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Chat{}).
			Where("id = ?", chatID).
			UpdateColumn("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, nil, &app.StorageError{Op: "append turn", Err: err}
	}
	return userMsg, assistantMsg, nil
}

func (r *MessageRepository) ListByChatID(ctx context.Context, chatID uuid.UUID) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, &app.StorageError{Op: "list messages", Err: err}
	}
	return messages, nil
}

// ListRecentByChatID returns up to limit messages ordered newest first, the
// shape the context builder walks.
func (r *MessageRepository) ListRecentByChatID(ctx context.Context, chatID uuid.UUID, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, &app.StorageError{Op: "list recent messages", Err: err}
	}
	return messages, nil
}

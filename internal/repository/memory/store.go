// Package memory holds in-memory implementations of the store contracts,
// used by tests and local development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/app"
	"chatrelay/internal/model"
)

// Store keeps chats and their messages in process memory. Messages are held
// per chat in append order, which is chronological by construction.
type Store struct {
	mu       sync.Mutex
	chats    map[uuid.UUID]*model.Chat
	messages map[uuid.UUID][]model.Message
}

func NewStore() *Store {
	return &Store{
		chats:    make(map[uuid.UUID]*model.Chat),
		messages: make(map[uuid.UUID][]model.Message),
	}
}

func (s *Store) Create(_ context.Context, chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.chats {
		if existing.UserID == chat.UserID && existing.Title == chat.Title {
			return app.ErrChatExists
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return &app.StorageError{Op: "create chat", Err: err}
	}
	now := time.Now()
	chat.ID = id
	chat.CreatedAt = now
	chat.UpdatedAt = now

	stored := *chat
	s.chats[id] = &stored
	return nil
}

func (s *Store) GetByUserAndTitle(_ context.Context, userID, title string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chat := range s.chats {
		if chat.UserID == userID && chat.Title == title {
			found := *chat
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chats []model.Chat
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (s *Store) UpdateTitle(_ context.Context, chatID uuid.UUID, newTitle string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, app.ErrChatNotFound
	}
	for id, other := range s.chats {
		if id != chatID && other.UserID == chat.UserID && other.Title == newTitle {
			return nil, app.ErrChatExists
		}
	}

	chat.Title = newTitle
	chat.UpdatedAt = time.Now()
	updated := *chat
	return &updated, nil
}

func (s *Store) DeleteWithMessages(_ context.Context, chatID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return app.ErrChatNotFound
	}
	delete(s.chats, chatID)
	delete(s.messages, chatID)
	return nil
}

func (s *Store) AppendTurn(_ context.Context, chatID uuid.UUID, question, answer string) (*model.Message, *model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, nil, app.ErrChatNotFound
	}

	now := time.Now()
	userMsg, err := newMessage(chatID, model.RoleUser, question, now)
	if err != nil {
		return nil, nil, err
	}
	assistantMsg, err := newMessage(chatID, model.RoleAssistant, answer, now)
	if err != nil {
		return nil, nil, err
	}

	s.messages[chatID] = append(s.messages[chatID], *userMsg, *assistantMsg)
	chat.UpdatedAt = now
	return userMsg, assistantMsg, nil
}

func (s *Store) ListByChatID(_ context.Context, chatID uuid.UUID) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[chatID]
	messages := make([]model.Message, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *Store) ListRecentByChatID(_ context.Context, chatID uuid.UUID, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[chatID]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}

	recent := make([]model.Message, 0, limit)
	for i := len(stored) - 1; i >= len(stored)-limit; i-- {
		recent = append(recent, stored[i])
	}
	return recent, nil
}

func newMessage(chatID uuid.UUID, role, content string, createdAt time.Time) (*model.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, &app.StorageError{Op: "create message", Err: err}
	}
	return &model.Message{
		ID:        id,
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

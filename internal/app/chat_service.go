package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatrelay/internal/ai"
	"chatrelay/internal/model"
)

// maxHistoryFetch caps how many stored messages are pulled for context
// assembly; the token budget trims the window down further.
const maxHistoryFetch = 500

// ChatRepo is the durable-store contract for chats. Missing chats come back
// as (nil, nil) from lookups; a duplicate (user, title) pair yields
// ErrChatExists; everything else unexpected arrives as *StorageError.
type ChatRepo interface {
	Create(ctx context.Context, chat *model.Chat) error
	GetByUserAndTitle(ctx context.Context, userID, title string) (*model.Chat, error)
	ListByUser(ctx context.Context, userID string) ([]model.Chat, error)
	UpdateTitle(ctx context.Context, chatID uuid.UUID, newTitle string) (*model.Chat, error)
	DeleteWithMessages(ctx context.Context, chatID uuid.UUID) error
}

// MessageRepo is the durable-store contract for messages. AppendTurn must be
// atomic: both rows land together with the owning chat's updated_at bump, or
// none do.
type MessageRepo interface {
	AppendTurn(ctx context.Context, chatID uuid.UUID, question, answer string) (*model.Message, *model.Message, error)
	ListByChatID(ctx context.Context, chatID uuid.UUID) ([]model.Message, error)
	ListRecentByChatID(ctx context.Context, chatID uuid.UUID, limit int) ([]model.Message, error)
}

type LLMClient interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

type ChatEventPublisher interface {
	Publish(ctx context.Context, event model.ChatEvent) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, chatID uuid.UUID) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, chatID uuid.UUID, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID uuid.UUID) error
	MarkDirty(ctx context.Context, chatID uuid.UUID) error
	IsDirty(ctx context.Context, chatID uuid.UUID) (bool, error)
}

// ChatService coordinates a question end to end: resolve the owning chat,
// assemble the bounded prior-turn context, call the LLM, and persist the
// question/answer pair in one transaction.
type ChatService struct {
	chatRepo     ChatRepo
	messageRepo  MessageRepo
	llm          LLMClient
	publisher    ChatEventPublisher
	historyCache HistoryCache
	logger       *zap.Logger

	systemPrompt string
	tokenBudget  int
}

type AskInput struct {
	UserID   string
	Title    string
	Question string
}

type AskResult struct {
	Answer             string    `json:"answer"`
	ChatID             uuid.UUID `json:"chat_id"`
	UserMessageID      uuid.UUID `json:"user_message_id"`
	AssistantMessageID uuid.UUID `json:"assistant_message_id"`
}

// ChatDetail is a chat together with its full ordered message history.
type ChatDetail struct {
	model.Chat
	Messages []model.Message `json:"messages"`
}

func NewChatService(
	chatRepo ChatRepo,
	messageRepo MessageRepo,
	llm LLMClient,
	publisher ChatEventPublisher,
	historyCache HistoryCache,
	logger *zap.Logger,
	systemPrompt string,
	tokenBudget int,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenBudget <= 0 {
		tokenBudget = 25000
	}
	return &ChatService{
		chatRepo:     chatRepo,
		messageRepo:  messageRepo,
		llm:          llm,
		publisher:    publisher,
		historyCache: historyCache,
		logger:       logger,
		systemPrompt: systemPrompt,
		tokenBudget:  tokenBudget,
	}
}

// Ask answers a question inside the chat named by (user, title), creating
// the chat on first use. Nothing is persisted until the LLM call has
// succeeded, and then the question and answer are written together - a
// question is stored if and only if its answer is.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	userID := strings.TrimSpace(input.UserID)
	title := strings.TrimSpace(input.Title)
	question := strings.TrimSpace(input.Question)
	if userID == "" || title == "" || question == "" {
		return nil, ErrInvalidInput
	}
	if estimateTokens(question) > s.tokenBudget {
		return nil, ErrContextTooLarge
	}

	chat, err := s.resolveChat(ctx, userID, title)
	if err != nil {
		return nil, err
	}

	recent, err := s.messageRepo.ListRecentByChatID(ctx, chat.ID, maxHistoryFetch)
	if err != nil {
		return nil, err
	}
	prompt := s.assemblePrompt(recent, question)

	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("llm call failed",
			zap.String("chat_id", chat.ID.String()),
			zap.Error(err))
		return nil, err
	}

	userMsg, assistantMsg, err := s.messageRepo.AppendTurn(ctx, chat.ID, question, answer)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, model.ChatEvent{Type: model.EventTurnAppended, ChatID: chat.ID})

	return &AskResult{
		Answer:             answer,
		ChatID:             chat.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
	}, nil
}

// resolveChat finds the chat for (user, title) or creates it. Two first
// questions racing on the same pair hit the unique index; the loser gets
// ErrChatExists and re-reads the winner's row once.
func (s *ChatService) resolveChat(ctx context.Context, userID, title string) (*model.Chat, error) {
	chat, err := s.chatRepo.GetByUserAndTitle(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		return chat, nil
	}

	chat = &model.Chat{UserID: userID, Title: title}
	createErr := s.chatRepo.Create(ctx, chat)
	if createErr == nil {
		return chat, nil
	}
	if !errors.Is(createErr, ErrChatExists) {
		return nil, createErr
	}

	chat, err = s.chatRepo.GetByUserAndTitle(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, createErr
	}
	return chat, nil
}

func (s *ChatService) assemblePrompt(recent []model.Message, question string) []ai.ChatMessage {
	history := buildContext(recent, s.tokenBudget)

	prompt := make([]ai.ChatMessage, 0, len(history)+2)
	if s.systemPrompt != "" {
		prompt = append(prompt, ai.ChatMessage{Role: model.RoleSystem, Content: s.systemPrompt})
	}
	prompt = append(prompt, history...)
	prompt = append(prompt, ai.ChatMessage{Role: model.RoleUser, Content: question})
	return prompt
}

// GetChat returns a chat and its messages oldest to newest. Reads go through
// the history cache unless a write recently marked it dirty.
func (s *ChatService) GetChat(ctx context.Context, userID, title string) (*ChatDetail, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(title) == "" {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByUserAndTitle(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	messages, err := s.loadMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	return &ChatDetail{Chat: *chat, Messages: messages}, nil
}

func (s *ChatService) loadMessages(ctx context.Context, chatID uuid.UUID) ([]model.Message, error) {
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, chatID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, chatID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	// Repopulate first, then re-check the dirty marker. A writer racing this
	// read marks dirty before dropping the cached entry, so a fill built from
	// a pre-commit read is caught by the re-check (or overwritten by the
	// writer's delete) instead of lingering until the TTL.
	if s.historyCache != nil {
		if setErr := s.historyCache.SetHistory(ctx, chatID, messages); setErr == nil {
			if dirty, dirtyErr := s.historyCache.IsDirty(ctx, chatID); dirtyErr != nil || dirty {
				_ = s.historyCache.DeleteHistory(ctx, chatID)
			}
		}
	}
	return messages, nil
}

// ListChats returns the user's chats ordered by most recent activity,
// without messages.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	return s.chatRepo.ListByUser(ctx, userID)
}

// RenameChat changes a chat's title. The new title must not collide with
// another chat of the same user.
func (s *ChatService) RenameChat(ctx context.Context, userID, title, newTitle string) (*model.Chat, error) {
	userID = strings.TrimSpace(userID)
	title = strings.TrimSpace(title)
	newTitle = strings.TrimSpace(newTitle)
	if userID == "" || title == "" || newTitle == "" {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByUserAndTitle(ctx, userID, title)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	return s.chatRepo.UpdateTitle(ctx, chat.ID, newTitle)
}

// DeleteChat removes a chat and every message it owns in one transaction.
func (s *ChatService) DeleteChat(ctx context.Context, userID, title string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(title) == "" {
		return ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByUserAndTitle(ctx, userID, title)
	if err != nil {
		return err
	}
	if chat == nil {
		return ErrChatNotFound
	}

	if err := s.chatRepo.DeleteWithMessages(ctx, chat.ID); err != nil {
		return err
	}

	s.afterMutation(ctx, model.ChatEvent{Type: model.EventChatDeleted, ChatID: chat.ID})
	return nil
}

// afterMutation invalidates the cache and emits the chat event. Both are
// best effort; the durable write has already committed.
func (s *ChatService) afterMutation(ctx context.Context, event model.ChatEvent) {
	if s.historyCache != nil {
		if err := s.historyCache.MarkDirty(ctx, event.ChatID); err != nil {
			s.logger.Warn("mark history dirty failed", zap.Error(err))
		}
		if err := s.historyCache.DeleteHistory(ctx, event.ChatID); err != nil {
			s.logger.Warn("drop cached history failed", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("publish chat event failed",
				zap.String("type", event.Type),
				zap.Error(err))
		}
	}
}

package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/ai"
	"chatrelay/internal/app"
	"chatrelay/internal/model"
	"chatrelay/internal/repository/memory"
)

type stubLLM struct {
	answer     string
	err        error
	lastPrompt []ai.ChatMessage
	calls      int
}

func (s *stubLLM) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	s.calls++
	s.lastPrompt = messages
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func newService(store *memory.Store, llm app.LLMClient) *app.ChatService {
	return app.NewChatService(store, store, llm, nil, nil, nil, "You are a test assistant.", 25000)
}

func TestAskCreatesChatAndPersistsTurn(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	llm := &stubLLM{answer: "Mount Everest, at 8849 meters."}
	svc := newService(store, llm)

	result, err := svc.Ask(ctx, app.AskInput{
		UserID:   "u1",
		Title:    "C1",
		Question: "What is the tallest mountain in the world?",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Answer)
	require.NotEqual(t, "", result.ChatID.String())

	messages, err := store.ListByChatID(ctx, result.ChatID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, "What is the tallest mountain in the world?", messages[0].Content)
	assert.Equal(t, model.RoleAssistant, messages[1].Role)
	assert.Equal(t, result.Answer, messages[1].Content)
	assert.Equal(t, result.UserMessageID, messages[0].ID)
	assert.Equal(t, result.AssistantMessageID, messages[1].ID)
}

func TestAskFollowUpReusesChatAndContext(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	llm := &stubLLM{answer: "Mount Everest, at 8849 meters."}
	svc := newService(store, llm)

	first, err := svc.Ask(ctx, app.AskInput{
		UserID:   "u1",
		Title:    "C1",
		Question: "What is the tallest mountain in the world?",
	})
	require.NoError(t, err)

	llm.answer = "It is 8849 meters tall."
	second, err := svc.Ask(ctx, app.AskInput{
		UserID:   "u1",
		Title:    "C1",
		Question: "How tall is it?",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ChatID, second.ChatID)

	// prompt: system, first Q, first A, new question
	require.Len(t, llm.lastPrompt, 4)
	assert.Equal(t, model.RoleSystem, llm.lastPrompt[0].Role)
	assert.Equal(t, "What is the tallest mountain in the world?", llm.lastPrompt[1].Content)
	assert.Equal(t, "Mount Everest, at 8849 meters.", llm.lastPrompt[2].Content)
	assert.Equal(t, "How tall is it?", llm.lastPrompt[3].Content)

	messages, err := store.ListByChatID(ctx, first.ChatID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "How tall is it?", messages[2].Content)
	assert.Equal(t, "It is 8849 meters tall.", messages[3].Content)
}

func TestAskGatewayFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	llm := &stubLLM{err: &ai.GatewayError{StatusCode: 500, Err: errors.New("boom")}}
	svc := newService(store, llm)

	_, err := svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "C1", Question: "hello?"})
	var gatewayErr *ai.GatewayError
	require.ErrorAs(t, err, &gatewayErr)

	chat, err := store.GetByUserAndTitle(ctx, "u1", "C1")
	require.NoError(t, err)
	require.NotNil(t, chat)

	messages, err := store.ListByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, messages, "a question must never be recorded without its answer")
}

func TestAskRejectsMissingFields(t *testing.T) {
	svc := newService(memory.NewStore(), &stubLLM{answer: "x"})

	_, err := svc.Ask(context.Background(), app.AskInput{UserID: "u1", Title: "C1"})
	assert.ErrorIs(t, err, app.ErrInvalidInput)

	_, err = svc.Ask(context.Background(), app.AskInput{UserID: "u1", Question: "q"})
	assert.ErrorIs(t, err, app.ErrInvalidInput)
}

func TestAskRejectsQuestionOverBudget(t *testing.T) {
	store := memory.NewStore()
	llm := &stubLLM{answer: "x"}
	svc := app.NewChatService(store, store, llm, nil, nil, nil, "", 50)

	_, err := svc.Ask(context.Background(), app.AskInput{
		UserID:   "u1",
		Title:    "C1",
		Question: strings.Repeat("q", 1000),
	})
	assert.ErrorIs(t, err, app.ErrContextTooLarge)
	assert.Zero(t, llm.calls, "the gateway must not be called for an oversize question")
}

// raceChatRepo simulates losing a chat-creation race: the first lookup sees
// nothing, the create hits the uniqueness constraint, and the second lookup
// finds the winner's row.
type raceChatRepo struct {
	*memory.Store
	missedFirstLookup bool
}

func (r *raceChatRepo) GetByUserAndTitle(ctx context.Context, userID, title string) (*model.Chat, error) {
	if !r.missedFirstLookup {
		r.missedFirstLookup = true
		return nil, nil
	}
	return r.Store.GetByUserAndTitle(ctx, userID, title)
}

func TestAskRecoversFromCreateRace(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	winner := &model.Chat{UserID: "u1", Title: "C1"}
	require.NoError(t, store.Create(ctx, winner))

	repo := &raceChatRepo{Store: store}
	llm := &stubLLM{answer: "hi"}
	svc := app.NewChatService(repo, store, llm, nil, nil, nil, "", 25000)

	result, err := svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "C1", Question: "first?"})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, result.ChatID, "the loser must adopt the winner's chat")
}

func TestRenameAndDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store, &stubLLM{answer: "a"})

	created, err := svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "T", Question: "q"})
	require.NoError(t, err)

	renamed, err := svc.RenameChat(ctx, "u1", "T", "T2")
	require.NoError(t, err)
	assert.Equal(t, created.ChatID, renamed.ID)
	assert.Equal(t, "T2", renamed.Title)

	detail, err := svc.GetChat(ctx, "u1", "T2")
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 2)

	_, err = svc.GetChat(ctx, "u1", "T")
	assert.ErrorIs(t, err, app.ErrChatNotFound)

	require.NoError(t, svc.DeleteChat(ctx, "u1", "T2"))

	_, err = svc.GetChat(ctx, "u1", "T2")
	assert.ErrorIs(t, err, app.ErrChatNotFound)

	chats, err := svc.ListChats(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestRenameConflictsWithExistingTitle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store, &stubLLM{answer: "a"})

	_, err := svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "A", Question: "q"})
	require.NoError(t, err)
	_, err = svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "B", Question: "q"})
	require.NoError(t, err)

	_, err = svc.RenameChat(ctx, "u1", "A", "B")
	assert.ErrorIs(t, err, app.ErrChatExists)
}

func TestDeleteMissingChat(t *testing.T) {
	svc := newService(memory.NewStore(), &stubLLM{answer: "a"})
	err := svc.DeleteChat(context.Background(), "u1", "nope")
	assert.ErrorIs(t, err, app.ErrChatNotFound)
}

func TestListChatsOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store, &stubLLM{answer: "a"})

	_, err := svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "older", Question: "q"})
	require.NoError(t, err)
	_, err = svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "newer", Question: "q"})
	require.NoError(t, err)

	// touch the older chat again so it becomes the most recent
	_, err = svc.Ask(ctx, app.AskInput{UserID: "u1", Title: "older", Question: "again"})
	require.NoError(t, err)

	chats, err := svc.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "older", chats[0].Title)
	assert.Equal(t, "newer", chats[1].Title)
}

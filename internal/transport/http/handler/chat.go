package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/ai"
	"chatrelay/internal/app"
	"chatrelay/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type AskRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	ChatTitle string `json:"chat_title" binding:"required,max=128"`
	Question  string `json:"question" binding:"required"`
}

type RenameChatRequest struct {
	NewTitle string `json:"new_title" binding:"required,max=128"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Ask answers a question inside the chat named by (user_id, chat_title),
// creating the chat on first use.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Ask(c.Request.Context(), app.AskInput{
		UserID:   req.UserID,
		Title:    req.ChatTitle,
		Question: req.Question,
	})
	if err != nil {
		h.writeError(c, err, "ask failed")
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	detail, err := h.chatService.GetChat(c.Request.Context(), c.Param("user_id"), c.Param("chat_title"))
	if err != nil {
		h.writeError(c, err, "get chat failed")
		return
	}
	response.OK(c, detail)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chatService.ListChats(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.writeError(c, err, "list chats failed")
		return
	}
	response.OK(c, chats)
}

func (h *ChatHandler) RenameChat(c *gin.Context) {
	var req RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	chat, err := h.chatService.RenameChat(c.Request.Context(), c.Param("user_id"), c.Param("chat_title"), req.NewTitle)
	if err != nil {
		h.writeError(c, err, "rename chat failed")
		return
	}
	response.OK(c, chat)
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID := c.Param("user_id")
	title := c.Param("chat_title")

	if err := h.chatService.DeleteChat(c.Request.Context(), userID, title); err != nil {
		h.writeError(c, err, "delete chat failed")
		return
	}
	response.OK(c, gin.H{"deleted_chat_title": title})
}

func (h *ChatHandler) writeError(c *gin.Context, err error, fallback string) {
	var gatewayErr *ai.GatewayError
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrContextTooLarge):
		response.Error(c, http.StatusBadRequest, response.CodeContextTooLarge, err.Error())
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
	case errors.Is(err, app.ErrChatExists):
		response.Error(c, http.StatusConflict, response.CodeChatExists, err.Error())
	case errors.As(err, &gatewayErr):
		response.Error(c, http.StatusBadGateway, response.CodeLLMGateway, "llm request failed")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

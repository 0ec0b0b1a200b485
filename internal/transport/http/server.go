package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/ai"
	appsvc "chatrelay/internal/app"
	"chatrelay/internal/bootstrap"
	rabbitmqClient "chatrelay/internal/platform/rabbitmq"
	"chatrelay/internal/repository"
	"chatrelay/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	chatRepo := repository.NewChatRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	publisher := rabbitmqClient.NewChatEventPublisher(app.MQConn, app.Config.RabbitMQ.ChatEventQueue)
	llmClient := ai.NewClient(ai.Config{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
		Timeout: time.Duration(app.Config.LLM.TimeoutSeconds) * time.Second,
	})

	chatService := appsvc.NewChatService(
		chatRepo,
		messageRepo,
		llmClient,
		publisher,
		app.HistoryCache,
		app.Logger,
		app.Config.LLM.SystemPrompt,
		app.Config.LLM.TokenBudget,
	)
	chatHandler := handler.NewChatHandler(chatService)

	v1 := router.Group("/api/v1")
	v1.POST("/ask", chatHandler.Ask)
	v1.GET("/chats/:user_id", chatHandler.ListChats)
	v1.GET("/chats/:user_id/title/:chat_title", chatHandler.GetChat)
	v1.PATCH("/chats/:user_id/title/:chat_title", chatHandler.RenameChat)
	v1.DELETE("/chats/:user_id/title/:chat_title", chatHandler.DeleteChat)

	return router
}

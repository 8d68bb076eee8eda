package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"cortex/internal/ai"
	appsvc "cortex/internal/app"
	"cortex/internal/bootstrap"
	"cortex/internal/crawler"
	"cortex/internal/platform/rabbitmq"
	"cortex/internal/repository"
	"cortex/internal/transport/http/handler"
	"cortex/internal/transport/http/middleware"
)

// InferencePrefixes are where /chat, /upload and /crawl are mounted. Local
// clients hit the root; deployed clients go through /api.
var InferencePrefixes = []string{"", "/api"}

// InferencePaths lists every mounted inference route.
func InferencePaths() []string {
	var paths []string
	for _, prefix := range InferencePrefixes {
		for _, op := range []string{"/chat", "/upload", "/crawl"} {
			paths = append(paths, prefix+op)
		}
	}
	return paths
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	cfg := app.Config
	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, handler.AppProbes(app)...)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	conversationRepo := repository.NewConversationRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)
	auditRepo := repository.NewAuditLogRepository(app.MySQL)
	publisher := rabbitmq.NewPersistPublisher(app.MQConn, cfg.RabbitMQ.PersistQueue)
	llm := ai.NewOpenAICompatibleClient(nil)

	authService := appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	conversationService := appsvc.NewConversationService(conversationRepo, messageRepo, publisher, app.HistoryCache)
	knowledgeService := appsvc.NewKnowledgeService(documentRepo)
	auditService := appsvc.NewAuditService(auditRepo, publisher)
	inferenceService := appsvc.NewInferenceService(
		documentRepo,
		llm,
		llm,
		crawler.New(time.Duration(cfg.RAG.CrawlTimeoutSec)*time.Second),
		ai.EmbeddingConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.EmbeddingModel},
		ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model, Temperature: cfg.LLM.Temperature},
		appsvc.RetrievalOptions{
			ChunkSize:      cfg.RAG.ChunkSize,
			ChunkOverlap:   cfg.RAG.ChunkOverlap,
			MatchCount:     cfg.RAG.MatchCount,
			MatchThreshold: cfg.RAG.MatchThreshold,
		},
	)

	authHandler := handler.NewAuthHandler(authService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	knowledgeHandler := handler.NewKnowledgeHandler(knowledgeService, auditService)
	inferenceHandler := handler.NewInferenceHandler(inferenceService, cfg.RAG.MaxUploadBytes)
	authJWT := middleware.AuthJWT(cfg.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authJWT, authHandler.Me)
	authGroup.POST("/refresh", authJWT, authHandler.Refresh)

	data := v1.Group("")
	data.Use(authJWT)
	data.POST("/conversations", conversationHandler.Create)
	data.GET("/conversations", conversationHandler.List)
	data.DELETE("/conversations/:id", conversationHandler.Delete)
	data.GET("/conversations/:id/messages", conversationHandler.Messages)
	data.POST("/messages", conversationHandler.AppendMessage)
	data.GET("/documents", knowledgeHandler.ListDocuments)
	data.POST("/audit-logs", knowledgeHandler.RecordAudit)
	data.GET("/audit-logs", knowledgeHandler.ListAudit)

	for _, prefix := range InferencePrefixes {
		group := router.Group(prefix)
		group.POST("/chat", authJWT, inferenceHandler.Chat)
		group.POST("/upload", authJWT, inferenceHandler.Upload)
		group.POST("/crawl", authJWT, inferenceHandler.Crawl)
	}

	return router
}

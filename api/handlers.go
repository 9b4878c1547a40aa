package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gcbaptista/patient-search/internal/metrics"
	"github.com/gcbaptista/patient-search/internal/protocol"
	"github.com/gcbaptista/patient-search/services"
)

// MessageHandler answers one protocol message.
type MessageHandler interface {
	Handle(ctx context.Context, msg protocol.Message) protocol.Message
}

// API holds dependencies for API handlers.
type API struct {
	engine     services.Engine
	dispatcher MessageHandler
	logger     *zap.Logger
}

// NewAPI creates a new API handler structure.
func NewAPI(engine services.Engine, dispatcher MessageHandler, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{engine: engine, dispatcher: dispatcher, logger: logger.Named("api")}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// NewRouter builds a gin engine with the standard middleware chain and all routes.
func NewRouter(engine services.Engine, dispatcher MessageHandler, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	router := gin.New()
	router.Use(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		metrics.Middleware(),
		CORSMiddleware(),
		RequestSizeLimitMiddleware(maxBody),
	)
	SetupRoutes(router, engine, dispatcher, logger)
	return router
}

// SetupRoutes defines all the API routes of the patient search service.
func SetupRoutes(router *gin.Engine, engine services.Engine, dispatcher MessageHandler, logger *zap.Logger) {
	apiHandler := NewAPI(engine, dispatcher, logger)

	router.GET("/health", apiHandler.HealthCheckHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Message channel over HTTP
	router.POST("/messages", apiHandler.PostMessageHandler)

	router.POST("/patients/_search", apiHandler.SearchHandler)
	router.POST("/sync", apiHandler.SyncHandler)

	router.GET("/analytics", apiHandler.GetAnalyticsHandler)

	jobRoutes := router.Group("/jobs")
	{
		jobRoutes.GET("", apiHandler.ListJobsHandler)
		jobRoutes.GET("/metrics", apiHandler.GetJobMetricsHandler)
		jobRoutes.GET("/:jobId", apiHandler.GetJobHandler)
	}
}

// HealthCheckHandler reports liveness and the corpus in service.
func (api *API) HealthCheckHandler(c *gin.Context) {
	info := api.engine.CorpusInfo()
	status := "healthy"
	if !info.Loaded {
		status = "loading"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"corpus": info,
	})
}

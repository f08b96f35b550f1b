package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/inkwell-notes/inkwell-backend/internal/http/handlers"
	httpMW "github.com/inkwell-notes/inkwell-backend/internal/http/middleware"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware
	RateLimit      gin.HandlerFunc

	HealthHandler    *httpH.HealthHandler
	NoteHandler      *httpH.NoteHandler
	UploadHandler    *httpH.UploadHandler
	ChatHandler      *httpH.ChatHandler
	VisualizeHandler *httpH.VisualizeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("inkwell-backend"))
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.NoteHandler != nil {
			api.POST("/notes", cfg.NoteHandler.CreateNote)
			api.GET("/notes", cfg.NoteHandler.ListNotes)
			api.GET("/notes/:id", cfg.NoteHandler.GetNote)
			api.PUT("/notes/:id", cfg.NoteHandler.UpdateNote)
			api.DELETE("/notes/:id", cfg.NoteHandler.DeleteNote)
		}

		// Model-backed routes carry the request budget.
		limited := api.Group("/")
		if cfg.RateLimit != nil {
			limited.Use(cfg.RateLimit)
		}
		if cfg.NoteHandler != nil {
			limited.POST("/notes/:id/ingest", cfg.NoteHandler.IngestNote)
		}
		if cfg.UploadHandler != nil {
			limited.POST("/upload", cfg.UploadHandler.UploadPDF)
		}
		if cfg.ChatHandler != nil {
			limited.POST("/chat", cfg.ChatHandler.Chat)
		}
		if cfg.VisualizeHandler != nil {
			limited.POST("/visualize", cfg.VisualizeHandler.Visualize)
		}
	}

	return r
}

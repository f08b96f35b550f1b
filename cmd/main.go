package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inkwell-notes/inkwell-backend/internal/config"
	"github.com/inkwell-notes/inkwell-backend/internal/data/repos/notes"
	"github.com/inkwell-notes/inkwell-backend/internal/data/repos/user"
	"github.com/inkwell-notes/inkwell-backend/internal/db"
	inkhttp "github.com/inkwell-notes/inkwell-backend/internal/http"
	"github.com/inkwell-notes/inkwell-backend/internal/http/handlers"
	"github.com/inkwell-notes/inkwell-backend/internal/http/middleware"
	"github.com/inkwell-notes/inkwell-backend/internal/observability"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/envutil"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/pdftext"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/qdrant"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/ratelimit"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/vecstore"
	"github.com/inkwell-notes/inkwell-backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	shutdownTracing, err := observability.SetupTracing(log)
	if err != nil {
		log.Error("Could not init tracing", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	userRepo := user.NewUserRepo(thePG, log)
	noteRepo := notes.NewNoteRepo(thePG, log)
	chunkRepo := notes.NewChunkRepo(thePG, log)

	// Vector store
	vectors, err := buildVectorStore(log, cfg)
	if err != nil {
		log.Error("Could not init vector store", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services...")
	geminiClient, err := services.NewGeminiClient(log)
	if err != nil {
		log.Error("Could not init GeminiClient", "error", err)
		os.Exit(1)
	}
	verifier, err := services.NewTokenVerifier(log)
	if err != nil {
		log.Error("Could not init TokenVerifier", "error", err)
		os.Exit(1)
	}

	chunker := services.NewChunker(services.DefaultChunkSize, services.DefaultChunkOverlap)
	indexer := services.NewIndexer(log, thePG, noteRepo, chunkRepo, geminiClient, vectors, pdftext.New(), chunker)
	scheduler := services.NewReindexScheduler(log, indexer)
	noteService := services.NewNoteService(log, noteRepo, scheduler)
	retriever := services.NewRetriever(log, chunkRepo, geminiClient, vectors)
	chatService := services.NewChatService(log, retriever, geminiClient)
	graphService := services.NewGraphService(log, geminiClient)

	// HTTP
	server := inkhttp.NewServer(inkhttp.RouterConfig{
		Log:              log,
		AuthMiddleware:   middleware.NewAuthMiddleware(log, verifier, userRepo),
		RateLimit:        middleware.RateLimit(log, buildRateLimiter(log, cfg)),
		HealthHandler:    handlers.NewHealthHandler(),
		NoteHandler:      handlers.NewNoteHandler(log, noteService, scheduler),
		UploadHandler:    handlers.NewUploadHandler(log, indexer),
		ChatHandler:      handlers.NewChatHandler(log, chatService),
		VisualizeHandler: handlers.NewVisualizeHandler(log, noteService, graphService),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "address", cfg.Server.Address)
		errCh <- server.Run(cfg.Server.Address)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("Server stopped", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("Server shutdown error", "error", err)
	}
	scheduler.Close()
	if err := shutdownTracing(ctx); err != nil {
		log.Warn("Tracing shutdown error", "error", err)
	}
}

// buildVectorStore picks the configured backend. The in-memory store exists
// for local development; its contents do not survive a restart.
func buildVectorStore(log *logger.Logger, cfg config.Config) (vecstore.VectorStore, error) {
	embedDim := envutil.Int("GEMINI_EMBED_DIM", 768)

	if cfg.Vector.Provider == "memory" {
		log.Warn("Using in-memory vector store; index is lost on restart")
		return vecstore.NewMemoryStore(log, embedDim), nil
	}

	qcfg, err := qdrant.ResolveConfigFromEnv(embedDim)
	if err != nil {
		return nil, err
	}
	return qdrant.NewVectorStore(log, qcfg)
}

func buildRateLimiter(log *logger.Logger, cfg config.Config) ratelimit.Limiter {
	if cfg.Redis.Addr == "" {
		log.Warn("REDIS_ADDR not set; rate limiting is per-process only")
		return ratelimit.NewMemoryLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Window)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return ratelimit.NewRedisLimiter(log, client, cfg.RateLimit.PerMinute, cfg.RateLimit.Window)
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/SvenBotha/SourceChat/internal/chunker"
	"github.com/SvenBotha/SourceChat/internal/config"
	"github.com/SvenBotha/SourceChat/internal/database"
	"github.com/SvenBotha/SourceChat/internal/github"
	"github.com/SvenBotha/SourceChat/internal/handler"
	"github.com/SvenBotha/SourceChat/internal/middleware"
	"github.com/SvenBotha/SourceChat/internal/repository"
	"github.com/SvenBotha/SourceChat/internal/service"
	"github.com/SvenBotha/SourceChat/internal/source"
)

// shutdownTimeout bounds how long running jobs and open requests get to finish.
const shutdownTimeout = 30 * time.Second

// main is the single entry‑point for the REST API.
func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("Configuration loaded:")
	log.Printf("  - Repositories directory: %s", cfg.ReposDir)
	log.Printf("  - Embeddings: %s (%s)", cfg.EmbeddingProvider, cfg.EmbeddingModel)
	log.Printf("  - Generation: %s (%s)", cfg.LLMProvider, cfg.LLMModel)
	log.Printf("  - Chunking: size %d, overlap %d, max %d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.MaxChunkSize)

	ctx := context.Background()

	// Stores: MongoDB when configured, memory otherwise
	var (
		repoStore   service.RepoStore
		vectorStore service.VectorStore
		backend     string
	)
	if cfg.MongoURI != "" {
		db, err := database.NewMongo(ctx, cfg.MongoURI, cfg.DBName)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer db.Client().Disconnect(context.Background())
		log.Printf("Connected to MongoDB, using database: %s", cfg.DBName)
		repoStore = repository.NewRepoRepository(db)
		vectorStore = repository.NewVectorRepository(db)
		backend = "mongodb"
	} else {
		log.Printf("MONGODB_URI not set; using in-memory stores (state is lost on restart)")
		repoStore = repository.NewMemoryRepoStore()
		vectorStore = repository.NewMemoryVectorStore()
		backend = "memory"
	}

	embedder, closeEmbedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}
	defer closeEmbedder()

	generator, closeGenerator, err := newGenerator(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize generator: %v", err)
	}
	defer closeGenerator()

	// Acquisition
	var lookup source.RepoLookup
	if cfg.GitHubPreflight {
		gh := github.NewClient(cfg.GitHubToken)
		if !gh.Authenticated() {
			log.Printf("GITHUB_TOKEN not set; GitHub API preflight runs unauthenticated")
		}
		lookup = gh
	}
	filter := source.NewFilter(cfg.SupportedExtensions, cfg.ExcludeGlobs, cfg.MaxFileSizeBytes)
	acquirer := source.NewAcquirer(cfg.ReposDir, source.NewGitCloner(cfg.GitHubToken), lookup, filter, cfg.MaxRepoSizeMB, cfg.CloneTimeout)

	// Pipeline services
	tracker := service.NewTracker(repoStore)
	if err := tracker.Load(ctx); err != nil {
		log.Fatalf("Failed to load repository registry: %v", err)
	}
	retriever := service.NewRetriever(vectorStore, embedder)
	chatSvc := service.NewChatService(retriever, generator, service.ChatOptions{
		TopK:              cfg.TopK,
		MaxPromptChars:    cfg.MaxPromptChars,
		GenerationTimeout: cfg.GenerationTimeout,
	})
	repoSvc := service.NewRepoService(service.RepoServiceDeps{
		Acquirer: acquirer,
		Chunker: chunker.New(chunker.Options{
			ChunkSize:    cfg.ChunkSize,
			Overlap:      cfg.ChunkOverlap,
			MaxChunkSize: cfg.MaxChunkSize,
		}),
		Indexer: service.NewIndexer(vectorStore, embedder, service.IndexerOptions{
			BatchSize:   cfg.EmbedBatchSize,
			Concurrency: cfg.EmbedConcurrency,
			RatePerSec:  cfg.EmbedRatePerSec,
		}),
		Retriever:      retriever,
		ChatService:    chatSvc,
		Tracker:        tracker,
		Vectors:        vectorStore,
		ChunkWorkers:   cfg.ChunkWorkers,
		ProcessTimeout: cfg.ProcessTimeout,
	})
	codeSvc := service.NewCodeService(tracker, filter)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "SourceChat API",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: handler.ErrorHandler,
	})

	// Add middleware
	middleware.Use(app, cfg.CORSOrigins)

	// Register routes
	handler.RegisterRoutes(app, repoSvc, codeSvc, handler.NewHealthHandler(repoStore, backend, tracker), cfg.TopK)

	// Start server
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Jobs first: process requests wait on them.
	if err := repoSvc.Shutdown(shutdownCtx); err != nil {
		log.Printf("Jobs did not stop cleanly: %v", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}

func newEmbedder(ctx context.Context, cfg config.Config) (service.Embedder, func() error, error) {
	if cfg.EmbeddingProvider == config.ProviderHash {
		log.Printf("Using offline hash embeddings (%d dimensions)", cfg.EmbeddingDimension)
		return service.NewHashEmbedder(cfg.EmbeddingDimension), func() error { return nil }, nil
	}
	e, err := service.NewVertexEmbedder(ctx, cfg.ProjectID, cfg.Location, cfg.EmbeddingModel, cfg.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	return e, e.Close, nil
}

func newGenerator(ctx context.Context, cfg config.Config) (service.Generator, func() error, error) {
	if cfg.LLMProvider == config.ProviderEcho {
		log.Printf("Using offline echo generator")
		return service.EchoGenerator{}, func() error { return nil }, nil
	}
	g, err := service.NewVertexGenerator(ctx, cfg.ProjectID, cfg.Location, cfg.LLMModel, cfg.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}

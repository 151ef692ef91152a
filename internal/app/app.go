// Package app assembles the answer engine's services from configuration.
// The API server and the CLI both build their dependency graph here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/cache"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/config"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/embedding"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/evaluation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/generation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/ingest"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/jobs"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/llm"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/monitoring"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/review"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// App holds every wired service.
type App struct {
	Config     *config.Config
	Logger     *observability.Logger
	DB         *sql.DB
	Repos      *storage.Repositories
	Cache      cache.Client
	Redis      *cache.RedisClient // nil when the memory cache is in use
	Index      *retrieval.MemoryIndex
	Pipeline   *ingest.Pipeline
	Retriever  *retrieval.Retriever
	Secrets    *secrets.Store
	Audit      *monitoring.AuditLogger
	Generation *generation.Service
	Review     *review.Service
	Evaluator  *evaluation.AnswerEvaluator
	Jobs       *jobs.Queue

	NewEmbedder generation.EmbedderFactory
	NewChat     generation.ChatFactory
}

// New wires the full service graph. The vector index is rebuilt from stored
// chunk embeddings so retrieval works immediately after a restart.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	db, err := storage.Open(driverName(cfg.Database.Driver), cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "postgres" {
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.Postgres.ConnMaxLifetime)
	} else {
		db.SetMaxOpenConns(cfg.Database.SQLite.MaxOpenConns)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	repos := storage.NewRepositories(db)

	var cacheClient cache.Client
	var redisClient *cache.RedisClient
	if cfg.Cache.Driver == "redis" {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cacheClient = redisClient
	} else {
		cacheClient = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	index := retrieval.NewMemoryIndex()
	pipeline := ingest.NewPipeline(logger, ingest.PipelineConfig{
		TargetTokens:  cfg.Chunking.TargetTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
		MaxChunkChars: cfg.Chunking.HardCutChars,
		EmbedBatch:    cfg.Embedding.BatchSize,
	}, repos, index)

	if err := rebuildIndex(ctx, logger, repos, pipeline); err != nil {
		cacheClient.Close()
		db.Close()
		return nil, err
	}

	retriever := retrieval.NewRetriever(logger, index, repos.Chunks, cfg.Retrieval.TopK)

	var secretStore *secrets.Store
	if masterKey := os.Getenv(cfg.Secrets.MasterKeyEnv); masterKey != "" {
		secretStore, err = secrets.NewStore(masterKey, repos.Credentials)
		if err != nil {
			cacheClient.Close()
			db.Close()
			return nil, err
		}
	} else {
		logger.Warn().
			Str("env", cfg.Secrets.MasterKeyEnv).
			Msg("Master key not set, credential store disabled")
	}

	audit := monitoring.NewAuditLogger(logger, repos.Audit, redisClient)

	newEmbedder := func(apiKey string) (embedding.Embedder, error) {
		return embedding.NewClient(embedding.Config{
			APIKey:       apiKey,
			Model:        cfg.Embedding.Model,
			BaseURL:      cfg.Embedding.BaseURL,
			Dimension:    cfg.Embedding.Dimension,
			MaxBatchSize: cfg.Embedding.BatchSize,
			Timeout:      cfg.Embedding.Timeout,
		})
	}
	newChat := func(apiKey string) (llm.ChatClient, error) {
		return llm.NewClient(llm.Config{
			APIKey:  apiKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		})
	}

	generationSvc := generation.NewService(logger, generation.ServiceConfig{
		Model:             cfg.LLM.Model,
		ScoringModel:      cfg.LLM.ScoringModel,
		Temperature:       cfg.LLM.Temperature,
		CoverageThreshold: cfg.Retrieval.RelevanceThreshold,
		Weights:           generation.DefaultConfidenceWeights(),
	}, repos, retriever, secretStore, audit, newEmbedder, newChat)

	reviewSvc := review.NewService(logger, repos, audit)

	var evalCache cache.Client
	if cfg.Evaluation.CacheResults {
		evalCache = cacheClient
	}
	evalSvc := evaluation.NewService(logger, evalCache, cfg.Evaluation.CacheTTL)
	batch := evaluation.NewBatchEvaluator(logger, evalSvc, cfg.Evaluation.BatchWorkers, 0)
	evaluator := evaluation.NewAnswerEvaluator(
		logger, repos, secretStore, evalSvc, batch, audit,
		evaluation.EmbedderFactory(newEmbedder), generation.Provider,
	)

	queue := jobs.NewQueue(logger, jobs.Config{
		Workers:      cfg.Jobs.Workers,
		QueueSize:    cfg.Jobs.QueueCapacity,
		MaxAttempts:  cfg.Jobs.MaxRetries,
		RetryBackoff: cfg.Jobs.RetryBackoff,
	}, redisClient)

	return &App{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Repos:       repos,
		Cache:       cacheClient,
		Redis:       redisClient,
		Index:       index,
		Pipeline:    pipeline,
		Retriever:   retriever,
		Secrets:     secretStore,
		Audit:       audit,
		Generation:  generationSvc,
		Review:      reviewSvc,
		Evaluator:   evaluator,
		Jobs:        queue,
		NewEmbedder: newEmbedder,
		NewChat:     newChat,
	}, nil
}

// ValidateKey checks a candidate provider API key with a one-item embedding
// call before it is stored. A ProviderError from the probe means the key was
// rejected upstream.
func (a *App) ValidateKey(ctx context.Context, apiKey string) error {
	embedder, err := a.NewEmbedder(apiKey)
	if err != nil {
		return err
	}
	if _, err := embedder.EmbedSingle(ctx, "credential check"); err != nil {
		return fmt.Errorf("validate api key: %w", err)
	}
	return nil
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	a.Jobs.Start(ctx)
}

// Close shuts everything down in reverse dependency order.
func (a *App) Close() {
	a.Jobs.Stop()
	if err := a.Cache.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close cache")
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close database")
	}
}

func rebuildIndex(ctx context.Context, logger *observability.Logger, repos *storage.Repositories, pipeline *ingest.Pipeline) error {
	namespaces, err := repos.Chunks.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("list chunk namespaces: %w", err)
	}
	total := 0
	for _, ns := range namespaces {
		n, err := pipeline.RebuildNamespace(ctx, ns[0], ns[1])
		if err != nil {
			return fmt.Errorf("rebuild namespace %s/%s: %w", ns[0], ns[1], err)
		}
		total += n
	}
	if len(namespaces) > 0 {
		logger.Info().
			Int("namespaces", len(namespaces)).
			Int("chunks", total).
			Msg("Vector index rebuilt from storage")
	}
	return nil
}

func driverName(driver string) string {
	if driver == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/core/usecase"
	"github.com/kirillkom/docqa/internal/infrastructure/chunking"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/dispatch"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docqa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
	"github.com/kirillkom/docqa/internal/infrastructure/snapshot/localfs"
	"github.com/kirillkom/docqa/internal/infrastructure/snapshot/qdrant"
	"github.com/kirillkom/docqa/internal/infrastructure/snapshot/redis"
	storagefs "github.com/kirillkom/docqa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/memory"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

// Engine is the query side: the in-memory index, its snapshots and the LLM
// collaborators. It needs neither Postgres nor NATS.
type Engine struct {
	Config config.Config
	Logger *slog.Logger

	Index     *memory.Index
	Snapshots ports.SnapshotStore
	Executor  *resilience.Executor
	Metrics   *metrics.WorkerMetrics

	Embedder  ports.Embedder
	Generator ports.AnswerGenerator

	QueryUC *usecase.QueryUseCase
	ScopeUC *usecase.ScopeUseCase

	closers []func()
}

type EngineOptions struct {
	Service       string
	Logger        *slog.Logger
	QueryObserver usecase.QueryObserver
}

func NewEngine(ctx context.Context, cfg config.Config, opts EngineOptions) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profiles, err := cfg.Profiles()
	if err != nil {
		return nil, fmt.Errorf("load retrieval profiles: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics(opts.Service)
	executor := resilience.NewExecutor(resilienceConfig(cfg)).WithObserver(workerMetrics)

	index := memory.New()
	workerMetrics.RegisterIndexSize(index.Len)

	engine := &Engine{
		Config:   cfg,
		Logger:   logger,
		Index:    index,
		Executor: executor,
		Metrics:  workerMetrics,
	}

	snapshots, closeSnapshots, err := newSnapshotStore(ctx, cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}
	engine.Snapshots = snapshots
	if closeSnapshots != nil {
		engine.closers = append(engine.closers, closeSnapshots)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithExecutor(executor),
		ollama.WithTimeout(time.Duration(cfg.OllamaTimeoutSeconds)*time.Second),
		ollama.WithEmbedBatch(cfg.OllamaEmbedBatch),
	)
	engine.Embedder = ollama.NewEmbedder(ollamaClient)
	engine.Generator = ollama.NewGenerator(ollamaClient)

	engine.QueryUC = usecase.NewQueryUseCase(index, engine.Embedder, engine.Generator, usecase.QueryOptions{
		Profiles:        profiles,
		Gate:            cfg.Gate(),
		ContextMaxChars: cfg.RAGContextMaxChars,
		MaxCitations:    cfg.RAGMaxCitations,
		Observer:        opts.QueryObserver,
		Logger:          logger,
	})
	engine.ScopeUC = usecase.NewScopeUseCase(index, snapshots, workerMetrics, logger)
	return engine, nil
}

// Processor builds the ingestion pipeline over objects in storage. repo may
// be nil when only Ingest/IngestBatch are used.
func (e *Engine) Processor(repo ports.DocumentRepository, storage ports.ObjectStorage) *usecase.ProcessDocumentUseCase {
	return usecase.NewProcessDocumentUseCase(
		repo,
		dispatch.NewExtractor(storage),
		chunking.NewSentenceSplitter(e.Config.ChunkSize, e.Config.ChunkOverlap),
		e.Embedder,
		e.Index,
		usecase.WithSnapshotter(e.ScopeUC),
		usecase.WithIngestObserver(e.Metrics),
		usecase.WithConcurrency(e.Config.IngestConcurrency),
		usecase.WithDocumentTimeout(time.Duration(e.Config.IngestTimeoutSeconds)*time.Second),
		usecase.WithProcessLogger(e.Logger),
	)
}

func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func newSnapshotStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.SnapshotStore, func(), error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotBackendFile, "":
		store, err := localfs.New(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.SnapshotBackendRedis:
		client, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		ttl := time.Duration(cfg.RedisSnapshotTTLHours) * time.Hour
		return redis.New(client, "", ttl, executor), func() { _ = client.Close() }, nil
	case config.SnapshotBackendQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantSnapshotCollection, executor), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:         cfg.ResilienceRetryMultiplier,
		BreakerEnabled:          cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.ResilienceBreakerOpenTimeoutSec) * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// App is the full service: the engine plus document metadata, object
// storage and the ingestion queue.
type App struct {
	*Engine

	Queue     *nats.Queue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ProcessUC *usecase.ProcessDocumentUseCase
}

func New(ctx context.Context, cfg config.Config, opts EngineOptions) (*App, error) {
	engine, err := NewEngine(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	engine.closers = append(engine.closers, func() { _ = db.Close() })

	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := storagefs.New(cfg.StoragePath)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: engine.Executor,
		Logger:             engine.Logger,
	})
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	engine.closers = append(engine.closers, queue.Close)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue,
		usecase.WithUploadFilter(dispatch.Supported),
		usecase.WithIngestLogger(engine.Logger),
	)
	return &App{
		Engine:    engine,
		Queue:     queue,
		Repo:      repo,
		IngestUC:  ingestUC,
		ProcessUC: engine.Processor(repo, storage),
	}, nil
}

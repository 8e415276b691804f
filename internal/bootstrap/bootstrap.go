package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/nhs-clinical-assistant/internal/config"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/ports"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/usecase"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/embedding/voyage"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/vector/pinecone"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/nhs-clinical-assistant/internal/observability/metrics"
)

const apiService = "api"

// Core is the answer pipeline and indexer without any persistence. The CLI
// runs on it directly.
type Core struct {
	Config   config.Config
	Logger   *slog.Logger
	Executor *resilience.Executor
	Catalog  config.ModelCatalog
	Answers  *usecase.AnswerUseCase
	Indexer  *usecase.IndexCorpusUseCase
}

// NewCore wires providers and use cases. It makes no network calls; missing
// credentials surface as configuration errors on the first query.
func NewCore(cfg config.Config, logger *slog.Logger, onBreakerChange func(operation string, from, to resilience.State)) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		logger.Warn("credentials_incomplete", "error", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg, onBreakerChange), logger)

	embedder := voyage.New(voyage.Config{
		APIKey:          cfg.VoyageAPIKey,
		BaseURL:         cfg.VoyageURL,
		Model:           cfg.VoyageModel,
		OutputDimension: cfg.VoyageDimension,
		Timeout:         cfg.EmbedTimeout,
	}, executor)

	index, err := newVectorIndex(cfg, executor)
	if err != nil {
		return nil, err
	}

	generator := openaicompat.New(openaicompat.Config{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GenerationBaseURL,
		Timeout: cfg.GenerationTimeout,
	}, executor)

	storage, err := localfs.New(cfg.CorpusPath)
	if err != nil {
		return nil, fmt.Errorf("init corpus storage: %w", err)
	}

	catalog := cfg.Catalog()
	search := usecase.NewSearchService(embedder, index, cfg.Limits(), logger)
	answers := usecase.NewAnswerUseCase(search, generator, catalog, usecase.AnswerSettings{
		Temperature: cfg.Temperature,
		Limits:      cfg.Limits(),
		Prompt:      cfg.PromptSettings(),
		Messages:    cfg.Messages,
	}, logger)
	indexer := usecase.NewIndexCorpusUseCase(
		storage,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		index,
		cfg.VectorNamespace,
		logger,
	)

	return &Core{
		Config:   cfg,
		Logger:   logger,
		Executor: executor,
		Catalog:  catalog,
		Answers:  answers,
		Indexer:  indexer,
	}, nil
}

func newVectorIndex(cfg config.Config, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "pinecone":
		return pinecone.New(pinecone.Config{
			APIKey:     cfg.PineconeAPIKey,
			ControlURL: cfg.PineconeControlURL,
			IndexName:  cfg.PineconeIndexName,
			IndexHost:  cfg.PineconeIndexHost,
			Namespace:  cfg.VectorNamespace,
			Timeout:    cfg.VectorTimeout,
		}, executor), nil
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.VectorNamespace, cfg.VectorTimeout, executor), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.VectorBackend)
	}
}

func resilienceConfig(cfg config.Config, onBreakerChange func(operation string, from, to resilience.State)) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.Resilience.RetryMaxAttempts
	out.BreakerEnabled = cfg.Resilience.BreakerEnabled
	out.BreakerMinRequests = cfg.Resilience.BreakerMinRequests
	out.BreakerFailureRatio = cfg.Resilience.BreakerFailureRatio
	out.BreakerOpenTimeout = cfg.Resilience.BreakerOpenTimeout
	out.OnStateChange = onBreakerChange
	return out
}

// App is the HTTP API: the core plus optional transcript persistence.
type App struct {
	*Core

	Metrics     *metrics.HTTPServerMetrics
	Transcripts ports.TranscriptReader
	Sink        ports.TranscriptSink

	closeFn func()
}

// New wires the API. Transcripts go to NATS when NATS_URL is set, otherwise
// straight to Postgres when POSTGRES_DSN is set; with neither they are not kept.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	httpMetrics := metrics.NewHTTPServerMetrics(apiService)
	core, err := NewCore(cfg, logger, func(operation string, _, to resilience.State) {
		httpMetrics.SetBreakerOpen(apiService, operation, to == resilience.StateOpen)
	})
	if err != nil {
		return nil, err
	}

	app := &App{Core: core, Metrics: httpMetrics}
	var closers []func()

	if cfg.PostgresDSN != "" {
		repo, closeDB, err := openTranscriptRepository(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, closeDB)
		app.Transcripts = repo
		app.Sink = repo
	}

	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: core.Executor,
			Logger:             core.Logger,
		})
		if err != nil {
			runClosers(closers)
			return nil, fmt.Errorf("init transcript queue: %w", err)
		}
		closers = append(closers, queue.Close)
		app.Sink = queue
	}

	if app.Sink == nil {
		core.Logger.Info("transcripts_disabled")
	}
	app.closeFn = func() { runClosers(closers) }
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker persists transcripts published by the API.
type Worker struct {
	Config  config.Config
	Logger  *slog.Logger
	Queue   ports.TranscriptQueue
	Store   ports.TranscriptStore
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NATSURL == "" || cfg.PostgresDSN == "" {
		return nil, errors.New("worker requires NATS_URL and POSTGRES_DSN")
	}

	repo, closeDB, err := openTranscriptRepository(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg, nil), logger)
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init transcript queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Logger:  logger,
		Queue:   queue,
		Store:   repo,
		Metrics: metrics.NewWorkerMetrics("worker"),
		closeFn: func() {
			queue.Close()
			closeDB()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func openTranscriptRepository(ctx context.Context, dsn string) (*postgres.TranscriptRepository, func(), error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewTranscriptRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, func() { _ = db.Close() }, nil
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

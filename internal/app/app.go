// Package app wires configuration, stores, tools and the orchestrator into
// one process-scoped context shared by the HTTP server, the worker and the
// ingest CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"legal-ai-assistant/internal/ai"
	"legal-ai-assistant/internal/config"
	"legal-ai-assistant/internal/legalupdates"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/telemetry"
	"legal-ai-assistant/internal/vectorstore"
	"legal-ai-assistant/services"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App is the application context. It is built once by New and released by
// Close; nothing in it is a package-level singleton.
type App struct {
	Config  *config.Config
	Metrics *telemetry.Metrics

	Recorder     *services.InteractionRecorder
	Documents    *services.DocumentStore
	Updates      *services.DocumentStore
	Extractor    *services.PDFExtractor
	Orchestrator *services.ConversationOrchestrator

	Feed      *legalupdates.Feed
	Scheduler *legalupdates.Scheduler

	// Queue is nil when Redis is disabled.
	Queue *asynq.Client
	Redis *redis.Client

	closers []func(context.Context) error
}

type options struct {
	model    ai.LanguageModel
	embedder ai.Embedder
}

type Option func(*options)

// WithLanguageModel replaces the Gemini client, mainly for tests.
func WithLanguageModel(m ai.LanguageModel) Option {
	return func(o *options) { o.model = m }
}

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e ai.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// New builds the application context. On error everything opened so far is
// closed again.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.Background()); cerr != nil {
				logger.Warn("Cleanup after failed startup", "error", cerr)
			}
		}
	}()

	shutdownTracer, err := telemetry.InitTracer(cfg, "legal-ai-assistant")
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { shutdownTracer(); return nil })

	if a.Metrics, err = telemetry.InitMetrics(); err != nil {
		logger.Warn("Metrics disabled", "error", err)
		a.Metrics, err = nil, nil
	}

	if cfg.RedisEnabled {
		a.Redis, err = config.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return a.Redis.Close() })

		redisOpt, err := cfg.AsynqRedisOpt()
		if err != nil {
			return nil, err
		}
		a.Queue = asynq.NewClient(redisOpt)
		a.onClose(func(context.Context) error { return a.Queue.Close() })
	}

	embedder := o.embedder
	if embedder == nil {
		var closeEmbedder func() error
		embedder, closeEmbedder, err = ai.NewEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
		}
		a.onClose(func(context.Context) error { return closeEmbedder() })
	}
	if a.Redis != nil {
		embedder = ai.NewCachedEmbedder(embedder, a.Redis, ai.EmbeddingNamespace(cfg), cfg.EmbeddingCacheTTL)
	}

	docStore, updateStore, err := a.openStores(cfg, embedder)
	if err != nil {
		return nil, err
	}

	a.Recorder = services.NewInteractionRecorder(cfg.InteractionLogDir)
	a.Extractor = services.NewPDFExtractor(cfg.MaxFileSize)
	a.Documents = services.NewDocumentStore(docStore, services.DocumentStoreOptions{
		Collection:   cfg.DocumentsCollection,
		ChunkSize:    cfg.MaxChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		DefaultK:     cfg.DefaultSearchK,
		Recorder:     a.Recorder,
		Metrics:      a.Metrics,
	})
	a.Updates = services.NewDocumentStore(updateStore, services.DocumentStoreOptions{
		Collection:   cfg.UpdatesCollection,
		ChunkSize:    cfg.MaxChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		DefaultK:     cfg.DefaultSearchK,
		Recorder:     a.Recorder,
		Metrics:      a.Metrics,
	})

	var collector services.UpdateCollector
	if cfg.UpdatesEnabled {
		a.Feed = newFeed(cfg)
		collector = a.Feed
		a.Scheduler = legalupdates.NewScheduler(a.Feed, services.UpdatesSink(a.Updates), cfg.UpdatesTimeout)
		a.onClose(func(context.Context) error { a.Scheduler.Stop(); return nil })
	}

	a.Orchestrator = services.NewConversationOrchestrator(
		a.Documents,
		services.NewContextAssembler(cfg.MaxEvidenceChars),
		a.Recorder,
		a.Metrics,
		services.OrchestratorConfig{
			MaxToolIterations: cfg.MaxToolIterations,
			TurnTimeout:       cfg.ChatTurnTimeout,
			HistoryLimit:      cfg.ChatHistoryLimit,
			SearchK:           cfg.DefaultSearchK,
		},
	)
	a.onClose(func(context.Context) error { a.Orchestrator.Shutdown(); return nil })

	model := o.model
	if model == nil && !cfg.LLMDisabled {
		gemini, err := ai.NewGeminiClient(ctx, cfg, a.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		a.onClose(func(context.Context) error { return gemini.Close() })
		model = gemini
	}

	if model != nil {
		tools := []services.Tool{
			services.NewUpdateSearchTool(collector, cfg.UpdatesMaxResults, a.Updates, a.Documents),
			services.NewFallbackTool(),
		}
		if err := a.Orchestrator.Initialize(model, tools...); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("Language model disabled, chat requests will report the assistant as not ready")
	}

	logger.Info("Application initialized",
		"vector_store", cfg.VectorStore,
		"embeddings", cfg.EmbeddingsProvider,
		"redis", cfg.RedisEnabled,
		"updates", cfg.UpdatesEnabled,
		"orchestrator", a.Orchestrator.State().String(),
	)
	return a, nil
}

func (a *App) openStores(cfg *config.Config, embedder ai.Embedder) (vectorstore.Store, vectorstore.Store, error) {
	if cfg.VectorStore == "memory" {
		return vectorstore.NewMemoryStore(embedder), vectorstore.NewMemoryStore(embedder), nil
	}

	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(func(ctx context.Context) error { return client.Disconnect(ctx) })

	db := client.Database(cfg.DBName)
	return newMongoStore(db, cfg.DocumentsCollection, embedder, cfg),
		newMongoStore(db, cfg.UpdatesCollection, embedder, cfg),
		nil
}

func newMongoStore(db *mongo.Database, collection string, embedder ai.Embedder, cfg *config.Config) *vectorstore.MongoStore {
	return vectorstore.NewMongoStore(db.Collection(collection), embedder, vectorstore.MongoOptions{
		VectorSearch: cfg.VectorSearchEnabled,
		VectorIndex:  cfg.VectorIndexName,
	})
}

func newFeed(cfg *config.Config) *legalupdates.Feed {
	fetcher := legalupdates.NewFetcher(cfg.UpdatesTimeout)
	feed := legalupdates.NewFeed(
		legalupdates.NewBillsSource(fetcher, cfg.PRSBillsURL),
		legalupdates.NewAmendmentsSource(fetcher, cfg.AmendmentsURL),
	)
	return feed.WithSectionLookup(func(section string) legalupdates.Source {
		return legalupdates.NewSectionSource(fetcher, cfg.IndiaCodeURL, section)
	})
}

// StartScheduler schedules the periodic updates refresh. It is a no-op when
// the updates feed is disabled.
func (a *App) StartScheduler() error {
	if a.Scheduler == nil {
		return nil
	}
	if err := a.Scheduler.ScheduleRefresh(a.Config.UpdatesRefreshCron); err != nil {
		return fmt.Errorf("invalid UPDATES_REFRESH_CRON %q: %w", a.Config.UpdatesRefreshCron, err)
	}
	a.Scheduler.Start()
	logger.Info("Legal updates refresh scheduled", "cron", a.Config.UpdatesRefreshCron)
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okulai/okulai/db"
	"github.com/okulai/okulai/internal/config"
	"github.com/okulai/okulai/internal/expert"
	"github.com/okulai/okulai/internal/gen"
	"github.com/okulai/okulai/internal/knowledge"
	"github.com/okulai/okulai/internal/log"
	"github.com/okulai/okulai/internal/memory"
	"github.com/okulai/okulai/internal/retrieval"
	"github.com/okulai/okulai/internal/tutor"
)

// Setup creates and initializes the application. Call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(
		knowledge.NewPG(pool),
		knowledge.NewEmbedder(embedder),
		logger,
	)

	// The temperature option uses the Gemini request config type, so it is
	// only set for the gemini provider. Other providers keep model defaults.
	var temperature float32
	if cfg.Provider == config.ProviderGemini {
		temperature = cfg.Temperature
	}

	generator := gen.NewClient(g, gen.ClientConfig{
		ModelName:   cfg.ModelName,
		Temperature: temperature,
		CallTimeout: cfg.Generation.CallTimeout,
		Retry:       gen.RetryConfig{MaxAttempts: cfg.Generation.MaxAttempts},
		Admission: gen.AdmissionConfig{
			RatePerSecond: cfg.Generation.RatePerSecond,
			Burst:         cfg.Generation.Burst,
			MaxConcurrent: cfg.Generation.MaxConcurrent,
			QueueSize:     cfg.Generation.QueueSize,
		},
	}, logger)

	a.Memory = memory.New(memory.NewPG(pool), generator, memory.Config{
		WindowTurns:      cfg.Memory.WindowTurns,
		CompactThreshold: cfg.Memory.CompactThreshold,
		IdleTimeout:      cfg.Memory.IdleTimeout,
		JanitorInterval:  cfg.Memory.JanitorInterval,
		SummaryTimeout:   cfg.Memory.SummaryTimeout,
	}, logger)
	a.janitor = memory.NewJanitor(a.Memory, logger)

	retriever := retrieval.New(a.Knowledge, retrieval.Config{
		Alpha:             cfg.Retrieval.Alpha,
		TopK:              cfg.Retrieval.TopK,
		UseMMR:            cfg.Retrieval.UseMMR,
		MMRLambda:         cfg.Retrieval.MMRLambda,
		CollectionTimeout: cfg.Retrieval.CollectionTimeout,
	}, logger)

	reranker := retrieval.NewReranker(generator, retrieval.RerankConfig{
		ContextBudget:   cfg.Rerank.ContextBudget,
		JudgmentTimeout: cfg.Rerank.JudgmentTimeout,
		WeakTopicBoost:  cfg.Rerank.WeakTopicBoost,
	}, logger)

	registry := expert.DefaultRegistry()
	classifier := expert.NewClassifier(registry, generator, logger)
	router := expert.NewRouter(registry, classifier, generator, expert.Config{
		ConfidenceMargin: cfg.Experts.ConfidenceMargin,
		MaxExperts:       cfg.Experts.MaxExperts,
	}, logger)

	a.Orchestrator = tutor.New(retriever, reranker, router, a.Memory, a.Knowledge, logger)
	return a, nil
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes genkit with the configured AI provider plugin.
// API keys come from the environment (GEMINI_API_KEY, OPENAI_API_KEY), read
// by the plugins themselves.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
	}

	logger.Info("initialized genkit",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel)
	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
// Gemini needs an explicit definition call; OpenAI auto-registers its
// embedders in Init and is looked up by name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

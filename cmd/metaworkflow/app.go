package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kimjoonhwaan/metaworkflow/internal/apiclient"
	"github.com/kimjoonhwaan/metaworkflow/internal/config"
	"github.com/kimjoonhwaan/metaworkflow/internal/database"
	"github.com/kimjoonhwaan/metaworkflow/internal/domain"
	"github.com/kimjoonhwaan/metaworkflow/internal/knowledge"
	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/llm/providers"
	"github.com/kimjoonhwaan/metaworkflow/internal/memory/embedder"
	"github.com/kimjoonhwaan/metaworkflow/internal/memory/vector"
	"github.com/kimjoonhwaan/metaworkflow/internal/notify"
	"github.com/kimjoonhwaan/metaworkflow/internal/observability"
	"github.com/kimjoonhwaan/metaworkflow/internal/runner"
	"github.com/kimjoonhwaan/metaworkflow/internal/sandbox"
	"github.com/kimjoonhwaan/metaworkflow/internal/step"
)

// app holds the wired service graph behind the CLI commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db      *database.DB
	vectors *vector.SqliteStore

	workflows  database.WorkflowDAO
	executions database.ExecutionDAO
	documents  database.KnowledgeDAO

	provider  llm.Provider
	runner    *runner.Runner
	knowledge *knowledge.Manager
}

// openApp loads configuration and opens every backing store. The
// caller owns Close.
func openApp(ctx context.Context) (*app, error) {
	loader := config.NewConfigLoader(config.NewValidator())
	cfg, err := loader.LoadWithDefaults(resolveConfigPath())
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	for _, path := range []string{cfg.Storage.Path, cfg.Vector.Path} {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
			}
		}
	}

	dbCfg := database.DefaultConfig(cfg.Storage.Path)
	if cfg.Storage.MaxConnections > 0 {
		dbCfg.MaxOpenConns = cfg.Storage.MaxConnections
	}
	if cfg.Storage.BusyTimeout > 0 {
		dbCfg.BusyTimeout = cfg.Storage.BusyTimeout
	}
	db, err := database.OpenWithConfig(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	vectors, err := vector.NewSqliteStore(vector.SqliteConfig{DBPath: cfg.Vector.Path})
	if err != nil {
		db.Close()
		return nil, err
	}

	emb, err := embedder.CreateEmbedder(cfg.Embedder)
	if err != nil {
		vectors.Close()
		db.Close()
		return nil, err
	}

	classifier := domain.NewClassifier()
	for _, d := range cfg.Domains {
		classifier.Register(d.Name, d.Keywords...)
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		vectors:    vectors,
		workflows:  database.NewWorkflowDAO(db),
		executions: database.NewExecutionDAO(db),
		documents:  database.NewKnowledgeDAO(db),
	}

	a.knowledge = knowledge.NewManager(a.documents, vectors, emb,
		knowledge.WithClassifier(classifier),
		knowledge.WithConfig(knowledge.Config{
			MetadataBlobLimit: cfg.Knowledge.MetadataBlobLimit,
			SummaryMaxWords:   cfg.Knowledge.SummaryMaxWords,
			MaxKeywords:       cfg.Knowledge.MaxKeywords,
			SemanticWeight:    cfg.Knowledge.SemanticWeight,
			DefaultLimit:      cfg.Knowledge.DefaultLimit,
		}),
		knowledge.WithLogger(logger),
	)

	llmCfg := llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}
	if cfg.LLM.Provider != "" {
		provider, err := providers.New(llmCfg)
		if err != nil {
			// llm_call steps will fail; everything else still works.
			logger.Warn("llm provider unavailable", "provider", cfg.LLM.Provider, "error", err)
		} else {
			a.provider = provider
		}
	}

	sandboxOpts := []sandbox.Option{
		sandbox.WithInterpreter(cfg.Sandbox.Interpreter),
		sandbox.WithTimeout(cfg.Sandbox.Timeout),
		sandbox.WithLogger(logger),
	}
	if cfg.Sandbox.TempDir != "" {
		sandboxOpts = append(sandboxOpts, sandbox.WithTempDir(cfg.Sandbox.TempDir))
	}

	client := apiclient.New(
		apiclient.WithTimeout(cfg.HTTP.Timeout),
		apiclient.WithCache(apiclient.NewCache(
			apiclient.WithDefaultTTL(cfg.HTTP.CacheTTL),
			apiclient.WithMaxEntries(cfg.HTTP.CacheMaxEntries),
		)),
		apiclient.WithLogger(logger),
	)

	dispatcherOpts := []step.Option{
		step.WithSandbox(sandbox.New(sandboxOpts...)),
		step.WithAPIClient(client),
		step.WithNotifier(notify.NewRegistry(logger)),
		step.WithLogger(logger),
	}
	if a.provider != nil {
		dispatcherOpts = append(dispatcherOpts, step.WithLLMProvider(a.provider, llmCfg))
	}

	a.runner = runner.New(a.workflows, a.executions, step.New(dispatcherOpts...),
		runner.WithLogger(logger))

	return a, nil
}

// Close releases the backing stores.
func (a *app) Close() {
	if a.vectors != nil {
		a.vectors.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-carbon-must-flow/internal/classification"
	"github.com/Veraticus/the-carbon-must-flow/internal/codes"
	"github.com/Veraticus/the-carbon-must-flow/internal/config"
	"github.com/Veraticus/the-carbon-must-flow/internal/engine"
	"github.com/Veraticus/the-carbon-must-flow/internal/factors"
	"github.com/Veraticus/the-carbon-must-flow/internal/llm"
	"github.com/Veraticus/the-carbon-must-flow/internal/rules"
	"github.com/Veraticus/the-carbon-must-flow/internal/semantic"
	"github.com/Veraticus/the-carbon-must-flow/internal/storage"
)

// app holds the components a command needs, built once from configuration.
type app struct {
	cfg     config.Config
	store   *storage.SQLiteStorage
	ai      *llm.Gateway
	factors *factors.Engine
	rules   *rules.Store
	engine  *engine.Engine
	index   *semantic.Client
	logger  *slog.Logger
}

// openStore loads the configuration and opens the migrated database.
func openStore(ctx context.Context) (config.Config, *storage.SQLiteStorage, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return config.Config{}, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, store, nil
}

// newApp wires storage, the AI gateway, factor retrieval, the learned rule
// store with its reclassification sweeper, and the classification engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	a := &app{cfg: cfg, store: store, logger: logger}
	a.ai = llm.NewFromConfig(cfg.AI, logger)

	factorOpts := []factors.Option{
		factors.WithInference(a.ai),
		factors.WithLogger(logger),
	}
	if cfg.Search.SemanticEnabled && cfg.Search.SemanticURL != "" {
		a.index, err = semantic.NewClient(semantic.Config{
			BaseURL:  cfg.Search.SemanticURL,
			APIKey:   cfg.Search.SemanticAPIKey,
			Index:    cfg.Search.SemanticIndex,
			Timeout:  cfg.Search.SemanticTimeout,
			MinScore: cfg.Search.MinScore,
		})
		if err != nil {
			a.ai.Close()
			_ = store.Close()
			return nil, err
		}
		factorOpts = append(factorOpts, factors.WithSemanticIndex(a.index))
	}
	a.factors = factors.NewEngine(store, factors.Config{
		CacheTTL:   cfg.Search.CacheTTL,
		MaxResults: cfg.Search.MaxResults,
	}, factorOpts...)

	sweeper := engine.NewReclassifier(store, store, nil, cfg.Pipeline.Workers, logger)
	a.rules = rules.NewStore(store,
		rules.WithSweeper(sweeper),
		rules.WithCacheTTL(cfg.Rules.CacheTTL),
		rules.WithLogger(logger))

	a.engine = engine.New(engine.Settings{
		AIThreshold:       cfg.Pipeline.AIConfidenceThreshold,
		CodeConfidence:    cfg.Pipeline.CodeConfidence,
		PatternConfidence: cfg.Pipeline.PatternConfidence,
		DefaultConfidence: cfg.Pipeline.DefaultConfidence,
		DisambiguateTopN:  cfg.Pipeline.DisambiguateTopN,
		Disambiguate:      cfg.Pipeline.Disambiguate,
	},
		engine.WithRules(a.rules),
		engine.WithCodes(codes.Default()),
		engine.WithPatterns(classification.NewDefaultDetector()),
		engine.WithInference(a.ai),
		engine.WithFactors(a.factors),
		engine.WithLogger(logger),
	)
	return a, nil
}

// Close waits for background rule sweeps, releases the caches, then closes
// the database.
func (a *app) Close() {
	a.rules.Wait()
	a.rules.Close()
	a.factors.Close()
	a.ai.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close database", "error", err)
	}
}

func organization() string {
	return viper.GetString("organization")
}

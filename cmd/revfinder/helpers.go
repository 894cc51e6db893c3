package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/revfinder/internal/cache"
	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/config"
	"github.com/Veraticus/revfinder/internal/engine"
	"github.com/Veraticus/revfinder/internal/llm"
	"github.com/Veraticus/revfinder/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// app holds everything a resolving command needs. Close releases it.
type app struct {
	tables     *config.Tables
	store      *storage.SQLiteStorage
	cache      *cache.Cache
	classifier *llm.Classifier
	resolver   *engine.Resolver
}

func (a *app) Close() {
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			slog.Warn("Failed to close classifier", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}

// openLearned opens the database and warms the learned cache.
func openLearned(ctx context.Context) (*storage.SQLiteStorage, *cache.Cache, error) {
	dbPath := config.DatabasePath(viper.GetString("database.path"))
	store, err := storage.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, common.NewUserError("Could not open the learned cache at "+dbPath, err)
	}
	c, err := cache.Open(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	slog.Debug("Learned cache opened", "database", dbPath, "entries", c.Len())
	return store, c, nil
}

func loadTables() (*config.Tables, error) {
	tables, err := config.LoadTables(viper.GetString("rules.path"))
	if err != nil {
		return nil, common.NewUserError("Could not load the rules table", err)
	}
	slog.Debug("Rules loaded",
		"source", tables.Source,
		"rules", tables.Rules.Len(),
		"keywords", tables.Keywords.TokenCount())
	return tables, nil
}

// newApp wires tables, cache, classifier and resolver. offline skips the external tier.
func newApp(ctx context.Context, offline bool) (*app, error) {
	tables, err := loadTables()
	if err != nil {
		return nil, err
	}

	a := &app{tables: tables}
	a.store, a.cache, err = openLearned(ctx)
	if err != nil {
		return nil, err
	}

	if !offline {
		a.classifier, err = createClassifier(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	deps := engine.Deps{
		Rules:    tables.Rules,
		Keywords: tables.Keywords,
		Cache:    a.cache,
	}
	if a.classifier != nil {
		deps.External = a.classifier
	}

	a.resolver, err = engine.New(resolverConfig(), deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func resolverConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if n := viper.GetInt("resolver.concurrency"); n > 0 {
		cfg.Concurrency = n
	}
	if d := viper.GetDuration("resolver.external_timeout"); d > 0 {
		cfg.ExternalTimeout = d
	}
	return cfg
}

func recoveryRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(viper.GetString("recovery.rate"))
	if raw == "" {
		return decimal.RequireFromString("9.25"), nil
	}
	rate, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: recovery.rate %q is not a number", common.ErrInvalidConfig, raw)
	}
	return rate, nil
}

// apiKeyEnv maps providers to the environment variable checked after the config file.
var apiKeyEnv = map[string]string{
	llm.ProviderOpenAI:    "OPENAI_API_KEY",
	llm.ProviderGemini:    "GEMINI_API_KEY",
	llm.ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// llmConfig builds the classifier configuration from viper.
func llmConfig() llm.Config {
	provider := strings.ToLower(strings.TrimSpace(viper.GetString("llm.provider")))

	cfg := llm.Config{
		Provider:  provider,
		Model:     viper.GetString("llm.model"),
		BaseURL:   viper.GetString("llm.base_url"),
		MaxTokens: viper.GetInt("llm.max_tokens"),
		RateLimit: viper.GetInt("llm.rate_limit"),
		Timeout:   viper.GetDuration("llm.timeout"),
	}
	if viper.IsSet("llm.temperature") {
		temperature := viper.GetFloat64("llm.temperature")
		cfg.Temperature = &temperature
	}

	if env, ok := apiKeyEnv[provider]; ok {
		cfg.APIKey = viper.GetString("llm." + provider + "_api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv(env)
		}
	}
	return cfg
}

// createClassifier returns nil without error when no external classifier is configured;
// the resolver then runs in offline mode.
func createClassifier(ctx context.Context) (*llm.Classifier, error) {
	cfg := llmConfig()
	classifier, err := llm.NewClassifier(ctx, cfg, slog.Default())
	if err != nil {
		if errors.Is(err, common.ErrMissingConfig) {
			slog.Warn("External classifier not configured, running offline",
				"provider", cfg.Provider,
				"reason", err)
			return nil, nil
		}
		return nil, common.NewUserError("Could not create the external classifier", err)
	}
	slog.Debug("External classifier ready", "provider", classifier.Provider())
	return classifier, nil
}

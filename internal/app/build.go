package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yanyan-huang/pmpal/internal/config"
	"github.com/yanyan-huang/pmpal/internal/conversation"
	"github.com/yanyan-huang/pmpal/internal/httpapi"
	"github.com/yanyan-huang/pmpal/internal/llm"
	"github.com/yanyan-huang/pmpal/internal/memory"
	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/prompts"
	"github.com/yanyan-huang/pmpal/internal/transcribe"
)

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Manager     *conversation.Manager
	Store       memory.Store
	Transcriber transcribe.Transcriber
	Metrics     *observability.Metrics
	Voice       VoiceInfo

	// Cleanup should be called on shutdown to release external resources (DB, clients).
	Cleanup func() error
}

// Build wires config into a ready Manager and HTTP server.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	log := observability.Logger()

	registry, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("prompt catalog init failed: %w", err)
	}

	storeOpts := memory.Options{
		Backend:          cfg.StoreBackend,
		DatabaseURL:      cfg.DatabaseURL,
		SQLitePath:       cfg.SQLitePath,
		Dir:              cfg.StorageDir,
		FirestoreProject: cfg.FirebaseProjectID,
	}
	store, err := memory.NewStore(ctx, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("user store init failed: %w", err)
	}
	// API handlers report the concrete backend.
	cfg.StoreBackend = memory.ResolveBackend(storeOpts)

	provider, err := llm.NewProvider(ctx, llm.Config{
		Provider:         cfg.AIProvider,
		FallbackProvider: cfg.AIFallbackProvider,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIModel:      cfg.OpenAIModel,
		ClaudeAPIKey:     cfg.ClaudeAPIKey,
		ClaudeBaseURL:    cfg.ClaudeBaseURL,
		ClaudeModel:      cfg.ClaudeModel,
		GoogleAPIKey:     cfg.GoogleAPIKey,
		GeminiBaseURL:    cfg.GeminiBaseURL,
		GeminiModel:      cfg.GeminiModel,
		HTTPURL:          cfg.LLMHTTPURL,
		HTTPModel:        cfg.LLMHTTPModel,
		Temperature:      cfg.LLMTemperature,
		MaxTokens:        cfg.LLMMaxTokens,
		Timeout:          cfg.LLMTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("llm provider init failed: %w", err)
	}
	adapter := llm.NewAdapter(provider, cfg.LLMTimeout, metrics)

	voice, err := resolveTranscriber(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	manager := conversation.NewManager(store, registry, adapter, conversation.Config{
		FreeLimit:      cfg.FreeLimit,
		Whitelist:      cfg.WhitelistedUsers,
		QuotaContact:   cfg.QuotaContact,
		ReplyMaxWords:  cfg.ReplyMaxWords,
		ModelOverrides: cfg.UserModelOverrides,
	}, metrics)

	api := httpapi.New(cfg, manager, voice.transcriber, metrics)

	log.Info("pmpal wired",
		"provider", provider.Name(),
		"model", adapter.ResolveModel(""),
		"store", cfg.StoreBackend,
		"stt", voice.info.Provider,
		"modes", strings.Join(registry.Modes(), ","),
		"free_limit", cfg.FreeLimit,
	)

	cleanup := func() error {
		var errs []string
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Manager:     manager,
		Store:       store,
		Transcriber: voice.transcriber,
		Metrics:     metrics,
		Voice:       voice.info,
		Cleanup:     cleanup,
	}, nil
}

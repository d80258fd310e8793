package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querylens/querylens/internal/api"
	"github.com/querylens/querylens/internal/archive"
	"github.com/querylens/querylens/internal/assistant"
	"github.com/querylens/querylens/internal/auth"
	"github.com/querylens/querylens/internal/config"
	"github.com/querylens/querylens/internal/datasource"
	"github.com/querylens/querylens/internal/llm"
	"github.com/querylens/querylens/internal/observability"
	s3store "github.com/querylens/querylens/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("querylens-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, err := newModelRouter(ctx, cfg.AI)
	if err != nil {
		logger.Error("failed to initialize model providers", slog.Any("error", err))
		os.Exit(1)
	}
	gateway := llm.NewGateway(router, cfg.AI.Timeout, logger)

	sessions := datasource.NewManager(logger)
	defer func() { _ = sessions.Close() }()
	if cfg.DataSource.DSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.DataSource.ConnectTimeout)
		if _, err := sessions.Connect(connectCtx, datasource.FromConfig(cfg.DataSource)); err != nil {
			// The service still starts; a database can be attached through /v1/connect.
			logger.Warn("initial database connect failed", slog.String("dialect", cfg.DataSource.Dialect), slog.Any("error", err))
		}
		cancel()
	}

	readiness := []api.ReadinessCheck{api.CheckModelProvider(cfg)}
	var charts *archive.Archive
	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		charts, err = archive.New(objectStore, logger)
		if err != nil {
			logger.Error("failed to initialize chart archive", slog.Any("error", err))
			os.Exit(1)
		}
		readiness = append(readiness, api.CheckObjectStore(objectStore.Ready))
	}

	service, err := assistant.New(sessions, gateway, charts, assistant.OptionsFromConfig(cfg), logger)
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
		Assistant:         service,
		ConnectDefaults:   datasource.FromConfig(cfg.DataSource),
	}
	if charts != nil {
		deps.Charts = charts
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.Any("providers", router.Providers()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// newModelRouter registers every backend that has credentials. The OpenAI key
// serves both the direct client and the eino chat model.
func newModelRouter(ctx context.Context, cfg config.AIConfig) (*llm.Router, error) {
	router := llm.NewRouter(cfg.Provider)
	if cfg.APIKey != "" {
		openaiCfg := llm.OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Timeout: cfg.Timeout}
		direct, err := llm.NewOpenAIClient(openaiCfg)
		if err != nil {
			return nil, err
		}
		router.Register("openai", direct)

		defaultModel := cfg.ChartModel
		if len(cfg.SQLModels) > 0 {
			defaultModel = cfg.SQLModels[0]
		}
		eino, err := llm.NewEinoOpenAIClient(ctx, openaiCfg, defaultModel)
		if err != nil {
			return nil, err
		}
		router.Register("eino", eino)
	}
	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewAnthropicClient(llm.AnthropicConfig{APIKey: cfg.AnthropicAPIKey, BaseURL: cfg.AnthropicBaseURL})
		if err != nil {
			return nil, err
		}
		router.Register("anthropic", client)
	}
	return router, nil
}

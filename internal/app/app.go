package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"HypothesisValidator/internal/config"
	"HypothesisValidator/internal/infrastructure/httpapi"
	"HypothesisValidator/internal/infrastructure/llm"
	"HypothesisValidator/internal/infrastructure/parser"
	"HypothesisValidator/internal/infrastructure/storage"
	"HypothesisValidator/internal/logging"
	"HypothesisValidator/internal/ports"
	"HypothesisValidator/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.Store
	validator *usecase.Validator
	server    *http.Server
}

// New opens the store, applies its schema and builds the validator and HTTP server.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	completer, err := NewCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg, baseLogger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	gateway := llm.NewGateway(completer, cfg.LLM, cfg.Discovery, baseLogger.With("component", "llm"))
	fetcher := parser.NewHTTPFetcher(nil, parser.NewRegistry(), FetcherOptions(cfg.Fetcher), baseLogger.With("component", "fetcher"))

	validator := usecase.NewValidator(usecase.ValidatorDeps{
		Articles:   store,
		Hypotheses: store,
		Results:    store,
		Fetcher:    fetcher,
		Verdicts:   gateway,
		Discoverer: gateway,
		Limits: usecase.Limits{
			Concurrency:     cfg.Validation.Concurrency,
			ItemTimeout:     cfg.Validation.ItemTimeout,
			DefaultArticles: cfg.Validation.DefaultArticles,
			MaxArticles:     cfg.Validation.MaxArticles,
		},
		Logger: baseLogger.With("component", "validator"),
	})

	handler := httpapi.NewHandler(validator, usecase.NewCatalog(store), store, cfg.Server.MaxUploadBytes, baseLogger)
	server := httpapi.NewServer(cfg.Server, httpapi.NewRouter(handler, cfg.Server, baseLogger))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		validator: validator,
		server:    server,
	}, nil
}

// Validator exposes the orchestrator for one-shot commands.
func (a *Application) Validator() *usecase.Validator {
	return a.validator
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve http: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return <-errCh
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}

// OpenStore connects the configured storage driver, fronted by Redis when configured.
// An unreachable Redis is logged and skipped.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.Store, error) {
	storeLogger := logger.With("component", "storage", "driver", cfg.Storage.Driver)

	var (
		store ports.Store
		err   error
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err = storage.OpenPostgres(ctx, cfg.Storage, storeLogger)
	case config.DriverSQLite:
		store, err = storage.OpenSQLite(ctx, cfg.Storage.SQLitePath, storeLogger)
	case config.DriverMemory:
		store = storage.NewMemoryStore()
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if !cfg.Redis.Enabled() {
		return store, nil
	}
	rdb, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis cache disabled", "addr", cfg.Redis.Addr, "error", err)
		return store, nil
	}
	return storage.NewCachedStore(store, rdb, cfg.Redis.TTL, logger.With("component", "cache")), nil
}

// NewCompleter builds the chat client of the configured provider.
func NewCompleter(cfg config.LLMConfig) (llm.Completer, error) {
	if cfg.ActiveProvider().APIKey == "" {
		return nil, fmt.Errorf("llm provider %q: api key is not configured", cfg.Provider)
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(cfg), nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// FetcherOptions converts the fetcher config section. A non-positive host rate disables limiting.
func FetcherOptions(cfg config.FetcherConfig) parser.FetcherOptions {
	limit := rate.Inf
	if cfg.HostRate > 0 {
		limit = rate.Limit(cfg.HostRate)
	}
	return parser.FetcherOptions{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.Timeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		HostRate:     limit,
		HostBurst:    cfg.HostBurst,
	}
}

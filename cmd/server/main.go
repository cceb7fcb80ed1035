package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Harshitk-cp/ranger/internal/api"
	"github.com/Harshitk-cp/ranger/internal/buildconfig"
	"github.com/Harshitk-cp/ranger/internal/config"
	"github.com/Harshitk-cp/ranger/internal/embedding"
	"github.com/Harshitk-cp/ranger/internal/llm"
	"github.com/Harshitk-cp/ranger/internal/search"
	"github.com/Harshitk-cp/ranger/internal/service"
	"github.com/Harshitk-cp/ranger/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func newLogger() *zap.Logger {
	if config.LogLevel() == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	cfg := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(config.LogLevel()); err == nil {
		cfg.Level = level
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.Fatal("failed to load settings", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, closeStores, err := openStores(ctx, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer closeStores()

	// Later writes to the tuning file by the self-improvement engine are
	// pushed into the running services by the code modifier.
	if err := os.MkdirAll(settings.ModifiableRoot, 0o755); err != nil {
		logger.Fatal("failed to create modifiable root", zap.Error(err))
	}
	tuning, err := config.LoadTuning(filepath.Join(settings.ModifiableRoot, filepath.FromSlash(settings.TuningFile)))
	if err != nil {
		logger.Fatal("failed to load tuning", zap.Error(err))
	}
	settings.ApplyTuning(tuning)

	deps.Search, err = search.NewClients(config.SearchProviders(), config.SearxNGURL(), tuning.SearchMaxResults)
	if err != nil {
		logger.Fatal("failed to build search clients", zap.Error(err))
	}

	deps.Extractor, err = llm.NewExtractor(config.ExtractorProvider(), config.OpenAIAPIKey(), service.NewRuleExtractor())
	if err != nil {
		logger.Warn("claim extractor initialization failed, using rules", zap.String("provider", config.ExtractorProvider()), zap.Error(err))
		deps.Extractor = service.NewRuleExtractor()
	}

	deps.Embedder, err = embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("embedding client initialization failed, consolidation falls back to token overlap", zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
	}

	app, err := api.NewApp(settings, deps, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}
	app.Start(ctx)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.String()),
			zap.String("store", config.StoreDriver()),
			zap.Float64("min_salience", settings.MinSalience),
			zap.Int("search_max_results", tuning.SearchMaxResults))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	app.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStores connects the configured backend and returns the stores with a
// close function.
func openStores(ctx context.Context, logger *zap.Logger) (api.Deps, func(), error) {
	switch config.StoreDriver() {
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			return api.Deps{}, nil, errors.New("DATABASE_URL is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return api.Deps{}, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return api.Deps{}, nil, err
		}
		if err := store.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return api.Deps{}, nil, err
		}
		logger.Info("connected to database")
		return api.Deps{
			Knowledge: store.NewKnowledgeStore(pool),
			Backups:   store.NewBackupStore(pool),
			Proposals: store.NewProposalStore(pool),
		}, pool.Close, nil

	case "sqlite":
		db, err := store.OpenSQLite(config.SQLitePath())
		if err != nil {
			return api.Deps{}, nil, err
		}
		logger.Info("opened sqlite store", zap.String("path", config.SQLitePath()))
		return api.Deps{
			Knowledge: store.NewSQLiteKnowledgeStore(db),
			Backups:   store.NewSQLiteBackupStore(db),
			Proposals: store.NewSQLiteProposalStore(db),
		}, func() { _ = db.Close() }, nil

	default:
		return api.Deps{}, nil, errors.New("STORE_DRIVER must be sqlite or postgres")
	}
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/ranger/internal/api/handlers"
	mw "github.com/Harshitk-cp/ranger/internal/api/middleware"
	"github.com/Harshitk-cp/ranger/internal/buildconfig"
	"github.com/Harshitk-cp/ranger/internal/config"
	"github.com/Harshitk-cp/ranger/internal/domain"
	"github.com/Harshitk-cp/ranger/internal/metrics"
	"github.com/Harshitk-cp/ranger/internal/service"
	"github.com/Harshitk-cp/ranger/internal/trust"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the stores and external collaborators the core runs against.
type Deps struct {
	Knowledge domain.KnowledgeStore
	Backups   domain.BackupStore
	Proposals domain.ProposalStore

	Search    []domain.SearchClient
	Extractor domain.ClaimExtractor
	Embedder  domain.EmbeddingClient
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Knowledge   *service.KnowledgeService
	Improvement *service.ImprovementService
	Pipeline    *service.PipelineService

	limiter      *mw.RateLimiter
	health       domain.KnowledgeStore
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp builds every component from the settings and wires the routes.
func NewApp(settings *config.Settings, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.Extractor == nil {
		deps.Extractor = service.NewRuleExtractor()
	}

	policy := settings.Policy
	evaluator := trust.NewEvaluator(trust.Config{
		Trusted:            policy.TrustedDomains,
		Distrusted:         policy.DistrustedDomains,
		SuspiciousKeywords: policy.SuspiciousKeywords,
		NeutralScore:       policy.NeutralTrust,
	})

	monitor := service.NewMonitorService(service.MonitorConfig{
		Window:           settings.MetricsWindow,
		VerificationSpan: service.DefaultMonitorConfig().VerificationSpan,
		MaxSamples:       service.DefaultMonitorConfig().MaxSamples,
	})

	verifier := service.NewVerifierService(deps.Search, evaluator, service.VerifierConfig{
		Threshold:   settings.VerificationThreshold,
		Timeout:     settings.VerifierTimeout,
		MinInterval: settings.VerifierMinInterval,
		QueueDepth:  settings.VerifierQueueDepth,
		Concurrency: settings.VerifierConcurrency,
		MaxRetries:  settings.VerifierMaxRetries,
	}, logger)

	knowledgeSvc := service.NewKnowledgeService(deps.Knowledge, deps.Embedder, service.KnowledgeConfig{
		VerificationThreshold: settings.VerificationThreshold,
		LearningRate:          settings.LearningRate,
		SimilarityThreshold:   settings.SimilarityThreshold,
	}, logger)
	knowledgeSvc.SetInterval(settings.ConsolidationInterval)

	learningSvc := service.NewLearningService(deps.Extractor, knowledgeSvc, verifier, monitor, service.LearningConfig{
		Enabled:             settings.LearningEnabled,
		VerificationEnabled: settings.WebVerificationEnabled,
		MinSalience:         settings.MinSalience,
	}, logger)

	conversationSvc := service.NewConversationService(service.DefaultConversationConfig(), logger)
	pipelineSvc := service.NewPipelineService(conversationSvc, learningSvc, monitor, logger)

	modifierSvc, err := service.NewModifierService(deps.Backups, service.ModifierConfig{
		Root:           settings.ModifiableRoot,
		UnsafePatterns: policy.UnsafePatterns,
		ProtectedPaths: policy.ProtectedPaths,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("code modifier: %w", err)
	}
	live := service.NewLiveTuning(settings.TuningFile, learningSvc, verifier, logger)
	modifierSvc.OnWrite(live.HandleWrite)

	improvementSvc := service.NewImprovementService(deps.Proposals, modifierSvc, monitor, service.ImprovementConfig{
		Enabled:     settings.SelfImprovementEnabled,
		AutoApply:   settings.AutoApplyProposals,
		TuningFile:  settings.TuningFile,
		RiskCeiling: settings.RiskCeiling,
	}, logger)
	improvementSvc.SetInterval(settings.ImprovementInterval)

	// Handlers
	utteranceHandler := handlers.NewUtteranceHandler(pipelineSvc)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeSvc)
	improvementHandler := handlers.NewImprovementHandler(improvementSvc)
	backupHandler := handlers.NewBackupHandler(modifierSvc)
	conversationHandler := handlers.NewConversationHandler(conversationSvc)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Knowledge:   knowledgeSvc,
		Improvement: improvementSvc,
		Pipeline:    pipelineSvc,
		limiter:     mw.NewRateLimiter(settings.RateLimitRPS, settings.RateLimitBurst),
		health:      deps.Knowledge,
		startTime:   time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, metrics.New())

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(app.limiter))

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())
	r.Handle("/metrics/prometheus", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/utterances", utteranceHandler.Handle)
		r.Post("/feedback", utteranceHandler.Feedback)

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", knowledgeHandler.Query)
			r.Get("/stats", knowledgeHandler.Stats)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.Stats)
			r.Get("/{channel}", conversationHandler.Channel)
		})
		r.Get("/users/{id}/patterns", conversationHandler.UserPatterns)

		// Owner routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.OwnerAuth(settings.OwnerToken))

			r.Post("/improve", improvementHandler.Run)
			r.Route("/proposals", func(r chi.Router) {
				r.Get("/", improvementHandler.List)
				r.Post("/{id}/apply", improvementHandler.Apply)
				r.Post("/{id}/rollback", improvementHandler.Rollback)
			})

			r.Route("/knowledge", func(r chi.Router) {
				r.Get("/export", knowledgeHandler.Export)
				r.Post("/import", knowledgeHandler.Import)
				r.Post("/consolidate", knowledgeHandler.Consolidate)
				r.Post("/prune", knowledgeHandler.Prune)
			})

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", backupHandler.List)
				r.Post("/", backupHandler.Create)
				r.Post("/prune", backupHandler.Prune)
				r.Post("/{id}/restore", backupHandler.Restore)
			})
		})
	})

	return app, nil
}

// Start launches the background workers. The rate limiter janitor stops
// with ctx; the rest stop with Stop.
func (app *App) Start(ctx context.Context) {
	app.Knowledge.Start()
	app.Improvement.Start()
	go app.limiter.Run(ctx, 10*time.Minute)
}

// Stop stops the background workers and waits for them.
func (app *App) Stop() {
	app.Improvement.Stop()
	app.Knowledge.Stop()
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
		}
		status := http.StatusOK
		if err := app.health.Ping(r.Context()); err != nil {
			resp["status"] = "error"
			resp["error"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"performance": app.Pipeline.Metrics(),
			"go_version":  runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

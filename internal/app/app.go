// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkurov/postqueue/internal/config"
	"github.com/mkurov/postqueue/internal/dispatch"
	"github.com/mkurov/postqueue/internal/pkg/ctxlog"
	"github.com/mkurov/postqueue/internal/pkg/httputil"
	"github.com/mkurov/postqueue/internal/pkg/metrics"
	"github.com/mkurov/postqueue/internal/pkg/postgres"
	"github.com/mkurov/postqueue/internal/posts"
	postspostgres "github.com/mkurov/postqueue/internal/posts/postgres"
	"github.com/mkurov/postqueue/internal/publisher/twitter"
	"github.com/mkurov/postqueue/internal/version"
)

// App represents the application instance.
type App struct {
	config         *config.Config
	logger         *slog.Logger
	db             *pgxpool.Pool
	server         *http.Server
	metricsServer  *http.Server
	metricsCancel  context.CancelFunc
	dispatchRunner *dispatch.Runner
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	if cfg.Database.Migrate {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, runner, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.dispatchRunner = runner

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Stop the dispatch runner before cancelling the shared context so an
	// in-progress cycle is not cut off mid-publish
	if a.dispatchRunner != nil {
		a.dispatchRunner.Stop()
	}

	a.metricsCancel()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo posts.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			posts.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// DispatchRunner returns the background dispatch runner.
// Used in tests to access runner state. Returns nil if the runner is disabled.
func (a *App) DispatchRunner() *dispatch.Runner {
	return a.dispatchRunner
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, *dispatch.Runner, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>PostQueue API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	postsRepo := postspostgres.NewRepository(a.db)
	postsService := posts.NewService(postsRepo, a.config.Dispatch.ClaimStaleness)
	postsHandler := posts.NewHandler(postsService)

	var dispatchHandler *dispatch.Handler
	var runner *dispatch.Runner

	slog.Info("dispatch configured",
		"enabled", a.config.Dispatch.Enabled,
		"runner_enabled", a.config.Dispatch.RunnerEnabled,
		"stale_policy", a.config.Dispatch.StalePolicy,
	)

	if a.config.Dispatch.Enabled {
		pub, err := twitter.NewPublisher(twitter.Config{
			BearerToken: a.config.Publisher.Twitter.BearerToken,
			BaseURL:     a.config.Publisher.Twitter.BaseURL,
			Timeout:     a.config.Publisher.Twitter.Timeout,
			RateLimit:   a.config.Publisher.Twitter.RateLimit,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create twitter publisher: %w", err)
		}

		engineConfig := dispatch.Config{
			BatchSize:      a.config.Dispatch.BatchSize,
			NumWorkers:     a.config.Dispatch.NumWorkers,
			CycleTimeout:   a.config.Dispatch.CycleTimeout,
			PublishTimeout: a.config.Dispatch.PublishTimeout,
			ClaimStaleness: a.config.Dispatch.ClaimStaleness,
			StalePolicy:    dispatch.StalePolicy(a.config.Dispatch.StalePolicy),
		}

		engine := dispatch.NewEngine(engineConfig, postsRepo, pub)
		gate := dispatch.NewGate(a.config.Dispatch.TriggerSecret)
		dispatchHandler = dispatch.NewHandler(engine, gate)

		if a.config.Dispatch.TriggerSecret == "" {
			slog.Warn("dispatch trigger secret is empty: the trigger endpoint accepts unauthenticated requests")
		}

		if a.config.Dispatch.RunnerEnabled {
			runner = dispatch.NewRunner(a.config.Dispatch.PollInterval, engine)
			runner.Start(ctx)
		}
	}

	// Start queue metrics collection
	go a.collectQueueMetrics(ctx, postsRepo)

	r.Route("/api/v1", func(r chi.Router) {
		postsHandler.RegisterRoutes(r)

		if dispatchHandler != nil {
			dispatchHandler.RegisterRoutes(r)
		} else {
			r.Post("/dispatch/run", func(w http.ResponseWriter, _ *http.Request) {
				httputil.Error(w, http.StatusServiceUnavailable, "dispatch is disabled")
			})
		}
	})

	return r, runner, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

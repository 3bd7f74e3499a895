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
	"github.com/redis/go-redis/v9"

	"github.com/signalfield/signalfield/internal/billing"
	billingpostgres "github.com/signalfield/signalfield/internal/billing/postgres"
	"github.com/signalfield/signalfield/internal/blob"
	"github.com/signalfield/signalfield/internal/config"
	"github.com/signalfield/signalfield/internal/geocode"
	"github.com/signalfield/signalfield/internal/identity"
	"github.com/signalfield/signalfield/internal/notify"
	"github.com/signalfield/signalfield/internal/pkg/httputil"
	"github.com/signalfield/signalfield/internal/pkg/metrics"
	"github.com/signalfield/signalfield/internal/pkg/postgres"
	"github.com/signalfield/signalfield/internal/signals"
	"github.com/signalfield/signalfield/internal/signals/memory"
	signalspostgres "github.com/signalfield/signalfield/internal/signals/postgres"
	"github.com/signalfield/signalfield/internal/version"
	"github.com/signalfield/signalfield/migrations"
)

// purgeInterval is how often expired durable rows are removed.
const purgeInterval = time.Hour

// purgeRetention keeps expired rows around briefly before hard deletion.
const purgeRetention = 24 * time.Hour

// App represents the application instance.
type App struct {
	config           *config.Config
	logger           *slog.Logger
	db               *pgxpool.Pool
	server           *http.Server
	metricsServer    *http.Server
	backgroundCancel context.CancelFunc
	hub              *notify.Hub
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	var db *pgxpool.Pool
	if cfg.Database.Enabled {
		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer connectCancel()

		var err error
		db, err = postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(cfg.Database.URL, migrations.FS); err != nil {
				db.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
	} else {
		logger.Warn("database disabled: signals are held in memory only and lost on restart")
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		backgroundCancel: backgroundCancel,
	}

	router, err := app.setupRouter(backgroundCtx)
	if err != nil {
		if db != nil {
			db.Close()
		}
		backgroundCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	if db != nil {
		go app.collectDBMetrics(backgroundCtx)
	}

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
		"database_enabled", a.config.Database.Enabled,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.backgroundCancel()

	if a.hub != nil {
		a.hub.Close()
	}

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

	if a.db != nil {
		a.db.Close()
	}

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

// purgeExpiredSignals periodically hard-deletes durable rows that expired
// longer than the retention window ago. In-memory stores are swept lazily
// on every listing, so only the durable backend needs a janitor.
func (a *App) purgeExpiredSignals(ctx context.Context, repo *signalspostgres.Repository) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := repo.DeleteExpiredBefore(ctx, time.Now().Add(-purgeRetention))
			if err != nil {
				a.logger.Error("failed to purge expired signals", "error", err)
				continue
			}
			if deleted > 0 {
				a.logger.Info("purged expired signals", "count", deleted)
				metrics.SignalsPurged.Add(float64(deleted))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// buildStore composes the signal store: the in-memory store alone, or the
// durable store with in-memory fallback, optionally fronted by the Redis
// listing cache.
func (a *App) buildStore(ctx context.Context) signals.Store {
	memStore := memory.NewStoreWithCap(a.config.Fallback.Capacity)
	if a.db == nil {
		return memStore
	}

	durable := signalspostgres.NewRepository(a.db)
	go a.purgeExpiredSignals(ctx, durable)

	var store signals.Store = signals.NewFallbackStore(durable, memStore)

	if a.config.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     a.config.Redis.Addr,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
		})
		store = signals.NewCachedStore(store, client, a.config.Redis.CacheTTL)
		a.logger.Info("redis listing cache enabled", "addr", a.config.Redis.Addr)
	}

	return store
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
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
    <title>Signalfield API</title>
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

	store := a.buildStore(ctx)

	var uploader signals.BlobUploader
	if a.config.Blob.Enabled {
		blobUploader, err := blob.NewUploader(blob.Config{
			Enabled:   true,
			Endpoint:  a.config.Blob.Endpoint,
			Bucket:    a.config.Blob.Bucket,
			APIKey:    a.config.Blob.APIKey,
			PublicURL: a.config.Blob.PublicURL,
			Timeout:   a.config.Blob.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create blob uploader: %w", err)
		}
		uploader = blobUploader
	}

	var geocoder signals.Geocoder
	if a.config.Geocode.Enabled {
		geocoder = geocode.NewClient(geocode.Config{
			Endpoint:  a.config.Geocode.Endpoint,
			UserAgent: a.config.Geocode.UserAgent,
			RateLimit: a.config.Geocode.RateLimit,
			Timeout:   a.config.Geocode.Timeout,
		})
	}

	var notifier signals.ChangeBroadcaster
	var watcher http.Handler
	if a.config.Notify.Enabled {
		a.hub = notify.NewHub(a.config.CORS.AllowedOrigins)
		notifier = a.hub
		watcher = a.hub
	}

	signalsService := signals.NewService(store, uploader, geocoder, notifier)
	signalsHandler := signals.NewHandler(signalsService, watcher)

	authenticator, err := identity.NewAuthenticator(identity.Config{
		SecretKey:     a.config.Auth.SecretKey,
		TokenDuration: a.config.Auth.TokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}
	identityHandler := identity.NewHandler(authenticator)

	// Billing requires the durable database; without it the webhook
	// responds 503 instead of silently dropping provider events.
	var billingService *billing.Service
	if a.config.Billing.Enabled && a.db != nil {
		billingService = billing.NewService(billingpostgres.NewRepository(a.db))
	}
	billingHandler := billing.NewHandler(billingService, a.config.Billing.WebhookSecret)

	r.Route("/api/v1", func(r chi.Router) {
		signalsHandler.RegisterRoutes(r)
		identityHandler.RegisterRoutes(r)
		billingHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AdminKeyMiddleware(a.config.Admin.KeyHash))
			r.Route("/admin", func(r chi.Router) {
				signalsHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

// readyzHandler reports readiness. Without a database the in-memory store
// is always ready; with one, an unreachable database is still ready because
// writes degrade to the fallback store.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := a.db.Ping(ctx); err != nil {
			a.logger.Warn("database unreachable, serving from fallback store", "error", err)
		}
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

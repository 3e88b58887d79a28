package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"kpiflow/internal/domain/audit"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/dashboard"
	"kpiflow/internal/domain/devplan"
	"kpiflow/internal/domain/evidence"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/reward"
	"kpiflow/internal/domain/settings"
	"kpiflow/internal/domain/templates"
	"kpiflow/internal/platform/cache"
	"kpiflow/internal/platform/config"
	"kpiflow/internal/platform/crypto"
	"kpiflow/internal/platform/db"
	"kpiflow/internal/platform/email"
	"kpiflow/internal/platform/events"
	"kpiflow/internal/platform/gemini"
	"kpiflow/internal/platform/memstore"
	"kpiflow/internal/platform/metrics"
	"kpiflow/internal/transport/http/api"
	audithandler "kpiflow/internal/transport/http/handlers/audit"
	authhandler "kpiflow/internal/transport/http/handlers/auth"
	dashboardhandler "kpiflow/internal/transport/http/handlers/dashboard"
	devplanshandler "kpiflow/internal/transport/http/handlers/devplans"
	evidencehandler "kpiflow/internal/transport/http/handlers/evidence"
	kpishandler "kpiflow/internal/transport/http/handlers/kpis"
	notificationshandler "kpiflow/internal/transport/http/handlers/notifications"
	reviewshandler "kpiflow/internal/transport/http/handlers/reviews"
	rewardshandler "kpiflow/internal/transport/http/handlers/rewards"
	settingshandler "kpiflow/internal/transport/http/handlers/settings"
	templateshandler "kpiflow/internal/transport/http/handlers/templates"
	usershandler "kpiflow/internal/transport/http/handlers/users"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

const idempotencyTTL = 24 * time.Hour

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Router  http.Handler
	Events  events.Publisher
	Metrics *metrics.Collector
}

type stores struct {
	users         auth.StoreAPI
	kpis          kpi.StoreAPI
	reviews       review.StoreAPI
	rewards       reward.StoreAPI
	settings      settings.StoreAPI
	templates     templates.StoreAPI
	notifications notifications.StoreAPI
	audit         audit.StoreAPI
	idempotency   middleware.IdempotencyStore
}

func Run() {
	cfg := config.Load()
	slog.SetDefault(NewLogger(cfg))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown failed", "err", err)
		}
	}()

	slog.Info("kpiflow server listening", "addr", cfg.Addr, "backend", cfg.StoreBackend, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// NewLogger writes JSON in production and text elsewhere.
func NewLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New opens the configured backends, seeds them when asked to and builds
// the router. Callers own the returned App and must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}

	st, err := app.openStores(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	cryptoSvc, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init encryption: %w", err)
	}
	if !cryptoSvc.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set, evidence and MFA secrets are stored unencrypted")
	}

	if cfg.RunSeed {
		fixture, err := db.LoadFixture(cfg.SeedFile)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("load seed fixture: %w", err)
		}
		if _, err := db.Seed(ctx, db.SeedTargets{
			Users:     st.users,
			Templates: st.templates,
			Settings:  st.settings,
			Crypto:    cryptoSvc,
		}, fixture, settings.Default(time.Now())); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	redisClient, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, 3)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	app.Redis = redisClient

	settingsSvc := settings.NewService(st.settings, settings.Default(time.Now()))
	authSvc := auth.NewService(st.users, cfg.JWTSecret, cfg.TokenTTL, cryptoSvc)
	reviewSvc := review.NewService(st.reviews, st.kpis, settingsSvc, st.users)

	var locks kpi.LockChecker = reviewSvc
	var lockMarker reviewshandler.LockMarker
	if redisClient != nil {
		cached := review.NewCachedLockChecker(reviewSvc, redisClient, cfg.LockCacheTTL)
		locks = cached
		lockMarker = cached
	}
	kpiSvc := kpi.NewService(st.kpis, locks, settingsSvc, st.users)

	// Both AI features degrade to an error response without a key, so the
	// collaborators stay nil interfaces rather than typed nils.
	var scorer evidence.Scorer
	var generator devplan.Generator
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(ctx, gemini.Options{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.GeminiTimeout,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		scorer = evidence.NewGeminiScorer(client)
		generator = devplan.NewGeminiGenerator(client)
	} else {
		slog.Warn("GEMINI_API_KEY not set, evidence audits and development plans are disabled")
	}

	blobs, err := evidence.NewFileBlobStore(cfg.BlobDir, cryptoSvc)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	evidenceSvc := evidence.NewService(kpiSvc, scorer, blobs, cfg.MaxEvidenceBytes)
	rewardSvc := reward.NewService(st.rewards, st.reviews)
	devplanSvc := devplan.NewService(st.users, st.reviews, st.kpis, generator)
	templatesSvc := templates.NewService(st.templates)
	dashboardSvc := dashboard.NewService(st.kpis, st.reviews, st.users, settingsSvc)

	notifySvc := notifications.New(st.notifications, st.users, email.New(cfg))
	notifySvc.EmailOn = cfg.EmailEnabled
	notifySvc.DefaultFrom = cfg.EmailFrom
	auditSvc := audit.New(st.audit)

	app.Events = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
	effects := &shared.Effects{
		Audit:   auditSvc,
		Notify:  notifySvc,
		Events:  app.Events,
		Metrics: app.Metrics,
	}
	perms := auth.StaticPermissions{}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(app.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes, cfg.MaxEvidenceBytes+1<<20))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", app.handleReady)
	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, app.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	kpisHandler := kpishandler.NewHandler(kpiSvc, authSvc, perms, effects)
	evidenceHandler := evidencehandler.NewHandler(evidenceSvc, perms, effects)

	router.Route("/api/v1", func(r chi.Router) {
		private := r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Idempotency(st.idempotency))
		})

		authhandler.NewHandler(authSvc, effects).RegisterRoutes(r, private)
		usershandler.NewHandler(authSvc, perms, effects).RegisterRoutes(private)
		kpisHandler.RegisterRoutes(private, evidenceHandler.RegisterRoutes)
		reviewshandler.NewHandler(reviewSvc, lockMarker, perms, effects).RegisterRoutes(private)
		rewardshandler.NewHandler(rewardSvc, perms, effects).RegisterRoutes(private)
		devplanshandler.NewHandler(devplanSvc, perms, effects).RegisterRoutes(private)
		templateshandler.NewHandler(templatesSvc, perms, effects).RegisterRoutes(private)
		settingshandler.NewHandler(settingsSvc, perms, effects).RegisterRoutes(private)
		dashboardhandler.NewHandler(dashboardSvc, perms, effects).RegisterRoutes(private)
		notificationshandler.NewHandler(notifySvc, perms, effects).RegisterRoutes(private)
		audithandler.NewHandler(auditSvc, perms, effects).RegisterRoutes(private)
	})

	app.Router = router
	return app, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.Config.StoreBackend == config.BackendMemory {
		mem := memstore.New()
		slog.Warn("using in-memory store, data is lost on restart")
		return stores{
			users:         mem,
			kpis:          mem,
			reviews:       mem,
			rewards:       mem,
			settings:      mem.Settings(),
			templates:     mem,
			notifications: mem,
			audit:         mem,
			idempotency:   middleware.NewMemoryIdempotencyStore(idempotencyTTL),
		}, nil
	}

	pool, err := db.Connect(ctx, a.Config.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("connect database: %w", err)
	}
	a.DB = pool

	if a.Config.RunMigrations {
		applied, err := db.Migrate(ctx, pool, a.Config.MigrationsDir)
		if err != nil {
			return stores{}, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			slog.Info("migrations applied", "files", applied)
		}
	}

	return stores{
		users:         auth.NewStore(pool),
		kpis:          kpi.NewStore(pool),
		reviews:       review.NewStore(pool),
		rewards:       reward.NewStore(pool),
		settings:      settings.NewStore(pool),
		templates:     templates.NewStore(pool),
		notifications: notifications.NewStore(pool),
		audit:         audit.NewStore(pool),
		idempotency:   middleware.NewPGIdempotencyStore(pool),
	}, nil
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.DB != nil {
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			slog.Warn("close event publisher", "err", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Package app assembles the login monitor from configuration: ledger
// backend, geolocation, notification sinks, services and the HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/bruteguard/internal/auth"
	"github.com/BradenHooton/bruteguard/internal/background"
	"github.com/BradenHooton/bruteguard/internal/config"
	"github.com/BradenHooton/bruteguard/internal/database"
	"github.com/BradenHooton/bruteguard/internal/geo"
	"github.com/BradenHooton/bruteguard/internal/handlers"
	"github.com/BradenHooton/bruteguard/internal/metrics"
	"github.com/BradenHooton/bruteguard/internal/middleware"
	"github.com/BradenHooton/bruteguard/internal/notify"
	"github.com/BradenHooton/bruteguard/internal/repositories"
	"github.com/BradenHooton/bruteguard/internal/repositories/sqlitestore"
	"github.com/BradenHooton/bruteguard/internal/routes"
	"github.com/BradenHooton/bruteguard/internal/services"
	pkghttp "github.com/BradenHooton/bruteguard/pkg/http"
	pkglogger "github.com/BradenHooton/bruteguard/pkg/logger"
)

// App owns every long-lived component of a running server.
type App struct {
	Handler http.Handler
	Tracker *services.AttemptTracker
	Users   *services.UserService

	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *notify.Dispatcher
	janitor    *background.TrackerJanitor
	geo        *geo.Resolver
	closers    []func() error
}

// Store is an opened ledger backend.
type Store struct {
	Ledger services.Ledger
	Health handlers.HealthChecker
	Close  func() error
}

// OpenStore connects to the configured ledger backend.
func OpenStore(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Ledger: services.Ledger{
				Logs:      sqlitestore.NewLogRepository(db),
				Blocks:    sqlitestore.NewBlockRepository(db),
				Incidents: sqlitestore.NewIncidentRepository(db),
				Users:     sqlitestore.NewUserRepository(db),
				Settings:  sqlitestore.NewSettingsRepository(db),
			},
			Health: handlers.HealthCheckFunc(db.PingContext),
			Close:  db.Close,
		}, nil
	default:
		db, err := database.NewConnection(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Ledger: services.Ledger{
				Logs:      repositories.NewLogRepository(db),
				Blocks:    repositories.NewBlockRepository(db),
				Incidents: repositories.NewIncidentRepository(db),
				Users:     repositories.NewUserRepository(db),
				Settings:  repositories.NewSettingsRepository(db),
			},
			Health: db,
			Close: func() error {
				db.Close()
				return nil
			},
		}, nil
	}
}

// Migrate runs a goose command against the configured backend.
func Migrate(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger, command string) error {
	if cfg.Driver == config.DriverSQLite {
		db, err := database.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer func(db *sql.DB) { _ = db.Close() }(db)
		return database.MigrateSQLite(ctx, db, command)
	}

	db, err := database.NewConnection(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(ctx, command)
}

// New wires the application over an already migrated store.
func New(ctx context.Context, cfg *config.Config, store *Store, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	m := metrics.New()
	auditLogger := pkglogger.NewAuditLogger(logger)
	ledger := store.Ledger

	resolver, err := geo.Open(cfg.Geo.CountryDBPath, cfg.Geo.ASNDBPath, logger)
	if err != nil {
		// Lookups degrade to "Unknown"; blocking does not depend on them.
		logger.Warn("geolocation databases unavailable", slog.Any("error", err))
		resolver = geo.NewResolver(logger)
	}
	a.geo = resolver

	settingsService := services.NewSettingsService(ledger.Settings, logger, auditLogger)

	sinks, err := a.buildSinks(ctx, settingsService)
	if err != nil {
		a.close()
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(sinks, cfg.Notify.QueueSize, cfg.Notify.Timeout, logger, m)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	locks := services.NewSourceLocker()
	tracker := services.NewAttemptTracker(ledger.Logs, resolver, services.TrackerConfig{
		MaxFailedAttempts:     cfg.Guard.MaxFailedAttempts,
		CriticalAfterAttempts: cfg.Guard.CriticalAfterAttempts,
	}, logger, m)
	engine := services.NewBlockEngine(ledger.Blocks, tracker, locks, resolver, a.dispatcher,
		cfg.Guard.AutoBlockDuration, logger, auditLogger, m)
	delay := auth.NewTimingDelay(auth.TimingConfig{
		Floor:  cfg.Auth.LoginDelayFloor,
		Jitter: cfg.Auth.LoginDelayJitter,
	})
	gate := services.NewAuthGate(ledger, tracker, engine, locks, resolver, tokens, delay, logger, auditLogger, m)
	dashboard := services.NewDashboardService(ledger, resolver, logger)
	users := services.NewUserService(ledger.Users, logger, auditLogger)

	a.Tracker = tracker
	a.Users = users
	a.janitor = background.NewTrackerJanitor(tracker, cfg.Guard.TrackerIdleTTL, cfg.Guard.TrackerSweepInterval, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.SecureLogger(logger, ipConfig))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:      handlers.NewAuthHandler(gate, ipConfig, logger),
		DashboardHandler: handlers.NewDashboardHandler(dashboard, engine, logger),
		UserHandler:      handlers.NewUserHandler(users, logger),
		SettingsHandler:  handlers.NewSettingsHandler(settingsService, logger),
		Tokens:           tokens,
		LoginRateLimit: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Server.LoginRateLimit,
			IPConfig:          ipConfig,
		},
		Health:  store.Health,
		Metrics: m.Handler(),
		Logger:  logger,
	})
	a.Handler = router

	return a, nil
}

func (a *App) buildSinks(ctx context.Context, settings notify.SettingsReader) ([]notify.Sink, error) {
	ncfg := a.cfg.Notify
	sinks := []notify.Sink{
		notify.NewTelegramSink(ncfg.TelegramAPIURL, settings, &http.Client{Timeout: ncfg.Timeout}),
	}

	if ncfg.EmailEnabled() {
		email, err := notify.NewSESEmailSink(ctx, ncfg.SESRegion, ncfg.EmailFrom, ncfg.EmailTo, a.logger)
		if err != nil {
			return nil, fmt.Errorf("email sink: %w", err)
		}
		sinks = append(sinks, email)
	}

	if ncfg.RedisURL != "" {
		client, err := notify.ConnectRedis(ctx, ncfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		sinks = append(sinks, notify.NewRedisStreamSink(client, ncfg.RedisStream))
	}

	return sinks, nil
}

// EnsureAdmin creates the bootstrap account when no account exists.
func (a *App) EnsureAdmin(ctx context.Context) error {
	if _, err := a.Users.EnsureBootstrapUser(ctx, a.cfg.Auth.AdminUsername, a.cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("ensuring admin account: %w", err)
	}
	return nil
}

// Start launches the notification worker and the tracker janitor.
func (a *App) Start(ctx context.Context) {
	a.dispatcher.Start()
	go a.janitor.Start(ctx)
}

// Shutdown stops background work, draining queued notifications until ctx
// expires.
func (a *App) Shutdown(ctx context.Context) error {
	a.janitor.Stop()
	err := a.dispatcher.Close(ctx)
	return errors.Join(err, a.close())
}

func (a *App) close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	if a.geo != nil {
		errs = append(errs, a.geo.Close())
	}
	return errors.Join(errs...)
}

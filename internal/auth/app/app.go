package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/aussiebroadwan/sessionkeeper/internal/auth/http"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/service"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
	redisstore "github.com/aussiebroadwan/sessionkeeper/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkeeper/pkg/jwtx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

const redisDialTimeout = 5 * time.Second

// Application holds the session service and everything it is wired to.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	tokens   store.Tokens
	resets   store.ResetTokens
	users    store.Users
	codec    *jwtx.Codec
	registry *prometheus.Registry

	// Services
	sessionService      *service.SessionService
	authService         *service.AuthService
	mfaService          *service.MFAService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New validates cfg, connects both stores and wires the services and
// router. Nothing is served until Run.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sessionkeeper",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.ensureSecret(); err != nil {
		return nil, err
	}
	if err := app.cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := jwtx.NewCodec(app.cfg.JWTSecret, jwtx.WithIssuer(app.cfg.Issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initTokenStore(); err != nil {
		return nil, errors.Join(err, wrapClose("database", app.users.Close()))
	}
	if err := app.initServices(); err != nil {
		return nil, errors.Join(err, app.closeStores())
	}
	app.initHTTP()

	return app, nil
}

// ensureSecret generates a throwaway signing secret in dev when none is
// configured. Tokens do not survive a restart in that mode.
func (app *Application) ensureSecret() error {
	if len(app.cfg.JWTSecret) > 0 || app.cfg.Env != "dev" {
		return nil
	}

	secret, err := cryptox.GenerateSecret(jwtx.MinSecretSize)
	if err != nil {
		return fmt.Errorf("failed to generate dev secret: %w", err)
	}
	app.cfg.JWTSecret = []byte(secret)
	app.logger.Warn("AUTH_JWT_SECRET not set, using a random secret for this process")
	return nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("session service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			return errors.Join(fmt.Errorf("server failed: %w", err), app.closeStores())
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, waits for a running cleanup sweep and
// closes both stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down session service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("session service stopped")
	return nil
}

// Handler returns the fully wired router without starting a listener.
func (app *Application) Handler() http.Handler { return app.router }

// Close releases the stores of an application that was never Run.
func (app *Application) Close() error {
	app.housekeepingService.Stop()
	return app.closeStores()
}

func (app *Application) closeStores() error {
	return errors.Join(
		wrapClose("token store", app.tokens.Close()),
		wrapClose("database", app.users.Close()),
	)
}

func wrapClose(what string, err error) error {
	if err != nil {
		return fmt.Errorf("error closing %s: %w", what, err)
	}
	return nil
}

// initDatabase opens the user directory and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.users = db

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initTokenStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	tokens, err := redisstore.Open(ctx, redisstore.Config{
		Addr:        app.cfg.RedisAddr,
		Password:    app.cfg.RedisPassword,
		DB:          app.cfg.RedisDB,
		DialTimeout: redisDialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to token store at %s: %w", app.cfg.RedisAddr, err)
	}
	app.tokens = tokens
	app.resets = tokens

	app.logger.Info("token store connected", "addr", app.cfg.RedisAddr, "db", app.cfg.RedisDB)
	return nil
}

func (app *Application) initServices() error {
	pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(app.registry)

	app.sessionService = &service.SessionService{
		Codec:      app.codec,
		Tokens:     app.tokens,
		Users:      app.users,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
		Metrics:    metrics,
	}
	app.authService = &service.AuthService{
		Users:    app.users,
		Sessions: app.sessionService,
		Hasher:   cryptox.NewPasswordHasher(pepper),
		Resets:   app.resets,
		Notifier: service.LogNotifier{LinkBase: app.cfg.PasswordResetURL},
	}
	app.mfaService = &service.MFAService{
		Users:    app.users,
		Sessions: app.sessionService,
		Issuer:   app.cfg.Issuer,
	}

	hk, err := service.NewHousekeepingService(app.tokens, app.logger, app.cfg.CleanupSchedule)
	if err != nil {
		return err
	}
	hk.Metrics = metrics
	app.housekeepingService = hk

	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.tokens,
		app.users,
		app.registry,
		app.cfg.CORSOrigins,
		app.logger,
	)

	router.SessionService = app.sessionService
	router.AuthService = app.authService
	router.MFAService = app.mfaService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Package bootstrap wires all dependencies and starts the application.
// File configuration (with environment overrides) covers the process; the
// runtime bundle config lives in the database and is seeded from the file
// on first start.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/bundlekeeper/adapters/clock"
	"github.com/artpar/bundlekeeper/adapters/hasher"
	apihttp "github.com/artpar/bundlekeeper/adapters/http"
	"github.com/artpar/bundlekeeper/adapters/http/admin"
	"github.com/artpar/bundlekeeper/adapters/idgen"
	"github.com/artpar/bundlekeeper/adapters/metrics"
	"github.com/artpar/bundlekeeper/adapters/provider"
	"github.com/artpar/bundlekeeper/adapters/sqlite"
	"github.com/artpar/bundlekeeper/app"
	"github.com/artpar/bundlekeeper/config"
	"github.com/artpar/bundlekeeper/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options tune application construction.
type Options struct {
	Version   string
	HotReload bool        // Watch the config file and SIGHUP (file configs only)
	Stdout    io.Writer   // Log output (default: os.Stdout)
	Clock     ports.Clock // default: real time
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *sqlite.DB
	Service    *app.BundleService
	Scheduler  *app.Scheduler
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry

	providers       *provider.Factory
	logCloser       io.Closer
	hotReload       bool
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once
	shutdownErr     error
}

// Load reads configuration from path, or from the environment when the file
// does not exist, and builds the application.
func Load(path string, opts Options) (*App, error) {
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := NewLogger(cfg.Logging, opts.Stdout)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	holder := config.NewStaticHolder(cfg, logger)
	if opts.HotReload && fileExists(path) {
		holder, err = config.NewHolder(path, logger)
		if err != nil {
			closer.Close()
			return nil, err
		}
	} else {
		opts.HotReload = false
	}

	a, err := New(holder, logger, opts)
	if err != nil {
		closer.Close()
		return nil, err
	}
	a.logCloser = closer
	return a, nil
}

// New creates and initializes the application from a config holder.
func New(holder *config.Holder, logger zerolog.Logger, opts Options) (*App, error) {
	cfg := holder.Get()
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	logger.Info().Str("version", opts.Version).Msg("initializing bundlekeeper")

	a := &App{
		Logger:          logger,
		Config:          holder,
		logCloser:       nopCloser{},
		hotReload:       opts.HotReload,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	ctx := context.Background()
	db, factory, svc, err := openService(ctx, cfg, logger, opts.Clock, a.serviceMetrics())
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.providers = factory
	a.Service = svc

	a.Scheduler = app.NewScheduler(svc, opts.Clock, a.serviceMetrics(), logger, app.SchedulerConfig{
		ResyncInterval:       cfg.Scheduler.ResyncInterval,
		StopTimeout:          cfg.Scheduler.StopTimeout,
		TriggerMinInterval:   cfg.Scheduler.TriggerMinInterval,
		HousekeepingInterval: cfg.Scheduler.HousekeepingInterval,
		Retention:            retention(cfg.Retention),
	})

	a.initHTTPServer(cfg, opts.Version)
	a.wireReload()

	return a, nil
}

// serviceMetrics avoids handing a typed nil collector to the services.
func (a *App) serviceMetrics() ports.Metrics {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics
}

func (a *App) initHTTPServer(cfg *config.Config, version string) {
	adminHandler := admin.NewHandler(admin.Deps{
		Service: a.Service,
		Checks:  a.Scheduler,
		Store:   a.DB,
		Keys:    keyVerifier(cfg.Server),
		Logger:  a.Logger,
		Version: version,
	})

	routerCfg := apihttp.RouterConfig{
		Version:      version,
		AdminHandler: adminHandler.Router(),
	}
	if a.Metrics != nil {
		routerCfg.Metrics = a.Metrics
		routerCfg.MetricsPath = cfg.Metrics.Path
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
	}

	router := apihttp.NewRouter(apihttp.NewHealthHandler(a.DB), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("http server configured")
}

// wireReload applies reloadable settings when the config file changes.
func (a *App) wireReload() {
	a.Config.OnChange(func(cfg *config.Config) {
		SetLogLevel(cfg.Logging.Level)
		a.providers.SetBase(providerConfig(cfg.Provider))
		a.Scheduler.SetRetention(retention(cfg.Retention))
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(nil, time.Now())
		}
	})
	a.Config.OnError(func(err error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(err, time.Now())
		}
	})
}

// Run starts the HTTP server and the scheduler and blocks until SIGINT or
// SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext runs until ctx is done or the server fails, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if a.hotReload {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.Config.WatchSignals()
	}

	g, gctx := errgroup.WithContext(ctx)

	a.Scheduler.Start(gctx)

	g.Go(func() error {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("shutting down")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops the application. It is safe to call more than
// once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
	})
	return a.shutdownErr
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error

	// Stop the scheduler first so no cycle writes after the store closes
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			errs = append(errs, err)
		}
	}

	if a.Config != nil {
		a.Config.Stop()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
			errs = append(errs, err)
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}

// Service is a store-backed bundle service for one-shot commands.
type Service struct {
	*app.BundleService
	DB *sqlite.DB
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.DB.Close()
}

// OpenService opens the store and builds the bundle service without the
// scheduler or HTTP server.
func OpenService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	db, _, svc, err := openService(ctx, cfg, logger, clock.Real{}, nil)
	if err != nil {
		return nil, err
	}
	return &Service{BundleService: svc, DB: db}, nil
}

func openService(ctx context.Context, cfg *config.Config, logger zerolog.Logger, clk ports.Clock, m ports.Metrics) (*sqlite.DB, *provider.Factory, *app.BundleService, error) {
	db, err := initDatabase(cfg.Database.DSN, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init database: %w", err)
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("scheduler timezone: %w", err)
	}

	factory := provider.NewFactory(providerConfig(cfg.Provider), logger.With().Str("component", "provider").Logger())

	svc, err := app.NewBundleService(ctx, app.BundleServiceDeps{
		States:      sqlite.NewStateStore(db),
		Usage:       sqlite.NewUsageStore(db),
		Audit:       sqlite.NewAuditStore(db),
		Idempotency: sqlite.NewIdempotencyStore(db),
		Providers:   factory.Func(),
		Clock:       clk,
		IDs:         idgen.UUID{Prefix: "run_"},
		Metrics:     m,
		Logger:      logger,
	}, app.BundleServiceConfig{
		Location:   loc,
		Seed:       cfg.Bundle,
		OnLogLevel: SetLogLevel,
	})
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("init bundle service: %w", err)
	}

	return db, factory, svc, nil
}

func initDatabase(dsn string, logger zerolog.Logger) (*sqlite.DB, error) {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Str("dsn", dsn).Msg("database initialized")
	return db, nil
}

func providerConfig(c config.ProviderConfig) provider.Config {
	return provider.Config{
		BaseURL:    c.BaseURL,
		UserID:     c.UserID,
		Token:      c.Token,
		UserAgent:  c.UserAgent,
		Zone:       c.Zone,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
	}
}

func retention(c config.RetentionConfig) app.Retention {
	return app.Retention{
		Idempotency: c.IdempotencyTTL,
		UsageEvents: c.UsageEventsTTL,
		Logs:        c.LogsTTL,
	}
}

// keyVerifier guards the operator API. The bcrypt hash wins over the
// plaintext key; with neither set the API is open.
func keyVerifier(c config.ServerConfig) hasher.KeyVerifier {
	v := hasher.KeyVerifier{Plain: c.APIKey}
	if c.APIKeyHash != "" {
		v.Hash = []byte(c.APIKeyHash)
		v.Hasher = hasher.NewBcrypt(0)
	}
	return v
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

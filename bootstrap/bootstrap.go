// Package bootstrap wires every adapter and application service into a
// running App. Unlike the teacher, configuration is not loaded from the
// database -- the gateway has no admin surface to edit it through -- it
// comes entirely from a config.yaml file plus APIGW_* environment overrides
// (config.Load).
package bootstrap

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/svcgate/gateway/adapters/auth"
	"github.com/svcgate/gateway/adapters/clock"
	apihttp "github.com/svcgate/gateway/adapters/http"
	"github.com/svcgate/gateway/adapters/kv"
	"github.com/svcgate/gateway/adapters/memory"
	"github.com/svcgate/gateway/adapters/metrics"
	"github.com/svcgate/gateway/adapters/sqlite"
	"github.com/svcgate/gateway/app"
	"github.com/svcgate/gateway/config"
	"github.com/svcgate/gateway/domain/authn"
	"github.com/svcgate/gateway/domain/breaker"
	"github.com/svcgate/gateway/domain/hostguard"
	"github.com/svcgate/gateway/domain/ratelimit"
	"github.com/svcgate/gateway/ports"
)

// App is the fully wired, running gateway.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Holder is the config.Holder watching path for changes; nil if file
	// watching could not be set up (New logs and continues without it --
	// hot reload is a convenience, not a boot requirement).
	Holder *config.Holder

	dataplane *app.DataplaneService
	usage     *app.UsageService
	upstream  *apihttp.UpstreamClient
	counters  io.Closer
}

// New loads config from path and wires every adapter and app service
// behind it into a running (but not yet listening) App.
func New(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Str("config", path).Msg("starting gateway")

	a := &App{Logger: logger, Config: cfg}

	if err := a.initDatabase(cfg.Database); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	breaker.Configure(cfg.Breaker.FailureThreshold, cfg.Breaker.OpenDuration)
	ratelimit.Configure(cfg.RateLimit.WindowSecs)
	authn.Configure(cfg.Auth.KeyPrefix)
	hostguard.Configure(cfg.SSRF.ExtraPrivateRanges)

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	deps, healthCheckers, err := a.buildDataplaneDeps(cfg)
	if err != nil {
		return nil, fmt.Errorf("build dataplane dependencies: %w", err)
	}
	a.dataplane = app.NewDataplaneService(deps, cfg.Cache.ResponseMaxEntries)
	a.usage = deps.Usage

	dataplaneHandler := apihttp.NewDataplaneHandler(a.dataplane, logger, a.Metrics)
	healthHandler := apihttp.NewHealthHandler(healthCheckers...)
	router := apihttp.NewRouter(dataplaneHandler, healthHandler, logger, apihttp.RouterConfig{Metrics: a.Metrics})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	holder, err := config.NewHolder(path, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("config hot reload disabled: could not create holder")
	} else {
		holder.OnChange(a.applyReloadableConfig)
		a.Holder = holder
	}

	return a, nil
}

// applyReloadableConfig re-applies config.ReloadableFields() from a reloaded
// Config to the domain packages' Configure functions, so a SIGHUP or config
// file write takes effect without a restart (config.Holder.OnChange).
func (a *App) applyReloadableConfig(cfg *config.Config) {
	breaker.Configure(cfg.Breaker.FailureThreshold, cfg.Breaker.OpenDuration)
	ratelimit.Configure(cfg.RateLimit.WindowSecs)
	authn.Configure(cfg.Auth.KeyPrefix)
	hostguard.Configure(cfg.SSRF.ExtraPrivateRanges)

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a.Config = cfg
}

func (a *App) initDatabase(cfg config.DatabaseConfig) error {
	db, err := sqlite.Open(cfg.DSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	a.Logger.Info().Str("dsn", cfg.DSN).Msg("database initialized")
	return nil
}

// buildDataplaneDeps wires the eight C8-C16 services into app.DataplaneDeps,
// and collects the adapters worth pinging on /readyz.
func (a *App) buildDataplaneDeps(cfg *config.Config) (app.DataplaneDeps, []apihttp.HealthChecker, error) {
	checkers := []apihttp.HealthChecker{a.DB}

	masterKey, err := hex.DecodeString(cfg.Vault.MasterKeyHex)
	if err != nil {
		return app.DataplaneDeps{}, nil, fmt.Errorf("vault master key: %w", err)
	}

	connectorStore := sqlite.NewConnectorStore(a.DB)
	apiKeyStore := sqlite.NewApiKeyStore(a.DB)
	membershipStore := sqlite.NewTeamMembershipStore(a.DB)
	secretStore, err := sqlite.NewSecretStore(a.DB, masterKey)
	if err != nil {
		return app.DataplaneDeps{}, nil, fmt.Errorf("secret store: %w", err)
	}
	usageStore := sqlite.NewUsageStore(a.DB)

	var rateLimitKV ports.RateLimitKV
	var quotaKV ports.QuotaKV
	switch cfg.KV.Mode {
	case "valkey":
		counterStore, err := kv.NewCounterStore(kv.Config{Addresses: cfg.KV.Addresses})
		if err != nil {
			return app.DataplaneDeps{}, nil, fmt.Errorf("kv counter store: %w", err)
		}
		rateLimitKV, quotaKV = counterStore, counterStore
		checkers = append(checkers, counterStore)
		a.counters = counterStore
	default: // "memory"
		counterStore := memory.NewShardedCounterStore(memory.ShardedCounterConfig{})
		rateLimitKV, quotaKV = counterStore, counterStore
		a.counters = counterStore
	}

	var sessionValidator ports.SessionValidator
	if cfg.Auth.SessionSecret != "" {
		sessionValidator = auth.NewTokenService(cfg.Auth.SessionSecret, 0)
	}

	clockSvc := clock.Real{}

	limiters, err := ratelimit.NewLimiterCache(256)
	if err != nil {
		return app.DataplaneDeps{}, nil, fmt.Errorf("limiter cache: %w", err)
	}

	upstream := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{})
	a.upstream = upstream

	var metricsPort ports.Metrics
	if a.Metrics != nil {
		metricsPort = a.Metrics
	}

	authnSvc := app.NewAuthnService(app.AuthnDeps{
		Keys:    apiKeyStore,
		Session: sessionValidator,
		Clock:   clockSvc,
	})
	resolverSvc := app.NewResolverService(connectorStore, cfg.Cache.ConfigPositiveTTL, cfg.Cache.ConfigNegativeTTL)
	accessSvc := app.NewAccessService(membershipStore)
	secretSvc := app.NewSecretService(secretStore, a.Logger)
	orchestratorSvc := app.NewOrchestrator()
	proxySvc := app.NewProxyService(app.ProxyDeps{
		Upstream:         upstream,
		RateLimitKV:      rateLimitKV,
		QuotaKV:          quotaKV,
		Breakers:         breaker.NewStore(),
		Limiters:         limiters,
		Clock:            clockSvc,
		Metrics:          metricsPort,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		UsageCounter:     usageStore,
	})
	responseSvc := app.NewResponseBuilder()
	usageSvc := app.NewUsageService(usageStore, a.Logger, cfg.Usage.Mode, cfg.Usage.FlushInterval)

	return app.DataplaneDeps{
		Authn:        authnSvc,
		Resolver:     resolverSvc,
		Access:       accessSvc,
		Secrets:      secretSvc,
		Orchestrator: orchestratorSvc,
		Proxy:        proxySvc,
		Response:     responseSvc,
		Usage:        usageSvc,
		Log:          a.Logger,
	}, checkers, nil
}

// Run starts the usage sink and the HTTP server, and blocks until an
// interrupt signal arrives, then shuts down gracefully.
func (a *App) Run() error {
	ctx := context.Background()
	a.usage.Start(ctx)

	if a.Holder != nil {
		if err := a.Holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.Holder.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops accepting new work and drains what's in flight: the
// usage sink is stopped (flushing its buffer) before the HTTP server
// itself stops accepting connections, and the server is given a grace
// period to finish requests already in progress.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.usage != nil {
		a.usage.Stop(ctx)
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.upstream != nil {
		a.upstream.Close()
	}
	if a.counters != nil {
		if err := a.counters.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("counter store close error")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

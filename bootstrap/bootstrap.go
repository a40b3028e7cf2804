// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/adapters/clock"
	apihttp "github.com/personahire/tokenmeter/adapters/http"
	"github.com/personahire/tokenmeter/adapters/idgen"
	"github.com/personahire/tokenmeter/adapters/memory"
	"github.com/personahire/tokenmeter/adapters/metrics"
	"github.com/personahire/tokenmeter/adapters/sqlite"
	"github.com/personahire/tokenmeter/app"
	"github.com/personahire/tokenmeter/config"
	"github.com/personahire/tokenmeter/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder // nil when running from a static config
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Ledger     *app.LedgerService
	Policy     *app.PolicyService

	static        *config.Config
	retentionStop chan struct{}
}

// currentConfig returns the live config, following hot reloads when a
// holder is present.
func (a *App) currentConfig() *config.Config {
	if a.Config != nil {
		return a.Config.Get()
	}
	return a.static
}

// New creates and initializes the application from the config file at
// path. The file is watched for changes; threshold and pricing edits take
// effect without a restart.
func New(path string) (*App, error) {
	holder, err := config.NewHolder(path, zerolog.New(os.Stderr).With().Timestamp().Logger())
	if err != nil {
		return nil, err
	}
	return NewWithHolder(holder)
}

// NewStatic creates the application from an already-loaded config with
// hot reload disabled.
func NewStatic(cfg *config.Config) (*App, error) {
	a := &App{
		Logger:        SetupLogger(cfg.Logging),
		static:        cfg,
		retentionStop: make(chan struct{}),
	}
	return a.init(cfg)
}

// NewWithHolder creates the application over an existing config holder.
func NewWithHolder(holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	a := &App{
		Logger:        SetupLogger(cfg.Logging),
		Config:        holder,
		retentionStop: make(chan struct{}),
	}
	return a.init(cfg)
}

func (a *App) init(cfg *config.Config) (*App, error) {
	logger := a.Logger
	logger.Info().Msg("initializing tokenmeter")

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	store, err := a.initStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	gateway := app.NewGateway(store, logger, a.Metrics,
		app.WithMaxEvents(cfg.Storage.MaxEvents),
		app.WithSaveTimeout(cfg.Storage.SaveTimeout),
	)
	a.Ledger = app.NewLedgerService(gateway, clock.Real{}, idgen.UUID{}, cfg.PricingTable(), logger, a.Metrics)
	a.Policy = app.NewPolicyService(a.Ledger, cfg.Thresholds(), logger, a.Metrics)

	// Hot reload: thresholds take effect on the next evaluation. Pricing
	// changes require a restart; the ledger keeps recorded costs fixed
	// either way.
	if a.Config != nil {
		a.Config.OnChange(func(next *config.Config) {
			a.Policy.SetThresholds(next.Thresholds())
			if a.Metrics != nil {
				a.Metrics.ConfigReloads.Inc()
			}
		})
		a.Config.OnError(func(error) {
			if a.Metrics != nil {
				a.Metrics.ConfigReloadErrors.Inc()
			}
		})
	}

	handler := apihttp.NewHandler(a.Ledger, a.Policy, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr: addr,
		Handler: handler.Router(apihttp.RouterOptions{
			MetricsEnabled: cfg.Metrics.Enabled,
			MetricsPath:    cfg.Metrics.Path,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info().Str("addr", addr).Msg("http server configured")
	return a, nil
}

func (a *App) initStore(cfg *config.Config) (ports.KVStore, error) {
	switch cfg.Storage.Driver {
	case "memory":
		a.Logger.Info().Msg("using in-memory store, state will not survive restarts")
		return memory.NewKVStore(), nil
	default:
		db, err := sqlite.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.Logger.Info().Str("dsn", cfg.Storage.DSN).Msg("database initialized")
		return sqlite.NewKVStore(db), nil
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if a.Config != nil {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.Config.WatchSignals()
	}
	a.startRetentionLoop()

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

// startRetentionLoop sweeps expired days on the configured interval. The
// horizon is re-read every tick so a config reload changes it live.
func (a *App) startRetentionLoop() {
	cfg := a.currentConfig()
	if cfg.Retention.Days < 0 {
		a.Logger.Info().Msg("retention sweep disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(cfg.Retention.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				days := a.currentConfig().Retention.Days
				if days < 0 {
					continue
				}
				if removed := a.Ledger.ApplyRetention(context.Background(), days); removed > 0 {
					a.Logger.Info().Int("events_removed", removed).Msg("retention sweep completed")
				}
			case <-a.retentionStop:
				return
			}
		}
	}()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	close(a.retentionStop)
	if a.Config != nil {
		a.Config.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
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

// SetupLogger builds the process logger from the logging config.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
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

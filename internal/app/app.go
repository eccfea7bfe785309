package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/config"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/metrics"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/reconcile"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/scheduler"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/service"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/storage"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/transport"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/web"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// GaugeParams maps the configured gauge onto the domain parameters.
func (a *App) GaugeParams() gauge.Params {
	g := a.Config.Gauge
	return gauge.Params{
		EntityID:           g.EntityID,
		SensorName:         g.Name,
		VolumePerOnML:      g.VolumePerTipOnML,
		VolumePerOffML:     g.VolumePerTipOffML,
		FunnelDiameterMM:   g.FunnelDiameterMM,
		MissedFlipRecovery: g.MissedFlipRecovery,
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running gauge service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; history persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	clock := clockwork.NewRealClock()
	params := a.GaugeParams()

	g := gauge.New(params, loc, clock, a.Logger)

	var history reconcile.History
	var stateLog storage.StateLog
	var readingLog storage.ReadingLog
	var pruner service.Pruner
	if store != nil {
		history = store
		stateLog = store
		readingLog = store
		pruner = store
	}

	broker, err := transport.Connect(a.Config.MQTT, params.EntityID, params.Slug(), clock, a.Logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Housekeeping.Interval,
		AlignToStart: true,
	}, clock, a.Logger)

	svc := service.New(service.Options{
		Gauge:      g,
		Subscriber: broker,
		Publisher:  broker,
		StateLog:   stateLog,
		ReadingLog: readingLog,
		Reconciler: reconcile.New(history, loc, clock, a.Logger),
		Scheduler:  sched,
		Metrics:    m,
		Clock:      clock,
		Pruner:     pruner,
	}, a.Logger)

	errCh := make(chan error, 2)
	if a.Config.HTTP.Enabled {
		server := web.NewServer(a.Config.HTTP.Listen, svc.Readings, svc.Ready, registry, a.Logger)
		go func() {
			errCh <- server.Run(ctx)
		}()
	}

	a.Logger.Info().Str("entity", params.EntityID).Msg("starting rain gauge service")
	go func() {
		errCh <- svc.Run(ctx)
	}()

	err = <-errCh
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rain gauge service stopped")
	return nil
}

// ExportOptions hold parameters for exporting reading history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
	Metric    string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Metric string
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	Tips      int
	Interval  time.Duration
	SameState bool
}

package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"blinky/internal/analytics"
	"blinky/internal/collector"
	"blinky/internal/config"
	"blinky/internal/event"
	"blinky/internal/model"
	"blinky/internal/platform"
	"blinky/internal/scheduler"
	"blinky/internal/settings"
	"blinky/internal/storage"

	sqlitestore "blinky/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// Options replaces the machine-facing collaborators. Zero values pick the
// real implementations.
type Options struct {
	Clock     scheduler.Clock
	Idle      collector.IdleCollector
	Fs        afero.Fs
	Autostart func(enabled bool) error
	// HandleSignals installs the SIGINT/SIGTERM handler in Run.
	HandleSignals bool
}

type App struct {
	cfg   *config.Config
	log   zerolog.Logger
	clock scheduler.Clock
	loc   *time.Location

	storage   storage.Storage
	bus       event.Bus
	settings  *settings.Store
	analytics *analytics.Engine
	scheduler *scheduler.Scheduler
	idle      collector.IdleCollector
	cron      *cron.Cron

	socketPath    string
	listener      *net.UnixListener
	handleSignals bool

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Clock == nil {
		opts.Clock = scheduler.SystemClock
	}
	if opts.Autostart == nil {
		opts.Autostart = platform.NewAutostart().Set
	}

	a := &App{
		cfg:           cfg,
		log:           log,
		clock:         opts.Clock,
		loc:           cfg.Location(),
		bus:           event.NewBus(log),
		socketPath:    cfg.SocketPath,
		handleSignals: opts.HandleSignals,
		ctx:           ctx,
		cancel:        cancel,
	}

	// Initialize Storage
	store := sqlitestore.NewSQLiteStore(cfg.DatabasePath, log)
	if err := store.Init(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.storage = store

	a.settings = settings.New(store, a.bus, settings.Options{
		Location:  a.loc,
		Now:       a.clock.Now,
		Autostart: opts.Autostart,
	}, log)
	if err := a.settings.Load(ctx); err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	a.analytics = analytics.New(store, analytics.Options{
		Location:  a.loc,
		ExportDir: cfg.ExportDir,
		Fs:        opts.Fs,
		Now:       a.clock.Now,
		DailyGoal: func() int { return a.settings.Get().DailyGoal },
	}, log)
	if err := a.analytics.Load(ctx); err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}

	a.idle = opts.Idle
	if a.idle == nil {
		a.idle = collector.NewIdleCollector(log)
	}

	a.scheduler = scheduler.New(scheduler.Options{
		Clock:             a.clock,
		Idle:              a.idle,
		Recorder:          a.analytics,
		Preferences:       a.settings,
		Bus:               a.bus,
		Location:          a.loc,
		TickInterval:      cfg.Timer.TickInterval(),
		IdleCheckInterval: cfg.Timer.IdleCheckInterval(),
		DemoDuration:      cfg.Timer.DemoBreakDuration(),
	}, log)
	a.scheduler.SetCompletedToday(a.analytics.CompletedToday())

	a.cron = cron.New(cron.WithLocation(a.loc))
	if _, err := a.cron.AddFunc("@midnight", a.rollover); err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to schedule day rollover: %w", err)
	}

	return a, nil
}

func (a *App) abort() {
	a.cancel()
	if err := a.storage.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close storage")
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, a.cancel)
	defer stop()

	a.log.Info().
		Str("db", a.cfg.DatabasePath).
		Str("socket", a.socketPath).
		Str("timezone", a.loc.String()).
		Msg("starting blinky daemon")

	if err := a.setupSocket(); err != nil {
		a.cancel()
		return multierr.Append(err, a.cleanup())
	}
	if a.handleSignals {
		a.installSignalHandler()
	}

	a.scheduler.Start(a.ctx)
	a.cron.Start()
	a.wg.Go(a.listenForCommands)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn().Err(err).Msg("failed to notify systemd")
	} else if ok {
		a.log.Debug().Msg("notified systemd")
	}

	a.log.Info().Msg("blinky daemon running")
	<-a.ctx.Done()
	a.log.Info().Msg("shutdown requested, waiting for components")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if err := a.listener.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close socket listener")
	}
	a.scheduler.Stop()
	<-a.cron.Stop().Done()

	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitChan)
	}()
	select {
	case <-waitChan:
		a.log.Debug().Msg("all connections finished")
	case <-time.After(shutdownTimeout):
		a.log.Warn().Msg("timeout waiting for connections to finish")
	}

	return a.cleanup()
}

// Shutdown asks a running App to stop. Run returns once it has.
func (a *App) Shutdown() { a.cancel() }

func (a *App) installSignalHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			a.log.Info().Str("signal", sig.String()).Msg("received signal")
			a.cancel()
		case <-a.ctx.Done():
		}
	}()
}

// rollover runs at local midnight: it freezes yesterday's rollup and resets
// the scheduler's daily counter.
func (a *App) rollover() {
	now := a.clock.Now().In(a.loc)
	yesterday := model.DayKey(now.AddDate(0, 0, -1), a.loc)

	ctx, cancel := context.WithTimeout(a.ctx, shutdownTimeout)
	defer cancel()
	if err := a.analytics.SealDay(ctx, yesterday); err != nil {
		a.log.Warn().Err(err).Str("date", yesterday).Msg("failed to seal day")
	}
	a.scheduler.RolloverDay(now)
}

func (a *App) cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var errs error
	if err := a.analytics.Flush(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to flush pending breaks: %w", err))
	}
	if a.idle != nil {
		errs = multierr.Append(errs, a.idle.Close())
	}
	if err := a.storage.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	if a.listener != nil {
		if _, err := os.Stat(a.socketPath); err == nil {
			if err := os.Remove(a.socketPath); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("failed to remove socket file %s: %w", a.socketPath, err))
			}
		}
	}

	if errs != nil {
		a.log.Error().Err(errs).Msg("cleanup finished with errors")
	} else {
		a.log.Info().Msg("blinky daemon stopped")
	}
	return errs
}

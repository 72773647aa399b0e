package daemon

import (
	"context"

	"github.com/matheus3301/chronsync/internal/api"
	"github.com/matheus3301/chronsync/internal/bus"
	"github.com/matheus3301/chronsync/internal/capture"
	"github.com/matheus3301/chronsync/internal/clock"
	"github.com/matheus3301/chronsync/internal/config"
	"github.com/matheus3301/chronsync/internal/device"
	"github.com/matheus3301/chronsync/internal/lock"
	"github.com/matheus3301/chronsync/internal/logging"
	"github.com/matheus3301/chronsync/internal/profile"
	"github.com/matheus3301/chronsync/internal/remote"
	"github.com/matheus3301/chronsync/internal/status"
	"github.com/matheus3301/chronsync/internal/store"
	intsync "github.com/matheus3301/chronsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideClock,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideDeviceManager,
			provideMergeEngine,
			provideRemote,
			provideCoordinator,
			provideRecorder,
			provideControlService,
			NewServer,
			NewHub,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Profile, error) {
	cfg, err := config.LoadProfile(profile.ConfigPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Profile) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.Log.Level)
}

func provideClock() clock.Clock {
	return clock.New()
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second daemon.
func provideStore(p Params, _ *lock.Lock, c clock.Clock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath, store.WithClock(c))
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideDeviceManager(db *store.DB, cfg *config.Profile, c clock.Clock) *device.Manager {
	env := device.StaticEnvironment(device.Environment{
		Platform:       cfg.Device.Platform,
		BrowserName:    cfg.Device.BrowserName,
		BrowserVersion: cfg.Device.BrowserVersion,
		UserAgent:      cfg.Device.UserAgent,
	})
	return device.NewManager(db, env, c)
}

func provideMergeEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.MergeEngine {
	return intsync.NewMergeEngine(db, b, logger)
}

// provideRemote dials the configured hub. With no remote it returns a nil
// interface, and every cycle fails as a transport error.
func provideRemote(lc fx.Lifecycle, cfg *config.Profile, logger *zap.Logger) (intsync.Remote, error) {
	if cfg.Sync.Remote == "" {
		logger.Info("no remote configured, sync disabled")
		return nil, nil
	}
	client, err := remote.Dial(cfg.Sync.Remote)
	if err != nil {
		return nil, err
	}
	logger.Info("remote configured", zap.String("target", client.Target()))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client, nil
}

func provideCoordinator(
	db *store.DB,
	merge *intsync.MergeEngine,
	devices *device.Manager,
	r intsync.Remote,
	machine *status.Machine,
	b *bus.Bus,
	c clock.Clock,
	logger *zap.Logger,
	cfg *config.Profile,
) *intsync.Coordinator {
	return intsync.NewCoordinator(db, merge, devices, r, machine, b, c, logger, intsync.Options{
		ClientID:     cfg.Sync.ClientID,
		Interval:     cfg.Sync.Interval.Duration,
		Timeout:      cfg.Sync.Timeout.Duration,
		MinGap:       cfg.Sync.MinGap.Duration,
		SyncOnStart:  cfg.Sync.SyncOnStart,
		TombstoneTTL: cfg.Sync.TombstoneTTL.Duration,
	})
}

func provideRecorder(db *store.DB, devices *device.Manager, b *bus.Bus, c clock.Clock, logger *zap.Logger, cfg *config.Profile) *capture.Recorder {
	filter := capture.NewFilter(cfg.Capture.SkipSchemes, cfg.Capture.DenyDomains)
	return capture.NewRecorder(db, devices, filter, b, c, logger)
}

func provideControlService(
	p Params,
	cfg *config.Profile,
	db *store.DB,
	coord *intsync.Coordinator,
	rec *capture.Recorder,
	devices *device.Manager,
	b *bus.Bus,
	c clock.Clock,
) *api.ControlService {
	return api.NewControlService(api.Deps{
		Profile:  p.ProfileName,
		Remote:   cfg.Sync.Remote,
		DB:       db,
		Coord:    coord,
		Recorder: rec,
		Devices:  devices,
		Bus:      b,
		Clock:    c,
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	hub *Hub,
	lk *lock.Lock,
	db *store.DB,
	coord *intsync.Coordinator,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := coord.Init(ctx); err != nil {
				return err
			}

			// Start gRPC servers in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			if hub != nil {
				go func() {
					if err := hub.Start(); err != nil {
						logger.Error("hub server error", zap.Error(err))
					}
				}()
			}

			coord.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			coord.Stop()
			if hub != nil {
				hub.Stop(ctx)
			}
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

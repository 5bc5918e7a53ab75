package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/bazaar/internal/api"
	"github.com/matheus3301/bazaar/internal/auth"
	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/chatws"
	"github.com/matheus3301/bazaar/internal/config"
	"github.com/matheus3301/bazaar/internal/dispatch"
	"github.com/matheus3301/bazaar/internal/lock"
	"github.com/matheus3301/bazaar/internal/logging"
	"github.com/matheus3301/bazaar/internal/messages"
	"github.com/matheus3301/bazaar/internal/rooms"
	"github.com/matheus3301/bazaar/internal/session"
	"github.com/matheus3301/bazaar/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const resumeTimeout = 30 * time.Second

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = resolve from config file and environment
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideBackend,
			provideConnection,
			provideDirectory,
			provideBridge,
			provideSessionService,
			provideRoomService,
			provideMessageService,
			NewServer,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(applyBackendZone, registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.Resolve(session.ConfigPath(), session.EnvFiles()...)
}

func applyBackendZone(cfg *config.Config, logger *zap.Logger) error {
	loc, err := cfg.BackendLocation()
	if err != nil {
		return err
	}
	chat.SetDateLocation(loc)
	logger.Debug("backend zone", zap.String("zone", loc.String()))
	return nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore takes the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("schema migrated", zap.Uint("from", result.From), zap.Uint("to", result.Version))
	} else {
		logger.Debug("schema up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(cfg *config.Config, logger *zap.Logger) *backend.Client {
	return backend.New(cfg.APIURL, cfg.RequestTimeout.Duration, logger)
}

func provideConnection(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *chatws.Manager {
	return chatws.NewManager(cfg.WSURL, chatws.Options{
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectInterval:    cfg.ReconnectInterval.Duration,
	}, b, logger)
}

func provideDirectory(client *backend.Client, b *bus.Bus, logger *zap.Logger) *rooms.Directory {
	return rooms.NewDirectory(client, b, logger)
}

func provideBridge(conn *chatws.Manager, client *backend.Client, dir *rooms.Directory, b *bus.Bus, logger *zap.Logger) *dispatch.Bridge {
	bridge := dispatch.New(messages.NewStore(), conn, client, dir, b, logger)
	dir.OnRoomCreated(bridge.SeedRoom)
	return bridge
}

func provideSessionService(
	p Params,
	conn *chatws.Manager,
	bridge *dispatch.Bridge,
	dir *rooms.Directory,
	client *backend.Client,
	db *store.DB,
	b *bus.Bus,
	logger *zap.Logger,
) *api.SessionService {
	return api.NewSessionService(p.SessionName, conn, bridge, dir, client, db, b, logger)
}

func provideRoomService(dir *rooms.Directory, client *backend.Client, db *store.DB, logger *zap.Logger) *api.RoomService {
	return api.NewRoomService(dir, client, db, logger)
}

func provideMessageService(bridge *dispatch.Bridge, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(bridge, db, b, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	conn *chatws.Manager,
	bridge *dispatch.Bridge,
	sessions *api.SessionService,
	messageSvc *api.MessageService,
	logger *zap.Logger,
) {
	var cancelResume context.CancelFunc
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The bridge is the only consumer of socket events.
			conn.RegisterEventHandler(bridge.Handle)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			var ctx context.Context
			ctx, cancelResume = context.WithTimeout(context.Background(), resumeTimeout)
			go func() {
				defer close(done)
				err := sessions.Resume(ctx)
				switch {
				case err == nil:
					logger.Info("session resumed")
				case errors.Is(err, auth.ErrNoCredentials), errors.Is(err, auth.ErrTokenExpired):
					logger.Info("login required", zap.Error(err))
				default:
					logger.Error("auto-connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelResume()
			<-done
			conn.Disconnect()
			messageSvc.Close()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

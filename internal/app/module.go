// Package app composes the client: config, logging, profile lock, REST
// client, push channel, store, archive, and the coordinators, wired
// through fx with lifecycle hooks for startup and teardown.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/prodevopz/prochat/internal/api"
	"github.com/prodevopz/prochat/internal/archive"
	"github.com/prodevopz/prochat/internal/bus"
	"github.com/prodevopz/prochat/internal/chat"
	"github.com/prodevopz/prochat/internal/config"
	"github.com/prodevopz/prochat/internal/conn"
	"github.com/prodevopz/prochat/internal/lock"
	"github.com/prodevopz/prochat/internal/logging"
	"github.com/prodevopz/prochat/internal/notify"
	"github.com/prodevopz/prochat/internal/outbox"
	"github.com/prodevopz/prochat/internal/presence"
	"github.com/prodevopz/prochat/internal/profile"
	"github.com/prodevopz/prochat/internal/roster"
	"github.com/prodevopz/prochat/internal/store"
	chatsync "github.com/prodevopz/prochat/internal/sync"
	"github.com/prodevopz/prochat/internal/tui"
)

const noticeTTL = 4 * time.Second
const reconnectDelay = 5 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("prochat",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideNotifier,
			provideClient,
			provideSelf,
			provideArchive,
			provideStore,
			provideChannel,
			provideEngine,
			provideSender,
			provideTracker,
			provideRoster,
			provideRecorder,
			provideController,
			provideTUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := profile.ConfigPath()
	cfg, err := config.Load(path)
	if os.IsNotExist(err) {
		cfg = &config.Config{
			ServerURL:      "http://localhost:3000",
			DefaultProfile: profile.DefaultProfileName,
		}
		if err := config.Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("config %s: server_url is required", path)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *conn.Machine {
	return conn.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.LockPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideNotifier(b *bus.Bus) *notify.Notifier {
	return notify.New(b, noticeTTL)
}

func provideClient(cfg *config.Config, logger *zap.Logger) (*api.Client, error) {
	return api.New(cfg.ServerURL, cfg.AuthToken, logger)
}

func provideSelf(client *api.Client, logger *zap.Logger) (*api.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	logger.Info("session resolved", zap.String("user", user.Name), zap.String("user_id", user.UserID))
	return user, nil
}

func provideArchive(p Params, logger *zap.Logger) (*archive.DB, error) {
	dbPath := profile.ArchiveDBPath(p.ProfileName)
	db, err := archive.Open(dbPath)
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
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore() *store.Store {
	return store.New()
}

func provideChannel(m *conn.Machine, b *bus.Bus, logger *zap.Logger) *conn.Channel {
	return conn.NewChannel(m, b, logger)
}

func provideEngine(st *store.Store, client *api.Client, b *bus.Bus, n *notify.Notifier, cfg *config.Config, logger *zap.Logger) *chatsync.Engine {
	return chatsync.NewEngine(st, client, b, n, logger, cfg.PollInterval())
}

func provideSender(st *store.Store, channel *conn.Channel, client *api.Client, b *bus.Bus, n *notify.Notifier, cfg *config.Config, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(st, channel, client, b, n, logger, cfg.SendTimeout())
}

func provideTracker(channel *conn.Channel, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(channel, b, logger, cfg.TypingIdle())
}

func provideRoster(st *store.Store, client *api.Client, b *bus.Bus, n *notify.Notifier, logger *zap.Logger) *roster.Coordinator {
	return roster.NewCoordinator(st, client, b, n, logger)
}

func provideRecorder(db *archive.DB, st *store.Store, b *bus.Bus, logger *zap.Logger) *archive.Recorder {
	return archive.NewRecorder(db, st, b, logger)
}

func provideController(
	st *store.Store,
	engine *chatsync.Engine,
	sender *outbox.Sender,
	tracker *presence.Tracker,
	ros *roster.Coordinator,
	machine *conn.Machine,
	n *notify.Notifier,
	client *api.Client,
	logger *zap.Logger,
) *chat.Controller {
	return chat.NewController(st, engine, sender, tracker, ros, machine, n, client, logger)
}

func provideTUI(controller *chat.Controller, b *bus.Bus, self *api.User, p Params, logger *zap.Logger) *tui.App {
	return tui.NewApp(controller, b, *self, p.ProfileName, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	lk *lock.Lock,
	db *archive.DB,
	cfg *config.Config,
	client *api.Client,
	self *api.User,
	channel *conn.Channel,
	engine *chatsync.Engine,
	sender *outbox.Sender,
	tracker *presence.Tracker,
	ros *roster.Coordinator,
	recorder *archive.Recorder,
	n *notify.Notifier,
	b *bus.Bus,
	logger *zap.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.SetSelf(*self)
			sender.SetSelf(self.ID)
			tracker.SetSelf(self.ID)
			ros.SetSelf(*self)

			// Seed the UI from disk before the first fetch.
			if err := recorder.WarmStart(); err != nil {
				logger.Warn("warm start failed", zap.Error(err))
			}

			engine.Start(runCtx)
			sender.Start(runCtx)
			tracker.Start(runCtx)
			ros.Start(runCtx)
			recorder.Start(runCtx)

			go func() {
				if err := ros.Load(runCtx); err != nil {
					logger.Warn("friend list load failed", zap.Error(err))
					n.Error("could not load friends")
				}
			}()

			go maintainChannel(runCtx, channel, cfg, client, self.ID, b, n, logger)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			tracker.Stop()
			channel.Close()
			engine.Stop()
			sender.Stop()
			ros.Stop()
			recorder.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing archive", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

// maintainChannel keeps the push channel alive: it connects, then
// watches for disconnects and redials after a short delay. The channel
// itself never retries.
func maintainChannel(
	ctx context.Context,
	channel *conn.Channel,
	cfg *config.Config,
	client *api.Client,
	selfID string,
	b *bus.Bus,
	n *notify.Notifier,
	logger *zap.Logger,
) {
	events, unsub := b.Subscribe(bus.NSConn, 64)
	defer unsub()

	connect := func() {
		if err := channel.Connect(ctx, cfg.ServerURL, selfID, client.AuthHeader()); err != nil {
			logger.Warn("push channel connect failed", zap.Error(err))
		}
	}

	connect()
	for {
		select {
		case evt := <-events:
			change, ok := evt.Payload.(conn.StateChange)
			if !ok || change.To != conn.Disconnected {
				continue
			}
			n.Error("connection lost, retrying")
			select {
			case <-time.After(reconnectDelay):
				connect()
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

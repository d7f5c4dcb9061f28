// Package app is the orchestration context: it builds every component from
// the configuration, owns their lifetimes and runs the chat poller and the
// notification receiver side by side.
package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/superclaude/superclaude/internal/bot"
	"github.com/superclaude/superclaude/internal/catalog"
	"github.com/superclaude/superclaude/internal/claude"
	"github.com/superclaude/superclaude/internal/config"
	pexec "github.com/superclaude/superclaude/internal/exec"
	"github.com/superclaude/superclaude/internal/git"
	"github.com/superclaude/superclaude/internal/httpclient"
	"github.com/superclaude/superclaude/internal/logger"
	"github.com/superclaude/superclaude/internal/metrics"
	"github.com/superclaude/superclaude/internal/notification"
	"github.com/superclaude/superclaude/internal/notify"
	"github.com/superclaude/superclaude/internal/relay"
	"github.com/superclaude/superclaude/internal/session"
	"github.com/superclaude/superclaude/internal/store"
	"github.com/superclaude/superclaude/internal/telegram"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App owns every long-lived component.
type App struct {
	cfg *config.Config
	log *zap.Logger

	Metrics  *metrics.Metrics
	Catalog  *catalog.Catalog
	Invoker  *claude.Invoker
	Sessions *session.Store
	Router   *bot.Router
	Telegram *telegram.Client
	Poller   *telegram.Poller
	Receiver *notify.Server
	Snapshot *store.Snapshot // nil when StateFile is empty

	messenger bot.Messenger
	executor  pexec.CommandExecutor
	lockPath  string
	lock      *Lock
	dirty     chan struct{}
}

// Option customizes New.
type Option func(*App)

// WithExecutor replaces the executor used for git and the assistant CLI.
func WithExecutor(e pexec.CommandExecutor) Option {
	return func(a *App) { a.executor = e }
}

// WithMessenger replaces the Telegram client as the outbound messenger.
func WithMessenger(m bot.Messenger) Option {
	return func(a *App) { a.messenger = m }
}

// WithLockPath overrides where the instance lock lives. Empty disables locking.
func WithLockPath(path string) Option {
	return func(a *App) { a.lockPath = path }
}

// New wires the components described by cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      logger.ComponentLogger("app"),
		executor: pexec.NewRealExecutor(),
		dirty:    make(chan struct{}, 1),
	}
	if dir, err := config.Dir(); err == nil {
		a.lockPath = filepath.Join(dir, LockFile)
	}
	for _, opt := range opts {
		opt(a)
	}

	a.Metrics = metrics.New()
	a.Catalog = catalog.New(cfg.ProjectsDir, cfg.WorktreesDir, git.NewGitServiceWithExecutor(a.executor))

	a.Invoker = claude.NewInvoker(claude.Config{
		Binary:          cfg.ClaudeBinary,
		SkipPermissions: cfg.SkipPermissions,
		AllowedTools:    cfg.AllowedTools,
		Timeout:         cfg.InvocationTimeout,
	}, a.executor)
	a.Invoker.SetObserver(a.Metrics.ObserveInvocation)

	a.Sessions = session.NewStore(a.Catalog, a.Invoker)
	a.Metrics.TrackSessions(a.Sessions.Count)

	tgOpts := httpclient.DefaultOptions("telegram")
	// Long polls hold the request open for the poll timeout.
	tgOpts.Timeout = time.Duration(cfg.PollTimeout)*time.Second + 30*time.Second
	tgOpts.Secrets = []string{cfg.TelegramToken}
	a.Telegram = telegram.NewClient(httpclient.New(tgOpts), cfg.TelegramToken, cfg.TelegramAPIURL)
	if a.messenger == nil {
		a.messenger = a.Telegram
	}

	// The relay downloads Telegram file URLs, which embed the token.
	relayOpts := httpclient.DefaultOptions("relay")
	relayOpts.Secrets = []string{cfg.TelegramToken}
	relayClient := httpclient.New(relayOpts)
	callbacks := bot.NewCallbackTable(0)
	a.Router = bot.NewRouter(bot.Config{
		AllowedUsers:  cfg.AllowedUsers,
		MaxMessageLen: cfg.MaxMessageLen,
	}, bot.Deps{
		Store:       a.Sessions,
		Catalog:     a.Catalog,
		Invoker:     a.Invoker,
		Transcriber: relay.NewTranscriber(relayClient, cfg.TranscribeURL, cfg.TranscribeLanguage),
		Downloader:  relay.NewDownloader(relayClient, cfg.MediaDir),
		Messenger:   a.messenger,
		Metrics:     a.Metrics,
		Callbacks:   callbacks,
	})

	a.Poller = telegram.NewPoller(a.Telegram, a.Router, cfg.PollTimeout)

	a.Receiver = notify.NewServer(notify.Config{
		Addr:         cfg.NotifyAddr,
		AllowedUsers: cfg.AllowedUsers,
		Development:  cfg.LogDev,
		RateLimit: notify.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	}, notify.Deps{
		Sessions:  a.Sessions,
		Processes: a.Invoker,
		Messenger: a.messenger,
		Metrics:   a.Metrics,
		Desktop:   notification.New(cfg.DesktopNotifications),
		Callbacks: callbacks,
	})

	if cfg.StateFile != "" {
		snap, err := store.Open(cfg.StateFile)
		if err != nil {
			return nil, err
		}
		a.Snapshot = snap
	}
	return a, nil
}

// Restore loads the snapshot into the session store, if one is configured.
func (a *App) Restore(ctx context.Context) int {
	if a.Snapshot == nil {
		return 0
	}
	saved, err := a.Snapshot.Load(ctx)
	if err != nil {
		a.log.Warn("failed to load snapshot, starting empty", zap.Error(err))
		return 0
	}
	n := a.Sessions.Restore(saved)
	a.log.Info("restored sessions", zap.Int("count", n), zap.String("path", a.Snapshot.Path()))
	return n
}

// markDirty schedules a snapshot save. Bursts of changes coalesce.
func (a *App) markDirty() {
	select {
	case a.dirty <- struct{}{}:
	default:
	}
}

// saveLoop writes the snapshot whenever the store changes, until ctx is done.
func (a *App) saveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.dirty:
			a.save(ctx)
		}
	}
}

func (a *App) save(ctx context.Context) {
	if a.Snapshot == nil {
		return
	}
	if err := a.Snapshot.Save(ctx, a.Sessions.All()); err != nil {
		a.log.Error("failed to save snapshot", zap.Error(err))
	}
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.lockPath != "" {
		lock, err := AcquireLock(a.lockPath)
		if err != nil {
			return err
		}
		a.lock = lock
		defer func() {
			if err := a.lock.Release(); err != nil {
				a.log.Warn("failed to release lock", zap.Error(err))
			}
		}()
	}

	if a.cfg.MediaDir != "" {
		if err := os.MkdirAll(a.cfg.MediaDir, 0o755); err != nil {
			a.log.Warn("cannot create media directory", zap.String("path", a.cfg.MediaDir), zap.Error(err))
		}
	}

	a.Restore(ctx)
	if a.Snapshot != nil {
		a.Sessions.OnChange(a.markDirty)
	}

	a.log.Info("superclaude starting",
		zap.String("projectsDir", a.cfg.ProjectsDir),
		zap.Int("projects", len(a.Catalog.ListProjects())),
		zap.Int("allowedUsers", len(a.cfg.AllowedUsers)),
		zap.String("notifyAddr", a.cfg.NotifyAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Poller.Run(gctx) })
	g.Go(func() error { return a.Receiver.Run(gctx) })
	if a.Snapshot != nil {
		g.Go(func() error { return a.saveLoop(gctx) })
	}
	// Stop in-flight assistant runs as soon as shutdown starts so that the
	// poller's handlers can finish.
	g.Go(func() error {
		<-gctx.Done()
		a.Invoker.Shutdown()
		return nil
	})

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *App) shutdown() {
	a.log.Info("shutting down", zap.Int("sessions", a.Sessions.Count()))
	a.Invoker.Shutdown()
	if a.Snapshot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.save(ctx)
		if err := a.Snapshot.Close(); err != nil {
			a.log.Warn("failed to close snapshot", zap.Error(err))
		}
	}
}

// Close releases resources held by an App that was never Run.
func (a *App) Close() error {
	if a.Snapshot != nil {
		return a.Snapshot.Close()
	}
	return nil
}

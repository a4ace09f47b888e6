// Package app is the composition root: it turns a Config into a running
// session coordinator and, for the serve command, the web console.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/forenvision/case-console/internal/api"
	"github.com/forenvision/case-console/internal/api/handler"
	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
	"github.com/forenvision/case-console/internal/core/service"
	"github.com/forenvision/case-console/internal/core/session"
	"github.com/forenvision/case-console/internal/infrastructure/db/mongo"
	"github.com/forenvision/case-console/internal/infrastructure/db/redis"
	"github.com/forenvision/case-console/internal/infrastructure/queue"
	"github.com/forenvision/case-console/internal/infrastructure/storage"
	"github.com/forenvision/case-console/internal/infrastructure/ui"
	"github.com/forenvision/case-console/internal/metrics"
	"github.com/forenvision/case-console/internal/pkg/config"
)

const sessionFileName = "session.json"

// Options override the default console adapters. The CLI passes terminal
// adapters; the web console keeps the defaults.
type Options struct {
	Origin     string
	Notifier   ports.Notifier
	Navigator  ports.Navigator
	HTTPClient *http.Client
	// KV and Sync replace the configured backend. Both must be set.
	KV   ports.KeyValueStore
	Sync ports.SessionSync
}

// App holds one client instance ("tab").
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Origin    string
	Bus       *session.Bus
	Store     *session.Store
	Machine   *session.Machine
	Guard     *session.LogoutGuard
	Gateway   *service.Gateway
	Auth      *service.AuthService
	Notices   *ui.NoticeBoard
	Navigator *ui.ConsoleNavigator
	History   ports.AuditHistory

	checks     map[string]handler.Check
	dispatcher *queue.Dispatcher
	closers    []func(context.Context) error

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New wires every component from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{
		Config:    cfg,
		Log:       log,
		Origin:    opts.Origin,
		Notices:   ui.NewNoticeBoard(log),
		Navigator: ui.NewConsoleNavigator(log),
		checks:    map[string]handler.Check{},
	}
	if a.Origin == "" {
		a.Origin = uuid.NewString()
	}

	kv, syncer, rdb, err := a.backend(ctx, opts)
	if err != nil {
		return nil, err
	}

	a.Bus = session.NewBus(a.Origin, syncer, log.With().Str("component", "bus").Logger())
	a.Store = session.NewStore(kv, a.Bus, cfg.Session.Namespace, log.With().Str("component", "store").Logger())
	a.Guard = session.NewLogoutGuard(cfg.LogoutWindow)

	var navigator ports.Navigator = a.Navigator
	if opts.Navigator != nil {
		navigator = fanoutNavigator{a.Navigator, opts.Navigator}
	}
	var notifier ports.Notifier = a.Notices
	if opts.Notifier != nil {
		notifier = opts.Notifier
	}

	a.Machine = session.NewMachine(a.Store, a.Bus, navigator, log.With().Str("component", "machine").Logger())
	a.Machine.OnTransition(func(_ context.Context, t domain.SessionTransition) {
		metrics.SessionTransitionsTotal.WithLabelValues(string(t.From), string(t.To)).Inc()
	})

	gwCfg := service.GatewayConfig{BaseURL: cfg.APIBaseURL, Client: opts.HTTPClient}
	a.Gateway = service.NewGateway(gwCfg, a.Store, a.Bus, a.Guard, notifier, log.With().Str("component", "gateway").Logger())
	a.Auth = service.NewAuthService(gwCfg, a.Gateway, a.Store, a.Bus, a.Guard, log.With().Str("component", "auth").Logger())

	tokenKey, _ := a.Store.Keys()
	a.checks["session_store"] = func(ctx context.Context) error {
		_, _, err := kv.Get(ctx, tokenKey)
		return err
	}

	if cfg.Mongo.URI != "" {
		if err := a.audit(ctx, rdb); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}
	return a, nil
}

func (a *App) backend(ctx context.Context, opts Options) (ports.KeyValueStore, ports.SessionSync, *goredis.Client, error) {
	if opts.KV != nil && opts.Sync != nil {
		return opts.KV, opts.Sync, nil, nil
	}

	cfg := a.Config
	switch cfg.Session.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), storage.NewHub(), nil, nil

	case config.BackendRedis:
		client, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		syncer := redis.NewSessionSync(client, cfg.Session.Namespace, a.Log.With().Str("component", "sync").Logger())
		return redis.NewCredentialStore(client), syncer, client, nil

	default:
		path, err := sessionFilePath(cfg.Session.File)
		if err != nil {
			return nil, nil, nil, err
		}
		a.Log.Debug().Str("path", path).Msg("using session file")
		watcher := storage.NewFileWatcher(path, cfg.Session.PollInterval, a.Log.With().Str("component", "sync").Logger())
		return storage.NewFileStore(path, a.Origin), watcher, nil, nil
	}
}

// audit wires the transition trail: machine -> dispatcher -> audit service
// -> Mongo, with Redis dedup when instances share one.
func (a *App) audit(ctx context.Context, rdb *goredis.Client) error {
	cfg := a.Config
	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Disconnect)
	a.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }

	repo := mongo.NewAuditRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}

	var dedup service.DedupChecker
	if rdb != nil {
		dedup = redis.NewDedupChecker(rdb)
	}
	auditLog := a.Log.With().Str("component", "audit").Logger()
	a.dispatcher = queue.NewDispatcher(cfg.Audit.Workers, service.NewAuditService(repo, dedup, auditLog), auditLog)
	a.Machine.OnTransition(a.dispatcher.Observe)
	a.History = repo
	return nil
}

// Start subscribes to other instances, runs the audit workers and performs
// the first derivation. It returns once the status has left StateLoading.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("app: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	relay, err := a.Bus.Listen(runCtx)
	if err != nil {
		cancel()
		return err
	}
	a.cancel = cancel
	a.stopped = make(chan struct{})

	if a.dispatcher != nil {
		a.dispatcher.Start(runCtx)
	}
	unsubscribe := a.Machine.Start(runCtx)

	go func() {
		defer close(a.stopped)
		defer unsubscribe()
		relay()
	}()
	return nil
}

// Router builds the web console on top of this instance.
func (a *App) Router(registerer prometheus.Registerer) *echo.Echo {
	return api.NewRouter(api.Deps{
		Auth:       a.Auth,
		Gateway:    a.Gateway,
		Gate:       a.Machine,
		Tokens:     a.Store,
		Notices:    a.Notices,
		Location:   a.Navigator,
		History:    a.History,
		Checks:     a.checks,
		Registerer: registerer,
		Log:        a.Log,
	})
}

// Close stops the background work and releases the backends.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	cancel, stopped := a.cancel, a.stopped
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-stopped:
		case <-ctx.Done():
		}
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sessionFilePath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("app: locate session file: %w", err)
	}
	return filepath.Join(dir, "forenvision", sessionFileName), nil
}

// fanoutNavigator records the target for GET /session and also hands it to
// the terminal.
type fanoutNavigator []ports.Navigator

func (f fanoutNavigator) Navigate(ctx context.Context, target string) error {
	var errs []error
	for _, n := range f {
		if err := n.Navigate(ctx, target); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

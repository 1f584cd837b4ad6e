package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/memberhub/memberdash/internal/core/ports"
	"github.com/memberhub/memberdash/internal/core/service"
	"github.com/memberhub/memberdash/internal/infrastructure/cache"
	"github.com/memberhub/memberdash/internal/infrastructure/db/mongo"
	"github.com/memberhub/memberdash/internal/infrastructure/db/postgres"
	"github.com/memberhub/memberdash/internal/infrastructure/db/redis"
	"github.com/memberhub/memberdash/internal/infrastructure/gotrue"
	"github.com/memberhub/memberdash/internal/infrastructure/http/handlers"
	"github.com/memberhub/memberdash/internal/infrastructure/memstore"
	"github.com/memberhub/memberdash/internal/infrastructure/notify"
	"github.com/memberhub/memberdash/internal/infrastructure/queue"
	"github.com/memberhub/memberdash/internal/pkg/config"
	"github.com/memberhub/memberdash/pkg/logger"
)

// memberStore is a member repository that can report its own health.
type memberStore interface {
	ports.MemberRepository
	Ping(ctx context.Context) error
}

// app is the wired object graph shared by every command.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	provider   *gotrue.Client
	board      *notify.Board
	manager    *service.SessionManager
	dispatcher *queue.Dispatcher
	loader     *service.ProfileLoader
	checks     map[string]handlers.Check

	closers []func(context.Context) error
}

type appOptions struct {
	ensureIndexes bool
}

func loadConfig(ctx context.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "memberdash",
	})
	return cfg, log, nil
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, log: log, checks: make(map[string]handlers.Check)}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	store, err := a.localStore(ctx)
	if err != nil {
		return nil, err
	}
	members, err := a.memberStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	a.provider = gotrue.New(gotrue.Config{
		URL:           cfg.Auth.URL,
		APIKey:        cfg.Auth.APIKey,
		Timeout:       cfg.Auth.Timeout,
		RefreshMargin: cfg.Auth.RefreshMargin,
	}, store, logger.Component("gotrue"))

	queryCache := cache.NewQueryCache(cfg.Cache.Size, cfg.Cache.TTL)
	a.board = notify.NewBoard(0, logger.Component("notices"))

	cell := service.NewSessionCell()
	a.manager = service.NewSessionManager(cell, a.provider, queryCache, store, a.board, logger.Component("session"))
	a.dispatcher = queue.NewDispatcher(a.manager, logger.Component("auth-events"))
	a.loader = service.NewProfileLoader(a.manager, members, queryCache, a.manager, cfg.Profile.MaxAttempts, logger.Component("profile"))
	return a, nil
}

func (a *app) localStore(ctx context.Context) (ports.LocalStore, error) {
	if a.cfg.Redis.Addr == "" {
		a.log.Warn().Msg("REDIS_ADDR not set, session state is kept in memory")
		return memstore.New(), nil
	}
	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	a.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return redis.NewLocalStore(rdb, a.cfg.Redis.Prefix), nil
}

func (a *app) memberStore(ctx context.Context, opts appOptions) (memberStore, error) {
	switch a.cfg.Members.Store {
	case config.MemberStorePostgres:
		db, err := postgres.Open(ctx, postgres.Config{DSN: a.cfg.Postgres.DSN, MaxOpenConns: a.cfg.Postgres.MaxOpenConns})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		repo := postgres.NewMemberRepository(db)
		a.checks["postgres"] = repo.Ping
		return repo, nil

	default:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: a.cfg.Mongo.URI, Database: a.cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		repo := mongo.NewMemberRepository(db)
		if opts.ensureIndexes {
			if err := repo.EnsureIndexes(ctx); err != nil {
				return nil, err
			}
		}
		a.checks["mongodb"] = repo.Ping
		return repo, nil
	}
}

// start wires provider events into the ordered queue and runs the startup probe.
func (a *app) start(ctx context.Context) {
	a.dispatcher.Start(ctx)
	a.manager.Start(ctx, a.dispatcher)
}

// waitReady blocks until the startup probe has settled or timeout elapses.
func (a *app) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.manager.WaitReady(ctx); err != nil {
		return fmt.Errorf("waiting for session check: %w", err)
	}
	return nil
}

// close stops event delivery first, then releases connections.
func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn().Err(err).Msg("error releasing resources")
	}
}

// Package app is the composition root: it opens the stores named by the
// configuration and registers every configured module.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/config"
	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/eventlog"
	"github.com/roach88/recon/internal/notify"
	"github.com/roach88/recon/internal/product"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/readmodel/postgres"
	rmsqlite "github.com/roach88/recon/internal/readmodel/sqlite"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/registry"
	"github.com/roach88/recon/internal/snapshot"
)

// App owns the process-wide stores and the module registry.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Events    *eventlog.Store
	Registry  *registry.Registry
	Publisher notify.Publisher

	sqliteRM *rmsqlite.Store
	pg       *gorm.DB
	closers  []func() error
}

// Option configures New.
type Option func(*options)

type options struct {
	publisher notify.Publisher
	events    []eventlog.Option
	readModel []rmsqlite.Option
}

// WithPublisher overrides the configured notification publisher.
func WithPublisher(p notify.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithEventLogOptions passes options to the event log.
func WithEventLogOptions(opts ...eventlog.Option) Option {
	return func(o *options) { o.events = append(o.events, opts...) }
}

// WithReadModelOptions passes options to the SQLite read model.
func WithReadModelOptions(opts ...rmsqlite.Option) Option {
	return func(o *options) { o.readModel = append(o.readModel, opts...) }
}

// New opens every store in cfg and registers its modules. On error, anything
// already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger, Registry: registry.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Events, err = eventlog.Open(cfg.EventLog.Path, o.events...)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Events.Close)

	if err := a.openReadModel(ctx, o.readModel); err != nil {
		return nil, err
	}

	snaps, err := a.openSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	a.Publisher = o.publisher
	if a.Publisher == nil {
		a.Publisher, err = a.openPublisher()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Publisher.Close)
	}

	deps := reconcile.Deps{
		Events:        a.Events,
		Snapshots:     snaps,
		SnapshotEvery: cfg.Snapshots.Every,
		Publisher:     a.Publisher,
		Concurrency:   cfg.Reconcile.Concurrency,
		CallTimeout:   cfg.Reconcile.CallTimeout,
		Logger:        logger,
	}
	for _, m := range cfg.Modules {
		if err := a.install(m, deps); err != nil {
			return nil, err
		}
	}
	logger.Debug("app ready", "modules", len(cfg.Modules), "read_model", cfg.ReadModel.Driver)
	return a, nil
}

func (a *App) openReadModel(ctx context.Context, sqliteOpts []rmsqlite.Option) error {
	switch a.Config.ReadModel.Driver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, a.Config.ReadModel.URL, a.Config.ReadModel.MaxConns)
		if err != nil {
			return err
		}
		a.pg = db
		a.closers = append(a.closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		return postgres.RunMigrations(ctx, db)
	default:
		s, err := rmsqlite.Open(a.Config.ReadModel.Path, sqliteOpts...)
		if err != nil {
			return err
		}
		a.sqliteRM = s
		a.closers = append(a.closers, s.Close)
		return nil
	}
}

func (a *App) openSnapshots(ctx context.Context) (snapshot.Store, error) {
	cfg := a.Config.Snapshots
	switch cfg.Driver {
	case config.DriverMemory:
		return snapshot.NewMemoryStore(), nil
	case config.DriverSQLite:
		return snapshot.NewSQLiteStore(ctx, a.Events.DB())
	case config.DriverRedis:
		client, err := snapshot.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return snapshot.NewRedisStore(client, cfg.Prefix, cfg.TTL), nil
	default:
		return nil, nil
	}
}

func (a *App) openPublisher() (notify.Publisher, error) {
	switch a.Config.Notify.Driver {
	case config.DriverLog:
		return notify.NewLogPublisher(a.Logger), nil
	case config.DriverKafka:
		return notify.NewKafkaPublisher(a.Config.Notify.Brokers, a.Config.Notify.Topic)
	default:
		return notify.Noop{}, nil
	}
}

func (a *App) install(m config.ModuleConfig, deps reconcile.Deps) error {
	if m.Builtin == config.BuiltinProduct {
		mod := product.Module(a.Collection(collectionOr(m.Collection, product.Collection)))
		mod.Name = m.Name
		if m.AggregateType != "" {
			mod.AggregateType = m.AggregateType
		}
		mod.Fields = m.Fields
		return registry.Install(a.Registry, mod, deps)
	}

	def := m.Definition()
	mod, err := document.Module(def, a.Collection(collectionOr(def.Collection, def.Name)))
	if err != nil {
		return fmt.Errorf("module %q: %w", m.Name, err)
	}
	return registry.Install(a.Registry, mod, deps)
}

func collectionOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// Collection returns a writable read-model collection by name.
func (a *App) Collection(name string) readmodel.Collection {
	if a.pg != nil {
		return postgres.NewCollection(a.pg, name)
	}
	return a.sqliteRM.Collection(name)
}

// ModuleCollection returns the read-model collection of a registered module.
func (a *App) ModuleCollection(module string) (readmodel.Collection, error) {
	info, ok := a.Registry.Info(module)
	if !ok {
		return nil, apperrors.ModuleNotFound(module)
	}
	return a.Collection(info.Collection), nil
}

// Close releases every store in reverse opening order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

package builder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/cheese-matchbot/internal/command"
	"github.com/park285/cheese-matchbot/internal/config"
	"github.com/park285/cheese-matchbot/internal/janitor"
	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/msgcat"
	"github.com/park285/cheese-matchbot/internal/registry"
	"github.com/park285/cheese-matchbot/internal/rules"
	"github.com/park285/cheese-matchbot/internal/stats"
	"github.com/park285/cheese-matchbot/internal/store"
	"github.com/park285/cheese-matchbot/internal/store/memstore"
	"github.com/park285/cheese-matchbot/internal/store/redisstore"
	"github.com/park285/cheese-matchbot/internal/store/sqlstore"
)

// Deps is the wired match service.
type Deps struct {
	Store      store.Store
	Machine    *match.Machine
	Registry   *registry.Registry
	Stats      *stats.Aggregator
	Dispatcher *command.Dispatcher
	Janitor    *janitor.Janitor
}

// OpenStore connects the backend named by STORAGE_TYPE.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	switch cfg.StorageType {
	case config.StorageRedis:
		return redisstore.Open(ctx, cfg.RedisURL)
	case config.StoragePostgres:
		return sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.StorageSQLite:
		return sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
	case config.StorageMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_TYPE %q", cfg.StorageType)
	}
}

// New opens the store and wires every component on top of it. Live
// channels are restored from the store before New returns.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	deps, err := wire(ctx, cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info("match_service_ready",
		zap.String("storage", cfg.StorageType),
		zap.Duration("persist_timeout", cfg.PersistTimeout),
	)
	return deps, nil
}

func wire(ctx context.Context, cfg *config.AppConfig, st store.Store, logger *zap.Logger) (*Deps, error) {
	machine := match.NewMachine(rules.NewEngine())
	reg := registry.New(st, machine,
		registry.WithPersistTimeout(cfg.PersistTimeout),
		registry.WithLogger(logger),
	)
	if _, err := reg.Warm(ctx); err != nil {
		return nil, fmt.Errorf("restore live channels: %w", err)
	}

	agg := stats.NewAggregator(st, cfg.PersistTimeout, cfg.LeaderboardSize)
	cat, err := msgcat.New(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	disp, err := command.NewDispatcher(reg, agg, cat, cfg.BotPrefix)
	if err != nil {
		return nil, err
	}
	jan, err := janitor.New(st, cfg.InvitationRetention, cfg.JanitorInterval)
	if err != nil {
		return nil, err
	}
	return &Deps{
		Store:      st,
		Machine:    machine,
		Registry:   reg,
		Stats:      agg,
		Dispatcher: disp,
		Janitor:    jan,
	}, nil
}

// Close stops the janitor and releases the store.
func (d *Deps) Close() error {
	return errors.Join(d.Janitor.Stop(), d.Store.Close())
}

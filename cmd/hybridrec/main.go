// Command hybridrec 启动混合推荐服务。
//
//	CONFIG_PATH=config.yaml hybridrec
//	HYBRIDREC_STORE__DRIVER=memory HYBRIDREC_AUTH__STATIC_TOKENS=demo:u1 hybridrec
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/config"
	_ "github.com/rushteam/hybridrec/config/builders"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/logging"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/server"
	"github.com/rushteam/hybridrec/service"
	"github.com/rushteam/hybridrec/store"
	"github.com/rushteam/hybridrec/vector"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认读 CONFIG_PATH）")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logging.Error().Err(err).Msg("hybridrec exited")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging)
	logger := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]io.Closer, 0, 4)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn().Err(err).Msg("close failed")
			}
		}
	}()

	interactions, err := openInteractionStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	closers = append(closers, interactions)

	kv, err := openKeyValueStore(ctx, cfg)
	if err != nil {
		return err
	}
	if kv != nil {
		closers = append(closers, kv)
	}

	catalog := openCatalog(cfg.Catalog, logger)

	tree := newSupervisorTree(logging.WithComponent("supervisor"), cfg.Server.ShutdownTimeout)

	var collector feedback.Collector = feedback.NopCollector{}
	if cfg.Kafka.Enabled {
		kc, err := feedback.NewKafkaCollector(cfg.Kafka.Producer, logging.WithComponent("feedback"))
		if err != nil {
			return err
		}
		collector = kc
		tree.addData(kc)
	}

	filters, err := rankingFilters(cfg.Ranking, kv)
	if err != nil {
		return err
	}
	var ranking *pipeline.Pipeline
	if cfg.Ranking.PipelinePath != "" {
		env := config.Env{Catalog: catalog, Store: kv, Logger: logging.WithComponent("pipeline")}
		ranking, err = config.LoadRankingPipeline(cfg.Ranking.PipelinePath, env)
		if err != nil {
			return err
		}
		logger.Info().Strs("nodes", ranking.Names()).Msg("ranking pipeline loaded")
	}

	deps := service.Deps{
		Store:     interactions,
		Catalog:   catalog,
		Collector: collector,
		Logger:    logging.WithComponent("service"),
	}
	if kv != nil {
		deps.Snapshot = kv
		deps.Cache = kv
	}
	opts := cfg.RecommenderOptions()
	opts.Filters = filters
	opts.Pipeline = ranking
	rec := service.New(deps, opts)
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn().Err(err).Msg("close feedback collector failed")
		}
	}()
	tree.addData(service.NewSnapshotRefresher(rec, cfg.Scoring.SnapshotRefresh, logging.WithComponent("trending")))

	auth := server.NewTokenAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTable())
	tree.addAPI(server.New(cfg.Server, rec, auth, logging.WithComponent("http")))

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("store", cfg.Store.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("catalog", cfg.Catalog.Driver).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("hybridrec starting")

	err = tree.serve(ctx)
	if names := tree.unstopped(); len(names) > 0 {
		logger.Warn().Strs("services", names).Msg("services failed to stop within timeout")
	}
	// 收到信号后的退出不算错误
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("hybridrec stopped")
	return nil
}

func openInteractionStore(ctx context.Context, cfg config.StoreConfig) (core.InteractionStore, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryInteractionStore(), nil
	case "sqlite":
		s, err := store.OpenSQLiteInteractionStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openKeyValueStore 缓存和热门快照共用一个后端；driver 为 none 时返回 nil。
func openKeyValueStore(ctx context.Context, cfg *config.Config) (core.KeyValueStore, error) {
	switch cfg.Cache.Driver {
	case "none":
		return nil, nil
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		s, err := store.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

func openCatalog(cfg config.CatalogConfig, logger zerolog.Logger) core.CatalogService {
	if cfg.Driver != "qdrant" {
		logger.Warn().Msg("catalog disabled, personal recall and by-seed recommendations are off")
		return nil
	}
	opts := []vector.QdrantOption{vector.WithQdrantTimeout(cfg.Timeout)}
	if cfg.APIKey != "" {
		opts = append(opts, vector.WithQdrantAPIKey(cfg.APIKey))
	}
	if cfg.VectorName != "" {
		opts = append(opts, vector.WithQdrantVectorName(cfg.VectorName))
	}
	qdrant := vector.NewQdrantCatalog(cfg.URL, cfg.Collection, opts...)
	return vector.NewBreakerCatalog(qdrant, cfg.Breaker, logging.WithComponent("catalog"))
}

func rankingFilters(cfg config.RankingConfig, kv core.Store) ([]filter.Filter, error) {
	var filters []filter.Filter
	if cfg.Rule != "" {
		rule, err := filter.NewRuleFilter(cfg.Rule)
		if err != nil {
			return nil, fmt.Errorf("ranking rule: %w", err)
		}
		filters = append(filters, rule)
	}
	if len(cfg.BlacklistIDs) > 0 || cfg.BlacklistKey != "" {
		if cfg.BlacklistKey != "" && kv == nil {
			return nil, errors.New("ranking.blacklist_key requires a cache driver")
		}
		filters = append(filters, filter.NewBlacklistFilter(cfg.BlacklistIDs, kv, cfg.BlacklistKey))
	}
	return filters, nil
}

package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/seenimoa/yausma/internal/config"
	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/internal/infra"
	"github.com/seenimoa/yausma/internal/metrics"
	"github.com/seenimoa/yausma/internal/providers"
	"github.com/seenimoa/yausma/pkg/models"
)

// app holds the wired services shared by the commands.
type app struct {
	market   *datasource.Market
	provider providers.Provider
	metrics  *metrics.CacheMetrics
	mirror   *infra.RedisMirror
	log      zerolog.Logger
}

// newApp builds the provider, caches and market from cfg. A Redis mirror
// that cannot be reached is logged and skipped.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	policy, err := datasource.ParseFailurePolicy(cfg.Market.FailurePolicy)
	if err != nil {
		return nil, err
	}

	a := &app{
		metrics: metrics.New(),
		log:     log,
	}

	a.provider, err = providers.Default.New(cfg.Provider.Name, cfg, log)
	if err != nil {
		return nil, err
	}

	cacheOpts := []infra.CacheOption{
		infra.WithObserver(a.metrics),
		infra.WithLogger(log),
	}
	if cfg.Redis.Addr != "" {
		m, err := infra.NewRedisMirror(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("redis mirror disabled")
		} else {
			a.mirror = m
			cacheOpts = append(cacheOpts, infra.WithMirror(m))
			log.Info().Str("addr", cfg.Redis.Addr).Msg("redis mirror enabled")
		}
	}

	news := datasource.NewNewsService(a.provider,
		infra.NewTTLCache[[]models.NewsItem]("news", cacheOpts...),
		datasource.NewsOptions{
			GlobalTTL: cfg.Cache.NewsWindow(),
			SymbolTTL: cfg.Cache.SymbolNewsWindow(),
			Limit:     cfg.News.Limit,
			Logger:    log,
		})

	agg := datasource.NewAggregator(a.provider, a.provider, news, datasource.AggregatorOptions{
		Range:         models.QuoteRange(cfg.Market.QuoteRange),
		Interval:      cfg.Market.QuoteInterval,
		HistoryPoints: cfg.Market.HistoryPoints,
		Concurrency:   cfg.Market.ConcurrentFetches,
		Policy:        policy,
		Logger:        log,
	})

	a.market = datasource.NewMarket(agg, news,
		infra.NewTTLCache[*datasource.Overview]("overview", cacheOpts...),
		datasource.MarketOptions{
			Symbols:     cfg.Market.Symbols,
			OverviewTTL: cfg.Cache.OverviewWindow(),
			PartialTTL:  cfg.Cache.PartialWindow(),
			Logger:      log,
		})

	return a, nil
}

// warm populates the overview and global news entries.
func (a *app) warm(ctx context.Context) {
	if _, err := a.market.GetMarketOverview(ctx); err != nil {
		a.log.Warn().Err(err).Msg("overview warm-up failed")
	}
	if _, err := a.market.GetNews(ctx, ""); err != nil {
		a.log.Warn().Err(err).Msg("news warm-up failed")
	}
}

// Close releases the Redis connection, if any.
func (a *app) Close() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Debug().Err(err).Msg("closing redis mirror")
		}
	}
}

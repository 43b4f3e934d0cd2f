package datasource

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/yausma/internal/infra"
	"github.com/seenimoa/yausma/pkg/models"
	"github.com/seenimoa/yausma/pkg/utils"
)

// OverviewKey is the cache key of the overview for the configured symbols.
const OverviewKey = "overview"

// OverviewKeyFor returns the cache key for an overview of a caller-supplied
// symbol set. Order is significant since it fixes the record order.
func OverviewKeyFor(symbols []string) string {
	return OverviewKey + ":" + strings.Join(symbols, ",")
}

// MarketOptions configures a Market.
type MarketOptions struct {
	Symbols     []string      // default overview symbol set
	OverviewTTL time.Duration // overview window
	PartialTTL  time.Duration // window for an overview with failures; 0 refetches every call
	Logger      zerolog.Logger
}

// Market is the query surface: cached market overviews and news.
type Market struct {
	agg      *Aggregator
	news     *NewsService
	overview *infra.TTLCache[*Overview]
	opts     MarketOptions
	log      zerolog.Logger
}

// NewMarket creates the query surface.
func NewMarket(agg *Aggregator, news *NewsService, overview *infra.TTLCache[*Overview], opts MarketOptions) *Market {
	symbols := make([]string, 0, len(opts.Symbols))
	for _, s := range opts.Symbols {
		if s = utils.NormalizeTicker(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	opts.Symbols = symbols
	return &Market{
		agg:      agg,
		news:     news,
		overview: overview,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "market").Logger(),
	}
}

// Symbols returns the configured overview symbols.
func (m *Market) Symbols() []string {
	return append([]string(nil), m.opts.Symbols...)
}

// GetMarketOverview returns one record per configured symbol, served from
// cache while younger than the overview window. The result is a copy.
func (m *Market) GetMarketOverview(ctx context.Context) ([]models.AggregateRecord, error) {
	ov, err := m.Overview(ctx)
	if err != nil {
		return nil, err
	}
	return ov.Records, nil
}

// GetMarketOverviewFor returns records for a caller-supplied symbol set.
// Each distinct set has its own cache entry.
func (m *Market) GetMarketOverviewFor(ctx context.Context, symbols []string) ([]models.AggregateRecord, error) {
	ov, err := m.OverviewFor(ctx, symbols)
	if err != nil {
		return nil, err
	}
	return ov.Records, nil
}

// Overview returns the overview for the configured symbols, including
// symbols dropped under SkipFailed and the time it was assembled.
func (m *Market) Overview(ctx context.Context) (*Overview, error) {
	return m.getOverview(ctx, OverviewKey, m.opts.Symbols)
}

// OverviewFor is Overview for a caller-supplied symbol set. An empty set
// yields an empty overview without fetching.
func (m *Market) OverviewFor(ctx context.Context, symbols []string) (*Overview, error) {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = utils.NormalizeTicker(s); s != "" {
			normalized = append(normalized, s)
		}
	}
	if len(normalized) == 0 {
		return &Overview{Records: []models.AggregateRecord{}}, nil
	}
	return m.getOverview(ctx, OverviewKeyFor(normalized), normalized)
}

// getOverview returns a copy of the cached overview for key. An entry that
// recorded failures is only fresh for PartialTTL.
func (m *Market) getOverview(ctx context.Context, key string, symbols []string) (*Overview, error) {
	window := m.opts.OverviewTTL
	if e, ok := m.overview.Peek(key); ok && e.Value != nil && len(e.Value.Failures) > 0 {
		window = min(window, m.opts.PartialTTL)
	}
	ov, err := m.overview.Get(ctx, key, window, func(ctx context.Context) (*Overview, error) {
		return m.agg.Aggregate(ctx, symbols)
	})
	if err != nil {
		return nil, err
	}
	if len(ov.Failures) > 0 {
		m.log.Warn().Str("key", key).Int("failures", len(ov.Failures)).Msg("serving partial overview")
	}
	return ov.Clone(), nil
}

// GetNews returns news for symbol, or the global feed when symbol is empty.
func (m *Market) GetNews(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	return m.news.Get(ctx, symbol)
}

// Invalidate drops every cached overview and news entry.
func (m *Market) Invalidate() {
	m.overview.Flush()
	m.news.Invalidate()
	m.log.Info().Msg("caches invalidated")
}

// OnOverviewRefresh registers fn to receive a copy of the configured-symbol
// overview each time it is refreshed.
func (m *Market) OnOverviewRefresh(fn func(ov *Overview)) {
	m.overview.OnRefresh(func(key string, e infra.Entry[*Overview]) {
		if key != OverviewKey || e.Value == nil {
			return
		}
		fn(e.Value.Clone())
	})
}

package datasource

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/yausma/internal/infra"
	"github.com/seenimoa/yausma/pkg/models"
	"github.com/seenimoa/yausma/pkg/utils"
)

// GlobalNewsKey is the cache key of the unfiltered news feed.
const GlobalNewsKey = "news:all"

// NewsKey returns the cache key for a news lookup. An empty symbol maps to
// the global feed.
func NewsKey(symbol string) string {
	symbol = utils.NormalizeTicker(symbol)
	if symbol == "" {
		return GlobalNewsKey
	}
	return "news:" + symbol
}

// NewsOptions configures a NewsService.
type NewsOptions struct {
	GlobalTTL time.Duration // window for the unfiltered feed
	SymbolTTL time.Duration // window for each per-symbol feed
	Limit     int           // max items per result; 0 keeps all
	Logger    zerolog.Logger
}

// NewsService serves news through a keyed TTL cache. The global feed and
// every symbol have their own entry and window.
type NewsService struct {
	fetcher NewsFetcher
	cache   *infra.TTLCache[[]models.NewsItem]
	opts    NewsOptions
	log     zerolog.Logger
}

// NewNewsService creates a news lookup over fetcher using cache for storage.
func NewNewsService(fetcher NewsFetcher, cache *infra.TTLCache[[]models.NewsItem], opts NewsOptions) *NewsService {
	return &NewsService{
		fetcher: fetcher,
		cache:   cache,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "news").Logger(),
	}
}

// Get returns news most-recent-first. An empty symbol returns the global feed.
func (s *NewsService) Get(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	symbol = utils.NormalizeTicker(symbol)
	window := s.opts.SymbolTTL
	if symbol == "" {
		window = s.opts.GlobalTTL
	}

	items, err := s.cache.Get(ctx, NewsKey(symbol), window, func(ctx context.Context) ([]models.NewsItem, error) {
		items, err := s.fetcher.FetchNews(ctx, symbol)
		if err != nil {
			return nil, err
		}
		items = sortNewsByDate(items)
		if s.opts.Limit > 0 && len(items) > s.opts.Limit {
			items = items[:s.opts.Limit]
		}
		s.log.Debug().Str("symbol", symbol).Int("items", len(items)).Msg("news refreshed")
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

// Latest returns the most recent news item for symbol, or nil when there is none.
func (s *NewsService) Latest(ctx context.Context, symbol string) (*models.NewsItem, error) {
	items, err := s.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	item := items[0]
	return &item, nil
}

// Invalidate drops every cached news entry.
func (s *NewsService) Invalidate() {
	s.cache.Flush()
}

// sortNewsByDate returns a copy ordered most recent first. Items with the
// same timestamp keep the order the source returned them in.
func sortNewsByDate(items []models.NewsItem) []models.NewsItem {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b models.NewsItem) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	return out
}

// Package datasource composes market data from external fetchers.
// It defines the fetcher boundary (quotes, instrument metadata, news), the
// cached news lookup, the per-symbol aggregator and the Market query surface
// that serves overviews and news through time-windowed caches.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/seenimoa/yausma/pkg/models"
)

// QuoteFetcher retrieves OHLCV data for one symbol.
type QuoteFetcher interface {
	// FetchQuotes returns the latest bar and a chronological close history
	// for the given range and bar interval (e.g. "1d").
	FetchQuotes(ctx context.Context, symbol string, rng models.QuoteRange, interval string) (*models.QuoteSeries, error)
}

// MetadataFetcher retrieves descriptive data for one symbol.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, symbol string) (*models.InstrumentMetadata, error)
}

// NewsFetcher retrieves news items. An empty symbol requests the global feed.
type NewsFetcher interface {
	FetchNews(ctx context.Context, symbol string) ([]models.NewsItem, error)
}

// Fetcher is the full external data boundary.
type Fetcher interface {
	QuoteFetcher
	MetadataFetcher
	NewsFetcher
}

// --- Sentinel errors ---

// ErrNoData is returned when a source answers successfully but has nothing
// for the requested symbol.
var ErrNoData = errors.New("no data returned by source")

// AggregationError reports the symbol and step that failed while composing
// an overview.
type AggregationError struct {
	Symbol string
	Step   string // "quotes", "metadata" or "news"
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s (%s): %v", e.Symbol, e.Step, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

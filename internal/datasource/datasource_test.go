package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/yausma/internal/infra"
	"github.com/seenimoa/yausma/pkg/models"
)

var quotedAt = time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)

// fakeFetcher serves canned data and counts calls per operation.
type fakeFetcher struct {
	mu       sync.Mutex
	quotes   map[string]models.Quote
	meta     map[string]models.InstrumentMetadata
	news     map[string][]models.NewsItem
	delays   map[string]time.Duration
	failures map[string]error // keyed by "op:SYMBOL"

	quoteCalls atomic.Int32
	metaCalls  atomic.Int32
	newsCalls  atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		quotes:   map[string]models.Quote{},
		meta:     map[string]models.InstrumentMetadata{},
		news:     map[string][]models.NewsItem{},
		delays:   map[string]time.Duration{},
		failures: map[string]error{},
	}
}

func (f *fakeFetcher) fail(op, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[op+":"+symbol]
}

func (f *fakeFetcher) sleep(ctx context.Context, symbol string) error {
	f.mu.Lock()
	d := f.delays[symbol]
	f.mu.Unlock()
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFetcher) FetchQuotes(ctx context.Context, symbol string, _ models.QuoteRange, _ string) (*models.QuoteSeries, error) {
	f.quoteCalls.Add(1)
	if err := f.sleep(ctx, symbol); err != nil {
		return nil, err
	}
	if err := f.fail("quotes", symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	q, ok := f.quotes[symbol]
	f.mu.Unlock()
	if !ok {
		q = models.Quote{Timestamp: quotedAt, Open: 1, High: 1, Low: 1, Close: 1}
	}
	history := []models.PricePoint{
		{Close: q.Open, Timestamp: q.Timestamp.Add(-48 * time.Hour)},
		{Close: q.Open, Timestamp: q.Timestamp.Add(-24 * time.Hour)},
		{Close: q.Close, Timestamp: q.Timestamp},
	}
	return &models.QuoteSeries{Symbol: symbol, Latest: q, History: history}, nil
}

func (f *fakeFetcher) FetchMetadata(_ context.Context, symbol string) (*models.InstrumentMetadata, error) {
	f.metaCalls.Add(1)
	if err := f.fail("metadata", symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.meta[symbol]; ok {
		return &m, nil
	}
	return &models.InstrumentMetadata{Symbol: symbol, ShortName: symbol}, nil
}

func (f *fakeFetcher) FetchNews(_ context.Context, symbol string) ([]models.NewsItem, error) {
	f.newsCalls.Add(1)
	if err := f.fail("news", symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.news[symbol], nil
}

// testClock is a settable clock for cache windows.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testRig struct {
	fetcher *fakeFetcher
	news    *NewsService
	agg     *Aggregator
	market  *Market
	clock   *testClock
}

func newTestRig(t *testing.T, policy FailurePolicy) *testRig {
	t.Helper()
	f := newFakeFetcher()
	clock := &testClock{now: quotedAt}
	news := NewNewsService(f, infra.NewTTLCache[[]models.NewsItem]("news", infra.WithClock(clock)), NewsOptions{
		GlobalTTL: 10 * time.Minute,
		SymbolTTL: 10 * time.Minute,
		Limit:     20,
		Logger:    zerolog.Nop(),
	})
	agg := NewAggregator(f, f, news, AggregatorOptions{
		HistoryPoints: 2,
		Concurrency:   4,
		Policy:        policy,
	})
	market := NewMarket(agg, news, infra.NewTTLCache[*Overview]("overview", infra.WithClock(clock)), MarketOptions{
		Symbols:     []string{"XMR-USD", "MDB", "GTLB", "CFLT"},
		OverviewTTL: 10 * time.Minute,
		PartialTTL:  time.Minute,
	})
	return &testRig{fetcher: f, news: news, agg: agg, market: market, clock: clock}
}

func TestAggregateJoin(t *testing.T) {
	rig := newTestRig(t, FailFast)
	rig.fetcher.quotes["MDB"] = models.Quote{Timestamp: quotedAt, Open: 100, High: 112, Low: 99, Close: 110, Volume: 1_250_000}
	rig.fetcher.meta["MDB"] = models.InstrumentMetadata{
		Symbol: "MDB", LongName: "MongoDB, Inc.", ShortName: "MongoDB", ExchangeName: "NasdaqGM", Sector: "Technology",
	}

	ov, err := rig.agg.Aggregate(context.Background(), []string{"MDB"})
	require.NoError(t, err)
	require.Len(t, ov.Records, 1)

	rec := ov.Records[0]
	assert.Equal(t, "MDB", rec.Symbol)
	assert.Equal(t, "MongoDB, Inc.", rec.Name)
	assert.Equal(t, "MongoDB", rec.ShortName)
	assert.Equal(t, "Technology", rec.Sector)
	assert.Equal(t, 110.0, rec.Price)
	assert.Equal(t, 10.0, rec.ChangePct)
	assert.Equal(t, 112.0, rec.High)
	assert.Equal(t, 99.0, rec.Low)
	assert.Equal(t, int64(1_250_000), rec.Volume)
	assert.Nil(t, rec.NewsItem)

	// Trimmed to the last two points, still chronological.
	require.Len(t, rec.History, 2)
	assert.True(t, rec.History[0].Timestamp.Before(rec.History[1].Timestamp))
	assert.Equal(t, 110.0, rec.History[1].Close)
}

func TestAggregateAttachesLatestNews(t *testing.T) {
	rig := newTestRig(t, FailFast)
	rig.fetcher.news["GTLB"] = []models.NewsItem{
		{ID: "old", Title: "Older", PublishedAt: quotedAt.Add(-2 * time.Hour)},
		{ID: "new", Title: "Newer", PublishedAt: quotedAt.Add(-time.Hour)},
	}

	ov, err := rig.agg.Aggregate(context.Background(), []string{"gtlb"})
	require.NoError(t, err)
	require.NotNil(t, ov.Records[0].NewsItem)
	assert.Equal(t, "new", ov.Records[0].NewsItem.ID)

	// The aggregator shares the per-symbol news entry.
	_, ok := rig.news.cache.Peek("news:GTLB")
	assert.True(t, ok)
	_, err = rig.market.GetNews(context.Background(), "GTLB")
	require.NoError(t, err)
	assert.Equal(t, int32(1), rig.fetcher.newsCalls.Load())
}

func TestAggregatePreservesOrder(t *testing.T) {
	rig := newTestRig(t, FailFast)
	// Completion order is the reverse of input order.
	rig.fetcher.delays["XMR-USD"] = 80 * time.Millisecond
	rig.fetcher.delays["MDB"] = 60 * time.Millisecond
	rig.fetcher.delays["GTLB"] = 40 * time.Millisecond
	rig.fetcher.delays["CFLT"] = 20 * time.Millisecond

	ov, err := rig.agg.Aggregate(context.Background(), []string{"XMR-USD", "MDB", "GTLB", "CFLT"})
	require.NoError(t, err)

	var got []string
	for _, r := range ov.Records {
		got = append(got, r.Symbol)
	}
	assert.Equal(t, []string{"XMR-USD", "MDB", "GTLB", "CFLT"}, got)
}

func TestAggregateEmptySymbols(t *testing.T) {
	rig := newTestRig(t, FailFast)

	ov, err := rig.agg.Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, ov.Records)
	assert.Empty(t, ov.Records)
	assert.Equal(t, int32(0), rig.fetcher.quoteCalls.Load())
}

func TestAggregateFailurePolicies(t *testing.T) {
	upstream := &infra.FetchError{Source: "fake", Op: "metadata", Symbol: "GTLB", Err: errors.New("503")}

	t.Run("fail fast", func(t *testing.T) {
		rig := newTestRig(t, FailFast)
		rig.fetcher.failures["metadata:GTLB"] = upstream

		ov, err := rig.agg.Aggregate(context.Background(), []string{"XMR-USD", "MDB", "GTLB", "CFLT"})
		assert.Nil(t, ov)

		var aggErr *AggregationError
		require.ErrorAs(t, err, &aggErr)
		assert.Equal(t, "GTLB", aggErr.Symbol)
		assert.Equal(t, "metadata", aggErr.Step)

		var fetchErr *infra.FetchError
		assert.ErrorAs(t, err, &fetchErr)
	})

	t.Run("skip failed", func(t *testing.T) {
		rig := newTestRig(t, SkipFailed)
		rig.fetcher.failures["metadata:GTLB"] = upstream

		ov, err := rig.agg.Aggregate(context.Background(), []string{"XMR-USD", "MDB", "GTLB", "CFLT"})
		require.NoError(t, err)
		require.Len(t, ov.Records, 3)
		assert.Equal(t, "CFLT", ov.Records[2].Symbol)
		require.Len(t, ov.Failures, 1)
		assert.Equal(t, SymbolFailure{Symbol: "GTLB", Step: "metadata", Error: upstream.Error()}, ov.Failures[0])
	})

	t.Run("skip failed with nothing left", func(t *testing.T) {
		rig := newTestRig(t, SkipFailed)
		for _, sym := range []string{"MDB", "GTLB"} {
			rig.fetcher.failures["quotes:"+sym] = errors.New("HTTP 502")
		}

		ov, err := rig.agg.Aggregate(context.Background(), []string{"MDB", "GTLB"})
		assert.Nil(t, ov)
		var aggErr *AggregationError
		require.ErrorAs(t, err, &aggErr)
		assert.Equal(t, "quotes", aggErr.Step)
		assert.ErrorContains(t, err, "aggregate MDB")
		assert.ErrorContains(t, err, "aggregate GTLB")
	})

	t.Run("news failure aborts", func(t *testing.T) {
		rig := newTestRig(t, FailFast)
		rig.fetcher.failures["news:MDB"] = errors.New("feed down")

		_, err := rig.agg.Aggregate(context.Background(), []string{"MDB"})
		var aggErr *AggregationError
		require.ErrorAs(t, err, &aggErr)
		assert.Equal(t, "news", aggErr.Step)
	})
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"", FailFast, false},
		{"fail_fast", FailFast, false},
		{"SKIP_FAILED", SkipFailed, false},
		{"retry", FailFast, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParseFailurePolicy(got.String())))
		})
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

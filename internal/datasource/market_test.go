package datasource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/yausma/pkg/models"
)

func TestMarketOverviewCached(t *testing.T) {
	rig := newTestRig(t, FailFast)
	ctx := context.Background()

	first, err := rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	require.Len(t, first, 4)

	second, err := rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(4), rig.fetcher.quoteCalls.Load())
}

func TestMarketOverviewConcurrentMiss(t *testing.T) {
	rig := newTestRig(t, FailFast)
	rig.fetcher.delays["XMR-USD"] = 100 * time.Millisecond
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	results := make([][]models.AggregateRecord, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recs, err := rig.market.GetMarketOverview(ctx)
			assert.NoError(t, err)
			results[i] = recs
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(4), rig.fetcher.quoteCalls.Load())
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestMarketOverviewFailureIsolated(t *testing.T) {
	rig := newTestRig(t, FailFast)
	ctx := context.Background()

	good, err := rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)

	rig.fetcher.failures["quotes:MDB"] = errors.New("timeout")
	_, err = rig.market.GetMarketOverviewFor(ctx, []string{"MDB"})
	require.Error(t, err)

	// The configured overview is unaffected by the failing ad-hoc set.
	again, err := rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, good, again)
}

func TestMarketOverviewFor(t *testing.T) {
	rig := newTestRig(t, FailFast)
	ctx := context.Background()

	recs, err := rig.market.GetMarketOverviewFor(ctx, []string{" cflt", "mdb", ""})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "CFLT", recs[0].Symbol)
	assert.Equal(t, "MDB", recs[1].Symbol)

	_, ok := rig.market.overview.Peek(OverviewKeyFor([]string{"CFLT", "MDB"}))
	assert.True(t, ok)

	empty, err := rig.market.GetMarketOverviewFor(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMarketNewsKeys(t *testing.T) {
	rig := newTestRig(t, FailFast)
	rig.fetcher.news[""] = []models.NewsItem{{ID: "g1"}}
	rig.fetcher.news["MDB"] = []models.NewsItem{{ID: "m1"}}
	ctx := context.Background()

	global, err := rig.market.GetNews(ctx, "")
	require.NoError(t, err)
	mdb, err := rig.market.GetNews(ctx, "mdb")
	require.NoError(t, err)

	assert.Equal(t, "g1", global[0].ID)
	assert.Equal(t, "m1", mdb[0].ID)

	_, ok := rig.news.cache.Peek(GlobalNewsKey)
	assert.True(t, ok)
	_, ok = rig.news.cache.Peek("news:MDB")
	assert.True(t, ok)
	assert.Equal(t, "news:all", NewsKey("  "))
}

func TestNewsServiceSortsAndLimits(t *testing.T) {
	rig := newTestRig(t, FailFast)
	rig.news.opts.Limit = 2
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rig.fetcher.news[""] = []models.NewsItem{
		{ID: "a", PublishedAt: base},
		{ID: "b", PublishedAt: base.Add(time.Hour)},
		{ID: "c", PublishedAt: base.Add(2 * time.Hour)},
	}

	items, err := rig.news.Get(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].ID)
	assert.Equal(t, "b", items[1].ID)

	// Source slice untouched.
	assert.Equal(t, "a", rig.fetcher.news[""][0].ID)
}

func TestMarketInvalidateAndRefreshHook(t *testing.T) {
	rig := newTestRig(t, FailFast)
	ctx := context.Background()

	var pushes [][]models.AggregateRecord
	rig.market.OnOverviewRefresh(func(ov *Overview) {
		pushes = append(pushes, ov.Records)
	})

	_, err := rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	_, err = rig.market.GetMarketOverviewFor(ctx, []string{"MDB"})
	require.NoError(t, err)
	require.Len(t, pushes, 1)
	assert.Len(t, pushes[0], 4)

	rig.market.Invalidate()
	assert.Equal(t, 0, rig.market.overview.Len())
	assert.Equal(t, 0, rig.news.cache.Len())

	_, err = rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	assert.Len(t, pushes, 2)
}

func TestMarketSkipFailedAllFailNotCached(t *testing.T) {
	rig := newTestRig(t, SkipFailed)
	ctx := context.Background()
	symbols := rig.market.Symbols()
	for _, sym := range symbols {
		rig.fetcher.failures["quotes:"+sym] = errors.New("HTTP 502")
	}

	recs, err := rig.market.GetMarketOverview(ctx)
	assert.Nil(t, recs)
	var aggErr *AggregationError
	require.ErrorAs(t, err, &aggErr)
	_, ok := rig.market.overview.Peek(OverviewKey)
	assert.False(t, ok)

	// Upstream recovers: the next call fetches again.
	for _, sym := range symbols {
		delete(rig.fetcher.failures, "quotes:"+sym)
	}
	recs, err = rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	assert.Equal(t, int32(8), rig.fetcher.quoteCalls.Load())
}

func TestMarketPartialOverviewShorterWindow(t *testing.T) {
	rig := newTestRig(t, SkipFailed)
	ctx := context.Background()
	rig.fetcher.failures["quotes:GTLB"] = errors.New("HTTP 502")

	ov, err := rig.market.Overview(ctx)
	require.NoError(t, err)
	require.Len(t, ov.Records, 3)
	assert.Equal(t, []string{"GTLB"}, ov.FailedSymbols())

	// Within the partial window the cached overview is served.
	rig.clock.Advance(30 * time.Second)
	_, err = rig.market.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(4), rig.fetcher.quoteCalls.Load())

	// Past it, the overview is rebuilt although the full window has not passed.
	delete(rig.fetcher.failures, "quotes:GTLB")
	rig.clock.Advance(31 * time.Second)
	ov, err = rig.market.Overview(ctx)
	require.NoError(t, err)
	assert.Len(t, ov.Records, 4)
	assert.Empty(t, ov.Failures)
	assert.Equal(t, int32(8), rig.fetcher.quoteCalls.Load())

	// A complete overview keeps the full window.
	rig.clock.Advance(5 * time.Minute)
	_, err = rig.market.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(8), rig.fetcher.quoteCalls.Load())
}

func TestMarketResultsAreCopies(t *testing.T) {
	rig := newTestRig(t, FailFast)
	rig.fetcher.news[""] = []models.NewsItem{{ID: "g1", Title: "Original"}}
	rig.fetcher.news["MDB"] = []models.NewsItem{{ID: "m1", Title: "MongoDB news"}}
	ctx := context.Background()

	items, err := rig.market.GetNews(ctx, "")
	require.NoError(t, err)
	items[0].Title = "changed"

	again, err := rig.market.GetNews(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Original", again[0].Title)

	recs, err := rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	recs[1].ChangePct = 999
	recs[1].History[0].Close = -1
	recs[1].NewsItem.Title = "changed"

	fresh, err := rig.market.GetMarketOverview(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, 999.0, fresh[1].ChangePct)
	assert.NotEqual(t, -1.0, fresh[1].History[0].Close)
	assert.Equal(t, "MongoDB news", fresh[1].NewsItem.Title)

	sub, err := rig.market.GetMarketOverviewFor(ctx, []string{"MDB"})
	require.NoError(t, err)
	sub[0].Symbol = "XXX"
	sub, err = rig.market.GetMarketOverviewFor(ctx, []string{"MDB"})
	require.NoError(t, err)
	assert.Equal(t, "MDB", sub[0].Symbol)
	assert.Equal(t, int32(5), rig.fetcher.quoteCalls.Load())
}

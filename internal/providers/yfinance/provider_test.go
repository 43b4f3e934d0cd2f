package yfinance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/internal/infra"
	"github.com/seenimoa/yausma/pkg/models"
)

const chartJSON = `{"chart":{"result":[{
  "meta":{"symbol":"MDB","currency":"USD","regularMarketPrice":110,"instrumentType":"EQUITY","exchangeName":"NMS","longName":"MongoDB, Inc."},
  "timestamp":[1709215200,1709301600,1709388000],
  "indicators":{"quote":[{
    "open":[95.5,null,100],
    "high":[97,99,112],
    "low":[94,96,99],
    "close":[96.25,null,110],
    "volume":[1000,2000,1250000]
  }]}
}],"error":null}}`

const searchJSON = `{
  "quotes":[
    {"exchange":"NMS","exchDisp":"NASDAQ","shortname":"MongoDB","longname":"MongoDB, Inc.","quoteType":"EQUITY","symbol":"MDB","sector":"Technology","industry":"Software"},
    {"exchange":"NMS","shortname":"Other","quoteType":"EQUITY","symbol":"MDBX"}
  ],
  "news":[
    {"uuid":"u-old","title":"Older story","publisher":"Reuters","link":"https://example.com/old","providerPublishTime":1709200000},
    {"uuid":"u-new","title":"Newer story","publisher":"Bloomberg","link":"https://example.com/new","providerPublishTime":1709300000},
    {"uuid":"u-blank","title":"  ","publisher":"x","link":"https://example.com/blank","providerPublishTime":1709300001}
  ]
}`

const rssXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>Yahoo Finance</title>
  <item>
    <title>Markets rally</title>
    <link>https://finance.yahoo.com/news/markets-rally</link>
    <guid>rally-1</guid>
    <pubDate>Fri, 01 Mar 2024 15:04:05 GMT</pubDate>
    <description><![CDATA[<p>Stocks <b>rose</b> on Friday.</p>]]></description>
  </item>
  <item>
    <title>No guid here</title>
    <link>https://finance.yahoo.com/news/no-guid</link>
    <pubDate>Fri, 01 Mar 2024 12:00:00 GMT</pubDate>
  </item>
</channel></rss>`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:    srv.URL,
		FeedURL:    srv.URL + "/rss",
		HTTPClient: srv.Client(),
	})
}

func TestFetchQuotes(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/MDB", r.URL.Path)
		assert.Equal(t, "1mo", r.URL.Query().Get("range"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		fmt.Fprint(w, chartJSON)
	})

	series, err := p.FetchQuotes(context.Background(), "mdb", models.Range1mo, "1d")
	require.NoError(t, err)

	assert.Equal(t, "MDB", series.Symbol)
	assert.Equal(t, "USD", series.Currency)
	assert.Equal(t, 100.0, series.Latest.Open)
	assert.Equal(t, 110.0, series.Latest.Close)
	assert.Equal(t, int64(1250000), series.Latest.Volume)
	assert.Equal(t, 10.0, series.Latest.ChangePct())

	// The bar with a null close is dropped.
	require.Len(t, series.History, 2)
	assert.Equal(t, 96.25, series.History[0].Close)
	assert.Equal(t, time.Unix(1709388000, 0).UTC(), series.History[1].Timestamp)
}

func TestFetchQuotesErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"chart error", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, nil},
		{"empty result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, datasource.ErrNoData},
		{"rate limited", http.StatusTooManyRequests, ``, infra.ErrRateLimited},
		{"bad json", http.StatusOK, `{`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := p.FetchQuotes(context.Background(), "ZZZZ", models.Range1mo, "1d")
			require.Error(t, err)

			var fe *infra.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "quotes", fe.Op)
			assert.Equal(t, "ZZZZ", fe.Symbol)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFetchQuotesInvalidRange(t *testing.T) {
	p := New(Options{BaseURL: "http://127.0.0.1:0"})
	_, err := p.FetchQuotes(context.Background(), "MDB", models.QuoteRange("7w"), "1d")
	assert.ErrorContains(t, err, "invalid range")
}

func TestFetchMetadata(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		assert.Equal(t, "MDB", r.URL.Query().Get("q"))
		fmt.Fprint(w, searchJSON)
	})

	meta, err := p.FetchMetadata(context.Background(), "MDB")
	require.NoError(t, err)
	assert.Equal(t, "MongoDB, Inc.", meta.DisplayName())
	assert.Equal(t, "NASDAQ", meta.ExchangeName)
	assert.Equal(t, "Technology", meta.Category())
}

func TestFetchMetadataFallsBackToChart(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/finance/search") {
			fmt.Fprint(w, `{"quotes":[],"news":[]}`)
			return
		}
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"XMR-USD","instrumentType":"CRYPTOCURRENCY","exchangeName":"CCC","shortName":"Monero USD"}}],"error":null}}`)
	})

	meta, err := p.FetchMetadata(context.Background(), "xmr-usd")
	require.NoError(t, err)
	assert.Equal(t, "XMR-USD", meta.Symbol)
	assert.Equal(t, "Monero USD", meta.DisplayName())
	assert.Equal(t, "CRYPTOCURRENCY", meta.Category())
}

func TestFetchSymbolNews(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("quotesCount"))
		assert.Equal(t, "20", r.URL.Query().Get("newsCount"))
		fmt.Fprint(w, searchJSON)
	})

	items, err := p.FetchNews(context.Background(), "MDB")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "u-new", items[0].ID)
	assert.Equal(t, "Bloomberg", items[0].Publisher)
	assert.Equal(t, "https://example.com/new", items[0].SourceURL)
	assert.Equal(t, time.Unix(1709300000, 0).UTC(), items[0].PublishedAt)
	assert.Equal(t, "u-old", items[1].ID)
}

func TestFetchGlobalNewsFromFeed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rss", r.URL.Path)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssXML)
	})

	items, err := p.FetchNews(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "rally-1", items[0].ID)
	assert.Equal(t, "Markets rally", items[0].Title)
	assert.Equal(t, "Yahoo Finance", items[0].Publisher)
	assert.Equal(t, "Stocks rose on Friday.", items[0].Summary)
	assert.Equal(t, time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC), items[0].PublishedAt)

	// Items without a GUID get a stable ULID.
	assert.Len(t, items[1].ID, 26)
	again, err := p.FetchNews(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, items[1].ID, again[1].ID)
}

func TestFetchGlobalNewsUpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := p.FetchNews(context.Background(), "")
	var httpErr *infra.ErrHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestItemIDDeterministic(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := itemID("https://x/a", "A", at)
	assert.Equal(t, a, itemID("https://x/a", "A", at))
	assert.NotEqual(t, a, itemID("https://x/b", "A", at))
	assert.NotEmpty(t, itemID("https://x/a", "A", time.Time{}))
}

func TestCleanHTML(t *testing.T) {
	assert.Equal(t, "", cleanHTML(""))
	assert.Equal(t, "Hello world", cleanHTML("<div>Hello\n  <i>world</i></div>"))
}

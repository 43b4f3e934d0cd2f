// Package yfinance implements the Yahoo Finance data provider.
// It wraps Yahoo Finance's public APIs (v8 chart, v1 search) and the Yahoo
// Finance RSS feed behind the datasource fetcher interfaces.
//
// Yahoo Finance is a free, no-API-key provider that covers equities,
// ETFs, indices, crypto and currencies.
package yfinance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/internal/infra"
)

const providerName = "yfinance"

const (
	// DefaultBaseURL is the Yahoo Finance query host.
	DefaultBaseURL = "https://query1.finance.yahoo.com"
	// DefaultFeedURL is the Yahoo Finance top stories RSS feed.
	DefaultFeedURL = "https://finance.yahoo.com/news/rssindex"
)

// Options configures a Provider.
type Options struct {
	BaseURL    string
	FeedURL    string
	Timeout    time.Duration
	RateLimit  int // requests per second; <= 0 disables limiting
	NewsCount  int // items requested per symbol news search
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Provider fetches quotes, metadata and news from Yahoo Finance.
type Provider struct {
	baseURL   string
	feedURL   string
	newsCount int
	client    *http.Client
	limiter   *infra.RateLimiter
	parser    *gofeed.Parser
	log       zerolog.Logger
}

var _ datasource.Fetcher = (*Provider)(nil)

// New creates a Yahoo Finance provider.
func New(opts Options) *Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.FeedURL == "" {
		opts.FeedURL = DefaultFeedURL
	}
	if opts.NewsCount <= 0 {
		opts.NewsCount = 20
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Provider{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		feedURL:   opts.FeedURL,
		newsCount: opts.NewsCount,
		client:    client,
		limiter:   infra.NewRateLimiter(opts.RateLimit, time.Second),
		parser:    gofeed.NewParser(),
		log:       opts.Logger.With().Str("provider", providerName).Logger(),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return providerName }

// Ping checks connectivity to Yahoo Finance.
func (p *Provider) Ping(ctx context.Context) error {
	body, _, err := p.get(ctx, p.chartURL("AAPL", "1d", "1d"), jsonHeaders())
	if err != nil {
		return fmt.Errorf("yfinance ping: %w", err)
	}
	body.Close()
	return nil
}

// --- Shared helpers ---

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

// get waits for the rate limiter and performs a GET.
func (p *Provider) get(ctx context.Context, u string, headers map[string]string) (io.ReadCloser, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	start := time.Now()
	body, status, err := infra.DoGet(ctx, p.client, u, headers)
	p.log.Debug().Str("url", u).Int("status", status).Dur("took", time.Since(start)).Err(err).Msg("GET")
	return body, status, err
}

// fetchJSON performs a GET request and decodes the response into dest.
func (p *Provider) fetchJSON(ctx context.Context, u string, dest any) error {
	body, _, err := p.get(ctx, u, jsonHeaders())
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}

func (p *Provider) chartURL(symbol, rng, interval string) string {
	return fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		p.baseURL, url.PathEscape(symbol), url.QueryEscape(rng), url.QueryEscape(interval))
}

func (p *Provider) searchURL(symbol string, quotes, news int) string {
	return fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=%d&newsCount=%d",
		p.baseURL, url.QueryEscape(symbol), quotes, news)
}

func fetchErr(op, symbol string, err error) error {
	return &infra.FetchError{Source: providerName, Op: op, Symbol: symbol, Err: err}
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

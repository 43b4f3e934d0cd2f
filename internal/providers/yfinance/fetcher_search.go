package yfinance

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/pkg/models"
	"github.com/seenimoa/yausma/pkg/utils"
)

// FetchMetadata resolves names, exchange and sector through the v1 search
// API. When the search has no exact match the chart meta block is used.
func (p *Provider) FetchMetadata(ctx context.Context, symbol string) (*models.InstrumentMetadata, error) {
	symbol = utils.NormalizeTicker(symbol)

	var resp yfSearchResponse
	if err := p.fetchJSON(ctx, p.searchURL(symbol, 5, 0), &resp); err != nil {
		return nil, fetchErr("metadata", symbol, err)
	}

	for _, q := range resp.Quotes {
		if !strings.EqualFold(q.Symbol, symbol) {
			continue
		}
		return &models.InstrumentMetadata{
			Symbol:       symbol,
			LongName:     q.LongName,
			ShortName:    q.ShortName,
			ExchangeName: coalesce(q.ExchDisp, q.Exchange),
			Sector:       q.Sector,
			QuoteType:    q.QuoteType,
		}, nil
	}

	return p.metadataFromChart(ctx, symbol)
}

func (p *Provider) metadataFromChart(ctx context.Context, symbol string) (*models.InstrumentMetadata, error) {
	var resp yfChartResponse
	if err := p.fetchJSON(ctx, p.chartURL(symbol, "1d", "1d"), &resp); err != nil {
		return nil, fetchErr("metadata", symbol, err)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fetchErr("metadata", symbol, datasource.ErrNoData)
	}
	meta := resp.Chart.Result[0].Meta
	return &models.InstrumentMetadata{
		Symbol:       symbol,
		LongName:     meta.LongName,
		ShortName:    meta.ShortName,
		ExchangeName: meta.ExchangeName,
		QuoteType:    meta.InstrumentType,
	}, nil
}

// FetchNews returns news for symbol from the v1 search API, or the global
// RSS feed when symbol is empty. Items are most recent first.
func (p *Provider) FetchNews(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	symbol = utils.NormalizeTicker(symbol)
	if symbol == "" {
		return p.fetchFeed(ctx)
	}

	var resp yfSearchResponse
	if err := p.fetchJSON(ctx, p.searchURL(symbol, 0, p.newsCount), &resp); err != nil {
		return nil, fetchErr("news", symbol, err)
	}

	items := make([]models.NewsItem, 0, len(resp.News))
	for _, n := range resp.News {
		if strings.TrimSpace(n.Title) == "" {
			continue
		}
		item := models.NewsItem{
			ID:        coalesce(n.UUID, itemID(n.Link, n.Title, time.Unix(n.ProviderPublishTime, 0))),
			Title:     strings.TrimSpace(n.Title),
			Publisher: n.Publisher,
			SourceURL: n.Link,
		}
		if n.ProviderPublishTime > 0 {
			item.PublishedAt = time.Unix(n.ProviderPublishTime, 0).UTC()
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	return items, nil
}

package yfinance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/pkg/models"
	"github.com/seenimoa/yausma/pkg/utils"
)

// FetchQuotes returns the latest bar and close history for symbol from the
// v8 chart API. Bars with a missing close are skipped.
func (p *Provider) FetchQuotes(ctx context.Context, symbol string, rng models.QuoteRange, interval string) (*models.QuoteSeries, error) {
	symbol = utils.NormalizeTicker(symbol)
	if rng == "" {
		rng = models.Range1mo
	}
	if !rng.Valid() {
		return nil, fetchErr("quotes", symbol, fmt.Errorf("invalid range %q", rng))
	}
	if interval == "" {
		interval = "1d"
	}

	var resp yfChartResponse
	if err := p.fetchJSON(ctx, p.chartURL(symbol, string(rng), interval), &resp); err != nil {
		return nil, fetchErr("quotes", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fetchErr("quotes", symbol, errors.New(resp.Chart.Error.Description))
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fetchErr("quotes", symbol, datasource.ErrNoData)
	}

	result := resp.Chart.Result[0]
	bars := parseBars(result)
	if len(bars) == 0 {
		return nil, fetchErr("quotes", symbol, datasource.ErrNoData)
	}

	history := make([]models.PricePoint, len(bars))
	for i, b := range bars {
		history[i] = models.PricePoint{Close: b.Close, Timestamp: b.Timestamp}
	}

	return &models.QuoteSeries{
		Symbol:   coalesce(result.Meta.Symbol, symbol),
		Currency: result.Meta.Currency,
		Latest:   bars[len(bars)-1],
		History:  history,
	}, nil
}

// parseBars converts the columnar chart payload into chronological bars.
func parseBars(result yfChartResult) []models.Quote {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}

	q := result.Indicators.Quote[0]
	bars := make([]models.Quote, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		b := models.Quote{
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     *q.Close[i],
		}
		if i < len(q.Open) && q.Open[i] != nil {
			b.Open = *q.Open[i]
		}
		if i < len(q.High) && q.High[i] != nil {
			b.High = *q.High[i]
		}
		if i < len(q.Low) && q.Low[i] != nil {
			b.Low = *q.Low[i]
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			b.Volume = *q.Volume[i]
		}
		bars = append(bars, b)
	}
	return bars
}

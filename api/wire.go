package api

import (
	"math"
	"strconv"

	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/pkg/models"
	"github.com/seenimoa/yausma/pkg/utils"
)

// OverviewItem is the JSON shape of one overview entry.
type OverviewItem struct {
	Symbol       string         `json:"symbol"`
	Name         string         `json:"name"`
	Short        string         `json:"short"`
	Sector       string         `json:"sector"`
	Exchange     string         `json:"exchange,omitempty"`
	CurrentPrice string         `json:"current_price"` // e.g. "$211.34"
	Change       float64        `json:"change"`        // percent, two decimals
	Open         float64        `json:"open"`
	High         float64        `json:"high"`
	Low          float64        `json:"low"`
	Volume       int64          `json:"volume"`
	History      []HistoryPoint `json:"history"`
	NewsArticle  *NewsArticle   `json:"news_article"`
}

// HistoryPoint is one close in an overview item's history.
type HistoryPoint struct {
	Close float64 `json:"close"`
	Date  string  `json:"date"` // unix seconds
}

// NewsArticle is the JSON shape of a news item.
type NewsArticle struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	Source    string `json:"source"` // article URL
	Date      string `json:"date"`   // unix seconds
	Summary   string `json:"summary,omitempty"`
}

const unknownPublisher = "Unknown Publisher"

// overviewMessage wraps an overview for WebSocket clients.
func overviewMessage(ov *datasource.Overview) WSMessage {
	return WSMessage{
		Type:     MsgMarketOverview,
		Data:     toOverviewItems(ov.Records),
		Failures: ov.Failures,
	}
}

func toOverviewItems(records []models.AggregateRecord) []OverviewItem {
	items := make([]OverviewItem, 0, len(records))
	for _, rec := range records {
		item := OverviewItem{
			Symbol:       rec.Symbol,
			Name:         rec.Name,
			Short:        rec.ShortName,
			Sector:       rec.Sector,
			Exchange:     rec.Exchange,
			CurrentPrice: utils.FormatUSD(rec.Price),
			Change:       round2(rec.ChangePct),
			Open:         rec.Open,
			High:         rec.High,
			Low:          rec.Low,
			Volume:       rec.Volume,
			History:      make([]HistoryPoint, 0, len(rec.History)),
		}
		if item.Name == "" {
			item.Name = rec.Symbol
		}
		if item.Short == "" {
			item.Short = rec.Symbol
		}
		for _, p := range rec.History {
			item.History = append(item.History, HistoryPoint{
				Close: p.Close,
				Date:  strconv.FormatInt(p.Timestamp.Unix(), 10),
			})
		}
		if rec.NewsItem != nil {
			a := toNewsArticle(*rec.NewsItem)
			item.NewsArticle = &a
		}
		items = append(items, item)
	}
	return items
}

func toNewsArticles(items []models.NewsItem) []NewsArticle {
	out := make([]NewsArticle, 0, len(items))
	for _, n := range items {
		out = append(out, toNewsArticle(n))
	}
	return out
}

func toNewsArticle(n models.NewsItem) NewsArticle {
	a := NewsArticle{
		ID:        n.ID,
		Title:     n.Title,
		Publisher: n.Publisher,
		Source:    n.SourceURL,
		Summary:   n.Summary,
	}
	if a.Publisher == "" {
		a.Publisher = unknownPublisher
	}
	if !n.PublishedAt.IsZero() {
		a.Date = strconv.FormatInt(n.PublishedAt.Unix(), 10)
	}
	return a
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

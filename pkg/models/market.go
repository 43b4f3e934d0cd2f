// Package models defines the core data structures used throughout yausma.
package models

import (
	"strings"
	"time"
)

// QuoteRange is the lookback window requested from a quote provider.
type QuoteRange string

const (
	Range1d  QuoteRange = "1d"
	Range5d  QuoteRange = "5d"
	Range1mo QuoteRange = "1mo"
	Range3mo QuoteRange = "3mo"
	Range6mo QuoteRange = "6mo"
	Range1y  QuoteRange = "1y"
	Range2y  QuoteRange = "2y"
	Range5y  QuoteRange = "5y"
	RangeYtd QuoteRange = "ytd"
	RangeMax QuoteRange = "max"
)

// Valid reports whether r is one of the known ranges.
func (r QuoteRange) Valid() bool {
	switch r {
	case Range1d, Range5d, Range1mo, Range3mo, Range6mo, Range1y, Range2y, Range5y, RangeYtd, RangeMax:
		return true
	}
	return false
}

// Quote is a single OHLCV bar.
type Quote struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// ChangePct returns (close - open) / open * 100, or 0 when open is 0.
func (q Quote) ChangePct() float64 {
	if q.Open == 0 {
		return 0
	}
	return (q.Close - q.Open) / q.Open * 100
}

// PricePoint is one element of a short closing-price series.
type PricePoint struct {
	Close     float64   `json:"close"`
	Timestamp time.Time `json:"timestamp"`
}

// QuoteSeries is the result of one quote lookup: the most recent bar plus
// a chronological history of closes.
type QuoteSeries struct {
	Symbol   string       `json:"symbol"`
	Currency string       `json:"currency,omitempty"`
	Latest   Quote        `json:"latest"`
	History  []PricePoint `json:"history"`
}

// InstrumentMetadata describes a tradable instrument.
type InstrumentMetadata struct {
	Symbol       string `json:"symbol"`
	LongName     string `json:"long_name,omitempty"`
	ShortName    string `json:"short_name,omitempty"`
	ExchangeName string `json:"exchange_name,omitempty"`
	Sector       string `json:"sector,omitempty"`
	QuoteType    string `json:"quote_type,omitempty"` // e.g., "EQUITY", "CRYPTOCURRENCY"
}

// DisplayName returns the long name, falling back to the short name and
// then the exchange name.
func (m InstrumentMetadata) DisplayName() string {
	for _, v := range []string{m.LongName, m.ShortName, m.ExchangeName} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Category returns the sector, or the instrument type for instruments that
// have no sector (crypto, indices, currencies).
func (m InstrumentMetadata) Category() string {
	if strings.TrimSpace(m.Sector) != "" {
		return m.Sector
	}
	return m.QuoteType
}

// NewsItem is a single news article. Values are never modified after
// construction; copy before changing.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Publisher   string    `json:"publisher"`
	SourceURL   string    `json:"source_url"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// AggregateRecord is the composed market view of one symbol.
type AggregateRecord struct {
	Symbol    string       `json:"symbol"`
	Name      string       `json:"name"`
	ShortName string       `json:"short_name,omitempty"`
	Sector    string       `json:"sector"`
	Exchange  string       `json:"exchange,omitempty"`
	Price     float64      `json:"price"`
	Open      float64      `json:"open"`
	ChangePct float64      `json:"change_pct"`
	High      float64      `json:"high"`
	Low       float64      `json:"low"`
	Volume    int64        `json:"volume"`
	History   []PricePoint `json:"history"`
	NewsItem  *NewsItem    `json:"news_item,omitempty"`
	QuotedAt  time.Time    `json:"quoted_at"`
}

package datasource

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/yausma/internal/infra"
	"github.com/seenimoa/yausma/pkg/models"
	"github.com/seenimoa/yausma/pkg/utils"
)

// FailurePolicy decides what happens to a batch when one symbol fails.
type FailurePolicy int

const (
	// FailFast abandons the whole batch on the first failing symbol.
	FailFast FailurePolicy = iota
	// SkipFailed drops failing symbols and reports them in Overview.Failures.
	// When every symbol fails the joined AggregationErrors are returned.
	SkipFailed
)

// ParseFailurePolicy parses "fail_fast" or "skip_failed".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail_fast":
		return FailFast, nil
	case "skip_failed":
		return SkipFailed, nil
	}
	return FailFast, fmt.Errorf("unknown failure policy %q", s)
}

func (p FailurePolicy) String() string {
	if p == SkipFailed {
		return "skip_failed"
	}
	return "fail_fast"
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	Range         models.QuoteRange
	Interval      string
	HistoryPoints int // trailing closes kept per record; 0 keeps all
	Concurrency   int // symbols fetched in parallel; <= 0 means 4
	Policy        FailurePolicy
	Clock         infra.Clock
	Logger        zerolog.Logger
}

// SymbolFailure describes one symbol dropped under SkipFailed.
type SymbolFailure struct {
	Symbol string `json:"symbol"`
	Step   string `json:"step"`
	Error  string `json:"error"`
}

// Overview is the result of one aggregation run.
type Overview struct {
	Records   []models.AggregateRecord `json:"records"`
	Failures  []SymbolFailure          `json:"failures,omitempty"`
	FetchedAt time.Time                `json:"fetched_at"`
}

// Clone returns a deep copy; cached overviews are never handed out directly.
func (o *Overview) Clone() *Overview {
	if o == nil {
		return nil
	}
	out := &Overview{
		Records:   make([]models.AggregateRecord, len(o.Records)),
		Failures:  slices.Clone(o.Failures),
		FetchedAt: o.FetchedAt,
	}
	for i, r := range o.Records {
		r.History = slices.Clone(r.History)
		if r.NewsItem != nil {
			item := *r.NewsItem
			r.NewsItem = &item
		}
		out.Records[i] = r
	}
	return out
}

// FailedSymbols returns the symbols dropped from the overview, in input order.
func (o *Overview) FailedSymbols() []string {
	out := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		out = append(out, f.Symbol)
	}
	return out
}

// Aggregator joins quotes, metadata and the latest news item per symbol.
type Aggregator struct {
	quotes QuoteFetcher
	meta   MetadataFetcher
	news   *NewsService
	opts   AggregatorOptions
	log    zerolog.Logger
}

// NewAggregator creates an aggregator. Per-symbol news goes through news so
// it shares the per-symbol cache entries with direct news lookups.
func NewAggregator(quotes QuoteFetcher, meta MetadataFetcher, news *NewsService, opts AggregatorOptions) *Aggregator {
	if opts.Range == "" {
		opts.Range = models.Range1mo
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Clock == nil {
		opts.Clock = infra.SystemClock
	}
	return &Aggregator{
		quotes: quotes,
		meta:   meta,
		news:   news,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "aggregator").Logger(),
	}
}

// Aggregate builds one record per symbol. Records come back in input order
// regardless of which symbol finishes first.
func (a *Aggregator) Aggregate(ctx context.Context, symbols []string) (*Overview, error) {
	start := a.opts.Clock.Now()
	slots := make([]*models.AggregateRecord, len(symbols))
	failures := make([]*AggregationError, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for i, sym := range symbols {
		g.Go(func() error {
			rec, err := a.join(gctx, utils.NormalizeTicker(sym))
			if err != nil {
				if a.opts.Policy == FailFast {
					return err
				}
				var aggErr *AggregationError
				if errors.As(err, &aggErr) {
					failures[i] = aggErr
				}
				return nil
			}
			slots[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.log.Warn().Err(err).Int("symbols", len(symbols)).Msg("aggregation aborted")
		return nil, err
	}

	ov := &Overview{
		Records:   make([]models.AggregateRecord, 0, len(symbols)),
		FetchedAt: a.opts.Clock.Now(),
	}
	var errs []error
	for i := range symbols {
		if slots[i] != nil {
			ov.Records = append(ov.Records, *slots[i])
		}
		if f := failures[i]; f != nil {
			ov.Failures = append(ov.Failures, SymbolFailure{Symbol: f.Symbol, Step: f.Step, Error: f.Err.Error()})
			errs = append(errs, f)
		}
	}

	// Nothing survived: report the failures instead of an empty overview.
	if len(ov.Records) == 0 && len(errs) > 0 {
		err := errors.Join(errs...)
		a.log.Warn().Err(err).Int("symbols", len(symbols)).Msg("every symbol failed")
		return nil, err
	}

	a.log.Info().
		Int("records", len(ov.Records)).
		Int("failures", len(ov.Failures)).
		Dur("took", ov.FetchedAt.Sub(start)).
		Msg("overview aggregated")
	return ov, nil
}

// join composes the record for one symbol.
func (a *Aggregator) join(ctx context.Context, symbol string) (*models.AggregateRecord, error) {
	series, err := a.quotes.FetchQuotes(ctx, symbol, a.opts.Range, a.opts.Interval)
	if err != nil {
		return nil, &AggregationError{Symbol: symbol, Step: "quotes", Err: err}
	}
	if series == nil {
		return nil, &AggregationError{Symbol: symbol, Step: "quotes", Err: ErrNoData}
	}

	meta, err := a.meta.FetchMetadata(ctx, symbol)
	if err != nil {
		return nil, &AggregationError{Symbol: symbol, Step: "metadata", Err: err}
	}
	if meta == nil {
		meta = &models.InstrumentMetadata{Symbol: symbol}
	}

	var item *models.NewsItem
	if a.news != nil {
		item, err = a.news.Latest(ctx, symbol)
		if err != nil {
			return nil, &AggregationError{Symbol: symbol, Step: "news", Err: err}
		}
	}

	q := series.Latest
	return &models.AggregateRecord{
		Symbol:    symbol,
		Name:      meta.DisplayName(),
		ShortName: meta.ShortName,
		Sector:    meta.Category(),
		Exchange:  meta.ExchangeName,
		Price:     q.Close,
		Open:      q.Open,
		ChangePct: q.ChangePct(),
		High:      q.High,
		Low:       q.Low,
		Volume:    q.Volume,
		History:   trimHistory(series.History, a.opts.HistoryPoints),
		NewsItem:  item,
		QuotedAt:  q.Timestamp,
	}, nil
}

// trimHistory keeps the last n points, chronological. The input is not modified.
func trimHistory(history []models.PricePoint, n int) []models.PricePoint {
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]models.PricePoint, len(history))
	copy(out, history)
	return out
}

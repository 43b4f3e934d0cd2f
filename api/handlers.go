package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/seenimoa/yausma/internal/config"
	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/internal/infra"
	"github.com/seenimoa/yausma/pkg/utils"
)

// upstreamTimeout bounds how long a request waits on a cache refresh. The
// refresh itself keeps running for later callers.
const upstreamTimeout = 60 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":        "ok",
			"version":       s.version,
			"market_status": utils.MarketStatus(),
			"time_et":       utils.NowEastern().Format("2006-01-02 15:04:05 MST"),
			"ws_clients":    s.wsHub.ClientCount(),
		},
	})
}

// headerFailedSymbols lists the symbols dropped from a partial overview.
const headerFailedSymbols = "X-Failed-Symbols"

// handleMarketOverview serves GET /api/data/market-overview[?tickers=A,B].
// Symbols dropped under skip_failed are named in X-Failed-Symbols.
func (s *Server) handleMarketOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	var (
		ov  *datasource.Overview
		err error
	)
	if tickers := utils.ParseTickers(r.URL.Query().Get("tickers")); len(tickers) > 0 {
		ov, err = s.market.OverviewFor(ctx, tickers)
	} else {
		ov, err = s.market.Overview(ctx)
	}
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	if failed := ov.FailedSymbols(); len(failed) > 0 {
		w.Header().Set(headerFailedSymbols, strings.Join(failed, ","))
	}
	s.writeJSON(w, http.StatusOK, toOverviewItems(ov.Records))
}

// handleNews serves GET /api/data/news[?ticker=XYZ].
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	items, err := s.market.GetNews(ctx, r.URL.Query().Get("ticker"))
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toNewsArticles(items))
}

// handleInvalidate serves DELETE /api/data/cache.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.market.Invalidate()
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"status": "invalidated"},
	})
}

// handleGetConfig returns the running configuration with secrets masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		s.writeError(w, http.StatusNotFound, "no configuration loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"config":  maskedConfig(*s.cfg),
			"secrets": config.CheckSecrets(s.cfg),
		},
	})
}

func maskedConfig(cfg config.Config) config.Config {
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = "***"
	}
	return cfg
}

// writeUpstreamError maps data errors to status codes: provider and
// aggregation failures are 502, timeouts 504, anything else 500.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var (
		aggErr   *datasource.AggregationError
		fetchErr *infra.FetchError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; status is for the access log only.
		status = 499
	case errors.As(err, &aggErr), errors.As(err, &fetchErr):
		status = http.StatusBadGateway
	}
	s.log.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("data request failed")
	s.writeError(w, status, err.Error())
}

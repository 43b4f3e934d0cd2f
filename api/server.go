// Package api provides the HTTP API server for yausma.
//
// It exposes the cached market overview and news over REST, Prometheus
// metrics, and a WebSocket that pushes every refreshed overview.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/seenimoa/yausma/internal/config"
	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/pkg/models"
)

// MarketService is the query surface the server exposes.
type MarketService interface {
	Overview(ctx context.Context) (*datasource.Overview, error)
	OverviewFor(ctx context.Context, symbols []string) (*datasource.Overview, error)
	GetNews(ctx context.Context, symbol string) ([]models.NewsItem, error)
	Invalidate()
	OnOverviewRefresh(fn func(ov *datasource.Overview))
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Metrics http.Handler // served at /metrics when set
	Logger  zerolog.Logger
	Version string
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	market  MarketService
	metrics http.Handler
	wsHub   *WSHub
	log     zerolog.Logger
	version string
}

// NewServer creates a configured API server with all routes and middleware.
// Overview refreshes are pushed to WebSocket clients.
func NewServer(cfg *config.Config, market MarketService, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		cfg:     cfg,
		market:  market,
		metrics: opts.Metrics,
		wsHub:   NewWSHub(),
		log:     opts.Logger.With().Str("component", "api").Logger(),
		version: opts.Version,
	}

	market.OnOverviewRefresh(func(ov *datasource.Overview) {
		s.wsHub.Broadcast(overviewMessage(ov))
	})

	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe starts the HTTP server and shuts it down gracefully on
// SIGINT/SIGTERM or when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if s.cfg != nil && len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", headerFailedSymbols},
		MaxAge:         300,
	}))

	// WebSocket stays outside the request timeout.
	r.Get("/ws/market", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(120 * time.Second))

		r.Get("/health", s.handleHealth)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/config", s.handleGetConfig)

			r.Route("/data", func(r chi.Router) {
				r.Get("/market-overview", s.handleMarketOverview)
				r.Get("/news", s.handleNews)
				r.Delete("/cache", s.handleInvalidate)
			})
		})
	})

	return r
}

// requestLogger logs one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// APIResponse is the standard envelope for non-data endpoints and errors.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to write JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

package providers

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/seenimoa/yausma/internal/config"
	"github.com/seenimoa/yausma/internal/providers/yfinance"
)

// Default holds every built-in provider.
var Default = NewRegistry()

func init() {
	_ = Default.Register("yfinance", func(cfg *config.Config, log zerolog.Logger) (Provider, error) {
		return yfinance.New(yfinance.Options{
			BaseURL:   cfg.Provider.BaseURL,
			FeedURL:   cfg.News.FeedURL,
			Timeout:   time.Duration(cfg.Provider.TimeoutSec) * time.Second,
			RateLimit: cfg.Provider.RateLimit,
			NewsCount: cfg.News.Limit,
			Logger:    log,
		}), nil
	})
}

package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/yausma/internal/infra"
)

func TestCacheMetricsCountsEvents(t *testing.T) {
	m := New()
	c := infra.NewTTLCache[string]("overview", infra.WithObserver(m))
	ctx := context.Background()

	_, err := c.Get(ctx, "overview", time.Minute, func(context.Context) (string, error) { return "v", nil })
	require.NoError(t, err)
	_, err = c.Get(ctx, "overview", time.Minute, func(context.Context) (string, error) { return "v", nil })
	require.NoError(t, err)
	_, err = c.Get(ctx, "other", time.Minute, func(context.Context) (string, error) { return "", errors.New("down") })
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits.WithLabelValues("overview")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.misses.WithLabelValues("overview")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("overview", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("overview", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.shared.WithLabelValues("overview")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Hit("news")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `yausma_cache_hits_total{cache="news"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	collector := pipeline.NewPrometheusCollector("cozycat", pipeline.NullLogger())
	collector.RecordCounter("tracks", 1, map[string]string{"event": "played"})
	scrapes := 0

	srv := httptest.NewServer(NewRouter(collector.Registry(), func() { scrapes++ }, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, scrapes)

	rec := httptest.NewRecorder()
	NewRouter(collector.Registry(), nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `cozycat_tracks_total{event="played"} 1`)
}

func TestHealthz(t *testing.T) {
	healthy := map[string]HealthCheck{"history": func(context.Context) error { return nil }}
	rec := httptest.NewRecorder()
	NewRouter(pipeline.NewPrometheusCollector("cozycat", pipeline.NullLogger()).Registry(), nil, healthy).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK","checks":{"history":"ok"}}`, rec.Body.String())

	broken := map[string]HealthCheck{"history": func(context.Context) error { return errors.New("database is closed") }}
	rec = httptest.NewRecorder()
	NewRouter(pipeline.NewPrometheusCollector("cozycat", pipeline.NullLogger()).Registry(), nil, broken).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is closed")
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(pipeline.NewPrometheusCollector("cozycat", pipeline.NullLogger()).Registry(), nil, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

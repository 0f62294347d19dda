package metrics_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/metrics"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&simplenews.ValidationError{Field: "title", Reason: "is required"}, "invalid"},
		{fmt.Errorf("wrapped: %w", simplenews.ErrArticleNotFound), "not_found"},
		{simplenews.ErrImageInUse, "conflict"},
		{errors.New("connection reset"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, metrics.Outcome(tt.err))
		})
	}
}

func TestCollector_ServiceMetrics(t *testing.T) {
	c := metrics.NewCollector()

	c.ObserveOperation("create_article", 10*time.Millisecond, nil)
	c.ObserveOperation("create_article", 5*time.Millisecond, simplenews.ErrInvalid)
	c.ObserveOperation("delete_image", time.Millisecond, simplenews.ErrImageInUse)
	c.ImagesReclaimed(3)
	c.ImagesReclaimed(0)
	c.CleanupFailed("a.jpg")

	expected := `
# HELP simple_news_operations_total Total number of service operations by outcome.
# TYPE simple_news_operations_total counter
simple_news_operations_total{op="create_article",outcome="invalid"} 1
simple_news_operations_total{op="create_article",outcome="ok"} 1
simple_news_operations_total{op="delete_image",outcome="conflict"} 1
# HELP simple_news_images_reclaimed_total Images removed from the catalog because no article referenced them.
# TYPE simple_news_images_reclaimed_total counter
simple_news_images_reclaimed_total 3
# HELP simple_news_blob_cleanup_failures_total Blobs that could not be deleted after their catalog row was removed.
# TYPE simple_news_blob_cleanup_failures_total counter
simple_news_blob_cleanup_failures_total 1
`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"simple_news_operations_total", "simple_news_images_reclaimed_total", "simple_news_blob_cleanup_failures_total")
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(c.Registry(), "simple_news_operation_duration_seconds"))
}

func TestCollector_Middleware(t *testing.T) {
	c := metrics.NewCollector()

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/api/news/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/api/news", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})

	for _, path := range []string{"/api/news/1", "/api/news/2", "/api/news", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	expected := `
# HELP simple_news_http_requests_total Total number of HTTP requests handled.
# TYPE simple_news_http_requests_total counter
simple_news_http_requests_total{method="GET",route="/api/news",status="200"} 1
simple_news_http_requests_total{method="GET",route="/api/news/{id}",status="404"} 2
simple_news_http_requests_total{method="GET",route="unmatched",status="404"} 1
`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "simple_news_http_requests_total")
	require.NoError(t, err)
}

func TestCollector_Handler(t *testing.T) {
	c := metrics.NewCollector()
	c.ImagesReclaimed(1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "simple_news_images_reclaimed_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

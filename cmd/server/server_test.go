package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/api"
	"github.com/tendant/simple-news/pkg/simplenews/config"
	"github.com/tendant/simple-news/pkg/simplenews/metrics"
)

func newTestServer(t *testing.T, opts ...config.Option) (http.Handler, *metrics.Collector) {
	t.Helper()

	cfg, err := config.Load(append([]config.Option{config.WithRateLimit(0, 0)}, opts...)...)
	require.NoError(t, err)

	collector := metrics.NewCollector()
	svc, closeService, err := cfg.BuildService(context.Background(), simplenews.WithMetrics(collector))
	require.NoError(t, err)
	t.Cleanup(closeService)

	return NewHTTPServer(svc, cfg, collector).Routes(), collector
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createRequest(t *testing.T, token string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Budget passes"))
	require.NoError(t, mw.WriteField("content", "After a long night"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/news/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["database"])
}

func TestDevelopmentWithoutSecretIsOpen(t *testing.T) {
	h, _ := newTestServer(t)

	rr := serve(h, createRequest(t, ""))
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serve(h, httptest.NewRequest(http.MethodOptions, "/api/news/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestProductionRequiresAdminToken(t *testing.T) {
	h, _ := newTestServer(t, config.WithEnvironment("production"), config.WithJWTSecret("s3cret"))

	rr := serve(h, createRequest(t, ""))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	_, token, err := api.NewJWTAuth("s3cret").Encode(map[string]interface{}{"role": api.AdminRole})
	require.NoError(t, err)
	rr = serve(h, createRequest(t, token))
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/api/news/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	h, _ := newTestServer(t, config.WithRateLimit(1, 1))

	get := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.7:4000"
		return serve(h, req).Code
	}

	assert.Equal(t, http.StatusOK, get("/api/news/"))
	assert.Equal(t, http.StatusTooManyRequests, get("/api/news/"))
	assert.Equal(t, http.StatusOK, get("/health"), "health checks are not limited")
}

func TestServesUploadedBlobs(t *testing.T) {
	h, _ := newTestServer(t, config.WithFilesystemStorage(t.TempDir(), "/files"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="image"; filename="front.jpg"`},
		"Content-Type":        {"image/jpeg"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/news/images/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := serve(h, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var uploaded api.UploadImageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &uploaded))
	require.True(t, strings.HasPrefix(uploaded.URL, "/files/"), uploaded.URL)

	rr = serve(h, httptest.NewRequest(http.MethodGet, uploaded.URL, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg-bytes", rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	serve(h, createRequest(t, ""))

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `simple_news_operations_total{op="create_article",outcome="ok"} 1`)
	assert.Contains(t, rr.Body.String(), "simple_news_http_requests_total")
}

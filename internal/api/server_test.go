package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petlife-ingest/pet-crawler/internal/checkpoint"
	"github.com/petlife-ingest/pet-crawler/internal/config"
	"github.com/petlife-ingest/pet-crawler/internal/crawl"
	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeCrawler struct {
	lastType pet.Type
	lastOpts crawl.Options
	result   pet.CrawlResult
	err      error
}

func (c *fakeCrawler) Crawl(_ context.Context, petType pet.Type, opts crawl.Options) (pet.CrawlResult, error) {
	c.lastType = petType
	c.lastOpts = opts
	return c.result, c.err
}

func newTestServer(t *testing.T, crawler *fakeCrawler, checkpoints pet.CheckpointStore, cfg config.Config) *httptest.Server {
	t.Helper()
	if checkpoints == nil {
		checkpoints = checkpoint.NewMemoryStore()
	}
	s := NewServer(
		map[string]Crawler{"petlife": crawler},
		checkpoints,
		fixedClock{now: time.Unix(1700000000, 0).UTC()},
		cfg,
		nil,
	)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestTriggerCrawl_ReturnsResult(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{result: pet.CrawlResult{
		Success:    true,
		TotalItems: 4,
		NewItems:   3,
	}}
	ts := newTestServer(t, crawler, nil, config.Config{})

	resp, body := postJSON(t, ts.URL+"/crawl/petlife/dog?limit=10&differential=false")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, pet.TypeDog, crawler.lastType)
	require.Equal(t, crawl.Options{Limit: 10, Differential: false}, crawler.lastOpts)

	var result pet.CrawlResult
	require.NoError(t, json.Unmarshal(body["result"], &result))
	require.True(t, result.Success)
	require.Equal(t, 4, result.TotalItems)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestTriggerCrawl_DifferentialDefaultsOn(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{result: pet.CrawlResult{Success: true}}
	ts := newTestServer(t, crawler, nil, config.Config{})

	resp, _ := postJSON(t, ts.URL+"/crawl/petlife/cat")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, crawler.lastOpts.Differential)
	require.Zero(t, crawler.lastOpts.Limit)
}

func TestRequestMetrics_LabelByRoutePattern(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{result: pet.CrawlResult{Success: true}}
	ts := newTestServer(t, crawler, nil, config.Config{})

	resp, _ := postJSON(t, ts.URL+"/crawl/petlife/dog")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	scrape, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)

	// Latencies are bucketed by the route pattern; concrete source and
	// type values must never become label values.
	require.Contains(t, string(scrape), `route="/crawl/{source}/{type}"`)
	require.NotContains(t, string(scrape), `route="/crawl/petlife/dog"`)
}

func TestTriggerCrawl_PartialFailureStillReturns200(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{result: pet.CrawlResult{
		Success: false,
		Errors:  []string{"item 12: fetch detail: status 404"},
	}}
	ts := newTestServer(t, crawler, nil, config.Config{})

	resp, body := postJSON(t, ts.URL+"/crawl/petlife/dog")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result pet.CrawlResult
	require.NoError(t, json.Unmarshal(body["result"], &result))
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
}

func TestTriggerCrawl_BadRequests(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{}
	ts := newTestServer(t, crawler, nil, config.Config{})

	for _, path := range []string{
		"/crawl/unknown/dog",
		"/crawl/petlife/hamster",
		"/crawl/petlife/dog?limit=abc",
		"/crawl/petlife/dog?limit=-1",
		"/crawl/petlife/dog?differential=maybe",
	} {
		resp, body := postJSON(t, ts.URL+path)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		require.Contains(t, body, "error", path)
	}
}

func TestTriggerCrawl_InProgressConflicts(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{err: fmt.Errorf("crawl petlife/dog: %w", pet.ErrCrawlInProgress)}
	ts := newTestServer(t, crawler, nil, config.Config{})

	resp, _ := postJSON(t, ts.URL+"/crawl/petlife/dog")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCrawlStatus_ListsAndFilters(t *testing.T) {
	t.Parallel()

	checkpoints := checkpoint.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, checkpoints.Put(ctx, pet.Checkpoint{
		SourceID: "petlife", PetType: pet.TypeDog,
		LastItemID: "12345", TotalProcessed: 7,
		LastCrawlAt: time.Unix(1700000000, 0).UTC(),
	}))
	require.NoError(t, checkpoints.Put(ctx, pet.Checkpoint{
		SourceID: "petlife", PetType: pet.TypeCat,
		LastItemID: "9001", TotalProcessed: 2,
		LastCrawlAt: time.Unix(1700000100, 0).UTC(),
	}))

	ts := newTestServer(t, &fakeCrawler{}, checkpoints, config.Config{})

	get := func(path string) []statusEntry {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Checkpoints []statusEntry `json:"checkpoints"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.Checkpoints
	}

	all := get("/crawl/status")
	require.Len(t, all, 2)

	filtered := get("/crawl/status/petlife/dog")
	require.Len(t, filtered, 1)
	require.Equal(t, pet.TypeDog, filtered[0].PetType)
	require.Equal(t, "12345", filtered[0].Checkpoint.LastItemID)
	require.Equal(t, int64(7), filtered[0].TotalProcessed)

	resp, err := http.Get(ts.URL + "/crawl/status/petlife/hamster")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeCrawler{}, nil, config.Config{})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	ts := newTestServer(t, &fakeCrawler{}, nil, cfg)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz?api_key=secret")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

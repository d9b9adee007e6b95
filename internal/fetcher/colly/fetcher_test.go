package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

func TestFetchPage_ReturnsBody(t *testing.T) {
	t.Parallel()

	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{
		UserAgent: "pet-crawler-test/1.0",
		Headers:   map[string]string{"Accept-Language": "ja"},
		Timeout:   2 * time.Second,
	})

	body, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, string(body), "ok")
	require.Equal(t, "pet-crawler-test/1.0", gotUA)
	require.Equal(t, "ja", gotLang)
}

func TestFetchPage_NonTwoHundredIsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)

	var statusErr *pet.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
}

func TestFetchPage_TimeoutIsNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 50 * time.Millisecond})
	_, err := f.FetchPage(context.Background(), srv.URL)
	require.Error(t, err)

	var netErr *pet.NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestFetchPage_ConnectionRefusedIsNetworkError(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second})
	_, err := f.FetchPage(context.Background(), "http://127.0.0.1:1/unreachable")
	require.Error(t, err)

	var netErr *pet.NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestFetchPage_LargeBodyIsNotTruncated(t *testing.T) {
	t.Parallel()

	// Larger than the default archive image limit but below the default
	// body cap; the full body must come back so downstream size checks
	// see the real length.
	payload := make([]byte, 11<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 30 * time.Second})
	body, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, body, len(payload))
}

func TestFetchPage_BodyCappedAtConfiguredLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second, MaxBodySize: 1024})
	body, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, body, 1024)
}

func TestFetchPage_RepeatFetchOfSameURL(t *testing.T) {
	t.Parallel()

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("page"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second})
	for i := 0; i < 2; i++ {
		_, err := f.FetchPage(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	require.Equal(t, 2, hits)
}

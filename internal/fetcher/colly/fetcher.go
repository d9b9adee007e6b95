// Package collyfetcher implements pet.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

// DefaultMaxBodySize caps response bodies at 16 MB. Colly truncates a
// body at the cap instead of failing the request, so the cap must sit
// above any downstream size limit for that limit to stay observable.
const DefaultMaxBodySize = 16 << 20

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Headers   map[string]string
	Timeout   time.Duration
	// MaxBodySize bounds the response body in bytes; zero selects
	// DefaultMaxBodySize.
	MaxBodySize int
}

// Fetcher fetches single pages with the Colly collector. Rate limiting
// between successive fetches is the caller's responsibility.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// FetchPage executes a single HTTP GET and returns the raw body. Non-2xx
// responses surface as *pet.HTTPStatusError; transport failures and
// timeouts as *pet.NetworkError.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := f.buildCollector(url, &body, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return body, nil
}

func (f *Fetcher) buildCollector(url string, body *[]byte, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = f.cfg.MaxBodySize

	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range f.cfg.Headers {
			r.Headers.Set(key, value)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = &pet.HTTPStatusError{URL: url, Status: r.StatusCode}
			return
		}
		*fetchErr = &pet.NetworkError{URL: url, Err: err}
	})

	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &pet.NetworkError{URL: url, Err: fmt.Errorf("fetch canceled: %w", ctx.Err())}
	case err := <-done:
		// Visit surfaces the same failure the OnError hook saw; the typed
		// error set by the hook wins so classification survives. Errors the
		// hook never saw (bad URL, visit refused) are network-class.
		if err != nil && *fetchErr == nil {
			return &pet.NetworkError{URL: url, Err: err}
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

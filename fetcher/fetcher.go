// Package fetcher downloads feeds and source images over HTTP.
package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	neturl "net/url"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-stock-sync/metrics"
)

const (
	ctxStart  = "start"
	ctxBody   = "body"
	ctxStatus = "status"
)

// Fetcher returns the body of a remote resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures the HTTP client.
type Options struct {
	UserAgent       string
	Timeout         time.Duration
	Parallelism     int
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	RatePerSecond   float64
	CacheSize       int
	MaxBodySize     int
}

// Client fetches URLs through a colly collector with retries, a request rate
// limit and an LRU cache of bodies keyed by URL.
type Client struct {
	opts      Options
	collector *colly.Collector
	limiter   *rate.Limiter
	cache     *lru.Cache[string, []byte]
	metrics   *metrics.Metrics
	logger    *zap.Logger

	requestCount int64
	errorCount   int64
	retryCount   int64
}

// New builds a client. A nil logger selects the global zap logger.
func New(opts Options, m *metrics.Metrics, logger *zap.Logger) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 32 << 20
	}
	if logger == nil {
		logger = zap.L()
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(opts.MaxBodySize),
	)
	if opts.UserAgent != "" {
		collector.UserAgent = opts.UserAgent
	}
	collector.SetRequestTimeout(opts.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.Parallelism,
	}); err != nil {
		return nil, eris.Wrap(err, "fetcher: configure limits")
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create cache")
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	c := &Client{
		opts:      opts,
		collector: collector,
		limiter:   rate.NewLimiter(limit, opts.Parallelism),
		cache:     cache,
		metrics:   m,
		logger:    logger,
	}
	c.configureHandlers()
	return c, nil
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		atomic.AddInt64(&c.requestCount, 1)
		c.metrics.IncRequest("started")
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, r.Body)
		r.Ctx.Put(ctxStatus, r.StatusCode)
		c.metrics.IncRequest("completed")
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			c.metrics.ObserveDuration(time.Since(start))
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxStatus, r.StatusCode)
	})
}

// Fetch returns the body at url. Repeated URLs are served from the cache.
// Transient failures are retried with capped exponential backoff.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := checkURL(url); err != nil {
		c.metrics.IncError(string(KindInvalidURL))
		return nil, err
	}
	if body, ok := c.cache.Get(url); ok {
		c.metrics.IncCacheHit()
		return body, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&c.retryCount, 1)
			c.metrics.IncRetries()
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, eris.Wrapf(err, "fetch %s: cancelled", url)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "fetch %s: rate limiter wait", url)
		}

		body, err := c.do(url)
		if err == nil {
			c.cache.Add(url, body)
			return body, nil
		}

		atomic.AddInt64(&c.errorCount, 1)
		c.metrics.IncError(string(KindOf(err)))
		lastErr = err

		var fe *Error
		if !errors.As(err, &fe) || !fe.Retryable() || attempt == c.opts.MaxRetries {
			break
		}
		c.logger.Warn("fetch failed, retrying",
			zap.String("url", url),
			zap.String("kind", string(fe.Kind)),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// checkURL rejects anything but absolute http(s) URLs before a request is made.
func checkURL(raw string) error {
	u, err := neturl.Parse(raw)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return nil
	}
	if err == nil {
		err = errors.New("not an absolute http(s) URL")
	}
	return &Error{URL: raw, Kind: KindInvalidURL, Err: err}
}

func (c *Client) do(url string) ([]byte, error) {
	rctx := colly.NewContext()
	err := c.collector.Request(http.MethodGet, url, nil, rctx, nil)
	status, _ := rctx.GetAny(ctxStatus).(int)
	if err != nil {
		return nil, classifyError(url, err, status)
	}
	body, ok := rctx.GetAny(ctxBody).([]byte)
	if !ok {
		return nil, classifyError(url, errors.New("empty response"), status)
	}
	return body, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.opts.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.opts.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Stats reports request, error and retry counts since construction.
func (c *Client) Stats() (requests, errs, retries int64) {
	return atomic.LoadInt64(&c.requestCount), atomic.LoadInt64(&c.errorCount), atomic.LoadInt64(&c.retryCount)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

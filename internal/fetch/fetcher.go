// Package fetch implements the rate-limited outbound fetch primitive shared
// by the remote archive client and the fallback crawler.
package fetch

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/metrics"
)

// Config controls Client behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MinInterval time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Client issues single-page GETs through a Colly collector, honoring a
// minimum inter-request interval per host and retrying transient failures
// with bounded exponential backoff.
type Client struct {
	cfg           Config
	limiter       *hostLimiter
	policy        *backoffPolicy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Client{
		cfg:           cfg,
		limiter:       newHostLimiter(cfg.MinInterval),
		policy: &backoffPolicy{
			maxAttempts: cfg.MaxAttempts,
			baseDelay:   cfg.BackoffBase,
			maxDelay:    cfg.BackoffMax,
		},
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch retrieves target and returns the response body. It fails with
// *NetworkError, *RateLimitError, or *HTTPError; transient failures are
// retried up to the configured attempt count before the last error is
// propagated.
func (c *Client) Fetch(ctx context.Context, target string, headers http.Header) ([]byte, error) {
	host := hostOf(target)
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, &NetworkError{URL: target, Err: err}
		}
		body, err := c.fetchOnce(ctx, target, headers)
		if err == nil {
			metrics.ObserveFetch(host, "ok")
			return body, nil
		}
		lastErr = err
		metrics.ObserveFetch(host, outcomeOf(err))
		if !c.policy.shouldRetry(err, attempt) {
			return nil, lastErr
		}
		delay := c.policy.backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		pause(ctx, delay)
		if ctx.Err() != nil {
			return nil, &NetworkError{URL: target, Err: ctx.Err()}
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, target string, headers http.Header) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector := c.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, &NetworkError{URL: target, Err: ctx.Err()}
	case visitErr := <-done:
		if fetchErr == nil && visitErr != nil {
			fetchErr = visitErr
		}
	}

	if fetchErr != nil {
		switch {
		case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
			return nil, &RateLimitError{URL: target, StatusCode: status}
		case status > 0:
			return nil, &HTTPError{URL: target, StatusCode: status}
		default:
			return nil, &NetworkError{URL: target, Err: fetchErr}
		}
	}
	if status < 200 || status >= 300 {
		return nil, &HTTPError{URL: target, StatusCode: status}
	}
	return body, nil
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "unknown"
}

func outcomeOf(err error) string {
	switch err.(type) {
	case *RateLimitError:
		return "rate_limited"
	case *HTTPError:
		return "http_error"
	default:
		return "network_error"
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

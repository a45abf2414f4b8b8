package source

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

// CrawlError indicates the fallback crawl produced no usable topics: the
// origin site was unreachable after fetcher retries, or extraction yielded
// nothing.
type CrawlError struct {
	Reason string
	Err    error
}

func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fallback crawl failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fallback crawl failed: %s", e.Reason)
}

func (e *CrawlError) Unwrap() error { return e.Err }

// Endpoint pairs an origin-site URL with the extractor that understands its
// payload. Endpoints are tried in order; the first that yields topics wins.
type Endpoint struct {
	URL       string
	Extractor Extractor
}

// FallbackConfig controls the fallback crawler.
type FallbackConfig struct {
	Endpoints []Endpoint
	MaxTopics int
	Referer   string
	Cookie    string
}

// FallbackCrawler reconstructs an hourly snapshot directly from the origin
// site when the remote archive is stale.
type FallbackCrawler struct {
	fetcher Fetcher
	cfg     FallbackConfig
	clock   hotspot.Clock
	logger  *zap.Logger
}

// NewFallbackCrawler builds a FallbackCrawler.
func NewFallbackCrawler(fetcher Fetcher, cfg FallbackConfig, clock hotspot.Clock, logger *zap.Logger) *FallbackCrawler {
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackCrawler{
		fetcher: fetcher,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

// CrawlHourly fetches the origin site and normalizes the extracted topics
// into a snapshot schema-identical to the remote client's output, tagged
// with fallback provenance.
func (c *FallbackCrawler) CrawlHourly(ctx context.Context, date string, hour int) (*hotspot.Snapshot, error) {
	var (
		raw     []RawTopic
		lastErr error
	)
	for _, ep := range c.cfg.Endpoints {
		body, err := c.fetcher.Fetch(ctx, ep.URL, c.headers())
		if err != nil {
			lastErr = err
			c.logger.Warn("fallback endpoint unreachable", zap.String("url", ep.URL), zap.Error(err))
			continue
		}
		extracted, err := ep.Extractor.ExtractTopics(body)
		if err != nil {
			lastErr = err
			c.logger.Warn("fallback extraction failed", zap.String("url", ep.URL), zap.Error(err))
			continue
		}
		if len(extracted) > 0 {
			raw = extracted
			break
		}
		c.logger.Info("fallback endpoint yielded no topics", zap.String("url", ep.URL))
	}

	if len(raw) == 0 {
		if lastErr != nil {
			return nil, &CrawlError{Reason: "all endpoints failed", Err: lastErr}
		}
		return nil, &CrawlError{Reason: "extraction yielded zero topics"}
	}

	topics := c.normalize(raw)
	if len(topics) == 0 {
		return nil, &CrawlError{Reason: "no topics survived normalization"}
	}

	snap := &hotspot.Snapshot{
		Date:        date,
		Hour:        hour,
		GeneratedAt: c.clock.Now(),
		Source:      hotspot.OriginFallback,
		Topics:      topics,
	}
	if err := snap.Validate(); err != nil {
		return nil, &CrawlError{Reason: "normalized snapshot invalid", Err: err}
	}
	return snap, nil
}

// normalize dedups by title, canonicalizes hashtag titles, derives slugs,
// and re-ranks 1..N in the site's native order.
func (c *FallbackCrawler) normalize(raw []RawTopic) []hotspot.Topic {
	seen := make(map[string]struct{}, len(raw))
	topics := make([]hotspot.Topic, 0, c.cfg.MaxTopics)
	for _, item := range raw {
		title := hotspot.CanonicalHashtag(item.Title)
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		category := item.Category
		if category == "" {
			category = defaultCategory
		}
		topics = append(topics, hotspot.Topic{
			Rank:         len(topics) + 1,
			Title:        title,
			Hot:          item.Hot,
			Category:     category,
			Description:  item.Description,
			URL:          item.URL,
			Ads:          item.Ads,
			ReadCount:    item.ReadCount,
			DiscussCount: item.DiscussCount,
			Origin:       hotspot.OriginFallback,
			Slug:         hotspot.Slugify(title),
		})
		if len(topics) >= c.cfg.MaxTopics {
			break
		}
	}
	return topics
}

func (c *FallbackCrawler) headers() http.Header {
	h := http.Header{}
	h.Set("Accept-Language", "zh-CN,zh;q=0.9")
	if c.cfg.Referer != "" {
		h.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Cookie != "" {
		h.Set("Cookie", c.cfg.Cookie)
	}
	return h
}

package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

type stubExtractor struct {
	topics []RawTopic
	err    error
}

func (s stubExtractor) ExtractTopics(_ []byte) ([]RawTopic, error) {
	return s.topics, s.err
}

func newTestCrawler(fetcher Fetcher, endpoints []Endpoint, maxTopics int) *FallbackCrawler {
	return NewFallbackCrawler(fetcher, FallbackConfig{
		Endpoints: endpoints,
		MaxTopics: maxTopics,
		Cookie:    "SUB=test",
	}, fixedClock{now: time.Date(2025, 11, 3, 10, 50, 0, 0, time.UTC)}, nil)
}

func TestCrawlHourlyNormalizesTopics(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://site.example.com/hot": []byte("{}"),
	}}
	extractor := stubExtractor{topics: []RawTopic{
		{Title: "#话题一", Hot: 100, Category: "社会"},
		{Title: "话题二", Hot: 90},
		{Title: "#话题一#", Hot: 100},
		{Title: "", Hot: 5},
	}}
	crawler := newTestCrawler(fetcher, []Endpoint{{URL: "https://site.example.com/hot", Extractor: extractor}}, 50)

	snap, err := crawler.CrawlHourly(context.Background(), "2025-11-03", 10)
	require.NoError(t, err)
	require.Equal(t, hotspot.OriginFallback, snap.Source)
	require.Equal(t, "2025-11-03", snap.Date)
	require.Equal(t, 10, snap.Hour)

	// Duplicate hashtag forms collapse to one entry; the empty title drops.
	require.Len(t, snap.Topics, 2)
	require.Equal(t, "#话题一#", snap.Topics[0].Title)
	require.Equal(t, 1, snap.Topics[0].Rank)
	require.Equal(t, 2, snap.Topics[1].Rank)
	require.Equal(t, hotspot.OriginFallback, snap.Topics[0].Origin)
	require.Equal(t, "综合", snap.Topics[1].Category)
	require.Equal(t, hotspot.Slugify("#话题一#"), snap.Topics[0].Slug)

	// The configured cookie rides along on the request.
	require.Equal(t, "SUB=test", fetcher.headers.Get("Cookie"))
}

func TestCrawlHourlyCapsTopicCount(t *testing.T) {
	t.Parallel()

	raw := make([]RawTopic, 0, 10)
	for i := 0; i < 10; i++ {
		raw = append(raw, RawTopic{Title: "话题" + string(rune('A'+i)), Hot: int64(100 - i)})
	}
	fetcher := &fakeFetcher{responses: map[string][]byte{"https://site.example.com/hot": []byte("{}")}}
	crawler := newTestCrawler(fetcher, []Endpoint{{URL: "https://site.example.com/hot", Extractor: stubExtractor{topics: raw}}}, 3)

	snap, err := crawler.CrawlHourly(context.Background(), "2025-11-03", 10)
	require.NoError(t, err)
	require.Len(t, snap.Topics, 3)
	require.Equal(t, 3, snap.Topics[2].Rank)
}

func TestCrawlHourlyFallsThroughEndpoints(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://site.example.com/second": []byte("{}"),
	}}
	endpoints := []Endpoint{
		{URL: "https://site.example.com/first", Extractor: stubExtractor{}},
		{URL: "https://site.example.com/second", Extractor: stubExtractor{topics: []RawTopic{{Title: "话题", Hot: 1}}}},
	}
	crawler := newTestCrawler(fetcher, endpoints, 50)

	snap, err := crawler.CrawlHourly(context.Background(), "2025-11-03", 10)
	require.NoError(t, err)
	require.Len(t, snap.Topics, 1)
	require.Equal(t, []string{"https://site.example.com/first", "https://site.example.com/second"}, fetcher.requests)
}

func TestCrawlHourlyAllEndpointsUnreachable(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	crawler := newTestCrawler(fetcher, []Endpoint{{URL: "https://site.example.com/hot", Extractor: stubExtractor{}}}, 50)

	_, err := crawler.CrawlHourly(context.Background(), "2025-11-03", 10)
	require.Error(t, err)
	var crawlErr *CrawlError
	require.ErrorAs(t, err, &crawlErr)
}

func TestCrawlHourlyZeroTopicsIsError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{"https://site.example.com/hot": []byte("{}")}}
	crawler := newTestCrawler(fetcher, []Endpoint{{URL: "https://site.example.com/hot", Extractor: stubExtractor{}}}, 50)

	_, err := crawler.CrawlHourly(context.Background(), "2025-11-03", 10)
	var crawlErr *CrawlError
	require.ErrorAs(t, err, &crawlErr)
}

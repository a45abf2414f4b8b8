// Package source implements the two snapshot acquisition paths: the
// canonical remote archive client and the origin-site fallback crawler.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

// Fetcher is the rate-limited fetch primitive both acquisition paths use.
type Fetcher interface {
	Fetch(ctx context.Context, target string, headers http.Header) ([]byte, error)
}

// SchemaError indicates the remote archive payload was malformed. It is
// non-retriable for the attempt; the orchestrator decides whether to retry
// later or fall back.
type SchemaError struct {
	URL    string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: %s", e.URL, e.Reason)
}

// remoteTopic is the wire shape of one archive entry. Rank is optional;
// archives published before ranking was added rely on list position.
type remoteTopic struct {
	Rank         int    `json:"rank"`
	Title        string `json:"title"`
	Hot          int64  `json:"hot"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	Ads          bool   `json:"ads"`
	ReadCount    int64  `json:"readCount"`
	DiscussCount int64  `json:"discussCount"`
}

// RemoteClient fetches hourly snapshots from the canonical archive.
type RemoteClient struct {
	fetcher Fetcher
	baseURL string
	clock   hotspot.Clock
	logger  *zap.Logger
}

// NewRemoteClient builds a RemoteClient. baseURL is a template containing
// {date} and {hour} placeholders.
func NewRemoteClient(fetcher Fetcher, baseURL string, clock hotspot.Clock, logger *zap.Logger) *RemoteClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteClient{
		fetcher: fetcher,
		baseURL: baseURL,
		clock:   clock,
		logger:  logger,
	}
}

// FetchHourly retrieves and validates the archive snapshot for (date, hour).
func (c *RemoteClient) FetchHourly(ctx context.Context, date string, hour int) (*hotspot.Snapshot, error) {
	target := c.hourURL(date, hour)
	body, err := c.fetcher.Fetch(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch hourly archive: %w", err)
	}

	var raw []remoteTopic
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &SchemaError{URL: target, Reason: fmt.Sprintf("payload is not a topic list: %v", err)}
	}
	if len(raw) == 0 {
		return nil, &SchemaError{URL: target, Reason: "payload is an empty list"}
	}

	explicitRanks := false
	for _, item := range raw {
		if item.Rank != 0 {
			explicitRanks = true
			break
		}
	}

	topics := make([]hotspot.Topic, 0, len(raw))
	for i, item := range raw {
		if item.Title == "" {
			return nil, &SchemaError{URL: target, Reason: fmt.Sprintf("missing title at index %d", i)}
		}
		if item.URL == "" {
			return nil, &SchemaError{URL: target, Reason: fmt.Sprintf("missing url for %q", item.Title)}
		}
		if item.Hot < 0 {
			return nil, &SchemaError{URL: target, Reason: fmt.Sprintf("negative hot score for %q", item.Title)}
		}
		rank := i + 1
		if explicitRanks {
			if item.Rank != i+1 {
				return nil, &SchemaError{URL: target, Reason: fmt.Sprintf("ranks are not dense: got %d at index %d", item.Rank, i)}
			}
			rank = item.Rank
		}
		topics = append(topics, hotspot.Topic{
			Rank:         rank,
			Title:        item.Title,
			Hot:          item.Hot,
			Category:     item.Category,
			Description:  item.Description,
			URL:          item.URL,
			Ads:          item.Ads,
			ReadCount:    item.ReadCount,
			DiscussCount: item.DiscussCount,
			Origin:       hotspot.OriginRemote,
			Slug:         hotspot.Slugify(item.Title),
		})
	}

	snap := &hotspot.Snapshot{
		Date:        date,
		Hour:        hour,
		GeneratedAt: c.clock.Now(),
		Source:      hotspot.OriginRemote,
		Topics:      topics,
	}
	if err := snap.Validate(); err != nil {
		return nil, &SchemaError{URL: target, Reason: err.Error()}
	}
	return snap, nil
}

func (c *RemoteClient) hourURL(date string, hour int) string {
	target := strings.ReplaceAll(c.baseURL, "{date}", date)
	return strings.ReplaceAll(target, "{hour}", fmt.Sprintf("%02d", hour))
}

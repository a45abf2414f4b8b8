package source

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TangyRyan/Weibo-project-zy/internal/fetch"
	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

type fakeFetcher struct {
	responses map[string][]byte
	err       error
	requests  []string
	headers   http.Header
}

func (f *fakeFetcher) Fetch(_ context.Context, target string, headers http.Header) ([]byte, error) {
	f.requests = append(f.requests, target)
	f.headers = headers
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.responses[target]
	if !ok {
		return nil, &fetch.HTTPError{URL: target, StatusCode: 404}
	}
	return body, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

const testBaseURL = "https://archive.example.com/api/{date}/{hour}.json"

func TestFetchHourlyParsesArchive(t *testing.T) {
	t.Parallel()

	payload := []byte(`[
		{"title":"话题一","hot":1200000,"url":"https://s.example.com/a","category":"社会"},
		{"title":"话题二","hot":900000,"url":"https://s.example.com/b","ads":true}
	]`)
	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://archive.example.com/api/2025-11-03/09.json": payload,
	}}
	now := time.Date(2025, 11, 3, 9, 12, 0, 0, time.UTC)
	client := NewRemoteClient(fetcher, testBaseURL, fixedClock{now: now}, nil)

	snap, err := client.FetchHourly(context.Background(), "2025-11-03", 9)
	require.NoError(t, err)
	require.Equal(t, "2025-11-03", snap.Date)
	require.Equal(t, 9, snap.Hour)
	require.Equal(t, now, snap.GeneratedAt)
	require.Equal(t, hotspot.OriginRemote, snap.Source)
	require.Len(t, snap.Topics, 2)

	first := snap.Topics[0]
	require.Equal(t, 1, first.Rank)
	require.Equal(t, "话题一", first.Title)
	require.Equal(t, int64(1200000), first.Hot)
	require.Equal(t, hotspot.OriginRemote, first.Origin)
	require.NotEmpty(t, first.Slug)
	require.True(t, snap.Topics[1].Ads)
}

func TestFetchHourlyZeroPadsHour(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{}}
	client := NewRemoteClient(fetcher, testBaseURL, fixedClock{}, nil)

	_, err := client.FetchHourly(context.Background(), "2025-11-03", 7)
	require.Error(t, err)
	require.Equal(t, []string{"https://archive.example.com/api/2025-11-03/07.json"}, fetcher.requests)
}

func TestFetchHourlyNotPublishedYet(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{responses: map[string][]byte{}}
	client := NewRemoteClient(fetcher, testBaseURL, fixedClock{}, nil)

	_, err := client.FetchHourly(context.Background(), "2025-11-03", 9)
	require.Error(t, err)
	require.True(t, fetch.IsNotFound(err))
}

func TestFetchHourlyAcceptsExplicitDenseRanks(t *testing.T) {
	t.Parallel()

	payload := []byte(`[
		{"rank":1,"title":"a","hot":10,"url":"https://s/a"},
		{"rank":2,"title":"b","hot":9,"url":"https://s/b"}
	]`)
	fetcher := &fakeFetcher{responses: map[string][]byte{
		"https://archive.example.com/api/2025-11-03/09.json": payload,
	}}
	client := NewRemoteClient(fetcher, testBaseURL, fixedClock{}, nil)

	snap, err := client.FetchHourly(context.Background(), "2025-11-03", 9)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Topics[0].Rank)
	require.Equal(t, 2, snap.Topics[1].Rank)
}

func TestFetchHourlySchemaErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not a list":      `{"topics":[]}`,
		"empty list":      `[]`,
		"missing title":   `[{"hot":10,"url":"https://s/a"}]`,
		"missing url":     `[{"title":"a","hot":10}]`,
		"negative hot":    `[{"title":"a","hot":-1,"url":"https://s/a"}]`,
		"non-dense ranks": `[{"rank":1,"title":"a","hot":10,"url":"https://s/a"},{"rank":5,"title":"b","hot":9,"url":"https://s/b"}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fetcher := &fakeFetcher{responses: map[string][]byte{
				"https://archive.example.com/api/2025-11-03/09.json": []byte(payload),
			}}
			client := NewRemoteClient(fetcher, testBaseURL, fixedClock{}, nil)

			_, err := client.FetchHourly(context.Background(), "2025-11-03", 9)
			require.Error(t, err)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
		})
	}
}

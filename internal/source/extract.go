package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RawTopic is one unranked topic candidate produced by an Extractor before
// normalization.
type RawTopic struct {
	Title        string
	Category     string
	Description  string
	URL          string
	Hot          int64
	Ads          bool
	ReadCount    int64
	DiscussCount int64
}

// Extractor turns a fetched origin-site page into raw topic candidates.
// Implementations are site-specific and swappable for testing.
type Extractor interface {
	ExtractTopics(page []byte) ([]RawTopic, error)
}

const defaultCategory = "综合"

// hotSearchExtractor parses the hot-search JSON side API.
type hotSearchExtractor struct {
	searchURL string
}

// NewHotSearchExtractor builds the JSON API extractor. searchURL is the
// base used to construct per-topic search links.
func NewHotSearchExtractor(searchURL string) Extractor {
	return &hotSearchExtractor{searchURL: searchURL}
}

type hotSearchPayload struct {
	Data struct {
		Realtime []hotSearchEntry `json:"realtime"`
	} `json:"data"`
}

type hotSearchEntry struct {
	Word       string `json:"word"`
	WordScheme string `json:"word_scheme"`
	LabelName  string `json:"label_name"`
	IconDesc   string `json:"icon_desc"`
	Note       string `json:"note"`
	Num        int64  `json:"num"`
	Flag       int    `json:"flag"`
}

func (e *hotSearchExtractor) ExtractTopics(page []byte) ([]RawTopic, error) {
	var payload hotSearchPayload
	if err := json.Unmarshal(page, &payload); err != nil {
		return nil, fmt.Errorf("parse hot search payload: %w", err)
	}

	topics := make([]RawTopic, 0, len(payload.Data.Realtime))
	for _, entry := range payload.Data.Realtime {
		title := strings.TrimSpace(entry.Word)
		if title == "" {
			continue
		}
		category := entry.LabelName
		if category == "" {
			category = entry.IconDesc
		}
		if category == "" {
			category = defaultCategory
		}
		description := ""
		if entry.Note != "" && entry.Note != title {
			description = entry.Note
		}
		keyword := entry.WordScheme
		if keyword == "" {
			keyword = title
		}
		topics = append(topics, RawTopic{
			Title:       title,
			Category:    category,
			Description: description,
			URL:         e.topicURL(keyword),
			Hot:         entry.Num,
			// 荐 marks promoted entries; flag 7 is the paid placement bit.
			Ads: entry.IconDesc == "荐" || entry.Flag == 7,
		})
	}
	return topics, nil
}

func (e *hotSearchExtractor) topicURL(keyword string) string {
	if strings.HasPrefix(keyword, "http") {
		return keyword
	}
	return e.searchURL + "?q=" + url.QueryEscape(keyword)
}

// summaryExtractor parses the hot topics summary table HTML.
type summaryExtractor struct {
	baseURL string
}

// NewSummaryExtractor builds the HTML table extractor. baseURL anchors
// relative topic links.
func NewSummaryExtractor(baseURL string) Extractor {
	return &summaryExtractor{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (e *summaryExtractor) ExtractTopics(page []byte) ([]RawTopic, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse summary html: %w", err)
	}

	var topics []RawTopic
	doc.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		link := row.Find(`td.td-02 a`).FilterFunction(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			return !strings.Contains(href, "javascript:void(0);")
		}).First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		hot, category := splitHotAndCategory(row.Find("td.td-02 span").Text())
		topics = append(topics, RawTopic{
			Title:       title,
			Category:    category,
			Description: strings.TrimSpace(row.Find("td.td-03").Text()),
			URL:         e.absoluteURL(href),
			Hot:         hot,
		})
	})
	return topics, nil
}

func (e *summaryExtractor) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return e.baseURL + href
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// splitHotAndCategory pulls the numeric heat value and category label out
// of the mixed "category 12345" span text.
func splitHotAndCategory(text string) (int64, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, defaultCategory
	}
	match := trailingDigits.FindStringSubmatch(text)
	if match == nil {
		return 0, text
	}
	hot, _ := strconv.ParseInt(match[1], 10, 64)
	category := strings.TrimSpace(strings.TrimSuffix(text, match[1]))
	if category == "" {
		category = defaultCategory
	}
	return hot, category
}

// ParseCompactNumber converts engagement counts using the 万/亿 suffixes
// into plain integers.
func ParseCompactNumber(val string) int64 {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	if strings.Contains(val, "亿") {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(val, "亿", ""), 64); err == nil {
			return int64(f * 100_000_000)
		}
		return 0
	}
	if strings.Contains(val, "万") {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(val, "万", ""), 64); err == nil {
			return int64(f * 10_000)
		}
		return 0
	}
	digits := regexp.MustCompile(`\d+`).FindString(val)
	if digits == "" {
		return 0
	}
	n, _ := strconv.ParseInt(digits, 10, 64)
	return n
}

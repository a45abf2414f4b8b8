// Package hotspot defines the core types shared across the acquisition and
// distribution subsystems.
package hotspot

import (
	"fmt"
	"time"
)

// ChinaTZ is the calendar timezone for hour slots. The trending archive is
// keyed by Beijing local time, so every date/hour derivation goes through it.
var ChinaTZ = time.FixedZone("CST", 8*60*60)

// DateLayout is the wire and on-disk date format.
const DateLayout = "2006-01-02"

// Origin records which acquisition path produced a Topic or Snapshot.
type Origin string

// Provenance values.
const (
	OriginRemote   Origin = "remote"
	OriginFallback Origin = "fallback"
)

// Topic is one ranked trending item with heat and engagement metadata.
// The JSON tags define the wire-level field set of the push protocol.
type Topic struct {
	Rank         int    `json:"rank"`
	Title        string `json:"title"`
	Hot          int64  `json:"hot"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`
	URL          string `json:"url"`
	Ads          bool   `json:"ads"`
	ReadCount    int64  `json:"readCount"`
	DiscussCount int64  `json:"discussCount"`
	Origin       Origin `json:"origin"`

	// Slug is derived from Title and used for archive paths, never sent to
	// clients.
	Slug string `json:"-"`
}

// Snapshot is the canonical set of ranked topics for one calendar hour.
type Snapshot struct {
	Date        string    `json:"date"`
	Hour        int       `json:"hour"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      Origin    `json:"source"`
	Topics      []Topic   `json:"topics"`
}

// Validate checks the snapshot invariants: a parseable date, an hour in
// 0-23, and ranks forming a dense 1..N sequence.
func (s *Snapshot) Validate() error {
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return fmt.Errorf("invalid snapshot date %q: %w", s.Date, err)
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("invalid snapshot hour %d", s.Hour)
	}
	for i, topic := range s.Topics {
		if topic.Rank != i+1 {
			return fmt.Errorf("rank gap at position %d: got %d, want %d", i, topic.Rank, i+1)
		}
		if topic.Title == "" {
			return fmt.Errorf("empty title at rank %d", topic.Rank)
		}
	}
	return nil
}

// Truncated returns a copy of the topic sequence capped at limit entries.
// A non-positive limit returns all topics. The returned slice is always a
// fresh copy so callers can hold it across later commits.
func (s *Snapshot) Truncated(limit int) []Topic {
	n := len(s.Topics)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Topic, n)
	copy(out, s.Topics[:n])
	return out
}

// Slot identifies one calendar hour.
type Slot struct {
	Date string
	Hour int
}

// SlotOf derives the hour slot containing t, in the archive calendar.
func SlotOf(t time.Time) Slot {
	local := t.In(ChinaTZ)
	return Slot{Date: local.Format(DateLayout), Hour: local.Hour()}
}

// Start returns the top of the slot's hour.
func (s Slot) Start() time.Time {
	day, err := time.ParseInLocation(DateLayout, s.Date, ChinaTZ)
	if err != nil {
		return time.Time{}
	}
	return day.Add(time.Duration(s.Hour) * time.Hour)
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %02d", s.Date, s.Hour)
}

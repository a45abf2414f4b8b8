// Package broadcast pushes settled snapshots to websocket subscribers and
// answers their snapshot and preference requests.
package broadcast

import (
	"encoding/json"
	"time"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

// Server-to-client message types.
const (
	msgSnapshot = "snapshot"
	msgUpdate   = "update"
	msgEmpty    = "empty"
	msgError    = "error"
	msgAck      = "ack"
	msgPong     = "pong"
)

// Client-to-server actions.
const (
	actionPing            = "ping"
	actionSetLimit        = "set_limit"
	actionRequestSnapshot = "request_snapshot"
)

// topicsPayload carries a full ranked topic set, for both the initial
// snapshot and subsequent updates.
type topicsPayload struct {
	Type        string          `json:"type"`
	Date        string          `json:"date"`
	Hour        int             `json:"hour"`
	GeneratedAt time.Time       `json:"generated_at"`
	Source      hotspot.Origin  `json:"source"`
	Total       int             `json:"total"`
	Topics      []hotspot.Topic `json:"topics"`
}

// noticePayload covers empty, error, ack, and pong responses.
type noticePayload struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Date    string `json:"date,omitempty"`
	Hour    *int   `json:"hour,omitempty"`
}

// clientRequest is the envelope for everything a subscriber sends.
type clientRequest struct {
	Action string `json:"action"`
	Date   string `json:"date,omitempty"`
	Hour   *int   `json:"hour,omitempty"`
	Value  *int   `json:"value,omitempty"`
}

func encodeTopics(msgType string, snap *hotspot.Snapshot, limit int) []byte {
	topics := snap.Truncated(limit)
	data, _ := json.Marshal(topicsPayload{
		Type:        msgType,
		Date:        snap.Date,
		Hour:        snap.Hour,
		GeneratedAt: snap.GeneratedAt,
		Source:      snap.Source,
		Total:       len(snap.Topics),
		Topics:      topics,
	})
	return data
}

func encodeNotice(msgType, message string) []byte {
	data, _ := json.Marshal(noticePayload{Type: msgType, Message: message})
	return data
}

func encodeEmptySlot(date string, hour int) []byte {
	h := hour
	data, _ := json.Marshal(noticePayload{
		Type:    msgEmpty,
		Message: "no snapshot archived for the requested hour",
		Date:    date,
		Hour:    &h,
	})
	return data
}

package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
	"github.com/TangyRyan/Weibo-project-zy/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// limit is read by the hub goroutine and written by readPump.
	limit atomic.Int32

	logger *zap.Logger
}

func newClient(h *Hub, conn *websocket.Conn, limit int) *Client {
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		logger: h.logger,
	}
	c.limit.Store(int32(limit))
	return c
}

// Limit returns the client's current topic limit.
func (c *Client) Limit() int {
	return int(c.limit.Load())
}

// readPump pumps subscriber requests from the connection. A malformed or
// unknown request gets an error frame; the connection stays open.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		// Plain-text keepalive, checked before JSON decoding so a bare
		// "ping" frame is never treated as a malformed request.
		if strings.EqualFold(string(bytes.TrimSpace(message)), "ping") {
			c.reply(encodeNotice(msgPong, ""))
			continue
		}

		var req clientRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(encodeNotice(msgError, "malformed request"))
			continue
		}
		c.handle(&req)
	}
}

func (c *Client) handle(req *clientRequest) {
	switch req.Action {
	case actionPing:
		c.reply(encodeNotice(msgPong, ""))

	case actionSetLimit:
		c.handleSetLimit(req)

	case actionRequestSnapshot:
		c.handleRequestSnapshot(req)

	default:
		c.reply(encodeNotice(msgError, fmt.Sprintf("unknown action %q", req.Action)))
	}
}

// handleSetLimit updates the client's topic limit. An out-of-range value
// is rejected without altering the current preference.
func (c *Client) handleSetLimit(req *clientRequest) {
	if req.Value == nil {
		c.reply(encodeNotice(msgError, "set_limit requires a value"))
		return
	}
	v := *req.Value
	if v < 1 || v > c.hub.cfg.MaxLimit {
		c.reply(encodeNotice(msgError, fmt.Sprintf("limit must be between 1 and %d", c.hub.cfg.MaxLimit)))
		return
	}
	c.limit.Store(int32(v))
	c.reply(encodeNotice(msgAck, fmt.Sprintf("limit set to %d", v)))
}

// handleRequestSnapshot serves an archived hour on demand.
func (c *Client) handleRequestSnapshot(req *clientRequest) {
	if req.Date == "" || req.Hour == nil {
		c.reply(encodeNotice(msgError, "request_snapshot requires date and hour"))
		return
	}
	if _, err := time.Parse(hotspot.DateLayout, req.Date); err != nil {
		c.reply(encodeNotice(msgError, fmt.Sprintf("invalid date %q", req.Date)))
		return
	}
	hour := *req.Hour
	if hour < 0 || hour > 23 {
		c.reply(encodeNotice(msgError, fmt.Sprintf("invalid hour %d", hour)))
		return
	}
	if c.hub.store == nil {
		c.reply(encodeEmptySlot(req.Date, hour))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.hub.store.Load(ctx, req.Date, hour)
	if err != nil {
		if errors.Is(err, hotspot.ErrNotArchived) {
			c.reply(encodeEmptySlot(req.Date, hour))
			return
		}
		c.logger.Error("snapshot lookup failed",
			zap.String("date", req.Date), zap.Int("hour", hour), zap.Error(err))
		c.reply(encodeNotice(msgError, "snapshot lookup failed"))
		return
	}
	c.reply(encodeTopics(msgSnapshot, snap, c.Limit()))
	metrics.ObserveBroadcast(msgSnapshot)
}

// reply queues a frame for this client only.
func (c *Client) reply(payload []byte) {
	select {
	case c.send <- payload:
	default:
		// Queue full. writePump or the hub will notice and drop the client.
	}
}

// writePump pumps queued frames to the connection and keeps the peer alive
// with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

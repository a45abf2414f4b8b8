package broadcast

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
	"github.com/TangyRyan/Weibo-project-zy/internal/metrics"
)

// HubConfig tunes per-client behavior.
type HubConfig struct {
	// DefaultLimit is the topic count sent to clients that did not ask for
	// a specific limit.
	DefaultLimit int
	// MaxLimit caps what set_limit and the ?limit query parameter accept.
	MaxLimit int
	// SendBuffer is the per-client outbound queue depth. A client whose
	// queue fills is dropped.
	SendBuffer int
}

func (c HubConfig) withDefaults() HubConfig {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 30
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 60
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// commitQueueDepth covers a full lookback day of backfill settlements
// arriving in one burst.
const commitQueueDepth = 64

// commitEnqueueTimeout bounds how long Commit may block the acquisition
// loop when the queue is full.
const commitEnqueueTimeout = time.Second

// Hub maintains the set of connected subscribers and fans settled
// snapshots out to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	commits    chan *hotspot.Snapshot

	cache  *hotspot.Cache
	store  hotspot.Store
	clock  hotspot.Clock
	cfg    HubConfig
	logger *zap.Logger
	mutex  sync.RWMutex
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// NewHub builds a Hub. The store serves request_snapshot lookups; the
// cache serves the initial push on connect.
func NewHub(cache *hotspot.Cache, st hotspot.Store, clock hotspot.Clock, cfg HubConfig, logger *zap.Logger) *Hub {
	if clock == nil {
		clock = wallClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commits:    make(chan *hotspot.Snapshot, commitQueueDepth),
		cache:      cache,
		store:      st,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Commit hands a settled snapshot to the hub for distribution. The queue
// is deep enough for a full backfill burst; if the hub still cannot drain
// it, Commit waits briefly before dropping so the acquisition loop never
// stalls indefinitely.
func (h *Hub) Commit(snap *hotspot.Snapshot) {
	select {
	case h.commits <- snap:
		return
	default:
	}
	timer := time.NewTimer(commitEnqueueTimeout)
	defer timer.Stop()
	select {
	case h.commits <- snap:
	case <-timer.C:
		h.logger.Warn("commit queue full, dropping push",
			zap.String("date", snap.Date), zap.Int("hour", snap.Hour))
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetConnectedClients(count)
			h.logger.Info("client connected", zap.Int("client_count", count))

		case client := <-h.unregister:
			h.mutex.Lock()
			delete(h.clients, client)
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.SetConnectedClients(count)
			h.logger.Info("client disconnected", zap.Int("client_count", count))

		case snap := <-h.commits:
			h.push(snap)
		}
	}
}

// push fans an update out to every connected client, truncated per client
// preference. Clients with a full send queue are dropped rather than
// allowed to stall the rest. Dropping closes the connection, never the
// send channel; the client's own pumps may still write to it while they
// unwind.
func (h *Hub) push(snap *hotspot.Snapshot) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		payload := encodeTopics(msgUpdate, snap, client.Limit())
		select {
		case client.send <- payload:
			metrics.ObserveBroadcast(msgUpdate)
		default:
			delete(h.clients, client)
			client.conn.Close()
			h.logger.Warn("dropping slow client", zap.Int("client_count", len(h.clients)))
		}
	}
	metrics.SetConnectedClients(len(h.clients))
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		client.conn.Close()
	}
	metrics.SetConnectedClients(0)
}

// ServeWS upgrades an HTTP request into a subscriber connection. An
// optional ?limit= query parameter seeds the client's topic limit.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	limit := h.cfg.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 && parsed <= h.cfg.MaxLimit {
			limit = parsed
		}
	}

	client := newClient(h, conn, limit)

	// Queue the initial state before the pumps start so it is always the
	// first frame the subscriber sees.
	if snap := h.latestSnapshot(); snap != nil {
		client.send <- encodeTopics(msgSnapshot, snap, client.Limit())
		metrics.ObserveBroadcast(msgSnapshot)
	} else {
		client.send <- encodeNotice(msgEmpty, "no snapshot available yet")
		metrics.ObserveBroadcast(msgEmpty)
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// latestSnapshot prefers the in-memory cache and falls back to the archive
// for the current hour, which covers a freshly restarted process.
func (h *Hub) latestSnapshot() *hotspot.Snapshot {
	if h.cache != nil {
		if snap := h.cache.Latest(); snap != nil {
			return snap
		}
	}
	if h.store == nil {
		return nil
	}
	slot := hotspot.SlotOf(h.clock.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := h.store.Load(ctx, slot.Date, slot.Hour)
	if err != nil {
		return nil
	}
	return snap
}

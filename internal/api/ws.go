package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qiaofuyo/video-slice/internal/events"
	"github.com/qiaofuyo/video-slice/internal/media"
	"github.com/qiaofuyo/video-slice/internal/player"
	"github.com/qiaofuyo/video-slice/internal/window"
	"github.com/qiaofuyo/video-slice/internal/workspace"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
	wsReadLimit  = 64 * 1024
)

// Inbound message types sent by pages.
const (
	msgHello    = "hello"
	msgMetadata = "metadata"
	msgProgress = "progress"
	msgWindow   = "window"
	msgViewport = "viewport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

// Hub tracks WebSocket clients. It forwards bus events to every client and
// implements player.Sender for the clients that announced themselves as
// player pages.
type Hub struct {
	bus    *events.Bus
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	player atomic.Bool
	once   sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { c.conn.Close() })
}

func NewHub(bus *events.Bus, logger *slog.Logger) *Hub {
	return &Hub{bus: bus, logger: logger, clients: make(map[*wsClient]struct{})}
}

// Send implements player.Sender. It never blocks; a player whose buffer is
// full misses the command and is not counted.
func (h *Hub) Send(cmd player.Command) int {
	data, err := json.Marshal(events.Event{Type: events.TypePlayer, Timestamp: time.Now().UnixMilli(), Data: cmd})
	if err != nil {
		h.logger.Error("failed to encode player command", "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for c := range h.clients {
		if !c.player.Load() {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn("player send buffer full, dropping command", "op", cmd.Op)
		}
	}
	return delivered
}

// Players counts connected player pages.
func (h *Hub) Players() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if c.player.Load() {
			n++
		}
	}
	return n
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister reports whether c was the last connected player page.
func (h *Hub) unregister(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	if !c.player.Load() {
		return false
	}
	for other := range h.clients {
		if other.player.Load() {
			return false
		}
	}
	return true
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// inbound is a page-to-agent message.
type inbound struct {
	Type      string           `json:"type"`
	Streaming bool             `json:"streaming,omitempty"`
	Viewport  *window.Viewport `json:"viewport,omitempty"`
	Handle    string           `json:"handle,omitempty"`
	Position  float64          `json:"position,omitempty"`
	Paused    bool             `json:"paused,omitempty"`
	Duration  float64          `json:"duration,omitempty"`
	Width     int              `json:"width,omitempty"`
	Height    int              `json:"height,omitempty"`
	Geometry  *window.Geometry `json:"geometry,omitempty"`
}

// wsHandler upgrades to a WebSocket. Browsers cannot set headers on the
// upgrade, so the API token travels in the token query parameter.
func wsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := checkToken(r.Context(), cfg.Repository, r.URL.Query().Get("token"))
		if err != nil {
			cfg.Logger.Error("failed to get auth token from config", "error", err)
			WriteError(w, http.StatusInternalServerError, "auth configuration error", "INTERNAL_ERROR")
			return
		}
		if !ok {
			WriteError(w, http.StatusUnauthorized, "invalid token", "UNAUTHORIZED")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
		cfg.Hub.register(c)
		events, unsubscribe := cfg.Hub.bus.Subscribe(wsSendBuffer)
		cfg.Logger.Info("websocket client connected", "remote", r.RemoteAddr)

		if snap, err := cfg.Workspace.Snapshot(r.Context()); err == nil {
			if data, err := json.Marshal(eventConnected(snap)); err == nil {
				c.send <- data
			}
		}

		go writePump(c, events, cfg.Logger)
		readPump(r, c, cfg)

		unsubscribe()
		if cfg.Hub.unregister(c) {
			if err := cfg.Workspace.PlayerGone(r.Context()); err != nil {
				cfg.Logger.Debug("player gone not recorded", "error", err)
			}
		}
		c.close()
		cfg.Logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}
}

func writePump(c *wsClient, bus <-chan events.Event, logger *slog.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	write := func(messageType int, data []byte) bool {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(messageType, data); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case data := <-c.send:
			if !write(websocket.TextMessage, data) {
				return
			}
		case e, ok := <-bus:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				logger.Error("failed to encode event", "type", e.Type, "error", err)
				continue
			}
			if !write(websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func readPump(r *http.Request, c *wsClient, cfg ServerConfig) {
	ctx := r.Context()
	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				cfg.Logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var err error
		switch msg.Type {
		case msgHello:
			c.player.Store(true)
			if msg.Viewport != nil {
				err = cfg.Workspace.SetViewport(ctx, *msg.Viewport)
			}
			if err == nil {
				err = cfg.Workspace.PlayerHello(ctx, msg.Streaming)
			}
		case msgMetadata:
			_, err = cfg.Workspace.MetadataReady(ctx, workspace.MetadataReport{
				Handle:   msg.Handle,
				Metadata: media.Metadata{Duration: msg.Duration, Width: msg.Width, Height: msg.Height},
			})
		case msgProgress:
			_, err = cfg.Workspace.Progress(ctx, workspace.ProgressReport{Handle: msg.Handle, Position: msg.Position, Paused: msg.Paused})
		case msgWindow:
			if msg.Geometry != nil {
				err = cfg.Workspace.SaveWindow(ctx, *msg.Geometry)
			}
		case msgViewport:
			if msg.Viewport != nil {
				err = cfg.Workspace.SetViewport(ctx, *msg.Viewport)
			}
		default:
			cfg.Logger.Debug("ignoring websocket message", "type", msg.Type)
		}
		if err != nil {
			cfg.Logger.Debug("websocket message failed", "type", msg.Type, "error", err)
		}
	}
}

func eventConnected(snap workspace.Snapshot) events.Event {
	return events.Event{Type: events.TypeConnected, Timestamp: time.Now().UnixMilli(), Data: snap}
}

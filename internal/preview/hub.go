package preview

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hanko-field/cms/internal/platform/metrics"
)

// Role identifies which surface a relay connection belongs to.
type Role string

const (
	RoleEditor  Role = "editor"
	RolePreview Role = "preview"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var errHubClosed = errors.New("preview: hub closed")

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins restricts upgrades to these Origin values. Without it the
// Origin host must match the request host.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *Hub) {
		for _, origin := range origins {
			if normalized := normalizeOrigin(origin); normalized != "" {
				h.allowedOrigins[normalized] = struct{}{}
			}
		}
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithHubMetrics records connections and relayed messages.
func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// Hub relays preview messages between the editor and preview connections of a session.
// Edit requests only travel preview to editor and updates only editor to preview.
type Hub struct {
	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}
	logger         *zap.Logger
	metrics        *metrics.Metrics

	mu     sync.Mutex
	rooms  map[string]map[Role]*client
	closed bool
}

type client struct {
	id      string
	session string
	role    Role
	conn    *websocket.Conn
	send    chan []byte
	once    sync.Once
}

// NewHub builds a relay hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		allowedOrigins: make(map[string]struct{}),
		logger:         zap.NewNop(),
		rooms:          make(map[string]map[Role]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(h.allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	_, ok := h.allowedOrigins[normalizeOrigin(r.Header.Get("Origin"))]
	return ok
}

func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// ServeHTTP upgrades a request with ?session=<id>&role=editor|preview and starts relaying.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := strings.TrimSpace(r.URL.Query().Get("session"))
	role := Role(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("role"))))
	if session == "" || (role != RoleEditor && role != RolePreview) {
		http.Error(w, "session and role (editor or preview) are required", http.StatusBadRequest)
		return
	}
	if h.upgrader.CheckOrigin != nil && !h.upgrader.CheckOrigin(r) {
		h.logger.Warn("preview origin rejected", zap.String("origin", r.Header.Get("Origin")))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("preview upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:      ulid.Make().String(),
		session: session,
		role:    role,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
	if err := h.register(c); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errHubClosed
	}
	room := h.rooms[c.session]
	if room == nil {
		room = make(map[Role]*client, 2)
		h.rooms[c.session] = room
	}
	if previous := room[c.role]; previous != nil {
		h.logger.Info("preview connection replaced", zap.String("session", c.session), zap.String("role", string(c.role)))
		h.detachLocked(previous)
	}
	room[c.role] = c
	h.metrics.AddPreviewConnection(string(c.role), 1)
	h.logger.Debug("preview connection opened",
		zap.String("session", c.session),
		zap.String("role", string(c.role)),
		zap.String("connection", c.id),
	)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.rooms[c.session]; room != nil && room[c.role] == c {
		h.detachLocked(c)
	}
}

// detachLocked removes c from its room and closes its send queue, which ends its writer.
func (h *Hub) detachLocked(c *client) {
	room := h.rooms[c.session]
	if room != nil && room[c.role] == c {
		delete(room, c.role)
		if len(room) == 0 {
			delete(h.rooms, c.session)
		}
		h.metrics.AddPreviewConnection(string(c.role), -1)
	}
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("preview connection error", zap.String("session", c.session), zap.Error(err))
			}
			return
		}
		h.route(c, payload)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// route forwards a decoded message to the peer surface. Unknown, malformed and wrong-direction
// messages are dropped, as are messages for a peer that is not connected or not keeping up.
func (h *Hub) route(from *client, payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		h.metrics.IncPreviewMessage("invalid", "dropped")
		return
	}

	var target Role
	switch msg.(type) {
	case EditRequest:
		if from.role != RolePreview {
			h.metrics.IncPreviewMessage(TypeEditRequest, "dropped")
			return
		}
		target = RoleEditor
	case PreviewUpdate:
		if from.role != RoleEditor {
			h.metrics.IncPreviewMessage(TypePreviewUpdate, "dropped")
			return
		}
		target = RolePreview
	}

	encoded, err := Encode(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	peer := h.rooms[from.session][target]
	if peer == nil {
		h.metrics.IncPreviewMessage(msg.messageType(), "dropped")
		return
	}
	select {
	case peer.send <- encoded:
		h.metrics.IncPreviewMessage(msg.messageType(), "relayed")
	default:
		h.metrics.IncPreviewMessage(msg.messageType(), "dropped")
	}
}

// Connected reports whether a role is connected for a session.
func (h *Hub) Connected(session string, role Role) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[session][role] != nil
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, room := range h.rooms {
		for _, c := range room {
			h.detachLocked(c)
		}
	}
}

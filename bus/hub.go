package bus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CreativeUnicorns/leafprefs"
)

// WriteTimeout bounds every frame written to a WebSocket peer.
const WriteTimeout = 10 * time.Second

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(logger leafprefs.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithCheckOrigin replaces the origin check used when upgrading.
func WithCheckOrigin(check func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = check
	}
}

// WithPublishHook registers fn to be called for every payload the hub routes.
func WithPublishHook(fn func(channel string)) HubOption {
	return func(h *Hub) {
		h.onPublish = fn
	}
}

type hubConn struct {
	id       string
	ws       *websocket.Conn
	writeMu  sync.Mutex
	channels map[string]struct{}
}

// Hub routes channels between WebSocket leaves and host-side handlers.
// It is an http.Handler for leaves and a Bus for the host process.
type Hub struct {
	upgrader  websocket.Upgrader
	logger    leafprefs.Logger
	onPublish func(channel string)

	local fanout

	mu       sync.RWMutex
	conns    map[string]*hubConn
	channels map[string]map[string]*hubConn
	closed   bool
}

// NewHub creates a Hub that accepts any origin.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		logger:   leafprefs.NewNopLogger(),
		conns:    make(map[string]*hubConn),
		channels: make(map[string]map[string]*hubConn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves frames until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade error", "error", err)
		return
	}

	c := &hubConn{
		id:       uuid.NewString(),
		ws:       ws,
		channels: make(map[string]struct{}),
	}
	if !h.register(c) {
		_ = ws.Close()
		return
	}
	defer h.unregister(c)

	h.logger.Info("ws: leaf connected", "conn", c.id)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("ws: read error", "conn", c.id, "error", err)
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			h.logger.Error("ws: decode error", "conn", c.id, "error", err)
			continue
		}

		switch env.Type {
		case TypeSubscribe:
			h.subscribeConn(c, env.Channel)
		case TypeUnsubscribe:
			h.unsubscribeConn(c, env.Channel)
		case TypePublish:
			h.route(r.Context(), env.Channel, env.Payload)
		default:
			h.logger.Warn("ws: unexpected frame", "conn", c.id, "type", env.Type)
		}
	}
}

func (h *Hub) register(c *hubConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	return true
}

func (h *Hub) unregister(c *hubConn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	for channel := range c.channels {
		h.dropLocked(c, channel)
	}
	h.mu.Unlock()

	_ = c.ws.Close()
	h.logger.Info("ws: leaf disconnected", "conn", c.id)
}

func (h *Hub) subscribeConn(c *hubConn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]*hubConn)
		h.channels[channel] = subs
	}
	subs[c.id] = c
	c.channels[channel] = struct{}{}
	h.logger.Debug("ws: subscribed", "conn", c.id, "channel", channel, "total", len(subs))
}

func (h *Hub) unsubscribeConn(c *hubConn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c, channel)
	h.logger.Debug("ws: unsubscribed", "conn", c.id, "channel", channel)
}

func (h *Hub) dropLocked(c *hubConn, channel string) {
	delete(c.channels, channel)
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// route delivers payload to host handlers and to every subscribed connection.
func (h *Hub) route(_ context.Context, channel, payload string) {
	if h.onPublish != nil {
		h.onPublish(channel)
	}
	h.local.observe(channel, payload)
	h.local.deliver(channel, payload)

	h.mu.RLock()
	subs := make([]*hubConn, 0, len(h.channels[channel]))
	for _, c := range h.channels[channel] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	data, err := NewEnvelope(TypeMessage, channel, payload).Encode()
	if err != nil {
		h.logger.Error("ws: encode envelope error", "error", err)
		return
	}
	for _, c := range subs {
		if err := c.write(data); err != nil {
			h.logger.Warn("ws: broadcast error (leaf likely disconnected)", "conn", c.id, "channel", channel, "error", err)
		}
	}
}

func (c *hubConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Publish routes payload as if a leaf had published it.
func (h *Hub) Publish(ctx context.Context, channel, payload string) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return leafprefs.ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h.route(ctx, channel, payload)
	return nil
}

// Subscribe registers a host-side handler on channel.
func (h *Hub) Subscribe(channel string, handler leafprefs.Handler) (leafprefs.Subscription, error) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil, leafprefs.ErrBusClosed
	}
	id, _ := h.local.add(channel, handler)
	return newSubscription(channel, func() error {
		h.local.remove(channel, id)
		return nil
	}), nil
}

// Tap registers a host-side handler for every payload routed by the hub,
// including those published by leaves.
func (h *Hub) Tap(handler leafprefs.Handler) (leafprefs.Subscription, error) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil, leafprefs.ErrBusClosed
	}
	id := h.local.addTap(handler)
	return newSubscription(TapChannel, func() error {
		h.local.removeTap(id)
		return nil
	}), nil
}

// Connections returns the number of connected leaves.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Subscribers returns the number of connections and host handlers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	remote := len(h.channels[channel])
	h.mu.RUnlock()
	return remote + h.local.count(channel)
}

// Close disconnects every leaf and rejects further use.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "host shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	}
	return nil
}

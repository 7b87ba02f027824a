package bus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CreativeUnicorns/leafprefs"
)

// HandshakeTimeout bounds the WebSocket handshake of Dial.
const HandshakeTimeout = 10 * time.Second

// Client is the leaf side of a Hub. Published payloads travel through the hub
// and come back to the client's own handlers when it is subscribed.
type Client struct {
	conn   *websocket.Conn
	logger leafprefs.Logger

	writeMu sync.Mutex
	subs    fanout

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Dial connects to the hub at url (ws:// or wss://).
func Dial(ctx context.Context, url string, logger leafprefs.Logger) (*Client, error) {
	if logger == nil {
		logger = leafprefs.NewNopLogger()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			logger.Error("ws: connection failed", "status", resp.StatusCode, "error", err)
		} else {
			logger.Error("ws: connection failed", "error", err)
		}
		return nil, fmt.Errorf("%w: %v", leafprefs.ErrBusUnavailable, err)
	}

	c := &Client{
		conn:   conn,
		logger: logger,
		done:   make(chan struct{}),
	}
	go c.readMessages()

	logger.Info("ws: connected to host", "url", url)
	return c, nil
}

// Publish sends payload to the hub for routing.
func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.writeEnvelope(NewEnvelope(TypePublish, channel, payload))
}

// Subscribe registers handler on channel. The hub is told about a channel
// when its first handler arrives and when its last one leaves.
func (c *Client) Subscribe(channel string, handler leafprefs.Handler) (leafprefs.Subscription, error) {
	id, first := c.subs.add(channel, handler)
	if first {
		if err := c.writeEnvelope(NewEnvelope(TypeSubscribe, channel, "")); err != nil {
			c.subs.remove(channel, id)
			return nil, err
		}
	}
	return newSubscription(channel, func() error {
		removed, last := c.subs.remove(channel, id)
		if !removed || !last {
			return nil
		}
		err := c.writeEnvelope(NewEnvelope(TypeUnsubscribe, channel, ""))
		if errors.Is(err, leafprefs.ErrBusClosed) {
			return nil
		}
		return err
	}), nil
}

// Done is closed once the connection to the hub is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close disconnects from the hub and waits for the read loop to stop.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	_ = c.conn.Close()
	<-c.done
	c.logger.Info("ws: disconnected from host")
	return nil
}

func (c *Client) readMessages() {
	defer close(c.done)
	defer c.conn.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.closed = true
			c.mu.Unlock()
			if !closed && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("ws: read error", "error", err)
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.logger.Error("ws: decode error", "error", err)
			continue
		}
		if env.Type != TypeMessage {
			c.logger.Debug("ws: ignoring frame", "type", env.Type)
			continue
		}
		c.subs.deliver(env.Channel, env.Payload)
	}
}

func (c *Client) writeEnvelope(env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return leafprefs.ErrBusClosed
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	err = c.conn.WriteMessage(websocket.BinaryMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", leafprefs.ErrBusUnavailable, err)
	}
	return nil
}

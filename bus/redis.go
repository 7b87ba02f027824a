package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CreativeUnicorns/leafprefs"
)

// RedisBus carries channels over Redis pub/sub, so leaves and hosts on
// different machines share one namespace. One PUBSUB connection serves every
// local handler; a Redis channel is subscribed while it has at least one.
type RedisBus struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger leafprefs.Logger

	subs fanout
	// remoteMu serializes SUBSCRIBE and UNSUBSCRIBE against handler changes.
	remoteMu sync.Mutex

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRedisBus connects with opts, checks the connection and starts receiving.
func NewRedisBus(opts *redis.Options, logger leafprefs.Logger) (*RedisBus, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis: %v", leafprefs.ErrBusUnavailable, err)
	}
	return NewRedisBusWithClient(client, logger), nil
}

// NewRedisBusWithClient starts a bus on an existing client. Close closes the client.
func NewRedisBusWithClient(client *redis.Client, logger leafprefs.Logger) *RedisBus {
	if logger == nil {
		logger = leafprefs.NewNopLogger()
	}
	b := &RedisBus{
		client: client,
		pubsub: client.Subscribe(context.Background()),
		logger: logger,
		done:   make(chan struct{}),
	}
	go b.receive(b.pubsub.Channel())
	return b
}

func (b *RedisBus) receive(messages <-chan *redis.Message) {
	defer close(b.done)
	for msg := range messages {
		// A channel matched by both SUBSCRIBE and the tap's PSUBSCRIBE arrives twice.
		if msg.Pattern != "" {
			b.subs.observe(msg.Channel, msg.Payload)
			continue
		}
		b.subs.deliver(msg.Channel, msg.Payload)
	}
}

func (b *RedisBus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Publish sends payload with PUBLISH. Delivery is asynchronous, including to
// this bus's own handlers.
func (b *RedisBus) Publish(ctx context.Context, channel, payload string) error {
	if b.isClosed() {
		return leafprefs.ErrBusClosed
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", channel, err)
	}
	return nil
}

// Subscribe registers handler on channel, subscribing in Redis for the first handler.
func (b *RedisBus) Subscribe(channel string, handler leafprefs.Handler) (leafprefs.Subscription, error) {
	if b.isClosed() {
		return nil, leafprefs.ErrBusClosed
	}

	b.remoteMu.Lock()
	defer b.remoteMu.Unlock()

	id, first := b.subs.add(channel, handler)
	if first {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.pubsub.Subscribe(ctx, channel); err != nil {
			b.subs.remove(channel, id)
			return nil, fmt.Errorf("redis subscribe %q: %w", channel, err)
		}
	}
	return newSubscription(channel, func() error {
		return b.release(channel, id)
	}), nil
}

func (b *RedisBus) release(channel string, id uint64) error {
	b.remoteMu.Lock()
	defer b.remoteMu.Unlock()

	removed, last := b.subs.remove(channel, id)
	if !removed || !last || b.isClosed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.pubsub.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("redis unsubscribe %q: %w", channel, err)
	}
	return nil
}

// Tap registers handler for every payload published on the Redis server,
// pattern-subscribing to all channels while at least one tap is registered.
func (b *RedisBus) Tap(handler leafprefs.Handler) (leafprefs.Subscription, error) {
	if b.isClosed() {
		return nil, leafprefs.ErrBusClosed
	}

	b.remoteMu.Lock()
	defer b.remoteMu.Unlock()

	id := b.subs.addTap(handler)
	if b.subs.tapCount() == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.pubsub.PSubscribe(ctx, TapChannel); err != nil {
			b.subs.removeTap(id)
			return nil, fmt.Errorf("redis psubscribe: %w", err)
		}
	}
	return newSubscription(TapChannel, func() error {
		b.remoteMu.Lock()
		defer b.remoteMu.Unlock()

		removed, last := b.subs.removeTap(id)
		if !removed || !last || b.isClosed() {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.pubsub.PUnsubscribe(ctx, TapChannel); err != nil {
			return fmt.Errorf("redis punsubscribe: %w", err)
		}
		return nil
	}), nil
}

// Close stops receiving and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.pubsub.Close()
	select {
	case <-b.done:
	case <-time.After(5 * time.Second):
		b.logger.Warn("redis bus: receiver did not stop")
	}
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		b.logger.Warn("redis bus close", "error", err)
	}
	return err
}

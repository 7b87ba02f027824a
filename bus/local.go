package bus

import (
	"context"
	"sync/atomic"

	"github.com/CreativeUnicorns/leafprefs"
)

// LocalBus is an in-process Bus. Publish delivers synchronously to every
// handler of the channel, in subscription order, before returning.
type LocalBus struct {
	subs   fanout
	closed atomic.Bool
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Publish delivers payload to the handlers of channel.
func (b *LocalBus) Publish(ctx context.Context, channel, payload string) error {
	if b.closed.Load() {
		return leafprefs.ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.subs.observe(channel, payload)
	b.subs.deliver(channel, payload)
	return nil
}

// Subscribe registers handler on channel.
func (b *LocalBus) Subscribe(channel string, handler leafprefs.Handler) (leafprefs.Subscription, error) {
	if b.closed.Load() {
		return nil, leafprefs.ErrBusClosed
	}
	id, _ := b.subs.add(channel, handler)
	return newSubscription(channel, func() error {
		b.subs.remove(channel, id)
		return nil
	}), nil
}

// Tap registers handler for every payload published on the bus.
func (b *LocalBus) Tap(handler leafprefs.Handler) (leafprefs.Subscription, error) {
	if b.closed.Load() {
		return nil, leafprefs.ErrBusClosed
	}
	id := b.subs.addTap(handler)
	return newSubscription(TapChannel, func() error {
		b.subs.removeTap(id)
		return nil
	}), nil
}

// Subscribers returns the number of handlers on channel.
func (b *LocalBus) Subscribers(channel string) int {
	return b.subs.count(channel)
}

// Close rejects further publishes and subscriptions.
func (b *LocalBus) Close() error {
	b.closed.Store(true)
	return nil
}

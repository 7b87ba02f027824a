// Package bus provides leafprefs.Bus implementations: an in-process bus, a
// Redis pub/sub bus, and a WebSocket hub with its leaf-side client.
package bus

import (
	"sync"

	"github.com/CreativeUnicorns/leafprefs"
)

type entry struct {
	id      uint64
	handler leafprefs.Handler
}

// fanout is a per-channel table of local handlers kept in subscription order.
// Handlers are always invoked outside the lock, so they may subscribe or
// unsubscribe while being delivered to.
type fanout struct {
	mu       sync.Mutex
	channels map[string][]entry
	taps     []entry
	nextID   uint64
}

// add registers handler on channel. first reports whether it is the only handler there.
func (f *fanout) add(channel string, handler leafprefs.Handler) (id uint64, first bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.channels == nil {
		f.channels = make(map[string][]entry)
	}
	f.nextID++
	f.channels[channel] = append(f.channels[channel], entry{id: f.nextID, handler: handler})
	return f.nextID, len(f.channels[channel]) == 1
}

// remove drops handler id from channel. last reports whether the channel became empty.
func (f *fanout) remove(channel string, id uint64) (removed, last bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.channels[channel]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		rest := make([]entry, 0, len(entries)-1)
		rest = append(rest, entries[:i]...)
		rest = append(rest, entries[i+1:]...)
		if len(rest) == 0 {
			delete(f.channels, channel)
			return true, true
		}
		f.channels[channel] = rest
		return true, false
	}
	return false, false
}

// deliver calls every handler of channel in subscription order.
func (f *fanout) deliver(channel, payload string) {
	f.mu.Lock()
	entries := f.channels[channel]
	f.mu.Unlock()

	for _, e := range entries {
		e.handler(channel, payload)
	}
}

// addTap registers handler for payloads on every channel.
func (f *fanout) addTap(handler leafprefs.Handler) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	f.taps = append(f.taps, entry{id: f.nextID, handler: handler})
	return f.nextID
}

// removeTap drops tap id. removed reports whether it was registered.
func (f *fanout) removeTap(id uint64) (removed, last bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, e := range f.taps {
		if e.id != id {
			continue
		}
		rest := make([]entry, 0, len(f.taps)-1)
		rest = append(rest, f.taps[:i]...)
		rest = append(rest, f.taps[i+1:]...)
		f.taps = rest
		return true, len(rest) == 0
	}
	return false, false
}

func (f *fanout) tapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.taps)
}

// observe calls every tap with a payload published on channel.
func (f *fanout) observe(channel, payload string) {
	f.mu.Lock()
	taps := f.taps
	f.mu.Unlock()

	for _, e := range taps {
		e.handler(channel, payload)
	}
}

// count returns the number of handlers on channel.
func (f *fanout) count(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels[channel])
}

// names lists the channels with at least one handler.
func (f *fanout) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.channels))
	for name := range f.channels {
		out = append(out, name)
	}
	return out
}

// Tapper is implemented by buses that can observe payloads published on any
// channel, whether or not a handler is subscribed to it.
type Tapper interface {
	Tap(handler leafprefs.Handler) (leafprefs.Subscription, error)
}

// TapChannel is the Channel of subscriptions returned by Tap.
const TapChannel = "*"

var (
	_ Tapper = (*LocalBus)(nil)
	_ Tapper = (*Hub)(nil)
	_ Tapper = (*RedisBus)(nil)
)

// subscription releases its handler at most once.
type subscription struct {
	channel string
	once    sync.Once
	release func() error
}

func newSubscription(channel string, release func() error) *subscription {
	return &subscription{channel: channel, release: release}
}

// Channel returns the subscribed channel.
func (s *subscription) Channel() string { return s.channel }

// Unsubscribe releases the handler. Later calls do nothing.
func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.release()
	})
	return err
}

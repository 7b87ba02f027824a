package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CreativeUnicorns/leafprefs"
	"github.com/CreativeUnicorns/leafprefs/bus"
	"github.com/CreativeUnicorns/leafprefs/storage"
)

// DefaultSettleDelay is how long a store edit waits for its token to show up
// on the bus before the relay announces it.
const DefaultSettleDelay = 100 * time.Millisecond

// RelayOption configures a ChangeRelay.
type RelayOption func(*ChangeRelay)

// WithSettleDelay sets the settle delay. Zero publishes as soon as the change is seen.
func WithSettleDelay(d time.Duration) RelayOption {
	return func(r *ChangeRelay) {
		r.settle = d
	}
}

// ChangeRelay publishes store file edits on each changed key's channel, so
// leaves see values written by any process. Edits whose token was already
// announced on the bus, usually by the leaf that wrote them, are not published again.
type ChangeRelay struct {
	watcher *storage.FileWatcher
	bus     leafprefs.Bus
	logger  leafprefs.Logger
	metrics *Metrics
	settle  time.Duration

	mu        sync.Mutex
	tap       leafprefs.Subscription
	announced map[string]string
	pending   map[string]uint64
	seq       uint64
}

// NewChangeRelay creates a relay from watcher to bus. metrics may be nil.
func NewChangeRelay(watcher *storage.FileWatcher, b leafprefs.Bus, logger leafprefs.Logger, metrics *Metrics, opts ...RelayOption) *ChangeRelay {
	if logger == nil {
		logger = leafprefs.NewNopLogger()
	}
	r := &ChangeRelay{
		watcher:   watcher,
		bus:       b,
		logger:    logger,
		metrics:   metrics,
		settle:    DefaultSettleDelay,
		announced: make(map[string]string),
		pending:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach starts recording the tokens announced on the bus. Run attaches on
// its own; calling Attach first makes sure nothing published before Run
// starts is missed. A bus that cannot be tapped is relayed without suppression.
func (r *ChangeRelay) Attach() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tap != nil {
		return nil
	}
	tapper, ok := r.bus.(bus.Tapper)
	if !ok {
		r.logger.Warn("bus cannot be tapped, leaf writes will be announced twice")
		return nil
	}
	sub, err := tapper.Tap(r.observe)
	if err != nil {
		return fmt.Errorf("change relay: tap bus: %w", err)
	}
	r.tap = sub
	return nil
}

func (r *ChangeRelay) detach() {
	r.mu.Lock()
	sub := r.tap
	r.tap = nil
	r.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
}

// observe records the last token announced on every change channel.
func (r *ChangeRelay) observe(channel, payload string) {
	if ChannelClass(channel) != "change" {
		return
	}
	r.mu.Lock()
	r.announced[channel] = payload
	r.mu.Unlock()
}

func (r *ChangeRelay) wasAnnounced(key, token string) bool {
	last, ok := r.announced[key]
	return ok && last == token
}

// Run relays changes until ctx is done or the watcher is closed.
// Deleted keys are not published: a leaf falls back to its default on the next read.
func (r *ChangeRelay) Run(ctx context.Context) error {
	if err := r.Attach(); err != nil {
		return err
	}
	defer r.detach()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c, ok := <-r.watcher.Changes():
			if !ok {
				return nil
			}
			if c.Deleted {
				r.mu.Lock()
				delete(r.announced, c.Key)
				r.mu.Unlock()
				r.logger.Debug("key removed from store", "key", c.Key, "container", c.Container)
				continue
			}

			r.mu.Lock()
			if r.wasAnnounced(c.Key, c.Token) {
				r.mu.Unlock()
				r.metrics.suppressed()
				r.logger.Debug("store change already announced", "key", c.Key, "container", c.Container)
				continue
			}
			r.seq++
			seq := r.seq
			r.pending[c.Key] = seq
			r.mu.Unlock()

			wg.Add(1)
			time.AfterFunc(r.settle, func() {
				defer wg.Done()
				r.flush(ctx, c, seq)
			})

		case err, ok := <-r.watcher.Errors():
			if !ok {
				return nil
			}
			r.logger.Warn("store watcher error", "error", err)
		}
	}
}

// flush publishes c unless a newer change to its key is pending or its token
// was announced while it settled.
func (r *ChangeRelay) flush(ctx context.Context, c storage.Change, seq uint64) {
	r.mu.Lock()
	if r.pending[c.Key] != seq {
		r.mu.Unlock()
		return
	}
	delete(r.pending, c.Key)
	if r.wasAnnounced(c.Key, c.Token) {
		r.mu.Unlock()
		r.metrics.suppressed()
		r.logger.Debug("store change already announced", "key", c.Key, "container", c.Container)
		return
	}
	r.announced[c.Key] = c.Token
	r.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := r.bus.Publish(ctx, c.Key, c.Token); err != nil {
		r.logger.Error("change publish failed", "key", c.Key, "container", c.Container, "error", err)
		return
	}
	r.metrics.change()
	r.logger.Debug("relayed store change", "key", c.Key, "container", c.Container)
}

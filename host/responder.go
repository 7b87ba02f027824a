package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CreativeUnicorns/leafprefs"
)

// RequestTimeout bounds the storage read behind one brokered request.
const RequestTimeout = 5 * time.Second

// Responder answers value requests from storage and writes leaf log lines
// to the host logger.
type Responder struct {
	storage leafprefs.Storage
	bus     leafprefs.Bus
	logger  leafprefs.Logger
	metrics *Metrics

	mu   sync.Mutex
	subs []leafprefs.Subscription
}

// NewResponder creates a Responder. metrics may be nil.
func NewResponder(storage leafprefs.Storage, bus leafprefs.Bus, logger leafprefs.Logger, metrics *Metrics) *Responder {
	if logger == nil {
		logger = leafprefs.NewNopLogger()
	}
	return &Responder{
		storage: storage,
		bus:     bus,
		logger:  logger,
		metrics: metrics,
	}
}

// Start subscribes to the request and log channels.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.subs) > 0 {
		return nil
	}
	reqSub, err := r.bus.Subscribe(leafprefs.ValueRequestChannel, r.handleRequest)
	if err != nil {
		return err
	}
	logSub, err := r.bus.Subscribe(leafprefs.LogChannel, r.handleLog)
	if err != nil {
		_ = reqSub.Unsubscribe()
		return err
	}
	r.subs = []leafprefs.Subscription{reqSub, logSub}
	r.logger.Info("responder started")
	return nil
}

// Stop releases both subscriptions.
func (r *Responder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, s := range r.subs {
		errs = append(errs, s.Unsubscribe())
	}
	r.subs = nil
	return errors.Join(errs...)
}

func (r *Responder) handleRequest(_, payload string) {
	id, container, err := leafprefs.ParseRequestPayload(payload)
	if err != nil {
		r.metrics.request(ResultInvalid)
		r.logger.Warn("dropping value request", "payload", payload, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
	defer cancel()

	token, err := r.storage.Get(ctx, container, id)
	switch {
	case err == nil:
		r.metrics.request(ResultHit)
	case errors.Is(err, leafprefs.ErrNotFound):
		r.metrics.request(ResultMiss)
	default:
		r.metrics.request(ResultMiss)
		r.logger.Warn("value request read failed", "key", id, "container", container, "error", err)
		token = ""
	}

	if err := r.bus.Publish(ctx, leafprefs.ResponseChannel(id, container), token); err != nil {
		r.logger.Error("value response publish failed", "key", id, "container", container, "error", err)
		return
	}
	r.logger.Debug("answered value request", "key", id, "container", container, "found", token != "")
}

func (r *Responder) handleLog(_, payload string) {
	bundle, message, err := leafprefs.ParseLogPayload(payload)
	if err != nil {
		r.logger.Warn("malformed leaf log", "payload", payload)
		return
	}
	r.metrics.logLine()
	r.logger.Info("leaf log", "bundle", bundle, "message", message)
}

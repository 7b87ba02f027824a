package leafprefs

import "sync"

// Completion receives the answer to a brokered value request. found is false when
// the host had no stored value or answered with something undecodable.
type Completion func(v Value, found bool)

type pendingRequest struct {
	completion Completion
	sub        Subscription
}

// Registry tracks brokered requests that are still waiting for a host response.
// Entries are keyed by RequestKey(id, container); a newer request for the same key
// replaces the older one. One Registry is meant to live for the whole process.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*pendingRequest)}
}

// register stores a pending request, releasing the subscription of any request it replaces.
func (r *Registry) register(key string, completion Completion) *pendingRequest {
	p := &pendingRequest{completion: completion}

	r.mu.Lock()
	old, replaced := r.pending[key]
	r.pending[key] = p
	r.mu.Unlock()

	if replaced && old.sub != nil {
		_ = old.sub.Unsubscribe()
	}
	return p
}

// attach records the response subscription of p. It returns false when p is no
// longer pending, in which case the caller owns sub.
func (r *Registry) attach(key string, p *pendingRequest, sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[key] != p {
		return false
	}
	p.sub = sub
	return true
}

// drop removes p if it is still the pending request for key.
func (r *Registry) drop(key string, p *pendingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[key] == p {
		delete(r.pending, key)
	}
}

// Resolve hands token to the pending completion for key and forgets the entry.
// It reports whether a completion was waiting.
func (r *Registry) Resolve(key, token string) bool {
	p := r.take(key)
	if p == nil {
		return false
	}
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	v := Decode(token)
	p.completion(v, v.Kind() != KindUnknown)
	return true
}

// Cancel forgets the pending request for key without invoking its completion.
func (r *Registry) Cancel(key string) bool {
	p := r.take(key)
	if p == nil {
		return false
	}
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	return true
}

// Pending reports whether a request for key is waiting.
func (r *Registry) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}

// Len returns the number of waiting requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) take(key string) *pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok {
		return nil
	}
	delete(r.pending, key)
	return p
}
